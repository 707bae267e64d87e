package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	oneHour            = 60 * 60
	insightCacheExpire = oneHour * 6

	requestTimeout = 30 * time.Second

	// FallbackRequestFailed is shown when the insight api call fails
	FallbackRequestFailed = "Mantenha a constância! O mais importante é continuar monitorando seus hábitos."
	// FallbackEmptyResponse is shown when the api answers with empty text
	FallbackEmptyResponse = "Continue focado no seu progresso! Cada dia é uma nova oportunidade para cuidar da sua saúde."
	// MessageNoWeights is shown when there is nothing to analyze yet
	MessageNoWeights = "Adicione pesagens para receber insights."
)

type RequestState string

const (
	StateIdle     RequestState = "idle"
	StatePending  RequestState = "pending"
	StateResolved RequestState = "resolved"
	StateFailed   RequestState = "failed"
)

// WeightSample is a weight/date pair of the input snapshot
type WeightSample struct {
	Weight float64 `json:"weight"`
	Date   string  `json:"date"`
}

// Request is the input snapshot an insight is generated for:
// the current BMI and up to 5 most recent weight samples.
type Request struct {
	BMIValue    float64        `json:"bmiValue"`
	BMICategory string         `json:"bmiCategory"`
	Weights     []WeightSample `json:"weights"`
}

func (r Request) snapshotHash() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(r.BMIValue, 'f', -1, 64))
	sb.WriteString("|")
	sb.WriteString(r.BMICategory)
	for _, w := range r.Weights {
		sb.WriteString("|")
		sb.WriteString(strconv.FormatFloat(w.Weight, 'f', -1, 64))
		sb.WriteString("@")
		sb.WriteString(w.Date)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

type Response struct {
	State RequestState `json:"state"`
	Text  string       `json:"text,omitempty"`
}

type insightApi interface {
	GenerateInsight(ctx context.Context, prompt string) (string, error)
}

// Service tracks insight generation through an explicit request state
// machine: Idle -> Pending -> Resolved | Failed. At most one request is
// in flight per input snapshot; a late response whose snapshot no longer
// matches the current one is discarded. Resolved texts are cached.
type Service struct {
	api   insightApi
	cache *freecache.Cache

	mutex    sync.Mutex
	state    RequestState
	snapshot string
	result   string
}

func NewService(api insightApi) *Service {
	megabyte := 1024 * 1024
	return &Service{
		api:   api,
		cache: freecache.NewCache(megabyte),
		state: StateIdle,
	}
}

// Get returns the insight for the given snapshot: the cached text when
// this snapshot was already resolved, the current pending state while a
// request for it is in flight, otherwise it starts a new request.
// A request failure never blocks the caller, it degrades to a fixed
// fallback text on the next poll.
func (s *Service) Get(req Request) Response {
	hash := req.snapshotHash()

	if cachedText, err := s.cache.Get([]byte(hash)); err == nil {
		log.Tracef("insight: found cached insight for snapshot %s", hash[:8])
		return Response{State: StateResolved, Text: string(cachedText)}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.snapshot == hash {
		switch s.state {
		case StatePending:
			// a request for this input is already outstanding, do not issue another
			return Response{State: StatePending}
		case StateResolved:
			return Response{State: StateResolved, Text: s.result}
		case StateFailed:
			return Response{State: StateFailed, Text: s.result}
		}
	}

	s.state = StatePending
	s.snapshot = hash
	s.result = ""

	go s.fetch(hash, buildPrompt(req))

	return Response{State: StatePending}
}

func (s *Service) fetch(hash, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	text, err := s.api.GenerateInsight(ctx, prompt)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.snapshot != hash {
		// newer data arrived while this request was in flight
		log.Debugf("insight: discarding stale response for snapshot %s", hash[:8])
		return
	}

	if err != nil {
		log.Errorf("insight: generate failed: %s", err)
		s.state = StateFailed
		s.result = FallbackRequestFailed
		return
	}

	if text == "" {
		text = FallbackEmptyResponse
	}

	s.state = StateResolved
	s.result = text

	if err := s.cache.Set([]byte(hash), []byte(text), insightCacheExpire); err != nil {
		log.Errorf("insight: failed to cache insight for snapshot %s: %s", hash[:8], err)
	}
}

func buildPrompt(req Request) string {
	weightHistory := make([]string, 0, len(req.Weights))
	for _, w := range req.Weights {
		weightHistory = append(
			weightHistory,
			fmt.Sprintf("%skg em %s", strconv.FormatFloat(w.Weight, 'f', -1, 64), w.Date),
		)
	}

	return fmt.Sprintf(
		`Você é um assistente de saúde virtual motivacional e empático.
Dados do usuário:
- IMC Atual: %s (%s)
- Últimas pesagens: %s

Gere um único parágrafo curto (máximo 3 frases) com um insight sobre o progresso do usuário ou uma dica de saúde baseada no IMC.
Seja encorajador e evite termos médicos complexos. Responda em Português do Brasil.`,
		strconv.FormatFloat(req.BMIValue, 'f', -1, 64),
		req.BMICategory,
		strings.Join(weightHistory, ", "),
	)
}
