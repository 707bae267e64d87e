package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// example API call
// https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=API_KEY

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"topK"`
	TopP        float64 `json:"topP"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type Api struct {
	apiUrl     string // https://generativelanguage.googleapis.com/v1beta
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewApi(apiUrl, apiKey, model string, httpClient *http.Client) *Api {
	return &Api{
		apiUrl:     apiUrl,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

// GenerateInsight sends the prompt to the text generation api and returns
// the raw response text. The text is opaque display content, it is never
// parsed or validated beyond extraction.
func (api *Api) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateContentRequest{
		Contents: []content{
			{Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature: 0.7,
			TopK:        40,
			TopP:        0.95,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate content request: %w", err)
	}

	generateUrl := fmt.Sprintf("%s/models/%s:generateContent?key=%s", api.apiUrl, api.model, api.apiKey)
	log.Tracef("calling insight api, model: %s", api.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, generateUrl, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read insight api response bytes: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("insight api status %d: %s", resp.StatusCode, respBytes)
	}

	var generateResponse generateContentResponse
	if err := json.Unmarshal(respBytes, &generateResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal insight api response bytes: %w", err)
	}

	// a response with no candidates or no parts is a valid but empty
	// generation, the caller decides what text to show instead
	if len(generateResponse.Candidates) == 0 {
		return "", nil
	}

	candidate := generateResponse.Candidates[0].Content
	if len(candidate.Parts) == 0 {
		return "", nil
	}

	return candidate.Parts[0].Text, nil
}
