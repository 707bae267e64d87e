package insight_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2beens/vitalscale/internal/insight"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiMock struct {
	mutex   sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (m *apiMock) GenerateInsight(_ context.Context, prompt string) (string, error) {
	m.mutex.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mutex.Unlock()
	return m.respond(prompt)
}

func (m *apiMock) callsCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.prompts)
}

func testRequest() insight.Request {
	return insight.Request{
		BMIValue:    20.8,
		BMICategory: "Normal",
		Weights: []insight.WeightSample{
			{Weight: 60, Date: "2024-01-05"},
			{Weight: 61.5, Date: "2024-01-01"},
		},
	}
}

func TestService_ResolvesInsight(t *testing.T) {
	api := &apiMock{
		respond: func(string) (string, error) {
			return "Seu progresso está ótimo!", nil
		},
	}
	service := insight.NewService(api)

	resp := service.Get(testRequest())
	assert.Equal(t, insight.StatePending, resp.State)

	require.Eventually(t, func() bool {
		return service.Get(testRequest()).State == insight.StateResolved
	}, time.Second, 5*time.Millisecond)

	resolved := service.Get(testRequest())
	assert.Equal(t, "Seu progresso está ótimo!", resolved.Text)

	// the resolved snapshot is cached, no second api call for the same input
	assert.Equal(t, 1, api.callsCount())
}

func TestService_PromptContents(t *testing.T) {
	api := &apiMock{
		respond: func(string) (string, error) { return "ok", nil },
	}
	service := insight.NewService(api)

	service.Get(testRequest())
	require.Eventually(t, func() bool {
		return api.callsCount() == 1
	}, time.Second, 5*time.Millisecond)

	prompt := api.prompts[0]
	assert.Contains(t, prompt, "IMC Atual: 20.8 (Normal)")
	assert.Contains(t, prompt, "60kg em 2024-01-05, 61.5kg em 2024-01-01")
	assert.Contains(t, prompt, "Português do Brasil")
}

func TestService_SingleFlightPerSnapshot(t *testing.T) {
	release := make(chan struct{})
	api := &apiMock{
		respond: func(string) (string, error) {
			<-release
			return "resposta", nil
		},
	}
	service := insight.NewService(api)

	// repeated polls while the request is outstanding do not re-issue it
	for i := 0; i < 5; i++ {
		resp := service.Get(testRequest())
		assert.Equal(t, insight.StatePending, resp.State)
		assert.Empty(t, resp.Text)
	}

	close(release)
	require.Eventually(t, func() bool {
		return service.Get(testRequest()).State == insight.StateResolved
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, api.callsCount())
}

func TestService_RequestFailureFallsBack(t *testing.T) {
	api := &apiMock{
		respond: func(string) (string, error) {
			return "", errors.New("auth error")
		},
	}
	service := insight.NewService(api)

	service.Get(testRequest())
	require.Eventually(t, func() bool {
		return service.Get(testRequest()).State == insight.StateFailed
	}, time.Second, 5*time.Millisecond)

	failed := service.Get(testRequest())
	assert.Equal(t, insight.FallbackRequestFailed, failed.Text)
}

func TestService_EmptyResponseFallsBack(t *testing.T) {
	api := &apiMock{
		respond: func(string) (string, error) {
			return "", nil
		},
	}
	service := insight.NewService(api)

	service.Get(testRequest())
	require.Eventually(t, func() bool {
		return service.Get(testRequest()).State == insight.StateResolved
	}, time.Second, 5*time.Millisecond)

	resolved := service.Get(testRequest())
	assert.Equal(t, insight.FallbackEmptyResponse, resolved.Text)
}

func TestService_StaleResponseDiscarded(t *testing.T) {
	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})
	api := &apiMock{
		respond: func(prompt string) (string, error) {
			if strings.Contains(prompt, "IMC Atual: 20.8") {
				<-releaseFirst
				return "resposta antiga", nil
			}
			<-releaseSecond
			return "resposta atual", nil
		},
	}
	service := insight.NewService(api)

	firstReq := testRequest()
	assert.Equal(t, insight.StatePending, service.Get(firstReq).State)

	// newer data arrives before the first request resolves
	secondReq := testRequest()
	secondReq.BMIValue = 21.2
	secondReq.Weights = append([]insight.WeightSample{{Weight: 61.2, Date: "2024-01-08"}}, secondReq.Weights...)
	assert.Equal(t, insight.StatePending, service.Get(secondReq).State)

	// the first request resolves late, its result must be discarded
	close(releaseFirst)
	close(releaseSecond)

	require.Eventually(t, func() bool {
		return service.Get(secondReq).State == insight.StateResolved
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "resposta atual", service.Get(secondReq).Text)

	// the stale snapshot was neither cached nor kept, polling it starts over
	require.Eventually(t, func() bool {
		resp := service.Get(firstReq)
		return resp.State == insight.StateResolved && resp.Text == "resposta antiga"
	}, time.Second, 5*time.Millisecond)
}
