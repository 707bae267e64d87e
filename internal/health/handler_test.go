package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2beens/vitalscale/internal/insight"
	"github.com/2beens/vitalscale/internal/kv"
	"github.com/2beens/vitalscale/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insightServiceMock struct {
	calls []insight.Request
	resp  insight.Response
}

func (m *insightServiceMock) Get(req insight.Request) insight.Response {
	m.calls = append(m.calls, req)
	return m.resp
}

type handlerTestSetup struct {
	store    *Store
	insights *insightServiceMock
	metrics  *metrics.Manager
	router   *mux.Router
}

func newHandlerTestSetup(t *testing.T) *handlerTestSetup {
	t.Helper()

	store := NewStore(context.Background(), kv.NewTestStore())
	insights := &insightServiceMock{
		resp: insight.Response{
			State: insight.StatePending,
		},
	}

	metricsManager := metrics.NewTestManager()
	router := mux.NewRouter()
	handler := NewHandler(store, insights, metricsManager)
	handler.SetupRoutes(router)

	return &handlerTestSetup{
		store:    store,
		insights: insights,
		metrics:  metricsManager,
		router:   router,
	}
}

func (s *handlerTestSetup) doJSON(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *handlerTestSetup) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestHandler_AddWeight(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.doJSON("POST", "/weights", `{"weight": 82.5, "date": "2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var added WeightEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, 82.5, added.Weight)
	assert.Equal(t, "2024-03-01", added.Date)

	require.Len(t, s.store.Weights(), 1)
}

func TestHandler_AddWeight_invalidRequests(t *testing.T) {
	s := newHandlerTestSetup(t)

	// wrong content type
	req := httptest.NewRequest("POST", "/weights", strings.NewReader(`{"weight": 82.5, "date": "2024-03-01"}`))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for name, body := range map[string]string{
		"not json":       `{{`,
		"zero weight":    `{"weight": 0, "date": "2024-03-01"}`,
		"negative":       `{"weight": -5, "date": "2024-03-01"}`,
		"missing date":   `{"weight": 82.5}`,
		"malformed date": `{"weight": 82.5, "date": "yesterday"}`,
	} {
		rr := s.doJSON("POST", "/weights", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}

	assert.Empty(t, s.store.Weights())
}

func TestHandler_ListWeights(t *testing.T) {
	s := newHandlerTestSetup(t)
	s.store.AddWeight(context.Background(), 82.5, "2024-03-01")
	s.store.AddWeight(context.Background(), 81.2, "2024-03-05")

	rr := s.do("GET", "/weights")
	require.Equal(t, http.StatusOK, rr.Code)

	var listResp ListWeightsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	assert.Equal(t, 2, listResp.Total)
	require.Len(t, listResp.Weights, 2)
	assert.Equal(t, "2024-03-05", listResp.Weights[0].Date)
}

func TestHandler_DeleteWeight(t *testing.T) {
	s := newHandlerTestSetup(t)
	added := s.store.AddWeight(context.Background(), 82.5, "2024-03-01")

	rr := s.do("DELETE", "/weights/"+added.ID)
	require.Equal(t, http.StatusOK, rr.Code)

	var deleteResp DeleteEntryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &deleteResp))
	assert.True(t, deleteResp.Deleted)
	assert.Equal(t, added.ID, deleteResp.DeletedID)
	assert.Empty(t, s.store.Weights())

	// deleting again is not an error, just a no-op
	rr = s.do("DELETE", "/weights/"+added.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &deleteResp))
	assert.False(t, deleteResp.Deleted)
}

func TestHandler_WaterEndpoints(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.doJSON("POST", "/waters", `{"amount": 250, "date": "2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = s.doJSON("POST", "/waters", `{"amount": 500, "date": "2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = s.doJSON("POST", "/waters", `{"amount": 300, "date": "2024-03-02"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.doJSON("POST", "/waters", `{"amount": 0, "date": "2024-03-01"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("GET", "/waters")
	require.Equal(t, http.StatusOK, rr.Code)
	var listResp ListWatersResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	assert.Equal(t, 3, listResp.Total)

	rr = s.do("GET", "/waters/daily/2024-03-01")
	require.Equal(t, http.StatusOK, rr.Code)
	var dailyResp DailyWaterResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dailyResp))
	assert.Equal(t, 750, dailyResp.TotalMl)

	rr = s.do("GET", "/waters/daily/not-a-date")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_AerobicEndpoints(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.doJSON("POST", "/aerobics", `{"distance": 5.2, "duration": 32, "date": "2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	// distance zero is fine, e.g. stationary workouts
	rr = s.doJSON("POST", "/aerobics", `{"distance": 0, "duration": 45, "date": "2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.doJSON("POST", "/aerobics", `{"distance": -1, "duration": 30, "date": "2024-03-01"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.doJSON("POST", "/aerobics", `{"distance": 3, "duration": 0, "date": "2024-03-01"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("GET", "/aerobics/daily/2024-03-01")
	require.Equal(t, http.StatusOK, rr.Code)
	var dailyResp DailyAerobicResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dailyResp))
	assert.Equal(t, 77, dailyResp.Minutes)
	assert.Equal(t, 5.2, dailyResp.DistanceKm)
}

func TestHandler_BMI(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.do("GET", "/bmi")
	require.Equal(t, http.StatusOK, rr.Code)
	var bmiResp BMIResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bmiResp))
	assert.Equal(t, CategoryUnknown, bmiResp.Category)

	s.store.AddWeight(context.Background(), 60, "2024-03-01")
	rr = s.do("GET", "/bmi")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bmiResp))
	assert.Equal(t, 20.8, bmiResp.Value)
	assert.Equal(t, CategoryNormal, bmiResp.Category)
}

func TestHandler_Dashboard(t *testing.T) {
	s := newHandlerTestSetup(t)
	ctx := context.Background()
	today := time.Now().Format(dateLayout)

	s.store.AddWeight(ctx, 82.5, "2024-03-01")
	s.store.AddWeight(ctx, 81.2, today)
	s.store.AddWater(ctx, 500, today)
	s.store.AddWater(ctx, 250, "2024-03-01")
	s.store.AddAerobic(ctx, 5, 45, today)

	rr := s.do("GET", "/dashboard")
	require.Equal(t, http.StatusOK, rr.Code)

	var dashboard DashboardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dashboard))
	assert.Equal(t, 81.2, dashboard.LatestWeight)
	assert.Equal(t, -1.3, dashboard.WeightTrend)
	assert.Equal(t, 500, dashboard.WaterTodayMl)
	assert.Equal(t, 45, dashboard.AerobicMinutesToday)
	assert.Equal(t, float64(5), dashboard.AerobicDistanceToday)
	assert.Equal(t, 30, dashboard.AerobicGoalMinutes)
	assert.Equal(t, 150.0, dashboard.AerobicProgress)
	require.Len(t, dashboard.Chart, 2)
	// chart runs oldest to newest
	assert.Equal(t, "2024-03-01", dashboard.Chart[0].Date)
	assert.Equal(t, 170, dashboard.Profile.Height)
}

func TestHandler_Insight_noWeights(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.do("GET", "/insight")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp insight.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, insight.StateIdle, resp.State)
	assert.Equal(t, insight.MessageNoWeights, resp.Text)
	assert.Empty(t, s.insights.calls)
}

func TestHandler_Insight(t *testing.T) {
	s := newHandlerTestSetup(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		s.store.AddWeight(ctx, 60+float64(i), fmt.Sprintf("2024-03-%02d", i+1))
	}
	s.insights.resp = insight.Response{
		State: insight.StateResolved,
		Text:  "keep it up",
	}

	rr := s.do("GET", "/insight")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp insight.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, insight.StateResolved, resp.State)
	assert.Equal(t, "keep it up", resp.Text)

	require.Len(t, s.insights.calls, 1)
	sent := s.insights.calls[0]
	assert.Equal(t, 22.8, sent.BMIValue)
	assert.Equal(t, string(CategoryNormal), sent.BMICategory)
	// only the most recent weighings are sent, newest first
	require.Len(t, sent.Weights, 5)
	assert.Equal(t, "2024-03-07", sent.Weights[0].Date)
	assert.Equal(t, 66.0, sent.Weights[0].Weight)
}

func TestHandler_Insight_fallbacksCounted(t *testing.T) {
	s := newHandlerTestSetup(t)
	s.store.AddWeight(context.Background(), 60, "2024-03-01")

	// a failed request and an empty generation both answer with a
	// fallback text, the counter covers both
	s.insights.resp = insight.Response{
		State: insight.StateFailed,
		Text:  insight.FallbackRequestFailed,
	}
	rr := s.do("GET", "/insight")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.CounterInsightFallbacks))

	s.insights.resp = insight.Response{
		State: insight.StateResolved,
		Text:  insight.FallbackEmptyResponse,
	}
	rr = s.do("GET", "/insight")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.CounterInsightFallbacks))

	// a real generated insight is not a fallback
	s.insights.resp = insight.Response{
		State: insight.StateResolved,
		Text:  "keep it up",
	}
	rr = s.do("GET", "/insight")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.CounterInsightFallbacks))
}

func TestHandler_Profile(t *testing.T) {
	s := newHandlerTestSetup(t)

	rr := s.do("GET", "/profile")
	require.Equal(t, http.StatusOK, rr.Code)
	var profile UserProfile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, DefaultHeight, profile.Height)

	rr = s.doJSON("PUT", "/profile", `{"height": 182, "age": 34, "name": "Ana"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, 182, profile.Height)
	require.NotNil(t, profile.Age)
	assert.Equal(t, 34, *profile.Age)
	assert.Equal(t, "Ana", profile.Name)

	rr = s.doJSON("PUT", "/profile", `{"height": 0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.doJSON("PUT", "/profile", `{"height": 182, "age": -1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 182, s.store.Profile().Height)
}

func TestHandler_Profile_photoTooLarge(t *testing.T) {
	s := newHandlerTestSetup(t)

	hugePhoto := strings.Repeat("a", maxPhotoBytes+1)
	rr := s.doJSON("PUT", "/profile", fmt.Sprintf(`{"height": 182, "photo": %q}`, hugePhoto))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	// profile untouched by the rejected update
	assert.Equal(t, DefaultHeight, s.store.Profile().Height)
	assert.Empty(t, s.store.Profile().Photo)
}

func TestHandler_Reset(t *testing.T) {
	s := newHandlerTestSetup(t)
	ctx := context.Background()
	s.store.AddWeight(ctx, 82.5, "2024-03-01")
	s.store.AddWater(ctx, 500, "2024-03-01")
	s.store.UpdateProfile(ctx, UserProfile{Height: 182})

	rr := s.do("POST", "/reset")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Empty(t, s.store.Weights())
	assert.Empty(t, s.store.Waters())
	assert.Empty(t, s.store.Aerobics())
	assert.Equal(t, DefaultHeight, s.store.Profile().Height)
}
