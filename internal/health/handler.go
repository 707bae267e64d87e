package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/2beens/vitalscale/internal/insight"
	"github.com/2beens/vitalscale/internal/telemetry/metrics"
	"github.com/2beens/vitalscale/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	dateLayout = "2006-01-02"

	// encoded profile photos above this size are rejected at the boundary
	maxPhotoBytes = 1 << 20

	aerobicDailyGoalMinutes = 30
	chartSeriesSize         = 15
	recentWeightsForInsight = 5
)

type insightService interface {
	Get(req insight.Request) insight.Response
}

type Handler struct {
	store    *Store
	insights insightService
	metrics  *metrics.Manager
}

func NewHandler(store *Store, insights insightService, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		store:    store,
		insights: insights,
		metrics:  metricsManager,
	}
}

type AddWeightRequest struct {
	Weight float64 `json:"weight"`
	Date   string  `json:"date"`
}

type AddWaterRequest struct {
	Amount int    `json:"amount"`
	Date   string `json:"date"`
}

type AddAerobicRequest struct {
	Distance float64 `json:"distance"`
	Duration int     `json:"duration"`
	Date     string  `json:"date"`
}

type DeleteEntryResponse struct {
	DeletedID string `json:"deletedId"`
	Deleted   bool   `json:"deleted"`
}

type ListWeightsResponse struct {
	Weights []WeightEntry `json:"weights"`
	Total   int           `json:"total"`
}

type ListWatersResponse struct {
	Waters []WaterEntry `json:"waters"`
	Total  int          `json:"total"`
}

type ListAerobicsResponse struct {
	Aerobics []AerobicEntry `json:"aerobics"`
	Total    int            `json:"total"`
}

type DailyWaterResponse struct {
	Date    string `json:"date"`
	TotalMl int    `json:"totalMl"`
}

type DailyAerobicResponse struct {
	Date       string  `json:"date"`
	Minutes    int     `json:"minutes"`
	DistanceKm float64 `json:"distanceKm"`
}

type DashboardResponse struct {
	LatestWeight         float64       `json:"latestWeight"`
	WeightTrend          float64       `json:"weightTrend"`
	BMI                  BMIResult     `json:"bmi"`
	WaterTodayMl         int           `json:"waterTodayMl"`
	AerobicMinutesToday  int           `json:"aerobicMinutesToday"`
	AerobicDistanceToday float64       `json:"aerobicDistanceToday"`
	AerobicGoalMinutes   int           `json:"aerobicGoalMinutes"`
	AerobicProgress      float64       `json:"aerobicProgress"`
	Chart                []WeightEntry `json:"chart"`
	Profile              UserProfile   `json:"profile"`
}

// SetupRoutes registers all health tracking routes on the given router
func (handler *Handler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/weights", handler.HandleAddWeight).Methods("POST", "OPTIONS").Name("new-weight")
	r.HandleFunc("/weights", handler.HandleListWeights).Methods("GET", "OPTIONS").Name("list-weights")
	r.HandleFunc("/weights/{id}", handler.HandleDeleteWeight).Methods("DELETE", "OPTIONS").Name("remove-weight")

	r.HandleFunc("/waters", handler.HandleAddWater).Methods("POST", "OPTIONS").Name("new-water")
	r.HandleFunc("/waters", handler.HandleListWaters).Methods("GET", "OPTIONS").Name("list-waters")
	r.HandleFunc("/waters/{id}", handler.HandleDeleteWater).Methods("DELETE", "OPTIONS").Name("remove-water")
	r.HandleFunc("/waters/daily/{date}", handler.HandleDailyWater).Methods("GET", "OPTIONS").Name("daily-water")

	r.HandleFunc("/aerobics", handler.HandleAddAerobic).Methods("POST", "OPTIONS").Name("new-aerobic")
	r.HandleFunc("/aerobics", handler.HandleListAerobics).Methods("GET", "OPTIONS").Name("list-aerobics")
	r.HandleFunc("/aerobics/{id}", handler.HandleDeleteAerobic).Methods("DELETE", "OPTIONS").Name("remove-aerobic")
	r.HandleFunc("/aerobics/daily/{date}", handler.HandleDailyAerobic).Methods("GET", "OPTIONS").Name("daily-aerobic")

	r.HandleFunc("/bmi", handler.HandleBMI).Methods("GET", "OPTIONS").Name("get-bmi")
	r.HandleFunc("/dashboard", handler.HandleDashboard).Methods("GET", "OPTIONS").Name("get-dashboard")
	r.HandleFunc("/insight", handler.HandleInsight).Methods("GET", "OPTIONS").Name("get-insight")

	r.HandleFunc("/profile", handler.HandleGetProfile).Methods("GET", "OPTIONS").Name("get-profile")
	r.HandleFunc("/profile", handler.HandleUpdateProfile).Methods("PUT", "OPTIONS").Name("update-profile")
	r.HandleFunc("/reset", handler.HandleReset).Methods("POST", "OPTIONS").Name("reset")
}

func validDate(date string) bool {
	if date == "" {
		return false
	}
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

func (handler *Handler) HandleAddWeight(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var addReq AddWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&addReq); err != nil {
		log.Tracef("new weight, unmarshal json params: %s", err)
		http.Error(w, "add weight failed", http.StatusBadRequest)
		return
	}

	if addReq.Weight <= 0 {
		http.Error(w, "error, weight must be positive", http.StatusBadRequest)
		return
	}
	if !validDate(addReq.Date) {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	added := handler.store.AddWeight(r.Context(), addReq.Weight, addReq.Date)
	handler.metrics.CounterEntriesAdded.WithLabelValues("weight").Inc()

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal new weight entry: %s", err)
		http.Error(w, "error, failed to add new weight entry", http.StatusInternalServerError)
		return
	}

	log.Debugf("new weight entry added: %s", added.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleListWeights(w http.ResponseWriter, r *http.Request) {
	weights := handler.store.Weights()
	listJson, err := json.Marshal(ListWeightsResponse{
		Weights: weights,
		Total:   len(weights),
	})
	if err != nil {
		log.Errorf("marshal weights error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteWeight(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	deleted := handler.store.DeleteWeight(r.Context(), id)
	if deleted {
		handler.metrics.CounterEntriesDeleted.WithLabelValues("weight").Inc()
	} else {
		log.Debugf("weight entry %s not found", id)
	}

	deleteRespJson, err := json.Marshal(DeleteEntryResponse{
		DeletedID: id,
		Deleted:   deleted,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleAddWater(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var addReq AddWaterRequest
	if err := json.NewDecoder(r.Body).Decode(&addReq); err != nil {
		log.Tracef("new water, unmarshal json params: %s", err)
		http.Error(w, "add water failed", http.StatusBadRequest)
		return
	}

	if addReq.Amount <= 0 {
		http.Error(w, "error, amount must be positive", http.StatusBadRequest)
		return
	}
	if !validDate(addReq.Date) {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	added := handler.store.AddWater(r.Context(), addReq.Amount, addReq.Date)
	handler.metrics.CounterEntriesAdded.WithLabelValues("water").Inc()

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal new water entry: %s", err)
		http.Error(w, "error, failed to add new water entry", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleListWaters(w http.ResponseWriter, r *http.Request) {
	waters := handler.store.Waters()
	listJson, err := json.Marshal(ListWatersResponse{
		Waters: waters,
		Total:  len(waters),
	})
	if err != nil {
		log.Errorf("marshal waters error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteWater(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	deleted := handler.store.DeleteWater(r.Context(), id)
	if deleted {
		handler.metrics.CounterEntriesDeleted.WithLabelValues("water").Inc()
	}

	deleteRespJson, err := json.Marshal(DeleteEntryResponse{
		DeletedID: id,
		Deleted:   deleted,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleDailyWater(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date := vars["date"]
	if !validDate(date) {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	dailyJson, err := json.Marshal(DailyWaterResponse{
		Date:    date,
		TotalMl: handler.store.DailyWaterTotal(date),
	})
	if err != nil {
		log.Errorf("failed to marshal daily water response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, dailyJson, http.StatusOK)
}

func (handler *Handler) HandleAddAerobic(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var addReq AddAerobicRequest
	if err := json.NewDecoder(r.Body).Decode(&addReq); err != nil {
		log.Tracef("new aerobic, unmarshal json params: %s", err)
		http.Error(w, "add aerobic failed", http.StatusBadRequest)
		return
	}

	if addReq.Distance < 0 {
		http.Error(w, "error, distance cannot be negative", http.StatusBadRequest)
		return
	}
	if addReq.Duration <= 0 {
		http.Error(w, "error, duration must be positive", http.StatusBadRequest)
		return
	}
	if !validDate(addReq.Date) {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	added := handler.store.AddAerobic(r.Context(), addReq.Distance, addReq.Duration, addReq.Date)
	handler.metrics.CounterEntriesAdded.WithLabelValues("aerobic").Inc()

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal new aerobic entry: %s", err)
		http.Error(w, "error, failed to add new aerobic entry", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleListAerobics(w http.ResponseWriter, r *http.Request) {
	aerobics := handler.store.Aerobics()
	listJson, err := json.Marshal(ListAerobicsResponse{
		Aerobics: aerobics,
		Total:    len(aerobics),
	})
	if err != nil {
		log.Errorf("marshal aerobics error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteAerobic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	deleted := handler.store.DeleteAerobic(r.Context(), id)
	if deleted {
		handler.metrics.CounterEntriesDeleted.WithLabelValues("aerobic").Inc()
	}

	deleteRespJson, err := json.Marshal(DeleteEntryResponse{
		DeletedID: id,
		Deleted:   deleted,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleDailyAerobic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date := vars["date"]
	if !validDate(date) {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	minutes, distance := handler.store.DailyAerobicTotals(date)
	dailyJson, err := json.Marshal(DailyAerobicResponse{
		Date:       date,
		Minutes:    minutes,
		DistanceKm: distance,
	})
	if err != nil {
		log.Errorf("failed to marshal daily aerobic response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, dailyJson, http.StatusOK)
}

func (handler *Handler) HandleBMI(w http.ResponseWriter, r *http.Request) {
	bmiJson, err := json.Marshal(handler.store.BMI())
	if err != nil {
		log.Errorf("failed to marshal bmi result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, bmiJson, http.StatusOK)
}

func (handler *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	today := time.Now().Format(dateLayout)
	waterToday := handler.store.DailyWaterTotal(today)
	aerobicMinutes, aerobicDistance := handler.store.DailyAerobicTotals(today)

	var latestWeight float64
	if weights := handler.store.RecentWeights(1); len(weights) > 0 {
		latestWeight = weights[0].Weight
	}

	dashboardJson, err := json.Marshal(DashboardResponse{
		LatestWeight:         latestWeight,
		WeightTrend:          handler.store.WeightTrend(),
		BMI:                  handler.store.BMI(),
		WaterTodayMl:         waterToday,
		AerobicMinutesToday:  aerobicMinutes,
		AerobicDistanceToday: aerobicDistance,
		AerobicGoalMinutes:   aerobicDailyGoalMinutes,
		AerobicProgress:      roundToOneDecimal(float64(aerobicMinutes) / aerobicDailyGoalMinutes * 100),
		Chart:                handler.store.ChartSeries(chartSeriesSize),
		Profile:              handler.store.Profile(),
	})
	if err != nil {
		log.Errorf("failed to marshal dashboard response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, dashboardJson, http.StatusOK)
}

func (handler *Handler) HandleInsight(w http.ResponseWriter, r *http.Request) {
	recentWeights := handler.store.RecentWeights(recentWeightsForInsight)
	if len(recentWeights) == 0 {
		// nothing to analyze yet, the collaborator is not invoked
		respJson, err := json.Marshal(insight.Response{
			State: insight.StateIdle,
			Text:  insight.MessageNoWeights,
		})
		if err != nil {
			log.Errorf("failed to marshal insight response: %s", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
		return
	}

	bmi := handler.store.BMI()
	samples := make([]insight.WeightSample, 0, len(recentWeights))
	for _, weightEntry := range recentWeights {
		samples = append(samples, insight.WeightSample{
			Weight: weightEntry.Weight,
			Date:   weightEntry.Date,
		})
	}

	handler.metrics.CounterInsightRequests.Inc()

	resp := handler.insights.Get(insight.Request{
		BMIValue:    bmi.Value,
		BMICategory: string(bmi.Category),
		Weights:     samples,
	})
	// an empty generation resolves with a fallback text too, not only failures
	switch resp.Text {
	case insight.FallbackRequestFailed, insight.FallbackEmptyResponse:
		handler.metrics.CounterInsightFallbacks.Inc()
	}

	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("failed to marshal insight response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	profileJson, err := json.Marshal(handler.store.Profile())
	if err != nil {
		log.Errorf("failed to marshal profile: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, profileJson, http.StatusOK)
}

func (handler *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var profile UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		log.Tracef("update profile, unmarshal json params: %s", err)
		http.Error(w, "update profile failed", http.StatusBadRequest)
		return
	}

	if profile.Height <= 0 {
		http.Error(w, "error, height must be positive", http.StatusBadRequest)
		return
	}
	if profile.Age != nil && *profile.Age <= 0 {
		http.Error(w, "error, age must be positive", http.StatusBadRequest)
		return
	}
	if profile.TargetWeight != nil && *profile.TargetWeight <= 0 {
		http.Error(w, "error, target weight must be positive", http.StatusBadRequest)
		return
	}
	if len(profile.Photo) > maxPhotoBytes {
		// the stored profile stays unchanged
		http.Error(w, "error, profile photo too large", http.StatusRequestEntityTooLarge)
		return
	}

	handler.store.UpdateProfile(r.Context(), profile)

	profileJson, err := json.Marshal(handler.store.Profile())
	if err != nil {
		log.Errorf("failed to marshal updated profile: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("profile updated, height: %d", profile.Height)
	pkg.WriteJSONResponseOK(w, string(profileJson))
}

func (handler *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	handler.store.Reset(r.Context())
	log.Warnln("health store reset, all collections cleared")
	pkg.WriteJSONResponseOK(w, `{"reset":true}`)
}
