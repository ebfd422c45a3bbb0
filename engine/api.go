package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ftahirops/xdiag/alerting"
	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/tuner"
)

// API serves the daemon's JSON endpoints.
type API struct {
	diag    *Diagnostics
	alerts  *alerting.Engine
	tuner   *tuner.Tuner
	metrics *Metrics
	log     logging.Sink
}

// NewAPI creates the handlers. tn and metrics may be nil.
func NewAPI(diag *Diagnostics, alerts *alerting.Engine, tn *tuner.Tuner, metrics *Metrics, sink logging.Sink) *API {
	return &API{diag: diag, alerts: alerts, tuner: tn, metrics: metrics, log: logging.Safe(sink)}
}

// Router returns the routes under /api/v1 plus /metrics.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", a.getHealth).Methods(http.MethodGet)
	v1.HandleFunc("/report", a.getReport).Methods(http.MethodGet)
	v1.HandleFunc("/bottlenecks", a.getBottlenecks).Methods(http.MethodGet)
	v1.HandleFunc("/resources", a.getResources).Methods(http.MethodGet)

	v1.HandleFunc("/alerts", a.listAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", a.createAlert).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/history", a.alertHistory).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/stats", a.alertStats).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/ack", a.ackAlert).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/{id}/resolve", a.resolveAlert).Methods(http.MethodPost)

	v1.HandleFunc("/optimizations", a.optimizationStatus).Methods(http.MethodGet)
	v1.HandleFunc("/optimizations/run", a.runOptimization).Methods(http.MethodPost)
	v1.HandleFunc("/optimizations/rollback", a.rollback).Methods(http.MethodPost)
	v1.HandleFunc("/optimizations/profiles/{name}", a.applyProfile).Methods(http.MethodPost)

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.LogError("encode api response", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// alertStatus maps alerting errors onto HTTP status codes.
func alertStatus(err error) int {
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, alerting.ErrInvalidTransition), errors.Is(err, alerting.ErrSuppressed):
		return http.StatusConflict
	case errors.Is(err, alerting.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusBadRequest
}

func (a *API) getHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.diag.HealthScore())
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.diag.GenerateReport())
}

func (a *API) getBottlenecks(w http.ResponseWriter, r *http.Request) {
	bs := a.diag.Bottlenecks()
	if bs == nil {
		bs = []model.Bottleneck{}
	}
	a.writeJSON(w, http.StatusOK, bs)
}

type resourcesResponse struct {
	Current model.ResourceUsage   `json:"current"`
	Recent  []model.ResourceUsage `json:"recent"`
	Trends  []model.ResourceTrend `json:"trends"`
}

func (a *API) getResources(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, resourcesResponse{
		Current: a.diag.ResourceUsage(),
		Recent:  a.diag.RecentResources(a.diag.opts.RecentSamples),
		Trends:  a.diag.ResourceTrends(),
	})
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.alerts.Active())
}

func (a *API) alertHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	a.writeJSON(w, http.StatusOK, a.alerts.History(limit))
}

func (a *API) alertStats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.alerts.Statistics())
}

type createAlertRequest struct {
	Type     string            `json:"type"`
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
}

func (a *API) createAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	t := model.AlertCustom
	if req.Type != "" {
		parsed, err := model.ParseAlertType(req.Type)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		t = parsed
	}
	sev := model.AlertWarning
	if req.Severity != "" {
		parsed, err := model.ParseAlertSeverity(req.Severity)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		sev = parsed
	}
	if req.Message == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}
	alert, err := a.alerts.Trigger(t, sev, req.Message, req.Context)
	if err != nil {
		a.writeError(w, alertStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusCreated, alert)
}

type transitionRequest struct {
	By         string `json:"by"`
	Resolution string `json:"resolution,omitempty"`
}

func decodeTransition(r *http.Request) (transitionRequest, error) {
	var req transitionRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func (a *API) ackAlert(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransition(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.By == "" {
		req.By = "api"
	}
	alert, err := a.alerts.Acknowledge(mux.Vars(r)["id"], req.By)
	if err != nil {
		a.writeError(w, alertStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, alert)
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransition(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.By == "" {
		req.By = "api"
	}
	alert, err := a.alerts.Resolve(mux.Vars(r)["id"], req.By, req.Resolution)
	if err != nil {
		a.writeError(w, alertStatus(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, alert)
}

type optimizationResponse struct {
	Status          model.OptimizationStatus           `json:"status"`
	Recommendations []model.OptimizationRecommendation `json:"recommendations"`
	Results         []model.OptimizationResult         `json:"results"`
}

var errTunerDisabled = errors.New("tuner disabled")

func (a *API) optimizationStatus(w http.ResponseWriter, r *http.Request) {
	if a.tuner == nil {
		a.writeError(w, http.StatusServiceUnavailable, errTunerDisabled)
		return
	}
	a.writeJSON(w, http.StatusOK, optimizationResponse{
		Status:          a.tuner.Status(),
		Recommendations: a.tuner.Recommend(r.Context()),
		Results:         a.tuner.Results(10),
	})
}

func (a *API) runOptimization(w http.ResponseWriter, r *http.Request) {
	if a.tuner == nil {
		a.writeError(w, http.StatusServiceUnavailable, errTunerDisabled)
		return
	}
	res, err := a.tuner.RunOptimization(r.Context())
	if err != nil {
		a.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

type rollbackResponse struct {
	RolledBack int `json:"rolled_back"`
}

func (a *API) rollback(w http.ResponseWriter, r *http.Request) {
	if a.tuner == nil {
		a.writeError(w, http.StatusServiceUnavailable, errTunerDisabled)
		return
	}
	a.writeJSON(w, http.StatusOK, rollbackResponse{RolledBack: a.tuner.Rollback("api request")})
}

func (a *API) applyProfile(w http.ResponseWriter, r *http.Request) {
	if a.tuner == nil {
		a.writeError(w, http.StatusServiceUnavailable, errTunerDisabled)
		return
	}
	res, err := a.tuner.ApplyProfile(r.Context(), mux.Vars(r)["name"])
	switch {
	case errors.Is(err, tuner.ErrUnknownProfile):
		a.writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		a.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}
