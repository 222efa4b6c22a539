package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"heartfail/apperr"
	"heartfail/classify"
	"heartfail/dataset"
	"heartfail/db"
	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
	"heartfail/report"
)

type Classifier interface {
	Classify(ctx context.Context, m ml.Measurements) (*classify.Result, error)
	Report(m ml.Measurements) (report.Report, error)
}

type DatasetSource interface {
	Dataset(ctx context.Context) (*dataset.Dataset, error)
}

type ModelStatus interface {
	Loaded() bool
}

var (
	depsMu      sync.RWMutex
	classifier  Classifier
	datasets    DatasetSource
	modelStatus ModelStatus
	liveHub     *LiveHub
	pageSize    = 50
)

func SetClassifier(c Classifier) {
	depsMu.Lock()
	defer depsMu.Unlock()
	classifier = c
}

func SetDatasetSource(d DatasetSource) {
	depsMu.Lock()
	defer depsMu.Unlock()
	datasets = d
}

func SetModelStatus(s ModelStatus) {
	depsMu.Lock()
	defer depsMu.Unlock()
	modelStatus = s
}

func SetPageSize(n int) {
	depsMu.Lock()
	defer depsMu.Unlock()
	if n > 0 {
		pageSize = n
	}
}

func currentClassifier() (Classifier, error) {
	depsMu.RLock()
	defer depsMu.RUnlock()
	if classifier == nil {
		return nil, apperr.ModelUnavailable(errors.New("classifier not configured"))
	}
	return classifier, nil
}

func currentDatasets() DatasetSource {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return datasets
}

func modelLoaded() bool {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return modelStatus != nil && modelStatus.Loaded()
}

func defaultPageSize() int {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return pageSize
}

var knownRoutes = map[string]bool{}

// handle registers a route and remembers its path for metric labels.
func handle(mux *http.ServeMux, method, path string, h http.HandlerFunc) {
	knownRoutes[path] = true
	mux.HandleFunc(method+" "+path, h)
}

func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

func RegisterHandlers(mux *http.ServeMux) {
	handle(mux, http.MethodGet, "/api/health", handleHealth)
	handle(mux, http.MethodPost, "/api/predict", handlePredict)
	handle(mux, http.MethodPost, "/api/report", handleReport)
	handle(mux, http.MethodGet, "/api/dataset", handleDataset)
	handle(mux, http.MethodGet, "/api/predictions", handlePredictions)
	handle(mux, http.MethodGet, "/api/training", handleTraining)
	knownRoutes["/metrics"] = true
	mux.Handle("GET /metrics", monitoring.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": modelLoaded(),
		"history":      db.Initialized(),
		"live_clients": liveClients(),
	})
}

func liveClients() int {
	depsMu.RLock()
	hub := liveHub
	depsMu.RUnlock()
	if hub == nil {
		return 0
	}
	return hub.Clients()
}

type predictResponse struct {
	ID           string              `json:"id"`
	Label        int                 `json:"label"`
	Result       string              `json:"result"`
	Confidence   float64             `json:"confidence"`
	Features     ml.ClinicalFeatures `json:"features"`
	Scaler       string              `json:"scaler"`
	ModelVersion string              `json:"model_version"`
	Report       report.Report       `json:"report"`
}

func newPredictResponse(result *classify.Result) predictResponse {
	return predictResponse{
		ID:           result.ID,
		Label:        result.Label,
		Result:       result.Result,
		Confidence:   result.Confidence,
		Features:     result.Features,
		Scaler:       result.Scaler,
		ModelVersion: result.ModelVersion,
		Report:       result.Report,
	}
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMeasurements(r.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	svc, err := currentClassifier()
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := svc.Classify(r.Context(), m)
	if err != nil {
		logRequestError(r, "classification failed", err)
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPredictResponse(result))
}

func handleReport(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMeasurements(r.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	svc, err := currentClassifier()
	if err != nil {
		respondError(w, err)
		return
	}
	rep, err := svc.Report(m)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func handleDataset(w http.ResponseWriter, r *http.Request) {
	source := currentDatasets()
	if source == nil {
		respondError(w, apperr.NotFound("dataset not configured"))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize())
	if err != nil {
		respondError(w, err)
		return
	}

	ds, err := source.Dataset(r.Context())
	if err != nil {
		logRequestError(r, "loading dataset", err)
		respondError(w, apperr.Upstream("dataset unavailable", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"source":  ds.Source,
		"columns": ds.Columns,
		"total":   ds.Len(),
		"offset":  offset,
		"limit":   limit,
		"records": ds.Page(offset, limit),
	})
}

func handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondError(w, err)
		return
	}
	predictions, err := db.QueryPredictions(limit)
	if errors.Is(err, db.ErrNotInitialized) {
		respondJSON(w, http.StatusOK, map[string]any{"enabled": false, "predictions": []db.Prediction{}})
		return
	}
	if err != nil {
		respondError(w, apperr.Internal(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"enabled": true, "predictions": predictions})
}

// handleTraining lists the runs recorded by train_model, newest first.
func handleTraining(w http.ResponseWriter, r *http.Request) {
	runs, err := db.LoadTrainingLog()
	if errors.Is(err, db.ErrNotInitialized) {
		respondJSON(w, http.StatusOK, map[string]any{"enabled": false, "runs": []db.TrainingLog{}})
		return
	}
	if err != nil {
		respondError(w, apperr.Internal(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"enabled": true, "runs": runs})
}

// decodeMeasurements fills the form defaults first so a partial body only
// overrides what it names.
func decodeMeasurements(body io.Reader) (ml.Measurements, error) {
	m := ml.DefaultMeasurements()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return m, apperr.New("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge)
		}
		return m, apperr.BadRequest("invalid JSON body", err)
	}
	return m, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.BadRequest(fmt.Sprintf("%s must be a non-negative integer", key), err)
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.Warn("encoding response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	respondJSON(w, appErr.StatusCode, map[string]any{"error": appErr})
}

func logRequestError(r *http.Request, msg string, err error) {
	log := logger.WithRequestID(GetRequestID(r.Context()))
	if apperr.StatusCode(err) >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
		return
	}
	log.Info(msg, zap.Error(err))
}
