package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"insurance-charge/internal/features"
	"insurance-charge/internal/storage"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	defaultQuoteLimit = 20
	maxQuoteLimit     = 500
	maxRequestBytes   = 1 << 16
)

// QuoteStore records served predictions.
type QuoteStore interface {
	StoreQuote(storage.QuoteRecord) (storage.QuoteRecord, error)
	RecentQuotes(limit int) ([]storage.QuoteRecord, error)
}

// ServerConfig configures a ModelServer.
type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	// Store is optional; without it quotes are not recorded and /quotes
	// answers 404.
	Store QuoteStore
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// ModelServer provides HTTP API for charge predictions
type ModelServer struct {
	predictor *Predictor
	config    ServerConfig
	server    *http.Server
}

// PredictionRequest is an applicant record plus an optional caller ID.
type PredictionRequest struct {
	features.RawRecord
	RequestID string `json:"request_id,omitempty"`
}

// PredictionResponse represents the prediction result
type PredictionResponse struct {
	RequestID         string             `json:"request_id"`
	QuoteID           string             `json:"quote_id,omitempty"`
	Charge            float64            `json:"charge"`
	LogCharge         float64            `json:"log_charge"`
	Features          map[string]float64 `json:"features"`
	UnknownCategories []string           `json:"unknown_categories,omitempty"`
	ModelVersion      string             `json:"model_version"`
	Latency           float64            `json:"latency_ms"`
	Timestamp         time.Time          `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthStatus struct {
	Healthy          bool      `json:"healthy"`
	LastCheck        time.Time `json:"last_check"`
	ModelLoaded      bool      `json:"model_loaded"`
	SchemaCompatible bool      `json:"schema_compatible"`
	SchemaError      string    `json:"schema_error,omitempty"`
	PredictionCount  int64     `json:"prediction_count"`
	FailureCount     int64     `json:"failure_count"`
	ErrorRate        float64   `json:"error_rate"`
	ModelVersion     string    `json:"model_version"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
}

// ModelInfo is served by /model/info.
type ModelInfo struct {
	Version       string    `json:"version"`
	Algorithm     string    `json:"algorithm,omitempty"`
	TrainedAt     time.Time `json:"trained_at"`
	Target        string    `json:"target,omitempty"`
	R2Score       float64   `json:"r2_score"`
	TrainingRows  int       `json:"training_rows"`
	NumFeatures   int       `json:"num_features"`
	ModelFeatures []string  `json:"model_features,omitempty"`
	Schema        []string  `json:"schema"`
}

// NewModelServer creates a new HTTP server for model serving
func NewModelServer(predictor *Predictor, config ServerConfig) *ModelServer {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	ms := &ModelServer{
		predictor: predictor,
		config:    config,
	}

	ms.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return ms
}

// Handler returns the server's routes.
func (ms *ModelServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", ms.handlePredict)
	mux.HandleFunc("/health", ms.handleHealth)
	mux.HandleFunc("/model/info", ms.handleModelInfo)
	mux.HandleFunc("/model/features", ms.handleFeatureStats)
	mux.HandleFunc("/quotes", ms.handleQuotes)
	mux.Handle("/metrics", promhttp.HandlerFor(ms.config.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	start := time.Now()

	var req PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err), "")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), ms.config.RequestTimeout)
	defer cancel()

	pred, err := ms.predictor.Predict(ctx, req.RawRecord)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, ErrIncompatibleSchema), errors.Is(err, ErrNonFiniteFeature):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("request_id", req.RequestID).Int("status", status).Msg("prediction failed")
		writeError(w, status, fmt.Sprintf("prediction failed: %v", err), req.RequestID)
		return
	}

	md := ms.predictor.Metadata()
	now := time.Now().UTC()
	resp := PredictionResponse{
		RequestID:         req.RequestID,
		Charge:            pred.Charge,
		LogCharge:         pred.LogCharge,
		Features:          pred.Features.Map(),
		UnknownCategories: pred.UnknownCategories,
		ModelVersion:      md.Version,
		Latency:           float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:         now,
	}

	if ms.config.Store != nil {
		stored, err := ms.config.Store.StoreQuote(storage.QuoteRecord{
			RequestID:         req.RequestID,
			Timestamp:         now,
			Input:             req.RawRecord,
			Features:          pred.Features.Slice(),
			UnknownCategories: pred.UnknownCategories,
			LogCharge:         pred.LogCharge,
			Charge:            pred.Charge,
			ModelVersion:      md.Version,
		})
		if err != nil {
			log.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to record quote")
		} else {
			resp.QuoteID = stored.ID
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns the current health snapshot.
func (ms *ModelServer) Health() HealthStatus {
	stats := ms.predictor.Stats()
	schemaErr := ms.predictor.SchemaError()

	var errorRate float64
	if total := stats.Predictions + stats.Failures; total > 0 {
		errorRate = float64(stats.Failures) / float64(total)
	}

	status := HealthStatus{
		Healthy:          schemaErr == nil,
		LastCheck:        time.Now().UTC(),
		ModelLoaded:      ms.predictor.Model() != nil,
		SchemaCompatible: schemaErr == nil,
		PredictionCount:  stats.Predictions,
		FailureCount:     stats.Failures,
		ErrorRate:        errorRate,
		ModelVersion:     ms.predictor.Metadata().Version,
		UptimeSeconds:    stats.Uptime.Seconds(),
	}
	if schemaErr != nil {
		status.SchemaError = schemaErr.Error()
	}
	return status
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	health := ms.Health()

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	md := ms.predictor.Metadata()
	model := ms.predictor.Model()

	info := ModelInfo{
		Version:       md.Version,
		Algorithm:     md.Algorithm,
		TrainedAt:     md.TrainedAt,
		Target:        md.Target,
		R2Score:       md.R2Score,
		TrainingRows:  md.TrainingRows,
		NumFeatures:   model.NumFeatures(),
		ModelFeatures: model.FeatureNames(),
		Schema:        features.Schema[:],
	}
	writeJSON(w, http.StatusOK, info)
}

func (ms *ModelServer) handleFeatureStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	monitor := ms.predictor.FeatureMonitor()
	if monitor == nil {
		writeError(w, http.StatusNotFound, "feature monitoring is not enabled", "")
		return
	}
	writeJSON(w, http.StatusOK, monitor.Snapshot())
}

func (ms *ModelServer) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if ms.config.Store == nil {
		writeError(w, http.StatusNotFound, "quote history is not enabled", "")
		return
	}

	limit := defaultQuoteLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v), "")
			return
		}
		limit = min(n, maxQuoteLimit)
	}

	quotes, err := ms.config.Store.RecentQuotes(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read quotes")
		writeError(w, http.StatusInternalServerError, "failed to read quotes", "")
		return
	}
	if quotes == nil {
		quotes = []storage.QuoteRecord{}
	}
	writeJSON(w, http.StatusOK, quotes)
}

// writeJSON encodes v before writing the status, so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

// allowGet answers 405 for anything but GET and HEAD.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	return false
}

func writeError(w http.ResponseWriter, status int, msg, requestID string) {
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: requestID})
}
