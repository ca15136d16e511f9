package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"insurance-charge/internal/features"
	"insurance-charge/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, p *Predictor, config ServerConfig) *httptest.Server {
	t.Helper()
	if config.Gatherer == nil {
		config.Gatherer = prometheus.NewRegistry()
	}
	ts := httptest.NewServer(NewModelServer(p, config).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Predict(t *testing.T) {
	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{})

	resp := postJSON(t, ts.URL+"/predict", PredictionRequest{RawRecord: exampleCustomer(), RequestID: "req-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out PredictionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.Equal(t, "req-1", out.RequestID)
	assert.Empty(t, out.QuoteID)
	assert.InDelta(t, 29732.618852891435, out.Charge, 1e-6)
	assert.InDelta(t, 10.3, out.LogCharge, 1e-12)
	assert.Len(t, out.Features, features.NumFeatures)
	assert.Equal(t, 1065.0, out.Features[features.ColBMIAgeInteraction])
	assert.Equal(t, 1.0, out.Features[features.ColIsObese])
	assert.Equal(t, "unknown", out.ModelVersion)
}

func TestServer_PredictGeneratesRequestID(t *testing.T) {
	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{})

	resp := postJSON(t, ts.URL+"/predict", exampleCustomer())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out PredictionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.RequestID, 36)
}

func TestServer_PredictUnknownCategory(t *testing.T) {
	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{})

	rec := exampleCustomer()
	rec.Region = "Southeast"
	resp := postJSON(t, ts.URL+"/predict", rec)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out PredictionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{features.AttrRegion}, out.UnknownCategories)
	assert.Zero(t, out.Features[features.ColRegionSoutheast])
}

func TestServer_PredictErrors(t *testing.T) {
	strict := newFixturePredictor(t, WithInputValidation(true))
	mismatched, err := NewPredictor(&stubRegressor{n: 8, out: 9})
	require.NoError(t, err)

	tests := []struct {
		name      string
		predictor *Predictor
		method    string
		body      string
		status    int
	}{
		{"malformed json", newFixturePredictor(t), http.MethodPost, `{"age": 30,`, http.StatusBadRequest},
		{"wrong type", newFixturePredictor(t), http.MethodPost, `{"age": "thirty"}`, http.StatusBadRequest},
		{"wrong method", newFixturePredictor(t), http.MethodGet, ``, http.StatusMethodNotAllowed},
		{"strict out of range", strict, http.MethodPost, `{"age": 150, "sex": "male", "bmi": 30, "children": 0, "smoker": "no", "region": "northeast"}`, http.StatusBadRequest},
		{"schema mismatch", mismatched, http.MethodPost, `{"age": 30, "sex": "male", "bmi": 30, "children": 0, "smoker": "no", "region": "northeast"}`, http.StatusUnprocessableEntity},
		{"overflowing interaction", newFixturePredictor(t), http.MethodPost, `{"age": 100, "sex": "male", "bmi": 1e307, "children": 0, "smoker": "no", "region": "northeast"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.predictor, ServerConfig{})

			req, err := http.NewRequest(tt.method, ts.URL+"/predict", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			var out ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestServer_ReadOnlyRoutesRejectWrites(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p := newFixturePredictor(t, WithFeatureMonitor(NewFeatureMonitor("")))
	ts := newTestServer(t, p, ServerConfig{Store: store})

	for _, path := range []string{"/health", "/model/info", "/model/features", "/quotes"} {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			t.Run(method+" "+path, func(t *testing.T) {
				req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(`{}`))
				require.NoError(t, err)
				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				defer resp.Body.Close()

				assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
				assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))

				var out ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
				assert.Equal(t, "method not allowed", out.Error)
			})
		}
	}
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"charge": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Error)
}

func TestServer_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := newTestServer(t, newFixturePredictor(t), ServerConfig{})

		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health HealthStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.True(t, health.Healthy)
		assert.True(t, health.ModelLoaded)
		assert.True(t, health.SchemaCompatible)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		p, err := NewPredictor(&stubRegressor{n: 12})
		require.NoError(t, err)
		ts := newTestServer(t, p, ServerConfig{})

		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var health HealthStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.False(t, health.SchemaCompatible)
		assert.Contains(t, health.SchemaError, "12")
	})
}

func TestServer_HealthErrorRate(t *testing.T) {
	p := newFixturePredictor(t, WithInputValidation(true))
	ms := NewModelServer(p, ServerConfig{Gatherer: prometheus.NewRegistry()})

	bad := exampleCustomer()
	bad.Age = 5
	_, _ = p.Predict(context.Background(), exampleCustomer())
	_, _ = p.Predict(context.Background(), bad)

	health := ms.Health()
	assert.Equal(t, int64(1), health.PredictionCount)
	assert.Equal(t, int64(1), health.FailureCount)
	assert.InDelta(t, 0.5, health.ErrorRate, 1e-12)
}

func TestServer_ModelInfo(t *testing.T) {
	md, err := LoadModelMetadata(fixtureForestPath)
	require.NoError(t, err)
	ts := newTestServer(t, newFixturePredictor(t, WithMetadata(md)), ServerConfig{})

	resp, err := http.Get(ts.URL + "/model/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info ModelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "fixture-2026.1", info.Version)
	assert.Equal(t, "random_forest_regressor", info.Algorithm)
	assert.Equal(t, 10, info.NumFeatures)
	assert.Equal(t, features.Schema[:], info.Schema)
	assert.Equal(t, features.Schema[:], info.ModelFeatures)
}

func TestServer_Quotes(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{Store: store})

	var quoteIDs []string
	for i := 0; i < 3; i++ {
		rec := exampleCustomer()
		rec.Age = 30 + i
		resp := postJSON(t, ts.URL+"/predict", rec)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out PredictionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.NotEmpty(t, out.QuoteID)
		quoteIDs = append(quoteIDs, out.QuoteID)
	}

	resp, err := http.Get(ts.URL + "/quotes?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var quotes []storage.QuoteRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quotes))
	require.Len(t, quotes, 2)
	assert.Equal(t, quoteIDs[2], quotes[0].ID)
	assert.Equal(t, 32, quotes[0].Input.Age)
	assert.Len(t, quotes[0].Features, features.NumFeatures)

	stored, err := store.GetQuote(quoteIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Input.Age)
}

func TestServer_QuotesErrors(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		ts := newTestServer(t, newFixturePredictor(t), ServerConfig{})
		resp, err := http.Get(ts.URL + "/quotes")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{Store: store})

	for _, limit := range []string{"abc", "0", "-3"} {
		t.Run("limit "+limit, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/quotes?limit=" + limit)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	t.Run("empty history", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/quotes")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var quotes []storage.QuoteRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&quotes))
		assert.NotNil(t, quotes)
		assert.Empty(t, quotes)
	})
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_total", Help: "fixture"})
	reg.MustRegister(counter)
	counter.Add(3)

	ts := newTestServer(t, newFixturePredictor(t), ServerConfig{Gatherer: reg})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fixture_total 3")
}
