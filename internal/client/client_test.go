package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"insurance-charge/internal/features"
	"insurance-charge/internal/ml"
	"insurance-charge/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureForestPath = "../ml/testdata/fixture_forest.json"

func exampleCustomer() features.RawRecord {
	return features.RawRecord{Age: 30, Sex: "male", BMI: 35.5, Children: 1, Smoker: "yes", Region: "southeast"}
}

func newServer(t *testing.T, opts ...ml.Option) (*Client, *storage.Store) {
	t.Helper()

	model, err := ml.LoadArtifact(fixtureForestPath, ml.LoadOptions{})
	require.NoError(t, err)
	p, err := ml.NewPredictor(model, opts...)
	require.NoError(t, err)

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ms := ml.NewModelServer(p, ml.ServerConfig{Store: store, Gatherer: prometheus.NewRegistry()})
	ts := httptest.NewServer(ms.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL+"/", time.Second), store
}

func TestClient_Predict(t *testing.T) {
	c, store := newServer(t)

	resp, err := c.Predict(context.Background(), exampleCustomer())
	require.NoError(t, err)

	assert.InDelta(t, 29732.618852891435, resp.Charge, 1e-6)
	assert.Equal(t, 1065.0, resp.Features[features.ColBMIAgeInteraction])
	assert.NotEmpty(t, resp.RequestID)
	require.NotEmpty(t, resp.QuoteID)

	stored, err := store.GetQuote(resp.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, exampleCustomer(), stored.Input)
}

func TestClient_PredictRejected(t *testing.T) {
	c, _ := newServer(t, ml.WithInputValidation(true))

	rec := exampleCustomer()
	rec.Children = 12
	_, err := c.Predict(context.Background(), rec)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "children")
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestClient_HealthAndModelInfo(t *testing.T) {
	c, _ := newServer(t)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Healthy)

	info, err := c.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, features.NumFeatures, info.NumFeatures)
	assert.Equal(t, features.Schema[:], info.Schema)
}

func TestClient_UnhealthyServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"healthy": false, "schema_compatible": false, "schema_error": "incompatible feature schema"}`))
	}))
	defer ts.Close()

	health, err := New(ts.URL, time.Second).Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, health)
	assert.False(t, health.SchemaCompatible)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestClient_Quotes(t *testing.T) {
	c, _ := newServer(t)

	for i := 0; i < 3; i++ {
		_, err := c.Predict(context.Background(), exampleCustomer())
		require.NoError(t, err)
	}

	quotes, err := c.Quotes(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)

	_, err = c.Quotes(context.Background(), -1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, 200*time.Millisecond).Predict(context.Background(), exampleCustomer())
	assert.Error(t, err)
}
