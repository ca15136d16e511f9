// Package metrics provides Prometheus metrics collection for the charge
// predictor. It defines the prediction, failure, latency and model metrics
// exposed on the /metrics endpoint of the model server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	Predictions       prometheus.Counter     // Successful charge predictions
	Failures          prometheus.Counter     // Failed prediction requests of any kind
	SchemaErrors      prometheus.Counter     // Requests rejected for schema mismatch
	UnknownCategories *prometheus.CounterVec // Unrecognized category values, by attribute
	Latency           prometheus.Histogram   // End-to-end Predict latency
	Charges           prometheus.Histogram   // Distribution of predicted charges in dollars
	ModelAge          prometheus.Gauge       // Age of the loaded artifact in seconds

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// When registerer is also a Gatherer it backs ErrorRate and Gatherer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	gatherer := prometheus.DefaultGatherer
	if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "charge_predictions_total",
			Help: "Total number of successful charge predictions",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "charge_prediction_failures_total",
			Help: "Total number of failed prediction requests",
		}),
		SchemaErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "charge_schema_errors_total",
			Help: "Total number of requests rejected because the model schema does not match the encoder",
		}),
		UnknownCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "charge_unknown_categories_total",
			Help: "Total number of unrecognized categorical values encoded as the reference category",
		}, []string{"attribute"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "charge_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (encode, infer, exp)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		Charges: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "charge_predicted_dollars",
			Help:    "Distribution of predicted annual charges in dollars",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 8),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "charge_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		gatherer: gatherer,
	}
}

// Gatherer returns the registry these metrics were registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// ErrorRate returns failures / (predictions + failures), or 0 before any
// request has been served.
func (m *Metrics) ErrorRate() float64 {
	var ok, failed float64

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "charge_predictions_total":
			for _, metric := range mf.Metric {
				ok = metric.GetCounter().GetValue()
			}
		case "charge_prediction_failures_total":
			for _, metric := range mf.Metric {
				failed = metric.GetCounter().GetValue()
			}
		}
	}

	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}
