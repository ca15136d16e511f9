package metrics

// MetricsWrapper adapts Metrics to the method set the predictor calls, so
// the ml package does not import Prometheus types.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.Failures.Inc()
}

func (w *MetricsWrapper) MLSchemaErrorsInc() {
	w.m.SchemaErrors.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(seconds float64) {
	w.m.Latency.Observe(seconds)
}

func (w *MetricsWrapper) MLChargeObserve(charge float64) {
	w.m.Charges.Observe(charge)
}

func (w *MetricsWrapper) MLModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

func (w *MetricsWrapper) MLUnknownCategoryInc(attribute string) {
	w.m.UnknownCategories.WithLabelValues(attribute).Inc()
}
