package ml

import (
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                sync.Mutex
	predictions       int
	failures          int
	schemaErrors      int
	latencyCount      int
	modelAge          float64
	charges           []float64
	unknownCategories map[string]int
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLSchemaErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemaErrors++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyCount++
}

func (m *MockMetrics) MLChargeObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges = append(m.charges, v)
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLUnknownCategoryInc(attribute string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unknownCategories == nil {
		m.unknownCategories = make(map[string]int)
	}
	m.unknownCategories[attribute]++
}

// stubRegressor returns a fixed output and counts calls.
type stubRegressor struct {
	mu     sync.Mutex
	n      int
	names  []string
	out    float64
	err    error
	calls  int
	closed bool
}

func (s *stubRegressor) Predict(features []float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.out, s.err
}

func (s *stubRegressor) NumFeatures() int       { return s.n }
func (s *stubRegressor) FeatureNames() []string { return s.names }

func (s *stubRegressor) Close() error {
	s.closed = true
	return nil
}

const fixtureForestPath = "testdata/fixture_forest.json"
