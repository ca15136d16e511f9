package ml

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"insurance-charge/internal/features"

	"github.com/rs/zerolog/log"
)

// FeatureStats summarizes the values one column has taken in served requests.
type FeatureStats struct {
	Name              string    `json:"name"`
	Count             int64     `json:"count"`
	Mean              float64   `json:"mean"`
	StandardDeviation float64   `json:"standard_deviation"`
	Min               float64   `json:"min"`
	Max               float64   `json:"max"`
	LastUpdated       time.Time `json:"last_updated"`

	m2 float64 // sum of squared deviations (Welford)
}

// featureStatsFile is the on-disk form; m2 is unexported so it is carried
// separately.
type featureStatsFile struct {
	FeatureStats
	M2 float64 `json:"m2"`
}

// FeatureMonitor tracks the distribution of encoded features across served
// predictions so operators can spot inputs drifting away from the training
// population.
type FeatureMonitor struct {
	mu       sync.RWMutex
	stats    [features.NumFeatures]*FeatureStats
	savePath string
}

// NewFeatureMonitor creates a monitor. When savePath is set, previously
// saved statistics are loaded from it.
func NewFeatureMonitor(savePath string) *FeatureMonitor {
	fm := &FeatureMonitor{savePath: savePath}
	fm.reset()

	if savePath != "" {
		if err := fm.Load(); err != nil {
			log.Warn().Err(err).Str("path", savePath).Msg("failed to load feature statistics")
		}
	}
	return fm
}

func (fm *FeatureMonitor) reset() {
	for i, name := range features.Schema {
		fm.stats[i] = &FeatureStats{
			Name: name,
			Min:  math.Inf(1),
			Max:  math.Inf(-1),
		}
	}
}

// Observe records one encoded vector.
func (fm *FeatureMonitor) Observe(v features.Vector) {
	now := time.Now().UTC()

	fm.mu.Lock()
	defer fm.mu.Unlock()

	for i, value := range v {
		s := fm.stats[i]
		s.Count++

		delta := value - s.Mean
		s.Mean += delta / float64(s.Count)
		s.m2 += delta * (value - s.Mean)
		if s.Count > 1 {
			s.StandardDeviation = math.Sqrt(s.m2 / float64(s.Count-1))
		}

		s.Min = math.Min(s.Min, value)
		s.Max = math.Max(s.Max, value)
		s.LastUpdated = now
	}
}

// Snapshot returns a copy of the statistics in Schema order. Columns with
// no observations report zero min and max.
func (fm *FeatureMonitor) Snapshot() []FeatureStats {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]FeatureStats, len(fm.stats))
	for i, s := range fm.stats {
		out[i] = *s
		if s.Count == 0 {
			out[i].Min, out[i].Max = 0, 0
		}
	}
	return out
}

// Reset discards all observations.
func (fm *FeatureMonitor) Reset() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.reset()
}

// Save writes the statistics to the monitor's save path.
func (fm *FeatureMonitor) Save() error {
	if fm.savePath == "" {
		return nil
	}

	fm.mu.RLock()
	records := make([]featureStatsFile, 0, len(fm.stats))
	for _, s := range fm.stats {
		if s.Count == 0 {
			continue
		}
		records = append(records, featureStatsFile{FeatureStats: *s, M2: s.m2})
	}
	fm.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(fm.savePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fm.savePath, data, 0o600)
}

// Load replaces the statistics with those saved at the monitor's save path.
// A missing file is not an error. Columns not in the current Schema are
// ignored.
func (fm *FeatureMonitor) Load() error {
	if fm.savePath == "" {
		return nil
	}

	data, err := os.ReadFile(fm.savePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var records []featureStatsFile
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.reset()
	for _, r := range records {
		for i, name := range features.Schema {
			if r.Name == name {
				s := r.FeatureStats
				s.m2 = r.M2
				fm.stats[i] = &s
			}
		}
	}
	return nil
}
