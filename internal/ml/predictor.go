package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"insurance-charge/internal/features"

	"github.com/rs/zerolog/log"
)

var (
	// ErrIncompatibleSchema is returned when the encoded vector does not
	// match the columns the loaded model was trained on.
	ErrIncompatibleSchema = errors.New("incompatible feature schema")
	// ErrInvalidInput is returned in strict mode for out-of-range records.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNonFiniteFeature is returned when a record encodes to a NaN or
	// infinite column, for example a bmi large enough to overflow
	// bmi_age_interaction.
	ErrNonFiniteFeature = errors.New("non-finite feature value")
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLSchemaErrorsInc()
	MLLatencyObserve(float64)
	MLChargeObserve(float64)
	MLModelAgeSet(float64)
	MLUnknownCategoryInc(attribute string)
}

// SchemaError details a mismatch between the encoder and the model.
type SchemaError struct {
	ExpectedCount int
	ActualCount   int
	Expected      []string
	Actual        []string
}

func (e *SchemaError) Error() string {
	if e.ExpectedCount != e.ActualCount {
		return fmt.Sprintf("%s: encoder produces %d features, model expects %d",
			ErrIncompatibleSchema, e.ExpectedCount, e.ActualCount)
	}
	return fmt.Sprintf("%s: encoder columns [%s], model columns [%s]",
		ErrIncompatibleSchema, strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrIncompatibleSchema }

// CheckSchema compares a model's expected input with the encoder Schema.
// Models that do not record column names are checked by width only.
func CheckSchema(model Regressor) error {
	expected := features.Schema[:]
	if model.NumFeatures() != features.NumFeatures {
		return &SchemaError{
			ExpectedCount: features.NumFeatures,
			ActualCount:   model.NumFeatures(),
			Expected:      expected,
			Actual:        model.FeatureNames(),
		}
	}

	names := model.FeatureNames()
	if names == nil {
		return nil
	}
	for i, name := range names {
		if name != expected[i] {
			return &SchemaError{
				ExpectedCount: features.NumFeatures,
				ActualCount:   len(names),
				Expected:      expected,
				Actual:        names,
			}
		}
	}
	return nil
}

// Prediction is the result of one Predict call.
type Prediction struct {
	// Charge is the predicted annual charge in dollars.
	Charge float64
	// LogCharge is the model's raw output; Charge == exp(LogCharge).
	LogCharge         float64
	Features          features.Vector
	UnknownCategories []string
}

// Predictor encodes applicant records, scores them with the loaded model and
// converts the log-space output back to dollars. All of its state is fixed
// after construction apart from counters, so it is safe for concurrent use.
type Predictor struct {
	model         Regressor
	metadata      *ModelMetadata
	metrics       MetricsInterface
	monitor       *FeatureMonitor
	validateInput bool
	schemaErr     error
	modelCreated  time.Time
	startTime     time.Time

	predictions atomic.Int64
	failures    atomic.Int64
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithMetrics attaches a metrics sink.
func WithMetrics(m MetricsInterface) Option {
	return func(p *Predictor) { p.metrics = m }
}

// WithFeatureMonitor records every successfully scored vector in fm.
func WithFeatureMonitor(fm *FeatureMonitor) Option {
	return func(p *Predictor) { p.monitor = fm }
}

// WithInputValidation rejects records outside the accepted input ranges
// instead of scoring them as given.
func WithInputValidation(enabled bool) Option {
	return func(p *Predictor) { p.validateInput = enabled }
}

// WithMetadata attaches training metadata for reporting.
func WithMetadata(md *ModelMetadata) Option {
	return func(p *Predictor) {
		if md != nil {
			p.metadata = md
		}
	}
}

// WithModelCreated records the artifact's modification time for the model
// age metric.
func WithModelCreated(t time.Time) Option {
	return func(p *Predictor) { p.modelCreated = t }
}

// NewPredictor wraps an already-loaded model. A schema mismatch is not a
// construction error: it is logged here and reported on every request.
func NewPredictor(model Regressor, opts ...Option) (*Predictor, error) {
	if model == nil {
		return nil, fmt.Errorf("predictor requires a loaded model")
	}

	p := &Predictor{
		model:     model,
		metadata:  defaultMetadata(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.schemaErr = CheckSchema(model)
	if p.schemaErr != nil {
		log.Warn().Err(p.schemaErr).Msg("model schema does not match feature encoder, predictions will fail")
	}

	if p.metrics != nil && !p.modelCreated.IsZero() {
		p.metrics.MLModelAgeSet(time.Since(p.modelCreated).Seconds())
	}

	return p, nil
}

// Predict returns the charge for rec. Failures are per request and never
// affect later calls.
func (p *Predictor) Predict(ctx context.Context, rec features.RawRecord) (Prediction, error) {
	if p == nil {
		return Prediction{}, fmt.Errorf("predictor is nil")
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	select {
	case <-ctx.Done():
		return Prediction{}, p.fail(ctx.Err())
	default:
	}

	if p.validateInput {
		if err := rec.Validate(); err != nil {
			return Prediction{}, p.fail(fmt.Errorf("%w: %w", ErrInvalidInput, err))
		}
	}

	enc := features.EncodeDetailed(rec)
	for _, attr := range enc.UnknownCategories {
		if p.metrics != nil {
			p.metrics.MLUnknownCategoryInc(attr)
		}
		log.Debug().Str("attribute", attr).Interface("record", rec).Msg("unrecognized category encoded as reference")
	}

	for i, v := range enc.Vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, p.fail(fmt.Errorf("%w: %s is %v", ErrNonFiniteFeature, features.Schema[i], v))
		}
	}

	if p.schemaErr != nil {
		if p.metrics != nil {
			p.metrics.MLSchemaErrorsInc()
		}
		return Prediction{}, p.fail(p.schemaErr)
	}

	logCharge, err := p.model.Predict(enc.Vector.Slice())
	if err != nil {
		log.Error().Err(err).Interface("features", enc.Vector).Msg("model inference failed")
		return Prediction{}, p.fail(fmt.Errorf("model inference failed: %w", err))
	}
	if math.IsNaN(logCharge) || math.IsInf(logCharge, 0) {
		return Prediction{}, p.fail(fmt.Errorf("model returned non-finite output %v", logCharge))
	}

	charge := math.Exp(logCharge)
	if math.IsInf(charge, 0) {
		return Prediction{}, p.fail(fmt.Errorf("log charge %v overflows", logCharge))
	}

	p.predictions.Add(1)
	if p.metrics != nil {
		p.metrics.MLPredictionsInc()
		p.metrics.MLChargeObserve(charge)
	}
	if p.monitor != nil {
		p.monitor.Observe(enc.Vector)
	}

	log.Debug().
		Interface("features", enc.Vector).
		Float64("log_charge", logCharge).
		Float64("charge", charge).
		Msg("prediction successful")

	return Prediction{
		Charge:            charge,
		LogCharge:         logCharge,
		Features:          enc.Vector,
		UnknownCategories: enc.UnknownCategories,
	}, nil
}

func (p *Predictor) fail(err error) error {
	p.failures.Add(1)
	if p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
	return err
}

// SchemaError returns the schema mismatch detected at construction, if any.
func (p *Predictor) SchemaError() error { return p.schemaErr }

// Metadata returns the training metadata, or a placeholder when none was
// supplied.
func (p *Predictor) Metadata() ModelMetadata { return *p.metadata }

// FeatureMonitor returns the attached monitor, or nil.
func (p *Predictor) FeatureMonitor() *FeatureMonitor { return p.monitor }

// Model returns the underlying regressor.
func (p *Predictor) Model() Regressor { return p.model }

// Stats is a snapshot of the predictor's counters.
type Stats struct {
	Predictions int64
	Failures    int64
	Uptime      time.Duration
}

func (p *Predictor) Stats() Stats {
	return Stats{
		Predictions: p.predictions.Load(),
		Failures:    p.failures.Load(),
		Uptime:      time.Since(p.startTime),
	}
}
