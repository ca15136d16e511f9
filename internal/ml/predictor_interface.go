// Package ml loads the pre-trained insurance charge model and serves
// predictions from it. It includes the artifact loader with tree-ensemble
// and ONNX backends, the Predictor that ties feature encoding to inference,
// and an HTTP model server.
//
// A model artifact is loaded once at startup and is read-only afterwards,
// so a single Regressor may be shared by any number of goroutines.
package ml

// Regressor is a loaded model artifact. Predict returns the model's raw
// output, which for the charge model is log(charge).
type Regressor interface {
	// Predict scores a single feature row.
	Predict(features []float64) (float64, error)

	// NumFeatures is the row width the model was fitted on.
	NumFeatures() int

	// FeatureNames returns the training-time column names, or nil when the
	// artifact does not record them.
	FeatureNames() []string

	// Close releases any native resources held by the model.
	Close() error
}
