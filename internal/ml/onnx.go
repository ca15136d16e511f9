package ml

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide ONNX Runtime environment.
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes ONNX Runtime. Only the first call has any effect, so
// the library path of the first model loaded wins.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// onnxRegressor runs a single-output regression graph exported to ONNX
// (for example a converted random forest). The graph takes one float
// tensor of shape [batch, features].
type onnxRegressor struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	numFeatures int
}

func loadONNX(modelPath, libPath string) (*onnxRegressor, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime from %s: %w", libPath, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 input tensor, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	dims := inputs[0].Dimensions
	if len(dims) != 2 || dims[1] <= 0 {
		return nil, fmt.Errorf("onnx: expected input shape [batch, features], got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: failed to set intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("onnx: failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &onnxRegressor{
		session:     session,
		inputName:   inputs[0].Name,
		outputName:  outputs[0].Name,
		numFeatures: int(dims[1]),
	}, nil
}

func (o *onnxRegressor) Predict(features []float64) (float64, error) {
	if len(features) != o.numFeatures {
		return 0, fmt.Errorf("onnx: expected %d features, got %d", o.numFeatures, len(features))
	}

	row := make([]float32, len(features))
	for i, f := range features {
		row[i] = float32(f)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(o.numFeatures)), row)
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := o.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("onnx: inference failed: %w", err)
	}

	data := out.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("onnx: empty output")
	}
	return float64(data[0]), nil
}

func (o *onnxRegressor) NumFeatures() int { return o.numFeatures }

// FeatureNames is nil: the graph only records its input tensor name.
func (o *onnxRegressor) FeatureNames() []string { return nil }

func (o *onnxRegressor) Close() error {
	return o.session.Destroy()
}
