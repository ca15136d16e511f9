package common

import "time"

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvModelPath      = "MODEL_PATH"
	EnvInstallRoot    = "INSTALL_ROOT"
	EnvONNXLibPath    = "ONNX_LIB_PATH"
	EnvDataPath       = "DATA_PATH"
	EnvServerPort     = "SERVER_PORT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvStrictInput    = "STRICT_INPUT"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvServerURL      = "SERVER_URL"
)

// Configuration defaults
const (
	DefaultModelPath      = "models/insurance_forest.json"
	DefaultServerPort     = 8080
	DefaultLogLevel       = "info"
	DefaultStrictInput    = false
	DefaultRequestTimeout = 5 * time.Second
	DefaultServerURL      = "http://localhost:8080"
	DefaultEnvFile        = ".env"
)

// File names under the model and data directories
const (
	ModelMetadataFile  = "model_metadata.json"
	ONNXRuntimeLibFile = "libonnxruntime.so"
	QuoteDBFile        = "quotes.db"
	FeatureStatsFile   = "feature_stats.json"
)

// Validation limits
const (
	MinServerPort     = 1024
	MaxServerPort     = 65535
	MinRequestTimeout = 100 * time.Millisecond
	MaxRequestTimeout = time.Minute
)
