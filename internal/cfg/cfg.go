package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"insurance-charge/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath      string
	InstallRoot    string
	ONNXLibPath    string
	DataPath       string
	ServerPort     int
	LogLevel       string
	StrictInput    bool
	RequestTimeout time.Duration
	// ServerURL is where the remote client sends requests.
	ServerURL string
}

type ConfigFile struct {
	Model struct {
		Path        string `yaml:"path"`
		InstallRoot string `yaml:"installRoot"`
		ONNXLibPath string `yaml:"onnxLibPath"`
	} `yaml:"model"`

	Server struct {
		Port           int    `yaml:"port"`
		RequestTimeout string `yaml:"requestTimeout"`
		StrictInput    bool   `yaml:"strictInput"`
		URL            string `yaml:"url"`
	} `yaml:"server"`

	System struct {
		DataPath string `yaml:"dataPath"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads settings from the YAML file named by CONFIG_FILE, or from the
// environment when it is unset. A .env file in the working directory is
// applied first; variables already set in the environment win.
func Load() (Settings, error) {
	if err := loadDotEnv(common.DefaultEnvFile); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = common.DefaultRequestTimeout
	}

	modelPath := config.Model.Path
	if modelPath == "" {
		modelPath = common.DefaultModelPath
	}
	logLevel := config.System.LogLevel
	if logLevel == "" {
		logLevel = common.DefaultLogLevel
	}
	port := config.Server.Port
	if port == 0 {
		port = common.DefaultServerPort
	}
	serverURL := config.Server.URL
	if serverURL == "" {
		serverURL = common.DefaultServerURL
	}

	settings := Settings{
		ModelPath:      getEnvOrDefault(common.EnvModelPath, modelPath),
		InstallRoot:    getEnvOrDefault(common.EnvInstallRoot, config.Model.InstallRoot),
		ONNXLibPath:    getEnvOrDefault(common.EnvONNXLibPath, config.Model.ONNXLibPath),
		DataPath:       getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ServerPort:     getIntOrDefault(common.EnvServerPort, port),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, logLevel),
		StrictInput:    getBoolOrDefault(common.EnvStrictInput, config.Server.StrictInput),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, serverURL),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:      getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		InstallRoot:    os.Getenv(common.EnvInstallRoot), // optional
		ONNXLibPath:    os.Getenv(common.EnvONNXLibPath), // optional
		DataPath:       os.Getenv(common.EnvDataPath),    // optional
		ServerPort:     getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		StrictInput:    getBoolOrDefault(common.EnvStrictInput, common.DefaultStrictInput),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, common.DefaultServerURL),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}

// validateSettings checks every field that has a bounded domain
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.ModelPath) == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d",
			common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}

	if settings.RequestTimeout < common.MinRequestTimeout || settings.RequestTimeout > common.MaxRequestTimeout {
		return fmt.Errorf("request timeout must be between %v and %v, got %v",
			common.MinRequestTimeout, common.MaxRequestTimeout, settings.RequestTimeout)
	}

	level := strings.ToLower(settings.LogLevel)
	valid := false
	for _, l := range validLogLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("log level must be one of %s, got %q", strings.Join(validLogLevels, ", "), settings.LogLevel)
	}
	settings.LogLevel = level

	return nil
}
