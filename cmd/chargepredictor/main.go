package main

import (
	"errors"
	"os"
	"time"

	"insurance-charge/internal/cfg"
	"insurance-charge/internal/common"
	"insurance-charge/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "chargepredictor",
	Short: "Predict annual medical insurance charges",
	Long: `chargepredictor scores applicant records with a pre-trained regression
model and reports the predicted annual insurance charge.

Examples:
  chargepredictor predict --age 30 --sex male --bmi 35.5 --children 1 --smoker yes --region southeast
  chargepredictor serve --port 8080
  chargepredictor remote --server http://localhost:8080 --age 52 --smoker no`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return os.Setenv(common.EnvConfigFile, configFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads configuration and applies the log level, with the
// --log-level flag taking precedence.
func loadSettings() cfg.Settings {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	level := c.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	return c
}

// modelPath resolves the configured artifact against the install root.
func modelPath(c cfg.Settings) string {
	root := c.InstallRoot
	if root == "" {
		var err error
		root, err = ml.InstallRoot()
		if err != nil {
			log.Fatal().Err(err).Msg("cannot determine install root")
		}
	}
	return ml.ResolveArtifactPath(root, c.ModelPath)
}

// loadPredictor loads the model artifact once. Any failure here is fatal:
// the process never starts serving without a model.
func loadPredictor(c cfg.Settings, opts ...ml.Option) *ml.Predictor {
	path := modelPath(c)

	model, err := ml.LoadArtifact(path, ml.LoadOptions{ONNXLibPath: c.ONNXLibPath})
	if err != nil {
		if errors.Is(err, ml.ErrArtifactNotFound) {
			log.Fatal().Err(err).Msgf("model artifact not found at %s", path)
		}
		log.Fatal().Err(err).Str("path", path).Msg("model artifact could not be loaded")
	}

	md, err := ml.LoadModelMetadata(path)
	if err != nil {
		log.Debug().Err(err).Msg("no model metadata, continuing without it")
	} else {
		opts = append(opts, ml.WithMetadata(md))
	}
	if info, err := os.Stat(path); err == nil {
		opts = append(opts, ml.WithModelCreated(info.ModTime()))
	}
	opts = append(opts, ml.WithInputValidation(c.StrictInput))

	p, err := ml.NewPredictor(model, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("predictor initialization failed")
	}
	return p
}
