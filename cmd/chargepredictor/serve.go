package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"insurance-charge/internal/cfg"
	"insurance-charge/internal/common"
	"insurance-charge/internal/metrics"
	"insurance-charge/internal/ml"
	"insurance-charge/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadSettings()
		if servePort != 0 {
			c.ServerPort = servePort
		}

		m := metrics.New()
		monitor := ml.NewFeatureMonitor(featureStatsPath(c))
		defer func() {
			if err := monitor.Save(); err != nil {
				log.Warn().Err(err).Msg("failed to save feature statistics")
			}
		}()

		p := loadPredictor(c, ml.WithMetrics(metrics.NewWrapper(m)), ml.WithFeatureMonitor(monitor))
		defer p.Model().Close()

		config := ml.ServerConfig{
			Port:           c.ServerPort,
			RequestTimeout: c.RequestTimeout,
			Gatherer:       m.Gatherer(),
		}
		if store := initializeStorage(c); store != nil {
			defer store.Close()
			config.Store = store
		}

		server := ml.NewModelServer(p, config)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		return waitForShutdown(ctx, server, errCh)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides SERVER_PORT)")
}

// featureStatsPath is empty, disabling persistence, when DATA_PATH is unset.
func featureStatsPath(c cfg.Settings) string {
	if c.DataPath == "" {
		return ""
	}
	return filepath.Join(c.DataPath, common.FeatureStatsFile)
}

// initializeStorage opens the quote store if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without quote history")
		return nil
	}
	return store
}

func waitForShutdown(ctx context.Context, server *ml.ModelServer, errCh <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
