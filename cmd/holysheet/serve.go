package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/auth"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/catalog"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/config"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/drive"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/logging"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/metrics"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/socket"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog protocol server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	defer logging.Sync()

	logging.Info("HolySheet server starting...",
		zap.Int("port", cfg.Port),
		zap.String("metrics", cfg.MetricsAddr))

	tokens, err := tokenSource(cfg)
	if err != nil {
		return err
	}

	store := drive.NewClient(cfg.DriveURL, tokens)
	manager := catalog.NewManager(store)

	if cfg.EagerRoot {
		root, err := manager.Root(context.Background())
		if err != nil {
			return fmt.Errorf("resolve root container: %w", err)
		}
		logging.Info("root container resolved", zap.String("id", root.ID))
	}

	srv := socket.NewServer(manager)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown: stop accepting, let in-flight dispatches finish
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		srv.Close()
		if metricsServer != nil {
			metricsServer.Close()
		}
	}()

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Port)); err != socket.ErrServerClosed {
		return err
	}
	return nil
}

// tokenSource picks the credential strategy: a static token when one is
// configured, otherwise a service-account exchange.
func tokenSource(cfg *config.Config) (drive.TokenSource, error) {
	if cfg.Token != "" {
		return auth.Static(cfg.Token), nil
	}
	sa, err := auth.NewServiceAccount(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("load service account: %w", err)
	}
	return sa, nil
}
