package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/config"
	"github.com/ifuryst/postcast/internal/server"
	"github.com/ifuryst/postcast/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "postcast",
	Short: "Postcast - Social media post scheduler",
	Long:  `Postcast stores social media posts with a publication time and publishes them to their platforms once they are due.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Postcast %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Publish all due posts once and exit",
	RunE:  runScan,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
}

func setup(ctx context.Context) (*server.Server, *zap.Logger, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create server
	srv, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		_ = appLogger.Sync()
		return nil, nil, fmt.Errorf("failed to create server: %w", err)
	}

	return srv, appLogger, nil
}

func runServer(*cobra.Command, []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, appLogger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Postcast server", zap.String("version", version))

	// Start server
	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, appLogger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	summary, err := srv.Scheduler.RunOnce(ctx)
	if err != nil {
		appLogger.Error("Scan failed", zap.Error(err))
		return err
	}

	appLogger.Info("Scan finished",
		zap.Int("due", summary.Due),
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
		zap.Int("errors", summary.Errors))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
