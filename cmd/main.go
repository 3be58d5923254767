package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"manifest2cloud/internal/app"
	"manifest2cloud/internal/config"
	"manifest2cloud/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "manifest2cloud",
	Short: "Upload manifest-listed genomic files to cloud storage",
	Long: `Reads a tab-separated file manifest, validates it, and uploads the
listed files to Google Cloud Storage and/or AWS S3 with checksum
verification, producing a receipt manifest that records where every
file landed and supports resuming interrupted runs.`,
	RunE: runTransfer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is none)")

	// Run flags
	rootCmd.Flags().String("tsv", "", "input manifest TSV (required)")
	rootCmd.Flags().Bool("gs", false, "upload to Google Cloud Storage")
	rootCmd.Flags().Bool("aws", false, "upload to AWS S3")
	rootCmd.Flags().Bool("test", false, "validate the manifest and exit")
	rootCmd.Flags().Bool("resume", false, "trust completed outcomes already recorded in the manifest")
	rootCmd.Flags().Int("threads", 0, "number of concurrent workers (default: CPU count)")
	rootCmd.Flags().Int64("chunk-size", config.DefaultChunkSize, "upload part size in bytes")
	rootCmd.Flags().Int64("max-download-size", config.DefaultMaxDownloadMB, "largest cross-cloud source to stage locally, in MB")
	rootCmd.Flags().Int("retries", 5, "maximum retry attempts")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "initial retry backoff in milliseconds")
	rootCmd.Flags().String("journal", "", "SQLite run journal file (disabled when empty)")
	rootCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (disabled when empty)")
	rootCmd.Flags().String("log-level", "info", "log level (debug/info/warn/error)")

	// S3 flags
	rootCmd.Flags().String("s3-endpoint", "", "S3 endpoint (default s3.amazonaws.com)")
	rootCmd.Flags().String("s3-region", "", "S3 region")
	rootCmd.Flags().String("s3-access-key", "", "S3 access key (default: environment or shared credentials)")
	rootCmd.Flags().String("s3-secret-key", "", "S3 secret key")
	rootCmd.Flags().String("s3-session-token", "", "S3 session token")
	rootCmd.Flags().String("s3-bucket", "", "S3 destination bucket")
	rootCmd.Flags().Bool("s3-insecure", false, "use HTTP for S3")

	// GCS flags
	rootCmd.Flags().String("gs-bucket", "", "GCS destination bucket")
	rootCmd.Flags().String("gs-credentials", "", "GCS service account credentials file")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create pipeline
	pipeline, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, finishing in-flight transfers...")
		cancel()
	}()

	// Run transfer
	err = pipeline.Run(ctx)

	// Close pipeline resources after the run completes or is cancelled
	if closeErr := pipeline.Close(); closeErr != nil {
		log.Error("Error closing pipeline", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
