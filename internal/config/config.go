package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultChunkSize is the upload part size.
	DefaultChunkSize = 8 * 1024 * 1024
	// DefaultMaxDownloadMB bounds cross-cloud staging downloads.
	DefaultMaxDownloadMB = 2000
)

// Config represents the application configuration
type Config struct {
	Transfer Transfer `yaml:"transfer"`
	S3       S3Config `yaml:"s3"`
	GS       GSConfig `yaml:"gs"`
	LogLevel string   `yaml:"log_level"`
}

// S3Config represents the AWS S3 destination and s3:// source access
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	Bucket       string `yaml:"bucket"`
	Insecure     bool   `yaml:"insecure"`
}

// GSConfig represents the Google Cloud Storage destination and gs://
// source access
type GSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Transfer represents run-specific configuration
type Transfer struct {
	TSV            string `yaml:"tsv"`
	GS             bool   `yaml:"gs"`
	AWS            bool   `yaml:"aws"`
	Test           bool   `yaml:"test"`
	Resume         bool   `yaml:"resume"`
	Threads        int    `yaml:"threads"`
	ChunkSize      int64  `yaml:"chunk_size"`
	MaxDownloadMB  int64  `yaml:"max_download_size"`
	Retries        int    `yaml:"retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	Journal        string `yaml:"journal"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// MaxDownloadBytes returns the cross-cloud staging cap in bytes.
func (t Transfer) MaxDownloadBytes() int64 {
	return t.MaxDownloadMB * 1024 * 1024
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Transfer: Transfer{
			Threads:        runtime.NumCPU(),
			ChunkSize:      DefaultChunkSize,
			MaxDownloadMB:  DefaultMaxDownloadMB,
			Retries:        5,
			RetryBackoffMs: 500,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("tsv") {
		cfg.Transfer.TSV, _ = flags.GetString("tsv")
	}
	if flags.Changed("gs") {
		cfg.Transfer.GS, _ = flags.GetBool("gs")
	}
	if flags.Changed("aws") {
		cfg.Transfer.AWS, _ = flags.GetBool("aws")
	}
	if flags.Changed("test") {
		cfg.Transfer.Test, _ = flags.GetBool("test")
	}
	if flags.Changed("resume") {
		cfg.Transfer.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("threads") {
		cfg.Transfer.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("chunk-size") {
		cfg.Transfer.ChunkSize, _ = flags.GetInt64("chunk-size")
	}
	if flags.Changed("max-download-size") {
		cfg.Transfer.MaxDownloadMB, _ = flags.GetInt64("max-download-size")
	}
	if flags.Changed("retries") {
		cfg.Transfer.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Transfer.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("journal") {
		cfg.Transfer.Journal, _ = flags.GetString("journal")
	}
	if flags.Changed("metrics-addr") {
		cfg.Transfer.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if flags.Changed("s3-endpoint") {
		cfg.S3.Endpoint, _ = flags.GetString("s3-endpoint")
	}
	if flags.Changed("s3-region") {
		cfg.S3.Region, _ = flags.GetString("s3-region")
	}
	if flags.Changed("s3-access-key") {
		cfg.S3.AccessKey, _ = flags.GetString("s3-access-key")
	}
	if flags.Changed("s3-secret-key") {
		cfg.S3.SecretKey, _ = flags.GetString("s3-secret-key")
	}
	if flags.Changed("s3-session-token") {
		cfg.S3.SessionToken, _ = flags.GetString("s3-session-token")
	}
	if flags.Changed("s3-bucket") {
		cfg.S3.Bucket, _ = flags.GetString("s3-bucket")
	}
	if flags.Changed("s3-insecure") {
		cfg.S3.Insecure, _ = flags.GetBool("s3-insecure")
	}

	if flags.Changed("gs-bucket") {
		cfg.GS.Bucket, _ = flags.GetString("gs-bucket")
	}
	if flags.Changed("gs-credentials") {
		cfg.GS.CredentialsFile, _ = flags.GetString("gs-credentials")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Transfer.TSV == "" {
		return fmt.Errorf("tsv manifest path is required")
	}

	// Validation mode never touches a store, so destinations and
	// credentials are optional there.
	if !c.Transfer.Test {
		if !c.Transfer.GS && !c.Transfer.AWS {
			return fmt.Errorf("at least one destination (--gs or --aws) is required")
		}
		if c.Transfer.GS && c.GS.Bucket == "" {
			return fmt.Errorf("gs bucket is required when --gs is set")
		}
		if c.Transfer.AWS && c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required when --aws is set")
		}
	}

	if c.Transfer.Threads <= 0 {
		return fmt.Errorf("threads must be positive")
	}

	if c.Transfer.ChunkSize < 5*1024*1024 { // 5MB minimum for S3
		return fmt.Errorf("chunk size must be at least 5MB")
	}

	if c.Transfer.MaxDownloadMB <= 0 {
		return fmt.Errorf("max download size must be positive")
	}

	return nil
}
