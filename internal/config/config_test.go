package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("tsv", "", "")
	flags.Bool("gs", false, "")
	flags.Bool("aws", false, "")
	flags.Bool("test", false, "")
	flags.Bool("resume", false, "")
	flags.Int("threads", 0, "")
	flags.Int64("chunk-size", 0, "")
	flags.Int64("max-download-size", 0, "")
	flags.Int("retries", 0, "")
	flags.Int("retry-backoff-ms", 0, "")
	flags.String("journal", "", "")
	flags.String("metrics-addr", "", "")
	flags.String("s3-endpoint", "", "")
	flags.String("s3-region", "", "")
	flags.String("s3-access-key", "", "")
	flags.String("s3-secret-key", "", "")
	flags.String("s3-session-token", "", "")
	flags.String("s3-bucket", "", "")
	flags.Bool("s3-insecure", false, "")
	flags.String("gs-bucket", "", "")
	flags.String("gs-credentials", "", "")
	flags.String("log-level", "", "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--tsv", "in.tsv", "--aws", "--s3-bucket", "dst"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "in.tsv", cfg.Transfer.TSV)
	assert.True(t, cfg.Transfer.AWS)
	assert.False(t, cfg.Transfer.GS)
	assert.Greater(t, cfg.Transfer.Threads, 0)
	assert.Equal(t, int64(DefaultChunkSize), cfg.Transfer.ChunkSize)
	assert.Equal(t, int64(DefaultMaxDownloadMB), cfg.Transfer.MaxDownloadMB)
	assert.Equal(t, int64(2000*1024*1024), cfg.Transfer.MaxDownloadBytes())
	assert.Equal(t, 5, cfg.Transfer.Retries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
transfer:
  tsv: from-file.tsv
  gs: true
  threads: 4
gs:
  bucket: file-bucket
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--threads", "8", "--gs-bucket", "flag-bucket"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file.tsv", cfg.Transfer.TSV)
	assert.True(t, cfg.Transfer.GS)
	assert.Equal(t, 8, cfg.Transfer.Threads)
	assert.Equal(t, "flag-bucket", cfg.GS.Bucket)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing tsv", []string{"--aws", "--s3-bucket", "b"}, "tsv manifest path is required"},
		{"no destination", []string{"--tsv", "in.tsv"}, "at least one destination"},
		{"gs without bucket", []string{"--tsv", "in.tsv", "--gs"}, "gs bucket is required"},
		{"aws without bucket", []string{"--tsv", "in.tsv", "--aws"}, "s3 bucket is required"},
		{"bad threads", []string{"--tsv", "in.tsv", "--aws", "--s3-bucket", "b", "--threads", "0"}, "threads must be positive"},
		{"tiny chunk", []string{"--tsv", "in.tsv", "--aws", "--s3-bucket", "b", "--chunk-size", "1024"}, "chunk size must be at least 5MB"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flags := testFlags()
			require.NoError(t, flags.Parse(tc.args))
			_, err := Load("", flags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTestModeSkipsDestinationChecks(t *testing.T) {
	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--tsv", "in.tsv", "--test"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.True(t, cfg.Transfer.Test)
}
