package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 0.8, cfg.Policy.VerifiedThreshold)
	assert.Equal(t, 0.6, cfg.Policy.ReviewThreshold)
	assert.Equal(t, 0.85, cfg.Matching.MatchedThreshold)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval())
	assert.Equal(t, 30, cfg.Polling.MaxAttempts)
	assert.Equal(t, []string{"SIGNATURE_CHECK", "REGISTRY_LOOKUP"}, cfg.Policy.CombinedMandatory)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certverify.toml")
	content := `
[server]
addr = ":9090"

[policy]
verified_threshold = 0.9
review_threshold = 0.5

[matching]
name_weight = 0.7
dob_weight = 0.3

[kafka]
brokers = ["localhost:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CERTVERIFY_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides file")
	assert.Equal(t, 0.9, cfg.Policy.VerifiedThreshold)
	assert.Equal(t, 0.5, cfg.Policy.ReviewThreshold)
	assert.Equal(t, 0.7, cfg.Matching.NameWeight)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Upload.MaxPDFPages, "unset keys keep defaults")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Storage.Backend)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr="), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	t.Run("review above verified rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Policy.ReviewThreshold = 0.9
		cfg.Policy.VerifiedThreshold = 0.8
		assert.Error(t, cfg.Validate())
	})

	t.Run("field threshold must leave room to exceed it", func(t *testing.T) {
		cfg := Default()
		cfg.Matching.FieldThreshold = 1
		assert.Error(t, cfg.Validate())
		cfg.Matching.FieldThreshold = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown mandatory step rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Policy.CombinedMandatory = []string{"FINGERPRINT"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("vertex requires project", func(t *testing.T) {
		cfg := Default()
		cfg.Extraction.Provider = "vertex"
		assert.Error(t, cfg.Validate())
		cfg.Extraction.VertexProject = "proj"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("gcs requires bucket", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Backend = "gcs"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid env float surfaces", func(t *testing.T) {
		t.Setenv("VERIFIED_THRESHOLD", "high")
		_, err := Load("")
		assert.Error(t, err)
	})
}
