// Package config loads service configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvConfigPath names the variable holding the TOML config path.
const EnvConfigPath = "CERTVERIFY_CONFIG"

type Server struct {
	Addr                   string `toml:"addr"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Postgres is optional; an empty URL selects in-memory stores.
type Postgres struct {
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Redis is optional; an empty URL selects the in-memory registry cache.
type Redis struct {
	URL                     string `toml:"url"`
	PoolSize                int    `toml:"pool_size"`
	MinIdleConns            int    `toml:"min_idle_conns"`
	DialTimeoutMS           int    `toml:"dial_timeout_ms"`
	ReadTimeoutMS           int    `toml:"read_timeout_ms"`
	WriteTimeoutMS          int    `toml:"write_timeout_ms"`
	RegistryCacheTTLSeconds int    `toml:"registry_cache_ttl_seconds"`
}

// Kafka is optional; without brokers the audit outbox is not relayed.
type Kafka struct {
	Brokers         []string `toml:"brokers"`
	AuditTopic      string   `toml:"audit_topic"`
	RelayIntervalMS int      `toml:"relay_interval_ms"`
}

type Upload struct {
	MaxBytes    int64 `toml:"max_bytes"`
	MaxPDFPages int   `toml:"max_pdf_pages"`
}

// Extraction selects the OCR/LLM backend: "http" or "vertex".
type Extraction struct {
	Provider       string `toml:"provider"`
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	VertexProject  string `toml:"vertex_project"`
	VertexLocation string `toml:"vertex_location"`
	VertexModel    string `toml:"vertex_model"`
}

type Evidence struct {
	DigitalURL              string `toml:"digital_url"`
	PortalURL               string `toml:"portal_url"`
	ForensicURL             string `toml:"forensic_url"`
	APIKey                  string `toml:"api_key"`
	StepTimeoutSeconds      int    `toml:"step_timeout_seconds"`
	BreakerFailureThreshold int    `toml:"breaker_failure_threshold"`
	BreakerCooldownSeconds  int    `toml:"breaker_cooldown_seconds"`
}

// Storage selects the blob backend: "fs" or "gcs".
type Storage struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
}

// Policy holds verification aggregation thresholds.
type Policy struct {
	VerifiedThreshold float64  `toml:"verified_threshold"`
	ReviewThreshold   float64  `toml:"review_threshold"`
	RunTimeoutSeconds int      `toml:"run_timeout_seconds"`
	CombinedMandatory []string `toml:"combined_mandatory"`
}

// Matching holds matcher bands and the PAN/Aadhaar rule weights.
type Matching struct {
	MatchedThreshold float64 `toml:"matched_threshold"`
	PartialThreshold float64 `toml:"partial_threshold"`
	FieldThreshold   float64 `toml:"field_threshold"`
	NameWeight       float64 `toml:"name_weight"`
	DOBWeight        float64 `toml:"dob_weight"`
}

type Polling struct {
	IntervalMS  int `toml:"interval_ms"`
	MaxAttempts int `toml:"max_attempts"`
}

// Auth configures verifier tokens. An empty signing key falls back to the
// X-Verifier-ID header.
type Auth struct {
	JWTSigningKey string `toml:"jwt_signing_key"`
	Issuer        string `toml:"issuer"`
	Audience      string `toml:"audience"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Server     Server     `toml:"server"`
	Postgres   Postgres   `toml:"postgres"`
	Redis      Redis      `toml:"redis"`
	Kafka      Kafka      `toml:"kafka"`
	Upload     Upload     `toml:"upload"`
	Extraction Extraction `toml:"extraction"`
	Evidence   Evidence   `toml:"evidence"`
	Storage    Storage    `toml:"storage"`
	Policy     Policy     `toml:"policy"`
	Matching   Matching   `toml:"matching"`
	Polling    Polling    `toml:"polling"`
	Auth       Auth       `toml:"auth"`
	Log        Log        `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeoutSeconds: 15},
		Postgres: Postgres{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: Redis{
			PoolSize:                10,
			MinIdleConns:            2,
			DialTimeoutMS:           2000,
			ReadTimeoutMS:           1000,
			WriteTimeoutMS:          1000,
			RegistryCacheTTLSeconds: 300,
		},
		Kafka: Kafka{AuditTopic: "certverify.audit", RelayIntervalMS: 1000},
		Upload: Upload{
			MaxBytes:    10 << 20,
			MaxPDFPages: 5,
		},
		Extraction: Extraction{
			Provider:       "http",
			URL:            "http://localhost:9001/extract",
			TimeoutSeconds: 60,
			VertexLocation: "asia-south1",
			VertexModel:    "gemini-2.0-flash",
		},
		Evidence: Evidence{
			DigitalURL:              "http://localhost:9002",
			PortalURL:               "http://localhost:9003",
			ForensicURL:             "http://localhost:9004",
			StepTimeoutSeconds:      10,
			BreakerFailureThreshold: 5,
			BreakerCooldownSeconds:  30,
		},
		Storage: Storage{Backend: "fs", Dir: "./data/blobs"},
		Policy: Policy{
			VerifiedThreshold: 0.8,
			ReviewThreshold:   0.6,
			RunTimeoutSeconds: 60,
			CombinedMandatory: []string{"SIGNATURE_CHECK", "REGISTRY_LOOKUP"},
		},
		Matching: Matching{
			MatchedThreshold: 0.85,
			PartialThreshold: 0.6,
			FieldThreshold:   0.8,
			NameWeight:       0.6,
			DOBWeight:        0.4,
		},
		Polling: Polling{IntervalMS: 2000, MaxAttempts: 30},
		Auth:    Auth{Issuer: "certverify", Audience: "certverify-api"},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case
// CERTVERIFY_CONFIG is consulted; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "CERTVERIFY_ADDR")
	setString(&c.Postgres.URL, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	setString(&c.Kafka.AuditTopic, "KAFKA_AUDIT_TOPIC")
	setString(&c.Extraction.Provider, "EXTRACTOR_PROVIDER")
	setString(&c.Extraction.URL, "EXTRACTOR_URL")
	setString(&c.Extraction.VertexProject, "VERTEX_PROJECT")
	setString(&c.Extraction.VertexLocation, "VERTEX_LOCATION")
	setString(&c.Extraction.VertexModel, "VERTEX_MODEL")
	setString(&c.Evidence.DigitalURL, "DIGITAL_VALIDATOR_URL")
	setString(&c.Evidence.PortalURL, "REGISTRY_PORTAL_URL")
	setString(&c.Evidence.ForensicURL, "FORENSIC_ANALYZER_URL")
	setString(&c.Evidence.APIKey, "EVIDENCE_API_KEY")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Dir, "STORAGE_DIR")
	setString(&c.Storage.Bucket, "GCS_BUCKET")
	setString(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if err := setFloat(&c.Policy.VerifiedThreshold, "VERIFIED_THRESHOLD"); err != nil {
		return err
	}
	if err := setFloat(&c.Policy.ReviewThreshold, "REVIEW_THRESHOLD"); err != nil {
		return err
	}
	if err := setInt64(&c.Upload.MaxBytes, "UPLOAD_MAX_BYTES"); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Policy.ReviewThreshold < 0 || c.Policy.VerifiedThreshold > 1 ||
		c.Policy.ReviewThreshold > c.Policy.VerifiedThreshold {
		errs = append(errs, fmt.Errorf("policy thresholds must satisfy 0 <= review (%.2f) <= verified (%.2f) <= 1",
			c.Policy.ReviewThreshold, c.Policy.VerifiedThreshold))
	}
	if c.Matching.PartialThreshold < 0 || c.Matching.MatchedThreshold > 1 ||
		c.Matching.PartialThreshold > c.Matching.MatchedThreshold {
		errs = append(errs, fmt.Errorf("matching bands must satisfy 0 <= partial (%.2f) <= matched (%.2f) <= 1",
			c.Matching.PartialThreshold, c.Matching.MatchedThreshold))
	}
	if c.Matching.FieldThreshold <= 0 || c.Matching.FieldThreshold >= 1 {
		errs = append(errs, fmt.Errorf("matching.field_threshold must be in (0, 1), got %.2f", c.Matching.FieldThreshold))
	}
	if c.Matching.NameWeight < 0 || c.Matching.DOBWeight < 0 || c.Matching.NameWeight+c.Matching.DOBWeight == 0 {
		errs = append(errs, errors.New("matching weights must be non-negative and not both zero"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Upload.MaxPDFPages <= 0 {
		errs = append(errs, errors.New("upload.max_pdf_pages must be positive"))
	}
	if c.Polling.MaxAttempts <= 0 || c.Polling.IntervalMS <= 0 {
		errs = append(errs, errors.New("polling interval and max attempts must be positive"))
	}
	switch c.Extraction.Provider {
	case "http":
		if c.Extraction.URL == "" {
			errs = append(errs, errors.New("extraction.url is required for the http provider"))
		}
	case "vertex":
		if c.Extraction.VertexProject == "" {
			errs = append(errs, errors.New("extraction.vertex_project is required for the vertex provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown extraction provider %q", c.Extraction.Provider))
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the fs backend"))
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	for _, step := range c.Policy.CombinedMandatory {
		switch step {
		case "SIGNATURE_CHECK", "REGISTRY_LOOKUP", "RISK_ANALYSIS":
		default:
			errs = append(errs, fmt.Errorf("unknown mandatory step %q", step))
		}
	}
	return errors.Join(errs...)
}

func (s Server) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func (r Redis) RegistryCacheTTL() time.Duration {
	return time.Duration(r.RegistryCacheTTLSeconds) * time.Second
}

func (k Kafka) RelayInterval() time.Duration {
	return time.Duration(k.RelayIntervalMS) * time.Millisecond
}

func (e Extraction) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e Evidence) StepTimeout() time.Duration {
	return time.Duration(e.StepTimeoutSeconds) * time.Second
}

func (e Evidence) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSeconds) * time.Second
}

func (p Policy) RunTimeout() time.Duration {
	return time.Duration(p.RunTimeoutSeconds) * time.Second
}

func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setInt64(dst *int64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
