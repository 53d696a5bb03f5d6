package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"insight-backend/internal/risk"
	"insight-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`

	ObjectStoreType string `yaml:"object_store"`
	LocalStoreDir   string `yaml:"local_store_dir"`
	AWSRegion       string `yaml:"aws_region"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id"`
	MinIOEndpoint   string `yaml:"minio_endpoint"`
	MinIOAccessKey  string `yaml:"minio_access_key"`
	MinIOSecretKey  string `yaml:"minio_secret_key"`
	MinIOBucket     string `yaml:"minio_bucket"`
	MinIOUseSSL     bool   `yaml:"minio_use_ssl"`
	UploadsPrefix   string `yaml:"uploads_prefix"`

	DatabaseURL string `yaml:"database_url"`

	SessionTTL           time.Duration `yaml:"session_ttl"`
	SessionMax           int           `yaml:"session_max"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
	DeleteRawOnEvict     bool          `yaml:"delete_raw_on_evict"`

	MaxUploadMB  int             `yaml:"max_upload_mb"`
	PreviewRows  int             `yaml:"preview_rows"`
	RankMaxLimit int             `yaml:"rank_max_limit"`
	Risk         risk.Thresholds `yaml:"risk"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:                 "8080",
		Env:                  "dev",
		CORSAllowOrigin:      []string{"http://localhost:5173"},
		ObjectStoreType:      "local",
		LocalStoreDir:        "./data",
		MinIOBucket:          "insight-uploads",
		UploadsPrefix:        "uploads",
		SessionTTL:           30 * time.Minute,
		SessionMax:           64,
		SessionSweepInterval: time.Minute,
		MaxUploadMB:          50,
		PreviewRows:          100,
		RankMaxLimit:         100,
		Risk:                 risk.DefaultThresholds(),
		RateLimitRPS:         5,
		RateLimitBurst:       20,
	}
}

// Load reads configuration from an optional YAML file named by CONFIG_FILE,
// then environment variables. Environment values win.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": cfg.Env})
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.ObjectStoreType {
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("config: S3_BUCKET is required when OBJECT_STORE=s3")
		}
	case "minio":
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("config: MINIO_ENDPOINT is required when OBJECT_STORE=minio")
		}
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_MB must be positive")
	}
	if c.Risk.MaxMissingRatio < 0 || c.Risk.MaxMissingRatio > 1 {
		return fmt.Errorf("config: RISK_MAX_MISSING_RATIO must be within [0,1]")
	}
	return nil
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "ENV")
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		cfg.CORSAllowOrigin = splitAndTrim(raw)
	}

	setString(&cfg.ObjectStoreType, "OBJECT_STORE")
	setString(&cfg.LocalStoreDir, "LOCAL_STORE_DIR")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.SSEKMSKeyID, "SSE_KMS_KEY_ID")
	setString(&cfg.MinIOEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinIOAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinIOSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinIOBucket, "MINIO_BUCKET")
	setBool(&cfg.MinIOUseSSL, "MINIO_USE_SSL")
	setString(&cfg.UploadsPrefix, "UPLOADS_PREFIX")

	setString(&cfg.DatabaseURL, "DATABASE_URL")

	setDuration(&cfg.SessionTTL, "SESSION_TTL")
	setInt(&cfg.SessionMax, "SESSION_MAX")
	setDuration(&cfg.SessionSweepInterval, "SESSION_SWEEP_INTERVAL")
	setBool(&cfg.DeleteRawOnEvict, "DELETE_RAW_ON_EVICT")

	setInt(&cfg.MaxUploadMB, "MAX_UPLOAD_MB")
	setInt(&cfg.PreviewRows, "PREVIEW_ROWS")
	setInt(&cfg.RankMaxLimit, "RANK_MAX_LIMIT")
	setInt(&cfg.Risk.MinTrendBuckets, "RISK_MIN_TREND_BUCKETS")
	setInt(&cfg.Risk.MinRows, "RISK_MIN_ROWS")
	setFloat(&cfg.Risk.MaxMissingRatio, "RISK_MAX_MISSING_RATIO")

	setFloat(&cfg.RateLimitRPS, "RATE_LIMIT_RPS")
	setInt(&cfg.RateLimitBurst, "RATE_LIMIT_BURST")
}

func setString(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		warnInvalid(key, raw)
		return
	}
	*dst = v
}

func setFloat(dst *float64, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		warnInvalid(key, raw)
		return
	}
	*dst = v
}

func setBool(dst *bool, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		warnInvalid(key, raw)
		return
	}
	*dst = v
}

func setDuration(dst *time.Duration, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		warnInvalid(key, raw)
		return
	}
	*dst = v
}

func warnInvalid(key, raw string) {
	telemetry.Warn("config.invalid_value", map[string]any{"key": key, "value": raw})
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
