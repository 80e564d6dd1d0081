package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/labelsweep/internal/common"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	DatabaseURL string `validate:"required"`

	UPSClientID     string `validate:"required"`
	UPSClientSecret string `validate:"required"`
	UPSOAuthURL     string `validate:"required,url"`
	UPSTrackURL     string `validate:"required,url"`

	WindowStartDaysAgo  int `validate:"gt=0"`
	WindowEndDaysAgo    int `validate:"gte=0"`
	WindowMinEndDaysAgo int `validate:"gte=0"`

	RequestTimeout     time.Duration `validate:"gt=0"`
	RetryMaxAttempts   int           `validate:"gt=0,lte=10"`
	RetryBase          time.Duration `validate:"gt=0"`
	RetryJitterPercent float64       `validate:"gte=0,lte=1"`

	TrackConcurrency int           `validate:"gt=0,lte=32"`
	TrackRatePerSec  float64       `validate:"gt=0"`
	RunTimeout       time.Duration `validate:"gt=0"`

	OutputDir      string `validate:"required"`
	RunLabel       string `validate:"required"`
	TransactionSrc string `validate:"required"`

	OpsAddr   string
	LogFormat string
	LogLevel  string
}

// Load reads configuration from environment variables and optional .env files.
// Invalid or missing required values fail fast with a config_invalid error so
// nothing downstream runs on a broken surface.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, common.NewAppError(common.CodeConfigInvalid, "load env", err)
	}

	vals := envValues{k: k}
	cfg := &Config{
		DatabaseURL:         k.String("DATABASE_URL"),
		UPSClientID:         k.String("UPS_CLIENT_ID"),
		UPSClientSecret:     k.String("UPS_CLIENT_SECRET"),
		UPSOAuthURL:         valueOrDefault(k.String("UPS_OAUTH_URL"), "https://onlinetools.ups.com/security/v1/oauth/token"),
		UPSTrackURL:         valueOrDefault(k.String("UPS_TRACK_URL"), "https://onlinetools.ups.com/api/track/v1/details"),
		WindowStartDaysAgo:  vals.intVal("WINDOW_START_DAYS_AGO", 89),
		WindowEndDaysAgo:    vals.intVal("WINDOW_END_DAYS_AGO", 30),
		WindowMinEndDaysAgo: vals.intVal("WINDOW_MIN_END_DAYS_AGO", 7),
		RequestTimeout:      vals.durationVal("REQUEST_TIMEOUT", 10*time.Second),
		RetryMaxAttempts:    vals.intVal("RETRY_MAX_ATTEMPTS", 3),
		RetryBase:           vals.durationVal("RETRY_BASE", 200*time.Millisecond),
		RetryJitterPercent:  vals.floatVal("RETRY_JITTER_PERCENT", 0.2),
		TrackConcurrency:    vals.intVal("TRACK_CONCURRENCY", 8),
		TrackRatePerSec:     vals.floatVal("TRACK_RATE_PER_SEC", 5),
		RunTimeout:          vals.durationVal("RUN_TIMEOUT", 15*time.Minute),
		OutputDir:           valueOrDefault(k.String("OUTPUT_DIR"), "results"),
		RunLabel:            valueOrDefault(k.String("RUN_LABEL"), "label_sweep"),
		TransactionSrc:      valueOrDefault(k.String("TRANSACTION_SRC"), "labelsweep"),
		OpsAddr:             strings.TrimSpace(k.String("OPS_ADDR")),
		LogFormat:           valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:            valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
	}

	if len(vals.errs) > 0 {
		return nil, common.NewAppError(common.CodeConfigInvalid,
			"parse env: "+strings.Join(vals.errs, "; "), nil)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, common.NewAppError(common.CodeConfigInvalid, "validate config", err)
	}
	if cfg.WindowStartDaysAgo <= cfg.WindowEndDaysAgo {
		return nil, common.NewAppError(common.CodeConfigInvalid,
			fmt.Sprintf("WINDOW_START_DAYS_AGO (%d) must exceed WINDOW_END_DAYS_AGO (%d)", cfg.WindowStartDaysAgo, cfg.WindowEndDaysAgo), nil)
	}
	if cfg.WindowEndDaysAgo < cfg.WindowMinEndDaysAgo {
		return nil, common.NewAppError(common.CodeConfigInvalid,
			fmt.Sprintf("WINDOW_END_DAYS_AGO (%d) is below the recency floor (%d)", cfg.WindowEndDaysAgo, cfg.WindowMinEndDaysAgo), nil)
	}

	return cfg, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// envValues parses typed values from the environment. Unset or blank keys take
// the default; a value that is set but does not parse is recorded so Load can
// reject it instead of silently running on the default.
type envValues struct {
	k    *koanf.Koanf
	errs []string
}

func (v *envValues) intVal(key string, fallback int) int {
	trimmed := strings.TrimSpace(v.k.String(key))
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		v.errs = append(v.errs, fmt.Sprintf("%s=%q is not an integer", key, trimmed))
		return fallback
	}
	return n
}

func (v *envValues) floatVal(key string, fallback float64) float64 {
	trimmed := strings.TrimSpace(v.k.String(key))
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		v.errs = append(v.errs, fmt.Sprintf("%s=%q is not a number", key, trimmed))
		return fallback
	}
	return f
}

func (v *envValues) durationVal(key string, fallback time.Duration) time.Duration {
	trimmed := strings.TrimSpace(v.k.String(key))
	if trimmed == "" {
		return fallback
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		v.errs = append(v.errs, fmt.Sprintf("%s=%q is not a duration", key, trimmed))
		return fallback
	}
	return d
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
