package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Engine        EngineConfig
	Import        ImportConfig
	TabStore      TabStoreConfig
	ObjectStore   ObjectStoreConfig
	Assist        AssistConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type EngineConfig struct {
	WorkDir         string
	BatchSize       int
	PreviewRowLimit int
	CSVFlushBytes   int
}

type ImportConfig struct {
	MaxUploadBytes int64
}

type TabStoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type AssistConfig struct {
	TranslateEnabled bool
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYDECK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYDECK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "QUERYDECK_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_ENGINE_WORK_DIR", &cfg.Engine.WorkDir); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDECK_ENGINE_BATCH_SIZE", &cfg.Engine.BatchSize); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDECK_ENGINE_PREVIEW_ROW_LIMIT", &cfg.Engine.PreviewRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDECK_ENGINE_CSV_FLUSH_BYTES", &cfg.Engine.CSVFlushBytes); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "QUERYDECK_IMPORT_MAX_UPLOAD_BYTES", &cfg.Import.MaxUploadBytes); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_TABSTORE_DSN", &cfg.TabStore.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDECK_TABSTORE_MAX_OPEN_CONNS", &cfg.TabStore.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDECK_TABSTORE_MAX_IDLE_CONNS", &cfg.TabStore.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_TABSTORE_CONN_MAX_IDLE_TIME", &cfg.TabStore.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_TABSTORE_CONN_MAX_LIFETIME", &cfg.TabStore.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDECK_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDECK_ASSIST_TRANSLATE_ENABLED", &cfg.Assist.TranslateEnabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_ASSIST_BASE_URL", &cfg.Assist.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_ASSIST_API_KEY", &cfg.Assist.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDECK_ASSIST_MODEL", &cfg.Assist.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "QUERYDECK_ASSIST_TEMPERATURE", &cfg.Assist.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDECK_ASSIST_TIMEOUT", &cfg.Assist.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDECK_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "QUERYDECK_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Engine.BatchSize <= 0 {
		return Config{}, fmt.Errorf("engine batch size must be positive")
	}
	if cfg.Engine.PreviewRowLimit <= 0 {
		return Config{}, fmt.Errorf("preview row limit must be positive")
	}
	if cfg.Engine.CSVFlushBytes <= 0 {
		return Config{}, fmt.Errorf("csv flush threshold must be positive")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querydeck"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Engine: EngineConfig{
			WorkDir:         "",
			BatchSize:       2048,
			PreviewRowLimit: 200,
			CSVFlushBytes:   1_000_000,
		},
		Import: ImportConfig{
			MaxUploadBytes: 1 << 30,
		},
		TabStore: TabStoreConfig{
			DSN:             "",
			MaxOpenConns:    5,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "",
			Region:          "us-east-1",
			Bucket:          "",
			AccessKeyID:     "",
			SecretAccessKey: "",
			UseSSL:          false,
			Prefix:          "",
		},
		Assist: AssistConfig{
			TranslateEnabled: false,
			BaseURL:          "https://api.openai.com",
			Model:            "gpt-5",
			Temperature:      0.1,
			Timeout:          15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
