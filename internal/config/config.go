package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// History store backends.
const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Gemini enrichment configuration.
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// History store configuration.
	HistoryBackend          string
	FirebaseProjectID       string
	FirebaseCredentials     string
	FirebaseCredentialsPath string
	FirestoreCollection     string
	SQLitePath              string

	// Generation event fan-out, enabled by KAFKA_BROKERS.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Session gate.
	AppPassword   string
	SessionSecret string
	SessionTTL    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	geminiTimeout, err := parsePositiveDuration("GEMINI_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "12h")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   sharedcfg.EnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiTimeout: geminiTimeout,

		HistoryBackend:          strings.ToLower(sharedcfg.EnvOrDefault("HISTORY_BACKEND", BackendFirestore)),
		FirebaseProjectID:       sharedcfg.EnvOrDefault("FIREBASE_PROJECT_ID", "meteo-rt"),
		FirebaseCredentials:     os.Getenv("FIREBASE_CREDENTIALS"),
		FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
		FirestoreCollection:     sharedcfg.EnvOrDefault("FIRESTORE_COLLECTION", "cities"),
		SQLitePath:              sharedcfg.EnvOrDefault("SQLITE_PATH", "data/meteo-rt.db"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "meteo-generations"),
		KafkaEnabled: len(brokers) > 0,

		AppPassword:   sharedcfg.EnvOrDefault("APP_PASSWORD", "meteoRT"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    sessionTTL,
	}

	switch cfg.HistoryBackend {
	case BackendFirestore:
		if cfg.FirestoreCollection == "" {
			return nil, errors.New("FIRESTORE_COLLECTION is required")
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("invalid HISTORY_BACKEND %q", cfg.HistoryBackend)
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.AppPassword == "" {
		return nil, errors.New("APP_PASSWORD must not be empty")
	}

	return cfg, nil
}

// RequireGemini reports a configuration error when no Gemini API key is set.
func (c *Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
