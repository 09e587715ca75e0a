package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the medfront server.
type Config struct {
	DBPath             string
	ServerPort         int
	LogLevel           string
	SentryDSN          string
	Environment        string
	ShutdownGrace      time.Duration
	BackendURL         string
	BackendTimeout     time.Duration
	AssistantAPIKey    string
	AssistantEndpoint  string
	AssistantModel     string
	DefaultView        string
	SessionTTL         time.Duration
	CORSAllowedOrigins []string
	RateLimit          RateLimit
}

// RateLimit configures the per-client token bucket applied to every route.
type RateLimit struct {
	Burst             int
	RequestsPerSecond float64
	ClientTTL         time.Duration
}

const (
	defaultDBPath          = "./data/medfront.db"
	defaultServerPort      = 8080
	defaultLogLevel        = "info"
	defaultEnvironment     = "development"
	defaultShutdownGrace   = 10 * time.Second
	defaultBackendURL      = "http://127.0.0.1:5000"
	defaultBackendTimeout  = 15 * time.Second
	defaultAssistantModel  = "gemini-2.0-flash"
	defaultView            = "lookup"
	defaultSessionTTL      = 12 * time.Hour
	defaultRateLimitBurst  = 20
	defaultRateLimitRPS    = 5.0
	defaultRateLimitClient = 10 * time.Minute
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:            getEnv("DB_PATH", defaultDBPath),
		LogLevel:          getEnv("LOG_LEVEL", defaultLogLevel),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		Environment:       getEnv("ENV", defaultEnvironment),
		ShutdownGrace:     defaultShutdownGrace,
		BackendURL:        strings.TrimRight(getEnv("BACKEND_URL", defaultBackendURL), "/"),
		AssistantAPIKey:   os.Getenv("ASSISTANT_API_KEY"),
		AssistantEndpoint: os.Getenv("ASSISTANT_ENDPOINT"),
		AssistantModel:    getEnv("ASSISTANT_MODEL", defaultAssistantModel),
		DefaultView:       strings.ToLower(getEnv("DEFAULT_VIEW", defaultView)),
	}

	if cfg.DefaultView != "lookup" && cfg.DefaultView != "diagnosis" {
		return nil, eris.Errorf("invalid DEFAULT_VIEW value: %s", cfg.DefaultView)
	}

	portValue := getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid SERVER_PORT value: %s", portValue)
	}
	cfg.ServerPort = port

	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", defaultBackendTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", defaultSessionTTL); err != nil {
		return nil, err
	}

	burstValue := getEnv("RATE_LIMIT_BURST", strconv.Itoa(defaultRateLimitBurst))
	burst, err := strconv.Atoi(burstValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_BURST value: %s", burstValue)
	}
	cfg.RateLimit.Burst = burst

	rpsValue := getEnv("RATE_LIMIT_RPS", strconv.FormatFloat(defaultRateLimitRPS, 'f', -1, 64))
	rps, err := strconv.ParseFloat(rpsValue, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_RPS value: %s", rpsValue)
	}
	cfg.RateLimit.RequestsPerSecond = rps

	if cfg.RateLimit.ClientTTL, err = getDuration("RATE_LIMIT_CLIENT_TTL", defaultRateLimitClient); err != nil {
		return nil, err
	}

	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		origins, err := parseOrigins(raw)
		if err != nil {
			return nil, eris.Wrap(err, "parsing CORS_ALLOWED_ORIGINS")
		}
		cfg.CORSAllowedOrigins = origins
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, value)
	}
	if parsed <= 0 {
		return 0, eris.Errorf("invalid %s value: %s", key, value)
	}

	return parsed, nil
}

func parseOrigins(raw string) ([]string, error) {
	// Accept either a JSON array of strings or a comma separated list.
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(trimmed), &origins); err != nil {
			return nil, eris.Wrap(err, "decoding JSON")
		}
		return compactOrigins(origins)
	}

	return compactOrigins(strings.Split(trimmed, ","))
}

func compactOrigins(values []string) ([]string, error) {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		if origin := strings.TrimSpace(value); origin != "" {
			origins = append(origins, origin)
		}
	}

	if len(origins) == 0 {
		return nil, eris.New("origins list is empty")
	}

	return origins, nil
}
