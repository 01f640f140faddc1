package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all daemon configuration
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Push    PushConfig
	Session SessionConfig
	Feed    FeedConfig
	Cache   CacheConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ViewToken      string
	AllowedOrigins []string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type PushConfig struct {
	URL string
	// Channels are "channel:event:category" triplets; the event part is
	// empty for private channels.
	Channels []string
	// UserChannel subscribes the per-user private channel "user.<id>"
	// in addition to the broadcast channels.
	UserChannel bool
}

type SessionConfig struct {
	Token string
}

type FeedConfig struct {
	RecentWindowDays  int
	SeenCapacity      int
	ReconcileInterval time.Duration
	ToastTTL          time.Duration
}

type CacheConfig struct {
	Path string
}

// defaultChannels covers the workflow categories the dashboard raises
// notifications for.
var defaultChannels = []string{
	"phc-updates:PhcSubmitted:phc",
	"work-orders:WorkOrderUpdated:work order",
	"logs:LogCreated:log",
	"invoices:InvoiceIssued:invoice",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	backendTimeout, err := time.ParseDuration(getEnv("BACKEND_TIMEOUT", "15s"))
	if err != nil {
		backendTimeout = 15 * time.Second
	}

	reconcileInterval, err := time.ParseDuration(getEnv("RECONCILE_INTERVAL", "15m"))
	if err != nil {
		reconcileInterval = 15 * time.Minute
	}

	toastTTL, err := time.ParseDuration(getEnv("TOAST_TTL", "5s"))
	if err != nil {
		toastTTL = 5 * time.Second
	}

	channels := parseCSV(getEnv("PUSH_CHANNELS", ""))
	if len(channels) == 0 {
		channels = defaultChannels
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8090"),
			Env:            getEnv("ENV", "development"),
			ViewToken:      getEnv("VIEW_TOKEN", ""),
			AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "")),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_URL", "http://localhost:8000"),
			Timeout: backendTimeout,
		},
		Push: PushConfig{
			URL:         getEnv("PUSH_URL", "ws://localhost:6001/ws"),
			Channels:    channels,
			UserChannel: getEnv("PUSH_USER_CHANNEL", "true") == "true",
		},
		Session: SessionConfig{
			Token: getEnv("SESSION_TOKEN", ""),
		},
		Feed: FeedConfig{
			RecentWindowDays:  getEnvInt("RECENT_WINDOW_DAYS", 7),
			SeenCapacity:      getEnvInt("SEEN_CAPACITY", 4096),
			ReconcileInterval: reconcileInterval,
			ToastTTL:          toastTTL,
		},
		Cache: CacheConfig{
			Path: getEnv("READ_CACHE_PATH", "notifyd-cache.db"),
		},
	}, nil
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseCSV parses a comma-separated string into a slice of strings
func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
