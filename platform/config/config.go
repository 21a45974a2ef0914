package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime option of the gateway. Values come from
// the environment (optionally via a .env file) and stay immutable for
// the lifetime of the process.
type Config struct {
	// Server
	Port          string
	AdminUsername string
	AdminPassword string
	IPAllowlist   []string

	// Destinations
	WebhookURL          string
	SecondaryWebhookURL string

	// Mention detection
	MentionsEnabled     bool
	MentionWebhookURL   string
	MentionWebhookToken string
	MentionKeywords     []string
	MentionsOnly        bool

	// Pipeline flags
	ForwardOutgoing       bool
	ForwardMessageUpdates bool
	LogPresence           bool

	// WhatsApp client
	WhatsAppEnabled  bool
	SessionDBPath    string
	WhatsAppLogLevel string

	// Limits
	RecentEventsLimit  int
	MessagesPerSource  int
	MessagesTotalLimit int
	MediaMaxFiles      int
	MediaMaxBytes      int64

	// Alert channels
	AlertWebhookURL string
	SlackWebhookURL string

	InstanceName string
	DataDir      string
	Environment  string

	Log LogConfig
}

// LogConfig groups the logger options.
type LogConfig struct {
	Level  string
	Format string
	Output string
	Caller bool
}

// Load reads the configuration from the environment. A .env file is
// honored when present.
func Load() *Config {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		Port:          getEnv("PORT", "8080"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		IPAllowlist:   splitList(getEnv("IP_ALLOWLIST", "")),

		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		SecondaryWebhookURL: getEnv("SECONDARY_WEBHOOK_URL", ""),

		MentionsEnabled:     getEnvBool("MENTIONS_ENABLED", false),
		MentionWebhookURL:   getEnv("MENTION_WEBHOOK_URL", ""),
		MentionWebhookToken: getEnv("MENTION_WEBHOOK_TOKEN", ""),
		MentionKeywords:     splitList(getEnv("MENTION_KEYWORDS", "דוד,david")),
		MentionsOnly:        getEnvBool("MENTIONS_ONLY", false),

		ForwardOutgoing:       getEnvBool("FORWARD_OUTGOING", false),
		ForwardMessageUpdates: getEnvBool("FORWARD_MESSAGE_UPDATES", false),
		LogPresence:           getEnvBool("LOG_PRESENCE", false),

		WhatsAppEnabled:  getEnvBool("WHATSAPP_ENABLED", false),
		SessionDBPath:    getEnv("SESSION_DB_PATH", filepath.Join(dataDir, "session.db")),
		WhatsAppLogLevel: getEnv("WA_LOG_LEVEL", "INFO"),

		RecentEventsLimit:  getEnvInt("RECENT_EVENTS_LIMIT", 100),
		MessagesPerSource:  getEnvInt("MESSAGES_PER_SOURCE", 100),
		MessagesTotalLimit: getEnvInt("MESSAGES_TOTAL_LIMIT", 5000),
		MediaMaxFiles:      getEnvInt("MEDIA_MAX_FILES", 500),
		MediaMaxBytes:      getEnvInt64("MEDIA_MAX_BYTES", 10*1024*1024),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),

		InstanceName: getEnv("INSTANCE_NAME", "zapfilter"),
		DataDir:      dataDir,
		Environment:  getEnv("ENVIRONMENT", "development"),

		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
			Caller: getEnvBool("LOG_CALLER", false),
		},
	}
}

// Validate enforces the startup requirements. Only these two
// conditions are fatal; everything else degrades at runtime.
func (c *Config) Validate() error {
	if !c.WhatsAppEnabled && c.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WHATSAPP_ENABLED is false")
	}
	if c.IsProduction() && c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// HasEnvWebhookURL reports whether the default destination came from
// the environment, which makes it win over the persisted one.
func (c *Config) HasEnvWebhookURL() bool {
	return c.WebhookURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
