package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Delivery log database
	Database DatabaseConfig `yaml:"database"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// GitHub API and webhook configuration
	GitHub GitHubConfig `yaml:"github"`

	// Where icons come from
	Source SourceConfig `yaml:"source"`

	// Where icons go
	Target TargetConfig `yaml:"target"`

	// Reconciliation tuning
	Sync SyncConfig `yaml:"sync"`

	// WhatsApp notifications
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // requests per minute per client
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// SecurityConfig holds security-specific configuration
type SecurityConfig struct {
	// API Keys - sent by clients of the admin endpoints
	APIKeys []string `yaml:"api_keys"`
}

// GitHubConfig holds GitHub API credentials and the webhook secret
type GitHubConfig struct {
	WebhookSecret  string        `yaml:"webhook_secret"`
	APIBaseURL     string        `yaml:"api_base_url"`
	AuthStrategy   string        `yaml:"auth_strategy"` // "token" or "app"
	Token          string        `yaml:"token"`
	AppID          int64         `yaml:"app_id"`
	InstallationID int64         `yaml:"installation_id"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SourceConfig identifies the repository that owns the icons
type SourceConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"` // only pushes to this branch sync; empty accepts all
	Prefix string `yaml:"prefix"`
	// GitURLFormat is used by the git backend, fmt pattern of owner and repo
	GitURLFormat string `yaml:"git_url_format"`
}

// TargetConfig identifies the repository icons are committed to
type TargetConfig struct {
	Backend       string `yaml:"backend"` // "github" or "git"
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	Branch        string `yaml:"branch"`
	OutputDir     string `yaml:"output_dir"`
	FileMode      string `yaml:"file_mode"`
	CommitMessage string `yaml:"commit_message"`
	GitURL        string `yaml:"git_url"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
}

// SyncConfig tunes a reconciliation
type SyncConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Collision   string        `yaml:"collision"` // "fail" or "last-writer"
}

// WhatsAppConfig holds WhatsApp-specific configuration
type WhatsAppConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Recipient  string `yaml:"recipient"` // JID notified after each sync
	SessionDSN string `yaml:"session_dsn"`
	LogLevel   string `yaml:"log_level"`
	DeviceName string `yaml:"device_name"` // Custom device name that appears in WhatsApp linked devices
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:icon-sync.db?_foreign_keys=on",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		GitHub: GitHubConfig{
			APIBaseURL:   "https://api.github.com",
			AuthStrategy: "token",
			Timeout:      30 * time.Second,
		},
		Source: SourceConfig{
			Prefix:       "app/src/main/res/drawable-nodpi",
			GitURLFormat: "https://github.com/%s/%s.git",
		},
		Target: TargetConfig{
			Backend:       "github",
			Branch:        "master",
			OutputDir:     "icons",
			FileMode:      "100755",
			CommitMessage: "Updated icons",
		},
		Sync: SyncConfig{
			Concurrency: 4,
			Timeout:     2 * time.Minute,
			Collision:   "fail",
		},
		WhatsApp: WhatsAppConfig{
			SessionDSN: "file:whatsapp.db?_foreign_keys=on",
			LogLevel:   "INFO",
			DeviceName: "icon-sync",
		},
	}
}

// Read builds the configuration from defaults, the optional YAML file named
// by ICONSYNC_CONFIG, and environment variables, in increasing precedence.
func Read() (*Config, error) {
	// Try to load .env file (ignore errors - it's optional)
	_ = godotenv.Load(".env")

	cfg := Default()

	if path := os.Getenv("ICONSYNC_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Load reads the configuration and validates it for running the server
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.RateLimit = getEnvAsInt("SERVER_RATE_LIMIT", c.Server.RateLimit)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Security.APIKeys = getEnvAsSlice("API_KEYS", c.Security.APIKeys)

	c.GitHub.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", c.GitHub.WebhookSecret)
	c.GitHub.APIBaseURL = getEnv("GITHUB_API_BASE_URL", c.GitHub.APIBaseURL)
	c.GitHub.AuthStrategy = getEnv("GITHUB_AUTH_STRATEGY", c.GitHub.AuthStrategy)
	c.GitHub.Token = getEnv("GITHUB_TOKEN", c.GitHub.Token)
	c.GitHub.AppID = getEnvAsInt64("GITHUB_APP_ID", c.GitHub.AppID)
	c.GitHub.InstallationID = getEnvAsInt64("GITHUB_INSTALLATION_ID", c.GitHub.InstallationID)
	c.GitHub.PrivateKeyFile = getEnv("GITHUB_PRIVATE_KEY_FILE", c.GitHub.PrivateKeyFile)
	c.GitHub.Timeout = getEnvAsDuration("GITHUB_TIMEOUT", c.GitHub.Timeout)

	c.Source.Owner = getEnv("SOURCE_OWNER", c.Source.Owner)
	c.Source.Repo = getEnv("SOURCE_REPO", c.Source.Repo)
	c.Source.Branch = getEnv("SOURCE_BRANCH", c.Source.Branch)
	c.Source.Prefix = getEnv("SOURCE_PREFIX", c.Source.Prefix)
	c.Source.GitURLFormat = getEnv("SOURCE_GIT_URL_FORMAT", c.Source.GitURLFormat)

	c.Target.Backend = getEnv("TARGET_BACKEND", c.Target.Backend)
	c.Target.Owner = getEnv("TARGET_OWNER", c.Target.Owner)
	c.Target.Repo = getEnv("TARGET_REPO", c.Target.Repo)
	c.Target.Branch = getEnv("TARGET_BRANCH", c.Target.Branch)
	c.Target.OutputDir = getEnv("TARGET_OUTPUT_DIR", c.Target.OutputDir)
	c.Target.FileMode = getEnv("TARGET_FILE_MODE", c.Target.FileMode)
	c.Target.CommitMessage = getEnv("TARGET_COMMIT_MESSAGE", c.Target.CommitMessage)
	c.Target.GitURL = getEnv("TARGET_GIT_URL", c.Target.GitURL)
	c.Target.AuthorName = getEnv("TARGET_AUTHOR_NAME", c.Target.AuthorName)
	c.Target.AuthorEmail = getEnv("TARGET_AUTHOR_EMAIL", c.Target.AuthorEmail)

	c.Sync.Concurrency = getEnvAsInt("SYNC_CONCURRENCY", c.Sync.Concurrency)
	c.Sync.Timeout = getEnvAsDuration("SYNC_TIMEOUT", c.Sync.Timeout)
	c.Sync.Collision = getEnv("SYNC_COLLISION", c.Sync.Collision)

	c.WhatsApp.Enabled = getEnvAsBool("WHATSAPP_ENABLED", c.WhatsApp.Enabled)
	c.WhatsApp.Recipient = getEnv("WHATSAPP_RECIPIENT", c.WhatsApp.Recipient)
	c.WhatsApp.SessionDSN = getEnv("WHATSAPP_SESSION_DSN", c.WhatsApp.SessionDSN)
	c.WhatsApp.LogLevel = getEnv("WHATSAPP_LOG_LEVEL", c.WhatsApp.LogLevel)
	c.WhatsApp.DeviceName = getEnv("WHATSAPP_DEVICE_NAME", c.WhatsApp.DeviceName)
}

// Validate validates the configuration for the webhook server
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	// Security validation
	if len(c.Security.APIKeys) == 0 {
		return fmt.Errorf("at least one API key is required")
	}

	// Check for default/insecure API keys
	for _, key := range c.Security.APIKeys {
		if key == "default-api-key" || key == "api-key-123" || len(key) < 8 {
			return fmt.Errorf("insecure or default API key detected: '%s'. Please set secure API keys in environment variables", key)
		}
	}

	if c.WhatsApp.Enabled && c.WhatsApp.Recipient == "" {
		return fmt.Errorf("WHATSAPP_RECIPIENT is required when WhatsApp notifications are enabled")
	}

	return c.ValidateSync()
}

// ValidateSync checks only what a reconciliation needs
func (c *Config) ValidateSync() error {
	if c.Source.Prefix == "" {
		return fmt.Errorf("source prefix is required")
	}

	switch c.Target.Backend {
	case "github":
		if c.Target.Owner == "" || c.Target.Repo == "" {
			return fmt.Errorf("target owner and repo are required")
		}
	case "git":
		if c.Target.GitURL == "" {
			return fmt.Errorf("TARGET_GIT_URL is required for the git backend")
		}
	default:
		return fmt.Errorf("unknown target backend %q", c.Target.Backend)
	}

	switch c.GitHub.AuthStrategy {
	case "token":
		if c.GitHub.Token == "" && c.Target.Backend == "github" {
			return fmt.Errorf("GITHUB_TOKEN is required for the token auth strategy")
		}
	case "app":
		if c.GitHub.AppID == 0 || c.GitHub.InstallationID == 0 || c.GitHub.PrivateKeyFile == "" {
			return fmt.Errorf("app id, installation id and private key file are required for the app auth strategy")
		}
	default:
		return fmt.Errorf("unknown GitHub auth strategy %q", c.GitHub.AuthStrategy)
	}

	switch c.Target.FileMode {
	case "100644", "100755":
	default:
		return fmt.Errorf("invalid target file mode %q", c.Target.FileMode)
	}

	switch c.Sync.Collision {
	case "fail", "last-writer":
	default:
		return fmt.Errorf("invalid collision policy %q", c.Sync.Collision)
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be positive, got %d", c.Sync.Concurrency)
	}

	return nil
}

// Address returns the server address in the format host:port
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TargetRef returns the target branch as a Git Data API ref name
func (t *TargetConfig) TargetRef() string {
	return "heads/" + strings.TrimPrefix(t.Branch, "refs/heads/")
}

// Helper functions to get environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma and trim spaces
	values := make([]string, 0)
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	return values
}
