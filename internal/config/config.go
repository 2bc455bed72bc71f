package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Remote agent service
	AgentBaseURL string
	SiteURL      string // public site root, polled for deploy detection

	// Data directory (tab archive, credential file)
	DataDir        string
	DatabasePath   string
	CredentialPath string

	// Environment
	Env string // "development" or "production"

	// Request budgets
	RequestTimeout time.Duration // ordinary management calls
	StreamTimeout  time.Duration // streaming chat call
	HealthTimeout  time.Duration

	// Retry policy
	MaxRetries   int
	RetryBackoff time.Duration // base delay, doubled per attempt

	// Deploy watcher
	DeployInitialDelay time.Duration
	DeployPollInterval time.Duration
	DeployReloadDelay  time.Duration
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("SITEPILOT_DATA_DIR", defaultDataDir())

	return &Config{
		AgentBaseURL: getEnv("SITEPILOT_AGENT_URL", "http://127.0.0.1:8787/api"),
		SiteURL:      getEnv("SITEPILOT_SITE_URL", ""),

		DataDir:        dataDir,
		DatabasePath:   filepath.Join(dataDir, "sitepilot.sqlite"),
		CredentialPath: filepath.Join(dataDir, "credential"),

		Env: getEnv("SITEPILOT_ENV", "development"),

		RequestTimeout: getEnvDuration("SITEPILOT_REQUEST_TIMEOUT", 30*time.Second),
		StreamTimeout:  getEnvDuration("SITEPILOT_STREAM_TIMEOUT", 5*time.Minute),
		HealthTimeout:  getEnvDuration("SITEPILOT_HEALTH_TIMEOUT", 5*time.Second),

		MaxRetries:   getEnvInt("SITEPILOT_MAX_RETRIES", 3),
		RetryBackoff: getEnvDuration("SITEPILOT_RETRY_BACKOFF", time.Second),

		DeployInitialDelay: getEnvDuration("SITEPILOT_DEPLOY_INITIAL_DELAY", 20*time.Second),
		DeployPollInterval: getEnvDuration("SITEPILOT_DEPLOY_POLL_INTERVAL", 5*time.Second),
		DeployReloadDelay:  getEnvDuration("SITEPILOT_DEPLOY_RELOAD_DELAY", 3*time.Second),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".sitepilot")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
