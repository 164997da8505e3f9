package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yukikurage/taskflow/internal/constants"
	"gopkg.in/yaml.v3"
)

const defaultSessionSecret = "default-secret-key-change-me"

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	DBDriver   string `yaml:"db_driver"`
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBPath     string `yaml:"db_path"`

	SessionStore  string `yaml:"session_store"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`

	SessionSecret        string        `yaml:"session_secret"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
	PasswordHasher       string        `yaml:"password_hasher"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`

	GinMode      string `yaml:"gin_mode"`
	LogLevel     string `yaml:"log_level"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	AppURL       string `yaml:"app_url"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:             ":8080",
		DBDriver:             "mysql",
		DBHost:               "localhost",
		DBPort:               "3306",
		DBUser:               "taskuser",
		DBPassword:           "taskpassword",
		DBName:               "task_management",
		DBPath:               "taskflow.db",
		SessionStore:         "database",
		RedisHost:            "localhost",
		RedisPort:            "6379",
		SessionSecret:        defaultSessionSecret,
		SessionTTL:           constants.DefaultSessionTTL,
		SessionSweepInterval: time.Hour,
		PasswordHasher:       "bcrypt",
		RequestTimeout:       5 * time.Second,
		GinMode:              "debug",
		LogLevel:             "info",
		AppURL:               "http://localhost:8080",
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// Unmarshalling onto the populated struct keeps defaults for absent keys.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.SessionStore = getEnv("SESSION_STORE", c.SessionStore)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.PasswordHasher = getEnv("PASSWORD_HASHER", c.PasswordHasher)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AppURL = getEnv("APP_URL", c.AppURL)

	var err error
	if c.SessionTTL, err = getDurationEnv("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if c.SessionSweepInterval, err = getDurationEnv("SESSION_SWEEP_INTERVAL", c.SessionSweepInterval); err != nil {
		return err
	}
	if c.RequestTimeout, err = getDurationEnv("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.SessionStore {
	case "database", "redis":
	default:
		return fmt.Errorf("unsupported SESSION_STORE %q", c.SessionStore)
	}
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported PASSWORD_HASHER %q", c.PasswordHasher)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.SessionSecret == defaultSessionSecret {
		return fmt.Errorf("SESSION_SECRET must be set in release mode")
	}
	return nil
}

// IsProduction reports whether gin runs in release mode.
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
