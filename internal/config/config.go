package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-based settings
type Config struct {
	Environment      string
	DatabaseURL      string
	MigrationsPath   string
	StatementTimeout time.Duration
	JWTSecret        string
	ServerAddress    string
	MetricsAddress   string
	EngineConfigPath string

	RedisAddress  string
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string
	MQTTClientID  string

	UseSpaces bool
	Spaces    Spaces
	ExportDir string
}

type Spaces struct {
	Endpoint  string
	Region    string
	Bucket    string
	CDNURL    string
	AccessKey string
	SecretKey string
}

// Load reads a .env file when present, then configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	timeout := 10 * time.Second
	if v := os.Getenv("DB_STATEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("DB_STATEMENT_TIMEOUT: invalid duration %q", v)
		}
		timeout = d
	}

	useSpaces := false
	if v := os.Getenv("USE_SPACES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("USE_SPACES: %w", err)
		}
		useSpaces = b
	}

	cfg := &Config{
		Environment:      getenv("APP_ENV", "production"),
		DatabaseURL:      dbURL,
		MigrationsPath:   getenv("MIGRATIONS_PATH", "./migrations"),
		StatementTimeout: timeout,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ServerAddress:    getenv("SERVER_ADDRESS", ":8080"),
		MetricsAddress:   os.Getenv("METRICS_ADDRESS"),
		EngineConfigPath: os.Getenv("ENGINE_CONFIG"),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "playout"),

		UseSpaces: useSpaces,
		Spaces: Spaces{
			Endpoint:  os.Getenv("SPACES_ENDPOINT"),
			Region:    os.Getenv("SPACES_REGION"),
			Bucket:    os.Getenv("SPACES_BUCKET"),
			CDNURL:    os.Getenv("SPACES_CDN_URL"),
			AccessKey: os.Getenv("SPACES_ACCESS_KEY"),
			SecretKey: os.Getenv("SPACES_SECRET_KEY"),
		},
		ExportDir: getenv("EXPORT_DIR", "./exports"),
	}

	if cfg.UseSpaces && (cfg.Spaces.Bucket == "" || cfg.Spaces.Endpoint == "") {
		return nil, fmt.Errorf("SPACES_BUCKET and SPACES_ENDPOINT are required when USE_SPACES is set")
	}
	return cfg, nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
