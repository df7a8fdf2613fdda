package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// StorageConfig selects the gateway backend: "mongo", "sheets" or "memory".
type StorageConfig struct {
	Backend string
}

type MongoConfig struct {
	URI      string
	Database string
}

type SheetsConfig struct {
	URL     string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UserTTL  time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type LogConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Mongo    MongoConfig
	Sheets   SheetsConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Log      LogConfig
	Auth     AuthConfig
	SeedFile string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Storage: StorageConfig{Backend: "mongo"},
		Mongo:   MongoConfig{Database: "dentalab"},
		Sheets:  SheetsConfig{Timeout: 15 * time.Second},
		Redis:   RedisConfig{UserTTL: 60 * time.Second},
		AMQP:    AMQPConfig{Exchange: "orders_topic"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
	}
	cfg.Server.LoadFromEnv()
	cfg.Storage.LoadFromEnv()
	cfg.Mongo.LoadFromEnv()
	cfg.Sheets.LoadFromEnv()
	cfg.Redis.LoadFromEnv()
	cfg.AMQP.LoadFromEnv()
	cfg.Log.LoadFromEnv()
	cfg.Auth.LoadFromEnv()
	cfg.SeedFile = os.Getenv("SEED_FILE")
	return cfg
}

func (c *ServerConfig) LoadFromEnv() {
	if port := os.Getenv("API_PORT"); port != "" {
		c.Port = port
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
}

func (c *StorageConfig) LoadFromEnv() {
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		c.Backend = strings.ToLower(backend)
	}
}

func (c *MongoConfig) LoadFromEnv() {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.URI = uri
	}
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		c.Database = db
	}
}

func (c *SheetsConfig) LoadFromEnv() {
	if url := os.Getenv("SHEETS_URL"); url != "" {
		c.URL = url
	}
	if secs := envInt("SHEETS_TIMEOUT"); secs > 0 {
		c.Timeout = time.Duration(secs) * time.Second
	}
}

func (c *RedisConfig) LoadFromEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := envInt("REDIS_DB"); db > 0 {
		c.DB = db
	}
	if secs := envInt("USER_CACHE_TTL"); secs > 0 {
		c.UserTTL = time.Duration(secs) * time.Second
	}
}

func (c *AMQPConfig) LoadFromEnv() {
	if url := os.Getenv("AMQP_URL"); url != "" {
		c.URL = url
	}
	if exchange := os.Getenv("AMQP_EXCHANGE"); exchange != "" {
		c.Exchange = exchange
	}
}

func (c *LogConfig) LoadFromEnv() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Level = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Format = strings.ToLower(format)
	}
}

func (c *AuthConfig) LoadFromEnv() {
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if hours := envInt("JWT_TTL_HOURS"); hours > 0 {
		c.TokenTTL = time.Duration(hours) * time.Hour
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
