package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Subscription registry backends.
const (
	StoreAuto     = "auto"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		ReadTimeout  string   `yaml:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout"`
		CORSOrigins  []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Cache struct {
		QuestionTTL string `yaml:"question_ttl"`
	} `yaml:"cache"`
	Auth struct {
		JWTSecret         string `yaml:"jwt_secret"`
		TokenTTL          string `yaml:"token_ttl"`
		BcryptCost        int    `yaml:"bcrypt_cost"`
		AdminUsername     string `yaml:"admin_username"`
		AdminPasswordHash string `yaml:"admin_password_hash"`
	} `yaml:"auth"`
	Push struct {
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Subject         string `yaml:"subject"`
		TTL             string `yaml:"ttl"`
		Concurrency     int    `yaml:"concurrency"`
		Store           string `yaml:"store"`
		SQLitePath      string `yaml:"sqlite_path"`
	} `yaml:"push"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies variables from a .env file
// in the working directory and the process environment. A missing config
// file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Postgres.URL, "DATABASE_URL")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Auth.AdminUsername, "ADMIN_USERNAME")
	set(&c.Auth.AdminPasswordHash, "ADMIN_PASSWORD_HASH")
	set(&c.Push.VAPIDPublicKey, "VAPID_PUBLIC_KEY")
	set(&c.Push.VAPIDPrivateKey, "VAPID_PRIVATE_KEY")
	set(&c.Push.Subject, "VAPID_SUBJECT")
	set(&c.Push.Store, "PUSH_STORE")
	set(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Push.Subject == "" {
		c.Push.Subject = "mailto:admin@maihome.local"
	}
	if c.Push.Store == "" {
		c.Push.Store = StoreAuto
	}
	if c.Push.SQLitePath == "" {
		c.Push.SQLitePath = "data/subscriptions.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// SubscriptionStore resolves StoreAuto to a concrete backend: postgres when
// configured, else redis, else memory.
func (c Config) SubscriptionStore() string {
	if c.Push.Store != StoreAuto && c.Push.Store != "" {
		return c.Push.Store
	}
	switch {
	case c.Postgres.URL != "":
		return StorePostgres
	case c.Redis.Addr != "":
		return StoreRedis
	default:
		return StoreMemory
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
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
