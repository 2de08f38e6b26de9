package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Credential store kinds.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// DefaultPlaceholderImage is shown in place of any server-provided avatar.
const DefaultPlaceholderImage = "/path-to-default-pic.jpg"

// Config aggregates runtime configuration for the client.
type Config struct {
	App        AppConfig
	API        APIConfig
	Credential CredentialConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Profile    ProfileConfig
}

// AppConfig identifies the running client.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// APIConfig points at the staff profile backend.
type APIConfig struct {
	BaseURL               string
	RequestTimeoutSeconds int
}

// CredentialConfig selects where the bearer token is read from.
type CredentialConfig struct {
	Store    string
	Path     string
	RedisKey string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig controls token decoding. An empty secret decodes without verifying.
type AuthConfig struct {
	JWTSecret string
}

// ProfileConfig holds presentation defaults for the profile view.
type ProfileConfig struct {
	PlaceholderImage string
}

// flagBindings maps CLI flag names to the env keys they override.
var flagBindings = map[string]string{
	"api":       "PROFILE_API_BASE_URL",
	"store":     "CREDENTIAL_STORE",
	"log-level": "LOG_LEVEL",
}

// Load reads configuration from .env, environment variables and, when given,
// command line flags. Flags win over the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagBindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	redisDB, err := strconv.Atoi(v.GetString("REDIS_DB"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("CREDENTIAL_STORE")))
	switch store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid CREDENTIAL_STORE %q", store)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("APP_NAME"),
			Env:     v.GetString("APP_ENV"),
			Version: v.GetString("APP_VERSION"),
		},
		API: APIConfig{
			BaseURL:               strings.TrimRight(v.GetString("PROFILE_API_BASE_URL"), "/"),
			RequestTimeoutSeconds: v.GetInt("PROFILE_API_TIMEOUT_SECONDS"),
		},
		Credential: CredentialConfig{
			Store:    store,
			Path:     v.GetString("CREDENTIAL_PATH"),
			RedisKey: v.GetString("CREDENTIAL_REDIS_KEY"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("AUTH_JWT_SECRET"),
		},
		Profile: ProfileConfig{
			PlaceholderImage: v.GetString("PROFILE_PLACEHOLDER_IMAGE"),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("PROFILE_API_BASE_URL must not be empty")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "myprofile")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "dev")

	v.SetDefault("PROFILE_API_BASE_URL", "http://localhost:3001")
	v.SetDefault("PROFILE_API_TIMEOUT_SECONDS", 15)

	v.SetDefault("CREDENTIAL_STORE", StoreFile)
	v.SetDefault("CREDENTIAL_PATH", defaultCredentialPath())
	v.SetDefault("CREDENTIAL_REDIS_KEY", "myprofile:token")

	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", "0")

	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("PROFILE_PLACEHOLDER_IMAGE", DefaultPlaceholderImage)
}

func defaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".myprofile", "token")
	}
	return filepath.Join(home, ".myprofile", "token")
}

// RequestTimeout returns the configured per-request timeout.
func (a APIConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
