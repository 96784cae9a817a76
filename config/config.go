package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Provider   ProviderConfig
	Reconciler ReconcilerConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// ProviderConfig selects and configures the payment provider.
// Name is one of "paystack", "monnify", "stub".
type ProviderConfig struct {
	Name          string
	BaseURL       string
	SecretKey     string // Paystack secret key / Monnify client secret
	APIKey        string // Monnify API key (unused for Paystack)
	ContractCode  string // Monnify contract code
	PreferredBank string // DVA bank slug, e.g. "wema-bank"
	Timeout       time.Duration
}

type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

func Load() *Config {
	// Missing .env is fine; deployments inject env vars directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "agbado:agbado@tcp(localhost:3306)/agbado?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			Issuer:        getEnv("JWT_ISSUER", "agbado"),
		},
		Provider: ProviderConfig{
			Name:          getEnv("PAYMENT_PROVIDER", "paystack"),
			BaseURL:       getEnv("PAYMENT_BASE_URL", ""),
			SecretKey:     getEnv("PAYMENT_SECRET_KEY", ""),
			APIKey:        getEnv("PAYMENT_API_KEY", ""),
			ContractCode:  getEnv("PAYMENT_CONTRACT_CODE", ""),
			PreferredBank: getEnv("PAYMENT_PREFERRED_BANK", "wema-bank"),
			Timeout:       getDuration("PAYMENT_TIMEOUT", 30*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Interval:   getDuration("RECONCILER_INTERVAL", 5*time.Minute),
			StaleAfter: getDuration("RECONCILER_STALE_AFTER", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
