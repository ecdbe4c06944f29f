package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`
	StaticDir       string        `json:"static_dir"`

	// Redis configuration
	RedisURL    string        `json:"redis_url"`
	RedisPrefix string        `json:"redis_prefix"`
	CacheTTL    time.Duration `json:"cache_ttl"`

	// CloudFlare R2 Configuration
	R2Endpoint    string        `json:"r2_endpoint"`
	R2AccessKey   string        `json:"r2_access_key"`
	R2SecretKey   string        `json:"r2_secret_key"`
	R2Bucket      string        `json:"r2_bucket"`
	R2AccountID   string        `json:"r2_account_id"`
	R2PublicURL   string        `json:"r2_public_url"`
	UploadExpiry  time.Duration `json:"upload_expiry"`
	MaxUploadSize int64         `json:"max_upload_size"`
	VerifyUploads bool          `json:"verify_uploads"`

	// Content store
	StoreDriver       string `json:"store_driver"`
	SupabaseURL       string `json:"supabase_url"`
	SupabaseAnonKey   string `json:"supabase_anon_key"`
	SupabaseJWTSecret string `json:"supabase_jwt_secret"`
	DatabaseURL       string `json:"database_url"`
	DBMigrate         bool   `json:"db_migrate"`
	DataPath          string `json:"data_path"`

	// Local admin session (file/postgres drivers)
	AdminEmail    string        `json:"admin_email"`
	AdminPassword string        `json:"-"`
	SessionSecret string        `json:"-"`
	SessionTTL    time.Duration `json:"session_ttl"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogOutput string `json:"log_output"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		StaticDir:       getEnv("STATIC_DIR", "./web/static"),

		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "shiurim:"),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		R2Endpoint:    getEnv("R2_ENDPOINT", ""),
		R2AccessKey:   getEnv("CLOUDFLARE_ACCESS_KEY_ID", ""),
		R2SecretKey:   getEnv("CLOUDFLARE_SECRET_ACCESS_KEY", ""),
		R2Bucket:      getEnv("CLOUDFLARE_BUCKET_NAME", ""),
		R2AccountID:   getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		R2PublicURL:   strings.TrimRight(getEnv("CLOUDFLARE_R2_URL", ""), "/"),
		UploadExpiry:  getEnvAsDuration("UPLOAD_URL_EXPIRY", time.Hour),
		MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_SIZE", 500<<20), // 500MiB
		VerifyUploads: getEnvAsBool("VERIFY_UPLOADS", false),

		StoreDriver:       getEnv("STORE_DRIVER", ""),
		SupabaseURL:       strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:   getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMigrate:         getEnvAsBool("DB_MIGRATE", true),
		DataPath:          getEnv("DATA_PATH", "./data"),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 12*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = cfg.defaultDriver()
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

func (c *Config) defaultDriver() string {
	switch {
	case c.SupabaseURL != "":
		return DriverSupabase
	case c.DatabaseURL != "":
		return DriverPostgres
	default:
		return DriverFile
	}
}

// Validate checks the settings the server cannot start without. Storage
// settings are deliberately absent: the credential endpoint reports them.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("store driver %q requires SUPABASE_URL and SUPABASE_ANON_KEY", c.StoreDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store driver %q requires DATABASE_URL", c.StoreDriver)
		}
	case DriverFile:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.StoreDriver != DriverSupabase && c.SessionSecret == "" && c.IsProduction() {
		return fmt.Errorf("SESSION_SECRET is required in production")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

// MissingStorage lists the storage variables that are not set.
func (c *Config) MissingStorage() []string {
	var missing []string
	if c.R2AccessKey == "" {
		missing = append(missing, "CLOUDFLARE_ACCESS_KEY_ID")
	}
	if c.R2SecretKey == "" {
		missing = append(missing, "CLOUDFLARE_SECRET_ACCESS_KEY")
	}
	if c.R2Bucket == "" {
		missing = append(missing, "CLOUDFLARE_BUCKET_NAME")
	}
	if c.R2AccountID == "" && c.R2Endpoint == "" {
		missing = append(missing, "CLOUDFLARE_ACCOUNT_ID")
	}
	if c.R2PublicURL == "" {
		missing = append(missing, "CLOUDFLARE_R2_URL")
	}
	return missing
}

// StorageEndpoint returns the S3 API endpoint of the R2 account.
func (c *Config) StorageEndpoint() string {
	if c.R2Endpoint != "" {
		return strings.TrimRight(c.R2Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %t", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
