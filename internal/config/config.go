package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is built once at process start and passed down explicitly.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig
	Upload   UploadConfig
	CORS     CORSConfig
	Metrics  MetricsConfig
	Admin    AdminConfig
	IDs      IDConfig
}

type AppConfig struct {
	Name string `env:"APP_NAME" env-default:"pg-user-api"`
	Env  string `env:"APP_ENV" env-default:"production"`
}

type HTTPConfig struct {
	Port            string        `env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
	TrustedProxies  []string      `env:"HTTP_TRUSTED_PROXIES" env-separator:","`
}

type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" env-default:"sqlite3"`
	DSN             string        `env:"DB_DSN" env-default:"file:users.db?_busy_timeout=5000&_foreign_keys=on"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	PingTimeout     time.Duration `env:"DB_PING_TIMEOUT" env-default:"5s"`
}

type LogConfig struct {
	Level        string        `env:"LOG_LEVEL" env-default:"info"`
	Dev          bool          `env:"LOG_DEV" env-default:"false"`
	File         string        `env:"LOG_FILE"`
	MaxAge       time.Duration `env:"LOG_MAX_AGE" env-default:"168h"`
	RotationTime time.Duration `env:"LOG_ROTATION_TIME" env-default:"24h"`
}

type AuthConfig struct {
	BcryptCost   int  `env:"AUTH_BCRYPT_COST" env-default:"12"`
	RecordLogins bool `env:"AUTH_RECORD_LOGINS" env-default:"true"`
}

type UploadConfig struct {
	MaxPhotoBytes int64  `env:"UPLOAD_MAX_PHOTO_BYTES" env-default:"5242880"`
	StagingDir    string `env:"UPLOAD_STAGING_DIR"`
	// StagingKey is a 32 byte key, hex encoded or raw.
	StagingKey string `env:"UPLOAD_STAGING_KEY"`
}

type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" env-separator:"," env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" env-separator:"," env-default:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
}

type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" env-default:"true"`
	Path    string `env:"METRICS_PATH" env-default:"/metrics"`
}

// AdminConfig seeds an administrator account on start when both fields are set.
type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
	Name     string `env:"ADMIN_NAME" env-default:"Administrator"`
	Phone    string `env:"ADMIN_PHONE" env-default:"0000000000"`
}

type IDConfig struct {
	SnowflakeNode int64 `env:"SNOWFLAKE_NODE" env-default:"1"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// best effort: a missing .env is fine, real env wins anyway
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks rules cleanenv tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}
	if c.Upload.MaxPhotoBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_PHOTO_BYTES must be positive"))
	}
	if c.Upload.StagingDir != "" {
		if _, err := c.Upload.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.IDs.SnowflakeNode < 0 || c.IDs.SnowflakeNode > 1023 {
		errs = append(errs, fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023, got %d", c.IDs.SnowflakeNode))
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether internal error text may be returned to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Env, "development")
}

// Key decodes the staging key. Both 64 hex characters and 32 raw bytes are accepted.
func (u UploadConfig) Key() ([]byte, error) {
	k := strings.TrimSpace(u.StagingKey)
	if len(k) == 64 {
		if b, err := hex.DecodeString(k); err == nil {
			return b, nil
		}
	}
	if len(k) == 32 {
		return []byte(k), nil
	}
	return nil, fmt.Errorf("UPLOAD_STAGING_KEY must be 32 bytes or 64 hex characters, got %d characters", len(k))
}

// StagingEnabled reports whether photos get an encrypted on-disk copy.
func (u UploadConfig) StagingEnabled() bool {
	return u.StagingDir != ""
}

// MustLoad is Load for main packages.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
