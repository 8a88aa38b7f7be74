// Package config loads service configuration from defaults, an optional
// YAML file, a .env file, and VISTA_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (VISTA_STORE_BACKEND, ...).
const EnvPrefix = "VISTA"

// Config is the fully resolved service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Store      StoreConfig      `mapstructure:"store"`
	Lock       LockConfig       `mapstructure:"lock"`
	Staging    StagingConfig    `mapstructure:"staging"`
	Versioning VersioningConfig `mapstructure:"versioning"`
	Image      ImageConfig      `mapstructure:"image"`
	Events     EventsConfig     `mapstructure:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type GeminiConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	SSMParam string `mapstructure:"ssm_param"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type BlobConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseURL string `mapstructure:"base_url"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	Table      string `mapstructure:"table"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type StagingConfig struct {
	ChatContextMessages int `mapstructure:"chat_context_messages"`
	MutateAttempts      int `mapstructure:"mutate_attempts"`
}

type VersioningConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxVersions int  `mapstructure:"max_versions"`
}

type ImageConfig struct {
	MaxDimension int           `mapstructure:"max_dimension"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type EventsConfig struct {
	Bus    string `mapstructure:"bus"`
	Source string `mapstructure:"source"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Backend names accepted by Validate.
const (
	StoreDynamo = "dynamodb"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	BlobS3     = "s3"
	BlobMemory = "memory"

	LockMemory = "memory"
	LockRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.ssm_param", "/vista/prod/gemini-api-key")

	v.SetDefault("aws.region", "")

	v.SetDefault("blob.backend", BlobS3)
	v.SetDefault("blob.bucket", "vista-resources")
	v.SetDefault("blob.base_url", "")

	v.SetDefault("store.backend", StoreDynamo)
	v.SetDefault("store.table", "vista-documents")
	v.SetDefault("store.sqlite_path", "vista.db")

	v.SetDefault("lock.backend", LockMemory)
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", 5*time.Minute)

	v.SetDefault("staging.chat_context_messages", 6)
	v.SetDefault("staging.mutate_attempts", 5)

	v.SetDefault("versioning.enabled", false)
	v.SetDefault("versioning.max_versions", 10)

	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.fetch_timeout", 30*time.Second)

	v.SetDefault("events.bus", "")
	v.SetDefault("events.source", "vista.staging")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "VistaStaging")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

// Load resolves the configuration. path may name a YAML file; an empty
// path skips the file layer. A .env file in the working directory is
// loaded into the process environment if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to parse .env file")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Comma-separated env override for the origin list.
	if raw := os.Getenv(EnvPrefix + "_CORS_ALLOWED_ORIGINS"); raw != "" {
		cfg.CORS.AllowedOrigins = splitList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and non-positive limits.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreDynamo, StoreSQLite, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want dynamodb, sqlite or memory", c.Store.Backend))
	}
	switch c.Blob.Backend {
	case BlobS3, BlobMemory:
	default:
		errs = append(errs, fmt.Errorf("blob.backend %q: want s3 or memory", c.Blob.Backend))
	}
	switch c.Lock.Backend {
	case LockMemory, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q: want memory or redis", c.Lock.Backend))
	}
	if c.Store.Backend == StoreDynamo && c.Store.Table == "" {
		errs = append(errs, errors.New("store.table is required for the dynamodb backend"))
	}
	if c.Blob.Backend == BlobS3 && c.Blob.Bucket == "" {
		errs = append(errs, errors.New("blob.bucket is required for the s3 backend"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Staging.ChatContextMessages <= 0 {
		errs = append(errs, errors.New("staging.chat_context_messages must be positive"))
	}
	if c.Staging.MutateAttempts <= 0 {
		errs = append(errs, errors.New("staging.mutate_attempts must be positive"))
	}
	if c.Versioning.Enabled && c.Versioning.MaxVersions <= 0 {
		errs = append(errs, errors.New("versioning.max_versions must be positive when versioning is enabled"))
	}
	if c.Image.MaxDimension <= 0 {
		errs = append(errs, errors.New("image.max_dimension must be positive"))
	}
	return errors.Join(errs...)
}

// BlobBaseURL returns the public URL prefix for stored objects, deriving
// the virtual-hosted S3 form when blob.base_url is unset.
func (c *Config) BlobBaseURL(region string) string {
	if c.Blob.BaseURL != "" {
		if !strings.HasSuffix(c.Blob.BaseURL, "/") {
			return c.Blob.BaseURL + "/"
		}
		return c.Blob.BaseURL
	}
	if region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/", c.Blob.Bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", c.Blob.Bucket, region)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
