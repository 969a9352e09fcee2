package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	JWTIssuer              string
	JWTAudience            string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int
	UnreadCacheTTL         time.Duration
	ReconnectBackoffBase   time.Duration
	ReconnectBackoffCap    time.Duration
	ReconnectMaxAttempts   int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LINKFIELD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Linkfield API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.issuer", "linkfield")
	v.SetDefault("jwt.audience", "linkfield-clients")
	v.SetDefault("cloudinary.folder", "linkfield/chat")
	v.SetDefault("upload.max_size_mb", 25)
	v.SetDefault("unread.cache_ttl", "10m")
	v.SetDefault("reconnect.backoff_base", "1s")
	v.SetDefault("reconnect.backoff_cap", "30s")
	v.SetDefault("reconnect.max_attempts", 8)

	ttl, err := time.ParseDuration(v.GetString("unread.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid unread cache ttl: %w", err)
	}

	backoffBase, err := time.ParseDuration(v.GetString("reconnect.backoff_base"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reconnect backoff base: %w", err)
	}

	backoffCap, err := time.ParseDuration(v.GetString("reconnect.backoff_cap"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reconnect backoff cap: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTIssuer:              v.GetString("jwt.issuer"),
		JWTAudience:            v.GetString("jwt.audience"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		UnreadCacheTTL:         ttl,
		ReconnectBackoffBase:   backoffBase,
		ReconnectBackoffCap:    backoffCap,
		ReconnectMaxAttempts:   v.GetInt("reconnect.max_attempts"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 25
	}

	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = 8
	}

	return cfg, nil
}
