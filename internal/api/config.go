// Package api provides the HTTP server of the kick analysis service.
package api

import (
	"fmt"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultPort            = 3000
	DefaultPortRetries     = 10
	DefaultReadTimeout     = 2 * time.Minute
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultUploadLimit     = "200MB"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host        string // Host to bind to (empty for all interfaces)
	Port        int    // First port to try
	PortRetries int    // Following ports tried when the port is in use

	// Filesystem
	UploadsDir string // Raw uploads are written here
	PublicDir  string // Served as static files

	// Security settings
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response, covers a pipeline run
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	UploadLimit string // Maximum /api/analyze body size (e.g., "200MB")

	MetricsEnabled bool // Expose /metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		PortRetries:     DefaultPortRetries,
		UploadsDir:      "uploads",
		PublicDir:       "public",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		UploadLimit:     DefaultUploadLimit,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	config := DefaultConfig()
	if settings == nil {
		return config
	}

	config.Host = settings.Server.Host
	if settings.Server.Port > 0 {
		config.Port = settings.Server.Port
	}
	if settings.Server.PortRetries >= 0 {
		config.PortRetries = settings.Server.PortRetries
	}
	if settings.Paths.Uploads != "" {
		config.UploadsDir = settings.Paths.Uploads
	}
	if settings.Paths.Public != "" {
		config.PublicDir = settings.Paths.Public
	}
	if len(settings.Server.CORSOrigins) > 0 {
		config.AllowedOrigins = settings.Server.CORSOrigins
	}
	if settings.Server.ReadTimeout > 0 {
		config.ReadTimeout = settings.Server.ReadTimeout
	}
	if settings.Server.WriteTimeout > 0 {
		config.WriteTimeout = settings.Server.WriteTimeout
	}
	if settings.Server.UploadLimit != "" {
		config.UploadLimit = settings.Server.UploadLimit
	}
	config.MetricsEnabled = settings.Server.Metrics

	return config
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PortRetries < 0 {
		return fmt.Errorf("port retries must not be negative")
	}
	if c.UploadsDir == "" || c.PublicDir == "" {
		return fmt.Errorf("uploads and public directories are required")
	}
	if limit, err := bytes.Parse(c.UploadLimit); err != nil || limit <= 0 {
		return fmt.Errorf("invalid upload limit: %q", c.UploadLimit)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}
