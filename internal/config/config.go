// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds servicehost configuration.
type Config struct {
	// HTTP listener (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr string `envconfig:"HTTP_ADDR"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// AppEnv "production" strips fault details from error replies.
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	// ServiceName names this host in COMMS connections and lifecycle events.
	ServiceName string `envconfig:"SERVICE_NAME" default:"servicehost"`
	// PrimaryService is the service mounted at the HTTP root (empty = first user service).
	PrimaryService    string `envconfig:"PRIMARY_SERVICE"`
	ServiceConfigFile string `envconfig:"SERVICE_CONFIG_FILE"`

	// TLS; a client CA enables optional client certificates.
	TLSCertFile     string `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile      string `envconfig:"TLS_KEY_FILE"`
	TLSClientCAFile string `envconfig:"TLS_CLIENT_CA_FILE"`

	// COMMS: optional NATS transport at COMMSURL.
	COMMSEnabled          bool   `envconfig:"COMMS_ENABLED" default:"false"`
	COMMSURL              string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSRequestSubject   string `envconfig:"COMMS_REQUEST_SUBJECT"`
	COMMSLifecycleSubject string `envconfig:"COMMS_LIFECYCLE_SUBJECT" default:"servicehost.lifecycle"`

	// Timeouts
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || strings.EqualFold(c.AppEnv, "prod")
}

// ListenAddr returns HTTP_ADDR, or all interfaces on HTTP_PORT.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TLSEnabled reports whether a certificate and key were configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT must be between 1 and 65535", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if err := c.ValidateTLS(); err != nil {
		return err
	}
	if c.COMMSEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when COMMS_ENABLED is set", logPrefix)
	}
	return nil
}

// ValidateTLS checks that TLS files come in pairs and exist.
func (c *Config) ValidateTLS() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("%s - TLS_CERT_FILE and TLS_KEY_FILE must be set together", logPrefix)
	}
	if c.TLSClientCAFile != "" && !c.TLSEnabled() {
		return fmt.Errorf("%s - TLS_CLIENT_CA_FILE requires TLS_CERT_FILE and TLS_KEY_FILE", logPrefix)
	}
	for _, f := range []string{c.TLSCertFile, c.TLSKeyFile, c.TLSClientCAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%s - TLS file %s: %w", logPrefix, f, err)
		}
	}
	return nil
}
