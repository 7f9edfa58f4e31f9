// Package config provides dispatcher configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/apiview-dispatcher/pkg/commsutil"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

const logPrefix = "config:LoadConfig"

// Config holds apiview-dispatcher configuration.
type Config struct {
	// HandlerPrefix is informational; the fetcher re-reads MS_PATH on every resolution.
	HandlerPrefix string `envconfig:"MS_PATH"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"apiview-dispatcher"`

	// COMMS reconnect policy; COMMS_MAX_RECONNECTS < 0 retries forever.
	COMMSConnectTimeout time.Duration `envconfig:"COMMS_CONNECT_TIMEOUT" default:"10s"`
	COMMSReconnectWait  time.Duration `envconfig:"COMMS_RECONNECT_WAIT" default:"2s"`
	COMMSMaxReconnects  int           `envconfig:"COMMS_MAX_RECONNECTS" default:"60"`

	// Subjects
	DispatchSubject      string `envconfig:"DISPATCH_SUBJECT" default:"api.dispatch"`
	DispatchEventSubject string `envconfig:"DISPATCH_EVENT_SUBJECT" default:"api.dispatched"`
	PublishEvents        bool   `envconfig:"PUBLISH_EVENTS" default:"true"`

	// Generation is "api-view" or "api".
	Generation string `envconfig:"API_GENERATION" default:"api-view"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// HTTP adapter and health endpoints (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

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

// ValidateForServe checks required config when running the dispatcher server.
func (c *Config) ValidateForServe() error {
	if _, ok := fetcher.ParseGeneration(c.Generation); !ok {
		return fmt.Errorf("%s - API_GENERATION must be \"api-view\" or \"api\", got %q", logPrefix, c.Generation)
	}
	if c.DispatchSubject == "" {
		return fmt.Errorf("%s - DISPATCH_SUBJECT is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.COMMSConnectTimeout <= 0 || c.COMMSReconnectWait <= 0 {
		return fmt.Errorf("%s - COMMS_CONNECT_TIMEOUT and COMMS_RECONNECT_WAIT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// HandlerGeneration returns the configured generation, or fetcher.APIView when
// the name is unknown.
func (c *Config) HandlerGeneration() fetcher.Generation {
	if gen, ok := fetcher.ParseGeneration(c.Generation); ok {
		return gen
	}
	return fetcher.APIView
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// CommsOptions returns the COMMS connection options for the dispatcher. The
// client name carries the generation so api and api-view dispatchers can be
// told apart in server monitoring.
func (c *Config) CommsOptions() commsutil.ConnectOptions {
	return commsutil.ConnectOptions{
		Name:          fmt.Sprintf("%s/%s", c.COMMSName, c.HandlerGeneration().Name()),
		Timeout:       c.COMMSConnectTimeout,
		ReconnectWait: c.COMMSReconnectWait,
		MaxReconnects: c.COMMSMaxReconnects,
	}
}
