package config

import (
	"fmt"
	"time"
)

// Config is loaded by multiconfig from flags and environment.
type Config struct {
	LogLevel  string `default:"info"`
	LogFormat string `default:"text"`

	ListenAddr string `default:":8089"`

	// At most one of KernelURL and KernelCmd selects the kernel
	// transport. With neither set the daemon runs offline and every sync
	// is recorded as skipped.
	KernelURL     string
	KernelCmd     string
	KernelTimeout int `default:"10"`

	RedisAddr       string
	RedisPassword   string
	SessionName     string `default:"default"`
	SessionTTLHours int    `default:"168"`

	MQTTAddr string

	Version bool
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenaddr must be set")
	}
	if c.KernelURL != "" && c.KernelCmd != "" {
		return fmt.Errorf("kernelurl and kernelcmd are mutually exclusive")
	}
	if c.KernelTimeout <= 0 {
		return fmt.Errorf("kerneltimeout must be positive")
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("sessionttlhours must be positive")
	}
	return nil
}

// Offline reports whether no kernel transport is configured.
func (c *Config) Offline() bool {
	return c.KernelURL == "" && c.KernelCmd == ""
}

// SessionEnabled reports whether session persistence is configured.
func (c *Config) SessionEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) KernelCallTimeout() time.Duration {
	return time.Duration(c.KernelTimeout) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}
