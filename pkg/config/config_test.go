package config

import (
	"testing"
	"time"

	"github.com/koding/multiconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, (&multiconfig.TagLoader{}).Load(cfg))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":8089", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.KernelTimeout)
	assert.Equal(t, "default", cfg.SessionName)
	assert.Equal(t, 168, cfg.SessionTTLHours)

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Offline())
	assert.False(t, cfg.SessionEnabled())
	assert.Equal(t, 10*time.Second, cfg.KernelCallTimeout())
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "http kernel",
			mutate: func(c *Config) { c.KernelURL = "http://localhost:9000/rpc" },
		},
		{
			name:   "stdio kernel",
			mutate: func(c *Config) { c.KernelCmd = "python3 kernel.py" },
		},
		{
			name: "both transports",
			mutate: func(c *Config) {
				c.KernelURL = "http://localhost:9000/rpc"
				c.KernelCmd = "python3 kernel.py"
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: "listenaddr",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.KernelTimeout = 0 },
			wantErr: "kerneltimeout",
		},
		{
			name:    "zero session ttl",
			mutate:  func(c *Config) { c.SessionTTLHours = 0 },
			wantErr: "sessionttlhours",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOffline(t *testing.T) {
	cfg := loadDefaults(t)
	assert.True(t, cfg.Offline())

	cfg.KernelURL = "http://localhost:9000/rpc"
	assert.False(t, cfg.Offline())

	cfg.KernelURL = ""
	cfg.KernelCmd = "python3 kernel.py"
	assert.False(t, cfg.Offline())
}
