package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-collect/domain/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, "plugin.wasm", cfg.Plugin.Path)
	assert.Equal(t, int32(8080), cfg.Capability)
	assert.True(t, cfg.Runtime.InheritStdio)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate    func(*RunnerConfig)
		name      string
		wantField string
	}{
		{name: "missing plugin path", mutate: func(c *RunnerConfig) { c.Plugin.Path = "" }, wantField: "Path"},
		{name: "unknown log level", mutate: func(c *RunnerConfig) { c.Log.Level = "verbose" }, wantField: "Level"},
		{name: "unknown log format", mutate: func(c *RunnerConfig) { c.Log.Format = "xml" }, wantField: "Format"},
		{name: "negative timeout", mutate: func(c *RunnerConfig) { c.Runtime.CallTimeout = -time.Second }, wantField: "CallTimeout"},
		{name: "memory limit above 4 GiB", mutate: func(c *RunnerConfig) { c.Runtime.MemoryLimitPages = 70000 }, wantField: "MemoryLimitPages"},
		{name: "export name with control byte", mutate: func(c *RunnerConfig) { c.Plugin.Exports.Collect = "col\x00lect" }, wantField: "Collect"},
		{name: "valid overrides", mutate: func(c *RunnerConfig) {
			c.Plugin.Exports.Collect = "collect_v2"
			c.Runtime.CallTimeout = time.Second
			c.Runtime.MemoryLimitPages = 65536
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(&cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Field, tt.wantField)
			assert.Equal(t, "config", errors.ToErrorDetail(err).Type)
		})
	}
}
