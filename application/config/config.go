// Package config defines the runner configuration and its validation.
package config

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/reglet-collect/domain/errors"
)

// validate is a package-level singleton for better performance.
// Creating a new validator on each call is expensive; reusing is recommended.
var validate = validator.New()

// DefaultCapability is the capability passed to collect when none is configured.
const DefaultCapability = 8080

// RunnerConfig is the configuration of the collect runner.
type RunnerConfig struct {
	Log        LogConfig     `json:"log" yaml:"log"`
	Plugin     PluginConfig  `json:"plugin" yaml:"plugin"`
	Runtime    RuntimeConfig `json:"runtime" yaml:"runtime"`
	Capability int32         `json:"capability" yaml:"capability" jsonschema:"default=8080"`
}

// PluginConfig locates the plugin module and names its exports.
type PluginConfig struct {
	Path    string        `json:"path" yaml:"path" validate:"required" jsonschema:"required,default=plugin.wasm"`
	Exports ExportsConfig `json:"exports" yaml:"exports"`
}

// ExportsConfig overrides guest export names. Empty fields keep the defaults.
type ExportsConfig struct {
	Collect    string `json:"collect,omitempty" yaml:"collect" validate:"omitempty,printascii"`
	Deallocate string `json:"deallocate,omitempty" yaml:"deallocate" validate:"omitempty,printascii"`
	Memory     string `json:"memory,omitempty" yaml:"memory" validate:"omitempty,printascii"`
	ABIVersion string `json:"abi_version,omitempty" yaml:"abi_version" validate:"omitempty,printascii"`
}

// RuntimeConfig tunes the wazero runtime.
type RuntimeConfig struct {
	CacheDir         string        `json:"cache_dir,omitempty" yaml:"cache_dir"`
	CallTimeout      time.Duration `json:"call_timeout,omitempty" yaml:"call_timeout" validate:"gte=0"`
	MemoryLimitPages uint32        `json:"memory_limit_pages,omitempty" yaml:"memory_limit_pages" validate:"lte=65536"`
	InheritStdio     bool          `json:"inherit_stdio" yaml:"inherit_stdio" jsonschema:"default=true"`
}

// LogConfig selects the host log handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json" jsonschema:"enum=text,enum=json,default=text"`
}

// Default returns the configuration used when no file is given.
func Default() RunnerConfig {
	return RunnerConfig{
		Plugin:     PluginConfig{Path: "plugin.wasm"},
		Capability: DefaultCapability,
		Runtime:    RuntimeConfig{InheritStdio: true},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks cfg against its struct tags. The first failing field is
// reported as a *errors.ConfigError.
func Validate(cfg *RunnerConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if stdErrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &errors.ConfigError{
			Field: fe.Namespace(),
			Err:   fmt.Errorf("failed on '%s' rule (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &errors.ConfigError{Err: err}
}
