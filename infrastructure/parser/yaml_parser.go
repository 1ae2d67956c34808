// Package parser reads runner configuration files.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/reglet-collect/application/config"
)

// YamlConfigParser decodes YAML runner configuration.
type YamlConfigParser struct {
	strict bool
}

// NewYamlConfigParser creates a parser. A strict parser rejects unknown keys.
func NewYamlConfigParser(strict bool) *YamlConfigParser {
	return &YamlConfigParser{strict: strict}
}

// Parse decodes data over config.Default() and validates the result, so
// omitted keys keep their defaults.
func (p *YamlConfigParser) Parse(data []byte) (*config.RunnerConfig, error) {
	cfg := config.Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func (p *YamlConfigParser) Load(path string) (*config.RunnerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return p.Parse(data)
}
