package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema_NestedStruct(t *testing.T) {
	type ServerConfig struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}

	type Config struct {
		Server  ServerConfig `json:"server"`
		Timeout int          `json:"timeout"`
	}

	schema, err := GenerateSchema(Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, schema)

	// Validate it's valid JSON
	var decoded map[string]interface{}
	err = json.Unmarshal(schema, &decoded)
	require.NoError(t, err)

	// Check nested structure is present
	assert.Contains(t, string(schema), "server")
	assert.Contains(t, string(schema), "host")
	assert.Contains(t, string(schema), "timeout")
}

func TestRunnerConfigSchema(t *testing.T) {
	schema, err := RunnerConfigSchema()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))

	assert.Equal(t, SchemaID, decoded["$id"])

	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok, "properties should be a map")
	for _, key := range []string{"plugin", "capability", "runtime", "log"} {
		assert.Contains(t, properties, key)
	}

	schemaStr := string(schema)
	assert.Contains(t, schemaStr, "memory_limit_pages")
	assert.Contains(t, schemaStr, "abi_version")
	assert.Contains(t, schemaStr, `"plugin.wasm"`)
	assert.Contains(t, schemaStr, `"json"`)
}
