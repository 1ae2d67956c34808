// Package schema generates the JSON schema of the runner configuration file.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/reglet-collect/application/config"
	"github.com/reglet-dev/reglet-collect/domain/errors"
)

// SchemaID is the $id of the runner configuration schema.
const SchemaID = "https://reglet.dev/schemas/collect-runner.json"

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, &errors.SchemaError{Type: fmt.Sprintf("%T", v), Err: err}
	}

	return jsonBytes, nil
}

// RunnerConfigSchema returns the schema of config.RunnerConfig, the format
// of the file passed to `runner collect --config`.
func RunnerConfigSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(&config.RunnerConfig{})
	schema.ID = SchemaID
	schema.Title = "collect runner configuration"

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, &errors.SchemaError{Type: "RunnerConfig", Err: err}
	}
	return jsonBytes, nil
}
