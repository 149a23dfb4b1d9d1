// CUE schema validation code
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"infrasim/schemas"
)

func readSchema(path string) ([]byte, error) {
	if path == "" {
		return schemas.Simulation, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read CUE schema: %w", err)
	}
	return b, nil
}

// ValidateWithCue validates a YAML document against a CUE schema. The
// document is re-encoded as JSON, which CUE compiles directly.
func ValidateWithCue(yamlBytes, schemaBytes []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
		return fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot convert YAML config: %w", err)
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schemaBytes)
	if schemaVal.Err() != nil {
		return fmt.Errorf("schema compile failed: %w", schemaVal.Err())
	}
	configVal := ctx.CompileBytes(js)
	if configVal.Err() != nil {
		return fmt.Errorf("config compile failed: %w", configVal.Err())
	}

	final := schemaVal.Unify(configVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateFile runs ValidateWithCue on a config file.
func ValidateFile(configPath, schemaPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	schema, err := readSchema(schemaPath)
	if err != nil {
		return err
	}
	return ValidateWithCue(data, schema)
}
