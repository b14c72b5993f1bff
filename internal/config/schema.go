package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the configuration file. Property names
// follow the TOML keys; every key is optional.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:               "toml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := reflector.Reflect(&Config{})
	s.Title = "regcomp configuration"
	return s
}

// ParamsSchema returns the JSON schema of the per-pass source parameters
// an editor may send.
func ParamsSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	return reflector.Reflect(&Params{})
}

// SchemaJSON returns the indented configuration schema.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
