// Package extract turns rendered page state into structured records
// according to declarative extraction schemas.
package extract

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/itchlabs/itch/api/schemas"
)

// Library holds the named extraction schemas for a run. Schemas are
// validated once at load time; the pipeline never sees a malformed one.
type Library struct {
	schemas map[string]schemas.ExtractionSchema
}

type schemaFile struct {
	Schemas map[string]schemas.ExtractionSchema `yaml:"schemas"`
}

// LoadLibrary reads and validates a schema file. Any structural problem is
// reported as *schemas.SchemaConfigError, which is fatal for the whole run.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary builds a Library from raw YAML.
func ParseLibrary(data []byte) (*Library, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema file is not valid YAML: %v", err)}
	}
	if len(file.Schemas) == 0 {
		return nil, &schemas.SchemaConfigError{Detail: "schema file defines no schemas"}
	}

	lib := &Library{schemas: make(map[string]schemas.ExtractionSchema, len(file.Schemas))}
	for name, schema := range file.Schemas {
		schema.Name = name
		if err := validateSchema(schema); err != nil {
			return nil, err
		}
		lib.schemas[name] = schema
	}
	return lib, nil
}

// Get returns the named schema.
func (l *Library) Get(name string) (schemas.ExtractionSchema, bool) {
	s, ok := l.schemas[name]
	return s, ok
}

// Names lists the defined schema names in stable order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.schemas))
	for name := range l.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateSchema(s schemas.ExtractionSchema) error {
	if len(s.Fields) == 0 {
		return &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema %q has no fields", s.Name)}
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		switch {
		case f.Name == "":
			return &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema %q: field with empty name", s.Name)}
		case seen[f.Name]:
			return &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema %q: duplicate field %q", s.Name, f.Name)}
		case f.Selector == "":
			return &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema %q: field %q has no selector", s.Name, f.Name)}
		}
		seen[f.Name] = true

		if f.Download && f.Transform != schemas.TransformAttr && f.Transform != schemas.TransformHref {
			return &schemas.SchemaConfigError{
				Detail: fmt.Sprintf("schema %q: field %q marks download on a non-URL transform %q", s.Name, f.Name, f.Transform),
			}
		}

		switch f.Transform {
		case schemas.TransformText, schemas.TransformHref, schemas.TransformNumber:
		case schemas.TransformAttr:
			if f.Attribute == "" {
				return &schemas.SchemaConfigError{
					Detail: fmt.Sprintf("schema %q: field %q uses the attr transform without an attribute", s.Name, f.Name),
				}
			}
		case "":
			return &schemas.SchemaConfigError{Detail: fmt.Sprintf("schema %q: field %q has no transform", s.Name, f.Name)}
		default:
			return &schemas.SchemaConfigError{
				Detail: fmt.Sprintf("schema %q: field %q has unknown transform %q", s.Name, f.Name, f.Transform),
			}
		}
	}
	return nil
}
