// Package pipeline sequences tasks through the navigator and extractor,
// applying per-task retry policy and emitting one terminal event per task.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/extract"
)

// TaskFile is the on-disk task source: concrete tasks plus optional harvest
// entries that are expanded into tasks before the run starts.
type TaskFile struct {
	Tasks    []schemas.Task    `yaml:"tasks"`
	Harvests []schemas.Harvest `yaml:"harvests"`
}

// LoadTaskFile reads and validates the task source. Structural problems are
// *schemas.SchemaConfigError: they abort the run before any task executes.
func LoadTaskFile(path string, lib *extract.Library) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	return ParseTaskFile(data, lib)
}

// ParseTaskFile builds a TaskFile from raw YAML and validates every entry
// against the schema library.
func ParseTaskFile(data []byte, lib *extract.Library) (*TaskFile, error) {
	var file TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("task file is not valid YAML: %v", err)}
	}
	if len(file.Tasks) == 0 && len(file.Harvests) == 0 {
		return nil, &schemas.SchemaConfigError{Detail: "task file defines no tasks or harvests"}
	}

	seen := make(map[string]bool, len(file.Tasks))
	for i, t := range file.Tasks {
		switch {
		case t.ID == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("task #%d has no id", i+1)}
		case seen[t.ID]:
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("duplicate task id %q", t.ID)}
		case t.URL == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("task %q has no url", t.ID)}
		case t.Schema == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("task %q has no schema", t.ID)}
		}
		seen[t.ID] = true
		if _, ok := lib.Get(t.Schema); !ok {
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("task %q references unknown schema %q", t.ID, t.Schema)}
		}
		for _, a := range t.Actions {
			if err := validateAction(t.ID, a); err != nil {
				return nil, err
			}
		}
	}

	for i, h := range file.Harvests {
		switch {
		case h.ID == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("harvest #%d has no id", i+1)}
		case h.URL == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("harvest %q has no url", h.ID)}
		case h.Selector == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("harvest %q has no selector", h.ID)}
		case h.Schema == "":
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("harvest %q has no schema", h.ID)}
		}
		if _, ok := lib.Get(h.Schema); !ok {
			return nil, &schemas.SchemaConfigError{Detail: fmt.Sprintf("harvest %q references unknown schema %q", h.ID, h.Schema)}
		}
	}

	return &file, nil
}

func validateAction(taskID string, a schemas.Action) error {
	switch a.Type {
	case schemas.ActionClick, schemas.ActionTypeText:
		if a.Selector == "" {
			return &schemas.SchemaConfigError{
				Detail: fmt.Sprintf("task %q: %s action has no selector", taskID, a.Type),
			}
		}
	case schemas.ActionScroll:
	case schemas.ActionWait:
		if a.WaitMs <= 0 {
			return &schemas.SchemaConfigError{
				Detail: fmt.Sprintf("task %q: wait action needs a positive wait_ms", taskID),
			}
		}
	default:
		return &schemas.SchemaConfigError{
			Detail: fmt.Sprintf("task %q: unknown action type %q", taskID, a.Type),
		}
	}
	return nil
}
