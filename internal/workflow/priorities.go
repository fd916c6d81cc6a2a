package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PriorityOverride changes one scenario's evaluation order.
type PriorityOverride struct {
	Priority *int  `yaml:"priority"`
	Enabled  *bool `yaml:"enabled"`
}

// PriorityFile is the on-disk override format:
//
//	scenarios:
//	  printer_issue:
//	    priority: 5
//	  access_request:
//	    enabled: false
type PriorityFile struct {
	Scenarios map[string]PriorityOverride `yaml:"scenarios"`
}

// LoadPriorities applies overrides from a YAML file. An empty path is a no-op.
func (r *Registry) LoadPriorities(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workflow priorities: %w", err)
	}
	return r.ApplyPriorities(data)
}

// ApplyPriorities applies overrides from YAML bytes.
func (r *Registry) ApplyPriorities(data []byte) error {
	var file PriorityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse workflow priorities: %w", err)
	}
	for name, o := range file.Scenarios {
		r.mu.RLock()
		e, ok := r.byName[name]
		var priority int
		var enabled bool
		if ok {
			priority = e.Priority
			enabled = !e.disabled
		}
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownScenario, name)
		}
		if o.Priority != nil {
			priority = *o.Priority
		}
		if o.Enabled != nil {
			enabled = *o.Enabled
		}
		if err := r.SetPriority(name, priority, enabled); err != nil {
			return err
		}
	}
	return nil
}
