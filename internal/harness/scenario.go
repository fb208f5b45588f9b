package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a conformance test case.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description is free text.
	Description string `yaml:"description"`

	// Profile is a domain profile path, relative to the scenario file.
	// Empty selects the embedded default.
	Profile string `yaml:"profile,omitempty"`

	// Steps run in order. A failing step aborts the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one host operation.
type Step struct {
	// Op is create, update, install, withdraw, reinstate, event, decide,
	// duplicate or cancel.
	Op string `yaml:"op"`

	// Ref names the item a create produces, or the item other ops start from.
	Ref string `yaml:"ref"`

	// Via walks named lookups from Ref to the item the op acts on.
	Via []string `yaml:"via,omitempty"`

	// As is the acting user. Defaults to researcher-1, or to the reviewer
	// for decide, duplicate and cancel.
	As    string `yaml:"as,omitempty"`
	Admin bool   `yaml:"admin,omitempty"`

	// create
	Type      string              `yaml:"type,omitempty"`
	Metadata  map[string][]string `yaml:"metadata,omitempty"`
	Workspace bool                `yaml:"workspace,omitempty"`

	// update: fields to replace; an empty list removes the field.
	Set map[string][]string `yaml:"set,omitempty"`

	// event
	Kind string `yaml:"kind,omitempty"`

	// decide
	Action string              `yaml:"action,omitempty"`
	Reason string              `yaml:"reason,omitempty"`
	Edit   map[string][]string `yaml:"edit,omitempty"`

	// duplicate: the candidate is Of reached through OfVia.
	Of      string   `yaml:"of,omitempty"`
	OfVia   []string `yaml:"of_via,omitempty"`
	Verdict string   `yaml:"verdict,omitempty"`
}

// Assertion is a check on the final state.
type Assertion struct {
	// Type is exists, field, state, workflow or edges.
	Type string `yaml:"type"`

	Ref string   `yaml:"ref"`
	Via []string `yaml:"via,omitempty"`

	// Absent inverts exists, and for field expects no values.
	Absent bool `yaml:"absent,omitempty"`

	// field
	Field  string   `yaml:"field,omitempty"`
	Values []string `yaml:"values,omitempty"`

	// state
	Archived  *bool `yaml:"archived,omitempty"`
	Withdrawn *bool `yaml:"withdrawn,omitempty"`

	// workflow
	State string `yaml:"state,omitempty"`

	// edges
	Lookup string `yaml:"lookup,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
}

var (
	stepOps = map[string]bool{
		"create": true, "update": true, "install": true, "withdraw": true,
		"reinstate": true, "event": true, "decide": true, "duplicate": true,
		"cancel": true,
	}
	assertionTypes = map[string]bool{
		"exists": true, "field": true, "state": true, "workflow": true, "edges": true,
	}
)

// LoadScenario reads and validates a scenario file. Unknown keys are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if s.Profile != "" && !filepath.IsAbs(s.Profile) {
		s.Profile = filepath.Join(filepath.Dir(path), s.Profile)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}

	refs := map[string]bool{}
	for i, st := range s.Steps {
		if !stepOps[st.Op] {
			return fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
		if st.Ref == "" {
			return fmt.Errorf("step %d: ref is required", i)
		}
		if st.Op == "create" {
			if st.Type == "" {
				return fmt.Errorf("step %d: create requires type", i)
			}
			if refs[st.Ref] {
				return fmt.Errorf("step %d: ref %q already defined", i, st.Ref)
			}
			refs[st.Ref] = true
			continue
		}
		if !refs[st.Ref] {
			return fmt.Errorf("step %d: ref %q used before create", i, st.Ref)
		}
		switch st.Op {
		case "decide":
			if st.Action == "" {
				return fmt.Errorf("step %d: decide requires action", i)
			}
		case "duplicate":
			if !refs[st.Of] {
				return fmt.Errorf("step %d: duplicate requires a known of ref", i)
			}
		case "event":
			if st.Kind == "" {
				return fmt.Errorf("step %d: event requires kind", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if !assertionTypes[a.Type] {
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
		if !refs[a.Ref] {
			return fmt.Errorf("assertion %d: unknown ref %q", i, a.Ref)
		}
		switch a.Type {
		case "field":
			if a.Field == "" {
				return fmt.Errorf("assertion %d: field requires field", i)
			}
		case "workflow":
			if a.State == "" {
				return fmt.Errorf("assertion %d: workflow requires state", i)
			}
		case "edges":
			if a.Lookup == "" || a.Count == nil {
				return fmt.Errorf("assertion %d: edges requires lookup and count", i)
			}
		}
	}
	return nil
}
