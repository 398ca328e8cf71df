package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pmsync/internal/pm"
)

// Scenario is one synchronization test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE bean schema, relative to the scenario file.
	Schema string `yaml:"schema"`

	// Steps run in order against the client and server engines.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpCreate  = "create"
	OpSet     = "set"
	OpAdd     = "add"
	OpInsert  = "insert"
	OpRemove  = "remove"
	OpSplice  = "splice"
	OpClear   = "clear"
	OpDelete  = "delete"
	OpUnroot  = "unroot"
	OpCollect = "collect"
	OpFlush   = "flush"
)

// Step is one operation.
type Step struct {
	Op string `yaml:"op"`

	// Side is CLIENT (default) or SERVER.
	Side pm.Side `yaml:"side,omitempty"`

	// Bean is the alias the operation acts on (create binds it).
	Bean string `yaml:"bean,omitempty"`

	// Type and Root are used by create.
	Type string `yaml:"type,omitempty"`
	Root bool   `yaml:"root,omitempty"`

	// Property and Value are used by set.
	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// List names the list for add, insert, remove, splice and clear.
	List   string `yaml:"list,omitempty"`
	Index  int    `yaml:"index,omitempty"`
	From   int    `yaml:"from,omitempty"`
	To     int    `yaml:"to,omitempty"`
	Values []any  `yaml:"values,omitempty"`

	// Error is the expected error code; empty means the step must succeed.
	Error pm.ErrorCode `yaml:"error,omitempty"`
}

func (s Step) side() pm.Side {
	if s.Side == "" {
		return pm.SideClient
	}
	return s.Side
}

// Assertion types.
const (
	AssertValue   = "value"
	AssertList    = "list"
	AssertManaged = "managed"
	AssertCount   = "count"
	AssertPending = "pending"
	AssertSent    = "sent"
	AssertInSync  = "in_sync"
)

// Assertion validates state or trace after the steps ran.
type Assertion struct {
	Type string  `yaml:"type"`
	Side pm.Side `yaml:"side,omitempty"`

	Bean     string `yaml:"bean,omitempty"`
	Property string `yaml:"property,omitempty"`
	List     string `yaml:"list,omitempty"`

	// Equals is the expected wire value (value) or values (list).
	Equals any `yaml:"equals,omitempty"`

	// Managed is the expected liveness (managed).
	Managed *bool `yaml:"managed,omitempty"`

	// BeanType filters count; Kind and BeanType filter sent.
	BeanType string         `yaml:"bean_type,omitempty"`
	Kind     pm.CommandKind `yaml:"kind,omitempty"`
	Count    *int           `yaml:"count,omitempty"`
}

func (a Assertion) side() pm.Side {
	if a.Side == "" {
		return pm.SideClient
	}
	return a.Side
}

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", s.Schema)
	}
	return s, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s Step) error {
	if s.Side != "" && !s.Side.Valid() {
		return fmt.Errorf("steps[%d]: invalid side %q", i, s.Side)
	}
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", i, field, s.Op)
		}
		return nil
	}
	switch s.Op {
	case OpCreate:
		if err := need("bean", s.Bean); err != nil {
			return err
		}
		return need("type", s.Type)
	case OpSet:
		if err := need("bean", s.Bean); err != nil {
			return err
		}
		return need("property", s.Property)
	case OpAdd, OpInsert, OpRemove, OpSplice, OpClear:
		if err := need("bean", s.Bean); err != nil {
			return err
		}
		return need("list", s.List)
	case OpDelete, OpUnroot:
		return need("bean", s.Bean)
	case OpCollect, OpFlush:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, s.Op)
	}
}

func validateAssertion(i int, a Assertion) error {
	if a.Side != "" && !a.Side.Valid() {
		return fmt.Errorf("assertions[%d]: invalid side %q", i, a.Side)
	}
	switch a.Type {
	case AssertValue:
		if a.Bean == "" || a.Property == "" {
			return fmt.Errorf("assertions[%d]: bean and property are required for value", i)
		}
	case AssertList:
		if a.Bean == "" || a.List == "" {
			return fmt.Errorf("assertions[%d]: bean and list are required for list", i)
		}
		if _, ok := a.Equals.([]any); !ok && a.Equals != nil {
			return fmt.Errorf("assertions[%d]: equals must be a list", i)
		}
	case AssertManaged:
		if a.Bean == "" || a.Managed == nil {
			return fmt.Errorf("assertions[%d]: bean and managed are required for managed", i)
		}
	case AssertCount, AssertPending, AssertSent:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", i, a.Type)
		}
	case AssertInSync:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
