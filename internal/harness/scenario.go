package harness

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/schema"
)

// Scenario defines a persistence scenario: a class set, a sequence of
// record operations and assertions on the trace and the final storage.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// BaseClass overrides the root class name. Defaults to DataObject.
	BaseClass string `yaml:"base_class,omitempty"`

	// Classes are registered before the first step.
	Classes []schema.ClassDescriptor `yaml:"classes"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`

	// ScopeID is the fixed scope identifier for deterministic runs.
	// If empty, defaults to "scenario-default".
	ScopeID string `yaml:"scope_id,omitempty"`
}

// Step operations.
const (
	OpCreate  = "create"
	OpSet     = "set"
	OpPersist = "persist"
	OpDelete  = "delete"
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReload  = "reload"
)

// Step is one record operation.
//
// Ref names the record the step acts on. create binds Ref to a new record
// of Class; later steps look it up by name.
type Step struct {
	Op     string         `yaml:"op"`
	Ref    string         `yaml:"ref"`
	Class  string         `yaml:"class,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`

	// Persist makes create and set write the record straight away.
	Persist bool `yaml:"persist,omitempty"`

	// Force writes even when nothing changed (persist only).
	Force bool `yaml:"force,omitempty"`

	// Relation and Target are used by add and remove.
	Relation string         `yaml:"relation,omitempty"`
	Target   string         `yaml:"target,omitempty"`
	Extra    map[string]any `yaml:"extra,omitempty"`

	// ExpectError is a substring the step's error must contain. When set,
	// the step must fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of count, field, writes, components or final_state.
	Type string `yaml:"type"`

	// Class and Where select records (count).
	Class string         `yaml:"class,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Count is the expected number (count, components).
	Count int `yaml:"count,omitempty"`

	// Ref, Field and Value check one stored field of a record (field).
	// Ref and Relation count a record's components (components).
	Ref      string `yaml:"ref,omitempty"`
	Field    string `yaml:"field,omitempty"`
	Value    any    `yaml:"value,omitempty"`
	Relation string `yaml:"relation,omitempty"`

	// Step and Writes check the writes issued by one step (writes).
	Step   int      `yaml:"step,omitempty"`
	Writes []string `yaml:"writes,omitempty"`

	// Table, Where and Expect check one raw row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount      = "count"
	AssertField      = "field"
	AssertWrites     = "writes"
	AssertComponents = "components"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and refer to
// declared classes and refs.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Classes) == 0 {
		return errors.New("classes list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	classes := make(map[string]bool, len(s.Classes))
	for i, c := range s.Classes {
		if c.Name == "" {
			return errors.Newf("classes[%d]: name is required", i)
		}
		classes[c.Name] = true
	}

	refs := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, classes, refs); err != nil {
			return err
		}
		if step.Op == OpCreate {
			refs[step.Ref] = true
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, classes, refs map[string]bool) error {
	if step.Ref == "" {
		return errors.Newf("steps[%d]: ref is required", i)
	}
	switch step.Op {
	case OpCreate:
		if step.Class == "" {
			return errors.Newf("steps[%d]: class is required for create", i)
		}
		if !classes[step.Class] {
			return errors.Newf("steps[%d]: unknown class %q", i, step.Class)
		}
		return nil
	case OpSet:
		if len(step.Values) == 0 {
			return errors.Newf("steps[%d]: values are required for set", i)
		}
	case OpAdd, OpRemove:
		if step.Relation == "" || step.Target == "" {
			return errors.Newf("steps[%d]: relation and target are required for %s", i, step.Op)
		}
		if !refs[step.Target] {
			return errors.Newf("steps[%d]: unknown ref %q", i, step.Target)
		}
	case OpPersist, OpDelete, OpReload:
	case "":
		return errors.Newf("steps[%d]: op is required", i)
	default:
		return errors.Newf("steps[%d]: unknown op %q", i, step.Op)
	}
	if !refs[step.Ref] {
		return errors.Newf("steps[%d]: unknown ref %q", i, step.Ref)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return errors.Newf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount:
		if a.Class == "" {
			return errors.Newf("assertions[%d]: class is required for count", index)
		}
		if a.Count < 0 {
			return errors.Newf("assertions[%d]: count must be non-negative", index)
		}
	case AssertField:
		if a.Ref == "" || a.Field == "" {
			return errors.Newf("assertions[%d]: ref and field are required for field", index)
		}
	case AssertWrites:
		if a.Step < 0 || a.Step >= steps {
			return errors.Newf("assertions[%d]: step %d out of range", index, a.Step)
		}
	case AssertComponents:
		if a.Ref == "" || a.Relation == "" {
			return errors.Newf("assertions[%d]: ref and relation are required for components", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return errors.Newf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return errors.Newf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return errors.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
