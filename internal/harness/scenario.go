package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of entity saves and lookups with the
// expected identifiers and history they produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config adjusts the history engine and catalog. Optional.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Types declares the owner type hierarchy. When empty the single type
	// config.DefaultType is used.
	Types []TypeDecl `yaml:"types,omitempty"`

	// Flow is executed in order against a fresh database.
	Flow []Step `yaml:"flow"`

	// Assertions validate stored history after the flow.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioConfig mirrors the engine and catalog options a scenario may set.
type ScenarioConfig struct {
	Separator string `yaml:"separator,omitempty"`
	Scoped    bool   `yaml:"scoped,omitempty"`

	// Normalizer is "slug" (default) or "lower", which only trims and
	// lowercases so punctuation survives.
	Normalizer string `yaml:"normalizer,omitempty"`

	// Reserved replaces the default reserved words when non-nil.
	Reserved []string `yaml:"reserved,omitempty"`
}

// TypeDecl declares an owner type and its optional base.
type TypeDecl struct {
	Name string `yaml:"name"`
	Base string `yaml:"base,omitempty"`
}

// Step is one operation. Ref names the entity a step creates or acts on.
type Step struct {
	Op    string `yaml:"op"`
	Ref   string `yaml:"ref,omitempty"`
	Type  string `yaml:"type,omitempty"`
	Scope string `yaml:"scope,omitempty"`
	Title string `yaml:"title,omitempty"`

	// ID is the inbound identifier for find and exists.
	ID string `yaml:"id,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Empty fields are not checked.
type Expect struct {
	Slug    string `yaml:"slug,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Ref is the entity find must resolve to.
	Ref string `yaml:"ref,omitempty"`

	// Exists is the answer exists must give.
	Exists *bool `yaml:"exists,omitempty"`

	// Error is the error class the step must fail with (see ErrorClass).
	Error string `yaml:"error,omitempty"`
}

// Step operations.
const (
	OpCreate     = "create"
	OpRename     = "rename"
	OpRegenerate = "regenerate"
	OpDestroy    = "destroy"
	OpFind       = "find"
	OpExists     = "exists"
)

// Assertion validates stored history after the flow.
type Assertion struct {
	// Type specifies the assertion type:
	// - "history": the ref's identifiers, oldest first, equal Identifiers
	// - "record_count": the ref has exactly Count records
	// - "unique_identifiers": no (name, sequence, scope) is held twice under
	//   OwnerType's root type
	Type string `yaml:"type"`

	Ref         string   `yaml:"ref,omitempty"`
	Identifiers []string `yaml:"identifiers,omitempty"`
	Count       int      `yaml:"count,omitempty"`
	OwnerType   string   `yaml:"owner_type,omitempty"`
}

// Assertion type constants.
const (
	AssertHistory           = "history"
	AssertRecordCount       = "record_count"
	AssertUniqueIdentifiers = "unique_identifiers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario over in-memory YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	switch s.Config.Normalizer {
	case "", "slug", "lower":
	default:
		return fmt.Errorf("config.normalizer: unknown normalizer %q", s.Config.Normalizer)
	}

	for i, d := range s.Types {
		if d.Name == "" {
			return fmt.Errorf("types[%d]: name is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpCreate, OpRename:
		if st.Ref == "" {
			return fmt.Errorf("flow[%d]: ref is required for %s", index, st.Op)
		}
		if st.Title == "" {
			return fmt.Errorf("flow[%d]: title is required for %s", index, st.Op)
		}
	case OpRegenerate, OpDestroy:
		if st.Ref == "" {
			return fmt.Errorf("flow[%d]: ref is required for %s", index, st.Op)
		}
	case OpFind, OpExists:
		if st.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, st.Op)
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, st.Op)
	}

	if st.Expect != nil && st.Expect.Exists != nil && st.Op != OpExists {
		return fmt.Errorf("flow[%d].expect: exists only applies to exists steps", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertHistory:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for history", index)
		}
	case AssertRecordCount:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for record_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertUniqueIdentifiers:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
