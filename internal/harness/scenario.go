package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/qerr"
)

// Scenario is a named list of statements compiled for one entity type.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario pins down.
	Description string `yaml:"description"`

	// Entity is the entity type every step is compiled for.
	Entity string `yaml:"entity"`

	// Options are the compile options for every step.
	Options CompileOptions `yaml:"options,omitempty"`

	Steps []Step `yaml:"steps"`
}

// CompileOptions mirror engine.Options in YAML form.
type CompileOptions struct {
	PostFilter   bool `yaml:"post_filter"`
	MaxTermCount int  `yaml:"max_term_count"`
}

// Step is one statement and what its compilation must look like.
type Step struct {
	PQL    string  `yaml:"pql"`
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the checks for a step. A step without expectations only
// has to compile.
type Expect struct {
	// Error is the expected error code. When set the step must fail.
	Error string `yaml:"error,omitempty"`

	// Render is the expected canonical PQL text of the parsed statement.
	Render string `yaml:"render,omitempty"`

	// Contains are subset matches at JSON pointers into the body.
	Contains []Match `yaml:"contains,omitempty"`

	// Absent are JSON pointers that must not resolve.
	Absent []string `yaml:"absent,omitempty"`
}

// Match is a subset match at a JSON pointer.
type Match struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

var errorCodes = []qerr.Code{
	qerr.CodeUnknownField,
	qerr.CodeSyntax,
	qerr.CodeInvalidQuery,
	qerr.CodeInternal,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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
	if strings.ContainsAny(s.Name, `/\ `) {
		return fmt.Errorf("name %q must be usable as a file name", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := meta.ParseEntityType(s.Entity); err != nil {
		return fmt.Errorf("entity: %w", err)
	}
	if s.Options.MaxTermCount < 0 {
		return fmt.Errorf("options.max_term_count must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if strings.TrimSpace(step.PQL) == "" {
			return fmt.Errorf("steps[%d]: pql is required", i)
		}
		if step.Expect == nil {
			continue
		}
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}
	return nil
}

func validateExpect(e *Expect) error {
	if e.Error != "" {
		if !knownCode(e.Error) {
			return fmt.Errorf("unknown error code %q", e.Error)
		}
		if len(e.Contains) > 0 || len(e.Absent) > 0 {
			return fmt.Errorf("a failing step cannot have body checks")
		}
	}
	for i, m := range e.Contains {
		if !strings.HasPrefix(m.Path, "/") {
			return fmt.Errorf("contains[%d]: path %q must start with /", i, m.Path)
		}
	}
	for i, p := range e.Absent {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("absent[%d]: path %q must start with /", i, p)
		}
	}
	return nil
}

func knownCode(code string) bool {
	for _, c := range errorCodes {
		if string(c) == code {
			return true
		}
	}
	return false
}
