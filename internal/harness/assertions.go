package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/roach88/portalql/internal/pql"
)

// AssertionError is a failed expectation. It carries enough context to
// debug the failure without rerunning the scenario.
type AssertionError struct {
	Step     int
	PQL      string
	Check    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %d %s: %s failed\n", e.Step, e.PQL, e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate checks one step result against its expectations and returns
// a message per failure.
func evaluate(index int, step Step, sr StepResult, stmt *pql.Statement) []string {
	fail := func(check, expected, actual string) string {
		return (&AssertionError{Step: index, PQL: step.PQL, Check: check, Expected: expected, Actual: actual}).Error()
	}

	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	var errs []string
	if exp.Error != "" {
		if sr.Error != exp.Error {
			actual := "compiled successfully"
			if sr.Error != "" {
				actual = sr.Message
			}
			errs = append(errs, fail("error", exp.Error, actual))
		}
	} else if sr.Error != "" {
		return []string{fail("compile", "no error", sr.Message)}
	}

	if exp.Render != "" {
		actual := "statement did not parse"
		if stmt != nil {
			actual = pql.Render(stmt)
		}
		if actual != exp.Render {
			errs = append(errs, fail("render", exp.Render, actual))
		}
	}

	if sr.Body == nil {
		return errs
	}
	for _, m := range exp.Contains {
		if err := assertContains(sr.Body, m); err != nil {
			errs = append(errs, fail("contains "+m.Path, err.expected, err.actual))
		}
	}
	for _, p := range exp.Absent {
		if v, ok := resolve(sr.Body, p); ok {
			errs = append(errs, fail("absent "+p, "no value", describe(v)))
		}
	}
	return errs
}

type mismatch struct {
	expected string
	actual   string
}

func assertContains(body map[string]any, m Match) *mismatch {
	want, err := normalize(m.Value)
	if err != nil {
		return &mismatch{expected: fmt.Sprintf("%v", m.Value), actual: err.Error()}
	}
	got, ok := resolve(body, m.Path)
	if !ok {
		return &mismatch{expected: describe(want), actual: "path not found"}
	}
	if !matchValue(got, want) {
		return &mismatch{expected: describe(want), actual: describe(got)}
	}
	return nil
}

// normalize round-trips a YAML value through JSON so numbers and maps
// have the same types as a decoded body.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("expected value is not JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve follows a JSON pointer. Array segments are decimal indexes.
func resolve(doc any, pointer string) (any, bool) {
	if pointer == "" || pointer == "/" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// matchValue reports whether actual contains expected. Objects match on
// the expected keys only. Arrays match element by element and must have
// the same length.
func matchValue(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			av, ok := act[k]
			if !ok || !matchValue(av, v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchValue(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
