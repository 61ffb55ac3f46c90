package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadFromFile loads and validates a test suite from a JSON file.
func LoadFromFile(path string) ([]TestCase, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suite: read %q: %w", path, err)
	}
	cases, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("suite: parse %q: %w", path, err)
	}
	return cases, nil
}

// Parse decodes a JSON array of test-case records and validates it wholesale.
// Validation happens before any execution starts: either every record is
// valid or the whole suite is rejected.
func Parse(b []byte) ([]TestCase, error) {
	var cases []TestCase
	if err := json.Unmarshal(b, &cases); err != nil {
		return nil, fmt.Errorf("suite: decode: %w", err)
	}
	if err := Validate(cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// Validate checks an ordered sequence of test cases for consistency.
func Validate(cases []TestCase) error {
	if len(cases) == 0 {
		return &ValidationError{CaseIndex: -1, Reason: "no test cases"}
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Input) == "" {
			return &ValidationError{CaseIndex: i, Reason: "missing input"}
		}
		if c.ExpectedOutput == "" {
			return &ValidationError{CaseIndex: i, Reason: "missing expected_output"}
		}
		if strings.TrimSpace(string(c.ScoringMethod)) == "" {
			return &ValidationError{CaseIndex: i, Reason: "missing scoring_method"}
		}
		if !c.ScoringMethod.Valid() {
			return &ValidationError{
				CaseIndex: i,
				Reason:    fmt.Sprintf("unknown scoring_method %q", c.ScoringMethod),
			}
		}
		for j, tag := range c.Tags {
			if strings.TrimSpace(tag) == "" {
				return &ValidationError{
					CaseIndex: i,
					Reason:    fmt.Sprintf("tags[%d]: empty string", j),
				}
			}
		}
	}
	return nil
}
