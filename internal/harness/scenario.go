package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a named sequence of request steps.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one HTTP request and the response it must produce.
type Step struct {
	Name   string            `yaml:"name"`
	Method string            `yaml:"method"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query,omitempty"`

	// Body is sent as JSON. Raw is sent verbatim. Upload is sent as a
	// multipart form with a single "file" part. At most one may be set.
	Body   map[string]any `yaml:"body,omitempty"`
	Raw    string         `yaml:"raw,omitempty"`
	Upload *Upload        `yaml:"upload,omitempty"`

	Expect Expect `yaml:"expect"`

	// Capture maps variable names to top-level response fields.
	Capture map[string]string `yaml:"capture,omitempty"`

	// Eventually retries the step until Expect holds or the wait budget
	// is spent.
	Eventually bool `yaml:"eventually,omitempty"`
}

// Upload is a multipart file part.
type Upload struct {
	Filename  string `yaml:"filename"`
	MediaType string `yaml:"media_type"`
	Content   string `yaml:"content"`
}

// Expect describes the required response. Fields is a subset match
// against the JSON body; Text is an exact match against the raw body;
// Contains lists substrings the raw body must include.
type Expect struct {
	Status   int            `yaml:"status"`
	Code     string         `yaml:"code,omitempty"`
	Fields   map[string]any `yaml:"fields,omitempty"`
	Text     *string        `yaml:"text,omitempty"`
	Contains []string       `yaml:"contains,omitempty"`
}

// LoadScenario reads a scenario file. Unknown keys are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
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

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPut:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if !methods[step.Method] {
			return fmt.Errorf("steps[%d]: unsupported method %q", i, step.Method)
		}
		if !strings.HasPrefix(step.Path, "/") && !strings.HasPrefix(step.Path, "${") {
			return fmt.Errorf("steps[%d]: path must start with / or a captured variable", i)
		}
		bodies := 0
		if step.Body != nil {
			bodies++
		}
		if step.Raw != "" {
			bodies++
		}
		if step.Upload != nil {
			bodies++
		}
		if bodies > 1 {
			return fmt.Errorf("steps[%d]: body, raw and upload are mutually exclusive", i)
		}
		if step.Expect.Status < 100 || step.Expect.Status > 599 {
			return fmt.Errorf("steps[%d]: expect.status is required", i)
		}
	}
	return nil
}
