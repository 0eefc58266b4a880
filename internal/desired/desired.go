// Package desired models the desired configuration submitted for a tenant's
// datasource and normalizes it into rows keyed the way they are persisted.
package desired

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every validation failure.
var ErrInvalid = errors.New("desired: invalid configuration")

// Configuration is the full desired state of one datasource.
type Configuration struct {
	Entries []Entry `json:"entries" yaml:"entries" validate:"dive"`
}

// Entry describes one work item type and the workflow it follows, fanned out
// across every listed project.
type Entry struct {
	WorkflowName                string       `json:"workflowName" yaml:"workflowName" validate:"required"`
	Projects                    []ProjectRef `json:"projects" yaml:"projects" validate:"required,min=1,dive"`
	Steps                       []Step       `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
	WorkItemType                WorkItemType `json:"workItemType" yaml:"workItemType"`
	ServiceLevelExpectationDays int          `json:"serviceLevelExpectationDays" yaml:"serviceLevelExpectationDays" validate:"gte=0"`
	Events                      *EventPoints `json:"events,omitempty" yaml:"events,omitempty"`
}

// ProjectRef identifies a project in the source tool.
type ProjectRef struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name"`
}

// Step is one workflow stage as reported by the source tool.
type Step struct {
	ID         string `json:"id" yaml:"id" validate:"required"`
	Name       string `json:"name" yaml:"name" validate:"required"`
	Category   string `json:"category" yaml:"category" validate:"required,oneof=preceding inprogress completed removed"`
	Type       string `json:"type" yaml:"type"`
	IsUnmapped bool   `json:"isUnmapped" yaml:"isUnmapped"`
}

// WorkItemType describes the kind of work an entry maps.
type WorkItemType struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	DisplayName string `json:"displayName" yaml:"displayName" validate:"required"`
	Level       string `json:"level" yaml:"level"`
	SLADays     int    `json:"slaDays" yaml:"slaDays" validate:"gte=0"`
}

// EventPoints optionally pins the arrival, commitment and departure steps by
// step id instead of deriving them from step categories.
type EventPoints struct {
	Arrival    string `json:"arrival" yaml:"arrival"`
	Commitment string `json:"commitment" yaml:"commitment"`
	Departure  string `json:"departure" yaml:"departure"`
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "desired: invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes a JSON or YAML document into a Configuration.
func Parse(data []byte) (*Configuration, error) {
	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("parse: %v", err)}}
	}
	return &cfg, nil
}

// Validate cleans category spellings in place and checks cfg.
func (c *Configuration) Validate() error {
	for i := range c.Entries {
		for j := range c.Entries[i].Steps {
			c.Entries[i].Steps[j].Category = normalizeCategory(c.Entries[i].Steps[j].Category)
		}
	}

	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("desired: validate: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}
	for i, e := range c.Entries {
		problems = append(problems, e.check(i)...)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// check covers rules the struct tags cannot express.
func (e Entry) check(i int) []string {
	var problems []string
	seen := make(map[string]bool, len(e.Steps))
	for _, s := range e.Steps {
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("entries[%d].steps: duplicate step id %q", i, s.ID))
		}
		seen[s.ID] = true
	}
	if e.Events != nil {
		for name, id := range map[string]string{
			"arrival":    e.Events.Arrival,
			"commitment": e.Events.Commitment,
			"departure":  e.Events.Departure,
		} {
			if id != "" && !seen[id] {
				problems = append(problems, fmt.Sprintf("entries[%d].events.%s: unknown step id %q", i, name, id))
			}
		}
	}
	return problems
}

func describe(fe validator.FieldError) string {
	ns := strings.TrimPrefix(fe.Namespace(), "Configuration.")
	switch fe.Tag() {
	case "required":
		return ns + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s element(s)", ns, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", ns, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", ns, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", ns, fe.Tag())
	}
}

// normalizeCategory folds spellings such as "In Progress" or "in-progress".
func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
