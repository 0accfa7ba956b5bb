// Package rule exposes the form rule engine behind an injected provider
// interface: named rules that compute derived form-data fields from bound
// inputs. Providers are static (rules file), remote (HTTP service), or none.
package rule

import (
	"context"
)

// Descriptor describes one invocable rule: the form-data fields it reads and
// the field it writes.
type Descriptor struct {
	Name      string   `json:"name" yaml:"name"`
	Operation string   `json:"operation,omitempty" yaml:"operation"`
	Inputs    []string `json:"inputs" yaml:"inputs"`
	Output    string   `json:"output" yaml:"output"`
}

// Provider is a rule engine. Invoke runs one rule over flat form-data values
// and returns the computed output fields.
type Provider interface {
	ListRules(ctx context.Context) ([]Descriptor, error)
	Invoke(ctx context.Context, name string, inputs map[string]string) (map[string]string, error)
}

// None is a Provider with no rules. Used when the rule engine is disabled.
type None struct{}

// ListRules returns no descriptors.
func (None) ListRules(context.Context) ([]Descriptor, error) { return nil, nil }

// Invoke always reports the rule as unknown.
func (None) Invoke(_ context.Context, name string, _ map[string]string) (map[string]string, error) {
	return nil, &UnknownRuleError{Name: name}
}

// UnknownRuleError reports an invocation of a rule the provider does not have.
type UnknownRuleError struct {
	Name string
}

func (e *UnknownRuleError) Error() string {
	return "rule: unknown rule " + e.Name
}
