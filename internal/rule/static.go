package rule

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Descriptor `yaml:"rules"`
}

// StaticProvider evaluates rules declared in a YAML rules file. Each rule
// names an operation over its input fields; missing inputs evaluate as empty
// strings, matching how unfilled form fields behave.
type StaticProvider struct {
	path  string
	mu    sync.RWMutex
	rules map[string]Descriptor
	order []string
}

// NewStaticProvider loads the rules file at path.
func NewStaticProvider(path string) (*StaticProvider, error) {
	p := &StaticProvider{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// Sync reloads the rules file from disk.
func (p *StaticProvider) Sync() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("rule: reading rules file %s: %w", p.path, err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("rule: parsing rules file %s: %w", p.path, err)
	}

	rules := make(map[string]Descriptor, len(f.Rules))
	order := make([]string, 0, len(f.Rules))
	for _, d := range f.Rules {
		if d.Name == "" {
			return fmt.Errorf("rule: rules file %s contains a rule without a name", p.path)
		}
		if d.Output == "" {
			return fmt.Errorf("rule: rule %q has no output field", d.Name)
		}
		if _, dup := rules[d.Name]; dup {
			return fmt.Errorf("rule: duplicate rule name %q", d.Name)
		}
		rules[d.Name] = d
		order = append(order, d.Name)
	}

	p.mu.Lock()
	p.rules = rules
	p.order = order
	p.mu.Unlock()
	return nil
}

// ListRules returns the declared rules in file order.
func (p *StaticProvider) ListRules(context.Context) ([]Descriptor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Descriptor, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.rules[name])
	}
	return out, nil
}

// Invoke evaluates one rule over the given form-data values.
func (p *StaticProvider) Invoke(_ context.Context, name string, inputs map[string]string) (map[string]string, error) {
	p.mu.RLock()
	d, ok := p.rules[name]
	p.mu.RUnlock()
	if !ok {
		return nil, &UnknownRuleError{Name: name}
	}

	values := make([]string, len(d.Inputs))
	for i, field := range d.Inputs {
		values[i] = inputs[field]
	}

	result, err := evaluate(d.Operation, values)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", name, err)
	}
	return map[string]string{d.Output: result}, nil
}

// evaluate runs one operation over the resolved input values.
func evaluate(operation string, values []string) (string, error) {
	switch operation {
	case "concat":
		parts := make([]string, 0, len(values))
		for _, v := range values {
			if v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " "), nil
	case "sum":
		var total float64
		for _, v := range values {
			if v == "" {
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return "", fmt.Errorf("input %q is not numeric", v)
			}
			total += n
		}
		return strconv.FormatFloat(total, 'f', -1, 64), nil
	case "equals":
		for i := 1; i < len(values); i++ {
			if values[i] != values[0] {
				return "false", nil
			}
		}
		return "true", nil
	default:
		return "", fmt.Errorf("unknown operation %q", operation)
	}
}
