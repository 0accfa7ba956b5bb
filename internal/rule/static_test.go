package rule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestProvider(t *testing.T) *StaticProvider {
	t.Helper()
	p, err := NewStaticProvider(filepath.Join("testdata", "rules.yaml"))
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	return p
}

func TestStaticProvider_ListRules_fileOrder(t *testing.T) {
	p := newTestProvider(t)

	rules, err := p.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	want := []string{"fullName", "totalQuantity", "sameAddress"}
	for i, name := range want {
		if rules[i].Name != name {
			t.Errorf("rules[%d].Name = %q, want %q", i, rules[i].Name, name)
		}
	}
}

func TestStaticProvider_Invoke_concat(t *testing.T) {
	p := newTestProvider(t)

	out, err := p.Invoke(context.Background(), "fullName", map[string]string{
		"applicant.firstName": "Kari",
		"applicant.lastName":  "Nordmann",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["applicant.fullName"] != "Kari Nordmann" {
		t.Errorf("output = %q, want %q", out["applicant.fullName"], "Kari Nordmann")
	}
}

func TestStaticProvider_Invoke_concatSkipsEmptyInputs(t *testing.T) {
	p := newTestProvider(t)

	out, err := p.Invoke(context.Background(), "fullName", map[string]string{
		"applicant.lastName": "Nordmann",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["applicant.fullName"] != "Nordmann" {
		t.Errorf("output = %q, want %q", out["applicant.fullName"], "Nordmann")
	}
}

func TestStaticProvider_Invoke_sum(t *testing.T) {
	p := newTestProvider(t)

	out, err := p.Invoke(context.Background(), "totalQuantity", map[string]string{
		"items[0].quantity": "2",
		"items[1].quantity": "5",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["summary.total"] != "7" {
		t.Errorf("output = %q, want %q", out["summary.total"], "7")
	}
}

func TestStaticProvider_Invoke_sumRejectsNonNumeric(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Invoke(context.Background(), "totalQuantity", map[string]string{
		"items[0].quantity": "two",
	})
	if err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestStaticProvider_Invoke_equals(t *testing.T) {
	p := newTestProvider(t)

	out, err := p.Invoke(context.Background(), "sameAddress", map[string]string{
		"applicant.address": "Storgata 1",
		"invoice.address":   "Storgata 1",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["invoice.sameAsApplicant"] != "true" {
		t.Errorf("output = %q, want %q", out["invoice.sameAsApplicant"], "true")
	}

	out, err = p.Invoke(context.Background(), "sameAddress", map[string]string{
		"applicant.address": "Storgata 1",
		"invoice.address":   "Lillegata 2",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["invoice.sameAsApplicant"] != "false" {
		t.Errorf("output = %q, want %q", out["invoice.sameAsApplicant"], "false")
	}
}

func TestStaticProvider_Invoke_unknownRule(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Invoke(context.Background(), "nope", nil)
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRuleError, got %v", err)
	}
	if unknown.Name != "nope" {
		t.Errorf("unknown.Name = %q, want %q", unknown.Name, "nope")
	}
}

func TestNewStaticProvider_rejectsDuplicateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n" +
		"  - name: a\n    operation: concat\n    inputs: [x]\n    output: y\n" +
		"  - name: a\n    operation: sum\n    inputs: [x]\n    output: z\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStaticProvider(path); err == nil {
		t.Fatal("expected error for duplicate rule name")
	}
}

func TestNewStaticProvider_rejectsMissingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - name: a\n    operation: concat\n    inputs: [x]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStaticProvider(path); err == nil {
		t.Fatal("expected error for rule without output")
	}
}

func TestEvaluate_unknownOperation(t *testing.T) {
	if _, err := evaluate("divide", []string{"1", "2"}); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestNone_Invoke(t *testing.T) {
	_, err := None{}.Invoke(context.Background(), "anything", nil)
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRuleError, got %v", err)
	}

	rules, err := None{}.ListRules(context.Background())
	if err != nil || len(rules) != 0 {
		t.Errorf("ListRules = %v, %v, want empty", rules, err)
	}
}
