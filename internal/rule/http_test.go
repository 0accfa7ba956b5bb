package rule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func startRuleService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rules": []Descriptor{
				{Name: "fullName", Inputs: []string{"first", "last"}, Output: "full"},
			},
		})
	})
	mux.HandleFunc("/rules/fullName", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Inputs map[string]string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"outputs": map[string]string{"full": body.Inputs["first"] + " " + body.Inputs["last"]},
		})
	})
	mux.HandleFunc("/rules/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProvider_ListRules(t *testing.T) {
	srv := startRuleService(t)
	p := NewHTTPProvider(srv.URL, time.Second)

	rules, err := p.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "fullName" {
		t.Errorf("rules = %+v, want one rule named fullName", rules)
	}
}

func TestHTTPProvider_Invoke(t *testing.T) {
	srv := startRuleService(t)
	p := NewHTTPProvider(srv.URL, time.Second)

	out, err := p.Invoke(context.Background(), "fullName", map[string]string{
		"first": "Ola",
		"last":  "Nordmann",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["full"] != "Ola Nordmann" {
		t.Errorf("out = %q, want %q", out["full"], "Ola Nordmann")
	}
}

func TestHTTPProvider_Invoke_unknownRule(t *testing.T) {
	srv := startRuleService(t)
	p := NewHTTPProvider(srv.URL, time.Second)

	_, err := p.Invoke(context.Background(), "missing", nil)
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRuleError, got %v", err)
	}
}

func TestHTTPProvider_Invoke_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	p := NewHTTPProvider(srv.URL, time.Second)

	if _, err := p.Invoke(context.Background(), "fullName", nil); err == nil {
		t.Fatal("expected error for server failure")
	}
}
