package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		wantErr bool
	}{
		{
			name:    "valid context",
			rc:      &RequestContext{SubjectID: "dev-1"},
			wantErr: false,
		},
		{
			name:    "missing SubjectID",
			rc:      &RequestContext{Email: "dev@example.com"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{
		Roles: []string{"admin", "editor"},
	}
	if !rc.HasRole("admin") {
		t.Error("HasRole(admin) = false, want true")
	}
	if !rc.HasRole("editor") {
		t.Error("HasRole(editor) = false, want true")
	}
	if rc.HasRole("viewer") {
		t.Error("HasRole(viewer) = true, want false")
	}
}

func TestRequestContext_Claim(t *testing.T) {
	rc := &RequestContext{
		Claims: map[string]any{"sub": "dev-1", "email": "dev@example.com"},
	}
	if rc.Claim("sub") != "dev-1" {
		t.Errorf("Claim(sub) = %v, want dev-1", rc.Claim("sub"))
	}
	if rc.Claim("missing") != nil {
		t.Errorf("Claim(missing) = %v, want nil", rc.Claim("missing"))
	}

	empty := &RequestContext{}
	if empty.Claim("sub") != nil {
		t.Error("Claim on nil Claims should return nil")
	}
}

func TestRequestContext_roundTrip(t *testing.T) {
	rctx := &RequestContext{SubjectID: "dev-1"}
	ctx := WithRequestContext(context.Background(), rctx)

	got := RequestContextFrom(ctx)
	if got != rctx {
		t.Errorf("RequestContextFrom = %p, want %p", got, rctx)
	}
}

func TestRequestContextFrom_absent(t *testing.T) {
	if got := RequestContextFrom(context.Background()); got != nil {
		t.Errorf("RequestContextFrom(empty) = %v, want nil", got)
	}
}

func TestMustRequestContext_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRequestContext did not panic on empty context")
		}
	}()
	MustRequestContext(context.Background())
}
