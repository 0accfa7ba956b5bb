package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/askelund/forma/internal/config"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/editor"
	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/layoutset"
	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/model"
)

// testLayout builds a page with a plain input and a repeating group holding
// one child input.
func testLayout() layout.Layout {
	l := layout.Empty()
	l = layout.AddComponent(l, layout.Component{
		ID:   "name",
		Type: layout.TypeInput,
		Bindings: map[string]layout.Binding{
			"simpleBinding": {Field: "applicant.name", DataType: "permit-model"},
		},
	}, layout.BaseContainerID, -1)
	l = layout.AddContainer(l, layout.Container{
		Type:     layout.TypeGroup,
		MaxCount: 3,
		Bindings: map[string]layout.Binding{
			"group": {Field: "items", DataType: "permit-model"},
		},
	}, "items-group", layout.BaseContainerID, -1)
	l = layout.AddComponent(l, layout.Component{
		ID:   "quantity",
		Type: layout.TypeInput,
		Bindings: map[string]layout.Binding{
			"simpleBinding": {Field: "items.quantity", DataType: "permit-model"},
		},
	}, "items-group", -1)
	return l
}

func testRegistry() *layoutset.Registry {
	return layoutset.NewRegistry([]layoutset.LayoutSet{{
		Name:            "form",
		DefaultDataType: "permit-model",
		Pages:           map[string]layout.Layout{"page1": testLayout()},
		PageOrder:       []string{"page1"},
		Checksum:        "abc123",
	}})
}

func testFields() []datamodel.Field {
	return []datamodel.Field{
		{BindingName: "applicant", MaxOccurs: 1},
		{BindingName: "applicant.name", MaxOccurs: 1, XSDValueType: datamodel.XSDString},
		{BindingName: "items", MaxOccurs: 10},
		{BindingName: "items.quantity", MaxOccurs: 1, XSDValueType: datamodel.XSDInteger},
	}
}

// testDeps returns Dependencies with sensible defaults for testing: an
// in-memory store, a one-set registry, and auth disabled.
func testDeps() Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://designer.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Layouts.DefaultDataType = "permit-model"

	layouts := store.NewMemoryLayoutStore()
	idx := datamodel.NewIndex()
	idx.Put("permit-model", testFields())

	return Dependencies{
		Config:   cfg,
		Log:      zap.NewNop(),
		Registry: testRegistry(),
		Layouts:  layouts,
		Sessions: editor.NewManager(layouts, editor.NewMemoryIdempotencyStore(), time.Hour, zap.NewNop()),
		Index:    idx,
	}
}

const pageURL = "/designer/acme/permit/layout-sets/form/pages/page1"

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// With auth rejecting all requests, all authenticated routes should
	// return 401, confirming they are registered and not 404/405.
	rejectAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewUnauthorizedError("rejected"))
		})
	}

	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/datamodels"},
		{"GET", "/datamodels/permit-model/fields"},
		{"GET", "/rules"},
		{"POST", "/rules/fullName/invoke"},
		{"GET", "/designer/acme/permit/layout-sets"},
		{"GET", "/designer/acme/permit/layout-sets/form"},
		{"GET", "/designer/acme/permit/layout-sets/form/duplicates"},
		{"GET", pageURL},
		{"PUT", pageURL},
		{"DELETE", pageURL},
		{"POST", pageURL + "/flush"},
		{"POST", pageURL + "/components"},
		{"DELETE", pageURL + "/components/name"},
		{"PUT", pageURL + "/containers/items-group"},
		{"POST", pageURL + "/move"},
		{"POST", pageURL + "/preview/groups"},
		{"POST", pageURL + "/preview/rows"},
		{"POST", pageURL + "/validations/map"},
		{"POST", pageURL + "/validations/remove-row"},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			if w.Code != 401 {
				t.Errorf("status = %d, want 401 (auth should reject)", w.Code)
			}
		})
	}
}

func TestNewRouter_publicRoutesBypassAuth(t *testing.T) {
	rejectAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewUnauthorizedError("rejected"))
		})
	}

	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			if w.Code != 200 {
				t.Errorf("status = %d, want 200 (public route)", w.Code)
			}
		})
	}
}

func TestNewRouter_unknownRoute(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_corsHeaders(t *testing.T) {
	r := NewRouter(testDeps())
	req := httptest.NewRequest("OPTIONS", pageURL, nil)
	req.Header.Set("Origin", "https://designer.example.com")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://designer.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
