// Package integration provides a reusable test harness for end-to-end
// integration testing of the Forma layout server. It starts a full HTTP server
// over on-disk layout-set fixtures, in-memory stores, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/askelund/forma/internal/config"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/editor"
	"github.com/askelund/forma/internal/layoutset"
	"github.com/askelund/forma/internal/rule"
	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/transport"
)

// TestHarness encapsulates a fully wired Forma instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry         *layoutset.Registry
	Index            *datamodel.Index
	Layouts          *store.MemoryLayoutStore
	Sessions         *editor.Manager
	IdempotencyStore *editor.MemoryIdempotencyStore

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	layoutDir      string
	modelSources   []datamodel.Source
	saveDebounce   time.Duration
	handlerTimeout time.Duration
	rules          rule.Provider
}

// WithLayoutDir sets the layout-set root directory. Relative paths are
// resolved from the testdata directory.
func WithLayoutDir(dir string) HarnessOption {
	return func(c *harnessConfig) {
		c.layoutDir = dir
	}
}

// WithDataModel adds a data-model schema to index.
func WithDataModel(dataType, specFile string) HarnessOption {
	return func(c *harnessConfig) {
		c.modelSources = append(c.modelSources, datamodel.Source{
			DataType: dataType,
			SpecPath: specFile,
		})
	}
}

// WithSaveDebounce sets the debounce interval for session saves. The default
// is one hour so that persistence only happens through explicit flushes.
func WithSaveDebounce(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.saveDebounce = d
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRules sets the rule provider.
func WithRules(p rule.Provider) HarnessOption {
	return func(c *harnessConfig) {
		c.rules = p
	}
}

// NewTestHarness creates and starts a full Forma test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		saveDebounce:   time.Hour,
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	tdDir := testdataDir()

	// Defaults: use testdata fixtures if nothing specified.
	if hc.layoutDir == "" {
		hc.layoutDir = "layouts"
	}
	if !filepath.IsAbs(hc.layoutDir) {
		hc.layoutDir = filepath.Join(tdDir, hc.layoutDir)
	}
	if len(hc.modelSources) == 0 {
		hc.modelSources = []datamodel.Source{{
			DataType: "permit-model",
			SpecPath: filepath.Join(tdDir, "models", "permit-model.yaml"),
		}}
	}

	h := &TestHarness{t: t}

	// Step 1: Index data-model schemas.
	h.Index = datamodel.NewIndex()
	if err := h.Index.Load(hc.modelSources); err != nil {
		t.Fatalf("load data models: %v", err)
	}

	// Step 2: Load layout sets and validate against the index.
	loader := layoutset.NewLoader("permit-model")
	sets, err := loader.LoadAll(hc.layoutDir)
	if err != nil {
		t.Fatalf("load layout sets: %v", err)
	}
	if verrs := layoutset.NewValidator().Validate(sets, h.Index); len(verrs) > 0 {
		t.Fatalf("layout-set fixtures invalid: %v", verrs)
	}
	h.Registry = layoutset.NewRegistry(sets)

	// Step 3: Build in-memory stores and the session manager.
	h.Layouts = store.NewMemoryLayoutStore()
	h.IdempotencyStore = editor.NewMemoryIdempotencyStore()
	h.Sessions = editor.NewManager(h.Layouts, h.IdempotencyStore, hc.saveDebounce, zap.NewNop())

	// Step 4: Create JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 5: Build config.
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"https://designer.example.com"}
	cfg.Layouts.Directory = hc.layoutDir
	cfg.Layouts.DefaultDataType = "permit-model"
	cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		Algorithms:   []string{"RS256"},
		RequiredRole: "designer",
	}
	h.cfg = cfg

	// Step 6: Build router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Log:          zap.NewNop(),
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Registry:     h.Registry,
		Layouts:      h.Layouts,
		Sessions:     h.Sessions,
		Index:        h.Index,
		Rules:        hc.rules,
	})

	// Step 7: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// DesignerClaims returns TestClaims for a form designer.
func DesignerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-designer",
		Email:     "designer@acme.example.com",
		Roles:     []string{"designer"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// PageURL builds the page endpoint path for the default fixture app.
func PageURL(page string, parts ...string) string {
	url := fmt.Sprintf("/designer/acme/permit/layout-sets/form/pages/%s", page)
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

// LayoutEntries digs the flat component array out of a page response body.
func LayoutEntries(t *testing.T, body map[string]any) []any {
	t.Helper()
	l, ok := body["layout"].(map[string]any)
	if !ok {
		t.Fatalf("response has no layout envelope: %v", body)
	}
	data, ok := l["data"].(map[string]any)
	if !ok {
		t.Fatalf("layout envelope has no data object: %v", l)
	}
	entries, ok := data["layout"].([]any)
	if !ok {
		t.Fatalf("data object has no layout array: %v", data)
	}
	return entries
}
