package transport

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/wire"
)

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into a generic map.
func doJSON(t *testing.T, r chi.Router, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, out
}

// layoutEntries digs the flat component list out of a page response.
func layoutEntries(t *testing.T, body map[string]any) []any {
	t.Helper()
	l, ok := body["layout"].(map[string]any)
	if !ok {
		t.Fatalf("response has no layout object: %v", body)
	}
	data, ok := l["data"].(map[string]any)
	if !ok {
		t.Fatalf("layout has no data object: %v", l)
	}
	entries, _ := data["layout"].([]any)
	return entries
}

// --- getPage ---

func TestGetPage_fromDisk(t *testing.T) {
	r := NewRouter(testDeps())
	code, body := doJSON(t, r, "GET", pageURL, nil)

	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["page"] != "page1" {
		t.Errorf("page = %v, want page1", body["page"])
	}
	if body["version"] != float64(0) {
		t.Errorf("version = %v, want 0 (unsaved disk page)", body["version"])
	}
	if got := len(layoutEntries(t, body)); got != 3 {
		t.Errorf("layout entries = %d, want 3", got)
	}
}

func TestGetPage_unknownPage(t *testing.T) {
	r := NewRouter(testDeps())
	code, _ := doJSON(t, r, "GET", "/designer/acme/permit/layout-sets/form/pages/nope", nil)

	if code != 404 {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestGetPage_prefersStoredRecord(t *testing.T) {
	deps := testDeps()
	r := NewRouter(deps)

	// Persist a page whose content differs from the disk version.
	ext := wire.FromInternal(testLayout())
	code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0})
	if code != 201 {
		t.Fatalf("PUT status = %d, want 201", code)
	}

	code, body := doJSON(t, r, "GET", pageURL, nil)
	if code != 200 {
		t.Fatalf("GET status = %d, want 200", code)
	}
	if body["version"] != float64(1) {
		t.Errorf("version = %v, want 1 (stored record)", body["version"])
	}
}

// --- putPage ---

func TestPutPage_createThenUpdate(t *testing.T) {
	r := NewRouter(testDeps())
	ext := wire.FromInternal(testLayout())

	code, body := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0})
	if code != 201 {
		t.Fatalf("create status = %d, want 201", code)
	}
	if body["version"] != float64(1) {
		t.Errorf("version after create = %v, want 1", body["version"])
	}

	code, body = doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 1})
	if code != 200 {
		t.Fatalf("update status = %d, want 200", code)
	}
	if body["version"] != float64(2) {
		t.Errorf("version after update = %v, want 2", body["version"])
	}
}

func TestPutPage_versionConflict(t *testing.T) {
	r := NewRouter(testDeps())
	ext := wire.FromInternal(testLayout())

	if code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0}); code != 201 {
		t.Fatalf("create failed with status %d", code)
	}

	// A second create and a stale update must both conflict.
	if code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0}); code != 409 {
		t.Errorf("duplicate create status = %d, want 409", code)
	}
	if code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 7}); code != 409 {
		t.Errorf("stale update status = %d, want 409", code)
	}
}

func TestPutPage_missingLayout(t *testing.T) {
	r := NewRouter(testDeps())
	code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"version": 0})

	if code != 400 {
		t.Errorf("status = %d, want 400", code)
	}
}

// --- deletePage ---

func TestDeletePage(t *testing.T) {
	deps := testDeps()
	r := NewRouter(deps)
	ext := wire.FromInternal(testLayout())

	if code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0}); code != 201 {
		t.Fatal("create failed")
	}

	req := httptest.NewRequest("DELETE", pageURL, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 204 {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}

	// The disk version is still served after the stored record is gone.
	code, body := doJSON(t, r, "GET", pageURL, nil)
	if code != 200 {
		t.Fatalf("GET after delete status = %d, want 200", code)
	}
	if body["version"] != float64(0) {
		t.Errorf("version = %v, want 0 (back to disk content)", body["version"])
	}
}

func TestDeletePage_notStored(t *testing.T) {
	r := NewRouter(testDeps())
	req := httptest.NewRequest("DELETE", pageURL, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Errorf("status = %d, want 404 for never-saved page", w.Code)
	}
}

// --- flushPage ---

func TestFlushPage_persistsPendingEdits(t *testing.T) {
	deps := testDeps()
	r := NewRouter(deps)

	code, _ := doJSON(t, r, "POST", pageURL+"/components", map[string]any{
		"componentType": "Input",
		"id":            "email",
	})
	if code != 201 {
		t.Fatalf("add component status = %d, want 201", code)
	}
	if deps.Layouts.(*store.MemoryLayoutStore).Len() != 0 {
		t.Fatal("edit should still be debounced, not persisted")
	}

	code, body := doJSON(t, r, "POST", pageURL+"/flush", nil)
	if code != 200 {
		t.Fatalf("flush status = %d, want 200", code)
	}
	if body["version"] != float64(1) {
		t.Errorf("version = %v, want 1 after first flush", body["version"])
	}
	if deps.Layouts.(*store.MemoryLayoutStore).Len() != 1 {
		t.Error("flush did not persist the pending edit")
	}
}

func TestFlushPage_noSessionFallsBackToStore(t *testing.T) {
	r := NewRouter(testDeps())
	ext := wire.FromInternal(testLayout())

	if code, _ := doJSON(t, r, "PUT", pageURL, map[string]any{"layout": ext, "version": 0}); code != 201 {
		t.Fatal("create failed")
	}

	// PUT discards the session, so flush reports the stored version.
	code, body := doJSON(t, r, "POST", pageURL+"/flush", nil)
	if code != 200 {
		t.Fatalf("flush status = %d, want 200", code)
	}
	if body["version"] != float64(1) {
		t.Errorf("version = %v, want 1", body["version"])
	}
}
