package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/askelund/forma/internal/store"
)

func TestPageLoad_fromDisk(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var body map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &body)

	if body["page"] != "page1" {
		t.Errorf("page = %v, want page1", body["page"])
	}
	if body["version"] != float64(0) {
		t.Errorf("version = %v, want 0 (never saved)", body["version"])
	}
	if entries := LayoutEntries(t, body); len(entries) != 3 {
		t.Errorf("layout entries = %d, want 3", len(entries))
	}
}

func TestPageLoad_unknownPage(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	h.AssertStatus(t, h.GET(PageURL("page99"), token), http.StatusNotFound)
}

func TestEditFlow_addComponentAndFlush(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var added map[string]any
	h.AssertJSON(t, h.POST(PageURL("page1", "components"), map[string]any{
		"componentType": "Input",
		"id":            "phone",
	}, token), http.StatusCreated, &added)
	if added["id"] != "phone" {
		t.Errorf("id = %v, want phone", added["id"])
	}

	// The edit is debounced, nothing is persisted yet.
	if h.Layouts.Len() != 0 {
		t.Errorf("store holds %d layouts before flush, want 0", h.Layouts.Len())
	}

	var flushed map[string]any
	h.AssertJSON(t, h.POST(PageURL("page1", "flush"), nil, token), http.StatusOK, &flushed)
	if flushed["version"] != float64(1) {
		t.Errorf("flushed version = %v, want 1", flushed["version"])
	}
	if h.Layouts.Len() != 1 {
		t.Errorf("store holds %d layouts after flush, want 1", h.Layouts.Len())
	}

	var page map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &page)
	if page["version"] != float64(1) {
		t.Errorf("version = %v, want 1 after flush", page["version"])
	}
	if entries := LayoutEntries(t, page); len(entries) != 4 {
		t.Errorf("layout entries = %d, want 4", len(entries))
	}
}

func TestEditFlow_renameRecordsIDChange(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var renamed map[string]any
	h.AssertJSON(t, h.PUT(PageURL("page1", "containers", "items-group"), map[string]any{
		"id":       "order-lines",
		"maxCount": 3,
	}, token), http.StatusOK, &renamed)
	if renamed["id"] != "order-lines" {
		t.Errorf("id = %v, want order-lines", renamed["id"])
	}

	h.AssertStatus(t, h.POST(PageURL("page1", "flush"), nil, token), http.StatusOK)

	ref := store.LayoutRef{Org: "acme", App: "permit", LayoutSet: "form", Page: "page1"}
	changes, err := h.Layouts.Renames(context.Background(), ref)
	if err != nil {
		t.Fatalf("Renames() error = %v", err)
	}
	if len(changes) != 1 || changes[0].OldComponentID != "items-group" || changes[0].NewComponentID != "order-lines" {
		t.Errorf("renames = %+v, want items-group -> order-lines", changes)
	}
}

func TestEditFlow_moveComponentIntoGroup(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	h.AssertStatus(t, h.POST(PageURL("page1", "move"), map[string]any{
		"id":          "name",
		"newParentId": "items-group",
		"index":       0,
	}, token), http.StatusNoContent)

	h.AssertStatus(t, h.DELETE(PageURL("page1", "components", "items-group"), token), http.StatusNoContent)

	// Removing the group takes its subtree, including the moved component.
	var page map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &page)
	if entries := LayoutEntries(t, page); len(entries) != 0 {
		t.Errorf("layout entries = %d, want 0 after subtree removal", len(entries))
	}
}

func TestPutPage_versionLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var page map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &page)

	var created map[string]any
	h.AssertJSON(t, h.PUT(PageURL("page1"), map[string]any{
		"layout":  page["layout"],
		"version": 0,
	}, token), http.StatusCreated, &created)
	if created["version"] != float64(1) {
		t.Errorf("created version = %v, want 1", created["version"])
	}

	// Re-creating the page conflicts.
	h.AssertStatus(t, h.PUT(PageURL("page1"), map[string]any{
		"layout":  page["layout"],
		"version": 0,
	}, token), http.StatusConflict)

	// A stale version conflicts.
	h.AssertStatus(t, h.PUT(PageURL("page1"), map[string]any{
		"layout":  page["layout"],
		"version": 7,
	}, token), http.StatusConflict)

	var updated map[string]any
	h.AssertJSON(t, h.PUT(PageURL("page1"), map[string]any{
		"layout":  page["layout"],
		"version": 1,
	}, token), http.StatusOK, &updated)
	if updated["version"] != float64(2) {
		t.Errorf("updated version = %v, want 2", updated["version"])
	}
}

func TestDeletePage_fallsBackToDisk(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var page map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &page)
	h.AssertStatus(t, h.PUT(PageURL("page1"), map[string]any{
		"layout":  page["layout"],
		"version": 0,
	}, token), http.StatusCreated)

	h.AssertStatus(t, h.DELETE(PageURL("page1"), token), http.StatusNoContent)
	if h.Layouts.Len() != 0 {
		t.Errorf("store holds %d layouts after delete, want 0", h.Layouts.Len())
	}

	// The on-disk page is still served, back at version 0.
	var reloaded map[string]any
	h.AssertJSON(t, h.GET(PageURL("page1"), token), http.StatusOK, &reloaded)
	if reloaded["version"] != float64(0) {
		t.Errorf("version = %v, want 0 after delete", reloaded["version"])
	}
}

func TestListLayoutSets(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(DesignerClaims())

	var body map[string]any
	h.AssertJSON(t, h.GET("/designer/acme/permit/layout-sets", token), http.StatusOK, &body)

	sets, _ := body["sets"].([]any)
	if len(sets) != 1 {
		t.Fatalf("sets = %d, want 1", len(sets))
	}
	first, _ := sets[0].(map[string]any)
	if first["name"] != "form" {
		t.Errorf("name = %v, want form", first["name"])
	}
	pages, _ := first["pages"].([]any)
	if len(pages) != 2 || pages[0] != "page1" || pages[1] != "page2" {
		t.Errorf("pages = %v, want [page1 page2]", pages)
	}
}
