// Package store persists form layouts in their external wire form, with
// optimistic versioning and a rename audit trail consumed by backends that
// propagate component id changes into other artifacts.
package store

import (
	"context"
	"time"

	"github.com/askelund/forma/internal/wire"
)

// LayoutRef addresses one layout page of one application.
type LayoutRef struct {
	Org       string
	App       string
	LayoutSet string
	Page      string
}

// Key returns the canonical flat key of the reference.
func (r LayoutRef) Key() string {
	return r.Org + "/" + r.App + "/" + r.LayoutSet + "/" + r.Page
}

// IDChange records one component or container rename.
type IDChange struct {
	OldComponentID string `json:"oldComponentId"`
	NewComponentID string `json:"newComponentId"`
}

// SaveRequest carries one save: the layout in external form, the caller's
// last-seen version for the optimistic check (0 means create), and the rename
// list. ComponentIDsChange is nil unless this save renamed an item; a rename
// always carries the list, so downstream artifact rewrites never miss one.
type SaveRequest struct {
	Layout             *wire.ExternalLayout
	Version            int
	ComponentIDsChange []IDChange
	SavedBy            string
}

// LayoutRecord is a persisted layout page.
type LayoutRecord struct {
	Ref       LayoutRef
	Layout    *wire.ExternalLayout
	Version   int
	SavedBy   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LayoutStore persists layout pages.
type LayoutStore interface {
	// Save creates the page when req.Version is 0, and otherwise updates it
	// if the stored version still matches. It returns the record as stored,
	// with the bumped version.
	Save(ctx context.Context, ref LayoutRef, req SaveRequest) (LayoutRecord, error)
	// Get returns the stored page.
	Get(ctx context.Context, ref LayoutRef) (LayoutRecord, error)
	// List returns every page of a layout set, ordered by page name.
	List(ctx context.Context, org, app, layoutSet string) ([]LayoutRecord, error)
	// Delete removes the page and its rename trail.
	Delete(ctx context.Context, ref LayoutRef) error
	// Renames returns the page's rename audit trail, oldest first.
	Renames(ctx context.Context, ref LayoutRef) ([]IDChange, error)
}
