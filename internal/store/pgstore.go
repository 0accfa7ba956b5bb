package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askelund/forma/model"

	"github.com/askelund/forma/internal/wire"
)

// PgLayoutStore is a PostgreSQL-backed LayoutStore using pgx/v5.
type PgLayoutStore struct {
	pool *pgxpool.Pool
}

// NewPgLayoutStore creates a new PostgreSQL layout store.
func NewPgLayoutStore(pool *pgxpool.Pool) *PgLayoutStore {
	return &PgLayoutStore{pool: pool}
}

// HealthCheck pings the database.
func (s *PgLayoutStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Save creates or updates a layout page with optimistic locking.
func (s *PgLayoutStore) Save(ctx context.Context, ref LayoutRef, req SaveRequest) (LayoutRecord, error) {
	payload, err := json.Marshal(req.Layout)
	if err != nil {
		return LayoutRecord{}, fmt.Errorf("marshal layout: %w", err)
	}
	now := time.Now().UTC()

	if req.Version == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO form_layouts (
				org, app, layout_set, page, payload, version, saved_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7)
			ON CONFLICT (org, app, layout_set, page) DO NOTHING`,
			ref.Org, ref.App, ref.LayoutSet, ref.Page, payload, req.SavedBy, now,
		)
		if err != nil {
			return LayoutRecord{}, fmt.Errorf("insert layout: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return LayoutRecord{}, model.NewConflictError(
				fmt.Sprintf("layout %q already exists", ref.Key()),
			)
		}
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE form_layouts SET
				payload = $1,
				version = $2,
				saved_by = $3,
				updated_at = $4
			WHERE org = $5 AND app = $6 AND layout_set = $7 AND page = $8 AND version = $9`,
			payload, req.Version+1, req.SavedBy, now,
			ref.Org, ref.App, ref.LayoutSet, ref.Page, req.Version,
		)
		if err != nil {
			return LayoutRecord{}, fmt.Errorf("update layout: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return LayoutRecord{}, model.NewConflictError(
				fmt.Sprintf("layout %q version conflict (expected %d)", ref.Key(), req.Version),
			)
		}
	}

	for _, change := range req.ComponentIDsChange {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO layout_rename_events (
				id, org, app, layout_set, page, old_component_id, new_component_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), ref.Org, ref.App, ref.LayoutSet, ref.Page,
			change.OldComponentID, change.NewComponentID, now,
		)
		if err != nil {
			return LayoutRecord{}, fmt.Errorf("insert rename event: %w", err)
		}
	}

	return s.Get(ctx, ref)
}

// Get retrieves a layout page.
func (s *PgLayoutStore) Get(ctx context.Context, ref LayoutRef) (LayoutRecord, error) {
	rec := LayoutRecord{Ref: ref}
	var payload []byte

	err := s.pool.QueryRow(ctx, `
		SELECT payload, version, saved_by, created_at, updated_at
		FROM form_layouts
		WHERE org = $1 AND app = $2 AND layout_set = $3 AND page = $4`,
		ref.Org, ref.App, ref.LayoutSet, ref.Page,
	).Scan(&payload, &rec.Version, &rec.SavedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err == pgx.ErrNoRows {
		return LayoutRecord{}, model.NewLayoutNotFoundError(ref.Key())
	}
	if err != nil {
		return LayoutRecord{}, fmt.Errorf("query layout: %w", err)
	}

	if payload != nil {
		var ext wire.ExternalLayout
		if err := json.Unmarshal(payload, &ext); err != nil {
			return LayoutRecord{}, fmt.Errorf("unmarshal layout: %w", err)
		}
		rec.Layout = &ext
	}
	return rec, nil
}

// List returns every stored page of a layout set, ordered by page name.
func (s *PgLayoutStore) List(ctx context.Context, org, app, layoutSet string) ([]LayoutRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT page, payload, version, saved_by, created_at, updated_at
		FROM form_layouts
		WHERE org = $1 AND app = $2 AND layout_set = $3
		ORDER BY page ASC`,
		org, app, layoutSet,
	)
	if err != nil {
		return nil, fmt.Errorf("query layouts: %w", err)
	}
	defer rows.Close()

	var out []LayoutRecord
	for rows.Next() {
		rec := LayoutRecord{Ref: LayoutRef{Org: org, App: app, LayoutSet: layoutSet}}
		var payload []byte
		if err := rows.Scan(&rec.Ref.Page, &payload, &rec.Version, &rec.SavedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan layout: %w", err)
		}
		if payload != nil {
			var ext wire.ExternalLayout
			if err := json.Unmarshal(payload, &ext); err != nil {
				return nil, fmt.Errorf("unmarshal layout: %w", err)
			}
			rec.Layout = &ext
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a layout page and its rename trail.
func (s *PgLayoutStore) Delete(ctx context.Context, ref LayoutRef) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM layout_rename_events
		WHERE org = $1 AND app = $2 AND layout_set = $3 AND page = $4`,
		ref.Org, ref.App, ref.LayoutSet, ref.Page,
	)
	if err != nil {
		return fmt.Errorf("delete rename events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM form_layouts
		WHERE org = $1 AND app = $2 AND layout_set = $3 AND page = $4`,
		ref.Org, ref.App, ref.LayoutSet, ref.Page,
	)
	if err != nil {
		return fmt.Errorf("delete layout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewLayoutNotFoundError(ref.Key())
	}
	return nil
}

// Renames returns the page's rename audit trail, oldest first.
func (s *PgLayoutStore) Renames(ctx context.Context, ref LayoutRef) ([]IDChange, error) {
	if _, err := s.Get(ctx, ref); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT old_component_id, new_component_id
		FROM layout_rename_events
		WHERE org = $1 AND app = $2 AND layout_set = $3 AND page = $4
		ORDER BY created_at ASC`,
		ref.Org, ref.App, ref.LayoutSet, ref.Page,
	)
	if err != nil {
		return nil, fmt.Errorf("query rename events: %w", err)
	}
	defer rows.Close()

	var out []IDChange
	for rows.Next() {
		var change IDChange
		if err := rows.Scan(&change.OldComponentID, &change.NewComponentID); err != nil {
			return nil, fmt.Errorf("scan rename event: %w", err)
		}
		out = append(out, change)
	}
	return out, rows.Err()
}
