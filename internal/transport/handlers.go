package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askelund/forma/internal/config"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/editor"
	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/layoutset"
	"github.com/askelund/forma/internal/observability"
	"github.com/askelund/forma/internal/rule"
	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/wire"
	"github.com/askelund/forma/model"
)

// handlers bundles the dependencies shared by all request handlers.
type handlers struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *layoutset.Registry
	layouts  store.LayoutStore
	sessions *editor.Manager
	index    *datamodel.Index
	rules    rule.Provider
	metrics  *observability.Metrics
}

// refFrom builds the layout reference from the request's URL parameters.
func refFrom(r *http.Request) store.LayoutRef {
	return store.LayoutRef{
		Org:       chi.URLParam(r, "org"),
		App:       chi.URLParam(r, "app"),
		LayoutSet: chi.URLParam(r, "set"),
		Page:      chi.URLParam(r, "page"),
	}
}

// defaultDataType resolves the data type that implicit bindings of the set's
// pages refer to.
func (h *handlers) defaultDataType(setName string) string {
	if set, ok := h.registry.Set(setName); ok && set.DefaultDataType != "" {
		return set.DefaultDataType
	}
	return h.cfg.Layouts.DefaultDataType
}

// session returns the live editing session for the page addressed by the
// request, creating it from the store or the on-disk layout set on first use.
func (h *handlers) session(r *http.Request) (*editor.Session, error) {
	ref := refFrom(r)
	return h.sessions.GetOrCreate(r.Context(), ref, savedBy(r), h.initialLayout(ref))
}

// initialLayout loads a page's starting content: the saved record when one
// exists, otherwise the page as loaded from disk.
func (h *handlers) initialLayout(ref store.LayoutRef) editor.InitialLayout {
	return func(ctx context.Context) (layout.Layout, int, error) {
		rec, err := h.layouts.Get(ctx, ref)
		if err == nil {
			return wire.ToInternal(rec.Layout, h.defaultDataType(ref.LayoutSet)), rec.Version, nil
		}
		if ee, ok := err.(*model.ErrorEnvelope); !ok || ee.Code != model.ErrLayoutNotFound {
			return layout.Layout{}, 0, err
		}
		if l, ok := h.registry.Page(ref.LayoutSet, ref.Page); ok {
			return l, 0, nil
		}
		return layout.Layout{}, 0, model.NewLayoutNotFoundError(ref.Key())
	}
}

// savedBy returns the authenticated subject performing the edit.
func savedBy(r *http.Request) string {
	if rctx := model.RequestContextFrom(r.Context()); rctx != nil {
		return rctx.SubjectID
	}
	return ""
}

// isConflict reports whether err is an optimistic-versioning conflict.
func isConflict(err error) bool {
	ee, ok := err.(*model.ErrorEnvelope)
	return ok && ee.Code == model.ErrConflict
}

// recordMutation is a nil-safe metrics helper.
func (h *handlers) recordMutation(operation string) {
	if h.metrics != nil {
		h.metrics.RecordMutation(operation)
	}
}

// decodeJSON parses a request body into dst, converting parse failures into
// a bad-request envelope.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewBadRequestError("invalid JSON body: " + err.Error())
	}
	return nil
}
