package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askelund/forma/internal/config"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/editor"
	"github.com/askelund/forma/internal/layoutset"
	"github.com/askelund/forma/internal/observability"
	"github.com/askelund/forma/internal/rule"
	"github.com/askelund/forma/internal/store"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Log          *zap.Logger
	Authenticate func(http.Handler) http.Handler
	Registry     *layoutset.Registry
	Layouts      store.LayoutStore
	Sessions     *editor.Manager
	Index        *datamodel.Index
	Rules        rule.Provider
	Metrics      *observability.Metrics
	Ready        http.HandlerFunc
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	rules := deps.Rules
	if rules == nil {
		rules = rule.None{}
	}
	h := &handlers{
		cfg:      deps.Config,
		log:      deps.Log,
		registry: deps.Registry,
		layouts:  deps.Layouts,
		sessions: deps.Sessions,
		index:    deps.Index,
		rules:    rules,
		metrics:  deps.Metrics,
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes, bypass authentication.
	r.Get("/health", observability.HandleHealth())
	ready := deps.Ready
	if ready == nil {
		ready = func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		}
	}
	r.Get("/ready", ready)
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes, full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/datamodels", h.listDataTypes)
		r.Get("/datamodels/{dataType}/fields", h.listFields)

		r.Get("/rules", h.listRules)
		r.Post("/rules/{rule}/invoke", h.invokeRule)

		r.Route("/designer/{org}/{app}", func(r chi.Router) {
			r.Get("/layout-sets", h.listLayoutSets)
			r.Route("/layout-sets/{set}", func(r chi.Router) {
				r.Get("/", h.getLayoutSet)
				r.Get("/duplicates", h.duplicateReport)
				r.Route("/pages/{page}", func(r chi.Router) {
					r.Get("/", h.getPage)
					r.Put("/", h.putPage)
					r.Delete("/", h.deletePage)
					r.Post("/flush", h.flushPage)

					r.Post("/components", h.addItem)
					r.Delete("/components/{componentId}", h.removeItem)
					r.Put("/containers/{containerId}", h.updateContainer)
					r.Post("/move", h.moveItem)

					r.Post("/preview/groups", h.previewGroups)
					r.Post("/preview/rows", h.previewRows)
					r.Post("/validations/map", h.mapValidations)
					r.Post("/validations/remove-row", h.removeRowValidations)
				})
			})
		})
	})

	return r
}
