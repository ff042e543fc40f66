// Package ops serves the operator HTTP surface: health, readiness, metrics,
// build info, and the loaded scene profiles. It is not a game API.
package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coachverse/recall/pkg/logger"
	"github.com/coachverse/recall/pkg/ops/middleware"
	"github.com/coachverse/recall/pkg/scene"
	"github.com/coachverse/recall/pkg/version"
)

// Probe paths.
const (
	LivePath  = "/healthz"
	ReadyPath = "/readyz"
)

// Options wires the router.
type Options struct {
	Logger logger.Logger
	Health *HealthHandler

	// Metrics records requests; nil disables request metrics.
	Metrics middleware.MetricsRecorder

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// Scenes is exposed read-only under /scenes when set.
	Scenes *scene.Table
}

// NewRouter builds the ops router.
func NewRouter(opts Options) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	health := opts.Health
	if health == nil {
		health = NewHealthHandler(0)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log, LivePath, ReadyPath))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Tracing(LivePath, ReadyPath, opts.MetricsPath))
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics, opts.MetricsPath))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get(LivePath, health.Live)
	r.Get(ReadyPath, health.Ready)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})

	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, opts.MetricsHandler)
	}

	if opts.Scenes != nil {
		scenes := &sceneHandler{table: opts.Scenes}
		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", scenes.list)
			r.Get("/{id}", scenes.get)
		})
	}

	return r
}

type sceneHandler struct {
	table *scene.Table
}

func (h *sceneHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes":  h.table.IDs(),
		"default": h.table.Lookup(scene.DefaultID),
	})
}

// get answers with the authored profile, or 404 with the fallback attached
// so operators can see what an unknown scene id resolves to.
func (h *sceneHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if p, ok := h.table.Get(id); ok {
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":      "scene not found",
		"request_id": middleware.GetRequestID(r.Context()),
		"fallback":   h.table.Lookup(id),
	})
}
