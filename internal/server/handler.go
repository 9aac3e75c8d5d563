// Package server exposes the control-plane surface —
// submit/status/pause/resume/cancel, iteration listing/comparison/creation,
// and checkpoint listing/creation/restore — as plain net/http handlers over
// internal/executor.Manager, using plain path-segment routing,
// json.NewEncoder responses, and http.Error on failure.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/executor"
	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// Handler serves the crawl control plane.
type Handler struct {
	manager     *executor.Manager
	iterations  interfaces.IterationStore
	checkpoints interfaces.CheckpointStore
	bus         interfaces.EventBus
	ws          *WebSocketHandler
	logger      arbor.ILogger
}

// New builds a Handler. ws may be nil if the caller doesn't want to mount
// the event-stream endpoint.
func New(manager *executor.Manager, iterations interfaces.IterationStore, checkpoints interfaces.CheckpointStore, bus interfaces.EventBus, ws *WebSocketHandler, logger arbor.ILogger) *Handler {
	return &Handler{manager: manager, iterations: iterations, checkpoints: checkpoints, bus: bus, ws: ws, logger: logger}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/crawls", h.CrawlsHandler)
	mux.HandleFunc("/api/crawls/", h.CrawlByIDHandler)
	if h.ws != nil {
		mux.HandleFunc("/api/crawls/stream", h.ws.HandleWebSocket)
	}
}

// CrawlsHandler handles POST /api/crawls (submit a new crawl).
func (h *Handler) CrawlsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Unknown keys are rejected here rather than silently ignored:
	// DisallowUnknownFields makes a typo'd or unrecognized CrawlConfig
	// key a decode error instead of a silently-dropped field.
	var config models.CrawlConfig
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		http.Error(w, models.NewError(models.KindConfigError, "", err).Error(), http.StatusBadRequest)
		return
	}

	e, err := h.manager.Start(config)
	if err != nil {
		h.writeConfigOrInternal(w, err)
		return
	}

	h.logger.Info().Str("crawl_id", e.CrawlID()).Msg("crawl submitted")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"crawl_id": e.CrawlID(),
		"state":    e.State(),
	})
}

// CrawlByIDHandler dispatches every /api/crawls/{id}[/action] route.
func (h *Handler) CrawlByIDHandler(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/crawls/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.Error(w, "crawl_id is required", http.StatusBadRequest)
		return
	}
	crawlID := segments[0]
	action := ""
	if len(segments) > 1 {
		action = segments[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.statusHandler(w, crawlID)
	case action == "pause" && r.Method == http.MethodPost:
		h.lifecycleHandler(w, crawlID, h.manager.Pause)
	case action == "resume" && r.Method == http.MethodPost:
		h.lifecycleHandler(w, crawlID, h.manager.Resume)
	case action == "cancel" && r.Method == http.MethodPost:
		h.lifecycleHandler(w, crawlID, h.manager.Cancel)
	case action == "iterations" && r.Method == http.MethodGet:
		h.listIterationsHandler(w, crawlID)
	case action == "iterations" && r.Method == http.MethodPost:
		h.nextIterationHandler(w, r, crawlID)
	case action == "compare" && r.Method == http.MethodGet:
		h.compareHandler(w, r, crawlID)
	case action == "checkpoints" && r.Method == http.MethodGet:
		h.listCheckpointsHandler(w, crawlID)
	case action == "checkpoints" && r.Method == http.MethodPost:
		h.createCheckpointHandler(w, crawlID)
	case action == "checkpoints" && r.Method == http.MethodDelete:
		h.deleteCheckpointHandler(w, r, crawlID)
	case action == "restore" && r.Method == http.MethodPost:
		h.restoreHandler(w, r, crawlID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /api/crawls/{id} — current lifecycle state and progress.
func (h *Handler) statusHandler(w http.ResponseWriter, crawlID string) {
	e, ok := h.manager.Get(crawlID)
	if !ok {
		http.Error(w, "unknown crawl", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"crawl_id": crawlID,
		"state":    e.State(),
		"progress": e.Progress(),
	})
}

// lifecycleHandler backs pause/resume/cancel, each a no-body POST.
func (h *Handler) lifecycleHandler(w http.ResponseWriter, crawlID string, fn func(string) error) {
	if err := fn(crawlID); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"crawl_id": crawlID})
}

// GET /api/crawls/{id}/iterations
func (h *Handler) listIterationsHandler(w http.ResponseWriter, crawlID string) {
	latest, err := h.iterations.Latest(crawlID)
	if err != nil {
		http.Error(w, "unknown crawl", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"latest": latest})
}

// POST /api/crawls/{id}/iterations?mode={baseline|incremental|full}
func (h *Handler) nextIterationHandler(w http.ResponseWriter, r *http.Request, crawlID string) {
	mode := models.IterationMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = models.ModeIncremental
	}

	e, err := h.manager.NextIteration(crawlID, mode)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"crawl_id": crawlID, "state": e.State()})
}

// GET /api/crawls/{id}/compare?a={iterationA}&b={iterationB}
func (h *Handler) compareHandler(w http.ResponseWriter, r *http.Request, crawlID string) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		http.Error(w, "a and b iteration ids are required", http.StatusBadRequest)
		return
	}
	result, err := h.iterations.Compare(a, b)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /api/crawls/{id}/checkpoints
func (h *Handler) listCheckpointsHandler(w http.ResponseWriter, crawlID string) {
	cps, err := h.checkpoints.List(crawlID)
	if err != nil {
		http.Error(w, "failed to list checkpoints", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checkpoints": cps})
}

// POST /api/crawls/{id}/checkpoints — manual checkpoint.
func (h *Handler) createCheckpointHandler(w http.ResponseWriter, crawlID string) {
	e, ok := h.manager.Get(crawlID)
	if !ok {
		http.Error(w, "unknown crawl", http.StatusNotFound)
		return
	}
	cp, err := e.CreateCheckpoint()
	if err != nil {
		http.Error(w, "failed to create checkpoint", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

// DELETE /api/crawls/{id}/checkpoints?checkpoint_id={id}
func (h *Handler) deleteCheckpointHandler(w http.ResponseWriter, r *http.Request, crawlID string) {
	id := r.URL.Query().Get("checkpoint_id")
	if id == "" {
		http.Error(w, "checkpoint_id is required", http.StatusBadRequest)
		return
	}
	if err := h.checkpoints.Delete(id); err != nil {
		http.Error(w, "failed to delete checkpoint", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checkpoint_id": id})
}

// POST /api/crawls/{id}/restore?checkpoint_id={id} — checkpoint_id optional
// (defaults to the crawl's latest non-terminal checkpoint). Reconstructs
// and resumes a live Executor from the checkpoint's StateBundle rather than
// merely returning it, honoring an optional checkpoint_id that defaults to
// the latest non-terminal checkpoint when omitted.
func (h *Handler) restoreHandler(w http.ResponseWriter, r *http.Request, crawlID string) {
	id := r.URL.Query().Get("checkpoint_id")

	e, err := h.manager.RestoreFromCheckpoint(crawlID, id)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrCorruptCheckpoint):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, models.ErrSchemaMismatch):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, models.ErrUnknownCrawl):
			status = http.StatusNotFound
		case errors.Is(err, models.ErrCrawlIDMismatch):
			status = http.StatusBadRequest
		case errors.Is(err, models.ErrIllegalTransition):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	h.logger.Info().Str("crawl_id", crawlID).Msg("crawl restored from checkpoint")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"crawl_id": crawlID,
		"state":    e.State(),
	})
}

func (h *Handler) writeConfigOrInternal(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrConfigError) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownCrawl):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
