package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/c360/semcache/errors"
)

// Handler serves management endpoints for a set of caches:
//
//	GET   {prefix}                      list cache names
//	GET   {prefix}{name}/stats          Status
//	PATCH {prefix}{name}/settings       apply Settings
//	POST  {prefix}{name}/flush          flush every group
//	POST  {prefix}{name}/flush/{group}  flush one group
//	POST  {prefix}{name}/cleanup        run the cleanup policies once
type Handler struct {
	mu     sync.RWMutex
	caches map[string]Controllable
	logger *slog.Logger
}

// NewHandler creates an empty handler. A nil logger uses slog.Default().
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		caches: make(map[string]Controllable),
		logger: logger.With("component", "control"),
	}
}

// Add registers c under its name, replacing any cache of the same name.
func (h *Handler) Add(c Controllable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caches[c.Name()] = c
}

// Remove unregisters the named cache.
func (h *Handler) Remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.caches, name)
}

// RegisterHTTPHandlers registers the endpoints under prefix on mux.
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc("GET "+prefix+"{$}", h.handleList)
	mux.HandleFunc("GET "+prefix+"{name}/stats", h.handleStats)
	mux.HandleFunc("PATCH "+prefix+"{name}/settings", h.handleSettings)
	mux.HandleFunc("POST "+prefix+"{name}/flush", h.handleFlushAll)
	mux.HandleFunc("POST "+prefix+"{name}/flush/{group}", h.handleFlushGroup)
	mux.HandleFunc("POST "+prefix+"{name}/cleanup", h.handleCleanup)

	h.logger.Info("Cache control HTTP handlers registered", "prefix", prefix)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Controllable, bool) {
	name := r.PathValue("name")
	h.mu.RLock()
	c, ok := h.caches[name]
	h.mu.RUnlock()
	if !ok {
		h.writeJSONError(w, "Cache not found: "+name, http.StatusNotFound)
	}
	return c, ok
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.caches))
	for name := range h.caches {
		names = append(names, name)
	}
	h.mu.RUnlock()

	slices.Sort(names)
	h.writeJSON(w, map[string]any{"caches": names})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, c.Status())
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := c.Apply(s); err != nil {
		status := http.StatusInternalServerError
		if errors.IsInvalid(err) {
			status = http.StatusBadRequest
		}
		h.writeJSONError(w, err.Error(), status)
		return
	}

	h.logger.Info("Cache settings changed", "cache", c.Name())
	h.writeJSON(w, c.Status())
}

func (h *Handler) handleFlushAll(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	c.FlushAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFlushGroup(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	c.FlushGroup(r.PathValue("group"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Cleanup(r.Context()); err != nil {
		h.logger.Error("Cleanup request failed", "cache", c.Name(), "error", err)
		h.writeJSONError(w, "Cleanup failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, c.Status())
}

// writeJSON writes a JSON response and logs encoding errors
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error response in JSON format
func (h *Handler) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err, "message", message)
	}
}
