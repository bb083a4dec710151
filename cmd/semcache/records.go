package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/c360/semcache/cache"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/loader"
)

// Record is the payload served by the binary: an opaque JSON document
// addressed by id and grouped by its group field.
type Record struct {
	ID    string          `json:"id"`
	Group string          `json:"group"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (r *Record) CacheKey() string { return r.ID }
func (r *Record) GroupKey() string { return r.Group }

// fileSource reads a JSON array of records. The file is read on every
// fetch, so edits are picked up by the next miss.
type fileSource struct {
	path string
}

func (s fileSource) read() ([]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSourceFailed, err), "fileSource", "read", "read file")
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrParsingFailed, s.path, err), "fileSource", "read", "decode")
	}
	return records, nil
}

func (s fileSource) filter(keep func(*Record) bool) ([]*Record, error) {
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, r := range records {
		if r != nil && keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newFileLoader(path string) loader.GroupFunc[*Record] {
	src := fileSource{path: path}
	return loader.GroupFunc[*Record]{
		Func: loader.Func[*Record]{
			Entity: func(_ context.Context, key string) (*Record, bool, error) {
				matches, err := src.filter(func(r *Record) bool { return r.ID == key })
				if err != nil || len(matches) == 0 {
					return nil, false, err
				}
				return matches[0], true, nil
			},
			All: func(context.Context) ([]*Record, error) {
				return src.filter(func(*Record) bool { return true })
			},
		},
		Groups: func(context.Context) ([]string, error) {
			records, err := src.read()
			if err != nil {
				return nil, err
			}
			seen := make(map[string]bool)
			var groups []string
			for _, r := range records {
				if r != nil && !seen[r.Group] {
					seen[r.Group] = true
					groups = append(groups, r.Group)
				}
			}
			return groups, nil
		},
		ByGroup: func(_ context.Context, groupKey string) ([]*Record, error) {
			return src.filter(func(r *Record) bool { return r.Group == groupKey })
		},
	}
}

// recordsHandler serves reads through the cache:
//
//	GET /records/{key}    one record, loaded on a miss
//	GET /groups/{group}   every member of a group
type recordsHandler struct {
	mgr    *cache.Manager[*Record]
	logger *slog.Logger
	mux    *http.ServeMux
}

func newRecordsHandler(mgr *cache.Manager[*Record], logger *slog.Logger) *recordsHandler {
	h := &recordsHandler{mgr: mgr, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /records/{key}", h.handleRecord)
	h.mux.HandleFunc("GET /groups/{group}", h.handleGroup)
	return h
}

func (h *recordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *recordsHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, found, err := h.mgr.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	if !found {
		h.writeJSONError(w, "Record not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, rec)
}

func (h *recordsHandler) handleGroup(w http.ResponseWriter, r *http.Request) {
	members, found, err := h.mgr.GetByGroup(r.Context(), r.PathValue("group"))
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	if !found {
		h.writeJSONError(w, "Group not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, map[string]any{"records": members})
}

func (h *recordsHandler) writeLoadError(w http.ResponseWriter, err error) {
	switch errors.Classify(err) {
	case errors.ErrorInvalid:
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.ErrorTransient:
		h.logger.Warn("Source unavailable", "error", err)
		h.writeJSONError(w, "Source unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("Load failed", "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *recordsHandler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *recordsHandler) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err, "message", message)
	}
}
