package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// IndexLookup reads cached page indexes without counting as a crawl lookup.
// Reload refreshes the view from durable storage.
type IndexLookup interface {
	Lookup(coord archive.Coordinate) (archive.PageIndex, bool)
	Reload(ctx context.Context) error
}

// PagesHandler exposes read-only page index endpoints.
type PagesHandler struct {
	lookup IndexLookup
	logger *zap.Logger
}

// NewPagesHandler wires the index lookup and logger.
func NewPagesHandler(lookup IndexLookup, logger *zap.Logger) *PagesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PagesHandler{lookup: lookup, logger: logger}
}

type pageDTO struct {
	Collection string   `json:"collection"`
	Thread     string   `json:"thread"`
	Page       int      `json:"page"`
	FirstSlot  int      `json:"first_slot"`
	LastSlot   int      `json:"last_slot"`
	Complete   bool     `json:"complete"`
	MessageIDs []string `json:"message_ids"`
}

// GetPage handles GET /v1/pages/{collection}/{thread}/{page}. It returns the
// cached index on success, including partial pages flagged complete=false,
// 400 for a malformed coordinate, 404 when nothing is cached, or 503 when the
// index is not wired. The index is reloaded from durable storage on every
// request so pages saved by a concurrent crawl are visible; if the reload
// fails the last good view is served.
func (h *PagesHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	if h.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "page index unavailable")
		return
	}
	coord, err := parseCoordinate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.lookup.Reload(r.Context()); err != nil {
		h.logger.Warn("page index reload failed; serving last loaded view", zap.Error(err))
	}
	index, ok := h.lookup.Lookup(coord)
	if !ok {
		writeError(w, http.StatusNotFound, "page not cached")
		return
	}
	h.logger.Debug("served page index", zap.Stringer("coordinate", coord), zap.Int("messages", len(index)))
	writeJSON(w, http.StatusOK, map[string]any{"page": toPageDTO(coord, index)})
}

func parseCoordinate(r *http.Request) (archive.Coordinate, error) {
	raw := chi.URLParam(r, "page")
	page, err := strconv.Atoi(raw)
	if err != nil {
		return archive.Coordinate{}, errors.New("page must be an integer")
	}
	coord := archive.Coordinate{
		Collection: chi.URLParam(r, "collection"),
		Thread:     chi.URLParam(r, "thread"),
		Page:       page,
	}
	if err := coord.Validate(); err != nil {
		return archive.Coordinate{}, fmt.Errorf("invalid coordinate: %w", err)
	}
	return coord, nil
}

func toPageDTO(coord archive.Coordinate, index archive.PageIndex) pageDTO {
	ids := make([]string, len(index))
	for i, id := range index {
		ids[i] = string(id)
	}
	return pageDTO{
		Collection: coord.Collection,
		Thread:     coord.Thread,
		Page:       coord.Page,
		FirstSlot:  coord.FirstSlot(),
		LastSlot:   coord.LastSlot(),
		Complete:   index.Complete(),
		MessageIDs: ids,
	}
}
