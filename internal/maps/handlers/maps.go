package handlers

import (
	"log/slog"
	"net/http"

	"ipg-server/internal/maps"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type MapHandler struct {
	maps *maps.FileSystem
}

func NewMapHandler(manager *maps.FileSystem) *MapHandler {
	return &MapHandler{maps: manager}
}

func (h *MapHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "list_maps")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	response.Success(w, http.StatusOK, h.maps.Summaries())
}

func (h *MapHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_map")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id := r.PathValue("id")
	m, ok := h.maps.MapByID(id)
	if !ok {
		response.Error(w, r, logger, errors.NotFoundf("map %q not found", id))
		return
	}

	response.Success(w, http.StatusOK, m)
}

func (h *MapHandler) Schema(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "map_schema")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	response.Success(w, http.StatusOK, maps.Schema())
}
