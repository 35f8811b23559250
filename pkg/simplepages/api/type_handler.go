package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// TypeHandler handles HTTP requests for the page type lifecycle
type TypeHandler struct {
	service simplepages.Service
}

// NewTypeHandler creates a new type lifecycle handler
func NewTypeHandler(service simplepages.Service) *TypeHandler {
	return &TypeHandler{service: service}
}

// Routes returns the routes for page types
func (h *TypeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTypes)
	r.Post("/{name}/install", h.InstallType)
	r.Delete("/{name}", h.UninstallType)

	return r
}

// ListTypes returns all registered type descriptors
func (h *TypeHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Registry().List())
}

// InstallType installs a registered type for a site
func (h *TypeHandler) InstallType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	siteID, err := uuid.Parse(r.URL.Query().Get("site_id"))
	if err != nil {
		http.Error(w, "Invalid site ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Install(r.Context(), name, siteID); err != nil {
		switch {
		case errors.Is(err, simplepages.ErrTypeNotRegistered):
			http.Error(w, "unknown page type", http.StatusNotFound)
		case errors.Is(err, simplepages.ErrConstraintViolation):
			http.Error(w, "type already installed", http.StatusConflict)
		default:
			slog.Error("Failed to install type", "type", name, "site", siteID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"type": name, "site_id": siteID.String(), "status": "installed"})
}

// UninstallType uninstalls a type for a site; drop_schema=true also removes
// the type's record store
func (h *TypeHandler) UninstallType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	siteID, err := uuid.Parse(r.URL.Query().Get("site_id"))
	if err != nil {
		http.Error(w, "Invalid site ID", http.StatusBadRequest)
		return
	}
	dropSchema := r.URL.Query().Get("drop_schema") == "true"

	if err := h.service.Uninstall(r.Context(), name, siteID, dropSchema); err != nil {
		if errors.Is(err, simplepages.ErrTypeNotRegistered) {
			http.Error(w, "unknown page type", http.StatusNotFound)
			return
		}
		slog.Error("Failed to uninstall type", "type", name, "site", siteID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, map[string]string{"type": name, "site_id": siteID.String(), "status": "uninstalled"})
}
