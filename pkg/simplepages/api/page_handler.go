package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// PageHandler handles HTTP requests for page resolution and creation using
// pkg/simplepages
type PageHandler struct {
	service simplepages.Service
}

// NewPageHandler creates a new page handler
func NewPageHandler(service simplepages.Service) *PageHandler {
	return &PageHandler{service: service}
}

// Routes returns the routes for pages
func (h *PageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/resolve", h.ResolvePage)
	r.Get("/{id}", h.GetPage)
	r.Post("/", h.CreatePage)

	return r
}

// PageResponse is the response body for a resolved page. Members holds the
// union view the composition proxy exposes: envelope members plus the typed
// record's declared fields.
type PageResponse struct {
	ID        string                 `json:"id"`
	URL       string                 `json:"url"`
	Type      string                 `json:"type"`
	SiteID    string                 `json:"site_id"`
	Members   map[string]interface{} `json:"members"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CreatePageRequest is the request body for creating a page
type CreatePageRequest struct {
	Type   string                 `json:"type"`
	URL    string                 `json:"url"`
	SiteID string                 `json:"site_id"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// ResolvePage resolves a page by its external lookup key
func (h *PageHandler) ResolvePage(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url query parameter is required", http.StatusBadRequest)
		return
	}

	proxy, err := h.service.ResolveByURL(r.Context(), url)
	if err != nil {
		if errors.Is(err, simplepages.ErrPageNotFound) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to resolve page", "url", url, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := h.pageResponse(r, proxy)
	if err != nil {
		slog.Error("Failed to build page response", "url", url, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, resp)
}

// GetPage resolves a page by its identifier
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid page ID", http.StatusBadRequest)
		return
	}

	proxy, err := h.service.ResolveByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, simplepages.ErrPageNotFound) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to resolve page", "page_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := h.pageResponse(r, proxy)
	if err != nil {
		slog.Error("Failed to build page response", "page_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, resp)
}

// CreatePage creates a new envelope/record pair through an unbound proxy
func (h *PageHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		http.Error(w, "Invalid site ID", http.StatusBadRequest)
		return
	}

	proxy, err := h.service.NewPage(req.Type)
	if err != nil {
		if errors.Is(err, simplepages.ErrTypeNotRegistered) {
			http.Error(w, "unknown page type", http.StatusBadRequest)
			return
		}
		slog.Error("Failed to create page proxy", "type", req.Type, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	desc, err := h.service.Registry().Get(req.Type)
	if err != nil {
		http.Error(w, "unknown page type", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := proxy.Set(ctx, simplepages.MemberURL, req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := proxy.Set(ctx, simplepages.MemberSiteID, siteID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for member, value := range req.Fields {
		if err := proxy.Set(ctx, member, coerceJSONValue(desc, member, value)); err != nil {
			if errors.Is(err, simplepages.ErrUnknownMember) || errors.Is(err, simplepages.ErrInvalidFieldValue) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			slog.Error("Failed to set page member", "member", member, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := proxy.Save(ctx); err != nil {
		if errors.Is(err, simplepages.ErrConstraintViolation) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		slog.Error("Failed to save page", "url", req.URL, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := h.pageResponse(r, proxy)
	if err != nil {
		slog.Error("Failed to build page response", "url", req.URL, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// coerceJSONValue maps JSON-decoded numbers onto the kind the field declares.
// encoding/json decodes every number as float64; integer fields take the value
// back as int64 when it is whole.
func coerceJSONValue(desc *simplepages.TypeDescriptor, member string, value interface{}) interface{} {
	def, ok := desc.Field(member)
	if !ok {
		return value
	}
	if def.Kind == simplepages.FieldKindInt {
		if f, isFloat := value.(float64); isFloat && f == float64(int64(f)) {
			return int64(f)
		}
	}
	return value
}

func (h *PageHandler) pageResponse(r *http.Request, proxy *simplepages.Proxy) (*PageResponse, error) {
	page := proxy.Page()
	record, err := proxy.Record(r.Context())
	if err != nil {
		return nil, err
	}

	members := make(map[string]interface{}, len(record.Fields))
	for _, name := range record.FieldNames() {
		v, err := proxy.Get(r.Context(), name)
		if err != nil {
			return nil, err
		}
		members[name] = v
	}

	return &PageResponse{
		ID:        page.ID.String(),
		URL:       page.URL,
		Type:      page.TypeName,
		SiteID:    page.SiteID.String(),
		Members:   members,
		CreatedAt: page.CreatedAt,
		UpdatedAt: page.UpdatedAt,
	}, nil
}
