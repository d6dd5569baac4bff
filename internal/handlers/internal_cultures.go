package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bejimenez/magus/internal/services"
)

// InternalCultureHandlers exposes operator endpoints for template maintenance. Mount them behind
// request signing.
type InternalCultureHandlers struct {
	catalog services.CultureCatalog
}

// NewInternalCultureHandlers constructs the internal culture handler set.
func NewInternalCultureHandlers(catalog services.CultureCatalog) *InternalCultureHandlers {
	return &InternalCultureHandlers{catalog: catalog}
}

// Routes registers the reload endpoints beneath the internal group.
func (h *InternalCultureHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/cultures:reload", h.reload)
	r.Post("/cultures/{code}:reload", h.reload)
}

type cultureReloadResponse struct {
	Cultures    []string `json:"cultures"`
	Invalidated int      `json:"invalidated"`
	ReloadedAt  string   `json:"reloadedAt"`
}

func (h *InternalCultureHandlers) reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	result, err := h.catalog.Reload(ctx, code)
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	cultures := result.Cultures
	if cultures == nil {
		cultures = []string{}
	}
	writeJSONResponse(w, http.StatusOK, cultureReloadResponse{
		Cultures:    cultures,
		Invalidated: result.Invalidated,
		ReloadedAt:  formatTime(result.ReloadedAt),
	})
}
