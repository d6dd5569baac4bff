package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/platform/httpx"
	"github.com/bejimenez/magus/internal/platform/observability"
	"github.com/bejimenez/magus/internal/services"
	"github.com/bejimenez/magus/internal/synthesis"
)

const maxGenerateRequestBody = 4 * 1024

// NameHandlers exposes the name generation endpoints.
type NameHandlers struct {
	names services.GenerationService
}

// NewNameHandlers constructs the name handler set.
func NewNameHandlers(svc services.GenerationService) *NameHandlers {
	return &NameHandlers{names: svc}
}

// Routes registers the name endpoints beneath /names.
func (h *NameHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/names:generate", h.generate)
	r.Get("/names/cultures", h.cultures)
	r.Get("/names/random", h.random)
	r.Get("/names/history", h.history)
	r.Get("/names/validate/{name}", h.validate)
}

type generateNamesRequest struct {
	Culture              string   `json:"culture"`
	Gender               string   `json:"gender"`
	Count                *int     `json:"count"`
	Length               string   `json:"length"`
	MinScore             *float64 `json:"minScore"`
	IncludePronunciation *bool    `json:"includePronunciation"`
}

type generationParametersPayload struct {
	Culture              string  `json:"culture"`
	Gender               string  `json:"gender,omitempty"`
	Count                int     `json:"count"`
	Length               string  `json:"length,omitempty"`
	MinScore             float64 `json:"minScore"`
	IncludePronunciation bool    `json:"includePronunciation"`
}

type generateNamesResponse struct {
	Names            []domain.GeneratedName      `json:"names"`
	GenerationTimeMs float64                     `json:"generationTimeMs"`
	Parameters       generationParametersPayload `json:"parameters"`
	CacheHit         bool                        `json:"cacheHit"`
}

type culturePayload struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	TypicalLength string   `json:"typicalLength,omitempty"`
	CommonSounds  []string `json:"commonSounds"`
	ExampleNames  []string `json:"exampleNames"`
}

type culturesResponse struct {
	Cultures []culturePayload `json:"cultures"`
}

type validateNameResponse struct {
	Name          string                `json:"name"`
	Culture       string                `json:"culture,omitempty"`
	Score         float64               `json:"score"`
	Acceptable    bool                  `json:"acceptable"`
	Pronunciation string                `json:"pronunciation"`
	Syllables     []string              `json:"syllables"`
	VowelRatio    float64               `json:"vowelRatio"`
	LongestRun    int                   `json:"longestConsonantRun"`
	Deductions    []synthesis.Deduction `json:"deductions"`
}

type storedNamePayload struct {
	Name       string   `json:"name"`
	Culture    string   `json:"culture"`
	Gender     string   `json:"gender,omitempty"`
	Syllables  []string `json:"syllables"`
	Score      float64  `json:"score"`
	UsageCount int64    `json:"usageCount"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

type historyResponse struct {
	Culture string              `json:"culture"`
	Names   []storedNamePayload `json:"names"`
}

func (h *NameHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.names == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req generateNamesRequest
	if err := httpx.DecodeJSON(r, &req, maxGenerateRequestBody); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.GenerateNamesCommand{
		RequestID:            middleware.GetReqID(ctx),
		Culture:              req.Culture,
		Gender:               req.Gender,
		Length:               req.Length,
		MinScore:             req.MinScore,
		IncludePronunciation: req.IncludePronunciation,
	}
	if req.Count != nil {
		if *req.Count < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "count must be at least 1", http.StatusBadRequest))
			return
		}
		cmd.Count = *req.Count
	}

	result, err := h.names.GenerateNames(ctx, cmd)
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	names := result.Names
	if names == nil {
		names = []domain.GeneratedName{}
	}
	writeJSONResponse(w, http.StatusOK, generateNamesResponse{
		Names:            names,
		GenerationTimeMs: float64(result.GenerationTime.Microseconds()) / 1000,
		Parameters: generationParametersPayload{
			Culture:              result.Parameters.Culture,
			Gender:               string(result.Parameters.Gender),
			Count:                result.Parameters.Count,
			Length:               string(result.Parameters.Length),
			MinScore:             result.Parameters.MinScore,
			IncludePronunciation: result.Parameters.IncludePronunciation,
		},
		CacheHit: result.CacheHit,
	})
}

func (h *NameHandlers) cultures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.names == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	infos := h.names.ListCultures(ctx)
	payload := culturesResponse{Cultures: make([]culturePayload, 0, len(infos))}
	for _, info := range infos {
		payload.Cultures = append(payload.Cultures, culturePayload{
			Code:          info.Code,
			Name:          info.Name,
			Description:   info.Description,
			TypicalLength: info.TypicalLength,
			CommonSounds:  nonNilStrings(info.CommonSounds),
			ExampleNames:  nonNilStrings(info.ExampleNames),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *NameHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.names == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	result, err := h.names.ValidateName(ctx, services.ValidateNameCommand{
		Name:    chi.URLParam(r, "name"),
		Culture: r.URL.Query().Get("culture"),
	})
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	deductions := result.Deductions
	if deductions == nil {
		deductions = []synthesis.Deduction{}
	}
	writeJSONResponse(w, http.StatusOK, validateNameResponse{
		Name:          result.Name,
		Culture:       result.Culture,
		Score:         result.Score,
		Acceptable:    result.Acceptable,
		Pronunciation: result.Pronunciation,
		Syllables:     nonNilStrings(result.Syllables),
		VowelRatio:    result.VowelRatio,
		LongestRun:    result.LongestRun,
		Deductions:    deductions,
	})
}

func (h *NameHandlers) random(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.names == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	name, err := h.names.RandomName(ctx, services.RandomNameCommand{
		RequestID: middleware.GetReqID(ctx),
		Culture:   query.Get("culture"),
		Gender:    query.Get("gender"),
	})
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, name)
}

func (h *NameHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.names == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	stored, err := h.names.NameHistory(ctx, services.NameHistoryQuery{
		Culture: query.Get("culture"),
		Limit:   limit,
	})
	if err != nil {
		writeGenerationError(ctx, w, err)
		return
	}

	payload := historyResponse{
		Culture: strings.ToLower(strings.TrimSpace(query.Get("culture"))),
		Names:   make([]storedNamePayload, 0, len(stored)),
	}
	for _, item := range stored {
		entry := storedNamePayload{
			Name:       item.Name,
			Culture:    item.Culture,
			Gender:     string(item.Gender),
			Syllables:  nonNilStrings(item.Syllables),
			Score:      item.Score,
			UsageCount: item.UsageCount,
		}
		if !item.CreatedAt.IsZero() {
			entry.CreatedAt = formatTime(item.CreatedAt)
		}
		if !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(item.UpdatedAt)
		}
		payload.Names = append(payload.Names, entry)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeGenerationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrGenerationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGenerationUnknownCulture):
		httpx.WriteError(ctx, w, httpx.NewError("culture_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCultureReloadFailed):
		observability.FromContext(ctx).Error("culture reload failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("reload_failed", "culture templates could not be reloaded", http.StatusInternalServerError))
	case errors.Is(err, services.ErrGenerationUnavailable):
		writeServiceUnavailable(ctx, w)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "generation did not finish in time", http.StatusServiceUnavailable))
	default:
		observability.FromContext(ctx).Error("name generation failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("generation_error", "failed to generate names", http.StatusInternalServerError))
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "name service temporarily unavailable", http.StatusServiceUnavailable))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
