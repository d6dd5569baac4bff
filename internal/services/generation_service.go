package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/platform/cache"
	"github.com/bejimenez/magus/internal/repositories"
	"github.com/bejimenez/magus/internal/synthesis"
)

var (
	// ErrGenerationInvalidInput indicates the request parameters failed validation.
	ErrGenerationInvalidInput = errors.New("generation: invalid input")
	// ErrGenerationUnknownCulture indicates no template exists for the requested culture.
	ErrGenerationUnknownCulture = errors.New("generation: unknown culture")
	// ErrGenerationUnavailable indicates a dependency needed for the request is not configured or down.
	ErrGenerationUnavailable = errors.New("generation: unavailable")
)

const (
	defaultGenerateCount     = 1
	defaultMaxGenerateCount  = 20
	defaultMinScore          = 0.6
	defaultGenerationTTL     = time.Hour
	attemptsPerName          = 10
	defaultHistoryLimit      = 20
	maxHistoryLimit          = 200
	maxValidatedNameLength   = 64
	generationEventCompleted = "generation.completed"
	generationEventPersist   = "generation.history_failed"
)

var generationTracer = otel.Tracer("github.com/bejimenez/magus/internal/services")

// NameCache is the result cache consulted before synthesis.
type NameCache interface {
	Get(ctx context.Context, key string) ([]GeneratedName, bool)
	Set(ctx context.Context, key string, value []GeneratedName, ttl time.Duration)
	InvalidatePrefix(ctx context.Context, prefix string) int
}

// GenerationServiceDeps wires collaborators for name generation.
type GenerationServiceDeps struct {
	Catalog     CultureCatalog
	Cache       NameCache
	Keys        cache.KeyBuilder
	Recorder    NameRecorder
	History     repositories.GeneratedNameRepository
	Rand        synthesis.Rand
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	CacheTTL    time.Duration
	MaxAttempts int
	MaxCount    int
}

type generationService struct {
	catalog     CultureCatalog
	cache       NameCache
	keys        cache.KeyBuilder
	recorder    NameRecorder
	history     repositories.GeneratedNameRepository
	rng         synthesis.Rand
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	ttl         time.Duration
	maxAttempts int
	maxCount    int
}

var _ GenerationService = (*generationService)(nil)

// NewGenerationService constructs the generation orchestrator.
func NewGenerationService(deps GenerationServiceDeps) (GenerationService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("generation service: culture catalog is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	nameCache := deps.Cache
	if nameCache == nil {
		nameCache = cache.NewTier[[]GeneratedName](nil, cache.WithTierEnabled(false))
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = discardRecorder{}
	}
	rng := deps.Rand
	if rng == nil {
		rng = synthesis.NewRand()
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultGenerationTTL
	}
	maxCount := deps.MaxCount
	if maxCount <= 0 {
		maxCount = defaultMaxGenerateCount
	}
	keys := deps.Keys
	if keys == (cache.KeyBuilder{}) {
		keys = cache.NewKeyBuilder("", 0)
	}

	return &generationService{
		catalog:  deps.Catalog,
		cache:    nameCache,
		keys:     keys,
		recorder: recorder,
		history:  deps.History,
		rng:      rng,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		logger:      logger,
		ttl:         ttl,
		maxAttempts: deps.MaxAttempts,
		maxCount:    maxCount,
	}, nil
}

func (s *generationService) GenerateNames(ctx context.Context, cmd GenerateNamesCommand) (GenerateNamesResult, error) {
	start := s.now()
	engine := s.catalog.Engine()

	params, err := s.normalizeGenerate(engine, cmd)
	if err != nil {
		return GenerateNamesResult{}, err
	}

	ctx, span := generationTracer.Start(ctx, "generation.GenerateNames")
	defer span.End()
	span.SetAttributes(
		attribute.String("culture", params.Culture),
		attribute.String("gender", string(params.Gender)),
		attribute.Int("count", params.Count),
	)

	key := s.keys.Build(params.Culture, cacheParams(params))
	cached, hit := s.cache.Get(ctx, key)

	var names []GeneratedName
	cacheHit := hit && len(cached) >= params.Count
	if cacheHit {
		names = cloneNames(cached[:params.Count])
	} else {
		fresh, err := s.synthesize(ctx, engine, params, cached)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logRequest(ctx, cmd.RequestID, params, 0, false, false, start)
			return GenerateNamesResult{}, err
		}
		names = append(cloneNames(cached), fresh...)
		for _, name := range fresh {
			s.recorder.Record(ctx, domain.NameRecord{
				Name:       name.Name,
				Culture:    name.Culture,
				Gender:     name.Gender,
				Syllables:  append([]string(nil), name.Syllables...),
				Score:      name.Score,
				Parameters: params,
				CreatedAt:  s.now(),
			})
		}
		if len(fresh) > 0 {
			s.cache.Set(ctx, key, names, s.ttl)
		}
	}

	if params.IncludePronunciation {
		for i := range names {
			names[i].Pronunciation = synthesis.Pronounce(names[i].Name)
		}
	}

	elapsed := s.now().Sub(start)
	span.SetAttributes(attribute.Int("returned", len(names)), attribute.Bool("cache_hit", cacheHit))
	s.logRequest(ctx, cmd.RequestID, params, len(names), cacheHit, true, start)
	s.logger(ctx, generationEventCompleted, map[string]any{
		"culture":  params.Culture,
		"count":    params.Count,
		"returned": len(names),
		"cacheHit": cacheHit,
		"elapsed":  elapsed.String(),
	})

	return GenerateNamesResult{
		Names:          names,
		GenerationTime: elapsed,
		Parameters:     params,
		CacheHit:       cacheHit,
	}, nil
}

// synthesize draws up to count*10 candidates until the cached and new names together reach
// the requested count. Names already present in existing are skipped.
func (s *generationService) synthesize(ctx context.Context, engine *synthesis.Engine, params domain.GenerationParameters, existing []GeneratedName) ([]GeneratedName, error) {
	seen := make(map[string]struct{}, len(existing)+params.Count)
	for _, name := range existing {
		seen[name.Name] = struct{}{}
	}
	need := params.Count - len(existing)
	fresh := make([]GeneratedName, 0, max(need, 0))

	budget := params.Count * attemptsPerName
	for i := 0; i < budget && len(fresh) < need; i++ {
		if ctx.Err() != nil {
			break
		}
		candidate, err := engine.Generate(ctx, synthesis.Params{
			Culture:     params.Culture,
			Gender:      params.Gender,
			Length:      params.Length,
			MaxAttempts: s.maxAttempts,
		})
		if err != nil {
			if errors.Is(err, synthesis.ErrUnknownCulture) {
				return nil, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, params.Culture)
			}
			return nil, err
		}
		if candidate.Score < params.MinScore {
			continue
		}
		if _, dup := seen[candidate.Name]; dup {
			continue
		}
		seen[candidate.Name] = struct{}{}
		fresh = append(fresh, GeneratedName{
			Name:      candidate.Name,
			Syllables: candidate.Syllables,
			Score:     roundScore(candidate.Score),
			Culture:   params.Culture,
			Gender:    params.Gender,
			Fallback:  candidate.Fallback,
		})
	}
	return fresh, nil
}

func (s *generationService) RandomName(ctx context.Context, cmd RandomNameCommand) (GeneratedName, error) {
	start := s.now()
	engine := s.catalog.Engine()

	code := normalizeCultureCode(cmd.Culture)
	if code == "" {
		codes := engine.Registry().Codes()
		if len(codes) == 0 {
			return GeneratedName{}, fmt.Errorf("%w: no cultures loaded", ErrGenerationUnavailable)
		}
		code = codes[s.rng.IntN(len(codes))]
	}
	if _, ok := engine.Registry().Get(code); !ok {
		return GeneratedName{}, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
	}
	gender, ok := domain.ParseGender(cmd.Gender)
	if !ok {
		return GeneratedName{}, fmt.Errorf("%w: gender must be masculine, feminine or neutral", ErrGenerationInvalidInput)
	}

	candidate, err := engine.Generate(ctx, synthesis.Params{
		Culture:     code,
		Gender:      gender,
		MaxAttempts: s.maxAttempts,
	})
	if err != nil {
		if errors.Is(err, synthesis.ErrUnknownCulture) {
			return GeneratedName{}, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
		}
		return GeneratedName{}, err
	}

	params := domain.GenerationParameters{
		Culture:              code,
		Gender:               gender,
		Count:                1,
		IncludePronunciation: true,
	}
	name := GeneratedName{
		Name:          candidate.Name,
		Syllables:     candidate.Syllables,
		Score:         roundScore(candidate.Score),
		Culture:       code,
		Gender:        gender,
		Pronunciation: synthesis.Pronounce(candidate.Name),
		Fallback:      candidate.Fallback,
	}
	s.recorder.Record(ctx, domain.NameRecord{
		Name:       name.Name,
		Culture:    code,
		Gender:     gender,
		Syllables:  append([]string(nil), name.Syllables...),
		Score:      name.Score,
		Parameters: params,
		CreatedAt:  s.now(),
	})
	s.logRequest(ctx, cmd.RequestID, params, 1, false, true, start)
	return name, nil
}

func (s *generationService) ValidateName(ctx context.Context, cmd ValidateNameCommand) (NameValidation, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return NameValidation{}, fmt.Errorf("%w: name is required", ErrGenerationInvalidInput)
	}
	if len([]rune(name)) > maxValidatedNameLength {
		return NameValidation{}, fmt.Errorf("%w: name must be at most %d characters", ErrGenerationInvalidInput, maxValidatedNameLength)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != ' ' {
			return NameValidation{}, fmt.Errorf("%w: name may only contain letters, spaces, hyphens and apostrophes", ErrGenerationInvalidInput)
		}
	}

	engine := s.catalog.Engine()
	code := normalizeCultureCode(cmd.Culture)
	if code != "" {
		if _, ok := engine.Registry().Get(code); !ok {
			return NameValidation{}, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
		}
	}

	report := synthesis.Evaluate(name, code)
	deductions := make([]synthesis.Deduction, len(report.Deductions))
	for i, d := range report.Deductions {
		deductions[i] = synthesis.Deduction{Rule: d.Rule, Amount: roundScore(d.Amount)}
	}
	return NameValidation{
		Name:          name,
		Culture:       code,
		Score:         roundScore(report.Score),
		Acceptable:    report.Score >= engine.Threshold(),
		Pronunciation: synthesis.Pronounce(name),
		Syllables:     synthesis.Segment(name),
		VowelRatio:    roundScore(report.VowelRatio),
		LongestRun:    report.LongestRun,
		Deductions:    deductions,
	}, nil
}

func (s *generationService) ListCultures(context.Context) []CultureInfo {
	return s.catalog.Cultures()
}

func (s *generationService) NameHistory(ctx context.Context, query NameHistoryQuery) ([]StoredName, error) {
	code := normalizeCultureCode(query.Culture)
	if code == "" {
		return nil, fmt.Errorf("%w: culture is required", ErrGenerationInvalidInput)
	}
	if _, ok := s.catalog.Engine().Registry().Get(code); !ok {
		return nil, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
	}
	limit := query.Limit
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: limit must be positive", ErrGenerationInvalidInput)
	case limit == 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	if s.history == nil {
		return nil, fmt.Errorf("%w: name history is not configured", ErrGenerationUnavailable)
	}

	names, err := s.history.ListByCulture(ctx, code, limit)
	if err != nil {
		s.logger(ctx, generationEventPersist, map[string]any{"culture": code, "error": err.Error()})
		if repositories.IsUnavailable(err) {
			return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
		}
		return nil, err
	}
	return names, nil
}

func (s *generationService) InvalidateCulture(ctx context.Context, code string) (int, error) {
	code = normalizeCultureCode(code)
	if code == "" {
		return 0, fmt.Errorf("%w: culture is required", ErrGenerationInvalidInput)
	}
	return s.cache.InvalidatePrefix(ctx, s.keys.Prefix(code)), nil
}

func (s *generationService) normalizeGenerate(engine *synthesis.Engine, cmd GenerateNamesCommand) (domain.GenerationParameters, error) {
	code := normalizeCultureCode(cmd.Culture)
	if code == "" {
		return domain.GenerationParameters{}, fmt.Errorf("%w: culture is required", ErrGenerationInvalidInput)
	}
	if _, ok := engine.Registry().Get(code); !ok {
		return domain.GenerationParameters{}, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
	}

	gender, ok := domain.ParseGender(cmd.Gender)
	if !ok {
		return domain.GenerationParameters{}, fmt.Errorf("%w: gender must be masculine, feminine or neutral", ErrGenerationInvalidInput)
	}
	length, ok := domain.ParseLengthClass(cmd.Length)
	if !ok {
		return domain.GenerationParameters{}, fmt.Errorf("%w: length must be short, medium or long", ErrGenerationInvalidInput)
	}

	count := cmd.Count
	if count == 0 {
		count = defaultGenerateCount
	}
	if count < 1 || count > s.maxCount {
		return domain.GenerationParameters{}, fmt.Errorf("%w: count must be between 1 and %d", ErrGenerationInvalidInput, s.maxCount)
	}

	minScore := defaultMinScore
	if cmd.MinScore != nil {
		minScore = *cmd.MinScore
	}
	if math.IsNaN(minScore) || minScore < 0 || minScore > 1 {
		return domain.GenerationParameters{}, fmt.Errorf("%w: minScore must be between 0 and 1", ErrGenerationInvalidInput)
	}

	include := true
	if cmd.IncludePronunciation != nil {
		include = *cmd.IncludePronunciation
	}

	return domain.GenerationParameters{
		Culture:              code,
		Gender:               gender,
		Count:                count,
		Length:               length,
		MinScore:             minScore,
		IncludePronunciation: include,
	}, nil
}

func (s *generationService) logRequest(ctx context.Context, requestID string, params domain.GenerationParameters, returned int, cacheHit, success bool, start time.Time) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = s.newID()
	}
	now := s.now()
	s.recorder.LogRequest(ctx, domain.RequestLog{
		RequestID:      requestID,
		Culture:        params.Culture,
		Gender:         params.Gender,
		Count:          params.Count,
		Returned:       returned,
		MinScore:       params.MinScore,
		ResponseTimeMs: float64(now.Sub(start).Microseconds()) / 1000,
		CacheHit:       cacheHit,
		Success:        success,
		CreatedAt:      now,
	})
}

// cacheParams lists the inputs that identify a cached result. Pronunciation is applied after
// the cache and stays out of the key.
func cacheParams(params domain.GenerationParameters) map[string]string {
	return map[string]string{
		"count":     strconv.Itoa(params.Count),
		"gender":    string(params.Gender),
		"length":    string(params.Length),
		"min_score": strconv.FormatFloat(params.MinScore, 'f', -1, 64),
	}
}

func cloneNames(names []GeneratedName) []GeneratedName {
	if len(names) == 0 {
		return nil
	}
	out := make([]GeneratedName, len(names))
	for i, name := range names {
		name.Syllables = append([]string(nil), name.Syllables...)
		name.Pronunciation = ""
		out[i] = name
	}
	return out
}

func roundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, domain.NameRecord)     {}
func (discardRecorder) LogRequest(context.Context, domain.RequestLog) {}
