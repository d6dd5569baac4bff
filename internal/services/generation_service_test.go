package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/platform/cache"
	"github.com/bejimenez/magus/internal/repositories/memory"
	"github.com/bejimenez/magus/internal/synthesis"
)

type recordingRecorder struct {
	mu      sync.Mutex
	records []domain.NameRecord
	logs    []domain.RequestLog
}

func (r *recordingRecorder) Record(_ context.Context, record domain.NameRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingRecorder) LogRequest(_ context.Context, entry domain.RequestLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

func embeddedRegistry(t *testing.T) *culture.Registry {
	t.Helper()
	reg, err := culture.NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("load embedded templates: %v", err)
	}
	return reg
}

// harshTemplate only produces names ending in "h", which caps every score at 0.8.
func harshTemplate() domain.CultureTemplate {
	return domain.CultureTemplate{
		Code: "harsh",
		Name: "Harsh",
		Phonemes: domain.PhonemeSet{
			Consonants: []rune("bdt"),
			Vowels:     []rune("ao"),
		},
		Patterns: domain.PatternTable{
			Initial: []domain.PatternWeight{{Pattern: "CV", Weight: 1}},
			Medial:  []domain.PatternWeight{{Pattern: "CV", Weight: 1}},
			Final:   []domain.PatternWeight{{Pattern: "Vh", Weight: 1}},
		},
		Length: domain.LengthPolicy{MinLength: 2, MaxLength: 12},
	}
}

type generationFixture struct {
	svc      GenerationService
	catalog  CultureCatalog
	recorder *recordingRecorder
	history  *memory.NameRepository
	tier     *cache.Tier[[]GeneratedName]
}

func newGenerationFixture(t *testing.T, reg *culture.Registry) generationFixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	keys := cache.NewKeyBuilder("names", 128)
	tier := cache.NewTier[[]GeneratedName]([]cache.Store{cache.NewMemoryStore(100)})

	catalog, err := NewCultureCatalog(CultureCatalogDeps{
		Registry:      reg,
		EngineOptions: []synthesis.EngineOption{synthesis.WithRand(synthesis.NewSeededRand(11))},
		Cache:         tier,
		Keys:          keys,
	})
	if err != nil {
		t.Fatalf("NewCultureCatalog: %v", err)
	}

	recorder := &recordingRecorder{}
	history := memory.NewNameRepository(func() time.Time { return now })
	svc, err := NewGenerationService(GenerationServiceDeps{
		Catalog:     catalog,
		Cache:       tier,
		Keys:        keys,
		Recorder:    recorder,
		History:     history,
		Rand:        synthesis.NewSeededRand(3),
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "req-generated" },
	})
	if err != nil {
		t.Fatalf("NewGenerationService: %v", err)
	}
	return generationFixture{svc: svc, catalog: catalog, recorder: recorder, history: history, tier: tier}
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestGenerateNamesReturnsUniqueNames(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	result, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{
		RequestID: "req-1",
		Culture:   "Elvish",
		Count:     5,
		MinScore:  floatPtr(0),
	})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if len(result.Names) != 5 {
		t.Fatalf("expected 5 names, got %d", len(result.Names))
	}
	seen := map[string]bool{}
	for _, name := range result.Names {
		if seen[name.Name] {
			t.Fatalf("duplicate name %s in %v", name.Name, result.Names)
		}
		seen[name.Name] = true
		if name.Culture != "elvish" {
			t.Fatalf("expected culture elvish, got %s", name.Culture)
		}
		if name.Pronunciation == "" {
			t.Fatalf("expected pronunciation for %s", name.Name)
		}
		if name.Score < 0 || name.Score > 1 {
			t.Fatalf("score out of range: %v", name.Score)
		}
	}
	if result.CacheHit {
		t.Fatalf("first request must not be a cache hit")
	}
	if result.Parameters.Culture != "elvish" || result.Parameters.Count != 5 {
		t.Fatalf("unexpected parameters %+v", result.Parameters)
	}
	if len(fx.recorder.records) != 5 {
		t.Fatalf("expected 5 recorded names, got %d", len(fx.recorder.records))
	}
	if len(fx.recorder.logs) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(fx.recorder.logs))
	}
	entry := fx.recorder.logs[0]
	if entry.RequestID != "req-1" || !entry.Success || entry.Returned != 5 || entry.Count != 5 {
		t.Fatalf("unexpected request log %+v", entry)
	}
}

func TestGenerateNamesDefaults(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	result, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{Culture: "human"})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	params := result.Parameters
	if params.Count != 1 || params.MinScore != 0.6 || !params.IncludePronunciation {
		t.Fatalf("unexpected defaults %+v", params)
	}
	if len(result.Names) > 1 {
		t.Fatalf("expected at most one name, got %d", len(result.Names))
	}
	for _, name := range result.Names {
		if name.Score < 0.6 {
			t.Fatalf("name %s below default min score: %v", name.Name, name.Score)
		}
	}
	if fx.recorder.logs[0].RequestID != "req-generated" {
		t.Fatalf("expected generated request id, got %s", fx.recorder.logs[0].RequestID)
	}
}

func TestGenerateNamesServesRepeatRequestsFromCache(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	cmd := GenerateNamesCommand{Culture: "dwarven", Gender: "masculine", Count: 3, MinScore: floatPtr(0)}

	first, err := fx.svc.GenerateNames(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first GenerateNames: %v", err)
	}
	second, err := fx.svc.GenerateNames(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second GenerateNames: %v", err)
	}
	if !second.CacheHit {
		t.Fatalf("expected cache hit on repeat request")
	}
	if len(second.Names) != len(first.Names) {
		t.Fatalf("expected %d cached names, got %d", len(first.Names), len(second.Names))
	}
	for i := range first.Names {
		if first.Names[i].Name != second.Names[i].Name {
			t.Fatalf("cached order differs at %d: %s vs %s", i, first.Names[i].Name, second.Names[i].Name)
		}
	}
	if len(fx.recorder.records) != len(first.Names) {
		t.Fatalf("cache hits must not record names again, got %d records", len(fx.recorder.records))
	}

	smaller, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{
		Culture: "dwarven", Gender: "masculine", Count: 2, MinScore: floatPtr(0),
	})
	if err != nil {
		t.Fatalf("smaller GenerateNames: %v", err)
	}
	if smaller.CacheHit {
		t.Fatalf("a different count must use its own cache entry")
	}
	if len(smaller.Names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(smaller.Names))
	}
}

func TestCacheParamsSeparateCounts(t *testing.T) {
	keys := cache.NewKeyBuilder("names", 128)
	base := domain.GenerationParameters{Culture: "elvish", MinScore: 0.6, IncludePronunciation: true}

	one, five := base, base
	one.Count = 1
	five.Count = 5
	if keys.Build("elvish", cacheParams(one)) == keys.Build("elvish", cacheParams(five)) {
		t.Fatalf("expected different counts to produce different keys")
	}

	bare := five
	bare.IncludePronunciation = false
	if keys.Build("elvish", cacheParams(five)) != keys.Build("elvish", cacheParams(bare)) {
		t.Fatalf("pronunciation must not change the key")
	}
}

func TestGenerateNamesTopsUpShortCacheEntry(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	cmd := GenerateNamesCommand{Culture: "elvish", Gender: "feminine", Count: 4, MinScore: floatPtr(0)}

	// a previous request for the same parameters came back short
	key := cache.NewKeyBuilder("names", 128).Build("elvish", cacheParams(domain.GenerationParameters{
		Culture: "elvish",
		Gender:  domain.GenderFeminine,
		Count:   4,
	}))
	short := []GeneratedName{
		{Name: "Aelis", Syllables: []string{"ae", "lis"}, Score: 1, Culture: "elvish", Gender: domain.GenderFeminine},
		{Name: "Lyra", Syllables: []string{"ly", "ra"}, Score: 1, Culture: "elvish", Gender: domain.GenderFeminine},
	}
	fx.tier.Set(context.Background(), key, short, time.Hour)

	topped, err := fx.svc.GenerateNames(context.Background(), cmd)
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if topped.CacheHit {
		t.Fatalf("a short cache entry is not a hit")
	}
	if len(topped.Names) != 4 {
		t.Fatalf("expected 4 names, got %d", len(topped.Names))
	}
	for i, name := range short {
		if topped.Names[i].Name != name.Name {
			t.Fatalf("expected cached names first, got %v", topped.Names)
		}
	}
	seen := map[string]bool{}
	for _, name := range topped.Names {
		if seen[name.Name] {
			t.Fatalf("duplicate %s across cache and fresh names", name.Name)
		}
		seen[name.Name] = true
	}
	if len(fx.recorder.records) != 2 {
		t.Fatalf("expected only new names recorded, got %d", len(fx.recorder.records))
	}

	again, err := fx.svc.GenerateNames(context.Background(), cmd)
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if !again.CacheHit {
		t.Fatalf("expected the topped up entry to be cached")
	}
}

func TestGenerateNamesUnreachableMinScoreReturnsShortList(t *testing.T) {
	reg, err := culture.NewRegistry(harshTemplate())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	fx := newGenerationFixture(t, reg)

	result, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{
		Culture:  "harsh",
		Count:    5,
		MinScore: floatPtr(0.99),
	})
	if err != nil {
		t.Fatalf("expected a short list rather than an error, got %v", err)
	}
	if len(result.Names) >= 5 {
		t.Fatalf("expected fewer than 5 names, got %d", len(result.Names))
	}
	if len(fx.recorder.logs) != 1 || !fx.recorder.logs[0].Success {
		t.Fatalf("short lists are successful requests: %+v", fx.recorder.logs)
	}
}

func TestGenerateNamesHonoursMinScore(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	result, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{
		Culture:  "elvish",
		Count:    5,
		MinScore: floatPtr(0.9),
	})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if len(result.Names) > 5 {
		t.Fatalf("expected at most 5 names, got %d", len(result.Names))
	}
	for _, name := range result.Names {
		if name.Score < 0.9 {
			t.Fatalf("name %s scored %v below minScore", name.Name, name.Score)
		}
	}
}

func TestGenerateNamesWithoutPronunciation(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	result, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{
		Culture:              "human",
		Count:                2,
		MinScore:             floatPtr(0),
		IncludePronunciation: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	for _, name := range result.Names {
		if name.Pronunciation != "" {
			t.Fatalf("unexpected pronunciation %q", name.Pronunciation)
		}
	}
}

func TestGenerateNamesValidation(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	tests := []struct {
		name string
		cmd  GenerateNamesCommand
		want error
	}{
		{name: "missing culture", cmd: GenerateNamesCommand{}, want: ErrGenerationInvalidInput},
		{name: "unknown culture", cmd: GenerateNamesCommand{Culture: "orcish"}, want: ErrGenerationUnknownCulture},
		{name: "count too large", cmd: GenerateNamesCommand{Culture: "elvish", Count: 21}, want: ErrGenerationInvalidInput},
		{name: "negative count", cmd: GenerateNamesCommand{Culture: "elvish", Count: -1}, want: ErrGenerationInvalidInput},
		{name: "bad gender", cmd: GenerateNamesCommand{Culture: "elvish", Gender: "other"}, want: ErrGenerationInvalidInput},
		{name: "bad length", cmd: GenerateNamesCommand{Culture: "elvish", Length: "epic"}, want: ErrGenerationInvalidInput},
		{name: "min score above one", cmd: GenerateNamesCommand{Culture: "elvish", MinScore: floatPtr(1.5)}, want: ErrGenerationInvalidInput},
		{name: "negative min score", cmd: GenerateNamesCommand{Culture: "elvish", MinScore: floatPtr(-0.1)}, want: ErrGenerationInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.GenerateNames(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(fx.recorder.logs) != 0 {
		t.Fatalf("rejected requests must not be logged, got %d", len(fx.recorder.logs))
	}
}

func TestGenerateNamesCancelledContextReturnsShortList(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fx.svc.GenerateNames(ctx, GenerateNamesCommand{Culture: "elvish", Count: 3})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if len(result.Names) != 0 {
		t.Fatalf("expected no names after cancellation, got %d", len(result.Names))
	}
}

func TestInvalidateCultureDropsCachedEntries(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	cmd := GenerateNamesCommand{Culture: "elvish", Count: 2, MinScore: floatPtr(0)}

	if _, err := fx.svc.GenerateNames(context.Background(), cmd); err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if _, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{Culture: "human", Count: 1, MinScore: floatPtr(0)}); err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}

	removed, err := fx.svc.InvalidateCulture(context.Background(), "ELVISH")
	if err != nil {
		t.Fatalf("InvalidateCulture: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 key removed, got %d", removed)
	}

	after, err := fx.svc.GenerateNames(context.Background(), cmd)
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if after.CacheHit {
		t.Fatalf("expected a miss after invalidation")
	}
	human, err := fx.svc.GenerateNames(context.Background(), GenerateNamesCommand{Culture: "human", Count: 1, MinScore: floatPtr(0)})
	if err != nil {
		t.Fatalf("GenerateNames: %v", err)
	}
	if !human.CacheHit {
		t.Fatalf("other cultures must stay cached")
	}

	if _, err := fx.svc.InvalidateCulture(context.Background(), " "); !errors.Is(err, ErrGenerationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRandomName(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	codes := fx.catalog.Engine().Registry().Codes()

	name, err := fx.svc.RandomName(context.Background(), RandomNameCommand{})
	if err != nil {
		t.Fatalf("RandomName: %v", err)
	}
	found := false
	for _, code := range codes {
		if code == name.Culture {
			found = true
		}
	}
	if !found {
		t.Fatalf("random culture %q not in %v", name.Culture, codes)
	}
	if name.Name == "" || name.Pronunciation == "" {
		t.Fatalf("expected a pronounced name, got %+v", name)
	}
	if len(fx.recorder.records) != 1 || len(fx.recorder.logs) != 1 {
		t.Fatalf("expected the name recorded and logged once")
	}

	named, err := fx.svc.RandomName(context.Background(), RandomNameCommand{Culture: "elvish", Gender: "feminine"})
	if err != nil {
		t.Fatalf("RandomName: %v", err)
	}
	if named.Culture != "elvish" || named.Gender != domain.GenderFeminine {
		t.Fatalf("unexpected name %+v", named)
	}

	if _, err := fx.svc.RandomName(context.Background(), RandomNameCommand{Culture: "orcish"}); !errors.Is(err, ErrGenerationUnknownCulture) {
		t.Fatalf("expected unknown culture, got %v", err)
	}
	if _, err := fx.svc.RandomName(context.Background(), RandomNameCommand{Culture: "elvish", Gender: "x"}); !errors.Is(err, ErrGenerationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	result, err := fx.svc.ValidateName(context.Background(), ValidateNameCommand{Name: " Aelis ", Culture: "elvish"})
	if err != nil {
		t.Fatalf("ValidateName: %v", err)
	}
	if result.Name != "Aelis" || result.Culture != "elvish" {
		t.Fatalf("unexpected validation %+v", result)
	}
	if result.Score <= 0.8 || !result.Acceptable {
		t.Fatalf("expected Aelis to be acceptable, got %+v", result)
	}
	if result.Pronunciation != "ae-lis" {
		t.Fatalf("unexpected pronunciation %q", result.Pronunciation)
	}
	if strings.Join(result.Syllables, "|") != "ae|lis" {
		t.Fatalf("unexpected syllables %v", result.Syllables)
	}

	harsh, err := fx.svc.ValidateName(context.Background(), ValidateNameCommand{Name: "Xkrth"})
	if err != nil {
		t.Fatalf("ValidateName: %v", err)
	}
	lyra, err := fx.svc.ValidateName(context.Background(), ValidateNameCommand{Name: "Lyra"})
	if err != nil {
		t.Fatalf("ValidateName: %v", err)
	}
	if !(lyra.Score > harsh.Score) {
		t.Fatalf("expected Lyra (%v) to outscore Xkrth (%v)", lyra.Score, harsh.Score)
	}
	if len(harsh.Deductions) == 0 {
		t.Fatalf("expected deductions for Xkrth")
	}
}

func TestValidateNameRejectsBadInput(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))

	tests := []struct {
		name string
		cmd  ValidateNameCommand
		want error
	}{
		{name: "empty", cmd: ValidateNameCommand{Name: "  "}, want: ErrGenerationInvalidInput},
		{name: "digits", cmd: ValidateNameCommand{Name: "R2D2"}, want: ErrGenerationInvalidInput},
		{name: "too long", cmd: ValidateNameCommand{Name: strings.Repeat("a", 65)}, want: ErrGenerationInvalidInput},
		{name: "unknown culture", cmd: ValidateNameCommand{Name: "Lyra", Culture: "orcish"}, want: ErrGenerationUnknownCulture},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.svc.ValidateName(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNameHistory(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	ctx := context.Background()
	for _, name := range []string{"Aelis", "Lyra", "Aelis", "Aelis", "Lyra", "Thalion"} {
		if _, err := fx.history.RecordUsage(ctx, domain.NameRecord{Name: name, Culture: "elvish"}); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	names, err := fx.svc.NameHistory(ctx, NameHistoryQuery{Culture: "elvish", Limit: 2})
	if err != nil {
		t.Fatalf("NameHistory: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
	if names[0].Name != "Aelis" || names[0].UsageCount != 3 {
		t.Fatalf("expected Aelis first with 3 uses, got %+v", names[0])
	}

	if _, err := fx.svc.NameHistory(ctx, NameHistoryQuery{}); !errors.Is(err, ErrGenerationInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := fx.svc.NameHistory(ctx, NameHistoryQuery{Culture: "elvish", Limit: -1}); !errors.Is(err, ErrGenerationInvalidInput) {
		t.Fatalf("expected invalid input for negative limit, got %v", err)
	}
}

func TestNameHistoryUnavailableWithoutRepository(t *testing.T) {
	catalog, err := NewCultureCatalog(CultureCatalogDeps{Registry: embeddedRegistry(t)})
	if err != nil {
		t.Fatalf("NewCultureCatalog: %v", err)
	}
	svc, err := NewGenerationService(GenerationServiceDeps{Catalog: catalog})
	if err != nil {
		t.Fatalf("NewGenerationService: %v", err)
	}
	if _, err := svc.NameHistory(context.Background(), NameHistoryQuery{Culture: "elvish"}); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestListCultures(t *testing.T) {
	fx := newGenerationFixture(t, embeddedRegistry(t))
	cultures := fx.svc.ListCultures(context.Background())
	if len(cultures) != 3 {
		t.Fatalf("expected 3 cultures, got %d", len(cultures))
	}
	if cultures[0].Code != "dwarven" {
		t.Fatalf("expected cultures ordered by code, got %s first", cultures[0].Code)
	}
}

func TestNewGenerationServiceRequiresCatalog(t *testing.T) {
	if _, err := NewGenerationService(GenerationServiceDeps{}); err == nil {
		t.Fatalf("expected error without catalog")
	}
}
