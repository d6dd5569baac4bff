package services

import (
	"context"
	"time"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/synthesis"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	GeneratedName      = domain.GeneratedName
	CultureInfo        = domain.CultureInfo
	StoredName         = domain.StoredName
	SystemHealthReport = domain.SystemHealthReport
)

// GenerationService orchestrates name generation: cache lookup, synthesis, persistence
// hand-off and cache write-back.
type GenerationService interface {
	GenerateNames(ctx context.Context, cmd GenerateNamesCommand) (GenerateNamesResult, error)
	RandomName(ctx context.Context, cmd RandomNameCommand) (GeneratedName, error)
	ValidateName(ctx context.Context, cmd ValidateNameCommand) (NameValidation, error)
	ListCultures(ctx context.Context) []CultureInfo
	NameHistory(ctx context.Context, query NameHistoryQuery) ([]StoredName, error)
	// InvalidateCulture drops every cached result for the culture and returns the number of keys removed.
	InvalidateCulture(ctx context.Context, code string) (int, error)
}

// CultureCatalog owns the active template registry and the engine built from it.
type CultureCatalog interface {
	Engine() *synthesis.Engine
	Cultures() []CultureInfo
	// Reload rebuilds the registry from its source. An empty code reloads and invalidates every culture.
	Reload(ctx context.Context, code string) (CultureReload, error)
}

// NameRecorder hands generated names and request summaries to persistence. Implementations
// must return immediately and never fail the caller.
type NameRecorder interface {
	Record(ctx context.Context, record domain.NameRecord)
	LogRequest(ctx context.Context, entry domain.RequestLog)
}

// NameEventPublisher announces recorded names to downstream consumers.
type NameEventPublisher interface {
	PublishNameEvent(ctx context.Context, event domain.NameEvent) (string, error)
}

// SystemService exposes health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// GenerateNamesCommand carries the raw request inputs. Zero values select defaults.
type GenerateNamesCommand struct {
	RequestID            string
	Culture              string
	Gender               string
	Length               string
	Count                int
	MinScore             *float64
	IncludePronunciation *bool
}

// GenerateNamesResult is the outcome of one generation request.
type GenerateNamesResult struct {
	Names          []GeneratedName
	GenerationTime time.Duration
	Parameters     domain.GenerationParameters
	CacheHit       bool
}

// RandomNameCommand requests a single name. An empty culture picks one at random.
type RandomNameCommand struct {
	RequestID string
	Culture   string
	Gender    string
}

// ValidateNameCommand scores an arbitrary name. An empty culture applies neutral scoring.
type ValidateNameCommand struct {
	Name    string
	Culture string
}

// NameValidation reports how a name scores and reads.
type NameValidation struct {
	Name          string
	Culture       string
	Score         float64
	Acceptable    bool
	Pronunciation string
	Syllables     []string
	VowelRatio    float64
	LongestRun    int
	Deductions    []synthesis.Deduction
}

// NameHistoryQuery selects previously generated names for a culture.
type NameHistoryQuery struct {
	Culture string
	Limit   int
}

// CultureReload summarises a registry reload.
type CultureReload struct {
	Cultures    []string
	Invalidated int
	ReloadedAt  time.Time
}
