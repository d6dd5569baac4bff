package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/domain"
)

const (
	// DefaultAcceptanceThreshold is the minimum score a candidate needs to be returned without falling back.
	DefaultAcceptanceThreshold = 0.6
	// DefaultMaxAttempts bounds the attempts of one Generate call when the caller passes zero.
	DefaultMaxAttempts = 100

	metricNamespace = "github.com/bejimenez/magus/internal/synthesis"
)

// ErrUnknownCulture is returned when no template is registered for the requested code.
var ErrUnknownCulture = errors.New("synthesis: unknown culture")

// Candidate is a generated name with the syllables it was built from.
type Candidate struct {
	Name      string
	Syllables []string
	Score     float64
	Fallback  bool
}

// Params controls one Generate call.
type Params struct {
	Culture     string
	Gender      domain.Gender
	Length      domain.LengthClass
	MaxAttempts int
}

// Engine assembles names from a culture registry. It is safe for concurrent use.
type Engine struct {
	registry  *culture.Registry
	rng       Rand
	threshold float64
	logger    *zap.Logger

	fallbacks        metric.Int64Counter
	fallbacksEnabled bool
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithRand injects the random source. Use NewSeededRand for reproducible output.
func WithRand(rng Rand) EngineOption {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithAcceptanceThreshold overrides the minimum acceptable score.
func WithAcceptanceThreshold(threshold float64) EngineOption {
	return func(e *Engine) {
		if threshold >= 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

// WithEngineLogger sets the logger used for fallback diagnostics.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine over a validated registry.
func NewEngine(registry *culture.Registry, opts ...EngineOption) (*Engine, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("synthesis: culture registry is required")
	}
	e := &Engine{
		registry:  registry,
		threshold: DefaultAcceptanceThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.rng == nil {
		e.rng = NewRand()
	}

	counter, err := otel.GetMeterProvider().Meter(metricNamespace).Int64Counter(
		"synthesis.fallbacks",
		metric.WithDescription("Count of names produced by the fallback path"),
	)
	if err != nil {
		e.logger.Warn("synthesis: unable to register fallback metric", zap.Error(err))
	} else {
		e.fallbacks = counter
		e.fallbacksEnabled = true
	}
	return e, nil
}

// Registry exposes the templates the engine was built with.
func (e *Engine) Registry() *culture.Registry {
	return e.registry
}

// Threshold reports the acceptance threshold in effect.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Generate produces one name. Only an unknown culture is an error; exhausting the attempt
// budget or a cancelled context resolves to a fallback name.
func (e *Engine) Generate(ctx context.Context, p Params) (Candidate, error) {
	tpl, ok := e.registry.Get(p.Culture)
	if !ok {
		return Candidate{}, fmt.Errorf("%w: %q", ErrUnknownCulture, p.Culture)
	}

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	tables := tpl.PatternsFor(p.Gender)

	for i := 0; i < attempts; i++ {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		syllables := e.assemble(tpl, tables, e.syllableCount(tpl, p.Length))
		name := applyTransforms(strings.Join(syllables, ""), tpl.Transforms)
		if rejected(name, tpl) {
			continue
		}
		score := Score(name, tpl.Code)
		if score >= e.threshold {
			return Candidate{Name: capitalize(name), Syllables: syllables, Score: score}, nil
		}
	}

	return e.fallback(ctx, tpl, tables, p), nil
}

func (e *Engine) syllableCount(tpl domain.CultureTemplate, length domain.LengthClass) int {
	if n := length.SyllableCount(); n > 0 {
		return n
	}
	if tpl.Length.IdealSyllables > 0 {
		return tpl.Length.IdealSyllables
	}
	return 2 + e.rng.IntN(2)
}

func (e *Engine) assemble(tpl domain.CultureTemplate, tables domain.PatternTable, count int) []string {
	syllables := make([]string, count)
	for i := range syllables {
		var entries []domain.PatternWeight
		switch {
		case i == 0:
			entries = tables.Initial
		case i == count-1:
			entries = tables.Final
		default:
			entries = tables.Medial
		}
		syllables[i] = Synthesize(choosePattern(entries, e.rng), tpl.Phonemes, e.rng)
	}
	return syllables
}

func (e *Engine) fallback(ctx context.Context, tpl domain.CultureTemplate, tables domain.PatternTable, p Params) Candidate {
	gender := p.Gender
	if gender == "" {
		gender = domain.GenderNeutral
	}
	list := tpl.Fallbacks[gender]
	if len(list) == 0 {
		list = tpl.Fallbacks[domain.GenderNeutral]
	}

	var candidate Candidate
	if len(list) > 0 {
		entry := list[e.rng.IntN(len(list))]
		syllables := strings.Split(strings.ToLower(entry), "-")
		name := strings.Join(syllables, "")
		candidate = Candidate{Name: capitalize(name), Syllables: syllables, Score: Score(name, tpl.Code), Fallback: true}
	} else {
		syllables := e.assemble(tpl, tables, e.syllableCount(tpl, p.Length))
		name := applyTransforms(strings.Join(syllables, ""), tpl.Transforms)
		candidate = Candidate{Name: capitalize(name), Syllables: syllables, Score: Score(name, tpl.Code), Fallback: true}
	}

	if e.fallbacksEnabled && ctx != nil {
		e.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("culture", tpl.Code)))
	}
	e.logger.Debug("name generation fell back",
		zap.String("culture", tpl.Code),
		zap.String("gender", string(p.Gender)),
		zap.String("name", candidate.Name),
	)
	return candidate
}

func applyTransforms(name string, rules []domain.TransformRule) string {
	for _, rule := range rules {
		name = strings.ReplaceAll(name, rule.Match, rule.Replacement)
	}
	return name
}

// rejected applies forbidden substrings, the culture's forbidden initials and finals, and
// the length policy.
func rejected(name string, tpl domain.CultureTemplate) bool {
	for _, f := range tpl.Forbidden {
		if strings.Contains(name, f) {
			return true
		}
	}
	for _, f := range tpl.ForbiddenInitials {
		if strings.HasPrefix(name, f) {
			return true
		}
	}
	for _, f := range tpl.ForbiddenFinals {
		if strings.HasSuffix(name, f) {
			return true
		}
	}
	return !tpl.Length.Allows(utf8.RuneCountInString(name))
}

func capitalize(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
