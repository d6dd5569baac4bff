package synthesis

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/domain"
)

func newTestEngine(t *testing.T, seed uint64, opts ...EngineOption) *Engine {
	t.Helper()
	reg, err := culture.NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	opts = append([]EngineOption{WithRand(NewSeededRand(seed))}, opts...)
	engine, err := NewEngine(reg, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngineUnknownCulture(t *testing.T) {
	engine := newTestEngine(t, 1)
	_, err := engine.Generate(context.Background(), Params{Culture: "orcish"})
	if !errors.Is(err, ErrUnknownCulture) {
		t.Fatalf("expected ErrUnknownCulture, got %v", err)
	}
}

func TestEngineElvishFeminineMedium(t *testing.T) {
	engine := newTestEngine(t, 42)
	const trials = 200
	good := 0
	for i := 0; i < trials; i++ {
		c, err := engine.Generate(context.Background(), Params{
			Culture:     "elvish",
			Gender:      domain.GenderFeminine,
			Length:      domain.LengthMedium,
			MaxAttempts: 100,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n := utf8.RuneCountInString(c.Name)
		if n >= 6 && n <= 8 && c.Score >= DefaultAcceptanceThreshold {
			good++
		}
	}
	if good < trials*9/10 {
		t.Fatalf("expected most names to be 6-8 characters with passing scores, got %d/%d", good, trials)
	}
}

func TestEngineRespectsLengthPolicy(t *testing.T) {
	engine := newTestEngine(t, 99)
	genders := []domain.Gender{"", domain.GenderMasculine, domain.GenderFeminine, domain.GenderNeutral}
	lengths := []domain.LengthClass{"", domain.LengthShort, domain.LengthMedium, domain.LengthLong}

	for _, code := range engine.Registry().Codes() {
		tpl, _ := engine.Registry().Get(code)
		for _, gender := range genders {
			for _, length := range lengths {
				within := 0
				for i := 0; i < 100; i++ {
					c, err := engine.Generate(context.Background(), Params{Culture: code, Gender: gender, Length: length})
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					if c.Name == "" || len(c.Syllables) == 0 {
						t.Fatalf("empty candidate for %s/%s/%s", code, gender, length)
					}
					if tpl.Length.Allows(utf8.RuneCountInString(c.Name)) {
						within++
					}
				}
				if within < 95 {
					t.Fatalf("%s/%s/%s: only %d/100 names within length policy", code, gender, length, within)
				}
			}
		}
	}
}

func TestEngineSyllableCountFollowsLengthClass(t *testing.T) {
	engine := newTestEngine(t, 5)
	for length, want := range map[domain.LengthClass]int{
		domain.LengthShort:  2,
		domain.LengthMedium: 3,
		domain.LengthLong:   4,
	} {
		for i := 0; i < 20; i++ {
			c, _ := engine.Generate(context.Background(), Params{Culture: "dwarven", Length: length})
			if !c.Fallback && len(c.Syllables) != want {
				t.Fatalf("%s: expected %d syllables, got %v", length, want, c.Syllables)
			}
		}
	}
}

func TestEngineMasculineOverrideUsesConsonantFinals(t *testing.T) {
	engine := newTestEngine(t, 11)
	for i := 0; i < 50; i++ {
		c, _ := engine.Generate(context.Background(), Params{Culture: "elvish", Gender: domain.GenderMasculine})
		if c.Fallback {
			continue
		}
		last := []rune(c.Syllables[len(c.Syllables)-1])
		if len(last) != 2 {
			t.Fatalf("expected two-letter VC/VN final, got %q", string(last))
		}
	}
}

func TestEngineCapitalizesAcceptedNames(t *testing.T) {
	engine := newTestEngine(t, 3)
	c, _ := engine.Generate(context.Background(), Params{Culture: "human"})
	first, _ := utf8.DecodeRuneInString(c.Name)
	if first < 'A' || first > 'Z' {
		t.Fatalf("expected capitalised name, got %q", c.Name)
	}
}

func TestEngineDeterministicWithSeed(t *testing.T) {
	a := newTestEngine(t, 2024)
	b := newTestEngine(t, 2024)
	for i := 0; i < 25; i++ {
		ca, _ := a.Generate(context.Background(), Params{Culture: "human", Gender: domain.GenderFeminine})
		cb, _ := b.Generate(context.Background(), Params{Culture: "human", Gender: domain.GenderFeminine})
		if ca.Name != cb.Name {
			t.Fatalf("expected identical sequences, got %q vs %q at %d", ca.Name, cb.Name, i)
		}
	}
}

func harshRegistry(t *testing.T, fallbacks map[domain.Gender][]string) *culture.Registry {
	t.Helper()
	reg, err := culture.NewRegistry(domain.CultureTemplate{
		Code: "harsh",
		Name: "Harsh",
		Phonemes: domain.PhonemeSet{
			Consonants: []rune("bdg"),
			Vowels:     []rune("a"),
			Liquids:    []rune("r"),
			Nasals:     []rune("n"),
		},
		Patterns: domain.PatternTable{
			Initial: []domain.PatternWeight{{Pattern: "CCCCV", Weight: 1}},
			Medial:  []domain.PatternWeight{{Pattern: "CCCCV", Weight: 1}},
			Final:   []domain.PatternWeight{{Pattern: "CCCCV", Weight: 1}},
		},
		Length:    domain.LengthPolicy{MinLength: 1, MaxLength: 40},
		Fallbacks: fallbacks,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestEngineFallsBackToListWhenExhausted(t *testing.T) {
	reg := harshRegistry(t, map[domain.Gender][]string{domain.GenderNeutral: {"Ba-ran"}})
	engine, err := NewEngine(reg, WithRand(NewSeededRand(1)), WithAcceptanceThreshold(1))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	c, err := engine.Generate(context.Background(), Params{Culture: "harsh", Gender: domain.GenderMasculine, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !c.Fallback || c.Name != "Baran" {
		t.Fatalf("expected list fallback Baran, got %+v", c)
	}
	if len(c.Syllables) != 2 || c.Syllables[0] != "ba" || c.Syllables[1] != "ran" {
		t.Fatalf("unexpected fallback syllables %v", c.Syllables)
	}
}

func TestEngineFallsBackToUnconstrainedAttempt(t *testing.T) {
	engine, err := NewEngine(harshRegistry(t, nil), WithRand(NewSeededRand(1)), WithAcceptanceThreshold(1))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	c, err := engine.Generate(context.Background(), Params{Culture: "harsh", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !c.Fallback || c.Name == "" || c.Score >= 1 {
		t.Fatalf("expected unconstrained fallback, got %+v", c)
	}
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	engine := newTestEngine(t, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := engine.Generate(ctx, Params{Culture: "elvish", Gender: domain.GenderFeminine})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Fallback {
		t.Fatalf("expected fallback after cancellation, got %+v", c)
	}
}

func TestRejectedRules(t *testing.T) {
	tpl := domain.CultureTemplate{
		Forbidden:         []string{"kk"},
		ForbiddenInitials: []string{"ng"},
		ForbiddenFinals:   []string{"w"},
		Length:            domain.LengthPolicy{MinLength: 4, MaxLength: 8},
	}
	cases := []struct {
		name string
		want bool
	}{
		{name: "lirael", want: false},
		{name: "bakkar", want: true},
		{name: "ngalia", want: true},
		{name: "torrow", want: true},
		{name: "ael", want: true},
		{name: "aelindrasil", want: true},
	}
	for _, tc := range cases {
		if got := rejected(tc.name, tpl); got != tc.want {
			t.Fatalf("rejected(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
