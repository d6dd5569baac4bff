package culture

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/bejimenez/magus/internal/domain"
)

func TestEmbeddedTemplatesLoad(t *testing.T) {
	reg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codes := reg.Codes()
	want := []string{"dwarven", "elvish", "human"}
	if len(codes) != len(want) {
		t.Fatalf("expected codes %v, got %v", want, codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected codes %v, got %v", want, codes)
		}
	}

	elvish, ok := reg.Get("Elvish")
	if !ok {
		t.Fatalf("expected elvish lookup to be case insensitive")
	}
	if elvish.Length.IdealSyllables != 3 {
		t.Fatalf("expected elvish ideal syllables 3, got %d", elvish.Length.IdealSyllables)
	}
	if string(elvish.Phonemes.Consonants) != "lmnrsvwy" {
		t.Fatalf("unexpected elvish consonants %q", string(elvish.Phonemes.Consonants))
	}
	if len(elvish.Fallbacks[domain.GenderFeminine]) == 0 {
		t.Fatalf("expected feminine fallbacks")
	}
}

func TestPatternsForMergesOnlyDefinedPositions(t *testing.T) {
	reg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dwarven, _ := reg.Get("dwarven")

	merged := dwarven.PatternsFor(domain.GenderFeminine)
	if len(merged.Final) != 2 || merged.Final[0].Pattern != "V" {
		t.Fatalf("expected feminine final override, got %+v", merged.Final)
	}
	if len(merged.Initial) != len(dwarven.Patterns.Initial) {
		t.Fatalf("expected base initial patterns to survive the override")
	}

	neutral := dwarven.PatternsFor(domain.GenderNeutral)
	if len(neutral.Final) != len(dwarven.Patterns.Final) {
		t.Fatalf("expected neutral to use base tables")
	}
}

func TestRegistryInfo(t *testing.T) {
	reg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, ok := reg.Info("elvish")
	if !ok {
		t.Fatalf("expected info for elvish")
	}
	if info.Name != "Elvish" || info.Description == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if len(info.ExampleNames) != 8 {
		t.Fatalf("expected 8 example names, got %v", info.ExampleNames)
	}
	if !strings.Contains(info.TypicalLength, "3 syllables") {
		t.Fatalf("unexpected typical length %q", info.TypicalLength)
	}
	if len(reg.List()) != 3 {
		t.Fatalf("expected three cultures listed")
	}
}

func TestValidateRejectsEmptyPhonemeClass(t *testing.T) {
	tpl := validTemplate()
	tpl.Phonemes.Nasals = nil
	tpl.Patterns.Final = []domain.PatternWeight{{Pattern: "VN", Weight: 1}}

	err := Validate(tpl)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(vErr.Fields()) != 1 || !strings.Contains(vErr.Fields()[0], "patterns.final[0]") {
		t.Fatalf("unexpected fields %v", vErr.Fields())
	}
}

func TestValidateRejectsMissingPositionsAndWeights(t *testing.T) {
	tpl := validTemplate()
	tpl.Patterns.Medial = nil
	tpl.Patterns.Initial = []domain.PatternWeight{{Pattern: "CV", Weight: 0}}

	err := Validate(tpl)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(vErr.Fields()) != 2 {
		t.Fatalf("expected two problems, got %v", vErr.Fields())
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(validTemplate(), validTemplate())
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRegistryIsolatedFromCallerMutation(t *testing.T) {
	tpl := validTemplate()
	reg, err := NewRegistry(tpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tpl.Phonemes.Vowels[0] = 'z'
	tpl.Patterns.Initial[0].Pattern = "ZZZ"

	stored, _ := reg.Get("test")
	if stored.Phonemes.Vowels[0] != 'a' || stored.Patterns.Initial[0].Pattern != "CV" {
		t.Fatalf("registry template changed after caller mutation: %+v", stored)
	}
}

func TestLoaderRejectsUnknownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.yaml": {Data: []byte("code: broken\nname: Broken\nmystery: true\n")},
	}
	if _, err := NewLoader(fsys).Load(); err == nil {
		t.Fatalf("expected strict decoding error")
	}
}

func TestLoaderRequiresTemplates(t *testing.T) {
	fsys := fstest.MapFS{"README.md": {Data: []byte("nothing here")}}
	if _, err := NewLoader(fsys).Load(); !errors.Is(err, ErrNoTemplates) {
		t.Fatalf("expected ErrNoTemplates, got %v", err)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	doc := `
code: Test
phonemes:
  consonants: "bdg"
  vowels: "aei"
patterns:
  initial: [{ pattern: CV }]
  medial: [{ pattern: CVC, weight: 2 }]
  final: [{ pattern: VN }]
length: { min: 2, max: 10 }
`
	tpl, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Code != "test" || tpl.Name != "Test" {
		t.Fatalf("unexpected identity %q %q", tpl.Code, tpl.Name)
	}
	if tpl.Patterns.Initial[0].Weight != 1 {
		t.Fatalf("expected default weight 1, got %v", tpl.Patterns.Initial[0].Weight)
	}
	if string(tpl.Phonemes.Nasals) != "mn" {
		t.Fatalf("expected default nasals, got %q", string(tpl.Phonemes.Nasals))
	}
}

func validTemplate() domain.CultureTemplate {
	return domain.CultureTemplate{
		Code: "test",
		Name: "Test",
		Phonemes: domain.PhonemeSet{
			Consonants: []rune("bdg"),
			Vowels:     []rune("aei"),
			Liquids:    []rune("lr"),
			Nasals:     []rune("mn"),
		},
		Patterns: domain.PatternTable{
			Initial: []domain.PatternWeight{{Pattern: "CV", Weight: 1}},
			Medial:  []domain.PatternWeight{{Pattern: "CVC", Weight: 1}},
			Final:   []domain.PatternWeight{{Pattern: "VN", Weight: 1}},
		},
		Length: domain.LengthPolicy{MinLength: 2, MaxLength: 10},
	}
}
