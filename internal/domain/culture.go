package domain

import "strings"

// Position identifies where a syllable sits inside a name.
type Position string

const (
	// PositionInitial is the first syllable of a name.
	PositionInitial Position = "initial"
	// PositionMedial covers every syllable between the first and the last.
	PositionMedial Position = "medial"
	// PositionFinal is the last syllable of a name.
	PositionFinal Position = "final"
)

// Positions lists syllable positions in generation order.
var Positions = []Position{PositionInitial, PositionMedial, PositionFinal}

// Gender tags a generated name with a grammatical gender style.
type Gender string

const (
	GenderMasculine Gender = "masculine"
	GenderFeminine  Gender = "feminine"
	GenderNeutral   Gender = "neutral"
)

// Valid reports whether the gender is one of the supported values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMasculine, GenderFeminine, GenderNeutral:
		return true
	default:
		return false
	}
}

// ParseGender normalises raw input. An empty string yields an empty gender.
func ParseGender(raw string) (Gender, bool) {
	g := Gender(strings.ToLower(strings.TrimSpace(raw)))
	if g == "" {
		return "", true
	}
	return g, g.Valid()
}

// LengthClass selects a target syllable count.
type LengthClass string

const (
	LengthShort  LengthClass = "short"
	LengthMedium LengthClass = "medium"
	LengthLong   LengthClass = "long"
)

// SyllableCount maps the class onto a fixed syllable count. Zero means unset.
func (l LengthClass) SyllableCount() int {
	switch l {
	case LengthShort:
		return 2
	case LengthMedium:
		return 3
	case LengthLong:
		return 4
	default:
		return 0
	}
}

// ParseLengthClass normalises raw input. An empty string yields an empty class.
func ParseLengthClass(raw string) (LengthClass, bool) {
	l := LengthClass(strings.ToLower(strings.TrimSpace(raw)))
	if l == "" {
		return "", true
	}
	return l, l.SyllableCount() > 0
}

// PatternWeight pairs a syllable pattern with its relative selection weight.
type PatternWeight struct {
	Pattern string
	Weight  float64
}

// PatternTable holds the weighted pattern lists for each syllable position.
type PatternTable struct {
	Initial []PatternWeight
	Medial  []PatternWeight
	Final   []PatternWeight
}

// For returns the pattern list configured for the position.
func (t PatternTable) For(pos Position) []PatternWeight {
	switch pos {
	case PositionInitial:
		return t.Initial
	case PositionMedial:
		return t.Medial
	case PositionFinal:
		return t.Final
	default:
		return nil
	}
}

// Merge overlays the non-empty positions of override onto the table.
func (t PatternTable) Merge(override PatternTable) PatternTable {
	merged := t
	if len(override.Initial) > 0 {
		merged.Initial = override.Initial
	}
	if len(override.Medial) > 0 {
		merged.Medial = override.Medial
	}
	if len(override.Final) > 0 {
		merged.Final = override.Final
	}
	return merged
}

// PhonemeSet groups the characters each pattern symbol draws from.
type PhonemeSet struct {
	Consonants []rune
	Vowels     []rune
	Liquids    []rune
	Nasals     []rune
}

// Class returns the phoneme class bound to a pattern symbol, or false for literals.
func (p PhonemeSet) Class(symbol rune) ([]rune, bool) {
	switch symbol {
	case 'C':
		return p.Consonants, true
	case 'V':
		return p.Vowels, true
	case 'L':
		return p.Liquids, true
	case 'N':
		return p.Nasals, true
	default:
		return nil, false
	}
}

// TransformRule rewrites every occurrence of Match with Replacement.
type TransformRule struct {
	Match       string
	Replacement string
}

// LengthPolicy bounds the character length and optionally the syllable count of names.
type LengthPolicy struct {
	MinLength      int
	MaxLength      int
	IdealSyllables int
}

// Allows reports whether a name of n characters satisfies the policy.
func (p LengthPolicy) Allows(n int) bool {
	if p.MinLength > 0 && n < p.MinLength {
		return false
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return false
	}
	return true
}

// CultureTemplate is the validated, read-only description of one naming style.
type CultureTemplate struct {
	Code        string
	Name        string
	Description string

	Phonemes       PhonemeSet
	Patterns       PatternTable
	GenderPatterns map[Gender]PatternTable

	Forbidden         []string
	ForbiddenInitials []string
	ForbiddenFinals   []string
	Transforms        []TransformRule
	Length            LengthPolicy

	Prefixes  map[Gender][]string
	Suffixes  map[Gender][]string
	Examples  map[Gender][]string
	Fallbacks map[Gender][]string
}

// PatternsFor resolves the pattern tables for the gender, applying any override.
func (c CultureTemplate) PatternsFor(g Gender) PatternTable {
	if g == "" {
		return c.Patterns
	}
	override, ok := c.GenderPatterns[g]
	if !ok {
		return c.Patterns
	}
	return c.Patterns.Merge(override)
}

// CultureInfo is the public summary of a culture template.
type CultureInfo struct {
	Code          string
	Name          string
	Description   string
	TypicalLength string
	CommonSounds  []string
	ExampleNames  []string
}
