package culture

import (
	"strings"

	"github.com/bejimenez/magus/internal/domain"
)

// document mirrors the YAML layout of a culture template file.
type document struct {
	Code           string                          `yaml:"code"`
	Name           string                          `yaml:"name"`
	Description    string                          `yaml:"description"`
	Phonemes       phonemeDocument                 `yaml:"phonemes"`
	Patterns       patternTableDocument            `yaml:"patterns"`
	GenderPatterns map[string]patternTableDocument `yaml:"genderPatterns"`

	Forbidden         []string            `yaml:"forbidden"`
	ForbiddenInitials []string            `yaml:"forbiddenInitials"`
	ForbiddenFinals   []string            `yaml:"forbiddenFinals"`
	Transforms        []transformDocument `yaml:"transforms"`
	Length            lengthDocument      `yaml:"length"`

	Prefixes  map[string][]string `yaml:"prefixes"`
	Suffixes  map[string][]string `yaml:"suffixes"`
	Examples  map[string][]string `yaml:"examples"`
	Fallbacks map[string][]string `yaml:"fallbacks"`
}

type phonemeDocument struct {
	Consonants string `yaml:"consonants"`
	Vowels     string `yaml:"vowels"`
	Liquids    string `yaml:"liquids"`
	Nasals     string `yaml:"nasals"`
}

type patternDocument struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

type patternTableDocument struct {
	Initial []patternDocument `yaml:"initial"`
	Medial  []patternDocument `yaml:"medial"`
	Final   []patternDocument `yaml:"final"`
}

type transformDocument struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`
}

type lengthDocument struct {
	Min            int `yaml:"min"`
	Max            int `yaml:"max"`
	IdealSyllables int `yaml:"idealSyllables"`
}

// applyDefaults fills optional fields left empty in the file.
func (d *document) applyDefaults() {
	d.Code = strings.ToLower(strings.TrimSpace(d.Code))
	if strings.TrimSpace(d.Name) == "" && d.Code != "" {
		d.Name = strings.ToUpper(d.Code[:1]) + d.Code[1:]
	}
	if d.Phonemes.Nasals == "" {
		d.Phonemes.Nasals = "mn"
	}
	if d.Phonemes.Liquids == "" {
		d.Phonemes.Liquids = "lr"
	}
	for i := range d.Patterns.Initial {
		if d.Patterns.Initial[i].Weight == 0 {
			d.Patterns.Initial[i].Weight = 1
		}
	}
	for i := range d.Patterns.Medial {
		if d.Patterns.Medial[i].Weight == 0 {
			d.Patterns.Medial[i].Weight = 1
		}
	}
	for i := range d.Patterns.Final {
		if d.Patterns.Final[i].Weight == 0 {
			d.Patterns.Final[i].Weight = 1
		}
	}
}

func (d document) toTemplate() domain.CultureTemplate {
	tpl := domain.CultureTemplate{
		Code:        d.Code,
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		Phonemes: domain.PhonemeSet{
			Consonants: phonemeRunes(d.Phonemes.Consonants),
			Vowels:     phonemeRunes(d.Phonemes.Vowels),
			Liquids:    phonemeRunes(d.Phonemes.Liquids),
			Nasals:     phonemeRunes(d.Phonemes.Nasals),
		},
		Patterns:          d.Patterns.toTable(),
		Forbidden:         lowerAll(d.Forbidden),
		ForbiddenInitials: lowerAll(d.ForbiddenInitials),
		ForbiddenFinals:   lowerAll(d.ForbiddenFinals),
		Length: domain.LengthPolicy{
			MinLength:      d.Length.Min,
			MaxLength:      d.Length.Max,
			IdealSyllables: d.Length.IdealSyllables,
		},
		Prefixes:  genderLists(d.Prefixes),
		Suffixes:  genderLists(d.Suffixes),
		Examples:  genderLists(d.Examples),
		Fallbacks: genderLists(d.Fallbacks),
	}

	if len(d.GenderPatterns) > 0 {
		tpl.GenderPatterns = make(map[domain.Gender]domain.PatternTable, len(d.GenderPatterns))
		for gender, table := range d.GenderPatterns {
			tpl.GenderPatterns[domain.Gender(strings.ToLower(strings.TrimSpace(gender)))] = table.toTable()
		}
	}

	for _, rule := range d.Transforms {
		tpl.Transforms = append(tpl.Transforms, domain.TransformRule{
			Match:       strings.ToLower(rule.Match),
			Replacement: strings.ToLower(rule.Replace),
		})
	}

	return tpl
}

func (t patternTableDocument) toTable() domain.PatternTable {
	return domain.PatternTable{
		Initial: patternWeights(t.Initial),
		Medial:  patternWeights(t.Medial),
		Final:   patternWeights(t.Final),
	}
}

func patternWeights(docs []patternDocument) []domain.PatternWeight {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.PatternWeight, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.PatternWeight{
			Pattern: strings.TrimSpace(doc.Pattern),
			Weight:  doc.Weight,
		})
	}
	return out
}

// phonemeRunes turns a character string into a deduplicated lowercase rune set.
func phonemeRunes(raw string) []rune {
	seen := make(map[rune]struct{}, len(raw))
	out := make([]rune, 0, len(raw))
	for _, r := range strings.ToLower(raw) {
		if r == ' ' || r == ',' {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func genderLists(raw map[string][]string) map[domain.Gender][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[domain.Gender][]string, len(raw))
	for key, values := range raw {
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) > 0 {
			out[domain.Gender(strings.ToLower(strings.TrimSpace(key)))] = cleaned
		}
	}
	return out
}
