package culture

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bejimenez/magus/internal/domain"
)

// ErrDuplicateCode is returned when two templates share the same code.
var ErrDuplicateCode = errors.New("culture: duplicate template code")

// Registry is an immutable lookup of validated culture templates.
type Registry struct {
	templates map[string]domain.CultureTemplate
	codes     []string
}

// NewRegistry validates the templates and builds a registry. Any invalid template rejects the whole set.
func NewRegistry(templates ...domain.CultureTemplate) (*Registry, error) {
	reg := &Registry{
		templates: make(map[string]domain.CultureTemplate, len(templates)),
		codes:     make([]string, 0, len(templates)),
	}

	var errs []error
	for _, tpl := range templates {
		if err := Validate(tpl); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := reg.templates[tpl.Code]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateCode, tpl.Code))
			continue
		}
		reg.templates[tpl.Code] = cloneTemplate(tpl)
		reg.codes = append(reg.codes, tpl.Code)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.Strings(reg.codes)
	return reg, nil
}

// Get returns the template registered under code.
func (r *Registry) Get(code string) (domain.CultureTemplate, bool) {
	if r == nil {
		return domain.CultureTemplate{}, false
	}
	tpl, ok := r.templates[strings.ToLower(strings.TrimSpace(code))]
	return tpl, ok
}

// Codes returns the registered culture codes in sorted order.
func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

// Len reports the number of registered templates.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.codes)
}

// Info summarises a template for listing endpoints.
func (r *Registry) Info(code string) (domain.CultureInfo, bool) {
	tpl, ok := r.Get(code)
	if !ok {
		return domain.CultureInfo{}, false
	}
	return describe(tpl), true
}

// List returns summaries for every template ordered by code.
func (r *Registry) List() []domain.CultureInfo {
	if r == nil {
		return nil
	}
	out := make([]domain.CultureInfo, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, describe(r.templates[code]))
	}
	return out
}

func describe(tpl domain.CultureTemplate) domain.CultureInfo {
	typical := fmt.Sprintf("%d-%d characters", tpl.Length.MinLength, tpl.Length.MaxLength)
	if tpl.Length.IdealSyllables > 0 {
		typical = fmt.Sprintf("%s, ideally %d syllables", typical, tpl.Length.IdealSyllables)
	}

	seen := make(map[string]struct{})
	var sounds []string
	for _, source := range []map[domain.Gender][]string{tpl.Prefixes, tpl.Suffixes} {
		for _, gender := range sortedGenders(source) {
			for _, sound := range source[gender] {
				key := strings.ToLower(sound)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				sounds = append(sounds, key)
			}
		}
	}

	var examples []string
	for _, gender := range sortedGenders(tpl.Examples) {
		examples = append(examples, tpl.Examples[gender]...)
	}

	return domain.CultureInfo{
		Code:          tpl.Code,
		Name:          tpl.Name,
		Description:   tpl.Description,
		TypicalLength: typical,
		CommonSounds:  sounds,
		ExampleNames:  examples,
	}
}

func sortedGenders(m map[domain.Gender][]string) []domain.Gender {
	keys := make([]domain.Gender, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func cloneTemplate(tpl domain.CultureTemplate) domain.CultureTemplate {
	out := tpl
	out.Phonemes = domain.PhonemeSet{
		Consonants: append([]rune(nil), tpl.Phonemes.Consonants...),
		Vowels:     append([]rune(nil), tpl.Phonemes.Vowels...),
		Liquids:    append([]rune(nil), tpl.Phonemes.Liquids...),
		Nasals:     append([]rune(nil), tpl.Phonemes.Nasals...),
	}
	out.Patterns = cloneTable(tpl.Patterns)
	if tpl.GenderPatterns != nil {
		out.GenderPatterns = make(map[domain.Gender]domain.PatternTable, len(tpl.GenderPatterns))
		for g, table := range tpl.GenderPatterns {
			out.GenderPatterns[g] = cloneTable(table)
		}
	}
	out.Forbidden = append([]string(nil), tpl.Forbidden...)
	out.ForbiddenInitials = append([]string(nil), tpl.ForbiddenInitials...)
	out.ForbiddenFinals = append([]string(nil), tpl.ForbiddenFinals...)
	out.Transforms = append([]domain.TransformRule(nil), tpl.Transforms...)
	out.Prefixes = cloneLists(tpl.Prefixes)
	out.Suffixes = cloneLists(tpl.Suffixes)
	out.Examples = cloneLists(tpl.Examples)
	out.Fallbacks = cloneLists(tpl.Fallbacks)
	return out
}

func cloneTable(t domain.PatternTable) domain.PatternTable {
	return domain.PatternTable{
		Initial: append([]domain.PatternWeight(nil), t.Initial...),
		Medial:  append([]domain.PatternWeight(nil), t.Medial...),
		Final:   append([]domain.PatternWeight(nil), t.Final...),
	}
}

func cloneLists(m map[domain.Gender][]string) map[domain.Gender][]string {
	if m == nil {
		return nil
	}
	out := make(map[domain.Gender][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
