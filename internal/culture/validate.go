package culture

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bejimenez/magus/internal/domain"
)

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// ValidationError lists every invalid field found in a culture template.
type ValidationError struct {
	Code   string
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("culture %q validation failed: [%s]", e.Code, strings.Join(e.fields, "; "))
}

// Fields returns a copy of the invalid field descriptions.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Validate checks the load-time invariants of a template.
func Validate(tpl domain.CultureTemplate) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !codePattern.MatchString(tpl.Code) {
		add("code %q must be lowercase alphanumeric", tpl.Code)
	}
	if tpl.Name == "" {
		add("name is required")
	}
	if len(tpl.Phonemes.Vowels) == 0 {
		add("phonemes.vowels must not be empty")
	}
	if len(tpl.Phonemes.Consonants) == 0 {
		add("phonemes.consonants must not be empty")
	}

	checkTable := func(label string, table domain.PatternTable, required bool) {
		for _, pos := range domain.Positions {
			entries := table.For(pos)
			if len(entries) == 0 {
				if required {
					add("%s.%s must define at least one pattern", label, pos)
				}
				continue
			}
			for i, entry := range entries {
				field := fmt.Sprintf("%s.%s[%d]", label, pos, i)
				if entry.Pattern == "" {
					add("%s pattern is empty", field)
				}
				if !(entry.Weight > 0) {
					add("%s weight must be positive", field)
				}
				for _, symbol := range entry.Pattern {
					class, ok := tpl.Phonemes.Class(symbol)
					if ok && len(class) == 0 {
						add("%s symbol %q needs a non-empty phoneme class", field, symbol)
					}
				}
			}
		}
	}

	checkTable("patterns", tpl.Patterns, true)
	for gender, table := range tpl.GenderPatterns {
		if !gender.Valid() {
			add("genderPatterns.%s is not a supported gender", gender)
			continue
		}
		checkTable("genderPatterns."+string(gender), table, false)
	}

	for i, rule := range tpl.Transforms {
		if rule.Match == "" {
			add("transforms[%d].match is empty", i)
		}
	}
	for i, f := range tpl.Forbidden {
		if f == "" {
			add("forbidden[%d] is empty", i)
		}
	}

	length := tpl.Length
	if length.MinLength < 0 || length.MaxLength < 0 || length.IdealSyllables < 0 {
		add("length values must not be negative")
	}
	if length.MaxLength > 0 && length.MinLength > length.MaxLength {
		add("length.min %d exceeds length.max %d", length.MinLength, length.MaxLength)
	}

	if len(problems) > 0 {
		return &ValidationError{Code: tpl.Code, fields: problems}
	}
	return nil
}
