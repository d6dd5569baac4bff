package synthesis

import (
	"strings"

	"github.com/bejimenez/magus/internal/domain"
)

// Synthesize renders one syllable from a pattern. C, V, N and L draw uniformly from the
// matching phoneme class; any other character is copied literally.
func Synthesize(pattern string, phonemes domain.PhonemeSet, rng Rand) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, symbol := range pattern {
		class, ok := phonemes.Class(symbol)
		if !ok {
			b.WriteRune(symbol)
			continue
		}
		b.WriteRune(class[rng.IntN(len(class))])
	}
	return b.String()
}

// choosePattern picks a pattern with probability proportional to its weight.
func choosePattern(entries []domain.PatternWeight, rng Rand) string {
	var total float64
	for _, entry := range entries {
		total += entry.Weight
	}
	target := rng.Float64() * total
	var cumulative float64
	for _, entry := range entries {
		cumulative += entry.Weight
		if target < cumulative {
			return entry.Pattern
		}
	}
	return entries[len(entries)-1].Pattern
}
