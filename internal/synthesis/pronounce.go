package synthesis

import "strings"

// Segment splits a name into rough syllables, breaking before any single consonant that
// sits between two vowels. It is a reading aid and need not match the generated syllables.
func Segment(name string) []string {
	letters := []rune(strings.ToLower(strings.TrimSpace(name)))
	if len(letters) == 0 {
		return nil
	}

	isVowel := func(r rune) bool { return strings.ContainsRune(scoreVowels, r) }

	var (
		parts   []string
		current []rune
	)
	for i, r := range letters {
		if i > 0 && i+1 < len(letters) && !isVowel(r) && isVowel(letters[i-1]) && isVowel(letters[i+1]) {
			parts = append(parts, string(current))
			current = current[:0]
		}
		current = append(current, r)
	}
	return append(parts, string(current))
}

// Pronounce renders a lowercase, hyphen-separated reading guide such as "ae-lis".
func Pronounce(name string) string {
	return strings.Join(Segment(name), "-")
}
