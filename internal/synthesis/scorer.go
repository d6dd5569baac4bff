package synthesis

import (
	"math"
	"strings"
)

const scoreVowels = "aeiouy"

var (
	forbiddenInitials = []string{"ng", "nk", "mb", "wr"}
	forbiddenFinals   = []string{"h", "w", "y"}
	difficultClusters = []string{"thr", "spr", "str", "scr"}
	elvishHarsh       = "kgx"
)

const (
	penaltyInitial      = 0.2
	penaltyFinal        = 0.2
	penaltyCluster      = 0.1
	penaltyVowelRatio   = 0.15
	penaltyRunPerLetter = 0.1
	penaltyElvishHarsh  = 0.1

	minVowelRatio = 0.3
	maxVowelRatio = 0.6
	maxRun        = 3
)

// Deduction records one scoring rule that lowered a score.
type Deduction struct {
	Rule   string  `json:"rule"`
	Amount float64 `json:"amount"`
}

// ScoreReport is a score together with the deductions that produced it.
type ScoreReport struct {
	Score      float64     `json:"score"`
	VowelRatio float64     `json:"vowelRatio"`
	LongestRun int         `json:"longestRun"`
	Deductions []Deduction `json:"deductions,omitempty"`
}

// Score rates how pronounceable name is for the culture, in [0, 1].
func Score(name, culture string) float64 {
	return Evaluate(name, culture).Score
}

// Evaluate scores name and reports each deduction applied.
func Evaluate(name, culture string) ScoreReport {
	lower := strings.ToLower(name)
	report := ScoreReport{}
	total := 1.0
	deduct := func(rule string, amount float64) {
		total -= amount
		report.Deductions = append(report.Deductions, Deduction{Rule: rule, Amount: amount})
	}

	for _, prefix := range forbiddenInitials {
		if strings.HasPrefix(lower, prefix) {
			deduct("initial:"+prefix, penaltyInitial)
			break
		}
	}
	for _, suffix := range forbiddenFinals {
		if strings.HasSuffix(lower, suffix) {
			deduct("final:"+suffix, penaltyFinal)
			break
		}
	}
	for _, cluster := range difficultClusters {
		if strings.Contains(lower, cluster) {
			deduct("cluster:"+cluster, penaltyCluster)
		}
	}

	vowels, letters, run, longest := 0, 0, 0, 0
	for _, r := range lower {
		letters++
		if strings.ContainsRune(scoreVowels, r) {
			vowels++
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	if letters > 0 {
		report.VowelRatio = float64(vowels) / float64(letters)
	}
	report.LongestRun = longest

	if report.VowelRatio < minVowelRatio || report.VowelRatio > maxVowelRatio {
		deduct("vowel_ratio", penaltyVowelRatio)
	}
	if longest > maxRun {
		deduct("consonant_run", penaltyRunPerLetter*float64(longest-maxRun))
	}
	if culture == "elvish" && strings.ContainsAny(lower, elvishHarsh) {
		deduct("elvish:harsh", penaltyElvishHarsh)
	}

	// Round away float noise so equal deductions compare equal.
	total = math.Round(total*1e9) / 1e9
	report.Score = math.Max(0, math.Min(1, total))
	return report
}
