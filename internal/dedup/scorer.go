// Package dedup resolves AI-derived object detections from multiple images
// of the same scene into a deduplicated list of physical items.
package dedup

import (
	"strings"

	"appraisald/internal/vision"
)

// Scoring weights and thresholds for the metadata-aware similarity check.
// A substring name match alone is not enough to merge: it must be backed by
// at least one independent signal (color or details) reaching acceptScore.
const (
	acceptScore         = 0.5
	colorMatchBonus     = 0.3
	detailsContainBonus = 0.3
	detailsOverlapBase  = 0.2
	detailsOverlapScale = 0.3
	detailsMaxBonus     = 0.5
	overlapMinRatio     = 0.3
	// significantWordLen is the minimum length for a detail word to count
	// toward overlap; shorter words ("a", "the", "of") carry no signal.
	significantWordLen = 4
	// tokenOverlapRatio is the accept threshold for the name-only variant.
	tokenOverlapRatio = 0.5
	// significantTokenLen is the minimum name-token length for the
	// name-only variant.
	significantTokenLen = 3
)

// Similar decides whether two annotated detections refer to the same
// physical item. Two detections from the same image are never similar: one
// photo cannot contain two observations of the same instance.
//
// Identical normalized names always match. A substring name match
// ("Toyota Camry" vs "2018 Toyota Camry Sedan") is gated by a weighted
// score: +0.3 for a case-insensitive color match, and up to +0.5 from
// details overlap, accepted at >= 0.5. This keeps two different lamps of
// the same category apart unless a second signal corroborates the merge.
func Similar(a, b *vision.AnnotatedDetection) bool {
	if a.ImageID == b.ImageID {
		return false
	}

	nameA := normalizeName(a.Name)
	nameB := normalizeName(b.Name)

	if nameA == nameB {
		return true
	}

	if strings.Contains(nameA, nameB) || strings.Contains(nameB, nameA) {
		score := 0.0
		if strings.EqualFold(a.Color, b.Color) {
			score += colorMatchBonus
		}
		score += detailsScore(a.Details, b.Details)
		return score >= acceptScore
	}

	return false
}

// detailsScore returns the details contribution to the weighted score:
// a flat bonus when one details string contains the other, otherwise a
// graded bonus from the shared-significant-word ratio, capped at
// detailsMaxBonus. An empty details string is contained by anything, so
// missing details never block a merge that color already backs.
func detailsScore(detailsA, detailsB string) float64 {
	a := strings.ToLower(strings.TrimSpace(detailsA))
	b := strings.ToLower(strings.TrimSpace(detailsB))

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return detailsContainBonus
	}

	ratio := wordOverlapRatio(a, b, significantWordLen)
	if ratio > overlapMinRatio {
		bonus := detailsOverlapBase + detailsOverlapScale*ratio
		if bonus > detailsMaxBonus {
			bonus = detailsMaxBonus
		}
		return bonus
	}

	return 0
}

// wordOverlapRatio computes shared significant words divided by the smaller
// word count of the two strings. Only words of at least minLen characters
// are considered.
func wordOverlapRatio(a, b string, minLen int) float64 {
	wordsA := significantWords(a, minLen)
	wordsB := significantWords(b, minLen)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}

	shared := 0
	seen := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if setA[w] && !seen[w] {
			shared++
			seen[w] = true
		}
	}

	minCount := len(wordsA)
	if len(wordsB) < minCount {
		minCount = len(wordsB)
	}
	return float64(shared) / float64(minCount)
}

func significantWords(s string, minLen int) []string {
	var words []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) >= minLen {
			words = append(words, w)
		}
	}
	return words
}

// NameSimilar is the metadata-free fallback check, used where detections
// lack position/color context (manually entered items). Any single signal
// is sufficient: exact normalized-name match, name containment, >= 50%
// token overlap in either direction, or mutual details containment.
func NameSimilar(nameA, detailsA, nameB, detailsB string) bool {
	a := normalizeName(nameA)
	b := normalizeName(nameB)

	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	tokensA := significantWords(a, significantTokenLen)
	tokensB := significantWords(b, significantTokenLen)
	if overlapEither(tokensA, tokensB) >= tokenOverlapRatio {
		return true
	}

	da := strings.ToLower(strings.TrimSpace(detailsA))
	db := strings.ToLower(strings.TrimSpace(detailsB))
	if da != "" && db != "" && (strings.Contains(da, db) || strings.Contains(db, da)) {
		return true
	}

	return false
}

// overlapEither returns the shared-token count divided by the smaller token
// list, so a short name fully contained in a longer one scores 1.0.
func overlapEither(tokensA, tokensB []string) float64 {
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	shared := 0
	seen := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if setA[t] && !seen[t] {
			shared++
			seen[t] = true
		}
	}

	minCount := len(tokensA)
	if len(tokensB) < minCount {
		minCount = len(tokensB)
	}
	return float64(shared) / float64(minCount)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
