package dedup

import (
	"strings"

	"github.com/rs/zerolog/log"

	"appraisald/internal/vision"
)

const (
	// confidenceStep is added per corroborating member when a group merges.
	confidenceStep = 0.05
	// confidenceCap bounds merged confidence; repeated sightings raise it
	// with diminishing returns, never to certainty.
	confidenceCap = 0.95
)

// ConsolidatedItem is the externally visible, deduplicated item produced by
// merging a similarity group.
type ConsolidatedItem struct {
	Name       string   `json:"name"`
	Condition  string   `json:"condition"`
	Details    string   `json:"details,omitempty"`
	Value      float64  `json:"value"`
	Confidence float64  `json:"confidence"`
	AppearsIn  []string `json:"appears_in"`
}

// group is a cluster of detections believed to be the same physical item.
// The first-discovered member acts as the comparison anchor for all
// subsequent candidates and is never recomputed.
type group struct {
	members []*vision.AnnotatedDetection
}

func (g *group) representative() *vision.AnnotatedDetection {
	return g.members[0]
}

// Merge partitions detections into similarity groups and collapses each
// group into one consolidated item. Clustering is single-pass and
// leader-based: each detection is compared against existing groups'
// representatives only, joining the first that matches, O(n*g).
//
// Because comparison is always against the original representative rather
// than a running centroid, a chain of gradually drifting detections
// (A~B, B~C, A!~C) does not collapse into one group: C starts a new group.
// That non-transitivity is deliberate and pinned by tests; do not upgrade
// to full transitive clustering without changing the documented semantics.
func Merge(detections []*vision.AnnotatedDetection) []*ConsolidatedItem {
	var groups []*group

	for _, det := range detections {
		placed := false
		for _, g := range groups {
			if Similar(det, g.representative()) {
				g.members = append(g.members, det)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{members: []*vision.AnnotatedDetection{det}})
		}
	}

	items := make([]*ConsolidatedItem, 0, len(groups))
	for _, g := range groups {
		items = append(items, g.consolidate())
	}

	if len(groups) < len(detections) {
		log.Debug().
			Int("detections", len(detections)).
			Int("groups", len(groups)).
			Msg("merged duplicate detections")
	}

	return items
}

// consolidate folds a group's members into one item: value keeps the max,
// condition and details accumulate distinct strings semicolon-joined with
// the representative's first, confidence climbs by a small step per
// corroborating member, and AppearsIn collects the contributing image IDs.
func (g *group) consolidate() *ConsolidatedItem {
	rep := g.representative()
	item := &ConsolidatedItem{
		Name:       rep.Name,
		Condition:  rep.Condition,
		Details:    rep.Details,
		Value:      rep.Value,
		Confidence: rep.Confidence,
		AppearsIn:  []string{rep.ImageID},
	}

	for _, m := range g.members[1:] {
		if m.Value > item.Value {
			item.Value = m.Value
		}
		item.Condition = appendDistinct(item.Condition, m.Condition)
		item.Details = appendDistinct(item.Details, m.Details)

		item.Confidence += confidenceStep
		if item.Confidence > confidenceCap {
			item.Confidence = confidenceCap
		}

		if !containsString(item.AppearsIn, m.ImageID) {
			item.AppearsIn = append(item.AppearsIn, m.ImageID)
		}
	}

	return item
}

// appendDistinct unions free-text fields: an incoming string already present
// as a substring is dropped, anything new is appended semicolon-separated.
func appendDistinct(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if strings.Contains(existing, incoming) {
		return existing
	}
	return existing + "; " + incoming
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
