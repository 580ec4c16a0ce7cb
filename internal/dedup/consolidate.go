package dedup

import (
	"sort"
)

// Reporting sources for a ReportableProduct.
const (
	SourceImage        = "image"
	SourceVideoFrame   = "video_frame"
	SourceManual       = "manual"
	SourceConsolidated = "consolidated"
)

// ReportableProduct is the reporting-granularity view of consolidated items.
// In itemized mode each product is a name bucket; in single-item mode the
// whole request collapses into one product carrying the folded items for
// traceability.
type ReportableProduct struct {
	Name       string   `json:"name"`
	Condition  string   `json:"condition"`
	Details    string   `json:"details,omitempty"`
	Value      float64  `json:"value"`
	Confidence float64  `json:"confidence"`
	AppearsIn  []string `json:"appears_in,omitempty"`
	Source     string   `json:"source"`
	Filename   string   `json:"filename,omitempty"`

	// Instances is the number of consolidated items folded into this name
	// bucket (itemized mode).
	Instances  int     `json:"instances"`
	TotalValue float64 `json:"total_value"`

	// Single-item mode traceability.
	OriginalItems int                 `json:"original_items,omitempty"`
	ItemDetails   []*ConsolidatedItem `json:"item_details,omitempty"`
}

// Consolidate turns already-deduplicated items into the reporting view the
// caller asked for. This stage decides granularity only; cross-image
// deduplication has already happened in Merge.
//
// Itemized mode groups items by normalized name (exact match, not the
// scorer) and sorts buckets by highest confidence, descending. Single-item
// mode rolls every item in the request into exactly one product whose total
// value is the sum across all items.
func Consolidate(items []*ConsolidatedItem, source string, singleItem bool) []*ReportableProduct {
	if len(items) == 0 {
		return nil
	}
	if singleItem {
		return []*ReportableProduct{consolidateSingle(items)}
	}
	return consolidateItemized(items, source)
}

func consolidateItemized(items []*ConsolidatedItem, source string) []*ReportableProduct {
	var order []string
	buckets := make(map[string]*ReportableProduct)

	for _, item := range items {
		key := normalizeName(item.Name)
		p, ok := buckets[key]
		if !ok {
			p = &ReportableProduct{
				Name:       item.Name,
				Condition:  item.Condition,
				Details:    item.Details,
				Value:      item.Value,
				Confidence: item.Confidence,
				AppearsIn:  append([]string(nil), item.AppearsIn...),
				Source:     source,
			}
			buckets[key] = p
			order = append(order, key)
		}

		p.Instances++
		p.TotalValue += item.Value
		if item.Confidence > p.Confidence {
			p.Confidence = item.Confidence
		}
		if item.Value > p.Value {
			p.Value = item.Value
		}
		for _, id := range item.AppearsIn {
			if !containsString(p.AppearsIn, id) {
				p.AppearsIn = append(p.AppearsIn, id)
			}
		}
	}

	products := make([]*ReportableProduct, 0, len(order))
	for _, key := range order {
		products = append(products, buckets[key])
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Confidence > products[j].Confidence
	})
	return products
}

// consolidateSingle emits one product: the highest-confidence item is the
// main entry, total value sums every item and the combined condition unions
// all distinct condition strings.
func consolidateSingle(items []*ConsolidatedItem) *ReportableProduct {
	sorted := append([]*ConsolidatedItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	main := sorted[0]
	product := &ReportableProduct{
		Name:          main.Name,
		Condition:     main.Condition,
		Details:       main.Details,
		Value:         main.Value,
		Confidence:    main.Confidence,
		AppearsIn:     append([]string(nil), main.AppearsIn...),
		Source:        SourceConsolidated,
		Instances:     1,
		OriginalItems: len(sorted),
		ItemDetails:   sorted,
	}

	for _, item := range sorted {
		product.TotalValue += item.Value
	}
	for _, item := range sorted[1:] {
		product.Condition = appendDistinct(product.Condition, item.Condition)
		for _, id := range item.AppearsIn {
			if !containsString(product.AppearsIn, id) {
				product.AppearsIn = append(product.AppearsIn, id)
			}
		}
	}

	return product
}

// ManualItem is an item the user entered by hand, bypassing detection.
type ManualItem struct {
	Name      string  `json:"name"`
	Condition string  `json:"condition"`
	Details   string  `json:"details,omitempty"`
	Value     float64 `json:"value"`
}

// MergeManual deduplicates manually entered items with the metadata-free
// scorer variant (manual items carry no position or color context) and
// returns them as consolidated items. Leader-based, same semantics as Merge.
func MergeManual(items []ManualItem, confidence float64) []*ConsolidatedItem {
	var out []*ConsolidatedItem

	for _, item := range items {
		var target *ConsolidatedItem
		for _, existing := range out {
			if NameSimilar(item.Name, item.Details, existing.Name, existing.Details) {
				target = existing
				break
			}
		}
		if target == nil {
			out = append(out, &ConsolidatedItem{
				Name:       item.Name,
				Condition:  item.Condition,
				Details:    item.Details,
				Value:      item.Value,
				Confidence: confidence,
			})
			continue
		}

		if item.Value > target.Value {
			target.Value = item.Value
		}
		target.Condition = appendDistinct(target.Condition, item.Condition)
		target.Details = appendDistinct(target.Details, item.Details)
		target.Confidence += confidenceStep
		if target.Confidence > confidenceCap {
			target.Confidence = confidenceCap
		}
	}

	return out
}
