package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateEmpty(t *testing.T) {
	assert.Nil(t, Consolidate(nil, SourceImage, false))
	assert.Nil(t, Consolidate(nil, SourceImage, true))
}

func TestConsolidateSingleItemTotals(t *testing.T) {
	items := []*ConsolidatedItem{
		{Name: "Dining Chair", Condition: "good", Value: 10, Confidence: 0.8, AppearsIn: []string{"image_0"}},
		{Name: "Dining Chair", Condition: "scuffed legs", Value: 20, Confidence: 0.9, AppearsIn: []string{"image_1"}},
		{Name: "Dining Chair", Condition: "good", Value: 30, Confidence: 0.85, AppearsIn: []string{"image_2"}},
	}

	products := Consolidate(items, SourceImage, true)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, 60.0, p.TotalValue)
	assert.Equal(t, SourceConsolidated, p.Source)

	// Highest-confidence item leads; the rest ride along as detail rows.
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
	assert.Equal(t, 20.0, p.Value)
	assert.Equal(t, "scuffed legs; good", p.Condition)
	assert.Equal(t, 3, p.OriginalItems)
	require.Len(t, p.ItemDetails, 3)
	assert.InDelta(t, 0.9, p.ItemDetails[0].Confidence, 1e-9)
	assert.Equal(t, []string{"image_1", "image_2", "image_0"}, p.AppearsIn)
}

func TestConsolidateItemizedBucketsByName(t *testing.T) {
	items := []*ConsolidatedItem{
		{Name: "Desk Lamp", Condition: "good", Value: 20, Confidence: 0.8, AppearsIn: []string{"image_0"}},
		{Name: "desk lamp", Condition: "good", Value: 25, Confidence: 0.85, AppearsIn: []string{"image_1"}},
		{Name: "Coffee Table", Condition: "worn", Value: 60, Confidence: 0.95, AppearsIn: []string{"image_1"}},
	}

	products := Consolidate(items, SourceVideoFrame, false)
	require.Len(t, products, 2)

	// Sorted by confidence, descending.
	table := products[0]
	assert.Equal(t, "Coffee Table", table.Name)
	assert.Equal(t, 1, table.Instances)
	assert.Equal(t, 60.0, table.TotalValue)
	assert.Equal(t, SourceVideoFrame, table.Source)

	lamp := products[1]
	assert.Equal(t, "Desk Lamp", lamp.Name)
	assert.Equal(t, 2, lamp.Instances)
	assert.Equal(t, 45.0, lamp.TotalValue)
	assert.Equal(t, 25.0, lamp.Value)
	assert.InDelta(t, 0.85, lamp.Confidence, 1e-9)
	assert.Equal(t, []string{"image_0", "image_1"}, lamp.AppearsIn)
}

func TestConsolidateItemizedStableOrderOnTies(t *testing.T) {
	items := []*ConsolidatedItem{
		{Name: "Desk Lamp", Value: 20, Confidence: 0.8},
		{Name: "Coffee Table", Value: 60, Confidence: 0.8},
	}

	products := Consolidate(items, SourceImage, false)
	require.Len(t, products, 2)
	assert.Equal(t, "Desk Lamp", products[0].Name)
	assert.Equal(t, "Coffee Table", products[1].Name)
}
