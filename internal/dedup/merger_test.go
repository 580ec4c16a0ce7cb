package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisald/internal/vision"
)

func detV(name, imageID, color, details, condition string, value, confidence float64) *vision.AnnotatedDetection {
	return &vision.AnnotatedDetection{
		Name:       name,
		ImageID:    imageID,
		Color:      color,
		Details:    details,
		Condition:  condition,
		Value:      value,
		Confidence: confidence,
	}
}

func TestMergeGroupCountNeverExceedsInput(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Desk Lamp", "image_0", "black", "", "good", 20, 0.8),
		detV("Desk Lamp", "image_1", "black", "", "good", 25, 0.8),
		detV("Coffee Table", "image_1", "brown", "", "worn", 60, 0.8),
	}

	items := Merge(detections)
	assert.LessOrEqual(t, len(items), len(detections))
	assert.Len(t, items, 2)
}

func TestMergeAllDistinctKeepsEveryDetection(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Desk Lamp", "image_0", "black", "", "good", 20, 0.8),
		detV("Coffee Table", "image_1", "brown", "", "worn", 60, 0.8),
		detV("Bookshelf", "image_2", "white", "", "good", 45, 0.8),
	}

	items := Merge(detections)
	require.Len(t, items, 3)
	assert.Equal(t, "Desk Lamp", items[0].Name)
	assert.Equal(t, "Coffee Table", items[1].Name)
	assert.Equal(t, "Bookshelf", items[2].Name)
}

func TestMergeValueKeepsMaxNeverAverage(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Desk Lamp", "image_0", "black", "", "good", 10, 0.8),
		detV("Desk Lamp", "image_1", "black", "", "good", 30, 0.8),
		detV("Desk Lamp", "image_2", "black", "", "good", 20, 0.8),
	}

	items := Merge(detections)
	require.Len(t, items, 1)
	assert.Equal(t, 30.0, items[0].Value)
}

func TestMergeConfidenceClimbsAndCaps(t *testing.T) {
	t.Run("two corroborating members", func(t *testing.T) {
		detections := []*vision.AnnotatedDetection{
			detV("Desk Lamp", "image_0", "black", "", "good", 20, 0.8),
			detV("Desk Lamp", "image_1", "black", "", "good", 20, 0.8),
			detV("Desk Lamp", "image_2", "black", "", "good", 20, 0.8),
		}

		items := Merge(detections)
		require.Len(t, items, 1)
		assert.GreaterOrEqual(t, items[0].Confidence, 0.8)
		assert.InDelta(t, 0.9, items[0].Confidence, 1e-9)
	})

	t.Run("capped at 0.95", func(t *testing.T) {
		var detections []*vision.AnnotatedDetection
		for i := 0; i < 6; i++ {
			detections = append(detections, detV("Desk Lamp", vision.ImageID(i), "black", "", "good", 20, 0.8))
		}

		items := Merge(detections)
		require.Len(t, items, 1)
		assert.InDelta(t, 0.95, items[0].Confidence, 1e-9)
	})
}

func TestMergeUnionsConditionAndAppearsIn(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Desk Lamp", "image_0", "black", "small dent on base", "good", 20, 0.8),
		detV("Desk Lamp", "image_1", "black", "small dent on base", "good", 20, 0.8),
		detV("Desk Lamp", "image_2", "black", "cord frayed", "worn cord", 20, 0.8),
	}

	items := Merge(detections)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "good; worn cord", item.Condition)
	assert.Equal(t, "small dent on base; cord frayed", item.Details)
	assert.Equal(t, []string{"image_0", "image_1", "image_2"}, item.AppearsIn)
}

// Three sightings of a car across two photos. The partial name from image_2
// merges into the image_1 group because the substring match is backed by a
// color match; a same-name detection always joins regardless of color.
func TestMergeCamryScenario(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Toyota Camry", "image_1", "blue", "", "good", 18000, 0.8),
		detV("2018 Toyota Camry Sedan", "image_2", "blue", "blue sedan, 40000 miles", "good", 19500, 0.8),
		detV("Toyota Camry", "image_2", "red", "", "good", 17000, 0.8),
	}

	items := Merge(detections)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Toyota Camry", item.Name)
	assert.Equal(t, 19500.0, item.Value)
	assert.Equal(t, []string{"image_1", "image_2"}, item.AppearsIn)
}

// A substring-only sighting with a color mismatch scores 0.3 against the
// representative, below the 0.5 accept threshold, and starts its own group.
func TestMergeColorMismatchSplitsPartialName(t *testing.T) {
	detections := []*vision.AnnotatedDetection{
		detV("Toyota Camry", "image_1", "blue", "", "good", 18000, 0.8),
		detV("2018 Toyota Camry Sedan", "image_2", "red", "", "good", 19500, 0.8),
	}

	items := Merge(detections)
	require.Len(t, items, 2)
	assert.Equal(t, "Toyota Camry", items[0].Name)
	assert.Equal(t, "2018 Toyota Camry Sedan", items[1].Name)
}

// Comparison is always against the fixed representative, never against later
// members. C matches member B but not representative A, so C starts a new
// group; the chain does not collapse transitively. Pinned behavior.
func TestMergeIsNotTransitive(t *testing.T) {
	a := detV("Floor Lamp", "image_0", "blue", "", "good", 40, 0.8)
	b := detV("Lamp", "image_1", "blue", "", "good", 35, 0.8)
	c := detV("Lamp", "image_2", "red", "", "good", 30, 0.8)

	require.True(t, Similar(b, a))
	require.True(t, Similar(c, b))
	require.False(t, Similar(c, a))

	items := Merge([]*vision.AnnotatedDetection{a, b, c})
	require.Len(t, items, 2)
	assert.Equal(t, "Floor Lamp", items[0].Name)
	assert.Equal(t, []string{"image_0", "image_1"}, items[0].AppearsIn)
	assert.Equal(t, "Lamp", items[1].Name)
	assert.Equal(t, []string{"image_2"}, items[1].AppearsIn)
}

func TestMergeManual(t *testing.T) {
	items := MergeManual([]ManualItem{
		{Name: "Camry", Condition: "good", Value: 17000},
		{Name: "Toyota Camry", Condition: "minor scratches", Details: "2018 sedan", Value: 18500},
		{Name: "Desk Lamp", Condition: "good", Value: 20},
	}, 0.9)

	require.Len(t, items, 2)

	car := items[0]
	assert.Equal(t, "Camry", car.Name)
	assert.Equal(t, 18500.0, car.Value)
	assert.Equal(t, "good; minor scratches", car.Condition)
	assert.InDelta(t, 0.95, car.Confidence, 1e-9)

	lamp := items[1]
	assert.Equal(t, "Desk Lamp", lamp.Name)
	assert.InDelta(t, 0.9, lamp.Confidence, 1e-9)
}

func TestMergeManualEmpty(t *testing.T) {
	assert.Empty(t, MergeManual(nil, 0.9))
}
