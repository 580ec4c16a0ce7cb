package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	defaultMetadata   = "unknown"
	defaultConfidence = 0.8
)

// PriorItems accumulates short descriptions of items already identified
// within one appraisal request. It is scoped to a single request and passed
// through the pipeline explicitly, never shared across requests. Safe for
// use from the bounded detection fan-out: images within one batch read the
// same snapshot, and every batch sees all items from earlier batches.
type PriorItems struct {
	mu           sync.Mutex
	descriptions []string
}

// Add records an identified item so later detection calls can be told not
// to repeat it. Empty names are ignored.
func (p *PriorItems) Add(name, details string) {
	if name == "" {
		return
	}
	desc := name
	if details != "" {
		desc = fmt.Sprintf("%s - %s", name, details)
	}
	p.mu.Lock()
	p.descriptions = append(p.descriptions, desc)
	p.mu.Unlock()
}

// Descriptions returns a copy of the accumulated "name - details" strings
// in discovery order.
func (p *PriorItems) Descriptions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.descriptions...)
}

// Adapter invokes the vision analyzer per image, retries transient failures
// and stamps every raw detection with acquisition context.
type Adapter struct {
	analyzer Analyzer
}

// NewAdapter creates a detection adapter around the given analyzer.
func NewAdapter(analyzer Analyzer) *Adapter {
	return &Adapter{analyzer: analyzer}
}

// AdapterOptions control one Detect call.
type AdapterOptions struct {
	Language string
	Currency string
	// Fallback degrades exhausted retries to an empty detection list
	// instead of failing the image.
	Fallback bool
}

// Detect analyzes one image and returns annotated detections. The prior
// accumulator is read to build the model's "do not repeat" context and
// updated with every newly detected item, so it must be advanced in image
// order between calls.
func (a *Adapter) Detect(ctx context.Context, imageData []byte, imageIndex int, prior *PriorItems, adapterOpts AdapterOptions) ([]AnnotatedDetection, error) {
	opts := DetectOptions{
		Language: adapterOpts.Language,
		Currency: adapterOpts.Currency,
	}
	if prior != nil {
		opts.PriorItems = prior.Descriptions()
	}

	var result *DetectionResult
	operation := fmt.Sprintf("detect image %d", imageIndex)
	err := withRetry(ctx, operation, func(ctx context.Context) error {
		var callErr error
		result, callErr = a.analyzer.DetectItems(ctx, imageData, opts)
		return callErr
	})
	if err != nil {
		if adapterOpts.Fallback && errors.Is(err, ErrCollaboratorFailure) {
			log.Warn().Int("imageIndex", imageIndex).Err(err).Msg("detection failed, fallback mode returns no items")
			return nil, nil
		}
		return nil, err
	}

	detections := make([]AnnotatedDetection, 0, len(result.Items))
	for _, raw := range result.Items {
		det := annotate(raw, imageIndex)
		detections = append(detections, det)
		if prior != nil {
			prior.Add(det.Name, det.Details)
		}
	}

	return detections, nil
}

// annotate wraps a raw detection with image identity and metadata defaults.
func annotate(raw RawDetection, imageIndex int) AnnotatedDetection {
	det := AnnotatedDetection{
		Name:       raw.Name,
		Condition:  raw.Condition,
		Details:    raw.Details,
		ImageID:    ImageID(imageIndex),
		ImageIndex: imageIndex,
		Position:   raw.Position,
		Color:      raw.Color,
		Background: raw.Background,
		Value:      raw.EstimatedValue,
		Confidence: defaultConfidence,
	}
	if det.Position == "" {
		det.Position = defaultMetadata
	}
	if det.Color == "" {
		det.Color = defaultMetadata
	}
	if det.Background == "" {
		det.Background = defaultMetadata
	}
	return det
}

// ImageID derives the per-request image identifier for a 0-based index.
func ImageID(imageIndex int) string {
	return fmt.Sprintf("image_%d", imageIndex)
}
