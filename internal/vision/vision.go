package vision

import (
	"context"
	"errors"
)

// RawDetection is a single item identified by the vision model in one image.
type RawDetection struct {
	Name           string  `json:"name"`
	Condition      string  `json:"condition"`
	Details        string  `json:"details,omitempty"`
	Position       string  `json:"position,omitempty"`
	Color          string  `json:"color,omitempty"`
	Background     string  `json:"background,omitempty"`
	EstimatedValue float64 `json:"estimated_value,omitempty"`
}

// AnnotatedDetection is a RawDetection stamped with acquisition context.
// ImageID is unique per source image within one appraisal request; two
// detections with the same ImageID are presumed to be distinct objects.
type AnnotatedDetection struct {
	Name       string  `json:"name"`
	Condition  string  `json:"condition"`
	Details    string  `json:"details,omitempty"`
	ImageID    string  `json:"image_id"`
	ImageIndex int     `json:"image_index"`
	Position   string  `json:"position"`
	Color      string  `json:"color"`
	Background string  `json:"background"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Usage contains token usage and cost information for one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// DetectionResult contains the raw detections from one vision call.
type DetectionResult struct {
	Items []RawDetection
	Usage Usage
}

// DetectOptions carries per-call context for the vision model.
type DetectOptions struct {
	// PriorItems is a list of "name - details" strings for items already
	// identified in earlier images of the same request. The model is told
	// not to repeat them.
	PriorItems []string
	// Language is the preferred output language (e.g. "en", "fi").
	Language string
	// Currency is the currency for estimated values (e.g. "EUR").
	Currency string
}

// Analyzer can analyze an image and return candidate item detections.
type Analyzer interface {
	// DetectItems identifies physical items visible in the image.
	DetectItems(ctx context.Context, imageData []byte, opts DetectOptions) (*DetectionResult, error)
}

// QueryGenerator can produce an optimized market search query for an item.
type QueryGenerator interface {
	GeneratePriceQuery(ctx context.Context, name, details string) (string, error)
}

// Collaborator failure taxonomy. Empty and malformed responses are treated
// as likely-transient (model output variance is common) and retried with
// the same budget as network errors.
var (
	ErrEmptyResponse       = errors.New("empty response from vision model")
	ErrMalformedResponse   = errors.New("malformed response from vision model")
	ErrCollaboratorFailure = errors.New("vision collaborator failed")
)
