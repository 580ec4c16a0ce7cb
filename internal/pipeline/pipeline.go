// Package pipeline orchestrates one appraisal request end to end: frame
// reduction, per-image detection, cross-image deduplication, optional
// price research, consolidation, rendering and persistence. All working
// state is scoped to the request; nothing leaks between requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"appraisald/internal/dedup"
	"appraisald/internal/frames"
	"appraisald/internal/pricing"
	"appraisald/internal/report"
	"appraisald/internal/storage"
	"appraisald/internal/vision"
)

const (
	// detectBatchSize bounds concurrent vision calls: batch N+1 does not
	// start until every call in batch N has settled.
	detectBatchSize = 3
	// manualConfidence is assigned to user-entered items; the user asserts
	// they exist, but condition and value are still unverified claims.
	manualConfidence = 0.9
)

// Options are the caller-controlled knobs for one appraisal.
type Options struct {
	Language      string `json:"language"`
	Currency      string `json:"currency"`
	SingleItem    bool   `json:"single_item"`
	PriceResearch bool   `json:"price_research"`
	// Fallback degrades failed detection calls to empty results instead of
	// surfacing a collaborator failure.
	Fallback bool `json:"fallback"`
}

// Request is one report-generation job.
type Request struct {
	ID          string
	Images      [][]byte
	VideoPath   string
	ManualItems []dedup.ManualItem
	Options     Options
}

// Result is what the pipeline hands back to the transport layer.
type Result struct {
	Record *storage.AppraisalRecord
	// FailedImages lists 0-based indices of images whose detection failed
	// after retries; their absence does not void the rest of the request.
	FailedImages []int
}

// Pipeline wires the appraisal stages together.
type Pipeline struct {
	adapter    *vision.Adapter
	queryGen   vision.QueryGenerator
	researcher pricing.Researcher
	renderer   report.Renderer
	store      storage.Store
	maxFrames  int
}

// New creates a pipeline. queryGen, researcher and store may be nil: price
// research and persistence are then skipped.
func New(adapter *vision.Adapter, queryGen vision.QueryGenerator, researcher pricing.Researcher, renderer report.Renderer, store storage.Store) *Pipeline {
	return &Pipeline{
		adapter:    adapter,
		queryGen:   queryGen,
		researcher: researcher,
		renderer:   renderer,
		store:      store,
		maxFrames:  frames.DefaultMaxFrames,
	}
}

// Run executes one appraisal request.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if len(req.Images) == 0 && req.VideoPath == "" && len(req.ManualItems) == 0 {
		return nil, fmt.Errorf("request %s has no images, video or manual items", req.ID)
	}

	source := dedup.SourceImage
	images := req.Images

	if req.VideoPath != "" {
		source = dedup.SourceVideoFrame
		frameData, cleanup, err := p.loadVideoFrames(req.VideoPath)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		images = append(images, frameData...)
	}
	if len(images) == 0 && len(req.ManualItems) > 0 {
		source = dedup.SourceManual
	}

	detections, failed, err := p.detectAll(ctx, req.ID, images, req.Options)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 && len(req.ManualItems) == 0 && !req.Options.Fallback {
		return nil, fmt.Errorf("%w: no image produced any detections", vision.ErrCollaboratorFailure)
	}

	items := dedup.Merge(detections)
	items = append(items, dedup.MergeManual(req.ManualItems, manualConfidence)...)

	if req.Options.PriceResearch && p.researcher != nil {
		p.enrichPrices(ctx, items, req.Options)
	}

	products := dedup.Consolidate(items, source, req.Options.SingleItem)

	record := &storage.AppraisalRecord{
		ID:         req.ID,
		CreatedAt:  time.Now(),
		Language:   req.Options.Language,
		Currency:   req.Options.Currency,
		SingleItem: req.Options.SingleItem,
		Status:     storage.StatusComplete,
		TotalValue: totalValue(products),
		Products:   products,
	}

	if p.renderer != nil {
		filePath, fileName, err := p.renderer.Render(ctx, &report.Data{
			ReportID:   record.ID,
			CreatedAt:  record.CreatedAt,
			Language:   record.Language,
			Currency:   record.Currency,
			SingleItem: record.SingleItem,
			Products:   products,
			TotalValue: record.TotalValue,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render report %s: %w", record.ID, err)
		}
		record.FilePath = filePath
		record.FileName = fileName
	}

	if p.store != nil {
		if err := p.store.SaveAppraisal(record); err != nil {
			return nil, fmt.Errorf("failed to persist report %s: %w", record.ID, err)
		}
	}

	log.Info().
		Str("reportID", record.ID).
		Int("detections", len(detections)).
		Int("items", len(items)).
		Int("products", len(products)).
		Int("failedImages", len(failed)).
		Float64("totalValue", record.TotalValue).
		Msg("appraisal complete")

	return &Result{Record: record, FailedImages: failed}, nil
}

// loadVideoFrames extracts frames from the video, drops perceptual
// duplicates, and reads the survivors into memory. The returned cleanup
// removes the frame files and their directory.
func (p *Pipeline) loadVideoFrames(videoPath string) ([][]byte, func(), error) {
	frameDir, err := os.MkdirTemp("", "appraisal-frames-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create frame dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(frameDir); err != nil {
			log.Warn().Str("dir", frameDir).Err(err).Msg("failed to remove frame dir")
		}
	}

	extracted, err := frames.ExtractFrames(videoPath, frameDir, p.maxFrames)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	unique := frames.Reduce(extracted)

	var data [][]byte
	for _, path := range unique {
		b, err := os.ReadFile(path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to read frame %s: %w", path, err)
		}
		data = append(data, b)
	}
	return data, cleanup, nil
}

// detectAll runs detection over the images in fixed-size batches. The
// prior-items accumulator advances between batches so every batch's prompts
// know about everything found earlier. A failed image is logged and skipped;
// the rest of the request stays usable.
func (p *Pipeline) detectAll(ctx context.Context, requestID string, images [][]byte, opts Options) ([]*vision.AnnotatedDetection, []int, error) {
	prior := &vision.PriorItems{}
	perImage := make([][]vision.AnnotatedDetection, len(images))
	errsByImage := make([]error, len(images))

	for start := 0; start < len(images); start += detectBatchSize {
		end := start + detectBatchSize
		if end > len(images) {
			end = len(images)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				dets, err := p.adapter.Detect(gctx, images[i], i, prior, vision.AdapterOptions{
					Language: opts.Language,
					Currency: opts.Currency,
					Fallback: opts.Fallback,
				})
				if err != nil {
					// Partial-failure tolerance: keep the error but do not
					// cancel sibling detections.
					errsByImage[i] = err
					log.Error().Str("requestID", requestID).Int("imageIndex", i).Err(err).Msg("image detection failed")
					return nil
				}
				perImage[i] = dets
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	var detections []*vision.AnnotatedDetection
	var failed []int
	for i := range perImage {
		if errsByImage[i] != nil {
			failed = append(failed, i)
			continue
		}
		for j := range perImage[i] {
			detections = append(detections, &perImage[i][j])
		}
	}

	// Every image failing with a genuine collaborator failure is a request
	// failure unless the caller opted into fallback mode.
	if len(images) > 0 && len(failed) == len(images) && !opts.Fallback {
		return nil, nil, fmt.Errorf("all %d images failed detection: %w", len(images), errors.Join(errsByImage...))
	}

	return detections, failed, nil
}

// enrichPrices replaces AI-estimated values with researched market averages
// where research finds anything. Lookups are sequential and best-effort: a
// failed or empty lookup keeps the model's estimate.
func (p *Pipeline) enrichPrices(ctx context.Context, items []*dedup.ConsolidatedItem, opts Options) {
	for _, item := range items {
		query := item.Name
		if p.queryGen != nil {
			if q, err := p.queryGen.GeneratePriceQuery(ctx, item.Name, item.Details); err != nil {
				log.Warn().Str("item", item.Name).Err(err).Msg("price query generation failed, using item name")
			} else if q != "" {
				query = q
			}
		}

		stats, err := p.researcher.Lookup(ctx, query, opts.Language, opts.Currency)
		if err != nil {
			log.Warn().Str("item", item.Name).Err(err).Msg("price research failed, keeping AI estimate")
			continue
		}
		if stats.Empty() {
			continue
		}
		log.Debug().
			Str("item", item.Name).
			Float64("aiEstimate", item.Value).
			Float64("marketAverage", stats.AveragePrice).
			Msg("replacing AI estimate with market average")
		item.Value = stats.AveragePrice
	}
}

func totalValue(products []*dedup.ReportableProduct) float64 {
	var total float64
	for _, p := range products {
		total += p.TotalValue
	}
	return total
}
