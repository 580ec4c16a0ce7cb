package vision

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// DetectionCache persists vision results keyed by request hash. Implemented
// by the storage package.
type DetectionCache interface {
	GetDetectionCache(hash string) ([]byte, error)
	SetDetectionCache(hash string, payload []byte) error
}

// CachedAnalyzer wraps an Analyzer with persistent caching. Repeated
// analysis of the same image with the same context (common when a report is
// regenerated) skips the model call entirely.
type CachedAnalyzer struct {
	inner Analyzer
	cache DetectionCache
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, cache DetectionCache) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, cache: cache}
}

// hashRequest hashes the image bytes together with the call options, since
// the prior-items context and language change what the model returns.
// Length prefixes prevent boundary collisions.
func hashRequest(imageData []byte, opts DetectOptions) string {
	h := sha256.New()
	binary.Write(h, binary.LittleEndian, int64(len(imageData)))
	h.Write(imageData)
	h.Write([]byte(opts.Language))
	h.Write([]byte(opts.Currency))
	h.Write([]byte(strings.Join(opts.PriorItems, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// DetectItems implements the Analyzer interface with caching.
func (c *CachedAnalyzer) DetectItems(ctx context.Context, imageData []byte, opts DetectOptions) (*DetectionResult, error) {
	hash := hashRequest(imageData, opts)

	if c.cache != nil {
		payload, err := c.cache.GetDetectionCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check detection cache")
		} else if payload != nil {
			var items []RawDetection
			if jsonErr := json.Unmarshal(payload, &items); jsonErr == nil {
				log.Debug().Str("hash", hash[:16]).Msg("detection cache hit")
				return &DetectionResult{Items: items}, nil
			} else {
				log.Warn().Err(jsonErr).Str("hash", hash[:16]).Msg("discarding corrupt detection cache entry")
			}
		}
	}

	result, err := c.inner.DetectItems(ctx, imageData, opts)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if payload, err := json.Marshal(result.Items); err == nil {
			if err := c.cache.SetDetectionCache(hash, payload); err != nil {
				log.Warn().Err(err).Msg("failed to cache detection result")
			}
		}
	}

	return result, nil
}
