package frames

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Reduce filters an ordered list of frame files down to the visually unique
// subset, preserving order. A frame is kept iff its perceptual hash has not
// been seen earlier in the list; duplicates are deleted from disk
// immediately, best-effort. The seen-hash set is local to this call, so
// concurrent requests never share reduction state.
//
// A frame that cannot be read or decoded is kept: it cannot be proven to be
// a duplicate, and the detection adapter will surface a real error if the
// file is actually unusable.
func Reduce(framePaths []string) []string {
	seen := make(map[string]bool, len(framePaths))
	unique := make([]string, 0, len(framePaths))

	for _, path := range framePaths {
		hash, err := AverageHashFile(path)
		if err != nil {
			log.Warn().Str("frame", path).Err(err).Msg("failed to hash frame, keeping it")
			unique = append(unique, path)
			continue
		}

		if seen[hash] {
			log.Debug().Str("frame", path).Str("hash", hash).Msg("dropping duplicate frame")
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Str("frame", path).Err(err).Msg("failed to delete duplicate frame")
			}
			continue
		}

		seen[hash] = true
		unique = append(unique, path)
	}

	if dropped := len(framePaths) - len(unique); dropped > 0 {
		log.Info().Int("total", len(framePaths)).Int("dropped", dropped).Msg("reduced duplicate frames")
	}

	return unique
}
