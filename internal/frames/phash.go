// Package frames extracts video frames and discards visually duplicate ones
// before any detection call is made.
package frames

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
)

const hashSize = 8

// AverageHash computes an 8x8 grayscale average-threshold perceptual hash:
// the image is downscaled to 8x8, converted to gray, and each pixel yields
// one bit depending on whether it is above the mean brightness. The 64 bits
// are returned as a 16-character hex string.
//
// Equality is exact: a 1-bit perceptual difference produces a different
// hash. That only catches near-identical frames (a paused or static shot),
// which is the intended cost tradeoff.
func AverageHash(r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	gray := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), src, src.Bounds(), draw.Src, nil)

	var sum uint64
	for _, p := range gray.Pix {
		sum += uint64(p)
	}
	mean := uint8(sum / uint64(len(gray.Pix)))

	var bits uint64
	for _, p := range gray.Pix {
		bits <<= 1
		if p >= mean {
			bits |= 1
		}
	}

	return fmt.Sprintf("%016x", bits), nil
}

// AverageHashFile computes the perceptual hash of an image file on disk.
func AverageHashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	return AverageHash(f)
}
