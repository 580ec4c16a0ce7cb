// appraise runs one appraisal over local image files or a video and prints
// the resulting report as JSON. Useful for trying the pipeline without the
// HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"appraisald/config"
	"appraisald/internal/pipeline"
	"appraisald/internal/vision"
)

func main() {
	language := flag.String("language", "en", "report language")
	currency := flag.String("currency", "EUR", "report currency")
	singleItem := flag.Bool("single-item", false, "treat all photos as one product")
	video := flag.String("video", "", "video file to extract frames from")
	fallback := flag.Bool("fallback", false, "degrade failed detections to empty results")
	flag.Parse()

	if flag.NArg() == 0 && *video == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <image-path>...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	config.LoadEnvFile()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY is not set")
	}

	var images [][]byte
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Str("path", path).Err(err).Msg("failed to read image")
		}
		images = append(images, data)
	}

	ctx := context.Background()

	analyzer, err := vision.NewGeminiAnalyzer(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini vision analyzer")
	}

	// No price research, rendering or persistence: just detect and dedup.
	pipe := pipeline.New(vision.NewAdapter(analyzer), nil, nil, nil, nil)

	result, err := pipe.Run(ctx, &pipeline.Request{
		Images:    images,
		VideoPath: *video,
		Options: pipeline.Options{
			Language:   *language,
			Currency:   *currency,
			SingleItem: *singleItem,
			Fallback:   *fallback,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("appraisal failed")
	}

	out, err := json.MarshalIndent(result.Record.Products, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode report")
	}
	fmt.Println(string(out))
	fmt.Printf("\nTotal value: %.2f %s\n", result.Record.TotalValue, result.Record.Currency)
	if len(result.FailedImages) > 0 {
		fmt.Printf("Failed images: %v\n", result.FailedImages)
	}
}
