package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	geminiModel     = "gemini-3-flash-preview"
	geminiLiteModel = "gemini-2.5-flash-lite"
)

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion      = 0.50
	geminiOutputPricePerMillion     = 3.00
	geminiLiteInputPricePerMillion  = 0.075
	geminiLiteOutputPricePerMillion = 0.30
)

var detectItemsPrompt = dedent.Dedent(`
	Analyze this image and identify every distinct physical item visible in it,
	for an asset valuation appraisal.

	Respond in JSON format with an array of objects, one per visible item, each
	with these fields:
	- name: human-readable item label, with brand and model if identifiable (in %s)
	- condition: free-text condition description (e.g. "good, light scratches on lid")
	- details: specs, serial numbers or notable features, empty string if none
	- position: coarse position in the image, one of: top-left, top, top-right, left,
	  center, right, bottom-left, bottom, bottom-right
	- color: the dominant perceived color of the item
	- background: short description of the scene behind the item
	- estimated_value: estimated market value in %s as a number, 0 if unknown

	Example response:
	[{"name": "Logitech G Pro X Superlight wireless mouse", "condition": "good, minor wear on buttons", "details": "Hero 25K sensor", "position": "center", "color": "black", "background": "wooden desk", "estimated_value": 60}]

	%sRespond ONLY with the JSON array, no markdown or other text.
`)

var priorItemsSection = dedent.Dedent(`
	The following items were already identified in earlier images of the same
	scene. Do NOT repeat them unless this image clearly shows a different
	physical instance:
	%s

`)

var priceQueryPrompt = dedent.Dedent(`
	Generate an optimized search query to find similar items for price comparison
	on a marketplace.

	Name: %s
	Details: %s

	Extract the core product identifier that would match similar items:
	- For electronics: model number/name (e.g., "RTX 3070 Ti", "iPhone 13 Pro")
	- For furniture: type and key characteristics (e.g., "leather sofa")
	- For vehicles: make, model and year (e.g., "Toyota Camry 2018")

	Do NOT include condition descriptors, marketing terms or generic category words.

	Respond with ONLY the search query (1-5 words), no quotes or explanation.
`)

// GeminiAnalyzer uses Google's Gemini API for item detection and query generation.
type GeminiAnalyzer struct {
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey string) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	// Keep request bursts under the API's free-tier rate limits.
	return &GeminiAnalyzer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 3),
	}, nil
}

// DetectItems implements the Analyzer interface using Gemini.
func (g *GeminiAnalyzer) DetectItems(ctx context.Context, imageData []byte, opts DetectOptions) (*DetectionResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	language := opts.Language
	if language == "" {
		language = "English"
	}
	currency := opts.Currency
	if currency == "" {
		currency = "EUR"
	}

	priorSection := ""
	if len(opts.PriorItems) > 0 {
		var lines []string
		for _, item := range opts.PriorItems {
			lines = append(lines, "- "+item)
		}
		priorSection = fmt.Sprintf(priorItemsSection, strings.Join(lines, "\n"))
	}

	prompt := fmt.Sprintf(detectItemsPrompt, language, currency, priorSection)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		{InlineData: &genai.Blob{Data: imageData, MIMEType: "image/jpeg"}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	items, err := parseDetections(result.Text())
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	log.Info().
		Str("model", geminiModel).
		Int("itemCount", len(items)).
		Int("priorItems", len(opts.PriorItems)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("vision detection llm call")

	return &DetectionResult{Items: items, Usage: usage}, nil
}

// GeneratePriceQuery generates an optimized search query for finding
// comparable items on the market. A suspiciously long output (likely a
// refusal or explanation) returns empty to trigger the caller's fallback.
func (g *GeminiAnalyzer) GeneratePriceQuery(ctx context.Context, name, details string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if len(details) > 500 {
		details = details[:500]
	}

	prompt := fmt.Sprintf(priceQueryPrompt, name, details)

	result, err := g.client.Models.GenerateContent(ctx, geminiLiteModel, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini price query failed: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	query := strings.TrimSpace(result.Text())
	query = strings.TrimPrefix(query, "```text")
	query = strings.TrimPrefix(query, "```")
	query = strings.TrimSuffix(query, "```")
	query = strings.TrimSpace(query)
	query = strings.Trim(query, `"'`)

	if len(query) > 50 {
		return "", nil
	}

	if result.UsageMetadata != nil {
		cost := calculateGeminiCost(
			int64(result.UsageMetadata.PromptTokenCount),
			int64(result.UsageMetadata.CandidatesTokenCount),
			geminiLiteInputPricePerMillion,
			geminiLiteOutputPricePerMillion,
		)
		log.Info().
			Str("model", geminiLiteModel).
			Int("inputTokens", int(result.UsageMetadata.PromptTokenCount)).
			Int("outputTokens", int(result.UsageMetadata.CandidatesTokenCount)).
			Float64("costUSD", cost).
			Str("query", query).
			Msg("price query llm call")
	}

	return query, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

// extractJSONArray extracts a JSON array from text that may contain markdown
// code blocks or other formatting.
func extractJSONArray(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: no JSON array found in: %s", ErrMalformedResponse, text)
	}
	return text[start : end+1], nil
}

func parseDetections(text string) ([]RawDetection, error) {
	jsonStr, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var items []RawDetection
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrMalformedResponse, err, jsonStr)
	}

	// An entry without a name is not a usable detection.
	valid := items[:0]
	for _, item := range items {
		if strings.TrimSpace(item.Name) != "" {
			valid = append(valid, item)
		}
	}

	return valid, nil
}
