package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/processing"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// LocatePrompt asks a vision LLM for the cube's bounding box
const LocatePrompt = `You are an object locator. Find the single cube-shaped object in the photo.

Return JSON only:
{
  "found": true,
  "label": "string",
  "confidence": 0.0,
  "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box must tightly include every visible face of the cube.
- If there is no cube, return {"found": false, "label": "none", "confidence": 0.0, "box": {"x": 0, "y": 0, "w": 0, "h": 0}}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config controls how images are sent and how replies are judged
type Config struct {
	Model         string
	SendSize      int
	SendQuality   int
	MinConfidence float64
}

// DefaultConfig returns settings that work with small local vision models
func DefaultConfig(model string) Config {
	return Config{
		Model:         model,
		SendSize:      768,
		SendQuality:   85,
		MinConfidence: 0.01,
	}
}

// Detector locates the cube with a vision LLM. It implements client.BoundsPredictor.
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, config Config) *Detector {
	return &Detector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// PredictBounds asks the model for a box and converts it to img pixels
func (d *Detector) PredictBounds(ctx context.Context, img image.Image) (types.BoundingBox, bool, error) {
	result, err := d.Locate(ctx, img)
	if err != nil {
		return types.BoundingBox{}, false, err
	}
	if !d.accept(result) {
		return types.BoundingBox{}, false, nil
	}

	box := result.Box.ToPixels(types.ShapeOf(img)).Rect().Add(img.Bounds().Min)
	return types.BoundingBox{MinX: box.Min.X, MinY: box.Min.Y, MaxX: box.Max.X, MaxY: box.Max.Y}, true, nil
}

// Locate sends img with LocatePrompt and parses the reply. A reply that is
// not valid JSON is reported as not found rather than as an error.
func (d *Detector) Locate(ctx context.Context, img image.Image) (*types.LocateResult, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for model: %w", err)
	}

	raw, err := d.client.Query(ctx, d.config.Model, LocatePrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision model query failed: %w", err)
	}

	result, err := ParseLocateResult(raw)
	if err != nil {
		return &types.LocateResult{Label: "unparseable"}, nil
	}
	result.Box = normalizeBox(result.Box)
	return result, nil
}

func (d *Detector) accept(r *types.LocateResult) bool {
	if !r.Found || strings.EqualFold(r.Label, "none") {
		return false
	}
	if r.Confidence < d.config.MinConfidence {
		return false
	}
	return r.Box.W > 0 && r.Box.H > 0
}

// ParseLocateResult decodes a model reply after stripping fences and comments
func ParseLocateResult(raw string) (*types.LocateResult, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var result types.LocateResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	return &result, nil
}

var reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = stripComments(raw)
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments drops // and /* */ comments that sit outside JSON strings
func stripComments(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
		case strings.HasPrefix(raw[i:], "//"):
			end := strings.IndexByte(raw[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end - 1
			continue
		case strings.HasPrefix(raw[i:], "/*"):
			end := strings.Index(raw[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
