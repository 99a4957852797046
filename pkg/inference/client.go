package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/menta2k/cube-segmenter/pkg/depth"
	"github.com/menta2k/cube-segmenter/pkg/processing"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// DefaultConfidence matches the open-vocabulary detector's usual floor
const DefaultConfidence = 0.01

// DefaultClass is the open-vocabulary label the detector is prompted with
const DefaultClass = "rubik's cube"

// Client talks to a model server exposing /bounds, /segment and /depth.
// It implements the bounds, segmentation and depth predictors.
type Client struct {
	baseURL    string
	httpClient *http.Client
	processor  *processing.Processor
	confidence float64
	class      string
}

// Prediction is one detection in center/size form
type Prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

// Bounds converts a center/size prediction into min/max pixel corners,
// truncating toward zero
func (p Prediction) Bounds() types.BoundingBox {
	return types.BoundingBox{
		MinX: int(p.X - p.Width/2),
		MinY: int(p.Y - p.Height/2),
		MaxX: int(p.X + p.Width/2),
		MaxY: int(p.Y + p.Height/2),
	}
}

// BoundsResponse is the /bounds reply
type BoundsResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// SegmentResponse is the /segment reply: polygon vertices as [x, y] pairs
type SegmentResponse struct {
	Contour [][2]float64 `json:"contour"`
}

// NewClient creates a model server client. confidence <= 0 uses DefaultConfidence.
func NewClient(serverURL string, confidence float64) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("inference server URL is empty")
	}
	if confidence <= 0 {
		confidence = DefaultConfidence
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		processor:  processing.NewProcessor(),
		confidence: confidence,
		class:      DefaultClass,
	}, nil
}

// PredictBounds returns the first prediction at or above the confidence floor
func (c *Client) PredictBounds(ctx context.Context, img image.Image) (types.BoundingBox, bool, error) {
	fields := map[string]string{
		"confidence": strconv.FormatFloat(c.confidence, 'f', -1, 64),
		"classes":    c.class,
	}

	var resp BoundsResponse
	if err := c.postImageJSON(ctx, "/bounds", img, fields, &resp); err != nil {
		return types.BoundingBox{}, false, err
	}

	hits := lo.Filter(resp.Predictions, func(p Prediction, _ int) bool {
		return p.Confidence >= c.confidence
	})
	if len(hits) == 0 {
		return types.BoundingBox{}, false, nil
	}
	return hits[0].Bounds(), true, nil
}

// PredictSegmentation prompts the segmenter with bounds and returns its polygon
func (c *Client) PredictSegmentation(ctx context.Context, img image.Image, bounds types.BoundingBox) (types.Contour, bool, error) {
	fields := map[string]string{
		"box": fmt.Sprintf("%d,%d,%d,%d", bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY),
	}

	var resp SegmentResponse
	if err := c.postImageJSON(ctx, "/segment", img, fields, &resp); err != nil {
		return nil, false, err
	}
	if len(resp.Contour) == 0 {
		return nil, false, nil
	}

	contour := lo.Map(resp.Contour, func(p [2]float64, _ int) image.Point {
		return image.Pt(int(p[0]), int(p[1]))
	})
	return contour, true, nil
}

// PredictDepth fetches a 16-bit grayscale PNG depth map for img
func (c *Client) PredictDepth(ctx context.Context, img image.Image) (*depth.Map, error) {
	body, err := c.postImage(ctx, "/depth", img, nil)
	if err != nil {
		return nil, err
	}

	dm, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode depth map: %w", err)
	}
	return depth.FromImage(dm), nil
}

// Health checks that the model server is up
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postImageJSON(ctx context.Context, endpoint string, img image.Image, fields map[string]string, out any) error {
	body, err := c.postImage(ctx, endpoint, img, fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// postImage uploads img as a JPEG multipart part named "image"
func (c *Client) postImage(ctx context.Context, endpoint string, img image.Image, fields map[string]string) ([]byte, error) {
	data, err := c.processor.Encode(img, "jpg", 95)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write image part: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
