package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/cube-segmenter/pkg/processing"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

var (
	// ErrCubeNotFound means the service answered 422
	ErrCubeNotFound = errors.New("cube not found")
	// ErrInvalidPhoto means the service rejected the upload with 400
	ErrInvalidPhoto = errors.New("missing or invalid photo")
)

// SegmentClient calls a running cube-segmenter's POST /segment
type SegmentClient struct {
	baseURL    string
	httpClient *http.Client
	processor  *processing.Processor
}

// NewSegmentClient creates a client for the service at serverURL
func NewSegmentClient(serverURL string) *SegmentClient {
	return &SegmentClient{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		processor: processing.NewProcessor(),
	}
}

// Segment encodes img as JPEG and requests its corners
func (c *SegmentClient) Segment(ctx context.Context, img image.Image) (types.Segmentation, error) {
	data, err := c.processor.Encode(img, "jpg", 90)
	if err != nil {
		return types.Segmentation{}, fmt.Errorf("failed to encode image: %w", err)
	}
	return c.SegmentBytes(ctx, data, "image/jpeg")
}

// SegmentBytes posts already-encoded image bytes
func (c *SegmentClient) SegmentBytes(ctx context.Context, data []byte, contentType string) (types.Segmentation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/segment", bytes.NewReader(data))
	if err != nil {
		return types.Segmentation{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Segmentation{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Segmentation{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var seg types.Segmentation
		if err := json.Unmarshal(body, &seg); err != nil {
			return types.Segmentation{}, fmt.Errorf("failed to parse segmentation: %w", err)
		}
		return seg, nil
	case http.StatusUnprocessableEntity:
		return types.Segmentation{}, ErrCubeNotFound
	case http.StatusBadRequest:
		return types.Segmentation{}, ErrInvalidPhoto
	default:
		return types.Segmentation{}, fmt.Errorf("segmenter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
