package client

import (
	"context"
	"image"

	"github.com/menta2k/cube-segmenter/pkg/depth"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// VisionClient sends a prompt plus one base64 image to a vision LLM and
// returns the raw text reply
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// BoundsPredictor finds the cube's axis-aligned box in img. ok is false
// when the model saw no cube; err is reserved for transport failures.
type BoundsPredictor interface {
	PredictBounds(ctx context.Context, img image.Image) (box types.BoundingBox, ok bool, err error)
}

// SegmentationPredictor outlines the cube inside bounds. The contour is in
// img pixel space.
type SegmentationPredictor interface {
	PredictSegmentation(ctx context.Context, img image.Image, bounds types.BoundingBox) (contour types.Contour, ok bool, err error)
}

// DepthPredictor estimates relative depth for every pixel of img
type DepthPredictor interface {
	PredictDepth(ctx context.Context, img image.Image) (*depth.Map, error)
}

// Backend bundles the models the pipeline needs. Depth may be nil, in which
// case the center falls back to the mask centroid.
type Backend struct {
	Bounds       BoundsPredictor
	Segmentation SegmentationPredictor
	Depth        DepthPredictor
}
