// Package cubesegmenter locates a cube in a photo and returns its six
// visible corners plus the center of its top face.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		cubesegmenter "github.com/menta2k/cube-segmenter"
//		"github.com/menta2k/cube-segmenter/pkg/client"
//		"github.com/menta2k/cube-segmenter/pkg/inference"
//		"github.com/menta2k/cube-segmenter/pkg/segmenter"
//	)
//
//	func main() {
//		models, err := inference.NewClient("http://localhost:9001", 0)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		seg, err := cubesegmenter.New(client.Backend{
//			Bounds:       models,
//			Segmentation: models,
//			Depth:        models,
//		}, segmenter.DefaultConfig())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := seg.SegmentFile(context.Background(), "cube.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("top corner at %.3f,%.3f\n", result.Top.X, result.Top.Y)
//	}
//
// The package consists of these components:
//
// 1. Analyzer (pkg/analyzer): decodes and validates photos
// 2. Segmenter (pkg/segmenter): scales, predicts, reduces, labels and maps points
// 3. Geometry (pkg/geometry): contour reduction, corner labeling, coordinate mapping
// 4. Depth (pkg/depth): contour masks and center location over depth maps
// 5. Clients (pkg/inference, pkg/ollama, pkg/llamacpp, pkg/gemini): model backends
//
// Points are fractions of the original photo's width and height unless the
// pipeline is configured for absolute pixel coordinates.
package cubesegmenter

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/cube-segmenter/pkg/analyzer"
	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/segmenter"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// Version of the cube segmenter library
const Version = "1.0.0"

// NotFoundError reports which pipeline stage failed to find the cube
type NotFoundError struct {
	Reason segmenter.Reason
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cube not found: %s", e.Reason)
}

// Segmenter provides a high-level interface for segmenting cube photos
type Segmenter struct {
	analyzer *analyzer.ImageAnalyzer
	pipeline *segmenter.Pipeline
}

// New creates a Segmenter over the given model backend
func New(backend client.Backend, config segmenter.Config, opts ...segmenter.Option) (*Segmenter, error) {
	p, err := segmenter.New(backend, config, opts...)
	if err != nil {
		return nil, err
	}
	return &Segmenter{
		analyzer: analyzer.New(),
		pipeline: p,
	}, nil
}

// Segment runs the pipeline on a decoded image. A photo without a
// recognisable cube returns a *NotFoundError.
func (s *Segmenter) Segment(ctx context.Context, img image.Image) (types.Segmentation, error) {
	outcome, err := s.pipeline.Run(ctx, img)
	if err != nil {
		return types.Segmentation{}, err
	}
	if !outcome.Found() {
		return types.Segmentation{}, &NotFoundError{Reason: outcome.Reason}
	}
	return outcome.Result(s.pipeline.Config().Coordinates), nil
}

// SegmentBytes decodes an encoded photo and segments it
func (s *Segmenter) SegmentBytes(ctx context.Context, data []byte) (types.Segmentation, error) {
	img, err := s.analyzer.Decode(data)
	if err != nil {
		return types.Segmentation{}, err
	}
	return s.Segment(ctx, img)
}

// SegmentFile loads a photo from disk and segments it
func (s *Segmenter) SegmentFile(ctx context.Context, path string) (types.Segmentation, error) {
	img, err := s.analyzer.LoadImage(path)
	if err != nil {
		return types.Segmentation{}, fmt.Errorf("failed to load image: %w", err)
	}
	return s.Segment(ctx, img)
}

// GetImageInfo returns basic information about an image
func (s *Segmenter) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return s.analyzer.GetImageInfo(img)
}
