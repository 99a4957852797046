package segmenter

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/cropper"
	"github.com/menta2k/cube-segmenter/pkg/depth"
	"github.com/menta2k/cube-segmenter/pkg/geometry"
	"github.com/menta2k/cube-segmenter/pkg/processing"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// Reason tags why a photo produced no segmentation
type Reason string

const (
	ReasonBoundsNotFound       Reason = "bounds-not-found"
	ReasonSegmentationNotFound Reason = "segmentation-not-found"
	ReasonContourNotReduced    Reason = "contour-not-reduced"
	ReasonCenterNotFound       Reason = "center-not-found"
)

// Debug stage names passed to the DebugSink
const (
	StageBounds       = "bounds"
	StageSegmentation = "segmentation"
	StageReduce       = "reduce"
	StageCenter       = "center"
)

// Coordinates selects how response points are expressed
type Coordinates string

const (
	// Normalized points are fractions of the original width and height
	Normalized Coordinates = "normalized"
	// Absolute points are pixels of the original image
	Absolute Coordinates = "absolute"
)

// Config tunes the pipeline
type Config struct {
	WorkingSize    int
	Epsilon        float64
	BoundsPadding  int
	Coordinates    Coordinates
	EnforceWinding bool
}

// DefaultConfig returns the tuning the reduction tolerance was calibrated for
func DefaultConfig() Config {
	return Config{
		WorkingSize:   processing.DefaultWorkingSize,
		Epsilon:       geometry.DefaultEpsilon,
		BoundsPadding: cropper.DefaultPadding,
		Coordinates:   Normalized,
	}
}

// DebugSink receives intermediate images tagged with a stage name
type DebugSink interface {
	Write(ctx context.Context, img image.Image, stage string)
}

// NopSink discards debug images
type NopSink struct{}

func (NopSink) Write(context.Context, image.Image, string) {}

// Outcome is the result of one pipeline pass: either both segmentations are
// set and Reason is empty, or Reason says which stage came up empty
type Outcome struct {
	Reason Reason
	// Normalized and Absolute hold the same points in the two output spaces
	Normalized types.Segmentation
	Absolute   types.Segmentation
	// Working-image details for logging
	Working  types.Shape
	Original types.Shape
	Bounds   types.BoundingBox
	Vertices int
}

// Found reports whether the cube was segmented
func (o Outcome) Found() bool {
	return o.Reason == ""
}

// Result returns the segmentation in the requested coordinate space
func (o Outcome) Result(c Coordinates) types.Segmentation {
	if c == Absolute {
		return o.Absolute
	}
	return o.Normalized
}

// Pipeline turns a decoded photo into labeled cube corners and a center
type Pipeline struct {
	config    Config
	backend   client.Backend
	locator   depth.Locator
	processor *processing.Processor
	sink      DebugSink
	debug     bool
	logger    *zap.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithDebugSink enables debug images
func WithDebugSink(sink DebugSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
			p.debug = true
		}
	}
}

// WithLogger sets the logger used for stage failures
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocator overrides how the center is found
func WithLocator(locator depth.Locator) Option {
	return func(p *Pipeline) {
		p.locator = locator
	}
}

// New builds a pipeline. Backends without a depth model locate the center
// at the mask centroid.
func New(backend client.Backend, config Config, opts ...Option) (*Pipeline, error) {
	if backend.Bounds == nil || backend.Segmentation == nil {
		return nil, errors.New("backend needs bounds and segmentation predictors")
	}
	if config.WorkingSize <= 0 {
		return nil, fmt.Errorf("working size must be positive, got %d", config.WorkingSize)
	}
	if config.Coordinates == "" {
		config.Coordinates = Normalized
	}

	p := &Pipeline{
		config:    config,
		backend:   backend,
		processor: processing.NewProcessor(),
		sink:      NopSink{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.locator == nil {
		if backend.Depth != nil {
			dl := depth.NewDepthLocator(backend.Depth)
			if p.debug {
				dl.WithDebug(p.sink)
			}
			p.locator = dl
		} else {
			p.locator = depth.CentroidLocator{}
		}
	}
	return p, nil
}

// Config returns the pipeline's settings
func (p *Pipeline) Config() Config {
	return p.config
}

// Run performs one segmentation pass. Vision failures come back as an
// Outcome with a Reason; the error is only set for system faults such as
// an unreachable predictor.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (Outcome, error) {
	out := Outcome{Original: types.ShapeOf(img)}

	// A fixed working size keeps the reduction tolerance meaningful
	working := p.processor.ScaleSmallerAxis(img, p.config.WorkingSize)
	out.Working = types.ShapeOf(working)

	bounds, ok, err := p.backend.Bounds.PredictBounds(ctx, working)
	if err != nil {
		return out, fmt.Errorf("bounds prediction failed: %w", err)
	}
	if !ok || !bounds.Valid() {
		p.debugWrite(ctx, working, StageBounds, processing.Overlay{})
		return p.fail(out, ReasonBoundsNotFound), nil
	}
	out.Bounds = bounds

	padded := cropper.Pad(bounds, p.config.BoundsPadding)
	overlay := processing.Overlay{Bounds: &bounds, Padded: &padded}

	contour, ok, err := p.backend.Segmentation.PredictSegmentation(ctx, working, padded)
	if err != nil {
		return out, fmt.Errorf("segmentation prediction failed: %w", err)
	}
	if !ok || len(contour) == 0 {
		p.debugWrite(ctx, working, StageSegmentation, overlay)
		return p.fail(out, ReasonSegmentationNotFound), nil
	}
	overlay.Contour = contour

	eps := geometry.ScaledEpsilon(p.config.Epsilon, p.config.WorkingSize)
	reduced := geometry.ReduceContour(contour, eps)
	out.Vertices = len(reduced)
	overlay.Corners = reduced
	if len(reduced) != geometry.CornerCount {
		p.debugWrite(ctx, working, StageReduce, overlay)
		return p.fail(out, ReasonContourNotReduced), nil
	}

	vertices := []image.Point(reduced)
	if p.config.EnforceWinding {
		vertices = geometry.OrientTo(vertices, geometry.LabelWinding)
	}
	corners, err := geometry.LabelCorners(vertices)
	if err != nil {
		return out, fmt.Errorf("labeling corners: %w", err)
	}

	center, err := p.locateCenter(ctx, working, padded, contour)
	if errors.Is(err, depth.ErrEmptyMask) || errors.Is(err, cropper.ErrOutsideImage) {
		p.debugWrite(ctx, working, StageCenter, overlay)
		return p.fail(out, ReasonCenterNotFound), nil
	}
	if err != nil {
		return out, err
	}
	overlay.Center = &center
	p.debugWrite(ctx, working, StageCenter, overlay)

	abs := corners.Segmentation(types.PointFrom(center)).Map(func(pt types.Point) types.Point {
		return geometry.Rescale(pt, out.Working, out.Original)
	})
	out.Absolute = abs
	out.Normalized = abs.Map(func(pt types.Point) types.Point {
		return geometry.Normalize(pt, out.Original)
	})
	return out, nil
}

// locateCenter crops the padded box, masks the contour inside it and returns
// the center in working-image pixels
func (p *Pipeline) locateCenter(ctx context.Context, working image.Image, padded types.BoundingBox, contour types.Contour) (image.Point, error) {
	crop, err := cropper.Crop(working, padded)
	if err != nil {
		return image.Point{}, err
	}

	mask := depth.FillMask(contour, crop.Region)
	local, err := p.locator.Locate(ctx, crop.Image, mask)
	if err != nil {
		return image.Point{}, fmt.Errorf("locating center: %w", err)
	}
	return local.Add(crop.Offset()), nil
}

func (p *Pipeline) fail(out Outcome, reason Reason) Outcome {
	out.Reason = reason
	p.logger.Info("cube not found",
		zap.String("reason", string(reason)),
		zap.Int("width", out.Original.Width),
		zap.Int("height", out.Original.Height),
		zap.Int("vertices", out.Vertices),
	)
	return out
}

func (p *Pipeline) debugWrite(ctx context.Context, working image.Image, stage string, o processing.Overlay) {
	if !p.debug {
		return
	}
	p.sink.Write(ctx, p.processor.CreateDebugOverlay(working, o), stage)
}
