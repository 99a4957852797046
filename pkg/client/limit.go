package client

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/semaphore"

	"github.com/menta2k/cube-segmenter/pkg/depth"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// Limiter caps the number of predictor calls in flight across all requests
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter allows at most n concurrent calls
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn once a slot is free or returns the context error
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for predictor slot: %w", err)
	}
	defer l.sem.Release(1)
	return fn()
}

// Limit wraps every predictor of b so they share one pool of n slots.
// n <= 0 returns b unchanged.
func Limit(b Backend, n int) Backend {
	if n <= 0 {
		return b
	}
	l := NewLimiter(n)
	out := Backend{}
	if b.Bounds != nil {
		out.Bounds = limitedBounds{l, b.Bounds}
	}
	if b.Segmentation != nil {
		out.Segmentation = limitedSegmentation{l, b.Segmentation}
	}
	if b.Depth != nil {
		out.Depth = limitedDepth{l, b.Depth}
	}
	return out
}

type limitedBounds struct {
	l    *Limiter
	next BoundsPredictor
}

func (p limitedBounds) PredictBounds(ctx context.Context, img image.Image) (box types.BoundingBox, ok bool, err error) {
	err = p.l.Do(ctx, func() error {
		var inner error
		box, ok, inner = p.next.PredictBounds(ctx, img)
		return inner
	})
	return box, ok, err
}

type limitedSegmentation struct {
	l    *Limiter
	next SegmentationPredictor
}

func (p limitedSegmentation) PredictSegmentation(ctx context.Context, img image.Image, bounds types.BoundingBox) (contour types.Contour, ok bool, err error) {
	err = p.l.Do(ctx, func() error {
		var inner error
		contour, ok, inner = p.next.PredictSegmentation(ctx, img, bounds)
		return inner
	})
	return contour, ok, err
}

type limitedDepth struct {
	l    *Limiter
	next DepthPredictor
}

func (p limitedDepth) PredictDepth(ctx context.Context, img image.Image) (m *depth.Map, err error) {
	err = p.l.Do(ctx, func() error {
		var inner error
		m, inner = p.next.PredictDepth(ctx, img)
		return inner
	})
	return m, err
}
