package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cube-segmenter/internal/config"
	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/detection"
	"github.com/menta2k/cube-segmenter/pkg/inference"
	"github.com/menta2k/cube-segmenter/pkg/segmenter"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

func TestBuildBackendInference(t *testing.T) {
	cfg := config.Default().Backend

	b, inf, err := buildBackend(cfg)
	require.NoError(t, err)

	assert.Same(t, inf, b.Bounds.(*inference.Client))
	assert.NotNil(t, b.Segmentation)
	assert.NotNil(t, b.Depth)
}

func TestBuildBackendVisionLLM(t *testing.T) {
	for _, name := range []string{"ollama", "llamacpp", "gemini"} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default().Backend
			cfg.Bounds = name
			cfg.Depth = "none"
			cfg.GeminiAPIKey = "test-key"

			b, _, err := buildBackend(cfg)
			require.NoError(t, err)

			assert.IsType(t, &detection.Detector{}, b.Bounds)
			assert.NotNil(t, b.Segmentation)
			assert.Nil(t, b.Depth)
		})
	}
}

func TestBuildBackendErrors(t *testing.T) {
	cfg := config.Default().Backend
	cfg.Bounds = "gemini"
	_, _, err := buildBackend(cfg)
	assert.Error(t, err)

	cfg = config.Default().Backend
	cfg.Bounds = "tesseract"
	_, _, err = buildBackend(cfg)
	assert.Error(t, err)

	cfg = config.Default().Backend
	cfg.InferenceURL = ""
	_, _, err = buildBackend(cfg)
	assert.Error(t, err)
}

type noBounds struct{}

func (noBounds) PredictBounds(context.Context, image.Image) (types.BoundingBox, bool, error) {
	return types.BoundingBox{}, false, nil
}

type noSegmentation struct{}

func (noSegmentation) PredictSegmentation(context.Context, image.Image, types.BoundingBox) (types.Contour, bool, error) {
	return nil, false, nil
}

func TestSegmentFileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	require.NoError(t, f.Close())

	p, err := segmenter.New(client.Backend{Bounds: noBounds{}, Segmentation: noSegmentation{}}, segmenter.DefaultConfig())
	require.NoError(t, err)

	var out bytes.Buffer
	err = segmentFile(context.Background(), p, path, segmenter.Normalized, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bounds-not-found")
	assert.Zero(t, out.Len())

	err = segmentFile(context.Background(), p, filepath.Join(t.TempDir(), "missing.png"), segmenter.Normalized, &out)
	assert.Error(t, err)
}
