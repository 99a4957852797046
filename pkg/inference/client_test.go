package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func newServer(t *testing.T, path string, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", 0)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", 0)
	assert.Error(t, err)

	c, err := NewClient("http://models:9001", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidence, c.confidence)
}

func TestPredictionBounds(t *testing.T) {
	p := Prediction{X: 100, Y: 80, Width: 51, Height: 40}
	assert.Equal(t, types.BoundingBox{MinX: 74, MinY: 60, MaxX: 125, MaxY: 100}, p.Bounds())
}

func TestPredictBounds(t *testing.T) {
	c := newServer(t, "/bounds", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.01", r.FormValue("confidence"))
		assert.Equal(t, DefaultClass, r.FormValue("classes"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))

		_ = json.NewEncoder(w).Encode(BoundsResponse{Predictions: []Prediction{
			{X: 50, Y: 50, Width: 20, Height: 10, Confidence: 0.3, Class: DefaultClass},
			{X: 10, Y: 10, Width: 4, Height: 4, Confidence: 0.9, Class: DefaultClass},
		}})
	})

	box, ok, err := c.PredictBounds(context.Background(), testImage())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.BoundingBox{MinX: 40, MinY: 45, MaxX: 60, MaxY: 55}, box)
}

func TestPredictBoundsNone(t *testing.T) {
	c := newServer(t, "/bounds", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	})

	_, ok, err := c.PredictBounds(context.Background(), testImage())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredictBoundsServerError(t *testing.T) {
	c := newServer(t, "/bounds", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	})

	_, ok, err := c.PredictBounds(context.Background(), testImage())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cuda out of memory")
	assert.False(t, ok)
}

func TestPredictSegmentation(t *testing.T) {
	c := newServer(t, "/segment", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "-5,-5,40,30", r.FormValue("box"))
		_, _ = w.Write([]byte(`{"contour":[[1,2],[3.7,4.2],[5,6]]}`))
	})

	contour, ok, err := c.PredictSegmentation(context.Background(), testImage(), types.BoundingBox{MinX: -5, MinY: -5, MaxX: 40, MaxY: 30})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Contour{{1, 2}, {3, 4}, {5, 6}}, contour)
}

func TestPredictSegmentationNone(t *testing.T) {
	c := newServer(t, "/segment", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contour":null}`))
	})

	_, ok, err := c.PredictSegmentation(context.Background(), testImage(), types.BoundingBox{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredictDepth(t *testing.T) {
	c := newServer(t, "/depth", func(w http.ResponseWriter, r *http.Request) {
		dm := image.NewGray16(image.Rect(0, 0, 4, 3))
		dm.SetGray16(3, 2, color.Gray16{Y: 1234})
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, dm))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})

	m, err := c.PredictDepth(context.Background(), testImage())
	require.NoError(t, err)
	w, h := m.Dims()
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)
	assert.Equal(t, 1234.0, m.At(3, 2))
}

func TestPredictDepthBadBody(t *testing.T) {
	c := newServer(t, "/depth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nope"))
	})

	_, err := c.PredictDepth(context.Background(), testImage())
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	c := newServer(t, "/health", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, c.Health(context.Background()))

	down := newServer(t, "/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, down.Health(context.Background()))
}
