package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/segmenter"
	"github.com/menta2k/cube-segmenter/pkg/store"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

type fakeBounds struct {
	box types.BoundingBox
	ok  bool
}

func (f fakeBounds) PredictBounds(context.Context, image.Image) (types.BoundingBox, bool, error) {
	return f.box, f.ok, nil
}

type fakeSegmentation struct {
	contour types.Contour
}

func (f fakeSegmentation) PredictSegmentation(context.Context, image.Image, types.BoundingBox) (types.Contour, bool, error) {
	return f.contour, len(f.contour) > 0, nil
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, image.Image) (segmenter.Outcome, error) {
	return segmenter.Outcome{}, errors.New("model server down")
}

type countingRunner struct {
	next  Runner
	calls int
}

func (r *countingRunner) Run(ctx context.Context, img image.Image) (segmenter.Outcome, error) {
	r.calls++
	return r.next.Run(ctx, img)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]types.Segmentation
}

func (m *memCache) Get(_ context.Context, md5, variant string) (*types.Segmentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seg, ok := m.entries[md5+":"+variant]; ok {
		return &seg, nil
	}
	return nil, nil
}

func (m *memCache) Set(_ context.Context, md5, variant string, seg types.Segmentation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]types.Segmentation{}
	}
	m.entries[md5+":"+variant] = seg
	return nil
}

type memJournal struct {
	scans []store.Scan
}

func (j *memJournal) Record(_ context.Context, s store.Scan) error {
	j.scans = append(j.scans, s)
	return nil
}

type okChecker struct{ err error }

func (c okChecker) Health(context.Context) error { return c.err }

// cubeHexagon sits inside bounds (10,10,100,100) with its top at (55,12)
var cubeHexagon = []image.Point{{55, 12}, {15, 35}, {15, 80}, {55, 98}, {95, 80}, {95, 35}}

var cubeBounds = types.BoundingBox{MinX: 10, MinY: 10, MaxX: 100, MaxY: 100}

func sampleContour(vertices []image.Point, step float64) types.Contour {
	var out types.Contour
	for i := range vertices {
		a := vertices[i]
		b := vertices[(i+1)%len(vertices)]
		dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
		n := int(math.Hypot(dx, dy) / step)
		for k := 0; k < n; k++ {
			t := float64(k) / float64(n)
			out = append(out, image.Pt(a.X+int(math.Round(dx*t)), a.Y+int(math.Round(dy*t))))
		}
	}
	return out
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newPipeline(t *testing.T, backend client.Backend) *segmenter.Pipeline {
	t.Helper()
	p, err := segmenter.New(backend, segmenter.DefaultConfig())
	require.NoError(t, err)
	return p
}

func newTestRouter(runner Runner, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	health := NewHealthHandler(BuildInfo{Version: "test"}, map[string]Checker{"models": okChecker{}})
	return NewRouter(opts.Logger, NewSegmentHandler(runner, opts), health)
}

func post(r http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return w
}

func TestSegmentEmptyBody(t *testing.T) {
	r := newTestRouter(failingRunner{}, Options{})

	w := post(r, "/segment", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidPhoto, w.Body.String())
}

func TestSegmentGarbageBody(t *testing.T) {
	r := newTestRouter(failingRunner{}, Options{})

	w := post(r, "/segment", []byte("not a photo"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidPhoto, w.Body.String())
}

func TestSegmentRejectsThinStrip(t *testing.T) {
	runner := &countingRunner{next: failingRunner{}}
	r := newTestRouter(runner, Options{})

	// a tiny body that would upscale to 480x144000 in the working image
	w := post(r, "/segment", pngBody(t, 1, 300))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgInvalidPhoto, w.Body.String())
	assert.Zero(t, runner.calls)
}

func TestSegmentTooLarge(t *testing.T) {
	r := newTestRouter(failingRunner{}, Options{MaxBody: 16})

	w := post(r, "/segment", pngBody(t, 64, 64))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSegmentBoundsNotFound(t *testing.T) {
	journal := &memJournal{}
	p := newPipeline(t, client.Backend{Bounds: fakeBounds{}, Segmentation: fakeSegmentation{}})
	r := newTestRouter(p, Options{Journal: journal})

	w := post(r, "/segment", pngBody(t, 640, 480))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, MsgCubeNotFound, w.Body.String())
	require.Len(t, journal.scans, 1)
	assert.Equal(t, "bounds-not-found", journal.scans[0].Outcome)
	assert.NotEmpty(t, journal.scans[0].RequestID)
}

func TestSegmentSegmentationNotFound(t *testing.T) {
	p := newPipeline(t, client.Backend{Bounds: fakeBounds{box: cubeBounds, ok: true}, Segmentation: fakeSegmentation{}})
	r := newTestRouter(p, Options{})

	w := post(r, "/segment", pngBody(t, 640, 480))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, MsgCubeNotFound, w.Body.String())
}

func TestSegmentContourNotReduced(t *testing.T) {
	pentagon := []image.Point{{200, 100}, {110, 170}, {145, 280}, {255, 280}, {290, 170}}
	p := newPipeline(t, client.Backend{
		Bounds:       fakeBounds{box: types.BoundingBox{MinX: 100, MinY: 90, MaxX: 300, MaxY: 290}, ok: true},
		Segmentation: fakeSegmentation{contour: sampleContour(pentagon, 4)},
	})
	journal := &memJournal{}
	r := newTestRouter(p, Options{Journal: journal})

	w := post(r, "/segment", pngBody(t, 640, 480))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, journal.scans, 1)
	assert.Equal(t, "contour-not-reduced", journal.scans[0].Outcome)
	assert.Equal(t, 5, journal.scans[0].Vertices)
}

func TestSegmentSuccess(t *testing.T) {
	p := newPipeline(t, client.Backend{
		Bounds:       fakeBounds{box: cubeBounds, ok: true},
		Segmentation: fakeSegmentation{contour: sampleContour(cubeHexagon, 3)},
	})
	journal := &memJournal{}
	r := newTestRouter(p, Options{Journal: journal})

	w := post(r, "/segment", pngBody(t, 640, 480))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]types.Point
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body, 7)
	for _, key := range []string{"top", "topLeft", "bottomLeft", "bottom", "bottomRight", "topRight", "center"} {
		assert.Contains(t, body, key)
	}
	assert.InDelta(t, 55.0/640, body["top"].X, 1e-9)
	assert.InDelta(t, 12.0/480, body["top"].Y, 1e-9)

	require.Len(t, journal.scans, 1)
	assert.Equal(t, "ok", journal.scans[0].Outcome)
	assert.Equal(t, 640, journal.scans[0].Width)
	assert.JSONEq(t, w.Body.String(), string(journal.scans[0].Result))
}

func TestSegmentAbsoluteCoordinates(t *testing.T) {
	p := newPipeline(t, client.Backend{
		Bounds:       fakeBounds{box: cubeBounds, ok: true},
		Segmentation: fakeSegmentation{contour: sampleContour(cubeHexagon, 3)},
	})
	r := newTestRouter(p, Options{})

	w := post(r, "/segment?coordinates=absolute", pngBody(t, 640, 480))
	require.Equal(t, http.StatusOK, w.Code)

	var seg types.Segmentation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seg))
	assert.Equal(t, types.Point{X: 55, Y: 12}, seg.Top)

	w = post(r, "/segment?coordinates=polar", pngBody(t, 640, 480))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegmentCacheHit(t *testing.T) {
	runner := &countingRunner{next: newPipeline(t, client.Backend{
		Bounds:       fakeBounds{box: cubeBounds, ok: true},
		Segmentation: fakeSegmentation{contour: sampleContour(cubeHexagon, 3)},
	})}
	mc := &memCache{}
	r := newTestRouter(runner, Options{Cache: mc})
	body := pngBody(t, 640, 480)

	first := post(r, "/segment", body)
	second := post(r, "/segment", body)
	abs := post(r, "/segment?coordinates=absolute", body)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, http.StatusOK, abs.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Len(t, mc.entries, 2)
}

func TestSegmentSystemFault(t *testing.T) {
	journal := &memJournal{}
	r := newTestRouter(failingRunner{}, Options{Journal: journal})

	w := post(r, "/segment", pngBody(t, 32, 32))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, journal.scans, 1)
	assert.Equal(t, "error", journal.scans[0].Outcome)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHealthHandler(BuildInfo{Version: "1.2.3"}, map[string]Checker{"models": okChecker{}})
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHealthHandler(BuildInfo{}, map[string]Checker{"models": okChecker{err: errors.New("down")}})
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
