package handler

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/internal/middleware"
	"github.com/menta2k/cube-segmenter/internal/utils"
	"github.com/menta2k/cube-segmenter/pkg/analyzer"
	"github.com/menta2k/cube-segmenter/pkg/cache"
	"github.com/menta2k/cube-segmenter/pkg/segmenter"
	"github.com/menta2k/cube-segmenter/pkg/store"
	"github.com/menta2k/cube-segmenter/pkg/types"
)

// Response bodies the mobile client matches on
const (
	MsgCubeNotFound = "cube not found"
	MsgInvalidPhoto = "missing or invalid photo"
	MsgTooLarge     = "photo too large"
	MsgInternal     = "internal error"
)

// Runner runs the segmentation pipeline on one image
type Runner interface {
	Run(ctx context.Context, img image.Image) (segmenter.Outcome, error)
}

// SegmentHandler serves POST /segment
type SegmentHandler struct {
	runner      Runner
	analyzer    *analyzer.ImageAnalyzer
	cache       cache.Cache
	journal     store.Recorder
	logger      *zap.Logger
	maxBody     int64
	coordinates segmenter.Coordinates
}

// Options carries the handler's collaborators. Nil Cache and Journal are no-ops.
type Options struct {
	Cache       cache.Cache
	Journal     store.Recorder
	Logger      *zap.Logger
	MaxBody     int64
	Coordinates segmenter.Coordinates
}

func NewSegmentHandler(runner Runner, opts Options) *SegmentHandler {
	h := &SegmentHandler{
		runner:      runner,
		analyzer:    analyzer.New(),
		cache:       opts.Cache,
		journal:     opts.Journal,
		logger:      opts.Logger,
		maxBody:     opts.MaxBody,
		coordinates: opts.Coordinates,
	}
	if h.cache == nil {
		h.cache = cache.Nop{}
	}
	if h.journal == nil {
		h.journal = store.Nop{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.maxBody <= 0 {
		h.maxBody = 20 << 20
	}
	if h.coordinates == "" {
		h.coordinates = segmenter.Normalized
	}
	return h
}

// Segment reads the raw image body and answers with the seven labeled points.
// The optional coordinates query parameter picks normalized or absolute output.
func (h *SegmentHandler) Segment(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	reqID := middleware.GetRequestID(c)
	log := h.logger.With(zap.String("request_id", reqID))

	coords := segmenter.Coordinates(c.DefaultQuery("coordinates", string(h.coordinates)))
	if coords != segmenter.Normalized && coords != segmenter.Absolute {
		c.String(http.StatusBadRequest, "coordinates must be normalized or absolute")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, MsgTooLarge)
			return
		}
		log.Warn("failed to read body", zap.Error(err))
		c.String(http.StatusBadRequest, MsgInvalidPhoto)
		return
	}

	img, err := h.analyzer.Decode(data)
	if err != nil {
		log.Info("rejected photo", zap.Int("bytes", len(data)), zap.Error(err))
		c.String(http.StatusBadRequest, MsgInvalidPhoto)
		return
	}

	hash := utils.BytesMD5(data)
	cached, err := h.cache.Get(ctx, hash, string(coords))
	if err != nil {
		log.Warn("failed to get cache", zap.Error(err))
	}
	if cached != nil {
		log.Info("cache hit", zap.String("md5", hash))
		c.JSON(http.StatusOK, cached)
		return
	}

	scan := store.Scan{
		RequestID: reqID,
		ImageHash: hash,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
	}

	outcome, err := h.runner.Run(ctx, img)
	scan.Duration = time.Since(start)
	scan.Vertices = outcome.Vertices
	if err != nil {
		log.Error("segmentation failed", zap.String("md5", hash), zap.Error(err))
		scan.Outcome = "error"
		h.record(ctx, log, scan)
		c.String(http.StatusInternalServerError, MsgInternal)
		return
	}

	if !outcome.Found() {
		scan.Outcome = string(outcome.Reason)
		h.record(ctx, log, scan)
		c.String(http.StatusUnprocessableEntity, MsgCubeNotFound)
		return
	}

	seg := outcome.Result(coords)
	h.store(ctx, log, hash, outcome)

	scan.Outcome = "ok"
	scan.Result, _ = json.Marshal(seg)
	h.record(ctx, log, scan)

	c.JSON(http.StatusOK, seg)
}

func (h *SegmentHandler) store(ctx context.Context, log *zap.Logger, hash string, o segmenter.Outcome) {
	for coords, seg := range map[segmenter.Coordinates]types.Segmentation{
		segmenter.Normalized: o.Normalized,
		segmenter.Absolute:   o.Absolute,
	} {
		if err := h.cache.Set(ctx, hash, string(coords), seg); err != nil {
			log.Warn("failed to set cache", zap.Error(err))
			return
		}
	}
}

func (h *SegmentHandler) record(ctx context.Context, log *zap.Logger, s store.Scan) {
	if err := h.journal.Record(ctx, s); err != nil {
		log.Warn("failed to journal scan", zap.Error(err))
	}
}
