package processing

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/internal/utils"
)

const debugTimeLayout = "2006-01-02-15-04-05"

// FileSink writes debug images to a directory as <stage>-<timestamp>.<ext>
type FileSink struct {
	processor *Processor
	dir       string
	format    string
	quality   int
	logger    *zap.Logger
	now       func() time.Time
}

// NewFileSink creates a FileSink, creating dir if needed
func NewFileSink(dir, format string, quality int, logger *zap.Logger) (*FileSink, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create debug directory: %w", err)
	}
	if format == "" {
		format = "jpg"
	}
	return &FileSink{
		processor: NewProcessor(),
		dir:       dir,
		format:    format,
		quality:   quality,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Write saves img for the given pipeline stage. Failures are logged, not returned,
// so debug output never changes a request's outcome.
func (s *FileSink) Write(_ context.Context, img image.Image, stage string) {
	name := fmt.Sprintf("%s-%s.%s", utils.SanitizeFilename(stage), s.now().Format(debugTimeLayout), s.format)
	path := filepath.Join(s.dir, name)

	if err := s.processor.SaveImage(img, path, s.format, s.quality, false); err != nil {
		s.logger.Warn("debug image save failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("wrote debug image", zap.String("path", path))
}
