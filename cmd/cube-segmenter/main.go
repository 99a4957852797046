package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/internal/config"
	"github.com/menta2k/cube-segmenter/internal/handler"
	"github.com/menta2k/cube-segmenter/internal/utils"
	"github.com/menta2k/cube-segmenter/pkg/analyzer"
	"github.com/menta2k/cube-segmenter/pkg/cache"
	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/processing"
	"github.com/menta2k/cube-segmenter/pkg/segmenter"
	"github.com/menta2k/cube-segmenter/pkg/store"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var configPath, in string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (default: defaults plus CUBESEG_* env)")
	flag.StringVar(&in, "in", "", "segment one photo, print the JSON result and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync(logger)

	pipeline, checker, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	if in != "" {
		if err := segmentFile(context.Background(), pipeline, in, segmenter.Coordinates(cfg.Pipeline.Coordinates), os.Stdout); err != nil {
			logger.Fatal("segmentation failed", zap.String("in", in), zap.Error(err))
		}
		return
	}

	logger.Info("starting cube-segmenter",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("bounds_backend", cfg.Backend.Bounds),
		zap.String("depth_backend", cfg.Backend.Depth))

	if err := serve(cfg, logger, pipeline, checker); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildPipeline(cfg *config.Config, logger *zap.Logger) (*segmenter.Pipeline, handler.Checker, error) {
	backend, inf, err := buildBackend(cfg.Backend)
	if err != nil {
		return nil, nil, err
	}
	backend = client.Limit(backend, cfg.Server.MaxInflight)

	opts := []segmenter.Option{segmenter.WithLogger(logger)}
	if cfg.Debug.Enabled {
		sink, err := processing.NewFileSink(cfg.Debug.Dir, cfg.Debug.Format, cfg.Debug.Quality, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, segmenter.WithDebugSink(sink))
	}

	p, err := segmenter.New(backend, segmenter.Config{
		WorkingSize:    cfg.Pipeline.WorkingSize,
		Epsilon:        cfg.Pipeline.Epsilon,
		BoundsPadding:  cfg.Pipeline.BoundsPadding,
		Coordinates:    segmenter.Coordinates(cfg.Pipeline.Coordinates),
		EnforceWinding: cfg.Pipeline.EnforceWinding,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return p, inf, nil
}

// segmentFile runs the pipeline on a single photo and writes the JSON result
func segmentFile(ctx context.Context, p *segmenter.Pipeline, path string, coords segmenter.Coordinates, w io.Writer) error {
	img, err := analyzer.New().LoadImage(path)
	if err != nil {
		return err
	}

	outcome, err := p.Run(ctx, img)
	if err != nil {
		return err
	}
	if !outcome.Found() {
		return fmt.Errorf("%s: %s", handler.MsgCubeNotFound, outcome.Reason)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome.Result(coords))
}

func serve(cfg *config.Config, logger *zap.Logger, pipeline *segmenter.Pipeline, models handler.Checker) (err error) {
	ctx := context.Background()
	opts := handler.Options{
		Logger:      logger,
		MaxBody:     cfg.Server.MaxBodyBytes,
		Coordinates: segmenter.Coordinates(cfg.Pipeline.Coordinates),
	}
	checks := map[string]handler.Checker{"models": models}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			err = multierr.Combine(err, c.Close())
		}
	}()

	if cfg.Redis.Enabled {
		rc := cache.NewRedisCache(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = rc.Close()
		} else {
			logger.Info("redis connected successfully")
			opts.Cache = rc
			closers = append(closers, rc)
		}
	}

	if cfg.Journal.Enabled {
		db, err := store.Open(ctx, cfg.Journal.DSN)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		closers = append(closers, db)
		repo := store.NewScanRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
		opts.Journal = repo
	}

	gin.SetMode(cfg.Server.Mode)
	info := handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}
	router := handler.NewRouter(logger, handler.NewSegmentHandler(pipeline, opts), handler.NewHealthHandler(info, checks))

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
