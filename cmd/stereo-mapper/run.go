package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/config"
	"stereo-mapper/internal/debug/timing"
	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/opencv/calib3d"
	"stereo-mapper/internal/opencv/capture"
	"stereo-mapper/internal/opencv/memory"
	"stereo-mapper/internal/opencv/preview"
	"stereo-mapper/internal/pipeline"
	"stereo-mapper/internal/shutdown"
	"stereo-mapper/internal/stereo"
)

func runAction(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration:\n%s", joinErrors(config.Errors(err))), 2)
	}

	base, closeLog, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer closeLog.Close()

	log := base.With(map[string]interface{}{"run_id": uuid.NewString()})
	log.Info("Main", "starting", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"left":       cfg.LeftDevice,
		"right":      cfg.RightDevice,
		"board":      fmt.Sprintf("%dx%d", cfg.BoardCols, cfg.BoardRows),
		"output":     cfg.OutputPath,
	})

	sm := shutdown.NewManager(c.Context, log)
	sm.Listen()
	defer sm.Shutdown()

	p, view, err := buildPipeline(cfg, log, sm)
	if err != nil {
		log.Error("Main", err, nil)
		return cli.Exit(err.Error(), 1)
	}
	// HighGUI windows are closed on the main thread, not by the shutdown manager.
	defer view.Close()

	res, err := p.Run(sm.Context())
	switch {
	case err == nil:
		log.Info("Main", "finished", map[string]interface{}{
			"views":  res.Calibration.Views,
			"frames": res.Matching.Frames,
			"points": res.Matching.LastPoints,
		})
		return nil
	case errors.Is(err, context.Canceled):
		log.Info("Main", "interrupted", map[string]interface{}{"frames": res.Matching.Frames})
		return nil
	default:
		log.Error("Main", err, map[string]interface{}{
			"accepted_views": res.Capture.Accepted,
			"capture_stop":   string(res.Capture.Stop),
		})
		return cli.Exit(err.Error(), 1)
	}
}

// buildPipeline wires the OpenCV-backed components. The Mat pool is registered with sm so it is
// released on every exit path. The returned preview must be closed by the caller on the
// goroutine that built it.
func buildPipeline(cfg config.Config, log *logger.ZerologAdapter, sm *shutdown.Manager) (*pipeline.Pipeline, pipeline.Preview, error) {
	board, err := calib.NewCheckerboard(cfg.BoardCols, cfg.BoardRows, cfg.SquareSize)
	if err != nil {
		return nil, nil, err
	}
	matcher, err := stereo.NewBlockMatcher(cfg.BlockMatcher())
	if err != nil {
		return nil, nil, err
	}

	pool := memory.NewManager(log, 4)
	sm.Register(shutdown.Func(pool.Cleanup))

	var view pipeline.Preview = pipeline.NopPreview{}
	if cfg.Preview {
		view = preview.New(board.Size(), log)
	}

	open := capture.Opener(capture.RigConfig{
		Left:  cfg.LeftDevice,
		Right: cfg.RightDevice,
		Sync:  cfg.SyncCapture,
	}, pool, log)

	captureLoop := pipeline.NewCaptureLoop(open, calib3d.NewChessboardDetector(board), board, view, log, cfg.Attempts)
	solver := pipeline.NewSolver(calib3d.NewIntrinsicSolver(), cfg.MinViews, cfg.MaxRMS, log)
	matching := pipeline.NewMatchingLoop(open, calib3d.NewRectifier, matcher, view, timing.NewTracker(100), log,
		pipeline.MatchingConfig{
			Mask:          cfg.Mask(),
			OutputPath:    cfg.OutputPath,
			MaxFrames:     cfg.MaxFrames,
			StatsInterval: cfg.StatsInterval,
			Memory:        pool,
		})

	return pipeline.New(captureLoop, solver, matching, log), view, nil
}

func joinErrors(errs []error) string {
	out := ""
	for _, e := range errs {
		out += "  - " + e.Error() + "\n"
	}
	return out
}
