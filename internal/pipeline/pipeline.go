package pipeline

import (
	"context"
	"fmt"

	"stereo-mapper/internal/logger"
)

// Pipeline runs capture, calibration and live matching in order. Calibration artifacts are
// produced once and handed to the matching loop read-only.
type Pipeline struct {
	capture  *CaptureLoop
	solver   *Solver
	matching *MatchingLoop
	logger   logger.Logger
}

func New(capture *CaptureLoop, solver *Solver, matching *MatchingLoop, log logger.Logger) *Pipeline {
	return &Pipeline{capture: capture, solver: solver, matching: matching, logger: log}
}

// Result collects the per-stage reports of a run.
type Result struct {
	Capture     CaptureReport
	Calibration CalibrationReport
	Matching    MatchReport
}

// Run returns nil when the live loop ends by interrupt or frame limit. Errors name the stage
// that failed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result

	corr, capReport, err := p.capture.Run(ctx)
	res.Capture = capReport
	if err != nil {
		return res, fmt.Errorf("calibration capture: %w", err)
	}
	if capReport.Stop == StopInterrupted && ctx.Err() != nil {
		return res, fmt.Errorf("calibration capture: %w", ctx.Err())
	}

	cal, calReport, err := p.solver.Solve(corr, capReport.FrameSize)
	res.Calibration = calReport
	if err != nil {
		if capReport.ReadErr != nil {
			err = fmt.Errorf("%w (capture ended early: %v)", err, capReport.ReadErr)
		}
		return res, fmt.Errorf("calibration solve: %w", err)
	}

	matchReport, err := p.matching.Run(ctx, cal)
	res.Matching = matchReport
	if err != nil {
		return res, fmt.Errorf("rectification and matching: %w", err)
	}

	p.logger.Info("Pipeline", "run finished", map[string]interface{}{
		"frames": matchReport.Frames,
		"stop":   string(matchReport.Stop),
	})
	return res, nil
}
