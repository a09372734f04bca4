package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/cloud"
	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/stereo"
)

// MatchReport summarizes one run of the matching loop.
type MatchReport struct {
	Frames     int
	LastPoints int
	Stop       StopReason
}

const (
	StopMaxFrames StopReason = "frame limit reached"
	StopFailed    StopReason = "failed"
)

type MatchingConfig struct {
	Mask       cloud.MaskMode
	OutputPath string
	// MaxFrames stops the loop after that many exports; 0 runs until interrupted.
	MaxFrames int
	// StatsInterval logs stage timings every that many frames; 0 disables.
	StatsInterval int
	// Memory adds buffer pool figures to the statistics when set.
	Memory MemoryReporter
}

type MatchingLoop struct {
	open         SourceOpener
	newRectifier RectifierFactory
	matcher      *stereo.BlockMatcher
	preview      Preview
	timer        TimingTracker
	logger       logger.Logger
	cfg          MatchingConfig
}

func NewMatchingLoop(open SourceOpener, newRectifier RectifierFactory, matcher *stereo.BlockMatcher, preview Preview, timer TimingTracker, log logger.Logger, cfg MatchingConfig) *MatchingLoop {
	if preview == nil {
		preview = NopPreview{}
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = cloud.DefaultFileName
	}
	if cfg.Mask == "" {
		cfg.Mask = cloud.MaskRelativeMin
	}
	return &MatchingLoop{
		open:         open,
		newRectifier: newRectifier,
		matcher:      matcher,
		preview:      preview,
		timer:        timer,
		logger:       log,
		cfg:          cfg,
	}
}

// Run rectifies, matches and exports frame pairs until interrupted or the frame limit is
// reached. The rectifier is built once from cal before the first frame. A read failure is
// fatal and returned wrapped in ErrSourceUnavailable.
func (l *MatchingLoop) Run(ctx context.Context, cal *calib.Calibration) (report MatchReport, err error) {
	if cal == nil {
		return report, fmt.Errorf("matching needs a calibration")
	}

	rect, err := l.newRectifier(cal)
	if err != nil {
		return report, fmt.Errorf("build rectifier: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rect.Close())
	}()

	src, err := l.open(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: open cameras for matching: %v", ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close cameras after matching: %w", cerr))
		}
	}()

	l.logger.Info("MatchingLoop", "live matching started", map[string]interface{}{
		"output":     l.cfg.OutputPath,
		"mask":       string(l.cfg.Mask),
		"max_frames": l.cfg.MaxFrames,
	})

	for {
		if interrupted(ctx, l.preview) {
			report.Stop = StopInterrupted
			return report, nil
		}
		if l.cfg.MaxFrames > 0 && report.Frames >= l.cfg.MaxFrames {
			report.Stop = StopMaxFrames
			return report, nil
		}

		points, err := l.step(ctx, src, rect, cal)
		if err != nil {
			report.Stop = StopFailed
			if errors.Is(err, ErrSourceUnavailable) {
				report.Stop = StopSourceUnavailable
			}
			return report, err
		}
		report.Frames++
		report.LastPoints = points

		if l.cfg.StatsInterval > 0 && report.Frames%l.cfg.StatsInterval == 0 {
			l.logStats(report)
		}
	}
}

// step processes one frame pair and returns the number of exported points.
func (l *MatchingLoop) step(ctx context.Context, src StereoSource, rect Rectifier, cal *calib.Calibration) (int, error) {
	tc := l.timer.StartTiming("capture")
	left, right, err := src.ReadPair(ctx)
	l.timer.EndTiming(tc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer left.Close()
	defer right.Close()

	tc = l.timer.StartTiming("rectify")
	pair, err := rect.Rectify(left, right)
	l.timer.EndTiming(tc)
	if err != nil {
		return 0, fmt.Errorf("rectify frame pair: %w", err)
	}
	defer pair.Close()

	tc = l.timer.StartTiming("match")
	disp, err := l.matcher.Compute(pair.Left, pair.Right)
	l.timer.EndTiming(tc)
	if err != nil {
		return 0, fmt.Errorf("block matching: %w", err)
	}

	l.preview.ShowMatch(pair, disp.Normalize())

	tc = l.timer.StartTiming("export")
	defer l.timer.EndTiming(tc)
	pc, err := cloud.Reproject(disp, pair.Color, cal.Rectification.Q, l.cfg.Mask)
	if err != nil {
		return 0, fmt.Errorf("reproject disparity: %w", err)
	}
	if err := cloud.WritePLY(l.cfg.OutputPath, pc); err != nil {
		return 0, fmt.Errorf("export point cloud: %w", err)
	}
	return pc.Len(), nil
}

func (l *MatchingLoop) logStats(report MatchReport) {
	fields := map[string]interface{}{
		"frames": report.Frames,
		"points": report.LastPoints,
	}
	for _, s := range l.timer.Summaries() {
		fields[s.Operation+"_ms"] = s.MeanMs
		fields[s.Operation+"_p95_ms"] = s.P95Ms
	}
	if l.cfg.Memory != nil {
		for k, v := range l.cfg.Memory.MemoryFields() {
			fields[k] = v
		}
	}
	l.logger.Info("MatchingLoop", "frame statistics", fields)
}
