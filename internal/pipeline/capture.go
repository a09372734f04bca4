package pipeline

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/multierr"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/logger"
)

type StopReason string

const (
	StopAttempts          StopReason = "attempts exhausted"
	StopInterrupted       StopReason = "interrupted"
	StopSourceUnavailable StopReason = "source unavailable"
)

// CaptureReport summarizes one run of the capture loop.
type CaptureReport struct {
	Attempts  int
	Accepted  int
	LeftOnly  int
	RightOnly int
	Neither   int
	Skipped   int // pairs dropped for a size mismatch
	FrameSize image.Point
	Stop      StopReason
	// ReadErr is the read failure that ended the loop, if any.
	ReadErr error
}

type CaptureLoop struct {
	open     SourceOpener
	detector CornerDetector
	board    *calib.Checkerboard
	preview  Preview
	logger   logger.Logger
	attempts int
}

func NewCaptureLoop(open SourceOpener, detector CornerDetector, board *calib.Checkerboard, preview Preview, log logger.Logger, attempts int) *CaptureLoop {
	if preview == nil {
		preview = NopPreview{}
	}
	return &CaptureLoop{
		open:     open,
		detector: detector,
		board:    board,
		preview:  preview,
		logger:   log,
		attempts: attempts,
	}
}

// Run performs up to the configured number of capture attempts and returns every view in
// which both cameras saw the board. A read failure ends the loop early without an error: the
// views gathered so far are still returned and the report records why capture stopped.
func (l *CaptureLoop) Run(ctx context.Context) (_ *calib.Correspondences, report CaptureReport, err error) {
	corr := calib.NewCorrespondences()

	src, err := l.open(ctx)
	if err != nil {
		return corr, report, fmt.Errorf("%w: open cameras for capture: %v", ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close cameras after capture: %w", cerr))
		}
	}()

	report.Stop = StopAttempts
	for attempt := 0; attempt < l.attempts; attempt++ {
		if interrupted(ctx, l.preview) {
			report.Stop = StopInterrupted
			break
		}

		left, right, rerr := src.ReadPair(ctx)
		if rerr != nil {
			report.Stop = StopSourceUnavailable
			report.ReadErr = fmt.Errorf("%w: %v", ErrSourceUnavailable, rerr)
			l.logger.Warning("CaptureLoop", "frame read failed, ending capture", map[string]interface{}{
				"attempt": attempt + 1,
				"error":   rerr.Error(),
			})
			break
		}
		report.Attempts++
		l.attempt(left, right, corr, &report)
		left.Close()
		right.Close()
	}

	l.logger.Info("CaptureLoop", "capture finished", map[string]interface{}{
		"attempts":   report.Attempts,
		"accepted":   report.Accepted,
		"left_only":  report.LeftOnly,
		"right_only": report.RightOnly,
		"stop":       string(report.Stop),
	})
	return corr, report, nil
}

func (l *CaptureLoop) attempt(left, right Frame, corr *calib.Correspondences, report *CaptureReport) {
	size := left.Size()
	if size != right.Size() || (report.FrameSize != image.Point{} && size != report.FrameSize) {
		report.Skipped++
		l.logger.Warning("CaptureLoop", "frame size mismatch, pair skipped", map[string]interface{}{
			"left":     left.Size().String(),
			"right":    right.Size().String(),
			"expected": report.FrameSize.String(),
		})
		return
	}
	if report.FrameSize == (image.Point{}) {
		report.FrameSize = size
	}

	leftDet := l.detect(left, "left")
	rightDet := l.detect(right, "right")
	l.preview.ShowCapture(left, right, leftDet, rightDet)

	switch {
	case leftDet.Found && rightDet.Found:
		if err := corr.Add(l.board, leftDet.Corners, rightDet.Corners); err != nil {
			// detect already checked the corner count; anything else is treated as a miss.
			report.Neither++
			l.logger.Debug("CaptureLoop", "detection rejected", map[string]interface{}{"error": err.Error()})
			return
		}
		report.Accepted++
		l.logger.Debug("CaptureLoop", "view accepted", map[string]interface{}{"views": corr.Views()})
	case leftDet.Found:
		report.LeftOnly++
	case rightDet.Found:
		report.RightOnly++
	default:
		report.Neither++
	}
}

func (l *CaptureLoop) detect(frame Frame, camera string) Detection {
	det, err := l.detector.Detect(frame)
	if err != nil {
		l.logger.Debug("CaptureLoop", "corner detection failed", map[string]interface{}{
			"camera": camera,
			"error":  err.Error(),
		})
		return Detection{}
	}
	if det.Found && len(det.Corners) != l.board.Len() {
		return Detection{}
	}
	return det
}
