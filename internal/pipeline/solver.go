package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/logger"
)

// CalibrationReport carries the residuals of a solve for logging.
type CalibrationReport struct {
	Views     int
	LeftRMS   float64
	RightRMS  float64
	StereoRMS float64
	// Per-view camera-2 reprojection error statistics.
	ViewRMSMean   float64
	ViewRMSMedian float64
	ViewRMSMax    float64
	// Vertical disagreement of corner pairs after rectification, in pixels.
	EpipolarMean float64
	EpipolarMax  float64
	Baseline     float64
	Focal        float64
}

func (r CalibrationReport) Fields() map[string]interface{} {
	return map[string]interface{}{
		"views":           r.Views,
		"left_rms":        r.LeftRMS,
		"right_rms":       r.RightRMS,
		"stereo_rms":      r.StereoRMS,
		"view_rms_median": r.ViewRMSMedian,
		"view_rms_max":    r.ViewRMSMax,
		"epipolar_mean":   r.EpipolarMean,
		"epipolar_max":    r.EpipolarMax,
		"baseline":        r.Baseline,
		"focal":           r.Focal,
	}
}

type Solver struct {
	intrinsics IntrinsicSolver
	minViews   int
	maxRMS     float64
	logger     logger.Logger
}

// NewSolver returns a solver that rejects fewer than minViews views and, when maxRMS is
// positive, any residual above it.
func NewSolver(intrinsics IntrinsicSolver, minViews int, maxRMS float64, log logger.Logger) *Solver {
	if minViews < calib.MinViews {
		minViews = calib.MinViews
	}
	return &Solver{intrinsics: intrinsics, minViews: minViews, maxRMS: maxRMS, logger: log}
}

// Solve fits each camera on its own, then the relative pose with both intrinsics held fixed,
// then rectification and the per-camera lookup maps.
func (s *Solver) Solve(corr *calib.Correspondences, size image.Point) (*calib.Calibration, CalibrationReport, error) {
	var report CalibrationReport
	if corr != nil {
		report.Views = corr.Views()
	}
	if report.Views < s.minViews {
		return nil, report, fmt.Errorf("%w: have %d views, need %d", calib.ErrInsufficientViews, report.Views, s.minViews)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, report, fmt.Errorf("%w: unknown frame size %v", calib.ErrCalibrationFailed, size)
	}

	left, err := s.solveCamera("left", corr.ObjectPoints(), corr.ImagePoints1(), size)
	if err != nil {
		return nil, report, err
	}
	report.LeftRMS = left.Intrinsics.RMS

	right, err := s.solveCamera("right", corr.ObjectPoints(), corr.ImagePoints2(), size)
	if err != nil {
		return nil, report, err
	}
	report.RightRMS = right.Intrinsics.RMS

	ext, err := calib.SolveExtrinsicsSeeded(corr, left, right)
	if err != nil {
		return nil, report, fmt.Errorf("stereo extrinsics: %w", err)
	}
	report.StereoRMS = ext.RMS
	report.Baseline = ext.Baseline()
	if err := s.checkRMS("stereo", ext.RMS); err != nil {
		return nil, report, err
	}

	views := stats.Float64Data(ext.ViewRMS)
	report.ViewRMSMean, _ = views.Mean()
	report.ViewRMSMedian, _ = views.Median()
	report.ViewRMSMax, _ = views.Max()

	cal, err := calib.NewCalibration(left.Intrinsics, right.Intrinsics, ext, size)
	if err != nil {
		return nil, report, err
	}
	report.Focal = cal.Rectification.Focal()

	epi := stats.Float64Data(cal.EpipolarErrors(corr))
	report.EpipolarMean, _ = epi.Mean()
	report.EpipolarMax, _ = epi.Max()

	s.logger.Info("Solver", "stereo calibration complete", report.Fields())
	return cal, report, nil
}

func (s *Solver) solveCamera(name string, objects [][]r3.Vector, images [][]r2.Point, size image.Point) (calib.CameraFit, error) {
	fit, err := s.intrinsics.Calibrate(objects, images, size)
	if err != nil {
		return calib.CameraFit{}, fmt.Errorf("%s intrinsics: %w", name, err)
	}
	in := fit.Intrinsics
	if err := in.CheckValid(); err != nil {
		return calib.CameraFit{}, fmt.Errorf("%s intrinsics: %w", name, err)
	}
	if err := s.checkRMS(name, in.RMS); err != nil {
		return calib.CameraFit{}, err
	}

	s.logger.Debug("Solver", "camera calibrated", map[string]interface{}{
		"camera": name,
		"fx":     in.Fx,
		"fy":     in.Fy,
		"cx":     in.Cx,
		"cy":     in.Cy,
		"rms":    in.RMS,
		"poses":  len(fit.Poses),
	})
	return fit, nil
}

func (s *Solver) checkRMS(stage string, rms float64) error {
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return fmt.Errorf("%w: %s reprojection error is %v", calib.ErrCalibrationFailed, stage, rms)
	}
	if s.maxRMS > 0 && rms > s.maxRMS {
		return fmt.Errorf("%w: %s reprojection error %.3f px exceeds %.3f px", calib.ErrCalibrationFailed, stage, rms, s.maxRMS)
	}
	return nil
}
