package calib

import "errors"

var (
	// ErrInsufficientViews is returned when fewer views than MinViews reach a solver.
	ErrInsufficientViews = errors.New("insufficient calibration views")
	// ErrCalibrationFailed is returned when a solve produces non-finite output or a residual
	// too large to trust.
	ErrCalibrationFailed = errors.New("calibration failed")
	// ErrDegenerateGeometry is returned for inputs that cannot define the requested transform,
	// such as collinear points or a zero baseline.
	ErrDegenerateGeometry = errors.New("degenerate calibration geometry")
)

// MinViews is the smallest number of board views any solver in this package accepts.
const MinViews = 3
