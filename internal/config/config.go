package config

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"stereo-mapper/internal/calib"
	"stereo-mapper/internal/cloud"
	"stereo-mapper/internal/stereo"
)

// Config holds every tunable of a run. Zero values are not meaningful; start from Default.
type Config struct {
	LeftDevice  int
	RightDevice int

	BoardCols   int
	BoardRows   int
	SquareSize  float64 // meters
	Attempts    int
	MinViews    int
	MaxRMS      float64 // pixels; 0 disables the check
	SyncCapture bool

	NumDisparities   int
	BlockSize        int
	UniquenessRatio  int
	TextureThreshold int
	SubPixel         bool
	MaskMode         string

	OutputPath    string
	Preview       bool
	MaxFrames     int // 0 runs until interrupted
	StatsInterval int

	LogLevel string
	LogFile  string
}

func Default() Config {
	bm := stereo.DefaultBlockMatcherConfig()
	return Config{
		LeftDevice:       0,
		RightDevice:      1,
		BoardCols:        9,
		BoardRows:        6,
		SquareSize:       0.025,
		Attempts:         30,
		MinViews:         calib.MinViews,
		MaxRMS:           2.0,
		NumDisparities:   bm.NumDisparities,
		BlockSize:        bm.BlockSize,
		UniquenessRatio:  bm.UniquenessRatio,
		TextureThreshold: bm.TextureThreshold,
		SubPixel:         bm.SubPixel,
		MaskMode:         string(cloud.MaskRelativeMin),
		OutputPath:       cloud.DefaultFileName,
		Preview:          true,
		StatsInterval:    30,
		LogLevel:         "info",
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(c.LeftDevice >= 0 && c.RightDevice >= 0, "device indices must not be negative")
	check(c.LeftDevice != c.RightDevice, "left and right device must differ, both are %d", c.LeftDevice)
	check(c.BoardCols >= 2 && c.BoardRows >= 2, "board needs at least 2x2 inner corners, got %dx%d", c.BoardCols, c.BoardRows)
	check(c.SquareSize > 0 && !math.IsInf(c.SquareSize, 0), "square size must be positive, got %v", c.SquareSize)
	check(c.Attempts > 0, "capture attempts must be positive, got %d", c.Attempts)
	check(c.MinViews >= calib.MinViews, "min views must be at least %d, got %d", calib.MinViews, c.MinViews)
	check(c.MaxRMS >= 0, "max rms must not be negative, got %v", c.MaxRMS)
	check(c.OutputPath != "", "output path is required")
	check(c.MaxFrames >= 0, "max frames must not be negative, got %d", c.MaxFrames)
	check(c.StatsInterval >= 0, "stats interval must not be negative, got %d", c.StatsInterval)

	if _, e := cloud.ParseMaskMode(c.MaskMode); e != nil {
		err = multierr.Append(err, e)
	}
	if e := c.BlockMatcher().Validate(); e != nil {
		err = multierr.Append(err, e)
	}
	return err
}

// BlockMatcher returns the matcher settings; unset knobs keep StereoBM defaults.
func (c Config) BlockMatcher() stereo.BlockMatcherConfig {
	bm := stereo.DefaultBlockMatcherConfig()
	bm.NumDisparities = c.NumDisparities
	bm.BlockSize = c.BlockSize
	bm.UniquenessRatio = c.UniquenessRatio
	bm.TextureThreshold = c.TextureThreshold
	bm.SubPixel = c.SubPixel
	return bm
}

func (c Config) Mask() cloud.MaskMode {
	m, err := cloud.ParseMaskMode(c.MaskMode)
	if err != nil {
		return cloud.MaskRelativeMin
	}
	return m
}

// Errors flattens a Validate result for line-by-line reporting.
func Errors(err error) []error {
	return multierr.Errors(err)
}
