package main

import (
	"github.com/urfave/cli/v2"

	"stereo-mapper/internal/config"
)

const (
	flagLeftDevice       = "left-device"
	flagRightDevice      = "right-device"
	flagBoardCols        = "board-cols"
	flagBoardRows        = "board-rows"
	flagSquareSize       = "square-size"
	flagAttempts         = "attempts"
	flagMinViews         = "min-views"
	flagMaxRMS           = "max-rms"
	flagSyncCapture      = "sync-capture"
	flagNumDisparities   = "num-disparities"
	flagBlockSize        = "block-size"
	flagUniquenessRatio  = "uniqueness-ratio"
	flagTextureThreshold = "texture-threshold"
	flagSubPixel         = "subpixel"
	flagMaskMode         = "mask-mode"
	flagOutput           = "output"
	flagPreview          = "preview"
	flagMaxFrames        = "max-frames"
	flagStatsInterval    = "stats-interval"
	flagLogLevel         = "log-level"
	flagLogFile          = "log-file"
)

func env(name string) []string {
	return []string{"STEREO_" + name}
}

func runFlags() []cli.Flag {
	d := config.Default()
	return []cli.Flag{
		&cli.IntFlag{Name: flagLeftDevice, Value: d.LeftDevice, EnvVars: env("LEFT_DEVICE"), Usage: "left camera index"},
		&cli.IntFlag{Name: flagRightDevice, Value: d.RightDevice, EnvVars: env("RIGHT_DEVICE"), Usage: "right camera index"},
		&cli.IntFlag{Name: flagBoardCols, Value: d.BoardCols, EnvVars: env("BOARD_COLS"), Usage: "inner corners per board row"},
		&cli.IntFlag{Name: flagBoardRows, Value: d.BoardRows, EnvVars: env("BOARD_ROWS"), Usage: "inner corners per board column"},
		&cli.Float64Flag{Name: flagSquareSize, Value: d.SquareSize, EnvVars: env("SQUARE_SIZE"), Usage: "board square edge in meters"},
		&cli.IntFlag{Name: flagAttempts, Value: d.Attempts, EnvVars: env("ATTEMPTS"), Usage: "calibration capture attempts"},
		&cli.IntFlag{Name: flagMinViews, Value: d.MinViews, EnvVars: env("MIN_VIEWS"), Usage: "views required before solving"},
		&cli.Float64Flag{Name: flagMaxRMS, Value: d.MaxRMS, EnvVars: env("MAX_RMS"), Usage: "largest accepted reprojection error in pixels, 0 disables"},
		&cli.BoolFlag{Name: flagSyncCapture, Value: d.SyncCapture, EnvVars: env("SYNC_CAPTURE"), Usage: "read both cameras concurrently"},
		&cli.IntFlag{Name: flagNumDisparities, Value: d.NumDisparities, EnvVars: env("NUM_DISPARITIES"), Usage: "disparity search range, a multiple of 16"},
		&cli.IntFlag{Name: flagBlockSize, Value: d.BlockSize, EnvVars: env("BLOCK_SIZE"), Usage: "odd matching window edge"},
		&cli.IntFlag{Name: flagUniquenessRatio, Value: d.UniquenessRatio, EnvVars: env("UNIQUENESS_RATIO"), Usage: "percent margin of the best match"},
		&cli.IntFlag{Name: flagTextureThreshold, Value: d.TextureThreshold, EnvVars: env("TEXTURE_THRESHOLD"), Usage: "minimum window texture"},
		&cli.BoolFlag{Name: flagSubPixel, Value: d.SubPixel, EnvVars: env("SUBPIXEL"), Usage: "sub-pixel disparity refinement"},
		&cli.StringFlag{Name: flagMaskMode, Value: d.MaskMode, EnvVars: env("MASK_MODE"), Usage: "relative-min or sentinel"},
		&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Value: d.OutputPath, EnvVars: env("OUTPUT"), Usage: "point cloud `FILE`, rewritten every frame"},
		&cli.BoolFlag{Name: flagPreview, Value: d.Preview, EnvVars: env("PREVIEW"), Usage: "show preview windows"},
		&cli.IntFlag{Name: flagMaxFrames, Value: d.MaxFrames, EnvVars: env("MAX_FRAMES"), Usage: "stop after this many frames, 0 runs until interrupted"},
		&cli.IntFlag{Name: flagStatsInterval, Value: d.StatsInterval, EnvVars: env("STATS_INTERVAL"), Usage: "log stage timings every N frames, 0 disables"},
		&cli.StringFlag{Name: flagLogLevel, Value: d.LogLevel, EnvVars: []string{"STEREO_LOG_LEVEL", "LOG_LEVEL"}, Usage: "debug, info, warning or error"},
		&cli.StringFlag{Name: flagLogFile, Value: d.LogFile, EnvVars: env("LOG_FILE"), Usage: "also write JSON logs to a rotating `FILE`"},
	}
}

// configFromContext reads every run flag into a validated Config.
func configFromContext(c *cli.Context) (config.Config, error) {
	cfg := config.Config{
		LeftDevice:       c.Int(flagLeftDevice),
		RightDevice:      c.Int(flagRightDevice),
		BoardCols:        c.Int(flagBoardCols),
		BoardRows:        c.Int(flagBoardRows),
		SquareSize:       c.Float64(flagSquareSize),
		Attempts:         c.Int(flagAttempts),
		MinViews:         c.Int(flagMinViews),
		MaxRMS:           c.Float64(flagMaxRMS),
		SyncCapture:      c.Bool(flagSyncCapture),
		NumDisparities:   c.Int(flagNumDisparities),
		BlockSize:        c.Int(flagBlockSize),
		UniquenessRatio:  c.Int(flagUniquenessRatio),
		TextureThreshold: c.Int(flagTextureThreshold),
		SubPixel:         c.Bool(flagSubPixel),
		MaskMode:         c.String(flagMaskMode),
		OutputPath:       c.String(flagOutput),
		Preview:          c.Bool(flagPreview),
		MaxFrames:        c.Int(flagMaxFrames),
		StatsInterval:    c.Int(flagStatsInterval),
		LogLevel:         c.String(flagLogLevel),
		LogFile:          c.String(flagLogFile),
	}
	return cfg, cfg.Validate()
}
