package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"
)

const (
	AppName    = "stereo-mapper"
	AppVersion = "1.0.0"
)

func init() {
	// HighGUI windows must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    AppName,
		Usage:   "calibrate a two-camera rig and stream colored point clouds",
		Version: AppVersion,
		Flags:   runFlags(),
		Action:  runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "capture calibration views, calibrate and run live matching",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:      "inspect",
				Usage:     "print vertex count and bounds of an exported point cloud",
				ArgsUsage: "<file.ply>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagLogLevel, Value: "info", EnvVars: []string{"LOG_LEVEL"}},
				},
				Action: inspectAction,
			},
		},
	}
}
