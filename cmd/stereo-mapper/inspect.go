package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"stereo-mapper/internal/cloud"
	"stereo-mapper/internal/logger"
)

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("inspect needs exactly one PLY file", 2)
	}
	path := c.Args().First()

	log, closeLog, err := logger.New(logger.Options{Level: c.String(flagLogLevel), Console: c.App.Writer})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer closeLog.Close()

	pc, err := cloud.ReadPLY(path)
	if err != nil {
		log.Error("Inspect", err, map[string]interface{}{"file": path})
		return cli.Exit(fmt.Sprintf("read %s: %v", path, err), 1)
	}

	fields := map[string]interface{}{
		"file":     path,
		"vertices": pc.Len(),
	}
	if lo, hi, ok := pc.Bounds(); ok {
		fields["min"] = []float64{lo.X, lo.Y, lo.Z}
		fields["max"] = []float64{hi.X, hi.Y, hi.Z}
	}
	log.Info("Inspect", "point cloud", fields)
	return nil
}
