package capture

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"stereo-mapper/internal/logger"
	"stereo-mapper/internal/opencv/memory"
	"stereo-mapper/internal/pipeline"
)

type RigConfig struct {
	Left  interface{}
	Right interface{}
	// Sync reads both cameras concurrently to shrink the time between the two exposures.
	Sync bool
}

// Rig is the two-camera pipeline.StereoSource.
type Rig struct {
	left   *Device
	right  *Device
	sync   bool
	logger logger.Logger
}

// OpenRig opens both cameras. If the right camera fails the left one is closed again.
func OpenRig(cfg RigConfig, pool *memory.Manager, log logger.Logger) (*Rig, error) {
	left, err := OpenDevice("left", cfg.Left, pool)
	if err != nil {
		return nil, err
	}
	right, err := OpenDevice("right", cfg.Right, pool)
	if err != nil {
		return nil, multierr.Append(err, left.Close())
	}

	log.Info("Rig", "cameras opened", map[string]interface{}{
		"left":  fmt.Sprint(cfg.Left),
		"right": fmt.Sprint(cfg.Right),
		"sync":  cfg.Sync,
	})
	return &Rig{left: left, right: right, sync: cfg.Sync, logger: log}, nil
}

// Opener returns a pipeline.SourceOpener that opens a fresh rig per call.
func Opener(cfg RigConfig, pool *memory.Manager, log logger.Logger) pipeline.SourceOpener {
	return func(ctx context.Context) (pipeline.StereoSource, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenRig(cfg, pool, log)
	}
}

func (r *Rig) ReadPair(ctx context.Context) (pipeline.Frame, pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var left, right *Frame
	if !r.sync {
		var err error
		if left, err = r.left.Read(); err != nil {
			return nil, nil, err
		}
		if right, err = r.right.Read(); err != nil {
			left.Close()
			return nil, nil, err
		}
		return left, right, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		left, err = r.left.Read()
		return err
	})
	g.Go(func() (err error) {
		right, err = r.right.Read()
		return err
	})
	if err := g.Wait(); err != nil {
		if left != nil {
			left.Close()
		}
		if right != nil {
			right.Close()
		}
		return nil, nil, err
	}
	return left, right, nil
}

func (r *Rig) Close() error {
	err := multierr.Combine(r.left.Close(), r.right.Close())
	r.logger.Debug("Rig", "cameras closed", nil)
	return err
}
