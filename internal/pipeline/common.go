package pipeline

import (
	"context"
	"errors"

	"stereo-mapper/internal/debug/timing"
)

// ErrSourceUnavailable means a camera could not be opened or failed to deliver a frame.
var ErrSourceUnavailable = errors.New("video source unavailable")

type TimingTracker interface {
	StartTiming(operation string) context.Context
	EndTiming(ctx context.Context)
	Summaries() []timing.Summary
}

func interrupted(ctx context.Context, preview Preview) bool {
	return ctx.Err() != nil || preview.Interrupted()
}

// MemoryReporter contributes buffer pool figures to the periodic frame statistics.
type MemoryReporter interface {
	MemoryFields() map[string]interface{}
}
