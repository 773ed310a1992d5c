package scheduler

import (
	"context"
	"time"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// Metrics receives engine events. internal/metrics implements it.
type Metrics interface {
	BuildFinished(status model.ScheduleStatus, took time.Duration)
	Selection(factor float64, postReset bool)
	CategoryReset(category model.Category)
	NoContent(slot string)
}

// Notifier is told about every finished build.
type Notifier interface {
	BuildFinished(ctx context.Context, res *BuildResult) error
}

type nopMetrics struct{}

func (nopMetrics) BuildFinished(model.ScheduleStatus, time.Duration) {}
func (nopMetrics) Selection(float64, bool)                            {}
func (nopMetrics) CategoryReset(model.Category)                       {}
func (nopMetrics) NoContent(string)                                   {}

type nopNotifier struct{}

func (nopNotifier) BuildFinished(context.Context, *BuildResult) error { return nil }
