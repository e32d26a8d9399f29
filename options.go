package refstream

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

type freezerConfig struct {
	logHandler   slog.Handler
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
	maxDepth     int
}

// FreezerOption to pass to `NewFreezer`.
type FreezerOption func(*freezerConfig) error

// WithFreezeLog specifies which `slog.Handler` the freezer must use.
func WithFreezeLog(handler slog.Handler) FreezerOption {
	return func(c *freezerConfig) error {
		c.logHandler = handler
		return nil
	}
}

// WithFreezeMetricSink allows you to chose how to collect the metrics
// emitted by freezes.
func WithFreezeMetricSink(ms metrics.MetricSink) FreezerOption {
	return func(c *freezerConfig) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
		return nil
	}
}

// WithFreezeMetricLabels adds static labels to all metrics produced by the
// freezer.
func WithFreezeMetricLabels(labels []metrics.Label) FreezerOption {
	return func(c *freezerConfig) error {
		c.metricLabels = labels
		return nil
	}
}

// WithMaxDepth bounds the traversal depth a single freeze may reach.
// Graphs deeper than this fail with ErrFreezeDepthExceeded instead of
// consuming unbounded memory on adversarial input. Zero keeps the default.
func WithMaxDepth(depth int) FreezerOption {
	return func(c *freezerConfig) error {
		if depth < 0 {
			return ErrInvalidCfg
		}
		c.maxDepth = depth
		return nil
	}
}

type dispatcherConfig struct {
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
}

// DispatcherOption to pass to `NewDispatcher`.
type DispatcherOption func(*dispatcherConfig) error

// WithDispatchMetricSink allows you to chose how to collect the metrics
// emitted by dispatch (delegation pushes/pops, observed depth).
func WithDispatchMetricSink(ms metrics.MetricSink) DispatcherOption {
	return func(c *dispatcherConfig) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
		return nil
	}
}

// WithDispatchMetricLabels adds static labels to all metrics produced by
// the dispatcher.
func WithDispatchMetricLabels(labels []metrics.Label) DispatcherOption {
	return func(c *dispatcherConfig) error {
		c.metricLabels = labels
		return nil
	}
}

type trackerConfig struct {
	logHandler slog.Handler
}

// TrackerOption to pass to `NewTracker`.
type TrackerOption func(*trackerConfig) error

// WithTrackerLog specifies which `slog.Handler` the tracker must use when
// reporting ownership violations before panicking.
func WithTrackerLog(handler slog.Handler) TrackerOption {
	return func(c *trackerConfig) error {
		c.logHandler = handler
		return nil
	}
}
