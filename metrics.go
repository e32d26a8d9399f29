package refstream

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricRefstreamFreezeObjects represents how many objects were
	// turned immutable by successful freezes.
	MetricRefstreamFreezeObjects       = []string{"refstream", "freeze", "objects"}
	MetricRefstreamFreezeGroups        = []string{"refstream", "freeze", "groups"}
	MetricRefstreamFreezeDurationMs    = []string{"refstream", "freeze", "duration", "ms"}
	MetricRefstreamFreezeErrorCount    = []string{"refstream", "freeze", "error", "count"}
	MetricRefstreamDispatchDelegations = []string{"refstream", "dispatch", "delegations"}
	MetricRefstreamDispatchPops        = []string{"refstream", "dispatch", "pops"}
	MetricRefstreamDispatchDepth       = []string{"refstream", "dispatch", "depth"}
)

type TelemetryLabel string

var (
	LabelError       TelemetryLabel = "error"
	LabelRootCount   TelemetryLabel = "root_count"
	LabelObjectCount TelemetryLabel = "object_count"
	LabelGroupCount  TelemetryLabel = "group_count"
	LabelMaxDepth    TelemetryLabel = "max_depth"
	LabelField       TelemetryLabel = "field"
	LabelOwner       TelemetryLabel = "owner"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
