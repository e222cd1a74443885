package core

import "context"

// NopMetricsRecorder discards every measurement. It is the default recorder
// so the gateway runs unchanged without a metrics backend; a real recorder
// receives the `gateway.<operation>.total` counters and
// `gateway.<operation>.duration_ms` histograms emitted by
// Observer.ObserveOperation, tagged with operation and status.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags keeps recorder implementations from aliasing caller maps.
func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
