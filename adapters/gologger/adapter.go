package gologger

import (
	"github.com/goliatone/go-gateway/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// NewObserver resolves a named logger and pairs it with a metrics recorder.
// Either input may be nil; the resulting observer degrades to no-ops.
func NewObserver(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
	metrics core.MetricsRecorder,
) core.Observer {
	_, resolved := Resolve(name, provider, logger)
	return core.Observer{
		Logger:  resolved,
		Metrics: metrics,
	}
}
