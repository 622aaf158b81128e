// Package telemetry records operation outcomes for the registry and registrar
// engines. Two recorders are provided: a Prometheus recorder for scraped
// deployments and an expvar recorder for process-local inspection.
package telemetry

import (
	"context"
	"time"
)

// Recorder observes one engine operation outcome.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Nop is a Recorder that discards every observation.
type Nop struct{}

// Observe implements Recorder.
func (Nop) Observe(context.Context, string, bool, time.Duration) {}
