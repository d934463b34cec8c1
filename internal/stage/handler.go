package stage

import (
	"context"

	"readcast/internal/records"
)

// Handler describes the contract the orchestrator needs from each stage.
type Handler interface {
	Prepare(context.Context, *records.Record) error
	Execute(context.Context, *records.Record) error
	HealthCheck(context.Context) Health
}

// Health reports whether a stage's backing service can currently be reached.
// Detail carries the probe failure when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
