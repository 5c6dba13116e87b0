package protocol

import (
	"context"
	"fmt"

	"laserops/internal/job"
	"laserops/internal/machine"
)

// Router selects the protocol adapter for a machine's connection family.
// The mapping is static and exhaustive: every family has an adapter, even
// the ones whose adapter always fails. Selection never depends on job
// content.
type Router struct {
	adapters map[machine.ConnectionType]Adapter
}

// NewRouter creates a router over the default adapter set.
func NewRouter() *Router {
	return NewRouterWith(
		NewBridgeAdapter(),
		NewGRBLAdapter(),
		NewRuidaAdapter(),
		NewCloudAdapter(),
		NewManualAdapter(),
	)
}

// NewRouterWith creates a router over an explicit adapter set. Used by
// tests to substitute fakes.
func NewRouterWith(adapters ...Adapter) *Router {
	byFamily := make(map[machine.ConnectionType]Adapter, len(adapters))
	for _, a := range adapters {
		byFamily[a.Family()] = a
	}
	return &Router{adapters: byFamily}
}

// Route returns the adapter for a machine's connection family.
func (r *Router) Route(m *machine.Machine) (Adapter, error) {
	a, ok := r.adapters[m.ConnectionType]
	if !ok {
		return nil, fmt.Errorf("no adapter for connection type %q", m.ConnectionType)
	}
	return a, nil
}

// Send routes and runs one dispatch attempt.
func (r *Router) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	a, err := r.Route(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return a.Send(ctx, m, j)
}

// Probe routes and runs one status query.
func (r *Router) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	a, err := r.Route(m)
	if err != nil {
		return machine.ProbeResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return a.Probe(ctx, m)
}

// Interface checks: the router is the job sender and the machine prober.
var (
	_ job.Sender     = (*Router)(nil)
	_ machine.Prober = (*Router)(nil)
)
