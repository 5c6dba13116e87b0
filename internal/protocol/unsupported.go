package protocol

import (
	"context"
	"errors"

	"laserops/internal/job"
	"laserops/internal/machine"
)

// Ruida and cloud-vendor integrations require pieces that do not exist
// yet: a companion application for Ruida DSP controllers and third-party
// API access for cloud machines. Their adapters fail every dispatch with
// an explanatory message instead of attempting a transfer, and report the
// machine offline on probe.

// ErrRuidaNotSupported explains why Ruida dispatch always fails.
var ErrRuidaNotSupported = errors.New(
	"ruida controllers need the companion bridge application, which is not available yet; dispatch the file manually")

// ErrCloudNotSupported explains why cloud-vendor dispatch always fails.
var ErrCloudNotSupported = errors.New(
	"cloud-vendor machines require third-party API access that is not configured; use the vendor's own app")

// RuidaAdapter is the permanently capability-limited Ruida integration.
type RuidaAdapter struct{}

// NewRuidaAdapter creates the Ruida placeholder adapter.
func NewRuidaAdapter() *RuidaAdapter { return &RuidaAdapter{} }

func (a *RuidaAdapter) Family() machine.ConnectionType { return machine.ConnRuida }

func (a *RuidaAdapter) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	return ErrRuidaNotSupported
}

func (a *RuidaAdapter) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	return machine.ProbeResult{Online: false}, nil
}

// CloudAdapter is the permanently capability-limited cloud-vendor integration.
type CloudAdapter struct{}

// NewCloudAdapter creates the cloud-vendor placeholder adapter.
func NewCloudAdapter() *CloudAdapter { return &CloudAdapter{} }

func (a *CloudAdapter) Family() machine.ConnectionType { return machine.ConnCloud }

func (a *CloudAdapter) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	return ErrCloudNotSupported
}

func (a *CloudAdapter) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	return machine.ProbeResult{Online: false}, nil
}

// ManualAdapter represents a human operator handling the job off-system.
// Dispatch succeeds trivially with no network I/O, and the machine is
// always considered online.
type ManualAdapter struct{}

// NewManualAdapter creates the manual adapter.
func NewManualAdapter() *ManualAdapter { return &ManualAdapter{} }

func (a *ManualAdapter) Family() machine.ConnectionType { return machine.ConnManual }

func (a *ManualAdapter) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	return nil
}

func (a *ManualAdapter) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	return machine.ProbeResult{Online: true}, nil
}

var (
	_ Adapter = (*RuidaAdapter)(nil)
	_ Adapter = (*CloudAdapter)(nil)
	_ Adapter = (*ManualAdapter)(nil)
)
