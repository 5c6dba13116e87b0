package machine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"laserops/internal/apperrors"
	"laserops/internal/observability"
)

// Prober performs a lightweight status query against one machine.
// Implemented by the protocol router; selection follows the machine's
// connection family.
type Prober interface {
	Probe(ctx context.Context, m *Machine) (ProbeResult, error)
}

// EventSink receives machine status events for async delivery.
// Implementations must not block.
type EventSink interface {
	Publish(eventType, subject string, data map[string]any)
}

// Registry owns machine profiles and their live connection status.
//
// Status writes are last-write-wins: the probe, a successful dispatch, and
// progress updates all mutate the status independently, and the value is
// advisory telemetry rather than a lock.
type Registry struct {
	store   Store
	prober  Prober
	events  EventSink
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry over the given store and prober.
// events and metrics may be nil.
func NewRegistry(store Store, prober Prober, events EventSink, metrics *observability.Metrics) *Registry {
	return &Registry{
		store:   store,
		prober:  prober,
		events:  events,
		metrics: metrics,
		logger:  slog.With("component", "machine-registry"),
		now:     time.Now,
	}
}

// Create registers a new machine profile. Envelope limits are advisory and
// never block creation; only identity and connection fields are validated.
func (r *Registry) Create(ctx context.Context, req *Request) (*Machine, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name", "machine name is required")
	}
	if !validFamily(req.Family) {
		return nil, apperrors.Validation("family", fmt.Sprintf("unknown machine family %q", req.Family))
	}
	if !validConnectionType(req.ConnectionType) {
		return nil, apperrors.Validation("connectionType", fmt.Sprintf("unknown connection type %q", req.ConnectionType))
	}
	if req.Address == "" && (req.ConnectionType == ConnBridge || req.ConnectionType == ConnGRBL) {
		return nil, apperrors.Validation("address", fmt.Sprintf("address is required for %s machines", req.ConnectionType))
	}

	m := &Machine{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Family:           req.Family,
		ConnectionType:   req.ConnectionType,
		Address:          req.Address,
		Port:             req.Port,
		BedWidthMm:       req.BedWidthMm,
		BedHeightMm:      req.BedHeightMm,
		MaxPowerW:        req.MaxPowerW,
		MaxSpeedMmSec:    req.MaxSpeedMmSec,
		AccelMmSec2:      req.AccelMmSec2,
		HourlyRate:       req.HourlyRate,
		ConnectionStatus: StatusOffline,
		CreatedAt:        r.now().UTC(),
	}
	if err := r.store.Create(ctx, m); err != nil {
		return nil, err
	}

	r.logger.Info("Machine registered", "machineId", m.ID, "name", m.Name, "connectionType", m.ConnectionType)
	return m, nil
}

// Get returns one machine profile.
func (r *Registry) Get(ctx context.Context, id string) (*Machine, error) {
	return r.store.Get(ctx, id)
}

// List returns all machine profiles.
func (r *Registry) List(ctx context.Context) ([]*Machine, error) {
	return r.store.List(ctx)
}

// Ping runs the probe operation for one machine and synchronizes its
// connection status. A failed probe marks the machine offline rather than
// surfacing an error; only an unknown machine id is an error.
func (r *Registry) Ping(ctx context.Context, id string) (*Machine, error) {
	m, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, probeErr := r.prober.Probe(ctx, m)

	prev := m.ConnectionStatus
	now := r.now().UTC()
	if probeErr != nil || !result.Online {
		m.ConnectionStatus = StatusOffline
	} else {
		m.ConnectionStatus = StatusOnline
		m.LastSeenAt = &now
		if result.Firmware != "" {
			m.FirmwareVersion = result.Firmware
		}
	}

	if err := r.store.Update(ctx, m); err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordProbe(ctx, string(m.Family), m.ConnectionStatus == StatusOnline)
	}
	r.publishTransition(m, prev)

	if probeErr != nil {
		r.logger.Warn("Machine probe failed", "machineId", id, "error", probeErr)
	} else {
		r.logger.Debug("Machine probed", "machineId", id, "status", m.ConnectionStatus)
	}
	return m, nil
}

// PingAll probes every registered machine. Used by the scheduled probe loop.
func (r *Registry) PingAll(ctx context.Context) {
	machines, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("Probe sweep failed to list machines", "error", err)
		return
	}
	for _, m := range machines {
		if _, err := r.Ping(ctx, m.ID); err != nil {
			r.logger.Warn("Probe sweep error", "machineId", m.ID, "error", err)
		}
	}
}

// SetStatus records a status observation for a machine. Missing machines
// are ignored: status is telemetry and the job record stays authoritative.
func (r *Registry) SetStatus(ctx context.Context, id string, status ConnectionStatus) {
	m, err := r.store.Get(ctx, id)
	if err != nil {
		r.logger.Warn("Status sync for unknown machine", "machineId", id, "status", status)
		return
	}
	prev := m.ConnectionStatus
	m.ConnectionStatus = status
	now := r.now().UTC()
	m.LastSeenAt = &now
	if err := r.store.Update(ctx, m); err != nil {
		r.logger.Warn("Status sync failed", "machineId", id, "error", err)
		return
	}
	r.publishTransition(m, prev)
}

// RecordJobFinished marks a machine online and stamps its last-job time.
func (r *Registry) RecordJobFinished(ctx context.Context, id string) {
	m, err := r.store.Get(ctx, id)
	if err != nil {
		r.logger.Warn("Job-finished sync for unknown machine", "machineId", id)
		return
	}
	prev := m.ConnectionStatus
	now := r.now().UTC()
	m.ConnectionStatus = StatusOnline
	m.LastSeenAt = &now
	m.LastJobAt = &now
	if err := r.store.Update(ctx, m); err != nil {
		r.logger.Warn("Job-finished sync failed", "machineId", id, "error", err)
		return
	}
	r.publishTransition(m, prev)
}

// publishTransition emits a machine.status event when the connection
// status actually changed. Steady-state probe sweeps stay silent.
func (r *Registry) publishTransition(m *Machine, prev ConnectionStatus) {
	if r.events == nil || m.ConnectionStatus == prev {
		return
	}
	r.events.Publish("machine.status", m.ID, map[string]any{
		"machineId":      m.ID,
		"status":         string(m.ConnectionStatus),
		"previousStatus": string(prev),
		"family":         string(m.Family),
	})
}
