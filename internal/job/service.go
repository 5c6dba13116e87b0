package job

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"laserops/internal/apperrors"
	"laserops/internal/machine"
	"laserops/internal/observability"
)

// Sender dispatches a job's cut program to one physical machine.
// Implemented by the protocol router; attempts are bounded by the
// adapter's own timeout and never hang indefinitely.
type Sender interface {
	Send(ctx context.Context, m *machine.Machine, j *Job) error
}

// EventSink receives lifecycle events for async delivery. Implementations
// must not block.
type EventSink interface {
	Publish(eventType, subject string, data map[string]any)
}

// Service is the job lifecycle controller. It owns the state machine,
// applies the retry policy, and keeps the machine registry's availability
// flag in sync.
//
// Operations on one job are serialized through a per-job lock, and a
// per-machine advisory lock keeps two jobs from being dispatched against
// one physical machine at the same time.
type Service struct {
	store    Store
	machines *machine.Registry
	sender   Sender
	events   EventSink
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	jobLocks     *keyedMutex
	dispatchLock *machineLocks
}

// NewService creates a job lifecycle service. events and metrics may be nil.
func NewService(store Store, machines *machine.Registry, sender Sender, events EventSink, metrics *observability.Metrics) *Service {
	return &Service{
		store:        store,
		machines:     machines,
		sender:       sender,
		events:       events,
		metrics:      metrics,
		logger:       slog.With("component", "job-service"),
		now:          time.Now,
		jobLocks:     newKeyedMutex(),
		dispatchLock: newMachineLocks(),
	}
}

// Create validates a job request at the boundary, runs the safety
// validator, computes costs, and persists the job in DRAFT. Safety
// warnings are returned on the job; they never block creation.
func (s *Service) Create(ctx context.Context, req *Request) (*Job, error) {
	applyDefaults(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	m, err := s.machines.Get(ctx, req.MachineID)
	if err != nil {
		return nil, err
	}

	warnings := ValidateSafety(req, m)
	machineCost, materialCost, totalCost := computeCosts(req, m)

	j := &Job{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		MachineID:        m.ID,
		Name:             req.Name,
		ProductType:      req.ProductType,
		Material:         req.Material,
		ThicknessMm:      req.ThicknessMm,
		Artifacts:        req.Artifacts,
		WidthMm:          req.WidthMm,
		HeightMm:         req.HeightMm,
		SpeedMmSec:       req.SpeedMmSec,
		PowerPct:         req.PowerPct,
		Passes:           req.Passes,
		KerfMm:           req.KerfMm,
		Priority:         req.Priority,
		Status:           StatusDraft,
		SafetyValidated:  len(warnings) == 0,
		SafetyWarnings:   warnings,
		MaxRetries:       DefaultMaxRetries,
		CreatedAt:        s.now().UTC(),
		EstimatedTimeSec: req.EstimatedTimeSec,
		MachineCost:      machineCost,
		MaterialCost:     materialCost,
		TotalCost:        totalCost,
		BatchID:          req.BatchID,
		SourceArtifactID: req.SourceArtifactID,
	}

	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordJobCreated(ctx, string(m.ConnectionType))
	}
	s.publish("job.created", j)
	s.logger.Info("Job created",
		"jobId", j.ID,
		"machineId", m.ID,
		"safetyValidated", j.SafetyValidated,
		"warnings", len(warnings),
	)
	return j, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// List returns all jobs.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.store.List(ctx)
}

// Send runs the full dispatch flow for one job. On a dispatch failure the
// attempt is always recorded on the job before the error surfaces, so both
// the updated job and the error reach the caller.
func (s *Service) Send(ctx context.Context, id string) (*Job, error) {
	s.jobLocks.Lock(id)
	defer s.jobLocks.Unlock(id)

	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Preconditions are checked before any state write, so a rejected
	// send leaves the job untouched.
	if !j.Status.Sendable() {
		return nil, apperrors.Conflict("job", j.ID,
			fmt.Sprintf("job %s cannot be sent while %s", j.ID, j.Status))
	}
	if !j.SafetyValidated {
		return nil, apperrors.Validation("safetyValidated",
			fmt.Sprintf("safety validation required: job %s has %d unresolved warnings", j.ID, len(j.SafetyWarnings)))
	}

	m, err := s.machines.Get(ctx, j.MachineID)
	if err != nil {
		return nil, err
	}

	holder, ok := s.dispatchLock.TryAcquire(m.ID, j.ID)
	if !ok {
		return nil, apperrors.Conflict("machine", m.ID,
			fmt.Sprintf("machine %s is busy dispatching job %s", m.ID, holder))
	}
	defer s.dispatchLock.Release(m.ID, j.ID)

	startedAt := s.now().UTC()
	j.Status = StatusSending
	j.StartedAt = &startedAt
	if err := s.store.Update(ctx, j); err != nil {
		return nil, err
	}

	logger := s.logger.With("jobId", j.ID, "machineId", m.ID, "connectionType", m.ConnectionType)
	start := s.now()
	sendErr := s.sender.Send(ctx, m, j)
	elapsed := s.now().Sub(start).Seconds()

	if s.metrics != nil {
		s.metrics.RecordDispatch(ctx, string(m.ConnectionType), sendErr == nil, elapsed)
	}

	if sendErr != nil {
		return s.recordDispatchFailure(ctx, j, logger, sendErr)
	}

	j.Status = StatusQueued
	j.CurrentOperation = "waiting-for-machine"
	j.ErrorCode = ""
	j.ErrorMessage = ""
	if err := s.store.Update(ctx, j); err != nil {
		return nil, err
	}
	s.machines.SetStatus(ctx, m.ID, machine.StatusOnline)

	s.publish("job.sent", j)
	logger.Info("Job dispatched", "attempt", j.RetryCount+1)
	return j, nil
}

// recordDispatchFailure applies the retry policy and persists the attempt
// before surfacing the adapter error.
func (s *Service) recordDispatchFailure(ctx context.Context, j *Job, logger *slog.Logger, sendErr error) (*Job, error) {
	outcome := NextRetry(j.RetryCount, j.MaxRetries)
	j.RetryCount = outcome.RetryCount
	j.Status = outcome.Status
	j.ErrorCode = ErrCodeSendFailed
	j.ErrorMessage = sendErr.Error()

	if err := s.store.Update(ctx, j); err != nil {
		return nil, err
	}

	s.publish("job.send_failed", j)
	if j.Status == StatusFailed {
		logger.Error("Job dispatch failed terminally",
			"retryCount", j.RetryCount,
			"maxRetries", j.MaxRetries,
			"error", sendErr,
		)
	} else {
		logger.Warn("Job dispatch failed, retry available",
			"retryCount", j.RetryCount,
			"maxRetries", j.MaxRetries,
			"error", sendErr,
		)
	}

	return j, apperrors.Unavailable("dispatch", sendErr)
}

// UpdateProgress applies a progress report to a job. Percentage and
// operation updates never change the lifecycle state; a status update is
// restricted to CUTTING, ENGRAVING, or COMPLETED and keeps the machine
// registry's availability flag in sync.
func (s *Service) UpdateProgress(ctx context.Context, id string, upd *ProgressUpdate) (*Job, error) {
	s.jobLocks.Lock(id)
	defer s.jobLocks.Unlock(id)

	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.IsTerminal() {
		return nil, apperrors.Conflict("job", j.ID,
			fmt.Sprintf("job %s is already %s", j.ID, j.Status))
	}

	if upd.ProgressPct != nil {
		pct := *upd.ProgressPct
		if pct < 0 || pct > 100 {
			return nil, apperrors.Validation("progressPct", "progress percentage must be between 0 and 100")
		}
		j.ProgressPct = pct
	}
	if upd.CurrentOperation != nil {
		j.CurrentOperation = *upd.CurrentOperation
	}

	if upd.Status != nil {
		switch *upd.Status {
		case StatusCutting, StatusEngraving:
			j.Status = *upd.Status
			s.machines.SetStatus(ctx, j.MachineID, machine.StatusBusy)
		case StatusCompleted:
			s.complete(ctx, j)
		default:
			return nil, apperrors.Validation("status",
				fmt.Sprintf("status %s cannot be set via progress update", *upd.Status))
		}
	}

	if err := s.store.Update(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// complete finishes a job: stamps completedAt, derives the actual runtime,
// and releases the machine back to online.
func (s *Service) complete(ctx context.Context, j *Job) {
	completedAt := s.now().UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &completedAt
	j.ProgressPct = 100
	if j.StartedAt != nil {
		j.ActualTimeSec = int(math.Round(completedAt.Sub(*j.StartedAt).Seconds()))
	}
	s.machines.RecordJobFinished(ctx, j.MachineID)

	if s.metrics != nil {
		s.metrics.RecordJobCompleted(ctx, float64(j.ActualTimeSec))
	}
	s.publish("job.completed", j)
	s.logger.Info("Job completed", "jobId", j.ID, "actualTimeSec", j.ActualTimeSec)
}

// Cancel terminally cancels a job. Cancellation is one-way: it does not
// signal an in-flight adapter call, it only prevents further progress.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	s.jobLocks.Lock(id)
	defer s.jobLocks.Unlock(id)

	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status == StatusCompleted || j.Status == StatusCancelled {
		return nil, apperrors.Conflict("job", j.ID,
			fmt.Sprintf("job %s is already finished (%s)", j.ID, j.Status))
	}

	j.Status = StatusCancelled
	if err := s.store.Update(ctx, j); err != nil {
		return nil, err
	}

	s.publish("job.cancelled", j)
	s.logger.Info("Job cancelled", "jobId", j.ID)
	return j, nil
}

func (s *Service) publish(eventType string, j *Job) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, j.ID, map[string]any{
		"jobId":      j.ID,
		"machineId":  j.MachineID,
		"status":     string(j.Status),
		"retryCount": j.RetryCount,
		"error":      j.ErrorMessage,
	})
}

func applyDefaults(req *Request) {
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if req.Passes < 1 {
		req.Passes = 1
	}
}

// validate checks a job request once at the boundary. Does not modify it.
func validate(req *Request) error {
	if req.MachineID == "" {
		return apperrors.Validation("machineId", "machine ID is required")
	}
	if req.Name == "" {
		return apperrors.Validation("name", "job name is required")
	}
	if req.Artifacts.Empty() {
		return apperrors.Validation("artifacts", "at least one cut-program reference is required")
	}
	if req.WidthMm <= 0 || req.HeightMm <= 0 {
		return apperrors.Validation("widthMm", "job dimensions must be positive")
	}
	switch req.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return apperrors.Validation("priority", fmt.Sprintf("unknown priority %q", req.Priority))
	}
	return nil
}
