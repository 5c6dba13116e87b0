// Package job owns the laser job lifecycle: creation-time safety
// validation, the dispatch state machine, and retry/failure bookkeeping.
package job

import "time"

// Status is the lifecycle state of a laser job.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusCutting   Status = "CUTTING"
	StatusEngraving Status = "ENGRAVING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further lifecycle progress is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Sendable reports whether a dispatch may be requested from this state.
func (s Status) Sendable() bool {
	return s == StatusDraft || s == StatusQueued
}

// Priority orders jobs for operators. It does not affect dispatch.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ErrCodeSendFailed is recorded on every failed dispatch attempt,
// regardless of which adapter failed.
const ErrCodeSendFailed = "SEND_FAILED"

// DefaultMaxRetries is the dispatch retry ceiling applied at creation.
const DefaultMaxRetries = 3

// Artifacts holds cut-program references. The URLs are opaque here; only
// their declared dimensions are validated.
type Artifacts struct {
	CutURL      string `json:"cutUrl,omitempty"`
	EngraveURL  string `json:"engraveUrl,omitempty"`
	ScoreURL    string `json:"scoreUrl,omitempty"`
	CombinedURL string `json:"combinedUrl,omitempty"`
}

// Empty reports whether no cut-program reference is present.
func (a Artifacts) Empty() bool {
	return a.CutURL == "" && a.EngraveURL == "" && a.ScoreURL == "" && a.CombinedURL == ""
}

// Job is one unit of dispatchable work bound to exactly one machine.
type Job struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	MachineID string `json:"machineId"` // immutable after creation

	Name        string    `json:"name"`
	ProductType string    `json:"productType,omitempty"`
	Material    string    `json:"material,omitempty"`
	ThicknessMm float64   `json:"thicknessMm,omitempty"`
	Artifacts   Artifacts `json:"artifacts"`
	WidthMm     float64   `json:"widthMm"`
	HeightMm    float64   `json:"heightMm"`
	SpeedMmSec  float64   `json:"speedMmSec"`
	PowerPct    float64   `json:"powerPct"`
	Passes      int       `json:"passes"`
	KerfMm      float64   `json:"kerfMm,omitempty"`

	Priority         Priority `json:"priority"`
	Status           Status   `json:"status"`
	CurrentOperation string   `json:"currentOperation,omitempty"`
	ProgressPct      float64  `json:"progressPct"`

	// Safety fields are set once at creation and never recomputed.
	SafetyValidated bool     `json:"safetyValidated"`
	SafetyWarnings  []string `json:"safetyWarnings,omitempty"`

	RetryCount   int    `json:"retryCount"`
	MaxRetries   int    `json:"maxRetries"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	EstimatedTimeSec int        `json:"estimatedTimeSec,omitempty"`
	ActualTimeSec    int        `json:"actualTimeSec,omitempty"`

	// Costs are computed once at creation and never recomputed.
	MachineCost  float64 `json:"machineCost"`
	MaterialCost float64 `json:"materialCost"`
	TotalCost    float64 `json:"totalCost"`

	// Optional links to upstream production records.
	BatchID          string `json:"batchId,omitempty"`
	SourceArtifactID string `json:"sourceArtifactId,omitempty"`
}

// Request is a fully-formed job creation request from a collaborator.
type Request struct {
	UserID           string    `json:"userId"`
	MachineID        string    `json:"machineId"`
	Name             string    `json:"name"`
	ProductType      string    `json:"productType,omitempty"`
	Material         string    `json:"material,omitempty"`
	ThicknessMm      float64   `json:"thicknessMm,omitempty"`
	Artifacts        Artifacts `json:"artifacts"`
	WidthMm          float64   `json:"widthMm"`
	HeightMm         float64   `json:"heightMm"`
	SpeedMmSec       float64   `json:"speedMmSec"`
	PowerPct         float64   `json:"powerPct"`
	Passes           int       `json:"passes"`
	KerfMm           float64   `json:"kerfMm,omitempty"`
	Priority         Priority  `json:"priority,omitempty"`
	EstimatedTimeSec int       `json:"estimatedTimeSec,omitempty"`
	BatchID          string    `json:"batchId,omitempty"`
	SourceArtifactID string    `json:"sourceArtifactId,omitempty"`
}

// ProgressUpdate carries a partial progress report for a job. Nil fields
// are left untouched.
type ProgressUpdate struct {
	ProgressPct      *float64 `json:"progressPct,omitempty"`
	CurrentOperation *string  `json:"currentOperation,omitempty"`
	Status           *Status  `json:"status,omitempty"`
}
