// Package protocol routes job dispatch to one of several incompatible
// device integrations and defines the adapter contract they share.
package protocol

import (
	"context"
	"time"

	"laserops/internal/job"
	"laserops/internal/machine"
)

// Send and probe attempts are bounded; a silent device is a failure,
// never an indefinite hang.
const (
	sendTimeout  = 10 * time.Second
	probeTimeout = 5 * time.Second
)

// Adapter sends a job's cut program to one machine type and answers
// lightweight status queries. Implementations must respect the context
// and return within their timeout.
//
// Some families are permanently capability-limited: their Send always
// fails with an explanatory message. That is a legitimate terminal
// failure, not a bug.
type Adapter interface {
	// Family is the connection family this adapter serves.
	Family() machine.ConnectionType

	// Send transfers the job's cut program to the machine.
	Send(ctx context.Context, m *machine.Machine, j *job.Job) error

	// Probe runs a status query and reports reachability plus the
	// firmware version if the device exposes one.
	Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error)
}

// programURL picks the artifact reference an adapter transfers: the
// combined program wins, then cut, engrave, score.
func programURL(j *job.Job) string {
	switch {
	case j.Artifacts.CombinedURL != "":
		return j.Artifacts.CombinedURL
	case j.Artifacts.CutURL != "":
		return j.Artifacts.CutURL
	case j.Artifacts.EngraveURL != "":
		return j.Artifacts.EngraveURL
	default:
		return j.Artifacts.ScoreURL
	}
}
