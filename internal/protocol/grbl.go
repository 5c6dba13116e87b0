package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"laserops/internal/job"
	"laserops/internal/machine"
)

const defaultGRBLPort = 8080

// GRBLAdapter uploads a generated control program to a GRBL-style
// controller reachable over the network (serial behind a TCP/HTTP shim).
//
// The program is a header that sets power and feed and points at the cut
// artifact; the controller's companion fetches and streams the actual
// toolpath. Toolpath generation itself happens upstream.
type GRBLAdapter struct {
	client *http.Client
}

// NewGRBLAdapter creates a GRBL adapter with standard transport settings.
func NewGRBLAdapter() *GRBLAdapter {
	return &GRBLAdapter{
		client: &http.Client{
			Timeout: sendTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

func (a *GRBLAdapter) Family() machine.ConnectionType {
	return machine.ConnGRBL
}

func (a *GRBLAdapter) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	program := buildProgram(j)

	url := fmt.Sprintf("http://%s/upload?name=%s.gcode", hostPort(m, defaultGRBLPort), j.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(program))
	if err != nil {
		return fmt.Errorf("grbl: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("grbl controller unreachable on %s: %w", hostPort(m, defaultGRBLPort), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("grbl controller rejected program for job %s: HTTP %d", j.ID, resp.StatusCode)
	}
	return nil
}

func (a *GRBLAdapter) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	url := fmt.Sprintf("http://%s/status", hostPort(m, defaultGRBLPort))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return machine.ProbeResult{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return machine.ProbeResult{}, fmt.Errorf("grbl controller unreachable on %s: %w", hostPort(m, defaultGRBLPort), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return machine.ProbeResult{}, fmt.Errorf("grbl status query: HTTP %d", resp.StatusCode)
	}

	var status struct {
		Version string `json:"version"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&status)

	return machine.ProbeResult{Online: true, Firmware: status.Version}, nil
}

// buildProgram renders the job header the controller companion consumes.
// S values are scaled to GRBL's 0-1000 spindle range.
func buildProgram(j *job.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; job %s (%s)\n", j.ID, j.Name)
	fmt.Fprintf(&b, "; program %s\n", programURL(j))
	fmt.Fprintf(&b, "; passes %d\n", j.Passes)
	fmt.Fprintf(&b, "G21\nG90\n")
	fmt.Fprintf(&b, "M4 S%.0f\n", j.PowerPct*10)
	fmt.Fprintf(&b, "G1 F%.0f\n", j.SpeedMmSec*60) // mm/s to mm/min
	fmt.Fprintf(&b, "M5\n")
	return b.String()
}

var _ Adapter = (*GRBLAdapter)(nil)
