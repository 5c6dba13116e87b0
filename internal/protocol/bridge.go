package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"laserops/internal/job"
	"laserops/internal/machine"
)

const defaultBridgePort = 8099

// BridgeAdapter dispatches through a bridge process running on the shop
// network next to the machine. The bridge exposes a small HTTP API and
// handles the actual device protocol itself.
type BridgeAdapter struct {
	client *http.Client
}

// NewBridgeAdapter creates a bridge adapter with standard transport settings.
func NewBridgeAdapter() *BridgeAdapter {
	return &BridgeAdapter{
		client: &http.Client{
			Timeout: sendTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

func (a *BridgeAdapter) Family() machine.ConnectionType {
	return machine.ConnBridge
}

// bridgeJobPayload is the bridge's job submission body.
type bridgeJobPayload struct {
	JobID      string  `json:"jobId"`
	Name       string  `json:"name"`
	ProgramURL string  `json:"programUrl"`
	SpeedMmSec float64 `json:"speedMmSec"`
	PowerPct   float64 `json:"powerPct"`
	Passes     int     `json:"passes"`
}

func (a *BridgeAdapter) Send(ctx context.Context, m *machine.Machine, j *job.Job) error {
	body, err := json.Marshal(bridgeJobPayload{
		JobID:      j.ID,
		Name:       j.Name,
		ProgramURL: programURL(j),
		SpeedMmSec: j.SpeedMmSec,
		PowerPct:   j.PowerPct,
		Passes:     j.Passes,
	})
	if err != nil {
		return fmt.Errorf("bridge: failed to marshal job payload: %w", err)
	}

	url := a.baseURL(m) + "/api/v1/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge not responding on %s: %w", hostPort(m, defaultBridgePort), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge rejected job %s: HTTP %d", j.ID, resp.StatusCode)
	}
	return nil
}

func (a *BridgeAdapter) Probe(ctx context.Context, m *machine.Machine) (machine.ProbeResult, error) {
	url := a.baseURL(m) + "/api/v1/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return machine.ProbeResult{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return machine.ProbeResult{}, fmt.Errorf("bridge not responding on %s: %w", hostPort(m, defaultBridgePort), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return machine.ProbeResult{}, fmt.Errorf("bridge status query: HTTP %d", resp.StatusCode)
	}

	var status struct {
		Firmware string `json:"firmware"`
	}
	// A bridge that answers but sends an unexpected body is still online.
	_ = json.NewDecoder(resp.Body).Decode(&status)

	return machine.ProbeResult{Online: true, Firmware: status.Firmware}, nil
}

func (a *BridgeAdapter) baseURL(m *machine.Machine) string {
	return "http://" + hostPort(m, defaultBridgePort)
}

func hostPort(m *machine.Machine, defaultPort int) string {
	port := m.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", m.Address, port)
}

var _ Adapter = (*BridgeAdapter)(nil)
