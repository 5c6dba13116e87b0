// Package machine defines machine profiles and the registry that owns
// their live connection status.
package machine

import "time"

// Family is the physical laser type of a machine.
type Family string

const (
	FamilyDiode Family = "diode"
	FamilyCO2   Family = "co2"
	FamilyFiber Family = "fiber"
	FamilyGalvo Family = "galvo"
)

// ConnectionType is the device protocol/integration category a machine uses.
type ConnectionType string

const (
	// ConnBridge dispatches through a locally-running bridge process over HTTP.
	ConnBridge ConnectionType = "bridge"
	// ConnGRBL uploads a generated control program to a networked GRBL-style controller.
	ConnGRBL ConnectionType = "grbl-lan"
	// ConnRuida requires a companion application that is not implemented.
	ConnRuida ConnectionType = "ruida"
	// ConnCloud requires third-party vendor API access that is not implemented.
	ConnCloud ConnectionType = "cloud"
	// ConnManual represents a human operator handling the job off-system.
	ConnManual ConnectionType = "manual"
)

// ConnectionTypes lists every supported connection family.
// The dispatch router must cover all of them.
var ConnectionTypes = []ConnectionType{
	ConnBridge, ConnGRBL, ConnRuida, ConnCloud, ConnManual,
}

// ConnectionStatus is the live connection status of a machine.
type ConnectionStatus string

const (
	StatusOffline ConnectionStatus = "offline"
	StatusOnline  ConnectionStatus = "online"
	StatusBusy    ConnectionStatus = "busy"
	StatusError   ConnectionStatus = "error"
)

// Machine is a physical cutting device profile.
//
// Bed/power/speed limits are advisory ceilings used only for safety
// validation; they never block machine creation. ConnectionStatus and
// FirmwareVersion are the only fields the orchestrator mutates itself;
// everything else is operator-edited.
type Machine struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Family         Family         `json:"family"`
	ConnectionType ConnectionType `json:"connectionType"`
	Address        string         `json:"address,omitempty"`
	Port           int            `json:"port,omitempty"`

	BedWidthMm    float64 `json:"bedWidthMm"`
	BedHeightMm   float64 `json:"bedHeightMm"`
	MaxPowerW     float64 `json:"maxPowerW"`
	MaxSpeedMmSec float64 `json:"maxSpeedMmSec"`
	AccelMmSec2   float64 `json:"accelMmSec2,omitempty"`
	HourlyRate    float64 `json:"hourlyRate"`

	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	FirmwareVersion  string           `json:"firmwareVersion,omitempty"`
	LastSeenAt       *time.Time       `json:"lastSeenAt,omitempty"`
	LastJobAt        *time.Time       `json:"lastJobAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Request is the operator-facing payload for registering a machine.
type Request struct {
	Name           string         `json:"name"`
	Family         Family         `json:"family"`
	ConnectionType ConnectionType `json:"connectionType"`
	Address        string         `json:"address,omitempty"`
	Port           int            `json:"port,omitempty"`
	BedWidthMm     float64        `json:"bedWidthMm"`
	BedHeightMm    float64        `json:"bedHeightMm"`
	MaxPowerW      float64        `json:"maxPowerW"`
	MaxSpeedMmSec  float64        `json:"maxSpeedMmSec"`
	AccelMmSec2    float64        `json:"accelMmSec2,omitempty"`
	HourlyRate     float64        `json:"hourlyRate"`
}

// ProbeResult is what a protocol adapter learned from a status query.
type ProbeResult struct {
	Online   bool
	Firmware string // empty if the device did not report one
}

func validFamily(f Family) bool {
	switch f {
	case FamilyDiode, FamilyCO2, FamilyFiber, FamilyGalvo:
		return true
	}
	return false
}

func validConnectionType(c ConnectionType) bool {
	for _, known := range ConnectionTypes {
		if c == known {
			return true
		}
	}
	return false
}
