package job

import (
	"fmt"

	"laserops/internal/machine"
)

// ValidateSafety checks a proposed job against a machine's physical
// envelope and returns an ordered list of warnings, possibly empty. It
// runs once at creation time; dispatch reads the stored result instead of
// re-running it. Warnings are advisory and never block creation.
//
// Each rule is evaluated independently, so a job can collect several
// warnings at once.
func ValidateSafety(req *Request, m *machine.Machine) []string {
	var warnings []string

	if m.BedWidthMm > 0 && req.WidthMm > m.BedWidthMm {
		warnings = append(warnings, fmt.Sprintf(
			"job width %.0fmm exceeds machine bed width %.0fmm", req.WidthMm, m.BedWidthMm))
	}
	if m.BedHeightMm > 0 && req.HeightMm > m.BedHeightMm {
		warnings = append(warnings, fmt.Sprintf(
			"job height %.0fmm exceeds machine bed height %.0fmm", req.HeightMm, m.BedHeightMm))
	}
	// Power is validated as a percentage of the machine's own scale. The
	// machine's maxPowerW is not consulted here.
	if req.PowerPct > 100 {
		warnings = append(warnings, fmt.Sprintf(
			"requested power %.0f%% exceeds 100%%", req.PowerPct))
	}
	if m.MaxSpeedMmSec > 0 && req.SpeedMmSec > m.MaxSpeedMmSec {
		warnings = append(warnings, fmt.Sprintf(
			"requested speed %.0fmm/s exceeds machine max speed %.0fmm/s", req.SpeedMmSec, m.MaxSpeedMmSec))
	}

	return warnings
}
