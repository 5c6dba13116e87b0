package job

import (
	"math"

	"laserops/internal/machine"
)

// Material rates in currency units per square meter per pass.
var materialRates = map[string]float64{
	"plywood":   14.0,
	"mdf":       9.0,
	"acrylic":   32.0,
	"leather":   45.0,
	"cardboard": 4.0,
}

const defaultMaterialRate = 12.0

// computeCosts prices a job once at creation from the machine's hourly
// rate and the job's dimensions. Costs are never recomputed afterwards.
func computeCosts(req *Request, m *machine.Machine) (machineCost, materialCost, totalCost float64) {
	machineCost = m.HourlyRate * float64(req.EstimatedTimeSec) / 3600

	rate, ok := materialRates[req.Material]
	if !ok {
		rate = defaultMaterialRate
	}
	passes := req.Passes
	if passes < 1 {
		passes = 1
	}
	areaM2 := req.WidthMm * req.HeightMm / 1e6
	materialCost = areaM2 * rate * float64(passes)

	machineCost = roundCents(machineCost)
	materialCost = roundCents(materialCost)
	totalCost = roundCents(machineCost + materialCost)
	return machineCost, materialCost, totalCost
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
