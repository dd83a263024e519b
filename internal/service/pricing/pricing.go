package pricing

import (
	"math"

	"github.com/avreline/repairbooking/internal/domain"
)

// Difficulty multipliers applied to service base prices. easy and medium pay
// list price; hard and expert devices carry a surcharge.
const (
	multiplierHard   = 1.2
	multiplierExpert = 1.3
)

func Multiplier(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyHard:
		return multiplierHard
	case domain.DifficultyExpert:
		return multiplierExpert
	default:
		return 1.0
	}
}

// ComputeQuote prices the selected services against the device's repair
// difficulty. It is deterministic and side-effect free: the same device and
// service set always produce the same snapshots and total.
func ComputeQuote(device domain.Device, services []domain.RepairService) ([]domain.ServiceSnapshot, domain.Quote) {
	mult := Multiplier(device.Difficulty)

	// The total is rounded once, from the raw sum. Rounding each line first
	// and summing can drift the total by a cent on sub-cent surcharges.
	snapshots := make([]domain.ServiceSnapshot, 0, len(services))
	var total float64
	var minutes int
	for _, svc := range services {
		effective := svc.BasePrice * mult
		snapshots = append(snapshots, domain.ServiceSnapshot{
			ServiceID:        svc.ID,
			Name:             svc.Name,
			BasePrice:        svc.BasePrice,
			EffectivePrice:   round2(effective),
			EstimatedMinutes: svc.EstimatedMinutes,
			WarrantyDays:     svc.WarrantyDays,
		})
		total += effective
		minutes += svc.EstimatedMinutes
	}

	return snapshots, domain.Quote{Total: round2(total), EstimatedMinutes: minutes}
}

// round2 rounds half-up to currency minor units. Prices are non-negative, so
// math.Round's half-away-from-zero is half-up here.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
