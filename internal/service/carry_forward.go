package service

import (
	"github.com/craniometry-server/internal/domain"
)

// CarryForward fills gaps in a date-ascending chart series by propagating
// the last known valid value, and its classification label, into later
// points whose value is missing.
//
// The first point is never back-filled even when its value is missing: a
// leading gap means "no baseline yet" and fabricating one would suggest a
// reading that was never taken.
//
// The input is not mutated; the transform is idempotent.
func CarryForward(points []domain.ChartPoint) []domain.ChartPoint {
	out := make([]domain.ChartPoint, len(points))

	var lastValue float64
	var lastLabel string
	haveLast := false

	for i, p := range points {
		filled := p
		if p.Value != nil {
			lastValue = *p.Value
			lastLabel = p.Classification
			haveLast = true
		} else if i > 0 && haveLast {
			v := lastValue
			filled.Value = &v
			filled.Classification = lastLabel
		}
		out[i] = filled
	}

	return out
}
