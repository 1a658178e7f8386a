// Package service implements the clinical computation core (index
// calculation, severity classification, series assembly) and the
// orchestration services built on top of it. Every computation here is a
// pure, total function: missing data flows through as nil values and the
// "-" sentinel, never as errors.
package service

import (
	"math"

	"github.com/craniometry-server/internal/domain"
)

// ComputeIndices derives the three clinical indices from one visit's raw
// caliper readings. The three computations are independent: partial input
// for one index never blocks the others.
//
// A reading of exactly 0 in ap, bp or the larger diagonal is treated as
// absent for computation purposes. This guards the divisions and matches
// the established behavior the clinic charts were validated against.
func ComputeIndices(m *domain.RawMeasurement) domain.Indices {
	var out domain.Indices

	if m.AP != nil && m.BP != nil && *m.AP > 0 && *m.BP > 0 {
		ci := (*m.BP / *m.AP) * 100
		out.CI = &ci
	}

	if m.PD != nil && m.PE != nil {
		maxVal := math.Max(*m.PD, *m.PE)
		minVal := math.Min(*m.PD, *m.PE)
		if maxVal > 0 {
			cvai := ((maxVal - minVal) / maxVal) * 100
			out.CVAI = &cvai
		}
	}

	if m.TD != nil && m.TE != nil {
		tbc := math.Abs(*m.TD - *m.TE)
		out.TBC = &tbc
	}

	return out
}
