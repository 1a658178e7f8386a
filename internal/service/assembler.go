package service

import (
	"sort"

	"github.com/craniometry-server/internal/domain"
)

// AssembleSeries turns raw measurement records, supplied in arbitrary
// order, into a classified series sorted ascending by measurement date.
// Indices are recomputed from the raw fields on every assembly; stored
// index values are overwritten, never trusted. The sort is stable: records
// sharing a date keep their input order.
//
// The result carries no gap filling. Table views apply CarryForwardTable
// on top; chart views go through BuildChartSeries.
func AssembleSeries(raw []*domain.RawMeasurement) []*domain.ClassifiedMeasurement {
	out := make([]*domain.ClassifiedMeasurement, 0, len(raw))

	for _, r := range raw {
		indices := ComputeIndices(r)

		cm := &domain.ClassifiedMeasurement{RawMeasurement: *r}
		cm.CI = indices.CI
		cm.CVAI = indices.CVAI
		cm.TBC = indices.TBC
		cm.CIClass = Classify(indices.CI, domain.CI)
		cm.CVAIClass = Classify(indices.CVAI, domain.CVAI)
		cm.TBCClass = Classify(indices.TBC, domain.TBC)

		out = append(out, cm)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeasurementDate.Before(out[j].MeasurementDate)
	})

	return out
}

// CarryForwardTable is the display decorator for the historical table
// view: it propagates the last known valid CI and CVAI value, with its
// matching label, into later records whose computed index is null. The
// first record is exempt, mirroring CarryForward's leading-gap rule.
//
// TBC is deliberately excluded from this pass; only the chart series fill
// TBC gaps. The decorator returns fresh copies and never mutates the
// assembled records, so the canonical series stays untouched.
func CarryForwardTable(series []*domain.ClassifiedMeasurement) []*domain.ClassifiedMeasurement {
	out := make([]*domain.ClassifiedMeasurement, len(series))

	var lastCI, lastCVAI *float64
	var lastCIClass, lastCVAIClass string

	for i, cm := range series {
		copied := *cm

		if copied.CI != nil {
			v := *copied.CI
			lastCI = &v
			lastCIClass = copied.CIClass
		} else if i > 0 && lastCI != nil {
			v := *lastCI
			copied.CI = &v
			copied.CIClass = lastCIClass
		}

		if copied.CVAI != nil {
			v := *copied.CVAI
			lastCVAI = &v
			lastCVAIClass = copied.CVAIClass
		} else if i > 0 && lastCVAI != nil {
			v := *lastCVAI
			copied.CVAI = &v
			copied.CVAIClass = lastCVAIClass
		}

		out[i] = &copied
	}

	return out
}

// BuildChartSeries projects an assembled series into one carry-forward
// adjusted chart series per index type.
func BuildChartSeries(series []*domain.ClassifiedMeasurement) map[domain.IndexType][]domain.ChartPoint {
	charts := make(map[domain.IndexType][]domain.ChartPoint, 3)

	project := func(value func(*domain.ClassifiedMeasurement) *float64, label func(*domain.ClassifiedMeasurement) string) []domain.ChartPoint {
		points := make([]domain.ChartPoint, 0, len(series))
		for _, cm := range series {
			p := domain.ChartPoint{
				Date:           cm.MeasurementDate.Display(),
				Classification: label(cm),
			}
			if v := value(cm); v != nil {
				copied := *v
				p.Value = &copied
			}
			points = append(points, p)
		}
		return CarryForward(points)
	}

	charts[domain.CI] = project(
		func(cm *domain.ClassifiedMeasurement) *float64 { return cm.CI },
		func(cm *domain.ClassifiedMeasurement) string { return cm.CIClass })
	charts[domain.CVAI] = project(
		func(cm *domain.ClassifiedMeasurement) *float64 { return cm.CVAI },
		func(cm *domain.ClassifiedMeasurement) string { return cm.CVAIClass })
	charts[domain.TBC] = project(
		func(cm *domain.ClassifiedMeasurement) *float64 { return cm.TBC },
		func(cm *domain.ClassifiedMeasurement) string { return cm.TBCClass })

	return charts
}
