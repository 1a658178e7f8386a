package service

import (
	"github.com/craniometry-server/internal/domain"
)

// Classify maps a computed index value to its severity label. A nil value
// classifies as the "-" sentinel for every index type. Thresholds are
// inclusive on the upper end of each bucket.
func Classify(value *float64, index domain.IndexType) string {
	if value == nil {
		return domain.NotComputable
	}
	switch index {
	case domain.CI:
		return ClassifyCI(*value)
	case domain.CVAI:
		return ClassifyCVAI(*value)
	case domain.TBC:
		return ClassifyTBC(*value)
	}
	// IndexType is a closed enum; a new member must be wired here.
	panic("service: unknown index type " + index.String())
}

// ClassifyCI applies the detailed six-bucket cephalic index scheme used by
// the evolution and history views.
func ClassifyCI(v float64) string {
	switch {
	case v < 70:
		return domain.CIDolicocephalyModerate
	case v <= 74:
		return domain.CIDolicocephalyMild
	case v <= 85:
		return domain.CINormal
	case v <= 90:
		return domain.CIBrachycephalyMild
	case v <= 100:
		return domain.CIBrachycephalyModerate
	default:
		return domain.CIBrachycephalySevere
	}
}

// ClassifyCIPreview applies the coarse three-bucket cephalic index scheme
// shown during live data entry, before a measurement is saved. It is a
// deliberately separate function from ClassifyCI: the two views use
// different granularities and unifying them would silently change the
// categories one of them displays.
func ClassifyCIPreview(value *float64) string {
	if value == nil {
		return domain.NotComputable
	}
	switch {
	case *value < 75:
		return domain.CIPreviewDolicocephaly
	case *value <= 85:
		return domain.CIPreviewNormal
	default:
		return domain.CIPreviewBrachycephaly
	}
}

// ClassifyCVAI applies the cranial vault asymmetry index scheme.
func ClassifyCVAI(v float64) string {
	switch {
	case v < 3.5:
		return domain.CVAINormal
	case v <= 6.25:
		return domain.CVAIMild
	case v <= 8.75:
		return domain.CVAIModerate
	default:
		return domain.CVAISevere
	}
}

// ClassifyTBC applies the skull base torsion scheme.
func ClassifyTBC(v float64) string {
	switch {
	case v <= 3:
		return domain.TBCMild
	case v <= 6:
		return domain.TBCModerate
	default:
		return domain.TBCSevere
	}
}
