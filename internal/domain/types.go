// Package domain contains core business entities and types for cranial
// measurement tracking in pediatric physiotherapy.
//
// The three clinical indices follow the conventions used in plagiocephaly
// assessment: CI (cephalic index), CVAI (cranial vault asymmetry index)
// and TBC (skull base torsion).
package domain

// IndexType identifies one of the three computed clinical indices.
type IndexType string

const (
	CI   IndexType = "CI"   // cephalic index, percentage
	CVAI IndexType = "CVAI" // cranial vault asymmetry index, percentage
	TBC  IndexType = "TBC"  // skull base torsion, millimeters
)

// Severity labels attached to computed indices. The detailed CI vocabulary
// is used by the evolution/history views; the coarse preview vocabulary is
// used only during live data entry, before a measurement is saved. The two
// schemes are intentionally kept separate.
const (
	// Shared sentinel for "not computable" (missing input data).
	NotComputable = "-"

	// Detailed CI buckets.
	CIDolicocephalyModerate = "Dolicocephaly Moderate"
	CIDolicocephalyMild     = "Dolicocephaly Mild"
	CINormal                = "Normal"
	CIBrachycephalyMild     = "Brachycephaly Mild"
	CIBrachycephalyModerate = "Brachycephaly Moderate"
	CIBrachycephalySevere   = "Brachycephaly Severe"

	// Preview CI buckets (live-entry only).
	CIPreviewDolicocephaly = "Dolicocephaly"
	CIPreviewNormal        = "Normal"
	CIPreviewBrachycephaly = "Brachycephaly"

	// CVAI buckets.
	CVAINormal   = "Normal"
	CVAIMild     = "Mild"
	CVAIModerate = "Moderate"
	CVAISevere   = "Severe"

	// TBC buckets. There is no "Normal" bucket for TBC; the smallest
	// torsion still classifies as Mild.
	TBCMild     = "Mild"
	TBCModerate = "Moderate"
	TBCSevere   = "Severe"
)

// IsValid validates the index type at boundaries where it arrives as data
// (query parameters, cached payloads) rather than as a compile-time constant.
func (it IndexType) IsValid() bool {
	switch it {
	case CI, CVAI, TBC:
		return true
	default:
		return false
	}
}

// String returns the string representation of the index type.
func (it IndexType) String() string {
	return string(it)
}

// Principal identifies the authenticated caller on whose behalf a
// persistence operation runs. Authentication itself is delegated to the
// external auth provider; the gateway injects the verified identity and the
// repositories enforce ownership with it. Admins bypass the per-owner
// restriction.
type Principal struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// LogFields returns structured logging fields for audit trails.
func (p Principal) LogFields() map[string]any {
	return map[string]any{
		"user_id":  p.UserID,
		"is_admin": p.IsAdmin,
	}
}
