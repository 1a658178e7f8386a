package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawMeasurement is one clinical visit's caliper readings for one patient.
// Every raw field is optional: a visit may record any subset of readings.
// All raw values are millimeters.
type RawMeasurement struct {
	ID              int64 `json:"id,omitempty"` // zero until persisted
	PatientID       int64 `json:"patient_id"`
	MeasurementDate Date  `json:"measurement_date"`

	PC *float64 `json:"pc,omitempty"` // head circumference
	AP *float64 `json:"ap,omitempty"` // antero-posterior depth
	BP *float64 `json:"bp,omitempty"` // bi-parietal width
	PD *float64 `json:"pd,omitempty"` // right diagonal
	PE *float64 `json:"pe,omitempty"` // left diagonal
	TD *float64 `json:"td,omitempty"` // right tragion offset
	TE *float64 `json:"te,omitempty"` // left tragion offset

	// Stored index values. Recomputed on every read; kept on the record
	// so exports match what was shown at the time of the visit.
	CI   *float64 `json:"ci,omitempty"`   // percentage
	CVAI *float64 `json:"cvai,omitempty"` // percentage
	TBC  *float64 `json:"tbc,omitempty"`  // millimeters

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate applies the edit-boundary sanity checks: raw fields are either
// absent or non-negative. No upper bound is enforced here.
func (m *RawMeasurement) Validate() error {
	if m.PatientID <= 0 {
		return fmt.Errorf("measurement validation: %w", errors.New("patient ID is required"))
	}
	if m.MeasurementDate.IsZero() {
		return fmt.Errorf("measurement validation: %w", errors.New("measurement date is required"))
	}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"pc", m.PC}, {"ap", m.AP}, {"bp", m.BP},
		{"pd", m.PD}, {"pe", m.PE}, {"td", m.TD}, {"te", m.TE},
	} {
		if f.value != nil && *f.value < 0 {
			return fmt.Errorf("measurement validation: %w",
				NewValidationError(f.name, "must be non-negative", *f.value))
		}
	}
	return nil
}

// Indices holds the three computed clinical indices. Each is nil when its
// inputs are missing or the computation is guarded (division by zero).
type Indices struct {
	CI   *float64 `json:"ci"`
	CVAI *float64 `json:"cvai"`
	TBC  *float64 `json:"tbc"`
}

// ClassifiedMeasurement is a RawMeasurement enriched with severity labels.
// It is derived on every read and never persisted.
type ClassifiedMeasurement struct {
	RawMeasurement

	CIClass   string `json:"ci_class"`
	CVAIClass string `json:"cvai_class"`
	TBCClass  string `json:"tbc_class"`
}

// ChartPoint is one point in a display-ready time series. Value stays nil
// for points the carry-forward transformer left unfilled.
type ChartPoint struct {
	Date           string   `json:"date"` // DD/MM/YYYY display form
	Value          *float64 `json:"value"`
	Classification string   `json:"classification"`
}

// PatchField wraps a nullable field in an explicit presence marker so a
// partial update can distinguish "leave untouched" (Set false), "clear to
// null" (Set true, Value nil) and "set" (Set true, Value non-nil).
type PatchField[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a PatchField that assigns v.
func SetTo[T any](v T) PatchField[T] {
	return PatchField[T]{Set: true, Value: &v}
}

// Clear returns a PatchField that nulls the field out.
func Clear[T any]() PatchField[T] {
	return PatchField[T]{Set: true}
}

// MeasurementPatch is a partial update of a measurement's editable fields.
// Stored index values are not patchable directly; they are recomputed from
// the raw fields by the persistence layer on every patch.
type MeasurementPatch struct {
	MeasurementDate PatchField[Date]

	PC PatchField[float64]
	AP PatchField[float64]
	BP PatchField[float64]
	PD PatchField[float64]
	PE PatchField[float64]
	TD PatchField[float64]
	TE PatchField[float64]
}

// IsEmpty reports whether the patch touches no fields.
func (p *MeasurementPatch) IsEmpty() bool {
	return !p.MeasurementDate.Set &&
		!p.PC.Set && !p.AP.Set && !p.BP.Set &&
		!p.PD.Set && !p.PE.Set && !p.TD.Set && !p.TE.Set
}

// Validate applies the same non-negativity rule as RawMeasurement.Validate
// to every raw field the patch sets.
func (p *MeasurementPatch) Validate() error {
	for _, f := range []struct {
		name  string
		field PatchField[float64]
	}{
		{"pc", p.PC}, {"ap", p.AP}, {"bp", p.BP},
		{"pd", p.PD}, {"pe", p.PE}, {"td", p.TD}, {"te", p.TE},
	} {
		if f.field.Set && f.field.Value != nil && *f.field.Value < 0 {
			return fmt.Errorf("patch validation: %w",
				NewValidationError(f.name, "must be non-negative", *f.field.Value))
		}
	}
	return nil
}

// ApplyTo merges the patch into a measurement, returning the updated copy.
// The input is not mutated.
func (p *MeasurementPatch) ApplyTo(m RawMeasurement) RawMeasurement {
	if p.MeasurementDate.Set && p.MeasurementDate.Value != nil {
		m.MeasurementDate = *p.MeasurementDate.Value
	}
	apply := func(dst **float64, f PatchField[float64]) {
		if f.Set {
			*dst = f.Value
		}
	}
	apply(&m.PC, p.PC)
	apply(&m.AP, p.AP)
	apply(&m.BP, p.BP)
	apply(&m.PD, p.PD)
	apply(&m.PE, p.PE)
	apply(&m.TD, p.TD)
	apply(&m.TE, p.TE)
	return m
}

// UnmarshalJSON decodes a patch from a JSON object, recording presence per
// key: a key that is absent leaves the field untouched, an explicit null
// clears it, and a value sets it.
func (p *MeasurementPatch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding measurement patch: %w", err)
	}

	if raw, ok := fields["measurement_date"]; ok {
		if string(raw) == "null" {
			return fmt.Errorf("decoding measurement patch: %w",
				NewValidationError("measurement_date", "cannot be cleared", nil))
		}
		var d Date
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		p.MeasurementDate = SetTo(d)
	}

	numeric := map[string]*PatchField[float64]{
		"pc": &p.PC, "ap": &p.AP, "bp": &p.BP,
		"pd": &p.PD, "pe": &p.PE, "td": &p.TD, "te": &p.TE,
	}
	for key, dst := range numeric {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if string(raw) == "null" {
			*dst = Clear[float64]()
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding measurement patch: %w",
				NewValidationError(key, "must be a number or null", string(raw)))
		}
		*dst = SetTo(v)
	}
	return nil
}
