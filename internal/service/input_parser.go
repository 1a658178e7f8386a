package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/craniometry-server/internal/domain"
)

// MeasurementForm is the data-entry payload as the UI submits it: every
// numeric field arrives as a string. An empty string means the reading was
// not taken (absent), never zero.
type MeasurementForm struct {
	MeasurementDate string `json:"measurement_date" binding:"required"`

	PC string `json:"pc"`
	AP string `json:"ap"`
	BP string `json:"bp"`
	PD string `json:"pd"`
	PE string `json:"pe"`
	TD string `json:"td"`
	TE string `json:"te"`
}

// ParseMeasurementForm validates and converts a form submission into a
// RawMeasurement for the given patient. Non-numeric and negative entries
// are rejected here, before anything reaches the calculator; the
// computation core assumes well-formed numbers or nil.
func ParseMeasurementForm(patientID int64, form *MeasurementForm) (*domain.RawMeasurement, error) {
	date, err := domain.ParseDate(form.MeasurementDate)
	if err != nil {
		return nil, fmt.Errorf("parsing measurement form: %w",
			domain.NewValidationError("measurement_date", "must be a date in YYYY-MM-DD form", form.MeasurementDate))
	}

	m := &domain.RawMeasurement{
		PatientID:       patientID,
		MeasurementDate: date,
	}
	if err := parseFormFields(m, form); err != nil {
		return nil, err
	}
	return m, nil
}

// ParsePreviewForm converts a form submission for the live data-entry
// preview. The date is ignored; only the caliper fields matter before the
// visit is saved.
func ParsePreviewForm(form *MeasurementForm) (*domain.RawMeasurement, error) {
	m := &domain.RawMeasurement{}
	if err := parseFormFields(m, form); err != nil {
		return nil, err
	}
	return m, nil
}

func parseFormFields(m *domain.RawMeasurement, form *MeasurementForm) error {
	for _, f := range []struct {
		name  string
		input string
		dst   **float64
	}{
		{"pc", form.PC, &m.PC}, {"ap", form.AP, &m.AP}, {"bp", form.BP, &m.BP},
		{"pd", form.PD, &m.PD}, {"pe", form.PE, &m.PE},
		{"td", form.TD, &m.TD}, {"te", form.TE, &m.TE},
	} {
		value, err := parseOptionalMillimeters(f.name, f.input)
		if err != nil {
			return fmt.Errorf("parsing measurement form: %w", err)
		}
		*f.dst = value
	}
	return nil
}

// parseOptionalMillimeters parses one caliper field. Decimal commas are
// accepted alongside decimal points; the clinics' locales use both.
func parseOptionalMillimeters(field, input string) (*float64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	normalized := strings.ReplaceAll(trimmed, ",", ".")
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be a number", input)
	}
	if value < 0 {
		return nil, domain.NewValidationError(field, "must be non-negative", value)
	}

	return &value, nil
}
