package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Patient represents a child registered by a physiotherapist. A patient
// owns zero or more measurements. Patients are soft-deleted: removing one
// leaves its measurements logically orphaned but physically intact.
type Patient struct {
	ID        int64      `json:"id"`
	OwnerID   string     `json:"owner_id"` // therapist user ID from the auth provider
	Name      string     `json:"name"`
	BirthDate Date       `json:"birth_date"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Validate ensures the patient data is acceptable before persistence.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("patient validation: %w", errors.New("name is required"))
	}
	if p.OwnerID == "" {
		return fmt.Errorf("patient validation: %w", errors.New("owner ID is required"))
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("patient validation: %w", errors.New("birth date is required"))
	}
	if p.BirthDate.Time().After(time.Now()) {
		return fmt.Errorf("patient validation: %w", errors.New("birth date cannot be in the future"))
	}
	return nil
}

// IsDeleted reports whether the patient has been soft-deleted.
func (p *Patient) IsDeleted() bool {
	return p.DeletedAt != nil
}

// dateLayout is the wire and storage format for calendar dates.
const dateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day semantics. It is used only
// for ordering and display.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// Time returns the underlying time at midnight UTC.
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// Equal reports whether two dates fall on the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// Display returns the date in the DD/MM/YYYY form used by charts and
// narrative summaries.
func (d Date) Display() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format("02/01/2006")
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
