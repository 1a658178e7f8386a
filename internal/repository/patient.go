// Package repository implements PostgreSQL persistence for patients and
// measurements. Ownership is enforced in SQL: every query carries the
// caller's Principal, and a non-admin only ever touches rows whose patient
// they own. Rows that exist but are not visible to the caller surface as
// domain.ErrNotFound so access checks do not leak record existence.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/craniometry-server/internal/domain"
)

// PatientRepository handles patient data persistence.
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository.
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new patient. A non-admin always becomes the owner of
// the patients they register, regardless of the payload.
func (r *PatientRepository) Create(ctx context.Context, principal domain.Principal, patient *domain.Patient) error {
	if !principal.IsAdmin || patient.OwnerID == "" {
		patient.OwnerID = principal.UserID
	}
	if err := patient.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO patients (owner_id, name, birth_date, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		patient.OwnerID,
		patient.Name,
		patient.BirthDate.Time(),
		patient.Notes,
	).Scan(&patient.ID, &patient.CreatedAt, &patient.UpdatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"owner_id": patient.OwnerID,
			"error":    err,
		}).Error("Failed to create patient")
		return fmt.Errorf("creating patient: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"owner_id":   patient.OwnerID,
	}).Info("Patient created")

	return nil
}

// GetByID retrieves a patient visible to the principal. Soft-deleted
// patients are not returned.
func (r *PatientRepository) GetByID(ctx context.Context, principal domain.Principal, id int64) (*domain.Patient, error) {
	query := `
		SELECT id, owner_id, name, birth_date, notes, created_at, updated_at
		FROM patients
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND ($2 OR owner_id = $3)`

	patient, err := scanPatient(r.db.QueryRow(ctx, query, id, principal.IsAdmin, principal.UserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to get patient")
		return nil, fmt.Errorf("getting patient %d: %w", id, err)
	}

	return patient, nil
}

// List returns the principal's patients, alphabetically, with pagination.
// Admins see every non-deleted patient.
func (r *PatientRepository) List(ctx context.Context, principal domain.Principal, limit, offset int) ([]*domain.Patient, error) {
	query := `
		SELECT id, owner_id, name, birth_date, notes, created_at, updated_at
		FROM patients
		WHERE deleted_at IS NULL
		  AND ($1 OR owner_id = $2)
		ORDER BY name, id
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, principal.IsAdmin, principal.UserID, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list patients")
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patient row: %w", err)
		}
		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patient rows: %w", err)
	}

	return patients, nil
}

// Update updates a patient's editable fields. Ownership cannot be
// reassigned here.
func (r *PatientRepository) Update(ctx context.Context, principal domain.Principal, patient *domain.Patient) error {
	if err := patient.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE patients
		SET name = $2, birth_date = $3, notes = $4, updated_at = NOW()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND ($5 OR owner_id = $6)`

	result, err := r.db.Exec(ctx, query,
		patient.ID,
		patient.Name,
		patient.BirthDate.Time(),
		patient.Notes,
		principal.IsAdmin,
		principal.UserID,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patient.ID,
			"error":      err,
		}).Error("Failed to update patient")
		return fmt.Errorf("updating patient %d: %w", patient.ID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("patient %d: %w", patient.ID, domain.ErrNotFound)
	}

	r.log.WithField("patient_id", patient.ID).Info("Patient updated")
	return nil
}

// Delete soft-deletes a patient. Measurements are left in place and
// become logically orphaned; they are never cascaded.
func (r *PatientRepository) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	query := `
		UPDATE patients
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND ($2 OR owner_id = $3)`

	result, err := r.db.Exec(ctx, query, id, principal.IsAdmin, principal.UserID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to delete patient")
		return fmt.Errorf("deleting patient %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
	}

	r.log.WithField("patient_id", id).Info("Patient soft-deleted")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*domain.Patient, error) {
	var patient domain.Patient
	var birthDate time.Time

	err := row.Scan(
		&patient.ID,
		&patient.OwnerID,
		&patient.Name,
		&birthDate,
		&patient.Notes,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	patient.BirthDate = domain.DateOf(birthDate)
	return &patient, nil
}
