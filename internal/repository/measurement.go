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

// IndexComputer recomputes the stored index columns from a measurement's
// raw fields. The persistence layer never derives indices itself; the
// computation core is injected so the formulas live in exactly one place.
type IndexComputer func(*domain.RawMeasurement) domain.Indices

// MeasurementRepository handles measurement data persistence. Ownership
// checks go through the owning patient's row; measurements of a
// soft-deleted patient are logically orphaned and not reachable here.
type MeasurementRepository struct {
	db      *pgxpool.Pool
	log     *logrus.Logger
	compute IndexComputer
}

// NewMeasurementRepository creates a new measurement repository.
func NewMeasurementRepository(db *pgxpool.Pool, logger *logrus.Logger, compute IndexComputer) *MeasurementRepository {
	return &MeasurementRepository{
		db:      db,
		log:     logger,
		compute: compute,
	}
}

// visiblePatient guards every statement: the row's patient must exist,
// not be soft-deleted, and be owned by the caller unless they are admin.
const visiblePatient = `EXISTS (
		SELECT 1 FROM patients p
		WHERE p.id = m.patient_id
		  AND p.deleted_at IS NULL
		  AND ($2 OR p.owner_id = $3))`

const measurementColumns = `
	m.id, m.patient_id, m.measurement_date,
	m.pc, m.ap, m.bp, m.pd, m.pe, m.td, m.te,
	m.ci, m.cvai, m.tbc,
	m.created_at, m.updated_at`

// Create inserts a new measurement for a patient the principal may write
// to. Stored index columns are computed from the raw fields on the way in.
func (r *MeasurementRepository) Create(ctx context.Context, principal domain.Principal, m *domain.RawMeasurement) error {
	if err := m.Validate(); err != nil {
		return err
	}

	indices := r.compute(m)
	m.CI, m.CVAI, m.TBC = indices.CI, indices.CVAI, indices.TBC

	query := `
		INSERT INTO measurements (
			patient_id, measurement_date,
			pc, ap, bp, pd, pe, td, te,
			ci, cvai, tbc
		)
		SELECT $1, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		WHERE EXISTS (
			SELECT 1 FROM patients p
			WHERE p.id = $1
			  AND p.deleted_at IS NULL
			  AND ($2 OR p.owner_id = $3))
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.PatientID, principal.IsAdmin, principal.UserID,
		m.MeasurementDate.Time(),
		m.PC, m.AP, m.BP, m.PD, m.PE, m.TD, m.TE,
		m.CI, m.CVAI, m.TBC,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("patient %d: %w", m.PatientID, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": m.PatientID,
			"error":      err,
		}).Error("Failed to create measurement")
		return fmt.Errorf("creating measurement: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"measurement_id": m.ID,
		"patient_id":     m.PatientID,
	}).Info("Measurement created")

	return nil
}

// GetByID retrieves one measurement visible to the principal.
func (r *MeasurementRepository) GetByID(ctx context.Context, principal domain.Principal, id int64) (*domain.RawMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements m
		WHERE m.id = $1 AND ` + visiblePatient

	m, err := scanMeasurement(r.db.QueryRow(ctx, query, id, principal.IsAdmin, principal.UserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"measurement_id": id,
			"error":          err,
		}).Error("Failed to get measurement")
		return nil, fmt.Errorf("getting measurement %d: %w", id, err)
	}

	return m, nil
}

// ListByPatient returns every measurement of one patient. Order is
// whatever the store yields; date ordering is the series assembler's job.
func (r *MeasurementRepository) ListByPatient(ctx context.Context, principal domain.Principal, patientID int64) ([]*domain.RawMeasurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements m
		WHERE m.patient_id = $1 AND ` + visiblePatient

	rows, err := r.db.Query(ctx, query, patientID, principal.IsAdmin, principal.UserID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to list measurements")
		return nil, fmt.Errorf("listing measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*domain.RawMeasurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning measurement row: %w", err)
		}
		measurements = append(measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurement rows: %w", err)
	}

	return measurements, nil
}

// Patch applies a partial update. The current row is read, the patch
// merged, indices recomputed, and the row rewritten; a field the patch
// does not set survives, a field it clears becomes null.
func (r *MeasurementRepository) Patch(ctx context.Context, principal domain.Principal, id int64, patch *domain.MeasurementPatch) (*domain.RawMeasurement, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	current, err := r.GetByID(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated := patch.ApplyTo(*current)
	indices := r.compute(&updated)
	updated.CI, updated.CVAI, updated.TBC = indices.CI, indices.CVAI, indices.TBC

	query := `
		UPDATE measurements m
		SET measurement_date = $4,
			pc = $5, ap = $6, bp = $7, pd = $8, pe = $9, td = $10, te = $11,
			ci = $12, cvai = $13, tbc = $14,
			updated_at = NOW()
		WHERE m.id = $1 AND ` + visiblePatient + `
		RETURNING m.updated_at`

	err = r.db.QueryRow(ctx, query,
		id, principal.IsAdmin, principal.UserID,
		updated.MeasurementDate.Time(),
		updated.PC, updated.AP, updated.BP, updated.PD, updated.PE, updated.TD, updated.TE,
		updated.CI, updated.CVAI, updated.TBC,
	).Scan(&updated.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"measurement_id": id,
			"error":          err,
		}).Error("Failed to patch measurement")
		return nil, fmt.Errorf("patching measurement %d: %w", id, err)
	}

	r.log.WithField("measurement_id", id).Info("Measurement updated")
	return &updated, nil
}

// Delete removes a measurement. This is a hard delete; measurements have
// no soft-delete lifecycle.
func (r *MeasurementRepository) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	query := `
		DELETE FROM measurements m
		WHERE m.id = $1 AND ` + visiblePatient

	result, err := r.db.Exec(ctx, query, id, principal.IsAdmin, principal.UserID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"measurement_id": id,
			"error":          err,
		}).Error("Failed to delete measurement")
		return fmt.Errorf("deleting measurement %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
	}

	r.log.WithField("measurement_id", id).Info("Measurement deleted")
	return nil
}

func scanMeasurement(row rowScanner) (*domain.RawMeasurement, error) {
	var m domain.RawMeasurement
	var date time.Time

	err := row.Scan(
		&m.ID,
		&m.PatientID,
		&date,
		&m.PC, &m.AP, &m.BP, &m.PD, &m.PE, &m.TD, &m.TE,
		&m.CI, &m.CVAI, &m.TBC,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MeasurementDate = domain.DateOf(date)
	return &m, nil
}
