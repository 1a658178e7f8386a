// Package storage implements the embedded SQLite store used in
// single-clinic deployments where running PostgreSQL is not worth the
// operational cost. It satisfies the same repository interfaces as the
// PostgreSQL layer, so the rest of the server does not know which driver
// is underneath.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/repository"
)

// SQLiteStore holds the embedded database. Use Patients and Measurements
// for the repository views.
type SQLiteStore struct {
	db      *sql.DB
	dbPath  string
	log     *logrus.Logger
	compute repository.IndexComputer
}

// NewSQLiteStore opens (or creates) the database file and ensures the
// schema exists.
func NewSQLiteStore(dbPath string, logger *logrus.Logger, compute repository.IndexComputer) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	store, err := NewSQLiteStoreFromDB(db, logger, compute)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.dbPath = dbPath
	return store, nil
}

// NewSQLiteStoreFromDB wraps an already-open database handle. The schema
// is created if missing.
func NewSQLiteStoreFromDB(db *sql.DB, logger *logrus.Logger, compute repository.IndexComputer) (*SQLiteStore, error) {
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{
		db:      db,
		log:     logger,
		compute: compute,
	}, nil
}

// Patients returns the patient repository view of the store.
func (s *SQLiteStore) Patients() domain.PatientRepository {
	return &sqlitePatients{s}
}

// Measurements returns the measurement repository view of the store.
func (s *SQLiteStore) Measurements() domain.MeasurementRepository {
	return &sqliteMeasurements{s}
}

// Health checks the database connection.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		notes TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_patients_owner ON patients(owner_id);

	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(id),
		measurement_date TEXT NOT NULL,
		pc REAL CHECK (pc >= 0),
		ap REAL CHECK (ap >= 0),
		bp REAL CHECK (bp >= 0),
		pd REAL CHECK (pd >= 0),
		pe REAL CHECK (pe >= 0),
		td REAL CHECK (td >= 0),
		te REAL CHECK (te >= 0),
		ci REAL,
		cvai REAL,
		tbc REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_measurements_patient ON measurements(patient_id);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

type sqlitePatients struct {
	store *SQLiteStore
}

func (r *sqlitePatients) Create(ctx context.Context, principal domain.Principal, patient *domain.Patient) error {
	if !principal.IsAdmin || patient.OwnerID == "" {
		patient.OwnerID = principal.UserID
	}
	if err := patient.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := r.store.db.ExecContext(ctx, `
		INSERT INTO patients (owner_id, name, birth_date, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		patient.OwnerID,
		patient.Name,
		patient.BirthDate.String(),
		patient.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	patient.ID = id
	patient.CreatedAt = now
	patient.UpdatedAt = now

	r.store.log.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"owner_id":   patient.OwnerID,
	}).Info("Patient created")

	return nil
}

func (r *sqlitePatients) GetByID(ctx context.Context, principal domain.Principal, id int64) (*domain.Patient, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, birth_date, notes, created_at, updated_at
		FROM patients
		WHERE id = ?
		  AND deleted_at IS NULL
		  AND (? OR owner_id = ?)`,
		id, principal.IsAdmin, principal.UserID)

	patient, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting patient %d: %w", id, err)
	}
	return patient, nil
}

func (r *sqlitePatients) List(ctx context.Context, principal domain.Principal, limit, offset int) ([]*domain.Patient, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, owner_id, name, birth_date, notes, created_at, updated_at
		FROM patients
		WHERE deleted_at IS NULL
		  AND (? OR owner_id = ?)
		ORDER BY name, id
		LIMIT ? OFFSET ?`,
		principal.IsAdmin, principal.UserID, limit, offset)
	if err != nil {
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
	return patients, rows.Err()
}

func (r *sqlitePatients) Update(ctx context.Context, principal domain.Principal, patient *domain.Patient) error {
	if err := patient.Validate(); err != nil {
		return err
	}

	result, err := r.store.db.ExecContext(ctx, `
		UPDATE patients
		SET name = ?, birth_date = ?, notes = ?, updated_at = ?
		WHERE id = ?
		  AND deleted_at IS NULL
		  AND (? OR owner_id = ?)`,
		patient.Name,
		patient.BirthDate.String(),
		patient.Notes,
		time.Now().UTC(),
		patient.ID,
		principal.IsAdmin,
		principal.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating patient %d: %w", patient.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("patient %d: %w", patient.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *sqlitePatients) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	now := time.Now().UTC()
	result, err := r.store.db.ExecContext(ctx, `
		UPDATE patients
		SET deleted_at = ?, updated_at = ?
		WHERE id = ?
		  AND deleted_at IS NULL
		  AND (? OR owner_id = ?)`,
		now, now, id, principal.IsAdmin, principal.UserID)
	if err != nil {
		return fmt.Errorf("deleting patient %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
	}

	r.store.log.WithField("patient_id", id).Info("Patient soft-deleted")
	return nil
}

func scanPatient(s scanner) (*domain.Patient, error) {
	var patient domain.Patient
	var birthDate string

	err := s.Scan(
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

	patient.BirthDate, err = domain.ParseDate(birthDate)
	if err != nil {
		return nil, fmt.Errorf("parsing birth date %q: %w", birthDate, err)
	}
	return &patient, nil
}

type sqliteMeasurements struct {
	store *SQLiteStore
}

// visiblePatient mirrors the PostgreSQL guard: the owning patient must
// exist, not be soft-deleted, and belong to the caller unless admin.
const visiblePatient = `EXISTS (
		SELECT 1 FROM patients p
		WHERE p.id = m.patient_id
		  AND p.deleted_at IS NULL
		  AND (? OR p.owner_id = ?))`

const measurementColumns = `
	m.id, m.patient_id, m.measurement_date,
	m.pc, m.ap, m.bp, m.pd, m.pe, m.td, m.te,
	m.ci, m.cvai, m.tbc,
	m.created_at, m.updated_at`

func (r *sqliteMeasurements) Create(ctx context.Context, principal domain.Principal, m *domain.RawMeasurement) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if _, err := (&sqlitePatients{r.store}).GetByID(ctx, principal, m.PatientID); err != nil {
		return err
	}

	indices := r.store.compute(m)
	m.CI, m.CVAI, m.TBC = indices.CI, indices.CVAI, indices.TBC

	now := time.Now().UTC()
	result, err := r.store.db.ExecContext(ctx, `
		INSERT INTO measurements (
			patient_id, measurement_date,
			pc, ap, bp, pd, pe, td, te,
			ci, cvai, tbc,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PatientID,
		m.MeasurementDate.String(),
		m.PC, m.AP, m.BP, m.PD, m.PE, m.TD, m.TE,
		m.CI, m.CVAI, m.TBC,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("creating measurement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now

	r.store.log.WithFields(logrus.Fields{
		"measurement_id": m.ID,
		"patient_id":     m.PatientID,
	}).Info("Measurement created")

	return nil
}

func (r *sqliteMeasurements) GetByID(ctx context.Context, principal domain.Principal, id int64) (*domain.RawMeasurement, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+measurementColumns+`
		FROM measurements m
		WHERE m.id = ? AND `+visiblePatient,
		id, principal.IsAdmin, principal.UserID)

	m, err := scanMeasurement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting measurement %d: %w", id, err)
	}
	return m, nil
}

func (r *sqliteMeasurements) ListByPatient(ctx context.Context, principal domain.Principal, patientID int64) ([]*domain.RawMeasurement, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+measurementColumns+`
		FROM measurements m
		WHERE m.patient_id = ? AND `+visiblePatient,
		patientID, principal.IsAdmin, principal.UserID)
	if err != nil {
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
	return measurements, rows.Err()
}

func (r *sqliteMeasurements) Patch(ctx context.Context, principal domain.Principal, id int64, patch *domain.MeasurementPatch) (*domain.RawMeasurement, error) {
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
	indices := r.store.compute(&updated)
	updated.CI, updated.CVAI, updated.TBC = indices.CI, indices.CVAI, indices.TBC
	updated.UpdatedAt = time.Now().UTC()

	result, err := r.store.db.ExecContext(ctx, `
		UPDATE measurements AS m
		SET measurement_date = ?,
			pc = ?, ap = ?, bp = ?, pd = ?, pe = ?, td = ?, te = ?,
			ci = ?, cvai = ?, tbc = ?,
			updated_at = ?
		WHERE m.id = ? AND `+visiblePatient,
		updated.MeasurementDate.String(),
		updated.PC, updated.AP, updated.BP, updated.PD, updated.PE, updated.TD, updated.TE,
		updated.CI, updated.CVAI, updated.TBC,
		updated.UpdatedAt,
		id, principal.IsAdmin, principal.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("patching measurement %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
	}

	r.store.log.WithField("measurement_id", id).Info("Measurement updated")
	return &updated, nil
}

func (r *sqliteMeasurements) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	result, err := r.store.db.ExecContext(ctx, `
		DELETE FROM measurements
		WHERE id IN (
			SELECT m.id FROM measurements m
			WHERE m.id = ? AND `+visiblePatient+`)`,
		id, principal.IsAdmin, principal.UserID)
	if err != nil {
		return fmt.Errorf("deleting measurement %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("measurement %d: %w", id, domain.ErrNotFound)
	}

	r.store.log.WithField("measurement_id", id).Info("Measurement deleted")
	return nil
}

func scanMeasurement(s scanner) (*domain.RawMeasurement, error) {
	var m domain.RawMeasurement
	var date string

	err := s.Scan(
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

	m.MeasurementDate, err = domain.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parsing measurement date %q: %w", date, err)
	}
	return &m, nil
}
