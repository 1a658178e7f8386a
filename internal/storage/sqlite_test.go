package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/service"
)

var (
	owner    = domain.Principal{UserID: "therapist-1"}
	stranger = domain.Principal{UserID: "therapist-2"}
	admin    = domain.Principal{UserID: "root", IsAdmin: true}
)

func f(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "clinic.db"), log, service.ComputeIndices)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestPatient(t *testing.T, store *SQLiteStore, principal domain.Principal) *domain.Patient {
	t.Helper()

	patient := &domain.Patient{
		Name:      "Ana",
		BirthDate: domain.NewDate(2023, time.June, 10),
	}
	require.NoError(t, store.Patients().Create(context.Background(), principal, patient))
	return patient
}

func TestSQLitePatients_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)
	assert.NotZero(t, patient.ID)
	assert.Equal(t, owner.UserID, patient.OwnerID)

	got, err := store.Patients().GetByID(ctx, owner, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.True(t, got.BirthDate.Equal(domain.NewDate(2023, time.June, 10)))
}

func TestSQLitePatients_OwnershipScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)

	_, err := store.Patients().GetByID(ctx, stranger, patient.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := store.Patients().GetByID(ctx, admin, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.ID)
}

func TestSQLitePatients_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Zoe", "Ana", "Maria"} {
		p := &domain.Patient{Name: name, BirthDate: domain.NewDate(2023, time.June, 10)}
		require.NoError(t, store.Patients().Create(ctx, owner, p))
	}
	createTestPatient(t, store, stranger)

	patients, err := store.Patients().List(ctx, owner, 10, 0)
	require.NoError(t, err)
	require.Len(t, patients, 3, "only the caller's patients are visible")
	assert.Equal(t, "Ana", patients[0].Name)
	assert.Equal(t, "Zoe", patients[2].Name)

	all, err := store.Patients().List(ctx, admin, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLitePatients_SoftDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
		BP:              f(80),
	}
	require.NoError(t, store.Measurements().Create(ctx, owner, m))

	require.NoError(t, store.Patients().Delete(ctx, owner, patient.ID))

	_, err := store.Patients().GetByID(ctx, owner, patient.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Measurements of a deleted patient become unreachable but stay on disk.
	_, err = store.Measurements().GetByID(ctx, owner, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.Patients().Delete(ctx, owner, patient.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "second delete finds nothing")
}

func TestSQLiteMeasurements_CreateComputesIndices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
		BP:              f(80),
		TD:              f(10),
		TE:              f(7),
	}
	require.NoError(t, store.Measurements().Create(ctx, owner, m))

	got, err := store.Measurements().GetByID(ctx, owner, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CI)
	assert.InDelta(t, 80.0, *got.CI, 1e-9)
	assert.Nil(t, got.CVAI, "diagonals absent")
	require.NotNil(t, got.TBC)
	assert.InDelta(t, 3.0, *got.TBC, 1e-9)
}

func TestSQLiteMeasurements_CreateForForeignPatient(t *testing.T) {
	store := newTestStore(t)

	patient := createTestPatient(t, store, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	err := store.Measurements().Create(context.Background(), stranger, m)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteMeasurements_PatchRecomputes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
		BP:              f(80),
	}
	require.NoError(t, store.Measurements().Create(ctx, owner, m))

	patch := &domain.MeasurementPatch{BP: domain.Clear[float64]()}
	updated, err := store.Measurements().Patch(ctx, owner, m.ID, patch)
	require.NoError(t, err)
	assert.Nil(t, updated.BP)
	assert.Nil(t, updated.CI, "index cleared once an input is gone")

	got, err := store.Measurements().GetByID(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CI)
	require.NotNil(t, got.AP)
	assert.InDelta(t, 100.0, *got.AP, 1e-9)
}

func TestSQLiteMeasurements_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	patient := createTestPatient(t, store, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	require.NoError(t, store.Measurements().Create(ctx, owner, m))

	assert.ErrorIs(t, store.Measurements().Delete(ctx, stranger, m.ID), domain.ErrNotFound)
	require.NoError(t, store.Measurements().Delete(ctx, owner, m.ID))

	_, err := store.Measurements().GetByID(ctx, owner, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLitePatients_GetQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	store, err := NewSQLiteStoreFromDB(db, log, service.ComputeIndices)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM patients").WillReturnError(errors.New("disk I/O error"))

	_, err = store.Patients().GetByID(context.Background(), owner, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getting patient 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
