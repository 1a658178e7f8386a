package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/craniometry-server/internal/database"
	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/service"
)

var (
	owner    = domain.Principal{UserID: "therapist-1"}
	stranger = domain.Principal{UserID: "therapist-2"}
)

func f(v float64) *float64 { return &v }

// generateTestPassword creates a random password for the test database
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "starting PostgreSQL container")

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &domain.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        testPassword,
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		MigrationsPath:  "../../migrations",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, cfg, logger)
	require.NoError(t, err, "connecting to test database")

	migrator, err := database.NewMigrator(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())

	t.Cleanup(func() {
		migrator.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	return db
}

func newRepos(t *testing.T) (*PatientRepository, *MeasurementRepository) {
	t.Helper()

	db := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return NewPatientRepository(db.Pool, logger),
		NewMeasurementRepository(db.Pool, logger, service.ComputeIndices)
}

func seedPatient(t *testing.T, patients *PatientRepository, principal domain.Principal) *domain.Patient {
	t.Helper()

	patient := &domain.Patient{
		Name:      "Ana",
		BirthDate: domain.NewDate(2023, time.June, 10),
	}
	require.NoError(t, patients.Create(context.Background(), principal, patient))
	return patient
}

func TestPatientRepository_Lifecycle(t *testing.T) {
	patients, _ := newRepos(t)
	ctx := context.Background()

	patient := seedPatient(t, patients, owner)
	assert.NotZero(t, patient.ID)
	assert.Equal(t, owner.UserID, patient.OwnerID)

	got, err := patients.GetByID(ctx, owner, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.True(t, got.BirthDate.Equal(patient.BirthDate))

	_, err = patients.GetByID(ctx, stranger, patient.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got.Notes = "helmet fitted"
	require.NoError(t, patients.Update(ctx, owner, got))

	require.NoError(t, patients.Delete(ctx, owner, patient.ID))
	_, err = patients.GetByID(ctx, owner, patient.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMeasurementRepository_Lifecycle(t *testing.T) {
	patients, measurements := newRepos(t)
	ctx := context.Background()

	patient := seedPatient(t, patients, owner)

	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
		BP:              f(80),
		TD:              f(10),
		TE:              f(7),
	}
	require.NoError(t, measurements.Create(ctx, owner, m))
	require.NotNil(t, m.CI, "indices computed on the way in")
	assert.InDelta(t, 80.0, *m.CI, 1e-9)

	got, err := measurements.GetByID(ctx, owner, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TBC)
	assert.InDelta(t, 3.0, *got.TBC, 1e-9)
	assert.Nil(t, got.CVAI)

	// Patch: clearing an input clears the derived index.
	patched, err := measurements.Patch(ctx, owner, m.ID, &domain.MeasurementPatch{
		BP: domain.Clear[float64](),
	})
	require.NoError(t, err)
	assert.Nil(t, patched.BP)
	assert.Nil(t, patched.CI)

	listed, err := measurements.ListByPatient(ctx, owner, patient.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, measurements.Delete(ctx, owner, m.ID))
	_, err = measurements.GetByID(ctx, owner, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMeasurementRepository_OwnershipGuard(t *testing.T) {
	patients, measurements := newRepos(t)
	ctx := context.Background()

	patient := seedPatient(t, patients, owner)

	foreign := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	err := measurements.Create(ctx, stranger, foreign)
	assert.ErrorIs(t, err, domain.ErrNotFound, "cannot write into a foreign patient")

	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	require.NoError(t, measurements.Create(ctx, owner, m))

	_, err = measurements.GetByID(ctx, stranger, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	admin := domain.Principal{UserID: "auditor", IsAdmin: true}
	_, err = measurements.GetByID(ctx, admin, m.ID)
	assert.NoError(t, err)
}

func TestMeasurementRepository_DeletedPatientHidesRows(t *testing.T) {
	patients, measurements := newRepos(t)
	ctx := context.Background()

	patient := seedPatient(t, patients, owner)
	m := &domain.RawMeasurement{
		PatientID:       patient.ID,
		MeasurementDate: domain.NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	require.NoError(t, measurements.Create(ctx, owner, m))

	require.NoError(t, patients.Delete(ctx, owner, patient.ID))

	_, err := measurements.GetByID(ctx, owner, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "rows of a deleted patient are unreachable")
}
