package domain

import (
	"context"
)

// PatientRepository defines patient persistence. Every call carries the
// Principal so ownership can be enforced in the store itself; a regular
// user only sees patients they own, an admin sees everything.
type PatientRepository interface {
	Create(ctx context.Context, principal Principal, patient *Patient) error
	GetByID(ctx context.Context, principal Principal, id int64) (*Patient, error)
	List(ctx context.Context, principal Principal, limit, offset int) ([]*Patient, error)
	Update(ctx context.Context, principal Principal, patient *Patient) error
	// Delete soft-deletes the patient. Its measurements are left intact.
	Delete(ctx context.Context, principal Principal, id int64) error
}

// MeasurementRepository defines measurement persistence. Listing returns
// records in arbitrary order; callers needing date order go through the
// series assembler. Deletes are hard row removals.
type MeasurementRepository interface {
	Create(ctx context.Context, principal Principal, m *RawMeasurement) error
	GetByID(ctx context.Context, principal Principal, id int64) (*RawMeasurement, error)
	ListByPatient(ctx context.Context, principal Principal, patientID int64) ([]*RawMeasurement, error)
	Patch(ctx context.Context, principal Principal, id int64, patch *MeasurementPatch) (*RawMeasurement, error)
	Delete(ctx context.Context, principal Principal, id int64) error
}

// SeriesCache caches assembled evolution series per patient. A cache
// failure is never fatal; callers fall back to recomputation.
type SeriesCache interface {
	Get(ctx context.Context, patientID int64) (*EvolutionSeries, bool, error)
	Set(ctx context.Context, patientID int64, series *EvolutionSeries) error
	Invalidate(ctx context.Context, patientID int64) error
}

// EvolutionSeries is the display-ready evolution payload for one patient:
// the classified measurement table plus the per-index chart series and a
// narrative summary of the latest state.
type EvolutionSeries struct {
	PatientID    int64                      `json:"patient_id"`
	Measurements []*ClassifiedMeasurement   `json:"measurements"`
	Charts       map[IndexType][]ChartPoint `json:"charts"`
	Summary      string                     `json:"summary"`
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetCacheConfig() *CacheConfig
	Validate() error
	IsProduction() bool
}
