package service

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/craniometry-server/internal/domain"
)

// memoSize bounds the in-process series memo when the config leaves it unset.
const defaultMemoSize = 256

// EvolutionService produces display-ready evolution payloads: the
// classified measurement table, per-index chart series and a narrative
// summary. Results are memoized in-process and cached in the shared series
// cache; both layers are invalidated on any measurement write.
type EvolutionService struct {
	log          *logrus.Logger
	patients     domain.PatientRepository
	measurements domain.MeasurementRepository
	cache        domain.SeriesCache // optional, may be nil
	memo         *lru.Cache
}

// NewEvolutionService creates a new evolution service. cache may be nil
// when the deployment runs without Redis.
func NewEvolutionService(
	log *logrus.Logger,
	patients domain.PatientRepository,
	measurements domain.MeasurementRepository,
	cache domain.SeriesCache,
	memoSize int,
) (*EvolutionService, error) {
	if memoSize <= 0 {
		memoSize = defaultMemoSize
	}
	memo, err := lru.New(memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating series memo: %w", err)
	}

	return &EvolutionService{
		log:          log,
		patients:     patients,
		measurements: measurements,
		cache:        cache,
		memo:         memo,
	}, nil
}

// Series returns the evolution payload for one patient. Access is checked
// against the principal before any cache layer is consulted, so a cache
// hit can never leak another therapist's patient.
func (s *EvolutionService) Series(ctx context.Context, principal domain.Principal, patientID int64) (*domain.EvolutionSeries, error) {
	if _, err := s.patients.GetByID(ctx, principal, patientID); err != nil {
		return nil, fmt.Errorf("resolving patient %d: %w", patientID, err)
	}

	if cached, ok := s.memo.Get(patientID); ok {
		return cached.(*domain.EvolutionSeries), nil
	}

	if s.cache != nil {
		series, hit, err := s.cache.Get(ctx, patientID)
		if err != nil {
			s.log.WithError(err).WithField("patient_id", patientID).
				Warn("Series cache read failed, recomputing")
		} else if hit {
			s.memo.Add(patientID, series)
			return series, nil
		}
	}

	series, err := s.compute(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}

	s.memo.Add(patientID, series)
	if s.cache != nil {
		if err := s.cache.Set(ctx, patientID, series); err != nil {
			s.log.WithError(err).WithField("patient_id", patientID).
				Warn("Series cache write failed")
		}
	}

	return series, nil
}

// Table returns the historical table view: the assembled series with the
// CI/CVAI carry-forward decoration applied.
func (s *EvolutionService) Table(ctx context.Context, principal domain.Principal, patientID int64) ([]*domain.ClassifiedMeasurement, error) {
	series, err := s.Series(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}
	return series.Measurements, nil
}

// Invalidate drops the cached series for one patient. Called after every
// measurement write.
func (s *EvolutionService) Invalidate(ctx context.Context, patientID int64) {
	s.memo.Remove(patientID)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, patientID); err != nil {
			s.log.WithError(err).WithField("patient_id", patientID).
				Warn("Series cache invalidation failed")
		}
	}
}

func (s *EvolutionService) compute(ctx context.Context, principal domain.Principal, patientID int64) (*domain.EvolutionSeries, error) {
	raw, err := s.measurements.ListByPatient(ctx, principal, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing measurements for patient %d: %w", patientID, err)
	}

	assembled := AssembleSeries(raw)
	table := CarryForwardTable(assembled)
	series := &domain.EvolutionSeries{
		PatientID:    patientID,
		Measurements: table,
		Charts:       BuildChartSeries(assembled),
		// The narrative reads the decorated table so it reports the last
		// known state, not a gap in the latest visit.
		Summary: NarrativeSummary(table),
	}

	s.log.WithFields(logrus.Fields{
		"patient_id":   patientID,
		"measurements": len(assembled),
	}).Debug("Evolution series assembled")

	return series, nil
}

// NarrativeSummary renders a one-line textual summary of the latest
// computable state per index, for report headers and chart captions.
// Returns an empty string for an empty series.
func NarrativeSummary(series []*domain.ClassifiedMeasurement) string {
	if len(series) == 0 {
		return ""
	}

	latest := series[len(series)-1]
	parts := make([]string, 0, 3)

	appendPart := func(index domain.IndexType, value *float64, label string) {
		if value == nil || label == domain.NotComputable {
			return
		}
		parts = append(parts, fmt.Sprintf("%s %.1f (%s)", index, *value, label))
	}
	appendPart(domain.CI, latest.CI, latest.CIClass)
	appendPart(domain.CVAI, latest.CVAI, latest.CVAIClass)
	appendPart(domain.TBC, latest.TBC, latest.TBCClass)

	if len(parts) == 0 {
		return fmt.Sprintf("No computable indices as of %s", latest.MeasurementDate.Display())
	}
	return fmt.Sprintf("%s as of %s", strings.Join(parts, "; "), latest.MeasurementDate.Display())
}
