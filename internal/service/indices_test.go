package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craniometry-server/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestComputeIndices_CI(t *testing.T) {
	tests := []struct {
		name string
		ap   *float64
		bp   *float64
		want *float64
	}{
		{"both present", f(100), f(80), f(80)},
		{"non-round ratio", f(147), f(121), f((121.0 / 147.0) * 100)},
		{"ap missing", nil, f(80), nil},
		{"bp missing", f(100), nil, nil},
		{"both missing", nil, nil, nil},
		{"ap zero treated as absent", f(0), f(80), nil},
		{"bp zero treated as absent", f(100), f(0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeIndices(&domain.RawMeasurement{AP: tt.ap, BP: tt.bp})
			if tt.want == nil {
				assert.Nil(t, got.CI)
				return
			}
			require.NotNil(t, got.CI)
			assert.InDelta(t, *tt.want, *got.CI, 1e-9)
		})
	}
}

func TestComputeIndices_CVAI(t *testing.T) {
	tests := []struct {
		name string
		pd   *float64
		pe   *float64
		want *float64
	}{
		{"pd larger", f(60), f(55), f(((60.0 - 55.0) / 60.0) * 100)},
		{"pe larger", f(55), f(60), f(((60.0 - 55.0) / 60.0) * 100)},
		{"equal diagonals", f(60), f(60), f(0)},
		{"pd missing", nil, f(60), nil},
		{"pe missing", f(60), nil, nil},
		{"both zero guards division", f(0), f(0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeIndices(&domain.RawMeasurement{PD: tt.pd, PE: tt.pe})
			if tt.want == nil {
				assert.Nil(t, got.CVAI)
				return
			}
			require.NotNil(t, got.CVAI)
			assert.InDelta(t, *tt.want, *got.CVAI, 1e-9)
		})
	}
}

func TestComputeIndices_TBC(t *testing.T) {
	tests := []struct {
		name string
		td   *float64
		te   *float64
		want *float64
	}{
		{"td larger", f(13), f(10), f(3)},
		{"te larger", f(10), f(13), f(3)},
		{"equal", f(10), f(10), f(0)},
		{"zero readings are legitimate", f(0), f(4), f(4)},
		{"td missing", nil, f(10), nil},
		{"te missing", f(10), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeIndices(&domain.RawMeasurement{TD: tt.td, TE: tt.te})
			if tt.want == nil {
				assert.Nil(t, got.TBC)
				return
			}
			require.NotNil(t, got.TBC)
			assert.InDelta(t, *tt.want, *got.TBC, 1e-9)
		})
	}
}

func TestComputeIndices_Independence(t *testing.T) {
	// Missing diagonals must not block CI or TBC.
	got := ComputeIndices(&domain.RawMeasurement{
		AP: f(100), BP: f(80),
		TD: f(10), TE: f(13),
	})

	require.NotNil(t, got.CI)
	assert.InDelta(t, 80.0, *got.CI, 1e-9)
	assert.Nil(t, got.CVAI)
	require.NotNil(t, got.TBC)
	assert.InDelta(t, 3.0, *got.TBC, 1e-9)
}

func TestComputeIndices_FullVisit(t *testing.T) {
	got := ComputeIndices(&domain.RawMeasurement{
		AP: f(100), BP: f(80),
		PD: f(60), PE: f(55),
		TD: f(10), TE: f(13),
	})

	require.NotNil(t, got.CI)
	require.NotNil(t, got.CVAI)
	require.NotNil(t, got.TBC)
	assert.InDelta(t, 80.0, *got.CI, 1e-9)
	assert.InDelta(t, 8.333333333333332, *got.CVAI, 1e-9)
	assert.InDelta(t, 3.0, *got.TBC, 1e-9)

	assert.Equal(t, domain.CINormal, Classify(got.CI, domain.CI))
	assert.Equal(t, domain.CVAIModerate, Classify(got.CVAI, domain.CVAI))
	assert.Equal(t, domain.TBCMild, Classify(got.TBC, domain.TBC))
}

func TestComputeIndices_CircumferenceOnly(t *testing.T) {
	// A visit recording only head circumference yields no indices at all.
	got := ComputeIndices(&domain.RawMeasurement{PC: f(340)})

	assert.Nil(t, got.CI)
	assert.Nil(t, got.CVAI)
	assert.Nil(t, got.TBC)
	assert.Equal(t, domain.NotComputable, Classify(got.CI, domain.CI))
	assert.Equal(t, domain.NotComputable, Classify(got.CVAI, domain.CVAI))
	assert.Equal(t, domain.NotComputable, Classify(got.TBC, domain.TBC))
}

func TestComputeIndices_Deterministic(t *testing.T) {
	m := &domain.RawMeasurement{AP: f(147.3), BP: f(118.9), PD: f(61.2), PE: f(58.7)}

	first := ComputeIndices(m)
	second := ComputeIndices(m)

	assert.Equal(t, *first.CI, *second.CI)
	assert.Equal(t, *first.CVAI, *second.CVAI)
}
