package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestRawMeasurement_Validate(t *testing.T) {
	valid := RawMeasurement{
		PatientID:       1,
		MeasurementDate: NewDate(2024, time.March, 1),
		AP:              f(100),
	}
	assert.NoError(t, valid.Validate())

	missingPatient := valid
	missingPatient.PatientID = 0
	assert.Error(t, missingPatient.Validate())

	missingDate := valid
	missingDate.MeasurementDate = Date{}
	assert.Error(t, missingDate.Validate())

	negative := valid
	negative.BP = f(-3)
	assert.Error(t, negative.Validate())

	zeroIsFine := valid
	zeroIsFine.AP = f(0)
	assert.NoError(t, zeroIsFine.Validate(), "zero is syntactically valid input")
}

func TestMeasurementPatch_UnmarshalPresence(t *testing.T) {
	var patch MeasurementPatch
	err := json.Unmarshal([]byte(`{"ap": 120.5, "bp": null}`), &patch)
	require.NoError(t, err)

	assert.True(t, patch.AP.Set)
	require.NotNil(t, patch.AP.Value)
	assert.Equal(t, 120.5, *patch.AP.Value)

	assert.True(t, patch.BP.Set, "explicit null marks the field for clearing")
	assert.Nil(t, patch.BP.Value)

	assert.False(t, patch.PC.Set, "absent key leaves the field untouched")
	assert.False(t, patch.MeasurementDate.Set)
}

func TestMeasurementPatch_UnmarshalDate(t *testing.T) {
	var patch MeasurementPatch
	err := json.Unmarshal([]byte(`{"measurement_date": "2024-04-02"}`), &patch)
	require.NoError(t, err)

	require.True(t, patch.MeasurementDate.Set)
	require.NotNil(t, patch.MeasurementDate.Value)
	assert.Equal(t, "2024-04-02", patch.MeasurementDate.Value.String())
}

func TestMeasurementPatch_DateCannotBeCleared(t *testing.T) {
	var patch MeasurementPatch
	err := json.Unmarshal([]byte(`{"measurement_date": null}`), &patch)
	assert.Error(t, err)
}

func TestMeasurementPatch_RejectsNonNumeric(t *testing.T) {
	var patch MeasurementPatch
	err := json.Unmarshal([]byte(`{"ap": "abc"}`), &patch)
	assert.Error(t, err)
}

func TestMeasurementPatch_ApplyTo(t *testing.T) {
	original := RawMeasurement{
		PatientID:       1,
		MeasurementDate: NewDate(2024, time.March, 1),
		AP:              f(100),
		BP:              f(80),
		PC:              f(340),
	}

	patch := MeasurementPatch{
		AP: SetTo(110.0),
		BP: Clear[float64](),
	}

	updated := patch.ApplyTo(original)

	require.NotNil(t, updated.AP)
	assert.Equal(t, 110.0, *updated.AP)
	assert.Nil(t, updated.BP, "cleared to null")
	require.NotNil(t, updated.PC)
	assert.Equal(t, 340.0, *updated.PC, "untouched field survives")

	require.NotNil(t, original.BP, "input must not be mutated")
}

func TestMeasurementPatch_Validate(t *testing.T) {
	ok := MeasurementPatch{TD: SetTo(2.0)}
	assert.NoError(t, ok.Validate())

	bad := MeasurementPatch{TD: SetTo(-2.0)}
	assert.Error(t, bad.Validate())

	cleared := MeasurementPatch{TD: Clear[float64]()}
	assert.NoError(t, cleared.Validate())
}

func TestMeasurementPatch_IsEmpty(t *testing.T) {
	var empty MeasurementPatch
	assert.True(t, empty.IsEmpty())

	cleared := MeasurementPatch{PE: Clear[float64]()}
	assert.False(t, cleared.IsEmpty())
}

func TestDate_JSONRoundTrip(t *testing.T) {
	d := NewDate(2024, time.March, 7)

	encoded, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-07"`, string(encoded))

	var decoded Date
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.True(t, d.Equal(decoded))
}

func TestDate_Display(t *testing.T) {
	assert.Equal(t, "07/03/2024", NewDate(2024, time.March, 7).Display())
	assert.Equal(t, "", Date{}.Display())
}

func TestPatient_Validate(t *testing.T) {
	valid := Patient{
		OwnerID:   "therapist-1",
		Name:      "Ana",
		BirthDate: NewDate(2023, time.June, 10),
	}
	assert.NoError(t, valid.Validate())

	noName := valid
	noName.Name = "  "
	assert.Error(t, noName.Validate())

	noOwner := valid
	noOwner.OwnerID = ""
	assert.Error(t, noOwner.Validate())

	future := valid
	future.BirthDate = DateOf(time.Now().AddDate(1, 0, 0))
	assert.Error(t, future.Validate())
}

func TestIndexType_IsValid(t *testing.T) {
	assert.True(t, CI.IsValid())
	assert.True(t, CVAI.IsValid())
	assert.True(t, TBC.IsValid())
	assert.False(t, IndexType("BMI").IsValid())
}
