package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{`24`, 24, false},
		{`"24"`, 24, false},
		{`" 7 "`, 7, false},
		{`"twenty"`, 0, true},
		{`true`, 0, true},
		{`2.5`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f FlexibleInt
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAgeNotNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int(f))
		})
	}
}

func TestCreatePatientRequest_ToPatient(t *testing.T) {
	var req CreatePatientRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"patientName": "  Asha ",
		"age": "24",
		"location": "Ward 3",
		"type": "Mother"
	}`), &req))

	p := req.ToPatient()
	assert.Equal(t, "Asha", p.PatientName)
	assert.Equal(t, 24, p.Age)
	assert.Equal(t, "Ward 3", p.Location)
	assert.Equal(t, PatientTypeMother, p.Type)
	assert.Empty(t, p.HealthStatus)

	req.Age = nil
	assert.Equal(t, -1, req.ToPatient().Age)
}

func TestPatient_ApplyDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	p := &Patient{}
	p.ApplyDefaults(now)
	assert.Equal(t, HealthStatusHealthy, p.HealthStatus)
	assert.Equal(t, now, p.LastCheckup)

	checkup := now.Add(-48 * time.Hour)
	p = &Patient{HealthStatus: HealthStatusCritical, LastCheckup: checkup}
	p.ApplyDefaults(now)
	assert.Equal(t, HealthStatusCritical, p.HealthStatus)
	assert.Equal(t, checkup, p.LastCheckup)
}

func TestEnums(t *testing.T) {
	assert.True(t, PatientTypeChild.Valid())
	assert.False(t, PatientType("Father").Valid())
	assert.True(t, HealthStatusUnderTreatment.Valid())
	assert.Equal(t, "Under Treatment", string(HealthStatusUnderTreatment))
	assert.False(t, HealthStatus("healthy").Valid())
}
