package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// EventNewPatientAdded is emitted once for every successfully stored patient.
const EventNewPatientAdded = "new-patient-added"

// EventSubscribed is the first frame on every viewer connection. Every
// broadcast after it reaches the viewer.
const EventSubscribed = "subscribed"

// SubscribedAck is the payload of EventSubscribed
type SubscribedAck struct {
	SessionID string `json:"sessionId"`
}

type PatientType string

const (
	PatientTypeMother PatientType = "Mother"
	PatientTypeChild  PatientType = "Child"
)

func AllPatientTypes() []PatientType {
	return []PatientType{PatientTypeMother, PatientTypeChild}
}

func (t PatientType) Valid() bool {
	for _, v := range AllPatientTypes() {
		if t == v {
			return true
		}
	}
	return false
}

type HealthStatus string

const (
	HealthStatusHealthy        HealthStatus = "Healthy"
	HealthStatusUnderTreatment HealthStatus = "Under Treatment"
	HealthStatusCritical       HealthStatus = "Critical"
)

func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{HealthStatusHealthy, HealthStatusUnderTreatment, HealthStatusCritical}
}

func (s HealthStatus) Valid() bool {
	for _, v := range AllHealthStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Patient is a single RCH registration. Records are immutable once stored.
type Patient struct {
	Base
	PatientName  string       `json:"patientName" db:"patient_name" validate:"required,notblank"`
	Age          int          `json:"age" db:"age" validate:"min=0"`
	Location     string       `json:"location" db:"location" validate:"required,notblank"`
	Type         PatientType  `json:"type" db:"type" validate:"required,patient_type"`
	HealthStatus HealthStatus `json:"healthStatus" db:"health_status" validate:"required,health_status"`
	LastCheckup  time.Time    `json:"lastCheckup" db:"last_checkup"`
}

type CreatePatientRequest struct {
	PatientName  string       `json:"patientName"`
	Age          *FlexibleInt `json:"age"`
	Location     string       `json:"location"`
	Type         string       `json:"type"`
	HealthStatus string       `json:"healthStatus"`
	LastCheckup  *time.Time   `json:"lastCheckup"`
}

// ToPatient maps the request onto an unsaved Patient. A missing age is
// reported as -1 so that store validation rejects it.
func (r *CreatePatientRequest) ToPatient() *Patient {
	p := &Patient{
		PatientName:  strings.TrimSpace(r.PatientName),
		Age:          -1,
		Location:     strings.TrimSpace(r.Location),
		Type:         PatientType(r.Type),
		HealthStatus: HealthStatus(r.HealthStatus),
	}
	if r.Age != nil {
		p.Age = int(*r.Age)
	}
	if r.LastCheckup != nil {
		p.LastCheckup = *r.LastCheckup
	}
	return p
}

// ApplyDefaults fills fields the schema defaults when the caller left them empty.
func (p *Patient) ApplyDefaults(now time.Time) {
	if p.HealthStatus == "" {
		p.HealthStatus = HealthStatusHealthy
	}
	if p.LastCheckup.IsZero() {
		p.LastCheckup = now
	}
}

// ErrAgeNotNumber is returned when age is neither a number nor a numeric string
var ErrAgeNotNumber = errors.New("age must be a number")

// FlexibleInt decodes both 24 and "24". Browser number inputs post strings.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexibleInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrAgeNotNumber
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return ErrAgeNotNumber
	}
	*f = FlexibleInt(n)
	return nil
}
