package viewer

import "github.com/jwalitptl/rch-registry/internal/model"

// Form holds the entry fields of the add-patient form
type Form struct {
	PatientName  string
	Age          int
	Location     string
	Type         model.PatientType
	HealthStatus model.HealthStatus
}

func NewForm() *Form {
	f := &Form{}
	f.Reset()
	return f
}

// Reset clears the form back to a new Mother entry in Healthy state
func (f *Form) Reset() {
	*f = Form{
		Type:         model.PatientTypeMother,
		HealthStatus: model.HealthStatusHealthy,
	}
}

func (f *Form) request() *model.CreatePatientRequest {
	age := model.FlexibleInt(f.Age)
	return &model.CreatePatientRequest{
		PatientName:  f.PatientName,
		Age:          &age,
		Location:     f.Location,
		Type:         string(f.Type),
		HealthStatus: string(f.HealthStatus),
	}
}
