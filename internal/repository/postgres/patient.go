package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/repository"
	"github.com/jwalitptl/rch-registry/pkg/errors"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
	"github.com/jwalitptl/rch-registry/pkg/validator"
)

const (
	// check_violation and not_null_violation
	pqCheckViolation   = "23514"
	pqNotNullViolation = "23502"
)

type patientRepository struct {
	BaseRepository
	validator validator.Validator
}

func NewPatientRepository(db *sqlx.DB, m *metrics.Metrics) repository.PatientRepository {
	return &patientRepository{
		BaseRepository: NewBaseRepository(db, m),
		validator:      validator.New(),
	}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	patient.ApplyDefaults(time.Now().UTC())
	if err := r.validator.Validate(patient); err != nil {
		return err
	}

	query := `
		INSERT INTO patients (patient_name, age, location, type, health_status, last_checkup)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	start := time.Now()
	err := r.db.QueryRowxContext(ctx, query,
		patient.PatientName,
		patient.Age,
		patient.Location,
		patient.Type,
		patient.HealthStatus,
		patient.LastCheckup,
	).Scan(&patient.ID, &patient.CreatedAt, &patient.UpdatedAt)
	r.observe("insert", start, err)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && (pqErr.Code == pqCheckViolation || pqErr.Code == pqNotNullViolation) {
			return errors.Validation("patient violates schema constraints", err)
		}
		return errors.Storage("failed to create patient", err)
	}
	return nil
}

func (r *patientRepository) ListAll(ctx context.Context) ([]*model.Patient, error) {
	query := `
		SELECT id, patient_name, age, location, type, health_status, last_checkup, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC, seq DESC
	`
	start := time.Now()
	patients := []*model.Patient{}
	err := r.db.SelectContext(ctx, &patients, query)
	r.observe("list", start, err)
	if err != nil {
		return nil, errors.Storage("failed to list patients", err)
	}
	return patients, nil
}

func (r *patientRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Storage("storage unreachable", err)
	}
	return nil
}
