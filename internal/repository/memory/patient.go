package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/repository"
	"github.com/jwalitptl/rch-registry/pkg/errors"
	"github.com/jwalitptl/rch-registry/pkg/validator"
)

// patientRepository keeps records in process memory. State is lost on
// restart; use it for local development and tests.
type patientRepository struct {
	mu          sync.RWMutex
	patients    []*model.Patient
	clock       clockwork.Clock
	validator   validator.Validator
	unavailable error
}

// PatientRepository exposes test hooks on top of the store contract
type PatientRepository interface {
	repository.PatientRepository
	// SetUnavailable makes every operation fail with a storage error until
	// called again with nil.
	SetUnavailable(err error)
}

func NewPatientRepository(clock clockwork.Clock) PatientRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &patientRepository{
		clock:     clock,
		validator: validator.New(),
	}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	if err := ctx.Err(); err != nil {
		return errors.Storage("failed to create patient", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The clock is read under the write lock so append order matches
	// createdAt order.
	now := r.clock.Now().UTC()
	patient.ApplyDefaults(now)
	if err := r.validator.Validate(patient); err != nil {
		return err
	}

	if r.unavailable != nil {
		return errors.Storage("failed to create patient", r.unavailable)
	}

	patient.ID = uuid.New()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	stored := *patient
	r.patients = append(r.patients, &stored)
	return nil
}

func (r *patientRepository) ListAll(ctx context.Context) ([]*model.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Storage("failed to list patients", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable != nil {
		return nil, errors.Storage("failed to list patients", r.unavailable)
	}

	// Insertion order is creation order, so walking backwards yields
	// createdAt descending with ties in reverse insertion order.
	patients := make([]*model.Patient, 0, len(r.patients))
	for i := len(r.patients) - 1; i >= 0; i-- {
		p := *r.patients[i]
		patients = append(patients, &p)
	}
	return patients, nil
}

func (r *patientRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable != nil {
		return errors.Storage("storage unreachable", r.unavailable)
	}
	return ctx.Err()
}

func (r *patientRepository) SetUnavailable(err error) {
	r.mu.Lock()
	r.unavailable = err
	r.mu.Unlock()
}
