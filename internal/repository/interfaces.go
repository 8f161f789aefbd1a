package repository

import (
	"context"

	"github.com/jwalitptl/rch-registry/internal/model"
)

// PatientRepository is the Record Store. Records are insert-only.
type PatientRepository interface {
	// Create validates and persists patient, writing the stored id and
	// timestamps back into it. Validation failures persist nothing.
	Create(ctx context.Context, patient *model.Patient) error
	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]*model.Patient, error)
	// Ping checks that the storage medium is reachable.
	Ping(ctx context.Context) error
}
