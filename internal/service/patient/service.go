package patient

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/repository"
	"github.com/jwalitptl/rch-registry/pkg/errors"
	"github.com/jwalitptl/rch-registry/pkg/messaging"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

type PatientService interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	ListPatients(ctx context.Context) ([]*model.Patient, error)
	HealthCheck(ctx context.Context) *model.HealthStatusReport
}

type Service struct {
	repo      repository.PatientRepository
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

var _ PatientService = (*Service)(nil)

func NewService(repo repository.PatientRepository, publisher messaging.Publisher, m *metrics.Metrics, log zerolog.Logger) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log.With().Str("component", "patient-service").Logger(),
	}
}

// CreatePatient persists the record and only then announces it. A failed
// announcement is logged; the record is already durable so the caller still
// gets it back.
func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	if req == nil {
		s.metrics.PatientCreateFailures.WithLabelValues("validation").Inc()
		return nil, errors.Validation("request body is required", nil)
	}

	patient := req.ToPatient()
	if err := s.repo.Create(ctx, patient); err != nil {
		s.metrics.PatientCreateFailures.WithLabelValues(failureReason(err)).Inc()
		s.log.Warn().Err(err).Str("patient_name", patient.PatientName).Msg("failed to create patient")
		return nil, err
	}
	s.metrics.PatientsCreated.Inc()

	s.log.Info().
		Str("patient_id", patient.ID.String()).
		Str("type", string(patient.Type)).
		Str("health_status", string(patient.HealthStatus)).
		Msg("patient created")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, model.EventNewPatientAdded, patient); err != nil {
			s.metrics.BroadcastsDropped.WithLabelValues("publish_error").Inc()
			s.log.Error().Err(err).Str("patient_id", patient.ID.String()).Msg("failed to broadcast new patient")
		}
	}

	return patient, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]*model.Patient, error) {
	patients, err := s.repo.ListAll(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list patients")
		return nil, err
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	return patients, nil
}

func (s *Service) HealthCheck(ctx context.Context) *model.HealthStatusReport {
	report := &model.HealthStatusReport{
		Status:   model.ServiceStatusConnected,
		Message:  model.ServiceReadyMessage,
		DBStatus: model.DatabaseLive,
	}
	if err := s.repo.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		report.DBStatus = model.DatabaseOffline
	}
	return report
}

func failureReason(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrValidation:
		return "validation"
	case errors.ErrStorage:
		return "storage"
	default:
		return "internal"
	}
}
