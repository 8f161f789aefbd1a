package patient

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/service/patient"
	"github.com/jwalitptl/rch-registry/pkg/errors"
	"github.com/jwalitptl/rch-registry/pkg/httputil"
)

const savedMessage = "Patient Data Saved!"

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.Validation(bindMessage(err), err))
		return
	}

	created, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, http.StatusCreated, savedMessage, created)
}

func (h *Handler) ListPatients(c *gin.Context) {
	patients, err := h.service.ListPatients(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithData(c, http.StatusOK, patients)
}

// bindMessage keeps the age decoding message and hides decoder internals
// for anything else.
func bindMessage(err error) string {
	if strings.Contains(err.Error(), model.ErrAgeNotNumber.Error()) {
		return model.ErrAgeNotNumber.Error()
	}
	return "invalid request body"
}
