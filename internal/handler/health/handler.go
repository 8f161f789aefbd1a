package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/rch-registry/internal/service/patient"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.HealthCheck)
}

// HealthCheck always answers 200; database reachability is reported in the
// body.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.HealthCheck(c.Request.Context()))
}
