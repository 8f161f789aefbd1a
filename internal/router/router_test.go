package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/rch-registry/internal/handler/health"
	"github.com/jwalitptl/rch-registry/internal/handler/patient"
	"github.com/jwalitptl/rch-registry/internal/middleware"
	"github.com/jwalitptl/rch-registry/internal/repository/memory"
	patientsvc "github.com/jwalitptl/rch-registry/internal/service/patient"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

func setup(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("rch", reg)
	svc := patientsvc.NewService(memory.NewPatientRepository(nil), nil, m, zerolog.Nop())

	cfg.Mode = gin.TestMode
	cfg.CORSConfig = middleware.DefaultCORSConfig()
	r := NewRouter(cfg, zerolog.Nop(), m, reg).
		Register(health.NewHandler(svc), patient.NewHandler(svc))
	r.Setup()
	return r.Engine()
}

func get(e *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_Routes(t *testing.T) {
	e := setup(t, RouterConfig{})

	assert.Equal(t, http.StatusOK, get(e, "/api/health").Code)
	assert.Equal(t, http.StatusOK, get(e, "/api/patients").Code)

	w := get(e, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rch_http_requests_total{method="GET",path="/api/patients",status="200"} 1`)

	w = get(e, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestRouter_RateLimitOnlyAppliesToAPI(t *testing.T) {
	e := setup(t, RouterConfig{RateLimit: &middleware.RateLimiterConfig{Rate: 0.001, Burst: 1}})

	assert.Equal(t, http.StatusOK, get(e, "/api/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(e, "/api/health").Code)

	assert.Equal(t, http.StatusOK, get(e, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(e, "/metrics").Code)
}

func TestRouter_BodyLimit(t *testing.T) {
	e := setup(t, RouterConfig{MaxBodySize: 32})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`{"patientName":"`+strings.Repeat("A", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
