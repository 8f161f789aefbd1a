package viewer

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/rch-registry/internal/broadcast"
	"github.com/jwalitptl/rch-registry/internal/handler/patient"
	"github.com/jwalitptl/rch-registry/internal/handler/realtime"
	"github.com/jwalitptl/rch-registry/internal/middleware"
	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/repository/memory"
	"github.com/jwalitptl/rch-registry/internal/router"
	patientsvc "github.com/jwalitptl/rch-registry/internal/service/patient"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

type registry struct {
	url   string
	hub   *broadcast.Hub
	svc   *patientsvc.Service
	repo  memory.PatientRepository
	clock *clockwork.FakeClock
}

func startRegistry(t *testing.T) *registry {
	t.Helper()

	m := metrics.NewNop()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := memory.NewPatientRepository(clock)
	hub := broadcast.NewHub(broadcast.DefaultHubConfig(), m, zerolog.Nop())
	t.Cleanup(hub.Stop)
	svc := patientsvc.NewService(repo, hub, m, zerolog.Nop())

	r := router.NewRouter(router.RouterConfig{
		Mode:       gin.TestMode,
		CORSConfig: middleware.DefaultCORSConfig(),
	}, zerolog.Nop(), m, nil).
		Register(patient.NewHandler(svc)).
		RegisterRoot(realtime.NewHandler(hub, realtime.Config{Path: "/socket"}, zerolog.Nop()))
	r.Setup()

	srv := httptest.NewServer(r.Engine())
	t.Cleanup(srv.Close)

	return &registry{url: srv.URL, hub: hub, svc: svc, repo: repo, clock: clock}
}

func (r *registry) add(t *testing.T, name string) *model.Patient {
	t.Helper()
	age := model.FlexibleInt(30)
	p, err := r.svc.CreatePatient(context.Background(), &model.CreatePatientRequest{
		PatientName: name,
		Age:         &age,
		Location:    "Ward 3",
		Type:        "Mother",
	})
	require.NoError(t, err)
	r.clock.Advance(time.Second)
	return p
}

func mount(t *testing.T, reg *registry) *Client {
	t.Helper()
	c := New(Config{ServerURL: reg.url, Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, c.Mount(context.Background()))
	t.Cleanup(func() { c.Unmount() })
	return c
}

func names(ps []model.Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.PatientName
	}
	return out
}

func nextUpdate(t *testing.T, c *Client) model.Patient {
	t.Helper()
	select {
	case p, ok := <-c.Updates():
		require.True(t, ok, "updates closed")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return model.Patient{}
	}
}

func TestMount_LoadsExistingRecordsNewestFirst(t *testing.T) {
	reg := startRegistry(t)
	reg.add(t, "Asha")
	reg.add(t, "Meera")

	c := mount(t, reg)
	assert.Equal(t, []string{"Meera", "Asha"}, names(c.Records()))
}

func TestMount_EmptyRegistry(t *testing.T) {
	reg := startRegistry(t)
	c := mount(t, reg)
	assert.Empty(t, c.Records())
}

func TestBroadcast_PrependsForEveryViewer(t *testing.T) {
	reg := startRegistry(t)
	reg.add(t, "Meera")

	first := mount(t, reg)
	second := New(Config{ServerURL: reg.url}, zerolog.Nop())
	require.NoError(t, second.Mount(context.Background()))
	t.Cleanup(func() { second.Unmount() })

	form := NewForm()
	form.PatientName = "Asha"
	form.Age = 24
	form.Location = "Ward 3"
	created, err := first.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "Asha", created.PatientName)

	// The submitting viewer learns of its own record through the broadcast
	// like every other viewer.
	for _, c := range []*Client{first, second} {
		got := nextUpdate(t, c)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, []string{"Asha", "Meera"}, names(c.Records()))
	}
}

func TestSubmit_ResetsFormOnSuccess(t *testing.T) {
	reg := startRegistry(t)
	c := New(Config{ServerURL: reg.url}, zerolog.Nop())

	form := &Form{
		PatientName:  "Ravi",
		Age:          2,
		Location:     "Ward 1",
		Type:         model.PatientTypeChild,
		HealthStatus: model.HealthStatusCritical,
	}
	created, err := c.Submit(context.Background(), form)
	require.NoError(t, err)

	assert.Equal(t, "Ravi", created.PatientName)
	assert.Equal(t, model.PatientTypeChild, created.Type)
	assert.Equal(t, model.HealthStatusCritical, created.HealthStatus)
	assert.Equal(t, *NewForm(), *form)
}

func TestSubmit_KeepsFormOnFailure(t *testing.T) {
	reg := startRegistry(t)
	c := New(Config{ServerURL: reg.url}, zerolog.Nop())

	form := NewForm()
	form.PatientName = "Asha"
	form.Location = "Ward 3"
	form.Type = "Father"
	before := *form

	_, err := c.Submit(context.Background(), form)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "type must be one of")
	assert.Equal(t, before, *form)
}

func TestSubmit_StorageFailure(t *testing.T) {
	reg := startRegistry(t)
	reg.repo.SetUnavailable(assert.AnError)
	c := New(Config{ServerURL: reg.url}, zerolog.Nop())

	form := NewForm()
	form.PatientName = "Asha"
	form.Location = "Ward 3"
	_, err := c.Submit(context.Background(), form)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "Asha", form.PatientName)
}

func TestMount_FailsWhenListFails(t *testing.T) {
	reg := startRegistry(t)
	reg.repo.SetUnavailable(assert.AnError)

	c := New(Config{ServerURL: reg.url}, zerolog.Nop())
	err := c.Mount(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)

	require.Eventually(t, func() bool { return reg.hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMount_ServerDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	c := New(Config{ServerURL: url, Timeout: time.Second}, zerolog.Nop())
	assert.Error(t, c.Mount(context.Background()))
}

func TestMount_Twice(t *testing.T) {
	reg := startRegistry(t)
	c := mount(t, reg)
	assert.ErrorIs(t, c.Mount(context.Background()), ErrAlreadyMounted)
}

func TestUnmount_ClosesUpdatesAndIsIdempotent(t *testing.T) {
	reg := startRegistry(t)
	c := mount(t, reg)

	require.NoError(t, c.Unmount())
	assert.NoError(t, c.Unmount())

	select {
	case _, ok := <-c.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("updates not closed after unmount")
	}
	require.Eventually(t, func() bool { return reg.hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestApply_SkipsRecordsAlreadyShown(t *testing.T) {
	c := New(Config{ServerURL: "http://localhost:5000"}, zerolog.Nop())

	fetched := model.Patient{Base: model.Base{ID: uuid.New()}, PatientName: "Asha"}
	c.records = []model.Patient{fetched}
	c.seen[fetched.ID] = struct{}{}

	// Broadcast of a record the initial fetch already contained
	assert.False(t, c.apply(fetched))

	fresh := model.Patient{Base: model.Base{ID: uuid.New()}, PatientName: "Meera"}
	assert.True(t, c.apply(fresh))
	assert.False(t, c.apply(fresh))

	assert.Equal(t, []string{"Meera", "Asha"}, names(c.Records()))
	assert.Len(t, c.updates, 1)
}

func TestSocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:5000":       "ws://localhost:5000/socket",
		"https://rch.example.org/":    "wss://rch.example.org/socket",
		"https://rch.example.org/rch": "wss://rch.example.org/rch/socket",
	}
	for in, want := range tests {
		got, err := New(Config{ServerURL: in}, zerolog.Nop()).socketURL()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
