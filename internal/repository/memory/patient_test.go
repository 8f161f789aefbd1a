package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/pkg/errors"
)

func newPatient(name string) *model.Patient {
	return &model.Patient{
		PatientName: name,
		Age:         30,
		Location:    "Nashik",
		Type:        model.PatientTypeMother,
	}
}

func TestCreate_AssignsIdentityAndDefaults(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := NewPatientRepository(clock)

	p := newPatient("Asha")
	require.NoError(t, repo.Create(context.Background(), p))

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, model.HealthStatusHealthy, p.HealthStatus)
	assert.Equal(t, clock.Now().UTC(), p.CreatedAt)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	assert.Equal(t, p.CreatedAt, p.LastCheckup)
}

func TestCreate_KeepsExplicitLastCheckup(t *testing.T) {
	repo := NewPatientRepository(clockwork.NewFakeClock())
	checkup := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	p := newPatient("Meera")
	p.LastCheckup = checkup
	require.NoError(t, repo.Create(context.Background(), p))

	assert.Equal(t, checkup, p.LastCheckup)
}

func TestCreate_RejectsInvalidRecordWithoutPersisting(t *testing.T) {
	repo := NewPatientRepository(clockwork.NewFakeClock())

	p := newPatient("Ravi")
	p.Type = "Other"
	err := repo.Create(context.Background(), p)

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, uuid.Nil, p.ID)

	list, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListAll_NewestFirst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewPatientRepository(clock)
	ctx := context.Background()

	names := []string{"first", "second", "third", "fourth"}
	ids := make(map[uuid.UUID]bool)
	for i, name := range names {
		if i == 2 {
			// Two records sharing a timestamp must still come back in
			// reverse insertion order.
			clock.Advance(0)
		} else {
			clock.Advance(time.Second)
		}
		p := newPatient(name)
		require.NoError(t, repo.Create(ctx, p))
		ids[p.ID] = true
	}
	assert.Len(t, ids, len(names))

	list, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "fourth", list[0].PatientName)
	assert.Equal(t, "third", list[1].PatientName)
	assert.Equal(t, "second", list[2].PatientName)
	assert.Equal(t, "first", list[3].PatientName)
}

func TestListAll_ReturnsCopies(t *testing.T) {
	repo := NewPatientRepository(nil)
	require.NoError(t, repo.Create(context.Background(), newPatient("Asha")))

	list, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	list[0].PatientName = "mutated"

	again, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", again[0].PatientName)
}

func TestSetUnavailable(t *testing.T) {
	repo := NewPatientRepository(nil)
	ctx := context.Background()
	repo.SetUnavailable(stderrors.New("connection refused"))

	err := repo.Create(ctx, newPatient("Asha"))
	assert.True(t, errors.IsStorage(err))

	_, err = repo.ListAll(ctx)
	assert.True(t, errors.IsStorage(err))
	assert.Error(t, repo.Ping(ctx))

	repo.SetUnavailable(nil)
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Create(ctx, newPatient("Asha")))
}

func TestListAll_OrderedUnderConcurrentCreates(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		repo := NewPatientRepository(clockwork.NewRealClock())

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, repo.Create(ctx, newPatient(fmt.Sprintf("p%d", i))))
			}(i)
		}
		wg.Wait()

		list, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, list, 16)
		for i := 1; i < len(list); i++ {
			require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt),
				"round %d: %s listed after older %s", round, list[i].CreatedAt, list[i-1].CreatedAt)
		}
	}
}
