package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// claimAt enqueues a job and marks it claimed by workerID at claimedAt.
func claimAt(t *testing.T, st *fakeStore, workerID string, claimedAt time.Time) uuid.UUID {
	t.Helper()
	cardID := uuid.New()
	job := &models.Job{Kind: models.JobKindSingle, CardID: &cardID}
	require.NoError(t, st.CreateJob(context.Background(), job))

	st.mu.Lock()
	defer st.mu.Unlock()
	j := st.jobs[job.ID]
	j.Status = models.JobStatusProcessing
	j.WorkerID = &workerID
	j.ClaimedAt = &claimedAt
	return job.ID
}

func TestReaper_SweepReleasesOnlyStaleClaims(t *testing.T) {
	st := newFakeStore()
	stale := claimAt(t, st, "crashed", time.Now().Add(-11*time.Minute))
	fresh := claimAt(t, st, "alive", time.Now().Add(-time.Minute))
	r := NewReaper(st, time.Hour, 10*time.Minute)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := st.job(stale)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Nil(t, got.ClaimedAt)
	assert.Equal(t, models.JobStatusProcessing, st.job(fresh).Status)

	// A released job is claimable by a healthy worker.
	claimed, err := st.ClaimJobs(context.Background(), "rescuer", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, stale, claimed[0].ID)
}

func TestReaper_StartSweepsImmediately(t *testing.T) {
	st := newFakeStore()
	stale := claimAt(t, st, "crashed", time.Now().Add(-time.Hour))
	r := NewReaper(st, time.Hour, 10*time.Minute)

	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Equal(t, models.JobStatusPending, st.job(stale).Status)
}

func TestReaper_RunsOnSchedule(t *testing.T) {
	st := newFakeStore()
	r := NewReaper(st, time.Second, 10*time.Minute)
	require.NoError(t, r.Start())
	defer r.Stop()

	stale := claimAt(t, st, "crashed", time.Now().Add(-time.Hour))

	assert.Eventually(t, func() bool {
		return st.job(stale).Status == models.JobStatusPending
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReaper_StopIsIdempotentWithoutStart(t *testing.T) {
	r := NewReaper(newFakeStore(), time.Hour, time.Minute)
	r.Stop()
}

// hungStore blocks stale sweeps until their context gives up.
type hungStore struct {
	*fakeStore
	entered chan struct{}
}

func (h *hungStore) ReleaseStaleJobs(ctx context.Context, _ time.Duration) (int, error) {
	h.entered <- struct{}{}
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestReaper_HungSweepDoesNotBlockStop(t *testing.T) {
	st := &hungStore{fakeStore: newFakeStore(), entered: make(chan struct{}, 8)}
	r := NewReaper(st, time.Second, 10*time.Minute)

	start := time.Now()
	require.NoError(t, r.Start())
	assert.Less(t, time.Since(start), 3*time.Second, "initial sweep must give up after the interval")
	<-st.entered

	// Wait for a scheduled sweep to be in flight, then stop underneath it.
	select {
	case <-st.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sweep never ran")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked behind a hung sweep")
	}
}
