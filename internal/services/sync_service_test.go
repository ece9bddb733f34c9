package services

import (
	"context"
	"testing"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncService_RunDrain(t *testing.T) {
	f := newFixture(t)
	f.addGroup("g1", "admins")
	f.enqueue(jobstore.EnqueueRequest{Action: models.ActionCreateGroup, GroupID: "g1"})
	svc := NewSyncService(f.runner, NewLocalRunLock(time.Minute), SchedulerConfig{}, f.logger)

	counters, err := svc.RunDrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Added)
	assert.Zero(t, f.store.Len())
}

func TestSyncService_SkipsWhileLockIsHeld(t *testing.T) {
	f := newFixture(t)
	lock := NewLocalRunLock(time.Minute)
	svc := NewSyncService(f.runner, lock, SchedulerConfig{}, f.logger)

	release, err := lock.Acquire(context.Background(), RunLockKey(ModeFullSync, testRealm))
	require.NoError(t, err)
	defer release()

	_, err = svc.RunFullSync(context.Background(), testRealm)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// other scopes are not blocked
	_, err = svc.RunDrain(context.Background())
	assert.NoError(t, err)
}

func TestSyncService_ScheduledDrain(t *testing.T) {
	f := newFixture(t)
	f.addGroup("g1", "admins")
	f.enqueue(jobstore.EnqueueRequest{Action: models.ActionCreateGroup, GroupID: "g1"})

	svc := NewSyncService(f.runner, NewLocalRunLock(time.Minute), SchedulerConfig{
		DrainInterval: 10 * time.Millisecond,
	}, f.logger)
	svc.Start()
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		_, ok := f.remote.GroupByName("admins")
		return ok && f.store.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncService_ScheduledFullSync(t *testing.T) {
	f := newFixture(t)
	f.addUser("u1", "alice")

	svc := NewSyncService(f.runner, NewLocalRunLock(time.Minute), SchedulerConfig{
		Realms:           []string{testRealm},
		FullSyncInterval: 10 * time.Millisecond,
	}, f.logger)
	svc.Start()
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		_, ok := f.remote.UserByName("alice")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncService_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := NewSyncService(f.runner, NewLocalRunLock(time.Minute), SchedulerConfig{DrainInterval: time.Hour}, f.logger)
	svc.Start()
	svc.Stop()
	svc.Stop()
}
