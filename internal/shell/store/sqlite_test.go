package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureInstance_CreatesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureInstance(ctx, "convex-self-hosted-abc", "secret-1")
	require.NoError(t, err)
	assert.Equal(t, "convex-self-hosted-abc", first.Name)
	assert.NotEmpty(t, first.ID)

	// A second call must return the stored credentials, not the arguments.
	second, err := s.EnsureInstance(ctx, "other-name", "other-secret")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "convex-self-hosted-abc", second.Name)
	assert.Equal(t, "secret-1", second.Secret)
}

func TestGetInstance_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetInstance(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordEvent_AppendsAndLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []*Event{
		{RunID: "run-1", Type: EventRunStarted},
		{RunID: "run-1", Service: "backend", Type: EventServiceStarting},
		{RunID: "run-1", Service: "backend", Type: EventServiceHealthy},
		{RunID: "run-2", Type: EventRunStarted},
	}
	for _, ev := range events {
		require.NoError(t, s.RecordEvent(ctx, ev))
		assert.NotZero(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}

	run1, err := s.ListEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, run1, 3)
	assert.Equal(t, EventRunStarted, run1[0].Type)
	assert.Equal(t, EventServiceStarting, run1[1].Type)
	assert.Equal(t, "backend", run1[1].Service)
	assert.Equal(t, EventServiceHealthy, run1[2].Type)

	run2, err := s.ListEvents(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, run2, 1)

	none, err := s.ListEvents(ctx, "run-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
