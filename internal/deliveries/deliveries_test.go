package deliveries

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestBeginAndFinish(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, proceed, err := s.Begin(ctx, Delivery{ID: "d-1", Event: "push", Repository: "acme/app", Ref: "refs/heads/main", After: "abc"})
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Equal(t, StatusReceived, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, "acme/app", d.Repository)

	require.NoError(t, s.Finish(ctx, "d-1", StatusApplied, Outcome{Added: 2, Modified: 1, CommitSHA: "c9"}))

	got, err := s.Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, got.Status)
	assert.Equal(t, 2, got.Added)
	assert.Equal(t, 1, got.Modified)
	assert.Equal(t, "c9", got.CommitSHA)
	assert.True(t, got.UpdatedAt.After(got.ReceivedAt))
}

func TestBegin_Redelivery(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		wantProceed bool
	}{
		{"applied is not rerun", StatusApplied, false},
		{"noop is not rerun", StatusNoOp, false},
		{"failed is retried", StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()

			_, _, err := s.Begin(ctx, Delivery{ID: "d-1", Event: "push"})
			require.NoError(t, err)
			require.NoError(t, s.Finish(ctx, "d-1", tt.status, Outcome{Err: errors.New("boom")}))

			d, proceed, err := s.Begin(ctx, Delivery{ID: "d-1", Event: "push"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantProceed, proceed)
			if tt.wantProceed {
				assert.Equal(t, StatusReceived, d.Status)
				assert.Equal(t, 2, d.Attempts)
				assert.Empty(t, d.Error)
			} else {
				assert.Equal(t, tt.status, d.Status)
				assert.Equal(t, 1, d.Attempts)
			}
		})
	}
}

func TestBegin_InFlight(t *testing.T) {
	s := openTestStore(t)
	s.SetInFlightWindow(time.Minute)
	ctx := context.Background()

	_, proceed, err := s.Begin(ctx, Delivery{ID: "d-1", Event: "push"})
	require.NoError(t, err)
	require.True(t, proceed)

	// first attempt has not finished yet
	d, proceed, err := s.Begin(ctx, Delivery{ID: "d-1", Event: "push"})
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, StatusReceived, d.Status)
	assert.Equal(t, 1, d.Attempts)

	// an attempt that never finished is taken over once it is stale
	clock := d.UpdatedAt.Add(2 * time.Minute)
	s.now = func() time.Time { return clock }

	d, proceed, err = s.Begin(ctx, Delivery{ID: "d-1", Event: "push"})
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Equal(t, 2, d.Attempts)
}

func TestBegin_GeneratesID(t *testing.T) {
	s := openTestStore(t)

	d, proceed, err := s.Begin(context.Background(), Delivery{Event: "push"})
	require.NoError(t, err)

	assert.True(t, proceed)
	assert.Len(t, d.ID, 36)
}

func TestFinish_Unknown(t *testing.T) {
	s := openTestStore(t)

	err := s.Finish(context.Background(), "nope", StatusFailed, Outcome{})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_Unknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := s.Begin(ctx, Delivery{ID: id, Event: "push"})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	empty, err := openTestStore(t).List(ctx, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
