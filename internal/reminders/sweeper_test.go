package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnero/internal/model"
)

// memStore is an in-memory Store with the same idempotency semantics as the
// booking_reminders table.
type memStore struct {
	mu       sync.Mutex
	bookings []model.Booking
	sent     map[string]bool // bookingID:offset
}

func newMemStore(bookings ...model.Booking) *memStore {
	return &memStore{bookings: bookings, sent: make(map[string]bool)}
}

func key(id string, offset int) string {
	return fmt.Sprintf("%s:%d", id, offset)
}

func (m *memStore) DueForReminder(_ context.Context, from, to time.Time, offsetHours int) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.Booking
	for _, b := range m.bookings {
		if b.StartTime.Before(from) || !b.StartTime.Before(to) {
			continue
		}
		if m.sent[key(b.ID, offsetHours)] {
			continue
		}
		due = append(due, b)
	}
	return due, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, bookingID string, offsetHours int, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(bookingID, offsetHours)
	if m.sent[k] {
		return false, nil
	}
	m.sent[k] = true
	return true, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (n *recordingNotifier) SendReminder(_ context.Context, b model.Booking, offsetHours int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.calls = append(n.calls, key(b.ID, offsetHours))
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

var sweepNow = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func testSweeper(store Store, notifier Notifier, lock *SweepLock) *Sweeper {
	s := NewSweeper(DefaultConfig(), store, notifier, lock, nil, zerolog.Nop())
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestSweepDispatchesDueReminders(t *testing.T) {
	store := newMemStore(
		model.Booking{ID: "a", StartTime: sweepNow.Add(24 * time.Hour), Status: model.StatusScheduled},
		model.Booking{ID: "b", StartTime: sweepNow.Add(2 * time.Hour), Status: model.StatusConfirmed},
		model.Booking{ID: "c", StartTime: sweepNow.Add(6 * time.Hour), Status: model.StatusScheduled}, // matches no offset
	)
	notifier := &recordingNotifier{}
	s := testSweeper(store, notifier, nil)

	sent := s.RunSweep(context.Background())
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{key("a", 24), key("b", 2)}, notifier.sent())
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newMemStore(
		model.Booking{ID: "a", StartTime: sweepNow.Add(24 * time.Hour), Status: model.StatusScheduled},
	)
	notifier := &recordingNotifier{}
	s := testSweeper(store, notifier, nil)

	require.Equal(t, 1, s.RunSweep(context.Background()))

	// A rerun within the match window sends nothing new.
	assert.Equal(t, 0, s.RunSweep(context.Background()))
	assert.Len(t, notifier.sent(), 1)
}

func TestFailedDispatchIsRetried(t *testing.T) {
	store := newMemStore(
		model.Booking{ID: "a", StartTime: sweepNow.Add(24 * time.Hour), Status: model.StatusScheduled},
	)
	notifier := &recordingNotifier{fail: true}
	s := testSweeper(store, notifier, nil)

	// Failed dispatch leaves no record.
	assert.Equal(t, 0, s.RunSweep(context.Background()))
	assert.Empty(t, store.sent)

	// The next sweep picks the booking up again.
	notifier.fail = false
	assert.Equal(t, 1, s.RunSweep(context.Background()))
	assert.Len(t, notifier.sent(), 1)
}

func TestMatchWindowBounds(t *testing.T) {
	store := newMemStore(
		model.Booking{ID: "inside", StartTime: sweepNow.Add(24*time.Hour + 10*time.Minute), Status: model.StatusScheduled},
		model.Booking{ID: "outside", StartTime: sweepNow.Add(24*time.Hour + 20*time.Minute), Status: model.StatusScheduled},
	)
	notifier := &recordingNotifier{}
	s := testSweeper(store, notifier, nil)

	assert.Equal(t, 1, s.RunSweep(context.Background()))
	assert.Equal(t, []string{key("inside", 24)}, notifier.sent())
}

func TestSweepLockBlocksSecondSweeper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	lock := NewSweepLock(client, "test:sweep", time.Minute)
	acquired, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	other := NewSweepLock(client, "test:sweep", time.Minute)
	acquired, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	lock.Release(ctx)
	acquired, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
}

// Release must drop the lease even when the sweep's context is already
// cancelled, so a disconnected caller does not pin the lock until TTL.
func TestSweepLockReleaseAfterCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	lock := NewSweepLock(client, "test:sweep", time.Minute)
	acquired, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	cancel()
	lock.Release(ctx)

	acquired, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestSweepSkippedWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	// Another process holds the lease.
	holder := NewSweepLock(client, "turnero:reminder_sweep", time.Minute)
	acquired, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	store := newMemStore(
		model.Booking{ID: "a", StartTime: sweepNow.Add(24 * time.Hour), Status: model.StatusScheduled},
	)
	notifier := &recordingNotifier{}
	s := testSweeper(store, notifier, NewSweepLock(client, "", time.Minute))

	assert.Equal(t, 0, s.RunSweep(ctx))
	assert.Empty(t, notifier.sent())
}

func TestNilLockAlwaysGrants(t *testing.T) {
	var lock *SweepLock
	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
}
