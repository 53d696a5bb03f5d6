package sessions

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFrame() *dataset.Frame {
	return dataset.New([]string{"a"}, [][]string{{"1"}})
}

func TestCreateGetRelease(t *testing.T) {
	store := New()
	f := newFrame()
	id := store.Create(f, schema.Schema{RowCount: 1}, Meta{FileName: "a.csv"})
	require.NotEmpty(t, id)

	sess, release, err := store.Get(id)
	require.NoError(t, err)
	defer release()
	assert.Same(t, f, sess.Frame)
	assert.Equal(t, 1, sess.Schema.RowCount)
	assert.Equal(t, "a.csv", sess.Meta.FileName)
}

func TestCreateAlwaysIssuesNewID(t *testing.T) {
	store := New()
	id1 := store.Create(newFrame(), schema.Schema{}, Meta{})
	id2 := store.Create(newFrame(), schema.Schema{}, Meta{})
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, store.Len())
}

func TestGetUnknown(t *testing.T) {
	store := New()
	_, _, err := store.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Touch("missing"), ErrNotFound))
	assert.True(t, errors.Is(store.Evict("missing"), ErrNotFound))
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	var evicted []Evicted
	store := New(
		WithTTL(10*time.Minute),
		WithClock(clock.Now),
		WithEvictHook(func(e Evicted) { evicted = append(evicted, e) }),
	)
	f := newFrame()
	id := store.Create(f, schema.Schema{}, Meta{StorageKey: "k1"})

	clock.Advance(9 * time.Minute)
	require.NoError(t, store.Touch(id))
	clock.Advance(9 * time.Minute)
	_, release, err := store.Get(id)
	require.NoError(t, err)
	release()

	clock.Advance(11 * time.Minute)
	_, _, err = store.Get(id)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, f.Released())
	require.Len(t, evicted, 1)
	assert.Equal(t, ReasonExpired, evicted[0].Reason)
	assert.Equal(t, "k1", evicted[0].Meta.StorageKey)

	_, _, err = store.Get(id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSweepRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	store := New(WithTTL(time.Minute), WithClock(clock.Now))
	old := store.Create(newFrame(), schema.Schema{}, Meta{})
	clock.Advance(2 * time.Minute)
	fresh := store.Create(newFrame(), schema.Schema{}, Meta{})

	assert.Equal(t, 1, store.Sweep())
	_, _, err := store.Get(old)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, release, err := store.Get(fresh)
	require.NoError(t, err)
	release()
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	store := New(WithMaxSessions(2), WithClock(clock.Now))
	f1 := newFrame()
	id1 := store.Create(f1, schema.Schema{}, Meta{})
	clock.Advance(time.Second)
	id2 := store.Create(newFrame(), schema.Schema{}, Meta{})
	clock.Advance(time.Second)
	require.NoError(t, store.Touch(id1))

	id3 := store.Create(newFrame(), schema.Schema{}, Meta{})

	assert.Equal(t, 2, store.Len())
	_, _, err := store.Get(id2)
	assert.True(t, errors.Is(err, ErrNotFound))
	for _, id := range []string{id1, id3} {
		_, release, err := store.Get(id)
		require.NoError(t, err)
		release()
	}
	assert.False(t, f1.Released())
}

func TestCapacityPrefersIdleVictim(t *testing.T) {
	store := New(WithMaxSessions(2))
	busyFrame := newFrame()
	busy := store.Create(busyFrame, schema.Schema{}, Meta{})
	idle := store.Create(newFrame(), schema.Schema{}, Meta{})

	_, release, err := store.Get(busy)
	require.NoError(t, err)
	defer release()

	store.Create(newFrame(), schema.Schema{}, Meta{})

	_, _, err = store.Get(idle)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, busyFrame.Released())
}

func TestEvictWhileInUseDefersRelease(t *testing.T) {
	var hooks int
	store := New(WithEvictHook(func(Evicted) { hooks++ }))
	f := newFrame()
	id := store.Create(f, schema.Schema{}, Meta{})

	sess, release, err := store.Get(id)
	require.NoError(t, err)

	require.NoError(t, store.Evict(id))
	_, _, err = store.Get(id)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.False(t, sess.Frame.Released())
	assert.Equal(t, "1", sess.Frame.Value(0, 0))
	assert.Equal(t, 0, hooks)

	release()
	release()
	assert.True(t, f.Released())
	assert.Equal(t, 1, hooks)
}

func TestConcurrentGetAndEvict(t *testing.T) {
	store := New(WithMaxSessions(4))
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = store.Create(newFrame(), schema.Schema{}, Meta{})
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(w+i)%len(ids)]
				sess, release, err := store.Get(id)
				if err != nil {
					assert.True(t, errors.Is(err, ErrNotFound))
					continue
				}
				assert.False(t, sess.Frame.Released())
				_ = sess.Frame.Value(0, 0)
				_ = store.Touch(id)
				release()
				if i%50 == 0 {
					_ = store.Evict(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, store.Len(), 4)
}

func TestStatsAndClose(t *testing.T) {
	store := New()
	f := newFrame()
	id := store.Create(f, schema.Schema{}, Meta{})
	_, release, err := store.Get(id)
	require.NoError(t, err)

	st := store.Stats()
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.InUse)
	assert.Equal(t, int64(1), st.Created)

	release()
	store.Close()
	assert.Equal(t, 0, store.Len())
	assert.True(t, f.Released())
	assert.Equal(t, int64(1), store.Stats().Evictions)
}
