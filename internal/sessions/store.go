package sessions

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

// ErrNotFound is returned for unknown, expired or evicted sessions.
var ErrNotFound = errors.New("analysis session not found")

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 64
)

// Reason explains why a session left the store.
type Reason string

const (
	ReasonExpired  Reason = "expired"
	ReasonCapacity Reason = "capacity"
	ReasonExplicit Reason = "explicit"
	ReasonShutdown Reason = "shutdown"
)

// Meta describes where a session's data came from.
type Meta struct {
	FileName   string
	StorageKey string
	SizeBytes  int64
}

// Session binds one uploaded dataset to its schema. Frame and Schema are
// only valid between Get and the matching release.
type Session struct {
	ID        string
	Frame     *dataset.Frame
	Schema    schema.Schema
	Meta      Meta
	CreatedAt time.Time

	lastUsed time.Time
	refs     int
	evicted  bool
	reason   Reason
	elem     *list.Element
}

// Evicted is passed to the eviction hook once a session's frame is released.
type Evicted struct {
	ID       string
	Meta     Meta
	Reason   Reason
	Lifetime time.Duration
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Active    int   `json:"active"`
	InUse     int   `json:"inUse"`
	Created   int64 `json:"created"`
	Evictions int64 `json:"evictions"`
	Misses    int64 `json:"misses"`
}

// Store is the process-wide registry of analysis sessions. Sessions expire
// after an inactivity window and the least recently used session is evicted
// when capacity is exceeded. Eviction hides a session from lookups at once;
// its frame is closed when the last in-flight reader releases it.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	lru      *list.List

	ttl     time.Duration
	max     int
	now     func() time.Time
	onEvict func(Evicted)

	created   int64
	evictions int64
	misses    int64
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the inactivity window. Zero or negative disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxSessions bounds the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictHook registers a callback that runs after a session's frame has
// been closed. It must not call back into the store synchronously.
func WithEvictHook(fn func(Evicted)) Option {
	return func(s *Store) { s.onEvict = fn }
}

// New constructs a Store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		lru:      list.New(),
		ttl:      DefaultTTL,
		max:      DefaultMaxSessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session and returns its identifier. Every call
// yields a fresh identifier.
func (s *Store) Create(frame *dataset.Frame, sch schema.Schema, meta Meta) string {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Frame:     frame,
		Schema:    sch,
		Meta:      meta,
		CreatedAt: now,
		lastUsed:  now,
	}

	s.mu.Lock()
	sess.elem = s.lru.PushFront(sess.ID)
	s.sessions[sess.ID] = sess
	s.created++
	var done []*Session
	for len(s.sessions) > s.max {
		victim := s.lruVictimLocked(sess.ID)
		if victim == nil {
			break
		}
		if s.removeLocked(victim, ReasonCapacity) {
			done = append(done, victim)
		}
	}
	s.mu.Unlock()

	s.finalize(done...)
	return sess.ID
}

// Get returns the session and a release function that must be called when
// the caller is done reading the frame. It does not refresh recency.
func (s *Store) Get(id string) (*Session, func(), error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.misses++
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if s.expiredLocked(sess) {
		s.misses++
		closeNow := s.removeLocked(sess, ReasonExpired)
		s.mu.Unlock()
		if closeNow {
			s.finalize(sess)
		}
		return nil, nil, ErrNotFound
	}
	sess.refs++
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { s.release(sess) })
	}
	return sess, release, nil
}

// Touch refreshes the session's recency.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.expiredLocked(sess) {
		closeNow := s.removeLocked(sess, ReasonExpired)
		s.mu.Unlock()
		if closeNow {
			s.finalize(sess)
		}
		return ErrNotFound
	}
	sess.lastUsed = s.now()
	s.lru.MoveToFront(sess.elem)
	s.mu.Unlock()
	return nil
}

// LastUsed returns when the session was last touched.
func (s *Store) LastUsed(id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return sess.lastUsed, nil
}

// Evict removes a session and releases its frame once unreferenced.
func (s *Store) Evict(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	closeNow := s.removeLocked(sess, ReasonExplicit)
	s.mu.Unlock()
	if closeNow {
		s.finalize(sess)
	}
	return nil
}

// Sweep evicts every expired session and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	var (
		done    []*Session
		removed int
	)
	for _, sess := range s.sessions {
		if !s.expiredLocked(sess) {
			continue
		}
		removed++
		if s.removeLocked(sess, ReasonExpired) {
			done = append(done, sess)
		}
	}
	s.mu.Unlock()
	s.finalize(done...)
	return removed
}

// Run sweeps expired sessions every interval until ctx is cancelled, then
// evicts whatever is left.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Close evicts all sessions.
func (s *Store) Close() {
	s.mu.Lock()
	var done []*Session
	for _, sess := range s.sessions {
		if s.removeLocked(sess, ReasonShutdown) {
			done = append(done, sess)
		}
	}
	s.mu.Unlock()
	s.finalize(done...)
}

// TTL returns the inactivity window; zero means sessions never expire.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats returns counters for monitoring.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Active:    len(s.sessions),
		Created:   s.created,
		Evictions: s.evictions,
		Misses:    s.misses,
	}
	for _, sess := range s.sessions {
		if sess.refs > 0 {
			st.InUse++
		}
	}
	return st
}

func (s *Store) release(sess *Session) {
	s.mu.Lock()
	sess.refs--
	closeNow := sess.evicted && sess.refs == 0
	s.mu.Unlock()
	if closeNow {
		s.finalize(sess)
	}
}

func (s *Store) expiredLocked(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.lastUsed) > s.ttl
}

// lruVictimLocked prefers the oldest unreferenced session and falls back to
// the oldest session in use.
func (s *Store) lruVictimLocked(keep string) *Session {
	var busy *Session
	for e := s.lru.Back(); e != nil; e = e.Prev() {
		id := e.Value.(string)
		if id == keep {
			continue
		}
		sess := s.sessions[id]
		if sess.refs == 0 {
			return sess
		}
		if busy == nil {
			busy = sess
		}
	}
	return busy
}

// removeLocked unlinks the session and reports whether its frame can be
// closed immediately.
func (s *Store) removeLocked(sess *Session, reason Reason) bool {
	delete(s.sessions, sess.ID)
	if sess.elem != nil {
		s.lru.Remove(sess.elem)
		sess.elem = nil
	}
	sess.evicted = true
	sess.reason = reason
	s.evictions++
	return sess.refs == 0
}

func (s *Store) finalize(done ...*Session) {
	for _, sess := range done {
		if sess.Frame != nil {
			_ = sess.Frame.Close()
		}
		if s.onEvict != nil {
			s.onEvict(Evicted{
				ID:       sess.ID,
				Meta:     sess.Meta,
				Reason:   sess.reason,
				Lifetime: s.now().Sub(sess.CreatedAt),
			})
		}
	}
}
