package health

import (
	"context"
	"database/sql"
	"time"

	"insight-backend/internal/sessions"
	"insight-backend/internal/shared/storage/db"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type poolReporter interface {
	Stats() sql.DBStats
}

// Status is the /health payload.
type Status struct {
	OK       bool            `json:"ok"`
	Database string          `json:"database"`
	Pool     *db.PoolStats   `json:"pool,omitempty"`
	Sessions *sessions.Stats `json:"sessions,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	db       Pinger
	sessions *sessions.Store
}

// NewService constructs a health service. Either dependency may be nil.
func NewService(database Pinger, store *sessions.Store) *Service {
	return &Service{db: database, sessions: store}
}

// Status pings the database when one is configured. An unreachable database
// marks the service unhealthy; the in-memory path keeps working without one.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{OK: true, Database: "disabled"}
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			st.OK = false
			st.Database = "unreachable"
		} else {
			st.Database = "ok"
		}
		if pr, ok := s.db.(poolReporter); ok {
			pool := db.StatsOf(pr.Stats())
			st.Pool = &pool
		}
	}
	if s.sessions != nil {
		stats := s.sessions.Stats()
		st.Sessions = &stats
	}
	return st
}
