package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"insight-backend/internal/sessions"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestStatusWithoutDatabase(t *testing.T) {
	st := NewService(nil, nil).Status(context.Background())
	if !st.OK || st.Database != "disabled" || st.Sessions != nil {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStatusDatabaseDown(t *testing.T) {
	st := NewService(pinger{err: errors.New("refused")}, sessions.New()).Status(context.Background())
	if st.OK {
		t.Fatalf("expected unhealthy")
	}
	if st.Database != "unreachable" {
		t.Fatalf("unexpected database state %q", st.Database)
	}
	if st.Sessions == nil || st.Sessions.Active != 0 {
		t.Fatalf("expected empty session stats, got %+v", st.Sessions)
	}
}

func TestStatusDatabaseUp(t *testing.T) {
	st := NewService(pinger{}, nil).Status(context.Background())
	if !st.OK || st.Database != "ok" {
		t.Fatalf("unexpected status %+v", st)
	}
}

type pooledPinger struct{ pinger }

func (pooledPinger) Stats() sql.DBStats {
	return sql.DBStats{MaxOpenConnections: 8, OpenConnections: 2, Idle: 2}
}

func TestStatusReportsPool(t *testing.T) {
	st := NewService(pooledPinger{}, nil).Status(context.Background())
	if st.Pool == nil || st.Pool.MaxOpen != 8 || st.Pool.Idle != 2 {
		t.Fatalf("expected pool stats, got %+v", st.Pool)
	}
	if NewService(pinger{}, nil).Status(context.Background()).Pool != nil {
		t.Fatalf("plain pingers report no pool")
	}
}
