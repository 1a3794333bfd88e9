package observability

import (
	"errors"
	"testing"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProm_AuthEvent(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.AuthEvent("refresh", "reuse_detected")
	p.AuthEvent("refresh", "reuse_detected")
	p.AuthEvent("login", "ok")

	if got := testutil.ToFloat64(p.AuthEventsTotal.WithLabelValues("refresh", "reuse_detected")); got != 2 {
		t.Fatalf("reuse_detected = %v, want 2", got)
	}
}

func TestProm_ObserveDB(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("users.get_by_id", func() error { return user.ErrNotFound })
	_ = p.ObserveDB("users.create", func() error { return &pgconn.PgError{Code: "23505"} })
	_ = p.ObserveDB("users.create", func() error { return errors.New("dial tcp: connection refused") })

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.get_by_id", "unknown")); got != 0 {
		t.Fatalf("not-found lookups must not count as errors, got %v", got)
	}

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.create", "unique_violation")); got != 1 {
		t.Fatalf("unique_violation = %v, want 1", got)
	}

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.create", "connection")); got != 1 {
		t.Fatalf("connection = %v, want 1", got)
	}
}
