package observability

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ObserveDB times a logical store operation. Lookups that find nothing are
// an expected outcome and are not counted as errors.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil && !isMiss(err) {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func isMiss(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, mongo.ErrNoDocuments) ||
		errors.Is(err, user.ErrNotFound)
}

func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	if mongo.IsDuplicateKeyError(err) {
		return "unique_violation"
	}

	if mongo.IsTimeout(err) {
		return "timeout"
	}

	if mongo.IsNetworkError(err) {
		return "connection"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "unknown"
	}
}
