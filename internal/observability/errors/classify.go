// Package errors maps errors to low-cardinality class names for metric tags.
package errors

import (
	"context"
	"database/sql"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

// classed is implemented by errors that name their own metric class.
type classed interface {
	ErrorClass() string
}

// sentinels are checked in order after ErrorClass.
var sentinels = []struct {
	err   error
	class string
}{
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{sql.ErrNoRows, "not_found"},
	{redis.Nil, "not_found"},
	{domainauth.ErrUserNotFound, "user_not_found"},
	{domainauth.ErrSessionNotFound, "session_not_found"},
	{domainauth.ErrEmailExists, "conflict"},
}

// Classify returns a tag value for err. Precedence: the outermost ErrorClass, known
// sentinels, Postgres SQLSTATE class, network timeouts, then the innermost Go type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var c classed
	if goerrors.As(err, &c) {
		if class := strings.TrimSpace(c.ErrorClass()); class != "" {
			return class
		}
	}
	for _, s := range sentinels {
		if goerrors.Is(err, s.err) {
			return s.class
		}
	}
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		// The first two SQLSTATE characters name the class, e.g. 23 for integrity violations.
		return "pg_" + strings.ToLower(pgErr.Code[:2])
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
