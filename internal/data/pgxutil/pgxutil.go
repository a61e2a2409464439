// Package pgxutil bridges database/sql pools opened with the pgx stdlib driver to pgx's
// native row helpers.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// InTx runs fn inside a read-committed transaction and commits when fn returns nil.
func InTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// QueryStructs runs query on a raw pgx connection and maps each row onto T by column
// name (db struct tags). The pool must use the "pgx" driver.
func QueryStructs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var out []T
	err = conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T; expected *stdlib.Conn", dc)
		}
		rows, qerr := std.Conn().Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		out, qerr = pgx.CollectRows(rows, pgx.RowToStructByName[T])
		return qerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
