// Package pgxutil runs native pgx work on connections borrowed from a
// database/sql pool opened with the pgx stdlib driver.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrUnexpectedDriver is returned when the pool was not opened with the "pgx" driver.
var ErrUnexpectedDriver = errors.New("pgxutil: pool is not backed by *stdlib.Conn")

// WithPgxConn borrows one connection from db for the duration of fn.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returning a conn to the pool

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return ErrUnexpectedDriver
		}
		return fn(c.Conn())
	})
}

// QueryOne runs query and scans exactly one row into T by column name.
// No rows yields pgx.ErrNoRows; more than one yields pgx.ErrTooManyRows.
func QueryOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (T, error) {
	var out T
	err := WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
		return err
	})
	return out, err
}
