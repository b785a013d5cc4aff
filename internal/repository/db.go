// Package repository holds the Postgres, Redis and Neo4j backed stores the
// feed pipeline reads from.
package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by writes that target a missing row. Reads of a
// missing row return nil without an error.
var ErrNotFound = errors.New("not found")

// DBTX is the subset of *pgxpool.Pool the repositories use. pgxmock pools
// satisfy it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// decodeJSON treats an empty or null column as absent.
func decodeJSON(raw []byte, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
