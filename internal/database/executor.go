package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// QueryExecutor handles the execution of database queries for records of type T.
type QueryExecutor[T any] interface {
	// Query executes a query and returns the rows of its first statement.
	Query(ctx context.Context, query string, params map[string]any) ([]T, error)

	// Execute runs a query and discards its result.
	Execute(ctx context.Context, query string, params map[string]any) error
}

// surrealExecutor runs queries through a managed Connection so transient
// network failures trigger a reconnect.
type surrealExecutor[T any] struct {
	conn *Connection
}

// NewSurrealExecutor returns an executor bound to conn.
func NewSurrealExecutor[T any](conn *Connection) QueryExecutor[T] {
	return &surrealExecutor[T]{conn: conn}
}

func (e *surrealExecutor[T]) Query(ctx context.Context, query string, params map[string]any) ([]T, error) {
	var rows []T
	err := e.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		results, err := surrealdb.Query[[]T](ctx, db, query, params)
		if err != nil {
			return err
		}
		if results == nil || len(*results) == 0 {
			rows = nil
			return nil
		}
		rows = (*results)[0].Result
		return nil
	})
	if err != nil {
		return nil, NewDBError(fmt.Errorf("%w: %w", ErrQueryFailed, err), "surreal").WithQuery(query)
	}
	return rows, nil
}

func (e *surrealExecutor[T]) Execute(ctx context.Context, query string, params map[string]any) error {
	err := e.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		_, err := surrealdb.Query[any](ctx, db, query, params)
		return err
	})
	if err != nil {
		return NewDBError(fmt.Errorf("%w: %w", ErrQueryFailed, err), "surreal").WithQuery(query)
	}
	return nil
}

// hasLimitClause checks if the query already has a LIMIT clause
func hasLimitClause(query string) bool {
	query = " " + strings.ToUpper(query) + " "
	return strings.Contains(query, " LIMIT ")
}
