package database

import (
	"context"
	"strings"
	"time"
)

const (
	defaultQueryTimeout   = 5 * time.Second
	defaultExecuteTimeout = 10 * time.Second
)

// Client is a type-safe accessor for one table. Record ids are the bare key
// without the table prefix.
type Client[T any] interface {
	// Create inserts a record with the given key.
	Create(ctx context.Context, id string, data any) (*T, error)

	// Select retrieves a record by key. Returns ErrNotFound if it does not exist.
	Select(ctx context.Context, id string) (*T, error)

	// Merge updates the given fields of an existing record.
	Merge(ctx context.Context, id string, data any) (*T, error)

	// Delete removes a record. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Query executes a raw query and returns multiple results.
	Query(ctx context.Context, query string, params map[string]any) ([]T, error)

	// QueryOne executes a raw query and returns its first result, or nil.
	QueryOne(ctx context.Context, query string, params map[string]any) (*T, error)

	// Execute runs a query whose result is not needed.
	Execute(ctx context.Context, query string, params map[string]any) error

	// Table returns the table the client is bound to.
	Table() string
}

// ClientOption defines a function that configures a Client.
type ClientOption[T any] func(*client[T])

// WithExecutor configures the client to use a custom QueryExecutor.
func WithExecutor[T any](executor QueryExecutor[T]) ClientOption[T] {
	return func(c *client[T]) {
		c.executor = executor
	}
}

// WithTimeouts overrides the default read and write timeouts.
func WithTimeouts[T any](query, execute time.Duration) ClientOption[T] {
	return func(c *client[T]) {
		if query > 0 {
			c.queryTimeout = query
		}
		if execute > 0 {
			c.executeTimeout = execute
		}
	}
}

type client[T any] struct {
	table          string
	executor       QueryExecutor[T]
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

// NewClient creates a new type-safe database client for table. A nil conn is
// accepted when WithExecutor supplies the executor.
func NewClient[T any](conn *Connection, table string, opts ...ClientOption[T]) (Client[T], error) {
	if table == "" {
		return nil, NewDBError(ErrInvalidInput, "table cannot be empty")
	}

	c := &client[T]{
		table:          table,
		queryTimeout:   defaultQueryTimeout,
		executeTimeout: defaultExecuteTimeout,
	}
	if conn != nil {
		c.executor = NewSurrealExecutor[T](conn)
		if d := conn.GetDBQueryTimeout(); d > 0 {
			c.queryTimeout = d
		}
		if d := conn.GetDBExecuteTimeout(); d > 0 {
			c.executeTimeout = d
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.executor == nil {
		return nil, NewDBError(ErrInvalidInput, "connection or executor is required")
	}
	return c, nil
}

func (c *client[T]) Table() string {
	return c.table
}

func (c *client[T]) Query(ctx context.Context, query string, params map[string]any) ([]T, error) {
	ctx, cancel := getTimeoutFromContext(ctx, c.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()
	return c.executor.Query(ctx, query, params)
}

func (c *client[T]) QueryOne(ctx context.Context, query string, params map[string]any) (*T, error) {
	// CREATE/UPDATE/DELETE statements don't support LIMIT.
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") && !hasLimitClause(query) {
		query += " LIMIT 1"
	}
	rows, err := c.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *client[T]) Execute(ctx context.Context, query string, params map[string]any) error {
	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()
	return c.executor.Execute(ctx, query, params)
}

func (c *client[T]) Create(ctx context.Context, id string, data any) (*T, error) {
	if id == "" {
		return nil, NewDBError(ErrInvalidInput, "id cannot be empty")
	}
	if data == nil {
		return nil, NewDBError(ErrInvalidInput, "data cannot be nil")
	}

	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	query := "CREATE type::thing($table, $id) CONTENT $data"
	result, err := c.write(ctx, query, c.params(id, map[string]any{"data": data}))
	if err != nil {
		return nil, NewDBError(err, "create operation failed")
	}
	if result == nil {
		return nil, NewDBError(ErrQueryFailed, "create returned no record")
	}
	return result, nil
}

func (c *client[T]) Select(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, NewDBError(ErrInvalidInput, "id cannot be empty")
	}

	query := "SELECT * FROM type::thing($table, $id)"
	result, err := c.QueryOne(ctx, query, c.params(id, nil))
	if err != nil {
		return nil, NewDBError(err, "select operation failed")
	}
	if result == nil {
		return nil, NewDBError(ErrNotFound, "record not found")
	}
	return result, nil
}

func (c *client[T]) Merge(ctx context.Context, id string, data any) (*T, error) {
	if id == "" {
		return nil, NewDBError(ErrInvalidInput, "id cannot be empty")
	}
	if data == nil {
		return nil, NewDBError(ErrInvalidInput, "data cannot be nil")
	}

	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	// UPDATE on a missing record id would create it; the WHERE guard keeps
	// it an update.
	query := "UPDATE type::thing($table, $id) MERGE $data WHERE id != NONE RETURN AFTER"
	result, err := c.write(ctx, query, c.params(id, map[string]any{"data": data}))
	if err != nil {
		return nil, NewDBError(err, "update operation failed")
	}
	if result == nil {
		return nil, NewDBError(ErrNotFound, "record not found")
	}
	return result, nil
}

func (c *client[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return NewDBError(ErrInvalidInput, "id cannot be empty")
	}

	ctx, cancel := getTimeoutFromContext(ctx, c.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	query := "DELETE type::thing($table, $id) RETURN BEFORE"
	result, err := c.write(ctx, query, c.params(id, nil))
	if err != nil {
		return NewDBError(err, "delete operation failed")
	}
	if result == nil {
		return NewDBError(ErrNotFound, "record not found")
	}
	return nil
}

// write runs a mutating statement under the caller's execute deadline and
// returns the first affected record.
func (c *client[T]) write(ctx context.Context, query string, params map[string]any) (*T, error) {
	rows, err := c.executor.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *client[T]) params(id string, extra map[string]any) map[string]any {
	p := map[string]any{"table": c.table, "id": id}
	for k, v := range extra {
		p[k] = v
	}
	return p
}
