package poolregistry

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v4/stdlib"
)

// Conn is a single acquired connection. Closing it returns it to the pool.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// DB is the bounded connection pool a Factory produces for one storage ref.
// *sql.DB satisfies it via the sqlDB wrapper below.
type DB interface {
	// Conn blocks until a connection is available or ctx is done.
	Conn(ctx context.Context) (Conn, error)
	PingContext(ctx context.Context) error
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	Close() error
}

// Factory opens a pool for a tenant's backing store. The registry owns what
// the factory returns.
type Factory interface {
	Open(ctx context.Context, storageRef string) (DB, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, storageRef string) (DB, error)

func (f FactoryFunc) Open(ctx context.Context, storageRef string) (DB, error) {
	return f(ctx, storageRef)
}

type sqlDB struct {
	*sql.DB
}

func (d sqlDB) Conn(ctx context.Context) (Conn, error) {
	conn, err := d.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewPgxFactory returns a Factory that opens pgx-driven pools using the DSN
// produced by dsnFor.
func NewPgxFactory(dsnFor func(storageRef string) string) Factory {
	return FactoryFunc(func(ctx context.Context, storageRef string) (DB, error) {
		db, err := sql.Open("pgx", dsnFor(storageRef))
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return sqlDB{db}, nil
	})
}
