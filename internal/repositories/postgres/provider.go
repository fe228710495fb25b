package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/clearbrook/storefront/internal/platform/config"
	"github.com/clearbrook/storefront/internal/repositories"
)

// Registry bundles the PostgreSQL backed repositories behind a single handle.
type Registry struct {
	db *sql.DB

	users   *UserRepository
	catalog *CatalogRepository
	orders  *OrderRepository
	health  repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// Open connects to PostgreSQL, applies pending migrations, and returns the registry.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Registry, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if cfg.MigrationsPath != "" {
		if err := applyMigrations(db, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return NewRegistry(db), nil
}

// NewRegistry wraps an existing database handle without running migrations.
func NewRegistry(db *sql.DB) *Registry {
	r := &Registry{db: db}
	r.users = &UserRepository{registry: r}
	r.catalog = &CatalogRepository{registry: r}
	r.orders = &OrderRepository{registry: r}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "postgres", Check: db.PingContext},
	})
	if err == nil {
		r.health = health
	}
	return r
}

func applyMigrations(db *sql.DB, path string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: applying migrations: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for components that share the pool, such
// as the webhook event store.
func (r *Registry) DB() *sql.DB { return r.db }

// Close releases the underlying connection pool.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Users implements repositories.Registry.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Catalog implements repositories.Registry.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

type txContextKey struct{}

// RunInTx executes fn inside a single database transaction. Repository calls
// made with the derived context join that transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError("postgres: begin tx", err)
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapError("postgres: commit tx", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Registry) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}
