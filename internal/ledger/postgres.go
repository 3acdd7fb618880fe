package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const ledgerTable = "ledger_rows"

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore keeps ledger rows in a single table ordered by position. The
// header row takes a position below every data row.
type PostgresStore struct {
	db  Querier
	psq sq.StatementBuilderType
}

// NewPostgresStore wraps db. Run Migrate before first use.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db, psq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("ledger: init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger: migrate up: %w", err)
	}
	return nil
}

func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// FirstRow implements Store.
func (p *PostgresStore) FirstRow(ctx context.Context) ([]string, error) {
	query, args, err := p.psq.Select("cells").From(ledgerTable).OrderBy("position").Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	var cells []string
	if err := p.db.QueryRow(ctx, query, args...).Scan(&cells); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cells, nil
}

// InsertFirstRow implements Store.
func (p *PostgresStore) InsertFirstRow(ctx context.Context, cells []string) error {
	query, args, err := p.psq.Insert(ledgerTable).
		Columns("position", "cells").
		Values(sq.Expr("(SELECT COALESCE(MIN(position), 1) - 1 FROM "+ledgerTable+")"), cells).
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, query, args...)
	return err
}

// ColumnValues implements Store. Postgres arrays are one-based.
func (p *PostgresStore) ColumnValues(ctx context.Context, column int) ([]string, error) {
	query, args, err := p.psq.Select().
		Column(sq.Expr("COALESCE(cells[?], '')", column+1)).
		From(ledgerTable).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AppendRow implements Store.
func (p *PostgresStore) AppendRow(ctx context.Context, row Row) error {
	query, args, err := p.psq.Insert(ledgerTable).Columns("cells").Values(row.Cells()).ToSql()
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, query, args...)
	return err
}

// Ping implements Pinger.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
