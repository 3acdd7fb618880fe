package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/opaline-simulator/internal/obs"
)

// Backend names accepted by OpenStore.
const (
	BackendSheets   = "sheets"
	BackendXLSX     = "xlsx"
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
	BackendMemory   = "memory"
)

// BackendConfig selects and configures a Store implementation.
type BackendConfig struct {
	Backend     string
	Sheets      SheetsConfig
	XLSXPath    string
	XLSXSheet   string
	DatabaseURL string
	PebbleDir   string
}

// OpenStore builds the configured Store. The returned close function releases
// any file handles or connection pools and is never nil.
func OpenStore(ctx context.Context, cfg BackendConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSheets, "":
		store, err := NewSheetsStore(ctx, cfg.Sheets)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case BackendXLSX:
		store, err := OpenXLSXStore(cfg.XLSXPath, cfg.XLSXSheet)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case BackendPostgres:
		if err := Migrate(cfg.DatabaseURL); err != nil {
			return nil, noop, err
		}
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("ledger: parse database url: %w", err)
		}
		poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("ledger: connect postgres: %w", err)
		}
		return NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil
	case BackendPebble:
		store, err := NewPebbleStore(cfg.PebbleDir)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
}
