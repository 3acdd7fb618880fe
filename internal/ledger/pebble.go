package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

var pebbleRowPrefix = []byte("row/")

// PebbleStore keeps ledger rows in an embedded Pebble database. Row keys encode
// a signed position so iteration order matches row order and header rows can be
// inserted ahead of existing rows.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close releases the database.
func (p *PebbleStore) Close() error { return p.db.Close() }

func pebbleKey(pos int64) []byte {
	k := make([]byte, len(pebbleRowPrefix)+8)
	copy(k, pebbleRowPrefix)
	binary.BigEndian.PutUint64(k[len(pebbleRowPrefix):], uint64(pos)^(1<<63))
	return k
}

func pebblePosition(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(pebbleRowPrefix):]) ^ (1 << 63))
}

func (p *PebbleStore) iter() (*pebble.Iterator, error) {
	upper := append([]byte(nil), pebbleRowPrefix...)
	upper[len(upper)-1]++
	return p.db.NewIter(&pebble.IterOptions{LowerBound: pebbleRowPrefix, UpperBound: upper})
}

// edge returns the first (or last) row and its position.
func (p *PebbleStore) edge(last bool) (cells []string, pos int64, ok bool, err error) {
	it, err := p.iter()
	if err != nil {
		return nil, 0, false, err
	}
	defer it.Close()
	if last {
		ok = it.Last()
	} else {
		ok = it.First()
	}
	if !ok {
		return nil, 0, false, it.Error()
	}
	if err := json.Unmarshal(it.Value(), &cells); err != nil {
		return nil, 0, false, fmt.Errorf("decode row: %w", err)
	}
	return cells, pebblePosition(it.Key()), true, nil
}

func (p *PebbleStore) put(pos int64, cells []string) error {
	val, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	return p.db.Set(pebbleKey(pos), val, pebble.Sync)
}

// FirstRow implements Store.
func (p *PebbleStore) FirstRow(_ context.Context) ([]string, error) {
	cells, _, _, err := p.edge(false)
	return cells, err
}

// InsertFirstRow implements Store.
func (p *PebbleStore) InsertFirstRow(_ context.Context, cells []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, pos, ok, err := p.edge(false)
	if err != nil {
		return err
	}
	if !ok {
		pos = 1
	}
	return p.put(pos-1, cells)
}

// ColumnValues implements Store.
func (p *PebbleStore) ColumnValues(_ context.Context, column int) ([]string, error) {
	it, err := p.iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []string
	for it.First(); it.Valid(); it.Next() {
		var cells []string
		if err := json.Unmarshal(it.Value(), &cells); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		if column < len(cells) {
			out = append(out, cells[column])
		} else {
			out = append(out, "")
		}
	}
	return out, it.Error()
}

// AppendRow implements Store.
func (p *PebbleStore) AppendRow(_ context.Context, row Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, pos, ok, err := p.edge(true)
	if err != nil {
		return err
	}
	if !ok {
		pos = 0
	}
	return p.put(pos+1, row.Cells())
}

// Ping implements Pinger.
func (p *PebbleStore) Ping(_ context.Context) error {
	it, err := p.iter()
	if err != nil {
		return err
	}
	return it.Close()
}
