package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/opaline-simulator/internal/ledger"
	"github.com/noah-isme/opaline-simulator/internal/pricing"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

type countingStore struct {
	*ledger.MemoryStore
	inserts   int
	appends   int
	lookups   int
	appendErr error
	block     bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: ledger.NewMemoryStore()}
}

func (c *countingStore) InsertFirstRow(ctx context.Context, cells []string) error {
	c.inserts++
	return c.MemoryStore.InsertFirstRow(ctx, cells)
}

func (c *countingStore) ColumnValues(ctx context.Context, column int) ([]string, error) {
	c.lookups++
	return c.MemoryStore.ColumnValues(ctx, column)
}

func (c *countingStore) AppendRow(ctx context.Context, row ledger.Row) error {
	c.appends++
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.appendErr != nil {
		return c.appendErr
	}
	return c.MemoryStore.AppendRow(ctx, row)
}

func newSubmission(t *testing.T, email string) *submission.Submission {
	t.Helper()
	sub, err := submission.New(submission.Input{
		ContactName:        "Durand",
		ContactSurname:     "Alice",
		ContactEmail:       email,
		MonthlyClientCount: 50,
		KitCount1Person:    100,
		KitCount2Person:    50,
	}, time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC), pricing.DefaultConfig())
	require.NoError(t, err)
	return sub
}

func TestRowCellsColumnOrder(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	row := ledger.RowFromSubmission(newSubmission(t, "alice@example.com"), paris)
	require.Equal(t, []string{
		"2025-03-11", "Durand", "Alice", "alice@example.com",
		"50", "100", "50", "2500.00", "1822.50", "677.50",
	}, row.Cells())
	require.Len(t, ledger.Columns, len(row.Cells()))
	require.Equal(t, "Email", ledger.Columns[ledger.EmailColumn])
}

func TestEnsureHeaderRowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	adapter := &ledger.Adapter{Store: store}

	inserted, err := adapter.EnsureHeaderRow(ctx, ledger.Columns)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = adapter.EnsureHeaderRow(ctx, ledger.Columns)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, 1, store.inserts)
	require.Len(t, store.Rows(), 1)
}

func TestEnsureHeaderRowReplacesMismatch(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.MemoryStore.InsertFirstRow(ctx, []string{"Date", "Nom"}))
	adapter := &ledger.Adapter{Store: store}

	inserted, err := adapter.EnsureHeaderRow(ctx, ledger.Columns)
	require.NoError(t, err)
	require.True(t, inserted)
	rows := store.Rows()
	require.Equal(t, ledger.Columns, rows[0])
	require.Equal(t, []string{"Date", "Nom"}, rows[1])
}

func TestAppendAlwaysAppendKeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	adapter := &ledger.Adapter{Store: store, Policy: ledger.PolicyAlwaysAppend}

	for i := 0; i < 2; i++ {
		res, err := adapter.Append(ctx, newSubmission(t, "alice@example.com"))
		require.NoError(t, err)
		require.True(t, res.Appended)
	}
	require.Equal(t, 2, store.appends)
	require.Zero(t, store.lookups)
}

func TestAppendSkipPolicy(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	adapter := &ledger.Adapter{Store: store, Policy: ledger.PolicySkip}
	_, err := adapter.EnsureHeaderRow(ctx, ledger.Columns)
	require.NoError(t, err)

	res, err := adapter.Append(ctx, newSubmission(t, "alice@example.com"))
	require.NoError(t, err)
	require.Equal(t, ledger.Result{Appended: true}, res)

	res, err = adapter.Append(ctx, newSubmission(t, "Alice@Example.com"))
	require.NoError(t, err)
	require.Equal(t, ledger.Result{Appended: false, Reason: ledger.ReasonDuplicateEmail}, res)

	res, err = adapter.Append(ctx, newSubmission(t, "bob@example.com"))
	require.NoError(t, err)
	require.True(t, res.Appended)

	require.Equal(t, 2, store.appends)
	require.Len(t, store.Rows(), 3)
}

func TestAppendWrapsStoreError(t *testing.T) {
	cause := errors.New("quota exceeded")
	store := newCountingStore()
	store.appendErr = cause
	adapter := &ledger.Adapter{Store: store}

	_, err := adapter.Append(context.Background(), newSubmission(t, "alice@example.com"))
	var serr *ledger.StoreError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "append row", serr.Op)
	require.ErrorIs(t, err, cause)
}

func TestAppendTimesOut(t *testing.T) {
	store := newCountingStore()
	store.block = true
	adapter := &ledger.Adapter{Store: store, Timeout: 20 * time.Millisecond}

	start := time.Now()
	_, err := adapter.Append(context.Background(), newSubmission(t, "alice@example.com"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ledger.ParseDuplicatePolicy("")
	require.NoError(t, err)
	require.Equal(t, ledger.PolicyAlwaysAppend, p)

	p, err = ledger.ParseDuplicatePolicy(" SKIP ")
	require.NoError(t, err)
	require.Equal(t, ledger.PolicySkip, p)

	_, err = ledger.ParseDuplicatePolicy("merge")
	require.Error(t, err)
}

func TestOpenStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := ledger.OpenStore(ctx, ledger.BackendConfig{Backend: "memory"})
	require.NoError(t, err)
	require.IsType(t, &ledger.MemoryStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = ledger.OpenStore(ctx, ledger.BackendConfig{Backend: "pebble", PebbleDir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &ledger.PebbleStore{}, store)
	require.NoError(t, closeFn())

	_, closeFn, err = ledger.OpenStore(ctx, ledger.BackendConfig{Backend: "csv"})
	require.Error(t, err)
	require.NotNil(t, closeFn)
}
