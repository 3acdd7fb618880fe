package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/opaline-simulator/internal/obs"
	"github.com/noah-isme/opaline-simulator/internal/pricing"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

// DateLayout is the layout of the Date column.
const DateLayout = "2006-01-02"

// EmailColumn is the zero-based index of the Email column.
const EmailColumn = 3

// Columns is the fixed header row of the ledger.
var Columns = []string{
	"Date", "Nom", "Prénom", "Email",
	"Nombre de clients mensuels", "Nombre de kits 1P", "Nombre de kits 2P",
	"Chiffre d'Affaires (€)", "Coût Total (€)", "Bénéfice Net (€)",
}

// Store is the tabular backend the adapter writes to. Rows are ordered; the
// first row is normally the header.
type Store interface {
	// FirstRow returns the cells of the first row, or nil when the store is empty.
	FirstRow(ctx context.Context) ([]string, error)
	// InsertFirstRow inserts cells as a new first row, shifting existing rows down.
	InsertFirstRow(ctx context.Context, cells []string) error
	// ColumnValues returns every value of the zero-based column, header included.
	ColumnValues(ctx context.Context, column int) ([]string, error)
	// AppendRow adds row after the last row.
	AppendRow(ctx context.Context, row Row) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Row is the persisted representation of one submission.
type Row struct {
	Date           time.Time
	Name           string
	Surname        string
	Email          string
	MonthlyClients int
	Kits1Person    int
	Kits2Person    int
	Revenue        pricing.Money
	TotalCost      pricing.Money
	NetProfit      pricing.Money
}

// RowFromSubmission builds the ledger row for s, dating it in loc.
func RowFromSubmission(s *submission.Submission, loc *time.Location) Row {
	ts := s.Timestamp()
	if loc != nil {
		ts = ts.In(loc)
	}
	p := s.Pricing()
	return Row{
		Date:           ts,
		Name:           s.ContactName(),
		Surname:        s.ContactSurname(),
		Email:          s.ContactEmail(),
		MonthlyClients: s.MonthlyClientCount(),
		Kits1Person:    s.KitCount1Person(),
		Kits2Person:    s.KitCount2Person(),
		Revenue:        p.Revenue,
		TotalCost:      p.TotalCost,
		NetProfit:      p.NetProfit,
	}
}

// Cells renders the row in column order using the canonical text formats.
func (r Row) Cells() []string {
	return []string{
		r.Date.Format(DateLayout),
		r.Name,
		r.Surname,
		r.Email,
		strconv.Itoa(r.MonthlyClients),
		strconv.Itoa(r.Kits1Person),
		strconv.Itoa(r.Kits2Person),
		r.Revenue.String(),
		r.TotalCost.String(),
		r.NetProfit.String(),
	}
}

// Values renders the row with identity fields as text and counts and amounts
// as numbers, for backends that store typed cells.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.Date.Format(DateLayout),
		r.Name,
		r.Surname,
		r.Email,
		r.MonthlyClients,
		r.Kits1Person,
		r.Kits2Person,
		r.Revenue.Decimal().InexactFloat64(),
		r.TotalCost.Decimal().InexactFloat64(),
		r.NetProfit.Decimal().InexactFloat64(),
	}
}

// DuplicatePolicy controls what happens when the contact email already exists in the ledger.
type DuplicatePolicy string

const (
	// PolicyAlwaysAppend appends every submission, duplicates included.
	PolicyAlwaysAppend DuplicatePolicy = "always-append"
	// PolicySkip leaves the ledger untouched when the email is already present.
	PolicySkip DuplicatePolicy = "skip"
)

// ParseDuplicatePolicy maps a configuration value onto a policy. Empty means PolicyAlwaysAppend.
func ParseDuplicatePolicy(value string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PolicyAlwaysAppend), "always_append", "append":
		return PolicyAlwaysAppend, nil
	case string(PolicySkip):
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("ledger: unknown duplicate policy %q", value)
	}
}

// ReasonDuplicateEmail is reported when PolicySkip suppressed an append.
const ReasonDuplicateEmail = "duplicate_email"

// Result describes the effect of Append on the ledger.
type Result struct {
	Appended bool   `json:"appended"`
	Reason   string `json:"reason,omitempty"`
}

// StoreError wraps a failure of the underlying store.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DefaultTimeout bounds every adapter call when Adapter.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Adapter appends submissions to a Store under an explicit duplicate policy.
type Adapter struct {
	Store    Store
	Policy   DuplicatePolicy
	Timeout  time.Duration
	Location *time.Location
	// Backend labels metrics; it does not change behaviour.
	Backend string
}

// Append writes one row for s, or none when PolicySkip finds the email already recorded.
func (a *Adapter) Append(ctx context.Context, s *submission.Submission) (Result, error) {
	if a == nil || a.Store == nil {
		return Result{}, &StoreError{Op: "append", Err: errors.New("store not configured")}
	}
	if s == nil {
		return Result{}, &StoreError{Op: "append", Err: errors.New("submission is nil")}
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	if a.Policy == PolicySkip {
		emails, err := a.Store.ColumnValues(ctx, EmailColumn)
		if err != nil {
			a.record("error")
			return Result{}, &StoreError{Op: "lookup email", Err: err}
		}
		if containsEmail(emails, s.ContactEmail()) {
			a.record("skipped")
			return Result{Appended: false, Reason: ReasonDuplicateEmail}, nil
		}
	}
	if err := a.Store.AppendRow(ctx, RowFromSubmission(s, a.Location)); err != nil {
		a.record("error")
		return Result{}, &StoreError{Op: "append row", Err: err}
	}
	a.record("appended")
	return Result{Appended: true}, nil
}

// EnsureHeaderRow inserts expected as the first row unless it is already there.
// It reports whether a row was inserted.
func (a *Adapter) EnsureHeaderRow(ctx context.Context, expected []string) (bool, error) {
	if a == nil || a.Store == nil {
		return false, &StoreError{Op: "ensure header", Err: errors.New("store not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	first, err := a.Store.FirstRow(ctx)
	if err != nil {
		return false, &StoreError{Op: "read header", Err: err}
	}
	if slices.Equal(trimTrailingEmpty(first), expected) {
		return false, nil
	}
	if err := a.Store.InsertFirstRow(ctx, expected); err != nil {
		return false, &StoreError{Op: "insert header", Err: err}
	}
	return true, nil
}

// Ping probes the store when it supports it.
func (a *Adapter) Ping(ctx context.Context) error {
	if a == nil || a.Store == nil {
		return errors.New("ledger store not configured")
	}
	if p, ok := a.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *Adapter) timeout() time.Duration {
	if a.Timeout <= 0 {
		return DefaultTimeout
	}
	return a.Timeout
}

func (a *Adapter) record(result string) {
	if obs.LedgerAppendTotal == nil {
		return
	}
	backend := a.Backend
	if backend == "" {
		backend = "unknown"
	}
	obs.LedgerAppendTotal.WithLabelValues(backend, result).Inc()
}

func containsEmail(values []string, email string) bool {
	needle := normalizeEmail(email)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if normalizeEmail(v) == needle {
			return true
		}
	}
	return false
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func trimTrailingEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	return cells[:end]
}
