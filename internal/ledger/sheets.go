package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig locates the spreadsheet tab and the service account key used
// to reach it. CredentialsJSON takes precedence over CredentialsFile.
type SheetsConfig struct {
	CredentialsJSON []byte
	CredentialsFile string
	SpreadsheetID   string
	Tab             string
}

// SheetsStore writes ledger rows to a Google Sheets tab.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	tab           string
}

// NewSheetsStore authenticates with the configured service account key. Without
// credentials the caller must supply auth through opts.
func NewSheetsStore(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	raw := cfg.CredentialsJSON
	if len(raw) == 0 && cfg.CredentialsFile != "" {
		var err error
		raw, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
	}
	if len(raw) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets: parse credentials: %w", err)
		}
		opts = append([]option.ClientOption{option.WithHTTPClient(newSheetsHTTPClient(ctx, creds.TokenSource))}, opts...)
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	return NewSheetsStoreFromService(svc, cfg.SpreadsheetID, cfg.Tab), nil
}

// newSheetsHTTPClient authorizes requests with ts over a traced transport so
// ledger calls show up in request spans.
func newSheetsHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	base := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
}

// NewSheetsStoreFromService wraps an existing client.
func NewSheetsStoreFromService(svc *sheets.Service, spreadsheetID, tab string) *SheetsStore {
	if tab == "" {
		tab = "Sheet1"
	}
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, tab: tab}
}

func (s *SheetsStore) rng(a1 string) string {
	return fmt.Sprintf("'%s'!%s", s.tab, a1)
}

// FirstRow implements Store.
func (s *SheetsStore) FirstRow(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("1:1")).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return stringCells(resp.Values[0]), nil
}

// InsertFirstRow implements Store. It shifts the tab down by one row and writes cells into row 1.
func (s *SheetsStore) InsertFirstRow(ctx context.Context, cells []string) error {
	sheetID, err := s.sheetID(ctx)
	if err != nil {
		return err
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      0,
					EndIndex:        1,
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return err
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{
		Values: [][]interface{}{interfaceCells(cells)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// ColumnValues implements Store.
func (s *SheetsStore) ColumnValues(ctx context.Context, column int) ([]string, error) {
	name, err := excelize.ColumnNumberToName(column + 1)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng(name+":"+name)).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return stringCells(resp.Values[0]), nil
}

// AppendRow implements Store. Cells are written RAW so submitted text is never
// parsed as a formula.
func (s *SheetsStore) AppendRow(ctx context.Context, row Row) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{
		Values: [][]interface{}{row.Values()},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// Ping implements Pinger.
func (s *SheetsStore) Ping(ctx context.Context) error {
	_, err := s.sheetID(ctx)
	return err
}

func (s *SheetsStore) sheetID(ctx context.Context) (int64, error) {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.tab {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheets: tab %q not found", s.tab)
}

func stringCells(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func interfaceCells(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
