// Package google stores user documents in a Google Sheets tab, one row per
// user: A = user id, B = document JSON, C = last write time (RFC 3339).
// A document longer than one cell continues in D, E and onward.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"worktracker/internal/cache"
	"worktracker/internal/documents"
	"worktracker/internal/googleauth"

	gsheet "google.golang.org/api/sheets/v4"
)

const (
	// cellLimit is in bytes, which never undercounts the 50,000 character
	// cap Sheets puts on a cell.
	cellLimit    = 45000
	maxBodyCells = 200
)

// ErrDocumentTooLarge is returned by Set when a body does not fit in one row.
var ErrDocumentTooLarge = errors.New("document too large for a sheet row")

// lastColumn is the rightmost column a row can use: A, C and the body cells.
var lastColumn, _ = excelize.ColumnNumberToName(maxBodyCells + 2)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID string
	SheetName     string

	Credentials googleauth.Credentials

	// RowCacheSize and RowCacheTTL bound the user id -> row number cache.
	RowCacheSize int
	RowCacheTTL  time.Duration
}

// valuesAPI is the subset of the Sheets values service the store needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, row []any) error
	Append(ctx context.Context, rng string, row []any) (updatedRange string, err error)
}

type Client struct {
	values valuesAPI
	sheet  string
	rows   *cache.LRUCache[int]
	now    func() time.Time

	// serialises Set so two writers never append a row for the same user.
	mu sync.Mutex
}

var _ documents.Store = (*Client)(nil)

// New builds a client against the real Sheets API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	opts, err := googleauth.ClientOptions(ctx, cfg.Credentials, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets credentials: %w", err)
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets document store ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)
	return newClient(&sheetsValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg), nil
}

func newClient(values valuesAPI, cfg Config) *Client {
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Documents"
	}
	size := cfg.RowCacheSize
	if size <= 0 {
		size = 1000
	}
	ttl := cfg.RowCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		values: values,
		sheet:  sheet,
		rows:   cache.NewLRUCache[int](size, ttl),
		now:    time.Now,
	}
}

// RowCache exposes the row index cache so a cache.Manager can sweep it.
func (c *Client) RowCache() *cache.LRUCache[int] {
	return c.rows
}

// InvalidateRowCache forgets every cached row position, e.g. after rows were
// sorted or deleted by hand in the spreadsheet.
func (c *Client) InvalidateRowCache() {
	c.rows.Clear()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	row, cols, err := c.locate(ctx, key)
	if err != nil {
		return nil, err
	}
	if row == 0 {
		return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
	}
	if cols == nil {
		values, err := c.values.Get(ctx, c.rowRange(row))
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
		}
		cols = toStrings(values[0])
	}
	body := safeGet(cols, 1)
	if len(cols) > 3 {
		body += strings.Join(cols[3:], "")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
	}
	return []byte(body), nil
}

// Set overwrites the user's row, appending one on first write.
func (c *Client) Set(ctx context.Context, key string, body []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("set: empty key")
	}
	chunks := splitCells(string(body), cellLimit)
	if len(chunks) > maxBodyCells {
		return fmt.Errorf("set %q: %w (%d bytes)", key, ErrDocumentTooLarge, len(body))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	row, cols, err := c.locate(ctx, key)
	if err != nil {
		return err
	}
	values := make([]any, 0, max(len(chunks)+2, len(cols)))
	values = append(values, key, chunks[0], c.now().UTC().Format(time.RFC3339))
	for _, chunk := range chunks[1:] {
		values = append(values, chunk)
	}
	// blank the cells a longer previous body used
	for len(values) < len(cols) {
		values = append(values, "")
	}

	if row > 0 {
		if err := c.values.Update(ctx, c.rowRange(row), values); err != nil {
			c.rows.Delete(key)
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	updated, err := c.values.Append(ctx, c.columnsRange(), values)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if n, ok := rowFromRange(updated); ok {
		c.rows.Set(key, n)
	}
	return nil
}

// locate returns the 1-based row holding key, or 0 when there is none. When
// the row was read during a scan its columns are returned too.
func (c *Client) locate(ctx context.Context, key string) (int, []string, error) {
	if row, ok := c.rows.Get(key); ok {
		values, err := c.values.Get(ctx, c.rowRange(row))
		if err != nil {
			return 0, nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if len(values) > 0 {
			cols := toStrings(values[0])
			if strings.TrimSpace(safeGet(cols, 0)) == key {
				return row, cols, nil
			}
		}
		// the sheet moved under us
		c.rows.Delete(key)
	}

	values, err := c.values.Get(ctx, c.columnsRange())
	if err != nil {
		return 0, nil, fmt.Errorf("scan %s: %w", c.sheet, err)
	}
	for i, raw := range values {
		cols := toStrings(raw)
		if strings.TrimSpace(safeGet(cols, 0)) == key {
			c.rows.Set(key, i+1)
			return i + 1, cols, nil
		}
	}
	return 0, nil, nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
}

func (c *Client) columnsRange() string {
	return fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
}

// splitCells cuts s into pieces of at most limit bytes without splitting a
// UTF-8 sequence. It always returns at least one piece.
func splitCells(s string, limit int) []string {
	var out []string
	for len(s) > limit {
		i := limit
		for i > 0 && !utf8.RuneStart(s[i]) {
			i--
		}
		out = append(out, s[:i])
		s = s[i:]
	}
	return append(out, s)
}

// rowFromRange extracts the first row number from "Sheet!A5:GT5".
func rowFromRange(rng string) (int, bool) {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	rng, _, _ = strings.Cut(rng, ":")
	digits := strings.TrimLeftFunc(rng, func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// toStrings keeps cell text untrimmed: a body piece may end in whitespace.
func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

type sheetsValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *sheetsValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *sheetsValues) Update(ctx context.Context, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *sheetsValues) Append(ctx context.Context, rng string, row []any) (string, error) {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}
