package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"worktracker/internal/documents"
)

// fakeValues is an in-memory sheet addressed with A1 ranges.
type fakeValues struct {
	mu     sync.Mutex
	rows   [][]any
	gets   int
	fail   error
	ranges []string
}

func (f *fakeValues) Get(_ context.Context, rng string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.ranges = append(f.ranges, rng)
	if f.fail != nil {
		return nil, f.fail
	}
	if strings.HasSuffix(rng, "!A:"+lastColumn) {
		out := make([][]any, len(f.rows))
		copy(out, f.rows)
		return out, nil
	}
	row, ok := rowFromRange(rng)
	if !ok || row > len(f.rows) {
		return nil, nil
	}
	return [][]any{f.rows[row-1]}, nil
}

func (f *fakeValues) Update(_ context.Context, rng string, row []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	n, ok := rowFromRange(rng)
	if !ok || n > len(f.rows) {
		return fmt.Errorf("bad range %s", rng)
	}
	f.rows[n-1] = row
	return nil
}

func (f *fakeValues) Append(_ context.Context, rng string, row []any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.rows = append(f.rows, row)
	n := len(f.rows)
	sheet, _, _ := strings.Cut(rng, "!")
	return fmt.Sprintf("%s!A%d:%s%d", sheet, n, lastColumn, n), nil
}

func newTestClient(values *fakeValues) *Client {
	c := newClient(values, Config{SheetName: "Docs"})
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestSheetsStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	values := &fakeValues{rows: [][]any{{"user_id", "body", "updated_at"}}}
	c := newTestClient(values)

	if _, err := c.Get(ctx, "u1"); !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.Set(ctx, "u1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "u2", []byte(`{"b":2}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "u1", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if len(values.rows) != 3 {
		t.Fatalf("expected header plus two user rows, got %d", len(values.rows))
	}
	if got := values.rows[1]; got[0] != "u1" || got[1] != `{"a":2}` || got[2] != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected row: %v", got)
	}

	body, err := c.Get(ctx, "u1")
	if err != nil || string(body) != `{"a":2}` {
		t.Fatalf("get: %q err=%v", body, err)
	}
}

func TestSheetsStoreUsesRowCache(t *testing.T) {
	ctx := context.Background()
	values := &fakeValues{}
	c := newTestClient(values)

	if err := c.Set(ctx, "u1", []byte("{}")); err != nil {
		t.Fatalf("set: %v", err)
	}
	values.ranges = nil
	if _, err := c.Get(ctx, "u1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(values.ranges) != 1 || values.ranges[0] != "Docs!A1:"+lastColumn+"1" {
		t.Fatalf("expected a single row read, got %v", values.ranges)
	}
	if c.RowCache().Stats().Hits != 1 {
		t.Fatalf("expected a cache hit, stats=%+v", c.RowCache().Stats())
	}
}

func TestSheetsStoreRecoversFromMovedRows(t *testing.T) {
	ctx := context.Background()
	values := &fakeValues{}
	c := newTestClient(values)
	_ = c.Set(ctx, "u1", []byte(`"one"`))
	_ = c.Set(ctx, "u2", []byte(`"two"`))

	// someone sorted the sheet by hand
	values.rows[0], values.rows[1] = values.rows[1], values.rows[0]

	body, err := c.Get(ctx, "u1")
	if err != nil || string(body) != `"one"` {
		t.Fatalf("get after move: %q err=%v", body, err)
	}
	if row, ok := c.RowCache().Get("u1"); !ok || row != 2 {
		t.Fatalf("row cache not refreshed: %d %v", row, ok)
	}

	c.InvalidateRowCache()
	if c.RowCache().Size() != 0 {
		t.Fatalf("invalidate left entries")
	}
}

func TestSheetsStoreErrors(t *testing.T) {
	ctx := context.Background()
	values := &fakeValues{fail: errors.New("quota exceeded")}
	c := newTestClient(values)

	if _, err := c.Get(ctx, "u1"); err == nil || errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("transport failure must not look like a missing document: %v", err)
	}
	if err := c.Set(ctx, "u1", []byte("{}")); err == nil {
		t.Fatalf("expected error")
	}
	if err := c.Set(ctx, " ", []byte("{}")); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSheetsStoreSplitsLargeDocuments(t *testing.T) {
	ctx := context.Background()
	values := &fakeValues{}
	c := newTestClient(values)

	// multi-byte runes so a naive byte split would corrupt the body
	large := `{"notes":"` + strings.Repeat("café ", 24000) + `"}`
	if err := c.Set(ctx, "u1", []byte(large)); err != nil {
		t.Fatalf("set: %v", err)
	}
	row := values.rows[0]
	if len(row) != 6 {
		t.Fatalf("expected key, time and 4 body cells, got %d cells", len(row))
	}
	for i, cell := range row {
		s := cell.(string)
		if utf8.RuneCountInString(s) > 50000 || !utf8.ValidString(s) {
			t.Fatalf("cell %d is not a valid sheet cell (%d bytes)", i, len(s))
		}
	}

	body, err := c.Get(ctx, "u1")
	if err != nil || string(body) != large {
		t.Fatalf("large body did not round trip: %d bytes, err=%v", len(body), err)
	}

	// shrinking must blank the old continuation cells
	if err := c.Set(ctx, "u1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(values.rows[0]) != 6 || values.rows[0][3] != "" || values.rows[0][5] != "" {
		t.Fatalf("stale body cells left behind: %d cells", len(values.rows[0]))
	}
	c.InvalidateRowCache()
	body, err = c.Get(ctx, "u1")
	if err != nil || string(body) != `{"a":1}` {
		t.Fatalf("get after shrink: %q err=%v", body, err)
	}
}

func TestSheetsStoreRejectsOversizedDocuments(t *testing.T) {
	values := &fakeValues{}
	c := newTestClient(values)

	huge := strings.Repeat("x", cellLimit*maxBodyCells+1)
	err := c.Set(context.Background(), "u1", []byte(huge))
	if !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
	if len(values.rows) != 0 || values.gets != 0 {
		t.Fatalf("oversized body reached the sheet: rows=%d gets=%d", len(values.rows), values.gets)
	}
}

func TestSplitCells(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  []string
	}{
		{"", 4, []string{""}},
		{"abcd", 4, []string{"abcd"}},
		{"abcdefghi", 4, []string{"abcd", "efgh", "i"}},
		{"aé€", 3, []string{"aé", "€"}},
	}
	for _, tc := range cases {
		got := splitCells(tc.in, tc.limit)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("splitCells(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestRowFromRange(t *testing.T) {
	cases := map[string]int{
		"Docs!A5:C5":        5,
		"'My Docs'!A12:C12": 12,
		"A1":                1,
	}
	for in, want := range cases {
		if got, ok := rowFromRange(in); !ok || got != want {
			t.Errorf("rowFromRange(%q) = %d, %v", in, got, ok)
		}
	}
	if _, ok := rowFromRange("Docs!A:C"); ok {
		t.Errorf("column-only range should not parse")
	}
}
