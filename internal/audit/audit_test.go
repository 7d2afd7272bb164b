package audit

import (
	"database/sql"
	"testing"
	"time"
)

func countRows(t *testing.T, path string) int {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow("SELECT count(*) FROM request;").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func userVersionOf(t *testing.T, path string) int {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var v int
	if err := conn.QueryRow("PRAGMA user_version;").Scan(&v); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	return v
}

func TestLogWritesRow(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := l.Log("https://example.com/", "telegram", 1, `{"user_id":42}`); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := DatabasePath(dir, time.Now())
	if got := countRows(t, path); got != 1 {
		t.Errorf("expected 1 row, got %d", got)
	}
	if got := userVersionOf(t, path); got != latestUserVersion {
		t.Errorf("expected user_version %d, got %d", latestUserVersion, got)
	}
}

func TestFlushThresholdBuffers(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer l.Close()

	path := DatabasePath(dir, time.Now())

	for i := 0; i < 2; i++ {
		if err := l.Log("https://example.com/", "email", 1, `{"headers":{}}`); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if got := countRows(t, path); got != 0 {
		t.Errorf("expected buffered rows not to be visible, got %d", got)
	}

	if err := l.Log("https://example.com/", "email", 1, `{"headers":{}}`); err != nil {
		t.Fatalf("log: %v", err)
	}
	if got := countRows(t, path); got != 3 {
		t.Errorf("expected 3 rows after the threshold flush, got %d", got)
	}
}

func TestCloseFlushesBuffer(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 100)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := l.Log("https://example.com/", "telegram", 1, `{"user_id":1}`); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := countRows(t, DatabasePath(dir, time.Now())); got != 1 {
		t.Errorf("expected the buffered row to be flushed on close, got %d", got)
	}
}

// Opening a database already at the latest user_version must change nothing.
func TestReopenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.Log("https://example.com/", "telegram", 1, `{"user_id":42}`); err != nil {
		t.Fatalf("log: %v", err)
	}
	l.Close()

	l2, err := New(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Close()

	path := DatabasePath(dir, time.Now())
	if got := countRows(t, path); got != 1 {
		t.Errorf("expected the existing row to survive a reopen, got %d", got)
	}
	if got := userVersionOf(t, path); got != latestUserVersion {
		t.Errorf("expected user_version %d, got %d", latestUserVersion, got)
	}
}

func TestMonthRollover(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer l.Close()

	january := time.Date(2026, time.January, 20, 12, 0, 0, 0, time.UTC)
	february := time.Date(2026, time.February, 2, 12, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return january }
	if err := l.Log("https://example.com/a", "telegram", 1, `{"user_id":1}`); err != nil {
		t.Fatalf("log january: %v", err)
	}

	l.now = func() time.Time { return february }
	if err := l.Log("https://example.com/b", "telegram", 1, `{"user_id":1}`); err != nil {
		t.Fatalf("log february: %v", err)
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if got := countRows(t, DatabasePath(dir, january)); got != 1 {
		t.Errorf("expected 1 row in the january file, got %d", got)
	}
	if got := countRows(t, DatabasePath(dir, february)); got != 1 {
		t.Errorf("expected 1 row in the february file, got %d", got)
	}
}

func TestSchemaConstraints(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer l.Close()

	// Shorter than the minimal URL, a 7-character ftp://x.
	if err := l.Log("x", "telegram", 1, `{"user_id":1}`); err == nil {
		t.Error("expected a too-short URL to violate the schema")
	}
	if err := l.Log("https://example.com/", "telegram", 0, `{"user_id":1}`); err == nil {
		t.Error("expected identifier_version 0 to violate the schema")
	}
}

func TestDatabasePath(t *testing.T) {
	at := time.Date(2026, time.August, 26, 0, 0, 0, 0, time.UTC)
	if got := DatabasePath("/data", at); got != "/data/requests_2026-8.sqlite3" {
		t.Errorf("unexpected path: %s", got)
	}
}
