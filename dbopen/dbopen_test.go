package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/visedit/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk, sync, busy int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if fk != 1 || sync != 1 || busy != 5000 {
		t.Fatalf("pragmas: foreign_keys=%d synchronous=%d busy_timeout=%d", fk, sync, busy)
	}
}

func TestOpen_MkdirAllAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "pages.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY)`))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode: got %q, want wal", mode)
	}
	if _, err := db.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("no such table"), false},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v): got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))
	ctx := context.Background()

	if err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv VALUES ('a', '1')`)
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO kv VALUES ('b', '2')`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("rollback: got %v", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n)
	if n != 1 {
		t.Fatalf("rows: got %d, want 1", n)
	}
}

func TestRunTx_CancelledContext(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected an error")
	}
}
