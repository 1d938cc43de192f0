package database

import (
	"path/filepath"
	"testing"

	"github.com/readinglog/readlog/pkg/readlog/models"
)

func TestOpenSQLite(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "readlog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	if !db.Migrator().HasTable("books") {
		t.Error("Expected books table to exist")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "whatever"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestOpenMemoryIsolated(t *testing.T) {
	a, err := OpenMemory("isolated_a")
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	b, err := OpenMemory("isolated_b")
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	models.AutoMigrate(a)
	if b.Migrator().HasTable("books") {
		t.Error("Expected separate in-memory databases")
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("readlog.db"); got != "readlog.db?_busy_timeout=5000" {
		t.Errorf("unexpected dsn %s", got)
	}
	if got := sqliteDSN("readlog.db?_fk=1"); got != "readlog.db?_fk=1" {
		t.Errorf("expected dsn with params to be kept, got %s", got)
	}
}
