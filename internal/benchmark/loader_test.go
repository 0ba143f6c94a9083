package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchmark.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadWithHeader(t *testing.T) {
	path := writeFile(t, "tenor_days,median_yield_pct,q1_yield_pct,q3_yield_pct\n30,5.0,3.0,7.0\n90,8.0,6.0,10.0\n")

	rows, err := NewLoader(path, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TenorDays != 30 || rows[0].MedianYieldPct != 5 || rows[0].Q1YieldPct != 3 || rows[0].Q3YieldPct != 7 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestLoadWithoutHeader(t *testing.T) {
	path := writeFile(t, "30,5.0,3.0,7.0\n")

	rows, err := NewLoader(path, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestLoadMissingFileYieldsEmptyTable(t *testing.T) {
	rows, err := NewLoader(filepath.Join(t.TempDir(), "absent.csv"), zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("missing file should degrade to an empty table: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestLoadRejectsBadColumnCount(t *testing.T) {
	path := writeFile(t, "30,5.0,3.0\n")
	if _, err := NewLoader(path, zerolog.Nop()).Load(); err == nil {
		t.Fatal("three columns should fail")
	}
}

func TestLoadRejectsNonNumeric(t *testing.T) {
	path := writeFile(t, "30,five,3.0,7.0\n")
	if _, err := NewLoader(path, zerolog.Nop()).Load(); err == nil {
		t.Fatal("non-numeric fields should fail")
	}
}
