package db

import (
	"path/filepath"
	"testing"
)

// TestTarget returns a SQLite target backed by a file in t.TempDir().
func TestTarget(t *testing.T) Target {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	target, err := ParseTarget("sqlite://" + path)
	if err != nil {
		t.Fatalf("parse test target: %v", err)
	}
	return target
}
