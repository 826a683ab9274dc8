package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedFS_ContainsMigrationFiles(t *testing.T) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		t.Fatalf("failed to read embedded FS: %v", err)
	}

	want := map[string]bool{
		"001_initial_schema.sql":   false,
		"002_audit_events.sql":     false,
		"003_notification_log.sql": false,
	}
	for _, entry := range entries {
		if _, ok := want[entry.Name()]; ok {
			want[entry.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("%s not found in embedded FS", name)
		}
	}
}

func TestEmbeddedFS_MigrationsHaveGooseDirectives(t *testing.T) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		t.Fatalf("failed to read embedded FS: %v", err)
	}

	for _, entry := range entries {
		content, err := FS.ReadFile(entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		s := string(content)
		if !strings.Contains(s, "-- +goose Up") {
			t.Errorf("%s missing '-- +goose Up' directive", entry.Name())
		}
		if !strings.Contains(s, "-- +goose Down") {
			t.Errorf("%s missing '-- +goose Down' directive", entry.Name())
		}
	}
}

func TestEmbeddedFS_InitialSchemaCreatesSubmissions(t *testing.T) {
	content, err := FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		t.Fatalf("failed to read migration file: %v", err)
	}
	if !strings.Contains(string(content), "CREATE TABLE submissions") {
		t.Error("migration missing submissions table creation")
	}
}
