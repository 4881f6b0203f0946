package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

var testSource = Source{
	Dir: "sql",
	FS: fstest.MapFS{
		"sql/20261019_120000_create_scenes.up.sql": {Data: []byte(
			"CREATE TABLE test_scenes (id TEXT PRIMARY KEY, name TEXT NOT NULL);")},
		"sql/20261019_120000_create_scenes.down.sql": {Data: []byte("DROP TABLE test_scenes;")},
		"sql/20261019_130000_add_index.up.sql": {Data: []byte(
			"CREATE INDEX idx_test_scenes_name ON test_scenes(name);")},
		"sql/20261019_130000_add_index.down.sql": {Data: []byte("DROP INDEX idx_test_scenes_name;")},
		"sql/README.md":                          {Data: []byte("ignored")},
	},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "test_scenes") {
		t.Fatal("table test_scenes not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].Version != "20261019_120000" {
		t.Errorf("first applied = %s, want oldest first", applied[0].Version)
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateDown verifies migration rollback one step at a time.
func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	_, pending, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "add_index" {
		t.Fatalf("pending = %+v, want only add_index", pending)
	}
	if !tableExists(t, db, "test_scenes") {
		t.Fatal("first rollback removed too much")
	}

	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_scenes") {
		t.Error("table test_scenes still exists after rollback")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Errorf("MigrateDown() on empty schema error = %v", err)
	}
}

// TestMigrateNoMigrations verifies an empty source is a no-op.
func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	for _, src := range []Source{{}, {FS: fstest.MapFS{}, Dir: "missing"}} {
		if err := db.Migrate(ctx, src); err != nil {
			t.Errorf("Migrate(%+v) error = %v", src, err)
		}
	}
}

// TestMigrateFailureKeepsEarlier verifies per-migration transactions.
func TestMigrateFailureKeepsEarlier(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	src := Source{FS: fstest.MapFS{
		"20261019_120000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20261019_130000_bad.up.sql":  {Data: []byte("CREATE TABLE nope (;")},
	}}
	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() expected error for bad SQL")
	}
	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration was rolled back")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20261019_120000_create_channels.up.sql",
			wantVersion: "20261019_120000",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20261019_120000_create_channels.down.sql",
			wantVersion: "20261019_120000",
			wantIsUp:    false,
			wantOk:      true,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing direction",
			filename: "20261019_120000_create_channels.sql",
			wantOk:   false,
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok {
				if version != tt.wantVersion {
					t.Errorf("version = %v, want %v", version, tt.wantVersion)
				}
				if isUp != tt.wantIsUp {
					t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
				}
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261019_120000_create_channels.up.sql", "create_channels"},
		{"20261019_120000_initial_schema.down.sql", "initial_schema"},
		{"20261019_120000_add_source_to_changes.up.sql", "add_source_to_changes"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := extractMigrationName(tt.filename)
			if got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
