package store

import (
	"io/fs"
	"path"
	"regexp"
	"testing"
)

func TestMigrationsExistForEveryDialect(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)
	byDialect := map[Dialect]map[string]bool{}

	for _, dialect := range []Dialect{DialectPostgres, DialectSQLite} {
		entries, err := fs.ReadDir(migrationFS, path.Join("migrations", string(dialect)))
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}
		versions := map[string]bool{}
		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				t.Fatalf("unexpected file %s in %s migrations", entry.Name(), dialect)
			}
			if versions[match[1]] {
				t.Fatalf("duplicate version %s in %s migrations", match[1], dialect)
			}
			versions[match[1]] = true
		}
		if len(versions) == 0 {
			t.Fatalf("no %s migrations discovered", dialect)
		}
		byDialect[dialect] = versions
	}

	for version := range byDialect[DialectPostgres] {
		if !byDialect[DialectSQLite][version] {
			t.Fatalf("version %s has no sqlite counterpart", version)
		}
	}
	if len(byDialect[DialectPostgres]) != len(byDialect[DialectSQLite]) {
		t.Fatalf("dialects disagree on migration count: %d vs %d", len(byDialect[DialectPostgres]), len(byDialect[DialectSQLite]))
	}
}
