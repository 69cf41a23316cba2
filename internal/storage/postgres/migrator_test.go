package postgres

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_SortsAndPairs(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/migrations/0002_extra.up.sql":   {Data: []byte("CREATE TABLE extra (id INT)")},
		"sql/migrations/0002_extra.down.sql": {Data: []byte("DROP TABLE extra")},
		"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE init (id INT)")},
		"sql/migrations/0001_init.down.sql":  {Data: []byte("DROP TABLE init")},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Fatalf("migrations must be sorted by version: %+v", migrations)
	}
	if migrations[0].Name != "init" || migrations[0].UpSQL == "" || migrations[0].DownSQL == "" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	cases := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "missing down file",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE init (id INT)")},
			},
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   ")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE init")},
			},
		},
		{
			name: "invalid file name",
			fsys: fstest.MapFS{
				"sql/migrations/init.sql": {Data: []byte("CREATE TABLE init (id INT)")},
			},
		},
		{
			name: "name mismatch for version",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE init (id INT)")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("DROP TABLE init")},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadMigrationsFromFS(tc.fsys); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuiltinMigrationsAreWellFormed(t *testing.T) {
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
}
