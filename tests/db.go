package testutil

import (
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database"
)

// PrepareDB connects to the test database, migrates it and empties every table.
// The test is skipped when no database is reachable.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewConfig()
	if conf.Database.Engine == database.EngineMemory {
		t.Skip("database engine is in-memory")
	}
	db, err := database.Open(conf, 1)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE attender_state, exam CASCADE"); err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}
