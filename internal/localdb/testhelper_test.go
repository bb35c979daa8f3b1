package localdb

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	if DBClient != nil {
		_ = DBClient.Close()
		DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		DBClient = nil
	})
}
