package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBillsMigrationContainsLedgerColumns(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_bills.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no bills migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bills",
		"processed_balances",
		"processed_event_balances",
		"link_version",
		"USING GIN (participant_user_ids)",
		"DROP TABLE IF EXISTS bills",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
