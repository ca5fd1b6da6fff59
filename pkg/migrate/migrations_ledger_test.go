package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consertaja/billing/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestSubscriptionsMigrationEnforcesInvariants(t *testing.T) {
	content := readMigration(t, "*_create_subscriptions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS subscriptions",
		"FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE",
		"idx_subscriptions_one_countable",
		"WHERE status IN ('active', 'overdue')",
		"DROP TABLE IF EXISTS subscriptions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReferralGrantsMigrationEnforcesPairUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_referral_grants.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS referral_grants",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_referral_grants_pair",
		"ON referral_grants (referrer_id, referred_id)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
