//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)

	ctx := context.Background()

	for _, table := range []string{
		"ad_accounts", "campaigns", "ad_sets", "ads", "daily_insights",
		"leads", "lead_field_values", "field_mappings", "sync_logs",
		"subscriptions", "rule_mappings",
	} {
		var exists bool
		err := engineDB.DB.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestEngineDB_Reset(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	_, err := engineDB.DB.Exec(ctx, "INSERT INTO sync_logs (type, status) VALUES ('spend', 'success')")
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	engineDB.Reset(t)

	var count int
	if err := engineDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM sync_logs").Scan(&count); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty sync_logs after reset, got %d", count)
	}
}

func TestGetTestRedis_Ping(t *testing.T) {
	client := GetTestRedis(t)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
