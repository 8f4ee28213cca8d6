//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studycompanion/studycompanion/internal/testutil"
)

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)

	tables := []string{
		"users",
		"progress_records",
		"study_materials",
		"summaries",
		"chat_messages",
		"usage_events",
		"daily_usage",
		"schema_migrations",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_ProgressCompletionCheck(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	repo := NewWithPool(pool)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO progress_records (id, user_id, subject, activity, completion)
		VALUES ('p1', $1, 'math', 'quiz', 101)
	`, user.ID)
	if err == nil {
		t.Fatal("expected check constraint violation for completion 101")
	}
}

func TestIntegrationMigration_UserDeleteCascades(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	repo := NewWithPool(pool)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO progress_records (id, user_id, subject, activity, completion)
		VALUES ('cascade-p1', $1, 'biology', 'reading', 40)
	`, user.ID); err != nil {
		t.Fatalf("insert progress: %v", err)
	}

	if _, err := pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM progress_records WHERE user_id = $1`, user.ID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected progress rows to be deleted with the user, found %d", n)
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, _ := testutil.NewTestPool(t)
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	if err := testutil.MigrateUp(ctx, dbURL); err != nil {
		t.Fatalf("second migrate up should be a no-op: %v", err)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}
