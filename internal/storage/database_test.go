package storage

import (
	"testing"
	"time"

	"chatstream/internal/config"
)

func TestOpenRequiresDatabaseConfig(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{}}
	if _, err := Open("sqlite3", cfg); err == nil {
		t.Fatalf("expected error for missing sqlite config")
	}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite3"); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty messages table, got %d", count)
	}
}

func TestSingleActiveIndexRejectsSecondActiveRow(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	insert := `INSERT INTO model_configurations (provider, model, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if _, err := db.Exec(insert, "openai", "gpt-4o-mini", 1, now, now); err != nil {
		t.Fatalf("insert first active: %v", err)
	}
	if _, err := db.Exec(insert, "claude", "claude-3-5-haiku", 0, now, now); err != nil {
		t.Fatalf("insert inactive: %v", err)
	}
	if _, err := db.Exec(insert, "ollama", "llama3.1", 0, now, now); err != nil {
		t.Fatalf("insert second inactive: %v", err)
	}
	if _, err := db.Exec(insert, "gemini", "gemini-2.0-flash", 1, now, now); err == nil {
		t.Fatalf("expected unique violation for second active configuration")
	}
}

func TestMessagesRoleCheck(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = db.Exec(`INSERT INTO messages (role, content, created_at) VALUES (?, ?, ?)`, "system", "x", time.Now().UTC())
	if err == nil {
		t.Fatalf("expected role check violation")
	}
}
