package cicheck

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func TestScanFlagsUnauthorizedWrite(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "risky.go", `package x

func f() {
	pool.Exec(ctx, "UPDATE teams SET state = $1 WHERE id = $2", s, id)
}
`)

	violations, err := Scan(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(violations), violations)
	}
	if violations[0].Line != 4 {
		t.Errorf("expected violation on line 4, got %d", violations[0].Line)
	}
}

func TestScanAllowsAuthorizedWrite(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "safe.go", `package x

func f() {
	writeauth.WithPipelineTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "UPDATE teams SET state = $1 WHERE id = $2", s, id)
		return err
	})
}
`)

	violations, err := Scan(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %+v", violations)
	}
}

func TestScanRespectsAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "legacy_migration.go", `package x

func f() {
	pool.Exec(ctx, "DELETE FROM matches WHERE id = $1", id)
}
`)

	violations, err := Scan(Options{Dirs: []string{dir}, Allowlist: []string{path}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected allowlisted file to be exempt, got %+v", violations)
	}
}

func TestScanIgnoresUnprotectedTables(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "staging.go", `package x

func f() {
	pool.Exec(ctx, "INSERT INTO staging_games (source_match_key) VALUES ($1)", key)
}
`)

	violations, err := Scan(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected staging writes to be ignored, got %+v", violations)
	}
}
