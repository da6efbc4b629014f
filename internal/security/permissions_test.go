package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckFilePermissions(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		err := CheckFilePermissions(filepath.Join(t.TempDir(), "missing"), 0600)
		if err != nil {
			t.Errorf("CheckFilePermissions() on missing file = %v, want nil", err)
		}
	})

	t.Run("tightens loose permissions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		if err := CheckFilePermissions(path, 0600); err != nil {
			t.Fatalf("CheckFilePermissions() failed: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Failed to stat file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
		}
	})

	t.Run("leaves correct permissions alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.db")
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		if err := CheckFilePermissions(path, 0600); err != nil {
			t.Errorf("CheckFilePermissions() failed: %v", err)
		}
	})
}

func TestEnsureSecurePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	dbPath := filepath.Join(tmpDir, "data.db")

	os.WriteFile(configPath, []byte("{}"), 0644)
	os.WriteFile(dbPath, []byte("x"), 0644)
	os.WriteFile(dbPath+"-wal", []byte("x"), 0644)

	EnsureSecurePermissions(configPath, dbPath)

	for _, path := range []string{configPath, dbPath, dbPath + "-wal"} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Failed to stat %s: %v", path, err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("%s permissions = %o, want 0600", path, info.Mode().Perm())
		}
	}
}
