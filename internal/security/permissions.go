package security

import (
	"fmt"
	"log"
	"os"
)

// CheckFilePermissions verifies that a sensitive file has the expected
// permissions and tightens them if not
func CheckFilePermissions(path string, expectedPerms os.FileMode) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist yet, that's okay
		}
		return fmt.Errorf("failed to check file permissions: %w", err)
	}

	actualPerms := info.Mode().Perm()
	if actualPerms != expectedPerms {
		log.Printf("WARNING: %s has permissions %o, should be %o; fixing", path, actualPerms, expectedPerms)

		if err := os.Chmod(path, expectedPerms); err != nil {
			return fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	return nil
}

// EnsureSecurePermissions keeps the config file and the certificate database
// (including SQLite WAL/SHM sidecars) owner-only
func EnsureSecurePermissions(configPath, dbPath string) {
	if err := CheckFilePermissions(configPath, 0600); err != nil {
		log.Printf("Warning: Could not secure config file permissions: %v", err)
	}

	if err := CheckFilePermissions(dbPath, 0600); err != nil {
		log.Printf("Warning: Could not secure database file permissions: %v", err)
	}

	CheckFilePermissions(dbPath+"-wal", 0600)
	CheckFilePermissions(dbPath+"-shm", 0600)
}
