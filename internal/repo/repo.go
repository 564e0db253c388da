// Package repo locates the repository root used to default BASE_DIR.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindRoot finds the repository root directory: the nearest ancestor
// containing .git, or the current working directory when none exists.
func FindRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd, nil
}
