// Package pkgdetect discovers repositories and their packages from build
// manifests. Package membership feeds ranking only; no correctness depends
// on it.
package pkgdetect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cimcp/cimcp/internal/store"
)

// manifestNames are the build manifests that mark a package root.
var manifestNames = map[string]bool{
	"package.json": true,
	"go.mod":       true,
	"Cargo.toml":   true,
}

var prunedDirs = map[string]bool{
	".git": true, "node_modules": true, "dist": true, "build": true, "target": true,
}

// Detect walks the repository roots, upserting repository and package rows.
// relativize converts an absolute path to the stored repository-relative
// form.
func Detect(st *store.Store, repoRoots []string, relativize func(string) string) error {
	for _, root := range repoRoots {
		repo := store.Repository{
			ID:       hashID(root),
			RootPath: root,
			Name:     filepath.Base(root),
		}
		if err := st.UpsertRepository(repo); err != nil {
			return fmt.Errorf("upsert repository %s: %w", root, err)
		}

		err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if prunedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && d.Name() != "." && p != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !manifestNames[d.Name()] {
				return nil
			}
			rel := relativize(p)
			pkg := store.Package{
				ID:           hashID(rel),
				RepositoryID: repo.ID,
				ManifestPath: rel,
				Name:         packageName(p, d.Name()),
			}
			if err := st.UpsertPackage(pkg); err != nil {
				return fmt.Errorf("upsert package %s: %w", rel, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func hashID(s string) string {
	return fmt.Sprintf("pkg-%016x", xxhash.Sum64String(s))
}

var (
	goModuleRe  = regexp.MustCompile(`(?m)^module\s+(\S+)`)
	cargoNameRe = regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`)
)

// packageName extracts the declared name from a manifest, falling back to
// the directory name.
func packageName(manifestPath, manifestName string) string {
	fallback := filepath.Base(filepath.Dir(manifestPath))
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fallback
	}
	switch manifestName {
	case "package.json":
		var pj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &pj); err == nil && pj.Name != "" {
			return pj.Name
		}
	case "go.mod":
		if m := goModuleRe.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	case "Cargo.toml":
		if m := cargoNameRe.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	return fallback
}
