package indexer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/parser"
)

// prunedDirs are never descended into.
var prunedDirs = map[string]bool{
	".git":   true,
	"dist":   true,
	"build":  true,
	"target": true,
}

// Scan walks every configured repository root and returns the absolute
// paths of indexable files. node_modules is pruned unless explicitly
// enabled.
func Scan(cfg *config.Config) ([]string, error) {
	var files []string
	seen := map[string]bool{}

	for _, root := range cfg.RepoRoots {
		err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if prunedDirs[name] || (name == "node_modules" && !cfg.IndexNodeModules) {
					return filepath.SkipDir
				}
				if strings.HasPrefix(name, ".") && p != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !Selectable(cfg, p) {
				return nil
			}
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// Selectable reports whether a file is indexable: a supported language,
// matching at least one include pattern and no exclude pattern.
func Selectable(cfg *config.Config, absPath string) bool {
	if parser.DetectLang(absPath) == parser.LangUnknown {
		return false
	}
	rel := cfg.RelativeToBase(absPath)

	included := len(cfg.IndexPatterns) == 0
	for _, pat := range cfg.IndexPatterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pat := range cfg.ExcludePatterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			if strings.Contains(pat, "node_modules") && cfg.IndexNodeModules {
				continue
			}
			return false
		}
	}
	return true
}
