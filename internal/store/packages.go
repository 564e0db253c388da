package store

import (
	"database/sql"
	"strings"
)

// Repository is a configured source root.
type Repository struct {
	ID       string
	RootPath string
	Name     string
}

// Package is one detected manifest (package.json, go.mod, Cargo.toml).
type Package struct {
	ID           string
	RepositoryID string
	ManifestPath string
	Name         string
}

// UpsertRepository inserts or updates a repository row.
func (s *Store) UpsertRepository(r Repository) error {
	_, err := s.DB.Exec(
		`INSERT OR REPLACE INTO repositories (id, root_path, name) VALUES (?,?,?)`,
		r.ID, r.RootPath, r.Name,
	)
	return err
}

// UpsertPackage inserts or updates a package row.
func (s *Store) UpsertPackage(p Package) error {
	var repo any
	if p.RepositoryID != "" {
		repo = p.RepositoryID
	}
	_, err := s.DB.Exec(
		`INSERT OR REPLACE INTO packages (id, repository_id, manifest_path, name) VALUES (?,?,?,?)`,
		p.ID, repo, p.ManifestPath, p.Name,
	)
	return err
}

// AllPackages returns every detected package.
func (s *Store) AllPackages() ([]Package, error) {
	rows, err := s.DB.Query(`SELECT id, COALESCE(repository_id, ''), manifest_path, name FROM packages`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.RepositoryID, &p.ManifestPath, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PackageForFile returns the id of the deepest package whose manifest
// directory is a prefix of the file path; "" when none matches.
func (s *Store) PackageForFile(filePath string) (string, error) {
	pkgs, err := s.AllPackages()
	if err != nil {
		return "", err
	}
	best := ""
	bestLen := -1
	for _, p := range pkgs {
		dir := p.ManifestPath
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			dir = dir[:i]
		} else {
			dir = ""
		}
		if dir != "" && !strings.HasPrefix(filePath, dir+"/") {
			continue
		}
		if len(dir) > bestLen {
			best = p.ID
			bestLen = len(dir)
		}
	}
	return best, nil
}

// PackageByID fetches one package row; (nil, nil) when absent.
func (s *Store) PackageByID(id string) (*Package, error) {
	var p Package
	err := s.DB.QueryRow(
		`SELECT id, COALESCE(repository_id, ''), manifest_path, name FROM packages WHERE id = ?`, id,
	).Scan(&p.ID, &p.RepositoryID, &p.ManifestPath, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
