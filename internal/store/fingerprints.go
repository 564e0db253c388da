package store

import "database/sql"

// Fingerprint is the cheap change detector for one file.
type Fingerprint struct {
	MtimeNs   int64
	SizeBytes int64
}

// FingerprintFor returns the stored fingerprint; (nil, nil) when absent.
func (s *Store) FingerprintFor(filePath string) (*Fingerprint, error) {
	var fp Fingerprint
	err := s.DB.QueryRow(
		`SELECT mtime_ns, size_bytes FROM file_fingerprints WHERE file_path = ?`, filePath,
	).Scan(&fp.MtimeNs, &fp.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// AllFingerprintPaths returns every file path with a stored fingerprint.
func (s *Store) AllFingerprintPaths() ([]string, error) {
	rows, err := s.DB.Query(`SELECT file_path FROM file_fingerprints`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
