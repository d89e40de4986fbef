package store

import "database/sql"

// SetImportedFileHash records the content hash of an imported chunk file so
// unchanged files are skipped on later runs.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO import_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = ?`,
		path, hash, hash,
	)
	return err
}

// GetImportedFileHash returns the recorded hash for a path.
// Returns empty string and nil error if the path was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM import_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}
