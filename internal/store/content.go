package store

import (
	"strings"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

// InsertChunk stores one content chunk.
func (s *Store) InsertChunk(c model.ContentChunk) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO content_chunks (id, text, subject, topic, language, similarity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Text, c.Subject, c.Topic, c.Language, c.Similarity,
	)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "insert chunk", err)
	}
	return c.ID, nil
}

// SearchChunks returns chunks for a subject, optionally restricted to a
// topic set, ordered by similarity score when one is present. Topics empty
// means subject-only. An empty result is not an error.
func (s *Store) SearchChunks(subject string, topics []string, language string, limit int) ([]model.ContentChunk, error) {
	query := `SELECT id, text, subject, topic, language, similarity
	          FROM content_chunks WHERE subject = ? AND language = ?`
	args := []any{subject, language}
	if len(topics) > 0 {
		query += ` AND topic IN (?` + strings.Repeat(", ?", len(topics)-1) + `)`
		for _, t := range topics {
			args = append(args, t)
		}
	}
	query += ` ORDER BY similarity IS NULL, similarity DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "query chunks", err)
	}
	defer rows.Close()

	var chunks []model.ContentChunk
	for rows.Next() {
		var c model.ContentChunk
		if err := rows.Scan(&c.ID, &c.Text, &c.Subject, &c.Topic, &c.Language, &c.Similarity); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "scan chunk", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkCount returns the number of stored content chunks.
func (s *Store) ChunkCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM content_chunks`).Scan(&count)
	return count, err
}
