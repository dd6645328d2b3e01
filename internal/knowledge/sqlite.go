package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	doc_type   TEXT NOT NULL,
	source     TEXT,
	equipment  TEXT,
	profile    TEXT,
	embedding  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_doc_type ON knowledge_documents(doc_type);
`

// SQLiteIndex keeps documents and their embeddings in a local SQLite file.
// Distances are computed in process, which suits plant-sized corpora.
type SQLiteIndex struct {
	db       *sql.DB
	embedder Embedder
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string, embedder Embedder) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteIndex{db: db, embedder: embedder}, nil
}

// Close closes the underlying database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Upsert embeds and stores docs, replacing rows with the same id.
func (s *SQLiteIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed: expected %d vectors, got %d", len(docs), len(vecs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, d := range docs {
		vecJSON, err := json.Marshal(vecs[i])
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_documents (id, document, doc_type, source, equipment, profile, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   document = excluded.document,
			   doc_type = excluded.doc_type,
			   source = excluded.source,
			   equipment = excluded.equipment,
			   profile = excluded.profile,
			   embedding = excluded.embedding`,
			d.ID, d.Text, d.Metadata.DocType, d.Metadata.Source, d.Metadata.Equipment, d.Metadata.Profile, string(vecJSON),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Query implements Index.
func (s *SQLiteIndex) Query(ctx context.Context, text string, n int, filter Filter) ([]Match, error) {
	qvec, err := embedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	query := `SELECT id, document, doc_type, COALESCE(source, ''), COALESCE(equipment, ''), COALESCE(profile, ''), embedding FROM knowledge_documents`
	var args []any
	if len(filter.DocTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.DocTypes)), ",")
		query += " WHERE doc_type IN (" + placeholders + ")"
		for _, t := range filter.DocTypes {
			args = append(args, t)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m       Match
			vecJSON string
		)
		if err := rows.Scan(&m.ID, &m.Document, &m.Metadata.DocType, &m.Metadata.Source, &m.Metadata.Equipment, &m.Metadata.Profile, &vecJSON); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", m.ID, err)
		}
		m.Distance = l2(qvec, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}
