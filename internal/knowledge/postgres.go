package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresTable holds documents when no table is configured.
const DefaultPostgresTable = "knowledge_documents"

// PostgresIndex stores documents in a pgvector column and lets the server
// rank them by L2 distance.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	table    string
	embedder Embedder
}

// OpenPostgres connects to dsn. Call Migrate before the first Upsert.
func OpenPostgres(ctx context.Context, dsn, table string, embedder Embedder) (*PostgresIndex, error) {
	if table == "" {
		table = DefaultPostgresTable
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresIndex{pool: pool, table: table, embedder: embedder}, nil
}

// Close releases the pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}

// Migrate creates the vector extension and the document table with the
// given embedding dimension.
func (p *PostgresIndex) Migrate(ctx context.Context, dim int) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        TEXT PRIMARY KEY,
	document  TEXT NOT NULL,
	doc_type  TEXT NOT NULL,
	source    TEXT NOT NULL DEFAULT '',
	equipment TEXT NOT NULL DEFAULT '',
	profile   TEXT NOT NULL DEFAULT '',
	embedding vector(%d) NOT NULL
)`, p.ident(), dim)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Upsert embeds and stores docs in a single batch.
func (p *PostgresIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed: expected %d vectors, got %d", len(docs), len(vecs))
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, document, doc_type, source, equipment, profile, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
ON CONFLICT (id) DO UPDATE SET
	document = EXCLUDED.document,
	doc_type = EXCLUDED.doc_type,
	source = EXCLUDED.source,
	equipment = EXCLUDED.equipment,
	profile = EXCLUDED.profile,
	embedding = EXCLUDED.embedding`, p.ident())

	batch := &pgx.Batch{}
	for i, d := range docs {
		batch.Queue(stmt, d.ID, d.Text, d.Metadata.DocType, d.Metadata.Source, d.Metadata.Equipment, d.Metadata.Profile, vectorLiteral(vecs[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Query implements Index.
func (p *PostgresIndex) Query(ctx context.Context, text string, n int, filter Filter) ([]Match, error) {
	qvec, err := embedOne(ctx, p.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, document, doc_type, source, equipment, profile, embedding <-> $1::vector AS distance
FROM %s
WHERE cardinality($2::text[]) = 0 OR doc_type = ANY($2)
ORDER BY distance, id
LIMIT $3`, p.ident())

	docTypes := filter.DocTypes
	if docTypes == nil {
		docTypes = []string{}
	}
	rows, err := p.pool.Query(ctx, query, vectorLiteral(qvec), docTypes, n)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Document, &m.Metadata.DocType, &m.Metadata.Source, &m.Metadata.Equipment, &m.Metadata.Profile, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return matches, nil
}

func (p *PostgresIndex) ident() string {
	return pgx.Identifier{p.table}.Sanitize()
}

// vectorLiteral renders v in pgvector's text form, e.g. "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
