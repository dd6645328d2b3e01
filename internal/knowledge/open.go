package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and locates a vector index backend.
type Config struct {
	Backend          string // chroma, sqlite, postgres or none
	ChromaURL        string
	ChromaCollection string
	SQLitePath       string
	PostgresDSN      string
	PostgresTable    string
}

// OpenIndex opens the configured backend. The returned close function is
// never nil. Backend "none" yields a nil Index, which the Retriever treats
// as unavailable.
func OpenIndex(ctx context.Context, cfg Config, embedder Embedder) (Index, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, noop, nil
	case "chroma":
		if cfg.ChromaURL == "" {
			return nil, noop, fmt.Errorf("knowledge.chroma.url is required for the chroma backend")
		}
		return NewChromaIndex(cfg.ChromaURL, cfg.ChromaCollection, embedder), noop, nil
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, noop, fmt.Errorf("knowledge.sqlite.path is required for the sqlite backend")
		}
		idx, err := OpenSQLite(cfg.SQLitePath, embedder)
		if err != nil {
			return nil, noop, err
		}
		return idx, func() { idx.Close() }, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, noop, fmt.Errorf("knowledge.postgres.dsn is required for the postgres backend")
		}
		idx, err := OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresTable, embedder)
		if err != nil {
			return nil, noop, err
		}
		return idx, idx.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
