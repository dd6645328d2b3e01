package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
	"github.com/bgdnvk/shopfloor/internal/knowledge"
	"github.com/bgdnvk/shopfloor/internal/llm"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// loadProfiles reads the profile document named by profiles.source and
// applies the optional profiles.active override.
func loadProfiles(ctx context.Context) (*profile.Store, error) {
	debug := viper.GetBool("debug")
	src, err := profile.ParseSource(viper.GetString("profiles.source"))
	if err != nil {
		return nil, err
	}
	store, err := profile.Load(ctx, src, debug)
	if err != nil {
		return nil, err
	}
	if name := viper.GetString("profiles.active"); name != "" {
		if !store.Switch(name) {
			return nil, fmt.Errorf("%w: profiles.active %q is not defined in %s", profile.ErrConfig, name, src)
		}
	}
	return store, nil
}

// snapshotSource returns captured files when snapshotFile is set, otherwise
// the runtime HTTP client.
func snapshotSource(snapshotFile, signalsFile string) diagnostic.SnapshotSource {
	debug := viper.GetBool("debug")
	if snapshotFile != "" {
		return telemetry.FileSource{SnapshotPath: snapshotFile, SignalsPath: signalsFile, Debug: debug}
	}
	return telemetry.NewClient(telemetry.Options{
		BaseURL:      viper.GetString("runtime.base_url"),
		SnapshotPath: viper.GetString("runtime.snapshot_path"),
		SignalsPath:  viper.GetString("runtime.signals_path"),
		APIKey:       viper.GetString("runtime.api_key"),
		Timeout:      viper.GetDuration("runtime.timeout"),
		Retries:      viper.GetInt("runtime.retries"),
		Debug:        debug,
	})
}

// newEmbedder builds the embedder named by knowledge.embedder. Every
// backend must use the same embedder for ingestion and queries.
func newEmbedder(ctx context.Context) (knowledge.Embedder, error) {
	model := viper.GetString("knowledge.embedding_model")
	switch name := strings.ToLower(viper.GetString("knowledge.embedder")); name {
	case "", "hash":
		return knowledge.HashEmbedder{Dim: knowledge.DefaultHashDim}, nil
	case "openai":
		cfg := llm.ConfigFromViper("openai")
		return llm.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, model), nil
	case "gemini", "gemini-api":
		cfg := llm.ConfigFromViper("gemini-api")
		e, err := llm.NewGeminiEmbedder(ctx, cfg.APIKey, model)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown knowledge.embedder %q (expected hash, openai or gemini)", name)
	}
}

func knowledgeConfig() knowledge.Config {
	return knowledge.Config{
		Backend:          viper.GetString("knowledge.backend"),
		ChromaURL:        viper.GetString("knowledge.chroma.url"),
		ChromaCollection: viper.GetString("knowledge.chroma.collection"),
		SQLitePath:       viper.GetString("knowledge.sqlite.path"),
		PostgresDSN:      viper.GetString("knowledge.postgres.dsn"),
		PostgresTable:    viper.GetString("knowledge.postgres.table"),
	}
}

// openRetriever opens the configured index. A backend that cannot be opened
// is logged and replaced by a nil index so requests degrade instead of
// failing.
func openRetriever(ctx context.Context) (*knowledge.Retriever, func()) {
	opts := knowledge.Options{
		Oversample:  viper.GetInt("knowledge.oversample"),
		MaxDistance: viper.GetFloat64("knowledge.max_distance"),
		TopK:        viper.GetInt("knowledge.top_k"),
		Debug:       viper.GetBool("debug"),
	}
	embedder, err := newEmbedder(ctx)
	if err != nil {
		log.Printf("[knowledge] embedder unavailable, continuing without procedures: %v", err)
		return knowledge.NewRetriever(nil, opts), func() {}
	}
	index, closeIndex, err := knowledge.OpenIndex(ctx, knowledgeConfig(), embedder)
	if err != nil {
		log.Printf("[knowledge] index unavailable, continuing without procedures: %v", err)
		return knowledge.NewRetriever(nil, opts), func() {}
	}
	return knowledge.NewRetriever(index, opts), closeIndex
}

// newModel builds the language model client. A client that cannot be built
// is logged and returned as nil; the composer then answers with
// MODEL_UNAVAILABLE while still reporting the expectation verdict.
func newModel(ctx context.Context, provider string) llm.Model {
	cfg := llm.ConfigFromViper(provider)
	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("[llm] %v", err)
		return nil
	}
	return client
}

// pipeline holds everything a diagnostic command needs.
type pipeline struct {
	profiles  *profile.Store
	snapshots diagnostic.SnapshotSource
	composer  *diagnostic.Composer
	close     func()
}

func newPipeline(ctx context.Context, provider, snapshotFile, signalsFile string) (*pipeline, error) {
	store, err := loadProfiles(ctx)
	if err != nil {
		return nil, err
	}
	snaps := snapshotSource(snapshotFile, signalsFile)
	retriever, closeIndex := openRetriever(ctx)

	composer := diagnostic.NewComposer(snaps, retriever, newModel(ctx, provider), store, diagnostic.Options{
		Timeout: viper.GetDuration("diagnostic.timeout"),
		Debug:   viper.GetBool("debug"),
	})
	return &pipeline{profiles: store, snapshots: snaps, composer: composer, close: closeIndex}, nil
}
