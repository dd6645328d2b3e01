package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []Document {
	return []Document{
		{ID: "wi-07", Text: "Torque station ST18 restart after equipment failure", Metadata: Metadata{DocType: "work_instruction", Equipment: "ST18"}},
		{ID: "br-22", Text: "Batch record for lot 2291 blister line", Metadata: Metadata{DocType: "batch_record"}},
		{ID: "ml-3", Text: "Maintenance log ST18 torque tool recalibrated", Metadata: Metadata{DocType: "maintenance_log", Equipment: "ST18"}},
	}
}

func TestHashEmbedder(t *testing.T) {
	vecs, err := HashEmbedder{}.Embed(context.Background(), []string{"ST18 equipment failure", "ST18 equipment failure", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], DefaultHashDim)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 0.0, l2(vecs[0], vecs[1]), 1e-9)
	assert.InDelta(t, 1.0, l2(vecs[0], vecs[2]), 1e-6, "unit vector vs zero vector")
}

func TestSQLiteIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "knowledge.db"), HashEmbedder{})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(ctx, sampleDocs()))
	// A second upsert of the same ids replaces rows.
	require.NoError(t, idx.Upsert(ctx, sampleDocs()[:1]))

	all, err := idx.Query(ctx, "ST18 equipment failure", 10, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "wi-07", all[0].ID)
	assert.Equal(t, "ST18", all[0].Metadata.Equipment)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
	}

	filtered, err := idx.Query(ctx, "ST18 equipment failure", 10, Filter{DocTypes: []string{"batch_record", "maintenance_log"}})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, m := range filtered {
		assert.NotEqual(t, "work_instruction", m.Metadata.DocType)
	}

	limited, err := idx.Query(ctx, "anything", 1, Filter{})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestChromaIndex(t *testing.T) {
	var upserted chromaUpsertRequest
	var queried chromaQueryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/collections":
			w.Write([]byte(`{"id":"c-123","name":"shopfloor_knowledge"}`))
		case "/api/v1/collections/c-123/upsert":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			w.Write([]byte(`true`))
		case "/api/v1/collections/c-123/query":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&queried))
			w.Write([]byte(`{
				"ids": [["wi-07", "ml-3"]],
				"documents": [["restart procedure", "tool log"]],
				"metadatas": [[{"doc_type": "work_instruction", "equipment": "ST18"}, {"doc_type": "maintenance_log"}]],
				"distances": [[0.2, 0.6]]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	idx := NewChromaIndex(server.URL, "", HashEmbedder{Dim: 8})
	require.NoError(t, idx.Upsert(context.Background(), sampleDocs()))
	assert.Equal(t, []string{"wi-07", "br-22", "ml-3"}, upserted.IDs)
	assert.Len(t, upserted.Embeddings, 3)
	assert.Equal(t, "batch_record", upserted.Metadatas[1]["doc_type"])

	matches, err := idx.Query(context.Background(), "ST18", 10, Filter{DocTypes: []string{"work_instruction", "maintenance_log"}})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "wi-07", matches[0].ID)
	assert.Equal(t, "ST18", matches[0].Metadata.Equipment)
	assert.Equal(t, 0.6, matches[1].Distance)

	assert.Equal(t, 10, queried.NResults)
	require.Len(t, queried.QueryEmbeddings, 1)
	assert.Len(t, queried.QueryEmbeddings[0], 8)
	where, err := json.Marshal(queried.Where)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_type":{"$in":["work_instruction","maintenance_log"]}}`, string(where))
}

func TestChromaIndex_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewChromaIndex(server.URL, "c", HashEmbedder{}).Query(context.Background(), "x", 1, Filter{})
	assert.Error(t, err)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0]", vectorLiteral([]float32{0.5, -1, 0}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestOpenIndex(t *testing.T) {
	idx, closeFn, err := OpenIndex(context.Background(), Config{Backend: "none"}, HashEmbedder{})
	require.NoError(t, err)
	assert.Nil(t, idx)
	closeFn()

	_, _, err = OpenIndex(context.Background(), Config{Backend: "sqlite"}, HashEmbedder{})
	assert.Error(t, err)
	_, _, err = OpenIndex(context.Background(), Config{Backend: "faiss"}, HashEmbedder{})
	assert.Error(t, err)

	idx, closeFn, err = OpenIndex(context.Background(), Config{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "k.db")}, HashEmbedder{})
	require.NoError(t, err)
	defer closeFn()
	_, ok := idx.(*SQLiteIndex)
	assert.True(t, ok)
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work_instructions"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "misc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work_instructions", "wi-07.md"), []byte("# Restart ST18\nCheck torque."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "misc", "dev-1.md"), []byte("---\ndoc_type: deviations\nequipment: B02\n---\nDeviation DEV-1 body\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "misc", "empty.txt"), []byte("   "), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "misc", "image.png"), []byte("png"), 0o644))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "misc/dev-1.md", docs[0].ID)
	assert.Equal(t, "deviation", docs[0].Metadata.DocType)
	assert.Equal(t, "B02", docs[0].Metadata.Equipment)
	assert.Equal(t, "Deviation DEV-1 body", docs[0].Text)

	assert.Equal(t, "work_instructions/wi-07.md", docs[1].ID)
	assert.Equal(t, "work_instruction", docs[1].Metadata.DocType)
	assert.Equal(t, "work_instructions/wi-07.md", docs[1].Metadata.Source)
}

func TestLoadDocuments_BadFrontmatter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.md"), []byte("---\ndoc_type: sop\nno closing"), 0o644))
	_, err := LoadDocuments(dir)
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "knowledge.db"), HashEmbedder{})
	require.NoError(t, err)
	defer idx.Close()

	docs := make([]Document, 0, ingestBatch+5)
	for i := 0; i < ingestBatch+5; i++ {
		docs = append(docs, Document{ID: fmt.Sprintf("doc-%03d", i), Text: fmt.Sprintf("procedure %d", i), Metadata: Metadata{DocType: "sop"}})
	}
	require.NoError(t, Ingest(ctx, idx, HashEmbedder{}, docs))

	all, err := idx.Query(ctx, "procedure", len(docs)+10, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, len(docs))

	err = Ingest(ctx, readOnlyIndex{}, HashEmbedder{}, docs)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, Ingest(ctx, nil, HashEmbedder{}, docs), ErrIndexUnavailable)
}

type readOnlyIndex struct{}

func (readOnlyIndex) Query(context.Context, string, int, Filter) ([]Match, error) { return nil, nil }
