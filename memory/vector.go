// Semantic recall over archived turns - OpenAI embeddings + cosine scan

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// ScoredTurn is a semantic search hit.
type ScoredTurn struct {
	Turn  Turn
	Score float32
}

// VectorStore indexes turn content with OpenAI embeddings and answers
// nearest-neighbor queries with a linear cosine scan. The corpus is a
// personal conversation history; an ANN index would be overkill.
type VectorStore struct {
	mu     sync.Mutex
	db     *sql.DB
	client *openai.Client
	model  string
}

// NewVectorStore builds a vector store on an existing database handle
// (usually the archive database). Returns an error when no API key is
// available; semantic recall is optional and callers treat nil as disabled.
func NewVectorStore(db *sql.DB, apiKey, model string) (*VectorStore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("semantic recall requires an OpenAI API key")
	}
	if model == "" {
		model = defaultEmbeddingModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	v := &VectorStore{
		db:     db,
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
	if err := v.initSchema(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VectorStore) initSchema() error {
	_, err := v.db.Exec(`
		CREATE TABLE IF NOT EXISTS turn_vectors (
			turn_id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT,
			created_at DATETIME,
			vector BLOB NOT NULL
		)
	`)
	return err
}

// Index embeds a turn and stores its vector. Already-indexed turns are
// skipped.
func (v *VectorStore) Index(ctx context.Context, t Turn) error {
	vec, err := v.embed(ctx, t.Content)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err = v.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO turn_vectors (turn_id, role, content, created_at, vector) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.Role, t.Content, t.Timestamp, blob)
	return err
}

// Search embeds the query and returns the top-k most similar turns.
func (v *VectorStore) Search(ctx context.Context, query string, limit int) ([]ScoredTurn, error) {
	if limit <= 0 {
		limit = 5
	}
	qvec, err := v.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := v.db.QueryContext(ctx, "SELECT turn_id, role, content, created_at, vector FROM turn_vectors")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ScoredTurn
	for rows.Next() {
		var t Turn
		var blob []byte
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.Timestamp, &blob); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal(blob, &vec); err != nil {
			continue // stale row from an older embedding model
		}
		hits = append(hits, ScoredTurn{Turn: t, Score: cosine(qvec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Partial selection sort; limit is small
	for i := 0; i < len(hits) && i < limit; i++ {
		best := i
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[best].Score {
				best = j
			}
		}
		hits[i], hits[best] = hits[best], hits[i]
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (v *VectorStore) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := v.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(v.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
