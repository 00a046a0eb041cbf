// Package vector caches embeddings in PostgreSQL using the pgvector extension.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/store"
)

// Schema is applied by Migrate. The vector column is left without a fixed
// dimension so one table can hold several models.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS embedding_cache (
	model      TEXT NOT NULL,
	text_hash  TEXT NOT NULL,
	text       TEXT NOT NULL,
	vector     vector NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (model, text_hash)
);
`

type StoreImpl struct {
	db *pgxpool.Pool
}

var _ store.EmbeddingCache = (*StoreImpl)(nil)

func NewStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, fmt.Errorf("vector store DSN cannot be empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector store DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping vector store: %w", err)
	}
	log.Info("Connected to PostgreSQL embedding cache.")
	return &StoreImpl{db: pool}, nil
}

func (vs *StoreImpl) Migrate(ctx context.Context) error {
	if _, err := vs.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply embedding cache schema: %w", err)
	}
	return nil
}

func (vs *StoreImpl) Close() error {
	if vs.db != nil {
		vs.db.Close()
	}
	return nil
}

func (vs *StoreImpl) Ping(ctx context.Context) error {
	if vs.db == nil {
		return fmt.Errorf("vector store connection is not initialized")
	}
	return vs.db.Ping(ctx)
}

// GetEmbeddings returns the cached vectors for the texts it knows. Missing
// texts are simply absent from the map.
func (vs *StoreImpl) GetEmbeddings(ctx context.Context, model string, texts []string) (map[string]models.Vector, error) {
	out := make(map[string]models.Vector, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = TextHash(t)
	}

	rows, err := vs.db.Query(ctx,
		`SELECT text, vector FROM embedding_cache WHERE model = $1 AND text_hash = ANY($2)`, model, hashes)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			text string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&text, &vec); err != nil {
			return nil, fmt.Errorf("scan cached embedding: %w", err)
		}
		out[text] = models.Vector(vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached embeddings: %w", err)
	}
	log.Debugf("Embedding cache hit %d/%d for model %s", len(out), len(texts), model)
	return out, nil
}

// PutEmbeddings upserts vectors in a single batch.
func (vs *StoreImpl) PutEmbeddings(ctx context.Context, model string, vectors map[string]models.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for text, v := range vectors {
		batch.Queue(
			`INSERT INTO embedding_cache (model, text_hash, text, vector) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (model, text_hash) DO UPDATE SET vector = EXCLUDED.vector`,
			model, TextHash(text), text, pgvector.NewVector([]float32(v)))
	}
	br := vs.db.SendBatch(ctx, batch)
	defer br.Close()
	for range vectors {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store cached embedding: %w", err)
		}
	}
	return nil
}

// TextHash is the cache key for a text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
