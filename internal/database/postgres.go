package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
)

// ChunkStore is the C2 chunk store gateway and C11 dual-embedding search
// backend. It owns the document and chunk tables and is the only component
// that writes either.
type ChunkStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewChunkStore connects to Postgres/pgvector and ensures the schema exists.
func NewChunkStore(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*ChunkStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	store := &ChunkStore{pool: pool, logger: log.WithService("chunk_store")}

	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store.logger.Info("connected to chunk store", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return store, nil
}

func (s *ChunkStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	object_key TEXT NOT NULL UNIQUE,
	mime_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	state TEXT NOT NULL,
	stage TEXT NOT NULL,
	progress INT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chunks (
	id UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents(id),
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	context TEXT NULL,
	chunk_index INT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	embedding_type TEXT NOT NULL,
	text_embedding vector(768) NULL,
	multimodal_embedding vector(1408) NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS chunks_user_idx ON chunks (user_id);

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'chunks_text_embedding_idx') THEN
		EXECUTE 'CREATE INDEX chunks_text_embedding_idx ON chunks USING ivfflat (text_embedding vector_cosine_ops) WITH (lists = 100)';
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'chunks_multimodal_embedding_idx') THEN
		EXECUTE 'CREATE INDEX chunks_multimodal_embedding_idx ON chunks USING ivfflat (multimodal_embedding vector_cosine_ops) WITH (lists = 100)';
	END IF;
END
$$;
`
	_, err := s.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensure chunk store schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *ChunkStore) Close() {
	s.pool.Close()
}

// HealthCheck verifies the database is reachable.
func (s *ChunkStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateDocument inserts a new pending document row. ON CONFLICT on
// object_key is a no-op so redelivered upload-completion events don't
// clobber an in-flight or completed document.
func (s *ChunkStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, user_id, filename, object_key, mime_type, size, state, stage, progress, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (object_key) DO NOTHING`,
		doc.ID, doc.UserID, doc.Filename, doc.ObjectKey, doc.MimeType, doc.Size,
		doc.State, doc.Stage, doc.Progress, doc.Error, doc.CreatedAt, doc.UpdatedAt)
	s.logger.LogDatabaseQuery("insert_document", time.Since(start).Seconds()*1000, err)
	return err
}

// FindDocumentByObjectKey resolves the document row backing an object-store
// key. Used by the queue dispatcher (C10) to map a finalized-object event
// to its document id. Returns (nil, nil) when no row exists yet.
func (s *ChunkStore) FindDocumentByObjectKey(ctx context.Context, objectKey string) (*models.Document, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, filename, object_key, mime_type, size, state, stage, progress, error, created_at, updated_at
		FROM documents WHERE object_key = $1`, objectKey)

	doc, err := scanDocument(row)
	duration := time.Since(start).Seconds() * 1000
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.LogDatabaseQuery("find_document_by_object_key", duration, nil)
		return nil, nil
	}
	s.logger.LogDatabaseQuery("find_document_by_object_key", duration, err)
	if err != nil {
		return nil, fmt.Errorf("find document by object key: %w", err)
	}
	return doc, nil
}

// GetDocument fetches a document row by id.
func (s *ChunkStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, filename, object_key, mime_type, size, state, stage, progress, error, created_at, updated_at
		FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	s.logger.LogDatabaseQuery("get_document", time.Since(start).Seconds()*1000, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.ObjectKey, &doc.MimeType, &doc.Size,
		&doc.State, &doc.Stage, &doc.Progress, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocumentProgress advances a document's state/stage/progress under a
// row lock, rejecting any transition CanTransitionTo disallows so readers
// never observe a backward-moving state.
func (s *ChunkStore) UpdateDocumentProgress(ctx context.Context, id uuid.UUID, next models.DocumentState, stage string, progress int, errMsg string) error {
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.Document
	err = tx.QueryRow(ctx, `SELECT state, progress FROM documents WHERE id = $1 FOR UPDATE`, id).
		Scan(&current.State, &current.Progress)
	if err != nil {
		s.logger.LogDatabaseQuery("update_document_progress", time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("lock document %s: %w", id, err)
	}

	if !current.CanTransitionTo(next) {
		return fmt.Errorf("document %s: illegal transition %s -> %s", id, current.State, next)
	}
	if progress < current.Progress && next != models.DocumentStateFailed {
		progress = current.Progress
	}

	_, err = tx.Exec(ctx, `UPDATE documents SET state=$1, stage=$2, progress=$3, error=$4, updated_at=NOW() WHERE id=$5`,
		next, stage, progress, errMsg, id)
	if err != nil {
		s.logger.LogDatabaseQuery("update_document_progress", time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("update document %s: %w", id, err)
	}

	err = tx.Commit(ctx)
	s.logger.LogDatabaseQuery("update_document_progress", time.Since(start).Seconds()*1000, err)
	return err
}

// InsertChunks writes all chunks for a document in one transaction. It does
// not change the document's state; the caller marks the document completed
// afterwards through UpdateDocumentProgress. Re-delivery after a successful write is a
// no-op: ON CONFLICT (document_id, chunk_index) DO NOTHING makes the second
// attempt idempotent per spec §4.8.
func (s *ChunkStore) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []*models.Chunk) error {
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk validation: %w", err)
		}

		var textVec, multiVec interface{}
		if c.TextEmbedding != nil {
			textVec = pgvector.NewVector(c.TextEmbedding)
		}
		if c.MultimodalEmbedding != nil {
			multiVec = pgvector.NewVector(c.MultimodalEmbedding)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, user_id, content, context, chunk_index, metadata, embedding_type, text_embedding, multimodal_embedding, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (document_id, chunk_index) DO NOTHING`,
			c.ID, documentID, c.UserID, c.Content, c.Context, c.ChunkIndex, c.Metadata, c.EmbeddingType,
			textVec, multiVec, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.LogDatabaseQuery("insert_chunks", time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("commit chunk batch: %w", err)
	}
	s.logger.LogDatabaseQuery("insert_chunks", time.Since(start).Seconds()*1000, nil)
	return nil
}

// HasChunks reports whether any chunk rows already exist for a document.
// Nothing in this module calls it; duplicate deliveries are detected from
// the document's completed state instead.
func (s *ChunkStore) HasChunks(ctx context.Context, documentID uuid.UUID) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count chunks: %w", err)
	}
	return count > 0, nil
}

// SearchResult is one ranked hit from the dual-embedding search (C11).
type SearchResult struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Content    string
	Context    string
	Similarity float64
	MatchedVia string // "text", "multimodal", or "both"
}

// DualEmbeddingSearch runs the text-vector and multimodal-vector cosine
// queries in parallel and merges by chunk id, keeping the higher similarity
// when a chunk matches via both columns (spec §4.9). Either embedding may
// be nil, in which case only the other column is queried. contentTypes, if
// non-empty, restricts results to chunks whose embedding_type is in the
// set (spec §6's optional content_types scoping) — it is applied on both
// columns equally, since a chunk's embedding_type is independent of which
// vector column happened to match.
func (s *ChunkStore) DualEmbeddingSearch(ctx context.Context, userID string, textEmbedding, multimodalEmbedding []float32, limit int, minSimilarity float64, contentTypes ...models.EmbeddingType) ([]SearchResult, error) {
	if len(textEmbedding) == 0 && len(multimodalEmbedding) == 0 {
		return nil, fmt.Errorf("dual embedding search requires at least one embedding")
	}
	if len(textEmbedding) != 0 && len(textEmbedding) != models.TextEmbeddingDim {
		return nil, fmt.Errorf("text embedding has dimension %d, want %d", len(textEmbedding), models.TextEmbeddingDim)
	}
	if len(multimodalEmbedding) != 0 && len(multimodalEmbedding) != models.MultimodalEmbeddingDim {
		return nil, fmt.Errorf("multimodal embedding has dimension %d, want %d", len(multimodalEmbedding), models.MultimodalEmbeddingDim)
	}

	var (
		wg                   sync.WaitGroup
		textResults, mmResults []SearchResult
		textErr, mmErr       error
	)

	if len(textEmbedding) != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			textResults, textErr = s.searchColumn(ctx, "text_embedding", userID, textEmbedding, limit, "text", contentTypes)
		}()
	}
	if len(multimodalEmbedding) != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mmResults, mmErr = s.searchColumn(ctx, "multimodal_embedding", userID, multimodalEmbedding, limit, "multimodal", contentTypes)
		}()
	}
	wg.Wait()

	if textErr != nil && mmErr != nil {
		return nil, fmt.Errorf("both embedding searches failed: text=%v multimodal=%v", textErr, mmErr)
	}
	if textErr != nil {
		s.logger.Warn("text embedding search failed, returning multimodal-only results", zap.Error(textErr))
	}
	if mmErr != nil {
		s.logger.Warn("multimodal embedding search failed, returning text-only results", zap.Error(mmErr))
	}

	merged := make(map[uuid.UUID]SearchResult, len(textResults)+len(mmResults))
	for _, r := range textResults {
		merged[r.ChunkID] = r
	}
	for _, r := range mmResults {
		if existing, ok := merged[r.ChunkID]; ok {
			if r.Similarity > existing.Similarity {
				existing.Similarity = r.Similarity
			}
			existing.MatchedVia = "both"
			merged[r.ChunkID] = existing
			continue
		}
		merged[r.ChunkID] = r
	}

	out := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		if r.Similarity >= minSimilarity {
			out = append(out, r)
		}
	}
	sortResultsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ChunkStore) searchColumn(ctx context.Context, column, userID string, embedding []float32, limit int, matchedVia string, contentTypes []models.EmbeddingType) ([]SearchResult, error) {
	start := time.Now()
	args := []interface{}{pgvector.NewVector(embedding), userID}
	typeFilter := ""
	if len(contentTypes) > 0 {
		typeStrings := make([]string, len(contentTypes))
		for i, t := range contentTypes {
			typeStrings[i] = string(t)
		}
		args = append(args, typeStrings)
		typeFilter = fmt.Sprintf(" AND embedding_type = ANY($%d)", len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, document_id, content, COALESCE(context, ''), 1 - (%s <=> $1) AS similarity
		FROM chunks
		WHERE user_id = $2 AND %s IS NOT NULL%s
		ORDER BY %s <=> $1
		LIMIT $%d`, column, column, typeFilter, column, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	duration := time.Since(start).Seconds() * 1000
	if err != nil {
		s.logger.LogDatabaseQuery("search_"+column, duration, err)
		return nil, fmt.Errorf("search %s: %w", column, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.Context, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.MatchedVia = matchedVia
		results = append(results, r)
	}
	s.logger.LogDatabaseQuery("search_"+column, duration, rows.Err())
	return results, rows.Err()
}

func sortResultsDesc(results []SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Similarity > results[j-1].Similarity; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
