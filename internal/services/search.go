package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
)

// SearchService is C11, the dual-embedding search surface the chat layer
// calls: embed a query string both ways, then run the chunk store's two
// parallel cosine searches and merge (spec §4.9). The merge/degrade logic
// itself lives in database.ChunkStore.DualEmbeddingSearch; this layer owns
// generating the two query embeddings and degrading gracefully when one
// embedding call fails outright.
type SearchService struct {
	ai     *AIServiceClient
	chunks *database.ChunkStore
	logger *logger.Logger
}

// NewSearchService builds a SearchService.
func NewSearchService(ai *AIServiceClient, chunks *database.ChunkStore, log *logger.Logger) *SearchService {
	return &SearchService{
		ai:     ai,
		chunks: chunks,
		logger: log.WithService("search_service"),
	}
}

// Search embeds query as both a text and a multimodal query vector and
// returns the merged dual-embedding search results for userID, optionally
// scoped to the given content (embedding) types (spec §4.9/§6). If one
// embedding call fails, the search degrades to the surviving embedding type
// rather than failing outright; if both fail, the error is returned.
func (s *SearchService) Search(ctx context.Context, userID, query string, limit int, minSimilarity float64, contentTypes ...models.EmbeddingType) ([]database.SearchResult, error) {
	textEmbedding, textErr := s.ai.EmbedText(ctx, query)
	if textErr != nil {
		s.logger.Warn("text query embedding failed, searching multimodal only", zap.Error(textErr))
	}

	multimodalEmbedding, mmErr := s.ai.EmbedMultimodalQuery(ctx, query)
	if mmErr != nil {
		s.logger.Warn("multimodal query embedding unavailable", zap.Error(mmErr))
	}

	if textErr != nil && mmErr != nil {
		return nil, fmt.Errorf("both query embeddings failed: text=%v multimodal=%v", textErr, mmErr)
	}

	return s.chunks.DualEmbeddingSearch(ctx, userID, textEmbedding, multimodalEmbedding, limit, minSimilarity, contentTypes...)
}
