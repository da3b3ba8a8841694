package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// CollaborativeService scores unseen items from the similarity
// neighborhoods of a user's favorite items.
type CollaborativeService struct {
	repos      *repository.Repositories
	similarity *SimilarityService
	config     *config.EngineConfig
	logger     *logrus.Logger
}

func NewCollaborativeService(repos *repository.Repositories, similarity *SimilarityService, cfg *config.EngineConfig, logger *logrus.Logger) *CollaborativeService {
	return &CollaborativeService{repos: repos, similarity: similarity, config: cfg, logger: logger}
}

// Recommend aggregates similarity-weighted ratings over the neighborhoods
// of the user's top liked items and returns the best topN unseen items,
// scored in [0, 100]. Users without liked ratings get an empty list; the
// caller falls back to content or popularity.
//
// The candidate pool is bounded to max_seed_items x neighbors_per_seed
// lookups per request, which also suppresses noise from long-tail
// low-confidence similarities.
func (s *CollaborativeService) Recommend(ctx context.Context, kind models.ItemKind, userID uuid.UUID, topN int, alreadyRated map[uuid.UUID]bool) ([]models.ScoredItem, error) {
	ratings, err := s.repos.Ratings.UserRatings(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("collaborative seeds: %w", err)
	}

	var liked []models.Rating
	for _, rt := range ratings {
		if rt.Value >= s.config.LikedThreshold {
			liked = append(liked, rt)
		}
	}
	if len(liked) == 0 {
		return nil, nil
	}

	sort.Slice(liked, func(i, j int) bool {
		if liked[i].Value != liked[j].Value {
			return liked[i].Value > liked[j].Value
		}
		return lessUUID(liked[i].ItemID, liked[j].ItemID)
	})
	if len(liked) > s.config.Collaborative.MaxSeedItems {
		liked = liked[:s.config.Collaborative.MaxSeedItems]
	}

	scores := make(map[uuid.UUID]float64)
	weights := make(map[uuid.UUID]float64)
	for _, seed := range liked {
		sims, err := s.similarity.Similarities(ctx, kind, seed.ItemID)
		if err != nil {
			return nil, err
		}
		if len(sims) > s.config.Collaborative.NeighborsPerSeed {
			sims = sims[:s.config.Collaborative.NeighborsPerSeed]
		}
		for _, neighbor := range sims {
			scores[neighbor.ItemID] += neighbor.Score * float64(seed.Value)
			weights[neighbor.ItemID] += neighbor.Score
		}
	}

	type candidate struct {
		itemID uuid.UUID
		avg    float64
	}
	candidates := make([]candidate, 0, len(scores))
	for itemID, weight := range weights {
		if weight <= 0 || alreadyRated[itemID] {
			continue
		}
		candidates = append(candidates, candidate{itemID: itemID, avg: scores[itemID] / weight})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].avg != candidates[j].avg {
			return candidates[i].avg > candidates[j].avg
		}
		return lessUUID(candidates[i].itemID, candidates[j].itemID)
	})
	if topN >= 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.itemID
	}
	items, err := s.repos.Catalog.ItemsByIDs(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("collaborative items: %w", err)
	}
	byID := make(map[uuid.UUID]models.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	results := make([]models.ScoredItem, 0, len(candidates))
	for _, c := range candidates {
		item, ok := byID[c.itemID]
		if !ok {
			continue
		}
		results = append(results, models.ScoredItem{
			Score: Clamp(c.avg*10, 0, 100),
			Item:  item,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    kind,
		"seeds":   len(liked),
		"results": len(results),
	}).Debug("Collaborative filtering completed")
	return results, nil
}
