package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/cache"
	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// SimilarityService maintains per-item cosine similarity lists over the
// rating matrix. Lists live only in the cold cache; a miss triggers a full
// recomputation from the co-rating neighborhood.
type SimilarityService struct {
	repos   *repository.Repositories
	cold    cache.Store
	config  *config.CollaborativeConfig
	metrics *MetricsService
	logger  *logrus.Logger
}

func NewSimilarityService(repos *repository.Repositories, cold cache.Store, cfg *config.CollaborativeConfig, metrics *MetricsService, logger *logrus.Logger) *SimilarityService {
	return &SimilarityService{repos: repos, cold: cold, config: cfg, metrics: metrics, logger: logger}
}

// Similarities returns the shrunk similarity list for one item, most
// similar first. Shrinkage n/(n+lambda) damps similarities backed by few
// co-rating users.
func (s *SimilarityService) Similarities(ctx context.Context, kind models.ItemKind, itemID uuid.UUID) ([]models.ItemSimilarity, error) {
	key := cache.SimilarityKey(kind, itemID, s.config.Shrinkage)

	var cached []models.ItemSimilarity
	if hit, err := s.cold.Get(ctx, key, &cached); err != nil {
		s.logger.WithError(err).Warn("Similarity cache read failed")
	} else if hit {
		s.metrics.CacheHit("similarity")
		return cached, nil
	}
	s.metrics.CacheMiss("similarity")

	sims, err := s.compute(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	s.metrics.SimilarityComputed(kind)

	if err := s.cold.Set(ctx, key, sims, s.config.SimilarityTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache similarity list")
	}
	return sims, nil
}

func (s *SimilarityService) compute(ctx context.Context, kind models.ItemKind, itemID uuid.UUID) ([]models.ItemSimilarity, error) {
	raters, err := s.repos.Ratings.UsersWhoRated(ctx, kind, itemID)
	if err != nil {
		return nil, fmt.Errorf("similarity raters for %s: %w", itemID, err)
	}
	if len(raters) == 0 {
		return []models.ItemSimilarity{}, nil
	}

	ratings, err := s.repos.Ratings.RatingsOfUsers(ctx, kind, raters)
	if err != nil {
		return nil, fmt.Errorf("similarity neighborhood for %s: %w", itemID, err)
	}

	profiles := make(map[uuid.UUID]map[uuid.UUID]float64)
	for _, rt := range ratings {
		profile := profiles[rt.ItemID]
		if profile == nil {
			profile = make(map[uuid.UUID]float64)
			profiles[rt.ItemID] = profile
		}
		profile[rt.UserID] = float64(rt.Value)
	}

	target := profiles[itemID]
	if len(target) == 0 {
		return []models.ItemSimilarity{}, nil
	}

	sims := make([]models.ItemSimilarity, 0, len(profiles)-1)
	for otherID, profile := range profiles {
		if otherID == itemID {
			continue
		}
		common := 0
		for user := range profile {
			if _, ok := target[user]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}
		sim := Cosine(target, profile)
		shrunk := float64(common) / (float64(common) + s.config.Shrinkage) * sim
		if shrunk <= 0 {
			continue
		}
		sims = append(sims, models.ItemSimilarity{ItemID: otherID, Score: shrunk})
	}
	sortSimilaritiesDesc(sims)

	s.logger.WithFields(logrus.Fields{
		"item_id":   itemID,
		"kind":      kind,
		"raters":    len(raters),
		"neighbors": len(sims),
	}).Debug("Similarity list computed")
	return sims, nil
}

// Invalidate drops every cached similarity list of the item. Called after
// each rating write touching the item.
func (s *SimilarityService) Invalidate(ctx context.Context, kind models.ItemKind, itemID uuid.UUID) {
	if err := s.cold.DeletePattern(ctx, cache.SimilarityPattern(kind, itemID)); err != nil {
		s.logger.WithError(err).WithField("item_id", itemID).Warn("Failed to invalidate similarity cache")
	}
}
