package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// Media popularity and recency both interpolate the start year over this
// window.
const (
	recencyBaseYear    = 1970
	recencyHorizonYear = 2026
)

// ColdStartService covers the two ends of the cold-start problem: users
// without history get a popularity fallback, items without ratings get a
// visibility boost.
type ColdStartService struct {
	repos  *repository.Repositories
	config *config.ColdStartConfig
	logger *logrus.Logger
}

func NewColdStartService(repos *repository.Repositories, cfg *config.ColdStartConfig, logger *logrus.Logger) *ColdStartService {
	return &ColdStartService{repos: repos, config: cfg, logger: logger}
}

// PopularByGenre ranks the most popular items, restricted to the genres of
// the interest map when it is non-empty. Books score by likedPercent,
// media by start year interpolated onto [0, 100].
func (s *ColdStartService) PopularByGenre(ctx context.Context, kind models.ItemKind, genrePrefs map[uuid.UUID]float64, limit int) ([]models.ScoredItem, error) {
	var (
		items []models.CatalogItem
		err   error
	)
	if len(genrePrefs) > 0 {
		genreIDs := make([]uuid.UUID, 0, len(genrePrefs))
		for genreID := range genrePrefs {
			genreIDs = append(genreIDs, genreID)
		}
		items, err = s.repos.Catalog.ItemsByGenres(ctx, kind, genreIDs, limit)
	} else {
		items, err = s.repos.Catalog.ListItems(ctx, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("popularity fallback: %w", err)
	}

	scored := make([]models.ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, models.ScoredItem{Score: popularityScore(item), Item: item})
	}
	sortScoredDesc(scored)

	s.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"genres":  len(genrePrefs),
		"results": len(scored),
	}).Debug("Popularity fallback served")
	return scored, nil
}

func popularityScore(item models.CatalogItem) float64 {
	switch item.Kind {
	case models.KindBook:
		return item.Book.LikedPercent
	case models.KindMedia:
		span := float64(recencyHorizonYear - recencyBaseYear)
		scaled := float64(item.Media.StartYear-recencyBaseYear) / span * 100
		return roundTo(Clamp(scaled, 0, 100), 2)
	}
	return 0
}

// BoostNewItems injects under-rated items whose genres overlap the user's
// interests into an existing ranking, so fresh catalog entries surface
// before they accumulate ratings. The boost score is proportional to the
// overlap share of the item's genre set. A user without genre interests is
// left untouched.
func (s *ColdStartService) BoostNewItems(ctx context.Context, kind models.ItemKind, recs []models.ScoredItem, genrePrefs map[uuid.UUID]float64) ([]models.ScoredItem, error) {
	if len(genrePrefs) == 0 {
		return recs, nil
	}

	candidates, err := s.repos.Catalog.ItemsWithRatingCountBelow(ctx, kind, s.config.MinRatings, s.config.MaxBoosted*3)
	if err != nil {
		return nil, fmt.Errorf("new-item boost scan: %w", err)
	}

	present := make(map[uuid.UUID]bool, len(recs))
	for _, rec := range recs {
		present[rec.Item.ID] = true
	}

	injected := 0
	boosted := recs
	for _, item := range candidates {
		if injected >= s.config.MaxBoosted {
			break
		}
		if present[item.ID] {
			continue
		}
		genres := item.GenreIDs()
		overlap := 0
		for _, genreID := range genres {
			if _, ok := genrePrefs[genreID]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		denom := len(genres)
		if denom < 1 {
			denom = 1
		}
		score := roundTo(s.config.BoostFactor*float64(overlap)/float64(denom), 2)
		boosted = append(boosted, models.ScoredItem{Score: score, Item: item})
		injected++
	}
	sortScoredDesc(boosted)

	if injected > 0 {
		s.logger.WithFields(logrus.Fields{"kind": kind, "injected": injected}).Debug("New items boosted")
	}
	return boosted, nil
}
