package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// ContentParams bundles the knobs of one content-scoring pass. The private
// and public entry points run the same scorer with different parameter
// sets.
type ContentParams struct {
	MaxGenres         int
	MaxItemsPerGenre  int
	DefaultPreference float64
	Decimals          int
	// ScoringFn maps a (genre, preference) pair to a score contribution.
	// Nil means identity over the preference value.
	ScoringFn func(genreID uuid.UUID, pref float64) float64
}

// ContentService turns a genre interest map into relativity-scored
// candidate items.
type ContentService struct {
	repos  *repository.Repositories
	logger *logrus.Logger
}

func NewContentService(repos *repository.Repositories, logger *logrus.Logger) *ContentService {
	return &ContentService{repos: repos, logger: logger}
}

// Score gathers candidates from the strongest genres of the interest map
// and normalizes raw genre-sum scores into relativities in [0, 100]. The
// returned list is unordered; callers sort. An empty interest map yields
// no candidates.
func (s *ContentService) Score(ctx context.Context, kind models.ItemKind, needed map[uuid.UUID]float64, params ContentParams) ([]models.ScoredItem, error) {
	if len(needed) == 0 {
		return nil, nil
	}

	scoringFn := params.ScoringFn
	if scoringFn == nil {
		scoringFn = func(_ uuid.UUID, pref float64) float64 { return pref }
	}

	topGenres := rankGenres(needed, params.MaxGenres)

	seen := make(map[uuid.UUID]bool)
	var candidates []models.CatalogItem
	for _, genreID := range topGenres {
		items, err := s.repos.Catalog.ItemsByGenre(ctx, kind, genreID, params.MaxItemsPerGenre)
		if err != nil {
			return nil, fmt.Errorf("content candidates for genre %s: %w", genreID, err)
		}
		for _, item := range items {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			candidates = append(candidates, item)
		}
	}

	raw := make([]float64, len(candidates))
	var maxRaw float64
	for i, item := range candidates {
		var sum float64
		for _, genreID := range item.GenreIDs() {
			pref, ok := needed[genreID]
			if !ok {
				pref = params.DefaultPreference
			}
			sum += scoringFn(genreID, pref)
		}
		if sum < 0 {
			sum = 0
		}
		raw[i] = sum
		if sum > maxRaw {
			maxRaw = sum
		}
	}
	if maxRaw == 0 {
		maxRaw = 1
	}

	scored := make([]models.ScoredItem, 0, len(candidates))
	for i, item := range candidates {
		relativity := Clamp(roundTo(raw[i]/maxRaw*100, params.Decimals), 0, 100)
		scored = append(scored, models.ScoredItem{Score: relativity, Item: item})
	}

	s.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"genres":     len(topGenres),
		"candidates": len(scored),
	}).Debug("Content scoring completed")
	return scored, nil
}

// rankGenres picks the strongest maxGenres genre ids, highest preference
// first, ties broken by ascending id.
func rankGenres(needed map[uuid.UUID]float64, maxGenres int) []uuid.UUID {
	type genreWeight struct {
		id     uuid.UUID
		weight float64
	}
	ranked := make([]genreWeight, 0, len(needed))
	for genreID, weight := range needed {
		ranked = append(ranked, genreWeight{id: genreID, weight: weight})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return lessUUID(ranked[i].id, ranked[j].id)
	})
	if maxGenres >= 0 && len(ranked) > maxGenres {
		ranked = ranked[:maxGenres]
	}
	ids := make([]uuid.UUID, len(ranked))
	for i, gw := range ranked {
		ids[i] = gw.id
	}
	return ids
}
