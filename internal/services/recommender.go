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

// RecommendOptions carry the per-request flags of the private entry point.
type RecommendOptions struct {
	// CF enables the collaborative half of the blend plus the new-item
	// boost and signal bonuses. Off means pure content scoring.
	CF bool
	// CFWeight overrides the configured fusion weight when set, clamped
	// into [0, 1].
	CFWeight *float64
}

// RecommenderService orchestrates the full pipeline: preference lookup,
// content and collaborative scoring, adaptive blending, cold-start
// handling and the signal bonus layer.
type RecommenderService struct {
	repos         *repository.Repositories
	content       *ContentService
	collaborative *CollaborativeService
	coldStart     *ColdStartService
	signals       *SignalService
	preferences   *PreferenceService
	warm          cache.Store
	config        *config.EngineConfig
	metrics       *MetricsService
	logger        *logrus.Logger
}

func NewRecommenderService(
	repos *repository.Repositories,
	content *ContentService,
	collaborative *CollaborativeService,
	coldStart *ColdStartService,
	signals *SignalService,
	preferences *PreferenceService,
	warm cache.Store,
	cfg *config.EngineConfig,
	metrics *MetricsService,
	logger *logrus.Logger,
) *RecommenderService {
	return &RecommenderService{
		repos:         repos,
		content:       content,
		collaborative: collaborative,
		coldStart:     coldStart,
		signals:       signals,
		preferences:   preferences,
		warm:          warm,
		config:        cfg,
		metrics:       metrics,
		logger:        logger,
	}
}

// RecommendForUser serves the private entry point. Default-shaped requests
// are answered from the warm cache when possible; requests with
// non-default flags always recompute, and only the default shape is
// cached.
func (s *RecommenderService) RecommendForUser(ctx context.Context, kind models.ItemKind, userID uuid.UUID, opts RecommendOptions) (*models.RecommendationResponse, error) {
	cacheable := opts.CF && opts.CFWeight == nil
	key := cache.RecommendationKey(kind, userID)

	if cacheable {
		var cached models.RecommendationResponse
		if hit, err := s.warm.Get(ctx, key, &cached); err != nil {
			s.logger.WithError(err).Warn("Recommendation cache read failed")
		} else if hit {
			s.metrics.CacheHit("recommendations")
			s.logger.WithFields(logrus.Fields{"user_id": userID, "kind": kind}).Debug("Recommendation cache hit")
			return &cached, nil
		}
		s.metrics.CacheMiss("recommendations")
	}

	ranked, err := s.Rank(ctx, kind, userID, nil, opts)
	if err != nil {
		return nil, err
	}
	response := models.NewRecommendationResponse(ranked)

	if cacheable {
		if err := s.warm.Set(ctx, key, response, s.config.Fusion.ResultTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache recommendation result")
		}
	}
	return &response, nil
}

// RecommendPublic serves the anonymous entry point: content scoring only,
// over an explicit genre interest map whose values are treated as 1-10
// ratings.
func (s *RecommenderService) RecommendPublic(ctx context.Context, kind models.ItemKind, needed map[uuid.UUID]float64) (*models.RecommendationResponse, error) {
	scored, err := s.content.Score(ctx, kind, needed, ContentParams{
		MaxGenres:         s.config.Public.MaxGenres,
		MaxItemsPerGenre:  s.config.Public.MaxItemsPerGenre,
		DefaultPreference: s.config.Public.DefaultPreference,
		Decimals:          s.config.Content.RelativityDecimals,
		ScoringFn:         publicScoringFn,
	})
	if err != nil {
		return nil, err
	}
	scored = topKScored(scored, s.config.Fusion.TopN)
	response := models.NewRecommendationResponse(scored)
	return &response, nil
}

// publicScoringFn treats the requested interest value as a 1-10 rating,
// rescaled onto the preference range and spread by a factor of 20.
func publicScoringFn(_ uuid.UUID, value float64) float64 {
	return Rescale(Clamp(value, 1, 10), 1, 10, -5, 5) * 20
}

// Rank produces the ordered ranking for one user. A nil alreadyRated means
// the user's full rated set; the evaluation pipeline passes the train-half
// instead so test items stay reachable.
func (s *RecommenderService) Rank(ctx context.Context, kind models.ItemKind, userID uuid.UUID, alreadyRated map[uuid.UUID]bool, opts RecommendOptions) ([]models.ScoredItem, error) {
	prefs, err := s.preferences.Vector(ctx, kind, userID)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return s.coldStart.PopularByGenre(ctx, kind, nil, s.config.Fusion.TopN)
	}

	ratings, err := s.repos.Ratings.UserRatings(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("rated set: %w", err)
	}
	if alreadyRated == nil {
		alreadyRated = make(map[uuid.UUID]bool, len(ratings))
		for _, rt := range ratings {
			alreadyRated[rt.ItemID] = true
		}
	}

	content, err := s.content.Score(ctx, kind, prefs, ContentParams{
		MaxGenres:         s.config.Content.MaxGenres,
		MaxItemsPerGenre:  s.config.Content.MaxItemsPerGenre,
		DefaultPreference: s.config.Content.DefaultPreference,
		Decimals:          s.config.Content.RelativityDecimals,
	})
	if err != nil {
		return nil, err
	}

	alpha := 1.0
	var cf []models.ScoredItem
	if opts.CF {
		cfWeight := s.config.Fusion.CFWeight
		if opts.CFWeight != nil {
			cfWeight = Clamp(*opts.CFWeight, 0, 1)
		}
		alpha = Alpha(len(ratings), cfWeight, float64(s.config.Fusion.CountThreshold))

		cf, err = s.collaborative.Recommend(ctx, kind, userID, s.config.Fusion.TopN, alreadyRated)
		if err != nil {
			return nil, err
		}
	}

	blended := s.blend(content, cf, alpha, alreadyRated)

	if opts.CF {
		blended, err = s.coldStart.BoostNewItems(ctx, kind, blended, prefs)
		if err != nil {
			return nil, err
		}

		profile, err := s.signals.Profile(ctx, kind, userID)
		if err != nil {
			s.logger.WithError(err).Warn("Signal profile unavailable, skipping bonuses")
		} else {
			for i := range blended {
				bonus := s.signals.Bonus(blended[i].Item, profile)
				blended[i].Score = Clamp(roundTo(blended[i].Score+bonus, 2), 0, 100)
			}
		}
	}

	blended = topKScored(blended, s.config.Fusion.TopN)

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    kind,
		"alpha":   alpha,
		"cf":      opts.CF,
		"results": len(blended),
	}).Debug("Recommendation ranking completed")
	return blended, nil
}

// blend fuses the content and collaborative rankings with the adaptive
// content weight, drops already-rated items and rounds to 2 decimals. The
// result is sorted and truncated to the fusion top-N.
func (s *RecommenderService) blend(content, cf []models.ScoredItem, alpha float64, alreadyRated map[uuid.UUID]bool) []models.ScoredItem {
	merged := make(map[uuid.UUID]*models.ScoredItem, len(content)+len(cf))
	for _, entry := range content {
		if alreadyRated[entry.Item.ID] {
			continue
		}
		merged[entry.Item.ID] = &models.ScoredItem{Score: alpha * entry.Score, Item: entry.Item}
	}
	for _, entry := range cf {
		if alreadyRated[entry.Item.ID] {
			continue
		}
		if existing, ok := merged[entry.Item.ID]; ok {
			existing.Score += (1 - alpha) * entry.Score
		} else {
			merged[entry.Item.ID] = &models.ScoredItem{Score: (1 - alpha) * entry.Score, Item: entry.Item}
		}
	}

	out := make([]models.ScoredItem, 0, len(merged))
	for _, entry := range merged {
		entry.Score = roundTo(entry.Score, 2)
		out = append(out, *entry)
	}
	return topKScored(out, s.config.Fusion.TopN)
}
