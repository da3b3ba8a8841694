package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// Evaluation modes. Hybrid runs the full pipeline, content disables the
// collaborative half, popularity runs the cold-start fallback only.
const (
	ModeHybrid     = "hybrid"
	ModeContent    = "content"
	ModePopularity = "popularity"
)

// EvaluationOptions select the offline run parameters.
type EvaluationOptions struct {
	K          int
	SplitRatio float64
	Seed       int64
	Mode       string
}

// KindMetrics aggregates ranking quality over one item kind, averaged
// across evaluated users.
type KindMetrics struct {
	Kind         models.ItemKind `json:"kind"`
	Users        int             `json:"users"`
	PrecisionAtK float64         `json:"precision_at_k"`
	RecallAtK    float64         `json:"recall_at_k"`
	NDCGAtK      float64         `json:"ndcg_at_k"`
}

// EvaluationService replays the recommendation pipeline against a held-out
// test split and reports top-K ranking metrics.
type EvaluationService struct {
	repos       *repository.Repositories
	recommender *RecommenderService
	coldStart   *ColdStartService
	preferences *PreferenceService
	config      *config.EngineConfig
	logger      *logrus.Logger
}

func NewEvaluationService(
	repos *repository.Repositories,
	recommender *RecommenderService,
	coldStart *ColdStartService,
	preferences *PreferenceService,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *EvaluationService {
	return &EvaluationService{
		repos:       repos,
		recommender: recommender,
		coldStart:   coldStart,
		preferences: preferences,
		config:      cfg,
		logger:      logger,
	}
}

// TrainTestSplit deterministically partitions ratings: Fisher-Yates
// shuffle under a seeded PRNG, then a prefix/suffix cut at
// floor(len * ratio). Same inputs always produce the same partition.
func TrainTestSplit(ratings []models.Rating, ratio float64, seed int64) (train, test []models.Rating) {
	shuffled := make([]models.Rating, len(ratings))
	copy(shuffled, ratings)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(math.Floor(float64(len(shuffled)) * ratio))
	return shuffled[:cut], shuffled[cut:]
}

// PrecisionAtK is the share of the first K recommendations that are
// relevant, against min(K, len(ranked)).
func PrecisionAtK(ranked []uuid.UUID, relevant map[uuid.UUID]bool, k int) float64 {
	if k <= 0 || len(ranked) == 0 {
		return 0
	}
	denom := k
	if len(ranked) < denom {
		denom = len(ranked)
	}
	return float64(hitsAtK(ranked, relevant, k)) / float64(denom)
}

// RecallAtK is the share of relevant items found in the first K
// recommendations.
func RecallAtK(ranked []uuid.UUID, relevant map[uuid.UUID]bool, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	return float64(hitsAtK(ranked, relevant, k)) / float64(len(relevant))
}

// NDCGAtK is the discounted cumulative gain of the first K
// recommendations, normalized by the ideal ordering.
func NDCGAtK(ranked []uuid.UUID, relevant map[uuid.UUID]bool, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}

	limit := k
	if len(ranked) < limit {
		limit = len(ranked)
	}
	var dcg float64
	for i := 0; i < limit; i++ {
		if relevant[ranked[i]] {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	ideal := k
	if len(relevant) < ideal {
		ideal = len(relevant)
	}
	var idcg float64
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func hitsAtK(ranked []uuid.UUID, relevant map[uuid.UUID]bool, k int) int {
	limit := k
	if len(ranked) < limit {
		limit = len(ranked)
	}
	hits := 0
	for i := 0; i < limit; i++ {
		if relevant[ranked[i]] {
			hits++
		}
	}
	return hits
}

// Evaluate runs the offline metric suite for one item kind. Users are
// ranked with only their train-half as the excluded rated set, so held-out
// test items remain reachable; only users with at least one relevant test
// item count toward the averages.
func (s *EvaluationService) Evaluate(ctx context.Context, kind models.ItemKind, opts EvaluationOptions) (*KindMetrics, error) {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	switch opts.Mode {
	case ModeHybrid, ModeContent, ModePopularity:
	default:
		return nil, fmt.Errorf("evaluation mode %q: %w", opts.Mode, models.ErrInvalidInput)
	}
	if opts.SplitRatio <= 0 || opts.SplitRatio >= 1 {
		return nil, fmt.Errorf("split ratio %v outside (0,1): %w", opts.SplitRatio, models.ErrInvalidInput)
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("cutoff K %d must be positive: %w", opts.K, models.ErrInvalidInput)
	}

	all, err := s.repos.Ratings.AllRatings(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("evaluation ratings: %w", err)
	}
	if len(all) == 0 {
		return &KindMetrics{Kind: kind}, nil
	}

	train, test := TrainTestSplit(all, opts.SplitRatio, opts.Seed)

	trainByUser := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, rt := range train {
		set := trainByUser[rt.UserID]
		if set == nil {
			set = make(map[uuid.UUID]bool)
			trainByUser[rt.UserID] = set
		}
		set[rt.ItemID] = true
	}

	relevantByUser := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, rt := range test {
		if rt.Value < s.config.LikedThreshold {
			continue
		}
		set := relevantByUser[rt.UserID]
		if set == nil {
			set = make(map[uuid.UUID]bool)
			relevantByUser[rt.UserID] = set
		}
		set[rt.ItemID] = true
	}
	if len(relevantByUser) == 0 {
		return &KindMetrics{Kind: kind}, nil
	}

	users := make([]uuid.UUID, 0, len(relevantByUser))
	for userID := range relevantByUser {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return lessUUID(users[i], users[j]) })
	if max := s.config.Evaluation.MaxUsers; max > 0 && len(users) > max {
		users = users[:max]
	}

	var precisions, recalls, ndcgs []float64
	for _, userID := range users {
		trainRated := trainByUser[userID]
		if trainRated == nil {
			trainRated = map[uuid.UUID]bool{}
		}

		ranked, err := s.rankForMode(ctx, kind, userID, trainRated, opts.Mode)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Evaluation ranking failed")
			continue
		}
		ids := make([]uuid.UUID, len(ranked))
		for i := range ranked {
			ids[i] = ranked[i].Item.ID
		}

		relevant := relevantByUser[userID]
		precisions = append(precisions, PrecisionAtK(ids, relevant, opts.K))
		recalls = append(recalls, RecallAtK(ids, relevant, opts.K))
		ndcgs = append(ndcgs, NDCGAtK(ids, relevant, opts.K))
	}
	if len(precisions) == 0 {
		return &KindMetrics{Kind: kind}, nil
	}

	metrics := &KindMetrics{
		Kind:         kind,
		Users:        len(precisions),
		PrecisionAtK: roundTo(stat.Mean(precisions, nil), 4),
		RecallAtK:    roundTo(stat.Mean(recalls, nil), 4),
		NDCGAtK:      roundTo(stat.Mean(ndcgs, nil), 4),
	}

	s.logger.WithFields(logrus.Fields{
		"kind":      kind,
		"mode":      opts.Mode,
		"users":     metrics.Users,
		"precision": metrics.PrecisionAtK,
		"recall":    metrics.RecallAtK,
		"ndcg":      metrics.NDCGAtK,
	}).Info("Evaluation completed")
	return metrics, nil
}

func (s *EvaluationService) rankForMode(ctx context.Context, kind models.ItemKind, userID uuid.UUID, trainRated map[uuid.UUID]bool, mode string) ([]models.ScoredItem, error) {
	switch mode {
	case ModePopularity:
		prefs, err := s.preferences.Vector(ctx, kind, userID)
		if err != nil {
			return nil, err
		}
		return s.coldStart.PopularByGenre(ctx, kind, prefs, s.config.Fusion.TopN)
	case ModeContent:
		return s.recommender.Rank(ctx, kind, userID, trainRated, RecommendOptions{CF: false})
	default:
		return s.recommender.Rank(ctx, kind, userID, trainRated, RecommendOptions{CF: true})
	}
}
