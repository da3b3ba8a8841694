package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// SignalProfile is a per-request snapshot of the user affinities the bonus
// signals consult. A nil profile disables all user-dependent signals.
type SignalProfile struct {
	authorCounts map[string]int
	authorSums   map[string]float64
	language     string
	mediaType    string
}

// SignalService grants each item a small metadata bonus on top of its
// blended score: popularity and recency from the item itself, author,
// language and media-type affinities from the user's history.
type SignalService struct {
	repos  *repository.Repositories
	config *config.EngineConfig
	logger *logrus.Logger
}

func NewSignalService(repos *repository.Repositories, cfg *config.EngineConfig, logger *logrus.Logger) *SignalService {
	return &SignalService{repos: repos, config: cfg, logger: logger}
}

// Profile builds the user's affinity snapshot for one item kind. Language
// and media-type preferences count only liked ratings; author affinity
// averages over all of the user's ratings per author.
func (s *SignalService) Profile(ctx context.Context, kind models.ItemKind, userID uuid.UUID) (*SignalProfile, error) {
	ratings, err := s.repos.Ratings.UserRatings(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("signal profile: %w", err)
	}
	profile := &SignalProfile{
		authorCounts: make(map[string]int),
		authorSums:   make(map[string]float64),
	}
	if len(ratings) == 0 {
		return profile, nil
	}

	itemIDs := make([]uuid.UUID, 0, len(ratings))
	for _, rt := range ratings {
		itemIDs = append(itemIDs, rt.ItemID)
	}
	items, err := s.repos.Catalog.ItemsByIDs(ctx, kind, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("signal profile: %w", err)
	}
	byID := make(map[uuid.UUID]models.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	languageCounts := make(map[string]int)
	typeCounts := make(map[string]int)
	for _, rt := range ratings {
		item, ok := byID[rt.ItemID]
		if !ok {
			continue
		}
		liked := rt.Value >= s.config.LikedThreshold
		switch kind {
		case models.KindBook:
			profile.authorCounts[item.Book.Author]++
			profile.authorSums[item.Book.Author] += float64(rt.Value)
			if liked {
				languageCounts[strings.ToLower(item.Book.Language)]++
			}
		case models.KindMedia:
			if liked {
				typeCounts[item.Media.MediaType]++
			}
		}
	}
	profile.language = mostFrequent(languageCounts)
	profile.mediaType = mostFrequent(typeCounts)
	return profile, nil
}

// Bonus sums the applicable signals for one item, capped at the configured
// maximum.
func (s *SignalService) Bonus(item models.CatalogItem, profile *SignalProfile) float64 {
	weights := s.config.Signals
	var bonus float64

	switch item.Kind {
	case models.KindBook:
		book := item.Book
		bonus += Clamp01(book.LikedPercent/100) * weights.PopularityWeight
		if profile != nil {
			if n := profile.authorCounts[book.Author]; n >= 2 &&
				profile.authorSums[book.Author]/float64(n) >= float64(s.config.LikedThreshold) {
				bonus += weights.AuthorWeight
			}
			if profile.language != "" && strings.ToLower(book.Language) == profile.language {
				bonus += weights.LanguageWeight
			}
		}
	case models.KindMedia:
		media := item.Media
		span := float64(recencyHorizonYear - recencyBaseYear)
		bonus += Clamp01(float64(media.StartYear-recencyBaseYear)/span) * weights.RecencyWeight
		if profile != nil && profile.mediaType != "" && media.MediaType == profile.mediaType {
			bonus += weights.MediaTypeWeight
		}
	}
	return math.Min(bonus, weights.MaxBonus)
}

// mostFrequent picks the highest-count key, lexicographically smallest on
// ties. Empty map yields "".
func mostFrequent(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	best := ""
	bestCount := 0
	for _, key := range keys {
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}
	return best
}
