package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/cache"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// PreferenceService derives per-genre preference vectors from rating
// history and keeps them consistent after every rating write.
type PreferenceService struct {
	repos   *repository.Repositories
	warm    cache.Store
	ttl     time.Duration
	metrics *MetricsService
	logger  *logrus.Logger
}

func NewPreferenceService(repos *repository.Repositories, warm cache.Store, ttl time.Duration, metrics *MetricsService, logger *logrus.Logger) *PreferenceService {
	return &PreferenceService{repos: repos, warm: warm, ttl: ttl, metrics: metrics, logger: logger}
}

// cachedPreference is the cache-resident row shape. The wire model hides
// genre ids, so the cache carries its own.
type cachedPreference struct {
	GenreID    uuid.UUID `json:"genre_id"`
	GenreName  string    `json:"genre_name"`
	Preference float64   `json:"preference"`
}

// Derive recomputes the user's preference vector for one taxonomy from the
// current rating set and upserts the diff in a single transaction. Running
// it twice without an intervening rating change issues no writes.
func (s *PreferenceService) Derive(ctx context.Context, kind models.ItemKind, userID uuid.UUID) error {
	ratings, err := s.repos.Ratings.UserRatings(ctx, kind, userID)
	if err != nil {
		return fmt.Errorf("preference derivation: %w", err)
	}

	itemIDs := make([]uuid.UUID, 0, len(ratings))
	for _, rt := range ratings {
		itemIDs = append(itemIDs, rt.ItemID)
	}
	genresOf, err := s.repos.Catalog.GenresOfItems(ctx, kind, itemIDs)
	if err != nil {
		return fmt.Errorf("preference derivation: %w", err)
	}

	sums := make(map[uuid.UUID]float64)
	counts := make(map[uuid.UUID]int)
	for _, rt := range ratings {
		for _, genreID := range genresOf[rt.ItemID] {
			sums[genreID] += float64(rt.Value)
			counts[genreID]++
		}
	}

	computed := make(map[uuid.UUID]float64, len(counts))
	for genreID, count := range counts {
		pct := math.Min(sums[genreID]/float64(count)*10, 100)
		computed[genreID] = Rescale(pct, 0, 100, -5, 5)
	}

	existing, err := s.repos.Ratings.UserPreferences(ctx, kind, userID)
	if err != nil {
		return fmt.Errorf("preference derivation: %w", err)
	}
	existingBy := make(map[uuid.UUID]float64, len(existing))
	for _, pref := range existing {
		existingBy[pref.GenreID] = pref.Preference
	}

	genreIDs := make([]uuid.UUID, 0, len(computed))
	for genreID := range computed {
		genreIDs = append(genreIDs, genreID)
	}
	sort.Slice(genreIDs, func(i, j int) bool { return lessUUID(genreIDs[i], genreIDs[j]) })

	var updates, inserts []models.GenrePreference
	for _, genreID := range genreIDs {
		value := computed[genreID]
		current, ok := existingBy[genreID]
		switch {
		case !ok:
			inserts = append(inserts, models.GenrePreference{UserID: userID, GenreID: genreID, Preference: value})
		case current != value:
			updates = append(updates, models.GenrePreference{UserID: userID, GenreID: genreID, Preference: value})
		}
	}

	if err := s.repos.Ratings.WritePreferences(ctx, kind, userID, updates, inserts); err != nil {
		return fmt.Errorf("preference derivation: %w", err)
	}

	if err := s.warm.Delete(ctx, cache.RecommendationKey(kind, userID), cache.PreferencesKey(kind, userID)); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate preference caches")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    kind,
		"updates": len(updates),
		"inserts": len(inserts),
	}).Debug("Preference vector derived")
	return nil
}

// Vector returns the user's preference map keyed by genre id, cache-first.
func (s *PreferenceService) Vector(ctx context.Context, kind models.ItemKind, userID uuid.UUID) (map[uuid.UUID]float64, error) {
	prefs, err := s.load(ctx, kind, userID)
	if err != nil {
		return nil, err
	}
	vector := make(map[uuid.UUID]float64, len(prefs))
	for _, pref := range prefs {
		vector[pref.GenreID] = pref.Preference
	}
	return vector, nil
}

// Preferences returns both taxonomies' vectors for the profile endpoint,
// each sorted descending by preference.
func (s *PreferenceService) Preferences(ctx context.Context, userID uuid.UUID) (*models.PreferencesResponse, error) {
	books, err := s.load(ctx, models.KindBook, userID)
	if err != nil {
		return nil, err
	}
	media, err := s.load(ctx, models.KindMedia, userID)
	if err != nil {
		return nil, err
	}
	return &models.PreferencesResponse{
		Books: toWirePreferences(books),
		Media: toWirePreferences(media),
	}, nil
}

func (s *PreferenceService) load(ctx context.Context, kind models.ItemKind, userID uuid.UUID) ([]cachedPreference, error) {
	key := cache.PreferencesKey(kind, userID)

	var cached []cachedPreference
	if hit, err := s.warm.Get(ctx, key, &cached); err != nil {
		s.logger.WithError(err).Warn("Preference cache read failed")
	} else if hit {
		s.metrics.CacheHit("preferences")
		return cached, nil
	}
	s.metrics.CacheMiss("preferences")

	prefs, err := s.repos.Ratings.UserPreferences(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("preference read: %w", err)
	}
	rows := make([]cachedPreference, 0, len(prefs))
	for _, pref := range prefs {
		rows = append(rows, cachedPreference{GenreID: pref.GenreID, GenreName: pref.GenreName, Preference: pref.Preference})
	}

	if err := s.warm.Set(ctx, key, rows, s.ttl); err != nil {
		s.logger.WithError(err).Warn("Failed to cache preference vector")
	}
	return rows, nil
}

func toWirePreferences(rows []cachedPreference) []models.GenrePreference {
	out := make([]models.GenrePreference, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.GenrePreference{GenreName: row.GenreName, Preference: row.Preference})
	}
	return out
}
