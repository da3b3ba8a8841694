package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/pkg/models"
)

// RatingRepository reads and writes ratings and derived genre preferences.
type RatingRepository struct {
	db     Querier
	logger *logrus.Logger
}

func (r *RatingRepository) UserRatings(ctx context.Context, kind models.ItemKind, userID uuid.UUID) ([]models.Rating, error) {
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT user_id, %s, value FROM %s WHERE user_id = $1 ORDER BY %s ASC`,
		t.itemFK, t.ratings, t.itemFK)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("user ratings query failed: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var rating models.Rating
		if err := rows.Scan(&rating.UserID, &rating.ItemID, &rating.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// RatingsOfUsers returns every rating any of the given users issued for
// this kind. Feeds item-profile construction in the similarity store.
func (r *RatingRepository) RatingsOfUsers(ctx context.Context, kind models.ItemKind, userIDs []uuid.UUID) ([]models.Rating, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT user_id, %s, value FROM %s WHERE user_id = ANY($1::uuid[])`,
		t.itemFK, t.ratings)

	rows, err := r.db.Query(ctx, query, uuidStrings(userIDs))
	if err != nil {
		return nil, fmt.Errorf("ratings of users query failed: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var rating models.Rating
		if err := rows.Scan(&rating.UserID, &rating.ItemID, &rating.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

func (r *RatingRepository) UsersWhoRated(ctx context.Context, kind models.ItemKind, itemID uuid.UUID) ([]uuid.UUID, error) {
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT DISTINCT user_id FROM %s WHERE %s = $1`, t.ratings, t.itemFK)

	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("raters query failed: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan rater: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// AllRatings returns the full rating set of a kind; the evaluation splitter
// consumes it in one pass.
func (r *RatingRepository) AllRatings(ctx context.Context, kind models.ItemKind) ([]models.Rating, error) {
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT user_id, %s, value FROM %s ORDER BY user_id ASC, %s ASC`,
		t.itemFK, t.ratings, t.itemFK)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("all ratings query failed: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var rating models.Rating
		if err := rows.Scan(&rating.UserID, &rating.ItemID, &rating.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

func (r *RatingRepository) ItemRatingCount(ctx context.Context, kind models.ItemKind, itemID uuid.UUID) (int, error) {
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, t.ratings, t.itemFK)

	var count int
	if err := r.db.QueryRow(ctx, query, itemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("rating count query failed: %w", err)
	}
	return count, nil
}

// UpsertRating stores a rating, overwriting any previous value for the same
// (user, item) pair. Values outside [1, 10] are rejected with ErrIntegrity.
func (r *RatingRepository) UpsertRating(ctx context.Context, kind models.ItemKind, rating models.Rating) error {
	if rating.Value < 1 || rating.Value > 10 {
		return fmt.Errorf("rating value %d outside [1,10]: %w", rating.Value, models.ErrIntegrity)
	}

	t := tablesFor(kind)
	query := fmt.Sprintf(`INSERT INTO %s (user_id, %s, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, %s) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		t.ratings, t.itemFK, t.itemFK)

	if _, err := r.db.Exec(ctx, query, rating.UserID, rating.ItemID, rating.Value); err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// UserPreferences returns the stored per-genre preferences of one user,
// highest preference first, genre names attached.
func (r *RatingRepository) UserPreferences(ctx context.Context, kind models.ItemKind, userID uuid.UUID) ([]models.GenrePreference, error) {
	t := tablesFor(kind)
	query := fmt.Sprintf(`SELECT p.genre_id, g.name, p.preference
		FROM %s p
		JOIN genres g ON g.id = p.genre_id
		WHERE p.user_id = $1
		ORDER BY p.preference DESC, g.name ASC`, t.preferences)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("preferences query failed: %w", err)
	}
	defer rows.Close()

	var prefs []models.GenrePreference
	for rows.Next() {
		pref := models.GenrePreference{UserID: userID}
		if err := rows.Scan(&pref.GenreID, &pref.GenreName, &pref.Preference); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

// WritePreferences applies a preference diff inside one transaction so
// concurrent derivations for the same user serialize at the storage layer.
func (r *RatingRepository) WritePreferences(ctx context.Context, kind models.ItemKind, userID uuid.UUID, updates, inserts []models.GenrePreference) error {
	if len(updates) == 0 && len(inserts) == 0 {
		return nil
	}
	t := tablesFor(kind)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin preferences transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := fmt.Sprintf(`UPDATE %s SET preference = $1 WHERE user_id = $2 AND genre_id = $3`, t.preferences)
	for _, pref := range updates {
		if _, err := tx.Exec(ctx, updateQuery, pref.Preference, userID, pref.GenreID); err != nil {
			return fmt.Errorf("failed to update preference: %w", err)
		}
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (user_id, genre_id, preference) VALUES ($1, $2, $3)`, t.preferences)
	for _, pref := range inserts {
		if _, err := tx.Exec(ctx, insertQuery, userID, pref.GenreID, pref.Preference); err != nil {
			return fmt.Errorf("failed to insert preference: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}
