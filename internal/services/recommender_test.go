package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/internal/cache"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// newTestRecommender wires the full scoring pipeline against one mock pool
// and fresh in-memory caches.
func newTestRecommender(t *testing.T) (*RecommenderService, pgxmock.PgxPoolIface, *cache.MemoryStore, *cache.MemoryStore) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	cfg := testConfig()
	repos := repository.New(mockDB, logger)
	warm := cache.NewMemoryStore()
	cold := cache.NewMemoryStore()

	similarity := NewSimilarityService(repos, cold, &cfg.Collaborative, nil, logger)
	collaborative := NewCollaborativeService(repos, similarity, cfg, logger)
	coldStart := NewColdStartService(repos, &cfg.ColdStart, logger)
	signals := NewSignalService(repos, cfg, logger)
	preferences := NewPreferenceService(repos, warm, time.Hour, nil, logger)
	content := NewContentService(repos, logger)

	recommender := NewRecommenderService(repos, content, collaborative, coldStart, signals,
		preferences, warm, cfg, nil, logger)
	return recommender, mockDB, warm, cold
}

func TestRecommenderService_RecommendForUser(t *testing.T) {
	user := fixedUUID(50)
	gA := fixedUUID(10)
	rated := fixedUUID(40)
	ratedBook := testBook(rated, "Oryx and Crake", "Atwood", "dutch", 0)
	bk1 := testBook(fixedUUID(1), "Dune", "Herbert", "english", 0, gA)
	bk2 := testBook(fixedUUID(2), "Hyperion", "Simmons", "english", 0, gA)

	// The hybrid pipeline touches, in order: stored preferences, the rated
	// set, content candidates, collaborative seeds, neighbor items, the
	// under-rated scan and the signal profile.
	expectHybridPipeline := func(mockDB pgxmock.PgxPoolIface) {
		mockDB.ExpectQuery("FROM book_preferences p").
			WithArgs(user).
			WillReturnRows(pgxmock.NewRows([]string{"genre_id", "name", "preference"}).
				AddRow(gA, "Sci-Fi", 5.0))
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(models.Rating{UserID: user, ItemID: rated, Value: 8}))
		mockDB.ExpectQuery("WHERE bg.genre_id").
			WithArgs(gA, 21).
			WillReturnRows(bookRows(bk1, bk2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{bk1.ID.String(), bk2.ID.String()}).
			WillReturnRows(bookLinkRows(bk1, bk2))
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(models.Rating{UserID: user, ItemID: rated, Value: 8}))
		mockDB.ExpectQuery("FROM books b WHERE b.id").
			WithArgs([]string{bk2.ID.String()}).
			WillReturnRows(bookRows(bk2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{bk2.ID.String()}).
			WillReturnRows(bookLinkRows(bk2))
		mockDB.ExpectQuery("HAVING COUNT").
			WithArgs(5, 30).
			WillReturnRows(bookRows())
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(models.Rating{UserID: user, ItemID: rated, Value: 8}))
		mockDB.ExpectQuery("FROM books b WHERE b.id").
			WithArgs([]string{rated.String()}).
			WillReturnRows(bookRows(ratedBook))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{rated.String()}).
			WillReturnRows(bookLinkRows(ratedBook))
	}

	seedNeighbors := func(t *testing.T, cold *cache.MemoryStore) {
		key := cache.SimilarityKey(models.KindBook, rated, 25.0)
		require.NoError(t, cold.Set(context.Background(), key,
			[]models.ItemSimilarity{{ItemID: bk2.ID, Score: 0.5}}, 0))
	}

	t.Run("blends content and collaborative by rating count", func(t *testing.T) {
		service, mockDB, _, cold := newTestRecommender(t)
		seedNeighbors(t, cold)
		expectHybridPipeline(mockDB)

		response, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: true})

		require.NoError(t, err)
		require.Equal(t, 2, response.Length)

		// One rating gives alpha = 1 - (1/15)*0.4. Both candidates score
		// 100 on content; bk2 additionally carries a collaborative 80.
		first := response.Data["0"]
		second := response.Data["1"]
		require.NotNil(t, first.Book)
		assert.Equal(t, bk2.ID, first.Book.ID)
		assert.InDelta(t, 99.47, first.Relativity, 1e-9)
		assert.Equal(t, bk1.ID, second.Book.ID)
		assert.InDelta(t, 97.33, second.Relativity, 1e-9)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("default requests are cached", func(t *testing.T) {
		service, mockDB, _, cold := newTestRecommender(t)
		seedNeighbors(t, cold)
		expectHybridPipeline(mockDB)

		first, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: true})
		require.NoError(t, err)

		// No further queries are expected; the second call must be served
		// from the warm cache.
		second, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: true})
		require.NoError(t, err)
		assert.Equal(t, first, second)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("cf weight override recomputes and skips the cache", func(t *testing.T) {
		service, mockDB, warm, cold := newTestRecommender(t)
		seedNeighbors(t, cold)
		expectHybridPipeline(mockDB)

		// Out-of-range overrides clamp onto [0, 1]; 5.0 behaves as full
		// collaborative weight.
		weight := 5.0
		response, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: true, CFWeight: &weight})

		require.NoError(t, err)
		require.Equal(t, 2, response.Length)
		assert.InDelta(t, 98.67, response.Data["0"].Relativity, 1e-9)
		assert.InDelta(t, 93.33, response.Data["1"].Relativity, 1e-9)

		var cached models.RecommendationResponse
		hit, err := warm.Get(context.Background(), cache.RecommendationKey(models.KindBook, user), &cached)
		require.NoError(t, err)
		assert.False(t, hit)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("content mode runs no collaborative machinery", func(t *testing.T) {
		service, mockDB, warm, _ := newTestRecommender(t)

		mockDB.ExpectQuery("FROM book_preferences p").
			WithArgs(user).
			WillReturnRows(pgxmock.NewRows([]string{"genre_id", "name", "preference"}).
				AddRow(gA, "Sci-Fi", 5.0))
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(models.Rating{UserID: user, ItemID: rated, Value: 8}))
		mockDB.ExpectQuery("WHERE bg.genre_id").
			WithArgs(gA, 21).
			WillReturnRows(bookRows(bk1, bk2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{bk1.ID.String(), bk2.ID.String()}).
			WillReturnRows(bookLinkRows(bk1, bk2))

		response, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: false})

		require.NoError(t, err)
		require.Equal(t, 2, response.Length)

		// Pure content, alpha 1: both relativities survive unscaled, tie
		// broken by id.
		assert.Equal(t, bk1.ID, response.Data["0"].Book.ID)
		assert.InDelta(t, 100.0, response.Data["0"].Relativity, 1e-9)
		assert.InDelta(t, 100.0, response.Data["1"].Relativity, 1e-9)

		var cached models.RecommendationResponse
		hit, err := warm.Get(context.Background(), cache.RecommendationKey(models.KindBook, user), &cached)
		require.NoError(t, err)
		assert.False(t, hit)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("users without preferences fall back to popularity", func(t *testing.T) {
		service, mockDB, _, _ := newTestRecommender(t)

		pop1 := testBook(fixedUUID(5), "Circe", "Miller", "english", 90, gA)
		pop2 := testBook(fixedUUID(6), "Persuasion", "Austen", "english", 70, gA)

		mockDB.ExpectQuery("FROM book_preferences p").
			WithArgs(user).
			WillReturnRows(pgxmock.NewRows([]string{"genre_id", "name", "preference"}))
		mockDB.ExpectQuery("ORDER BY b.liked_percent DESC, b.id ASC LIMIT").
			WithArgs(100).
			WillReturnRows(bookRows(pop1, pop2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{pop1.ID.String(), pop2.ID.String()}).
			WillReturnRows(bookLinkRows(pop1, pop2))

		response, err := service.RecommendForUser(context.Background(), models.KindBook, user,
			RecommendOptions{CF: true})

		require.NoError(t, err)
		require.Equal(t, 2, response.Length)
		assert.Equal(t, pop1.ID, response.Data["0"].Book.ID)
		assert.Equal(t, 90.0, response.Data["0"].Relativity)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestRecommenderService_RecommendPublic(t *testing.T) {
	service, mockDB, _, _ := newTestRecommender(t)

	gA := fixedUUID(10)
	gB := fixedUUID(11)
	p1 := testBook(fixedUUID(1), "Dune", "Herbert", "english", 90, gA)
	p2 := testBook(fixedUUID(2), "Hyperion", "Simmons", "english", 85, gA, gB)
	p3 := testBook(fixedUUID(3), "Emma", "Austen", "english", 80, gB)

	mockDB.ExpectQuery("WHERE bg.genre_id").
		WithArgs(gA, 6).
		WillReturnRows(bookRows(p1, p2))
	mockDB.ExpectQuery("FROM book_genres").
		WithArgs([]string{p1.ID.String(), p2.ID.String()}).
		WillReturnRows(bookLinkRows(p1, p2))
	mockDB.ExpectQuery("WHERE bg.genre_id").
		WithArgs(gB, 6).
		WillReturnRows(bookRows(p2, p3))
	mockDB.ExpectQuery("FROM book_genres").
		WithArgs([]string{p2.ID.String(), p3.ID.String()}).
		WillReturnRows(bookLinkRows(p2, p3))

	// A loved genre scores +100 per item, a hated one -100; p2 carries
	// both and nets zero, p3 floors at zero.
	response, err := service.RecommendPublic(context.Background(), models.KindBook,
		map[uuid.UUID]float64{gA: 10, gB: 1})

	require.NoError(t, err)
	require.Equal(t, 3, response.Length)
	assert.Equal(t, p1.ID, response.Data["0"].Book.ID)
	assert.InDelta(t, 100.0, response.Data["0"].Relativity, 1e-9)
	assert.Equal(t, p2.ID, response.Data["1"].Book.ID)
	assert.Zero(t, response.Data["1"].Relativity)
	assert.Equal(t, p3.ID, response.Data["2"].Book.ID)
	assert.Zero(t, response.Data["2"].Relativity)

	require.NoError(t, mockDB.ExpectationsWereMet())
}
