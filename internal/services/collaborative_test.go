package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/internal/cache"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

func TestCollaborativeService_Recommend(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	cfg := testConfig()
	cold := cache.NewMemoryStore()
	repos := repository.New(mockDB, logger)
	similarity := NewSimilarityService(repos, cold, &cfg.Collaborative, nil, logger)
	service := NewCollaborativeService(repos, similarity, cfg, logger)

	user := fixedUUID(50)
	s1 := fixedUUID(31)
	s2 := fixedUUID(32)
	s3 := fixedUUID(33)
	c1 := fixedUUID(34)
	c2 := fixedUUID(35)
	gA := fixedUUID(10)

	// Similarity lists are cache-resident; seed them so the service never
	// recomputes during these tests.
	seedSimilarities := func(itemID uuid.UUID, sims []models.ItemSimilarity) {
		key := cache.SimilarityKey(models.KindBook, itemID, cfg.Collaborative.Shrinkage)
		require.NoError(t, cold.Set(context.Background(), key, sims, 0))
	}
	seedSimilarities(s1, []models.ItemSimilarity{
		{ItemID: c1, Score: 0.5},
		{ItemID: s2, Score: 0.4},
		{ItemID: c2, Score: 0.3},
	})
	seedSimilarities(s2, []models.ItemSimilarity{
		{ItemID: c1, Score: 0.2},
	})

	expectUserRatings := func() {
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(
				models.Rating{UserID: user, ItemID: s1, Value: 9},
				models.Rating{UserID: user, ItemID: s2, Value: 8},
				models.Rating{UserID: user, ItemID: s3, Value: 5},
			))
	}
	rated := map[uuid.UUID]bool{s1: true, s2: true, s3: true}

	t.Run("aggregates similarity-weighted ratings", func(t *testing.T) {
		expectUserRatings()

		bc1 := testBook(c1, "Foundation", "Asimov", "english", 88, gA)
		bc2 := testBook(c2, "Solaris", "Lem", "english", 84, gA)
		mockDB.ExpectQuery("FROM books b WHERE b.id").
			WithArgs([]string{c2.String(), c1.String()}).
			WillReturnRows(bookRows(bc1, bc2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{c1.String(), c2.String()}).
			WillReturnRows(bookLinkRows(bc1, bc2))

		results, err := service.Recommend(context.Background(), models.KindBook, user, 100, rated)

		require.NoError(t, err)
		require.Len(t, results, 2)

		// c2: 0.3*9/0.3 = 9.0 exactly. c1: (0.5*9 + 0.2*8)/0.7 = 8.714.
		// The liked neighbor s2 is already rated and never resurfaces.
		assert.Equal(t, c2, results[0].Item.ID)
		assert.InDelta(t, 90.0, results[0].Score, 1e-9)
		assert.Equal(t, c1, results[1].Item.ID)
		assert.InDelta(t, 87.142857, results[1].Score, 1e-6)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("topN truncates before the item fetch", func(t *testing.T) {
		expectUserRatings()

		bc2 := testBook(c2, "Solaris", "Lem", "english", 84, gA)
		mockDB.ExpectQuery("FROM books b WHERE b.id").
			WithArgs([]string{c2.String()}).
			WillReturnRows(bookRows(bc2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{c2.String()}).
			WillReturnRows(bookLinkRows(bc2))

		results, err := service.Recommend(context.Background(), models.KindBook, user, 1, rated)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, c2, results[0].Item.ID)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("seed and neighbor caps bound the pool", func(t *testing.T) {
		bounded := testConfig()
		bounded.Collaborative.MaxSeedItems = 1
		bounded.Collaborative.NeighborsPerSeed = 1
		boundedService := NewCollaborativeService(repos, similarity, bounded, logger)

		expectUserRatings()

		bc1 := testBook(c1, "Foundation", "Asimov", "english", 88, gA)
		mockDB.ExpectQuery("FROM books b WHERE b.id").
			WithArgs([]string{c1.String()}).
			WillReturnRows(bookRows(bc1))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{c1.String()}).
			WillReturnRows(bookLinkRows(bc1))

		// Only the strongest seed (s1) and its strongest neighbor (c1)
		// survive the caps.
		results, err := boundedService.Recommend(context.Background(), models.KindBook, user, 100, rated)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, c1, results[0].Item.ID)
		assert.InDelta(t, 90.0, results[0].Score, 1e-9)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("users without liked ratings get nothing", func(t *testing.T) {
		mockDB.ExpectQuery("FROM book_ratings WHERE user_id").
			WithArgs(user).
			WillReturnRows(ratingRows(
				models.Rating{UserID: user, ItemID: s1, Value: 4},
				models.Rating{UserID: user, ItemID: s2, Value: 6},
			))

		results, err := service.Recommend(context.Background(), models.KindBook, user, 100, nil)

		require.NoError(t, err)
		assert.Nil(t, results)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
