package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

func TestColdStartService_PopularByGenre(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	cfg := testConfig()
	service := NewColdStartService(repository.New(mockDB, logger), &cfg.ColdStart, logger)

	gA := fixedUUID(10)

	t.Run("media scores interpolate the start year", func(t *testing.T) {
		m1 := testMedia(fixedUUID(1), "movie", "Arrival II", 2026, gA)
		m2 := testMedia(fixedUUID(2), "series", "The Wire", 1998, gA)
		m3 := testMedia(fixedUUID(3), "movie", "Psycho", 1960, gA)

		mockDB.ExpectQuery("ORDER BY m.startyear DESC, m.id ASC LIMIT").
			WithArgs(50).
			WillReturnRows(mediaRows(m1, m2, m3))
		mockDB.ExpectQuery("FROM media_genres").
			WithArgs([]string{m1.ID.String(), m2.ID.String(), m3.ID.String()}).
			WillReturnRows(mediaLinkRows(m1, m2, m3))

		scored, err := service.PopularByGenre(context.Background(), models.KindMedia, nil, 50)

		require.NoError(t, err)
		require.Len(t, scored, 3)

		// 2026 maps onto 100, 1998 onto 50, pre-1970 clamps to 0.
		assert.InDelta(t, 100.0, scored[0].Score, 1e-9)
		assert.InDelta(t, 50.0, scored[1].Score, 1e-9)
		assert.Zero(t, scored[2].Score)
		assert.Equal(t, []uuid.UUID{gA}, scored[0].Item.Media.Genres)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("books score by liked percent within the interest genres", func(t *testing.T) {
		b1 := testBook(fixedUUID(1), "Dune", "Herbert", "english", 90, gA)
		b2 := testBook(fixedUUID(2), "Emma", "Austen", "english", 70, gA)

		mockDB.ExpectQuery("SELECT DISTINCT").
			WithArgs([]string{gA.String()}, 50).
			WillReturnRows(bookRows(b1, b2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{b1.ID.String(), b2.ID.String()}).
			WillReturnRows(bookLinkRows(b1, b2))

		scored, err := service.PopularByGenre(context.Background(), models.KindBook,
			map[uuid.UUID]float64{gA: 3}, 50)

		require.NoError(t, err)
		require.Len(t, scored, 2)
		assert.Equal(t, 90.0, scored[0].Score)
		assert.Equal(t, 70.0, scored[1].Score)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestColdStartService_BoostNewItems(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	cfg := testConfig()
	service := NewColdStartService(repository.New(mockDB, logger), &cfg.ColdStart, logger)

	gA := fixedUUID(10)
	gB := fixedUUID(11)
	gC := fixedUUID(12)
	prefs := map[uuid.UUID]float64{gA: 2, gB: 1}

	existing := testBook(fixedUUID(1), "Dune", "Herbert", "english", 90, gA)
	n1 := testBook(fixedUUID(2), "Debut Novel", "Nguyen", "english", 0, gA, gB)
	n2 := testBook(fixedUUID(3), "Small Press", "Okafor", "english", 0, gA, gC)
	n4 := testBook(fixedUUID(4), "Niche Title", "Moreno", "english", 0, gC)

	underRatedRows := func(books ...*models.Book) *pgxmock.Rows {
		rows := pgxmock.NewRows([]string{"id", "title", "author", "isbn", "description", "language", "edition", "pages", "liked_percent", "rating_count"})
		for i, b := range books {
			rows.AddRow(b.ID, b.Title, b.Author, b.ISBN, b.Description, b.Language, b.Edition, b.Pages, b.LikedPercent, len(books)-i)
		}
		return rows
	}

	t.Run("injects overlapping under-rated items", func(t *testing.T) {
		mockDB.ExpectQuery("HAVING COUNT").
			WithArgs(5, 30).
			WillReturnRows(underRatedRows(n1, n2, existing, n4))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{n1.ID.String(), n2.ID.String(), existing.ID.String(), n4.ID.String()}).
			WillReturnRows(bookLinkRows(n1, n2, existing, n4))

		recs := []models.ScoredItem{{Score: 80, Item: models.BookItem(existing)}}
		boosted, err := service.BoostNewItems(context.Background(), models.KindBook, recs, prefs)

		require.NoError(t, err)
		require.Len(t, boosted, 3)

		// n1 overlaps both interest genres (15 * 2/2), n2 one of two
		// (15 * 1/2). The already-present item and the zero-overlap one
		// stay out.
		assert.Equal(t, existing.ID, boosted[0].Item.ID)
		assert.Equal(t, n1.ID, boosted[1].Item.ID)
		assert.Equal(t, 15.0, boosted[1].Score)
		assert.Equal(t, n2.ID, boosted[2].Item.ID)
		assert.Equal(t, 7.5, boosted[2].Score)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("injection stops at the configured cap", func(t *testing.T) {
		capped := testConfig().ColdStart
		capped.MaxBoosted = 1
		cappedService := NewColdStartService(repository.New(mockDB, logger), &capped, logger)

		mockDB.ExpectQuery("HAVING COUNT").
			WithArgs(5, 3).
			WillReturnRows(underRatedRows(n1, n2))
		mockDB.ExpectQuery("FROM book_genres").
			WithArgs([]string{n1.ID.String(), n2.ID.String()}).
			WillReturnRows(bookLinkRows(n1, n2))

		boosted, err := cappedService.BoostNewItems(context.Background(), models.KindBook, nil, prefs)

		require.NoError(t, err)
		require.Len(t, boosted, 1)
		assert.Equal(t, n1.ID, boosted[0].Item.ID)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no interest genres means no boost", func(t *testing.T) {
		recs := []models.ScoredItem{{Score: 80, Item: models.BookItem(existing)}}
		boosted, err := service.BoostNewItems(context.Background(), models.KindBook, recs, nil)

		require.NoError(t, err)
		assert.Equal(t, recs, boosted)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
