package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/pkg/models"
)

// testConfig mirrors the shipped defaults so test expectations track the
// real tuning values.
func testConfig() *config.EngineConfig {
	return &config.EngineConfig{
		LikedThreshold: 7,
		Content: config.ContentConfig{
			MaxGenres:          10,
			MaxItemsPerGenre:   21,
			DefaultPreference:  6.0,
			RelativityDecimals: 1,
		},
		Public: config.PublicConfig{
			MaxGenres:         5,
			MaxItemsPerGenre:  6,
			DefaultPreference: 6.0,
			MaxRequestGenres:  20,
		},
		Collaborative: config.CollaborativeConfig{
			MaxSeedItems:     10,
			NeighborsPerSeed: 50,
			Shrinkage:        25.0,
			SimilarityTTL:    6 * time.Hour,
		},
		ColdStart: config.ColdStartConfig{
			MinRatings:  5,
			BoostFactor: 15.0,
			MaxBoosted:  10,
		},
		Signals: config.SignalsConfig{
			MaxBonus:         30,
			PopularityWeight: 10,
			RecencyWeight:    8,
			AuthorWeight:     12,
			LanguageWeight:   5,
			MediaTypeWeight:  8,
		},
		Fusion: config.FusionConfig{
			CFWeight:       0.4,
			CountThreshold: 15,
			TopN:           100,
			ResultTTL:      time.Hour,
		},
		Evaluation: config.EvaluationConfig{
			K:          10,
			SplitRatio: 0.8,
			Seed:       42,
			MaxUsers:   50,
		},
	}
}

// fixedUUID returns a deterministic id whose byte order follows n, so tie
// breaks in ranked output are predictable.
func fixedUUID(n byte) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012x", n))
}

func testBook(id uuid.UUID, title, author, language string, likedPercent float64, genres ...uuid.UUID) *models.Book {
	return &models.Book{
		ID:           id,
		Title:        title,
		Author:       author,
		Language:     language,
		LikedPercent: likedPercent,
		Genres:       genres,
	}
}

func testMedia(id uuid.UUID, mediaType, title string, startYear int, genres ...uuid.UUID) *models.Media {
	return &models.Media{
		ID:            id,
		MediaType:     mediaType,
		OriginalTitle: title,
		PrimaryTitle:  title,
		StartYear:     startYear,
		Genres:        genres,
	}
}

func bookRows(books ...*models.Book) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "title", "author", "isbn", "description", "language", "edition", "pages", "liked_percent"})
	for _, b := range books {
		rows.AddRow(b.ID, b.Title, b.Author, b.ISBN, b.Description, b.Language, b.Edition, b.Pages, b.LikedPercent)
	}
	return rows
}

func mediaRows(media ...*models.Media) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "media_type", "original_title", "primary_title", "over18", "startyear", "length"})
	for _, m := range media {
		rows.AddRow(m.ID, m.MediaType, m.OriginalTitle, m.PrimaryTitle, m.Over18, m.StartYear, m.Length)
	}
	return rows
}

// bookLinkRows flattens the fixtures' genre sets into (book_id, genre_id)
// rows, matching the batch genre link fetch that follows every item query.
func bookLinkRows(books ...*models.Book) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"book_id", "genre_id"})
	for _, b := range books {
		for _, genreID := range b.Genres {
			rows.AddRow(b.ID, genreID)
		}
	}
	return rows
}

func mediaLinkRows(media ...*models.Media) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"media_id", "genre_id"})
	for _, m := range media {
		for _, genreID := range m.Genres {
			rows.AddRow(m.ID, genreID)
		}
	}
	return rows
}

func ratingRows(ratings ...models.Rating) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"user_id", "item_id", "value"})
	for _, rt := range ratings {
		rows.AddRow(rt.UserID, rt.ItemID, rt.Value)
	}
	return rows
}

func rankedIDs(items []models.ScoredItem) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].Item.ID
	}
	return ids
}
