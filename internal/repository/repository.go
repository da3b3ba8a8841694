package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/pkg/models"
)

// Querier is the pgx surface the repositories run on; satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repositories struct {
	Catalog *CatalogRepository
	Ratings *RatingRepository
	Users   *UserRepository
}

func New(db Querier, logger *logrus.Logger) *Repositories {
	return &Repositories{
		Catalog: &CatalogRepository{db: db, logger: logger},
		Ratings: &RatingRepository{db: db, logger: logger},
		Users:   &UserRepository{db: db, logger: logger},
	}
}

// kindTables resolves the per-taxonomy table set. Identifiers cannot be
// bound as query parameters, so the two kinds each get their own statements
// built from this map.
type kindTables struct {
	items       string
	itemGenres  string
	ratings     string
	preferences string
	itemFK      string
	// popularity is the ORDER BY expression for "most relevant first".
	popularity string
}

func tablesFor(kind models.ItemKind) kindTables {
	if kind == models.KindBook {
		return kindTables{
			items:       "books",
			itemGenres:  "book_genres",
			ratings:     "book_ratings",
			preferences: "book_preferences",
			itemFK:      "book_id",
			popularity:  "liked_percent",
		}
	}
	return kindTables{
		items:       "media",
		itemGenres:  "media_genres",
		ratings:     "media_ratings",
		preferences: "media_preferences",
		itemFK:      "media_id",
		popularity:  "startyear",
	}
}
