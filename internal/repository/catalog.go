package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/pkg/models"
)

const (
	bookColumns  = "b.id, b.title, b.author, b.isbn, b.description, b.language, b.edition, b.pages, b.liked_percent"
	mediaColumns = "m.id, m.media_type, m.original_title, m.primary_title, m.over18, m.startyear, m.length"
)

// CatalogRepository reads and writes genres, books and media. Read methods
// return items with their genre id sets attached.
type CatalogRepository struct {
	db     Querier
	logger *logrus.Logger
}

func (r *CatalogRepository) Genres(ctx context.Context, kind models.ItemKind) ([]models.Genre, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name FROM genres WHERE kind = $1 ORDER BY name ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("genres query failed: %w", err)
	}
	defer rows.Close()

	var genres []models.Genre
	for rows.Next() {
		g := models.Genre{Kind: kind}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func (r *CatalogRepository) CreateGenre(ctx context.Context, kind models.ItemKind, name string) (*models.Genre, error) {
	genre := models.Genre{ID: uuid.New(), Name: name, Kind: kind}
	_, err := r.db.Exec(ctx,
		`INSERT INTO genres (id, name, kind) VALUES ($1, $2, $3)`,
		genre.ID, genre.Name, string(kind))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("genre %q: %w", name, models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	return &genre, nil
}

// Item fetches one catalog item with its genres. Returns models.ErrNotFound
// for unknown ids.
func (r *CatalogRepository) Item(ctx context.Context, kind models.ItemKind, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	switch kind {
	case models.KindBook:
		book := &models.Book{}
		err := r.db.QueryRow(ctx,
			`SELECT `+bookColumns+` FROM books b WHERE b.id = $1`, id).
			Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Description,
				&book.Language, &book.Edition, &book.Pages, &book.LikedPercent)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("book %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("book query failed: %w", err)
		}
		item = models.BookItem(book)
	case models.KindMedia:
		media := &models.Media{}
		err := r.db.QueryRow(ctx,
			`SELECT `+mediaColumns+` FROM media m WHERE m.id = $1`, id).
			Scan(&media.ID, &media.MediaType, &media.OriginalTitle, &media.PrimaryTitle,
				&media.Over18, &media.StartYear, &media.Length)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("media %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("media query failed: %w", err)
		}
		item = models.MediaItem(media)
	default:
		return nil, fmt.Errorf("item kind %q: %w", kind, models.ErrInvalidInput)
	}

	if err := r.attachGenres(ctx, kind, []*models.CatalogItem{&item}); err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsByGenre returns up to limit items tagged with a genre, most relevant
// first: books by descending likedPercent, media by descending start year,
// id ascending on ties.
func (r *CatalogRepository) ItemsByGenre(ctx context.Context, kind models.ItemKind, genreID uuid.UUID, limit int) ([]models.CatalogItem, error) {
	var query string
	if kind == models.KindBook {
		query = `SELECT ` + bookColumns + `
			FROM books b
			JOIN book_genres bg ON bg.book_id = b.id
			WHERE bg.genre_id = $1
			ORDER BY b.liked_percent DESC, b.id ASC
			LIMIT $2`
	} else {
		query = `SELECT ` + mediaColumns + `
			FROM media m
			JOIN media_genres mg ON mg.media_id = m.id
			WHERE mg.genre_id = $1
			ORDER BY m.startyear DESC, m.id ASC
			LIMIT $2`
	}

	rows, err := r.db.Query(ctx, query, genreID, limit)
	if err != nil {
		return nil, fmt.Errorf("items by genre query failed: %w", err)
	}
	items, err := r.scanItems(rows, kind)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, kind, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListItems returns the top-limit items by the kind's popularity field.
func (r *CatalogRepository) ListItems(ctx context.Context, kind models.ItemKind, limit int) ([]models.CatalogItem, error) {
	var query string
	if kind == models.KindBook {
		query = `SELECT ` + bookColumns + ` FROM books b
			ORDER BY b.liked_percent DESC, b.id ASC LIMIT $1`
	} else {
		query = `SELECT ` + mediaColumns + ` FROM media m
			ORDER BY m.startyear DESC, m.id ASC LIMIT $1`
	}

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list items query failed: %w", err)
	}
	items, err := r.scanItems(rows, kind)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, kind, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsByGenres returns distinct items tagged with any of the given genres,
// ordered by the kind's popularity field.
func (r *CatalogRepository) ItemsByGenres(ctx context.Context, kind models.ItemKind, genreIDs []uuid.UUID, limit int) ([]models.CatalogItem, error) {
	if len(genreIDs) == 0 {
		return r.ListItems(ctx, kind, limit)
	}

	var query string
	if kind == models.KindBook {
		query = `SELECT DISTINCT ` + bookColumns + `
			FROM books b
			JOIN book_genres bg ON bg.book_id = b.id
			WHERE bg.genre_id = ANY($1::uuid[])
			ORDER BY b.liked_percent DESC, b.id ASC
			LIMIT $2`
	} else {
		query = `SELECT DISTINCT ` + mediaColumns + `
			FROM media m
			JOIN media_genres mg ON mg.media_id = m.id
			WHERE mg.genre_id = ANY($1::uuid[])
			ORDER BY m.startyear DESC, m.id ASC
			LIMIT $2`
	}

	rows, err := r.db.Query(ctx, query, uuidStrings(genreIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("items by genres query failed: %w", err)
	}
	items, err := r.scanItems(rows, kind)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, kind, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsByIDs fetches the given items in one round trip, genre sets attached.
// Unknown ids are skipped, not errors.
func (r *CatalogRepository) ItemsByIDs(ctx context.Context, kind models.ItemKind, ids []uuid.UUID) ([]models.CatalogItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var query string
	if kind == models.KindBook {
		query = `SELECT ` + bookColumns + ` FROM books b WHERE b.id = ANY($1::uuid[]) ORDER BY b.id ASC`
	} else {
		query = `SELECT ` + mediaColumns + ` FROM media m WHERE m.id = ANY($1::uuid[]) ORDER BY m.id ASC`
	}

	rows, err := r.db.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("items by ids query failed: %w", err)
	}
	items, err := r.scanItems(rows, kind)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, kind, items); err != nil {
		return nil, err
	}
	return items, nil
}

// GenresOfItems returns the genre id set per item without loading item rows.
func (r *CatalogRepository) GenresOfItems(ctx context.Context, kind models.ItemKind, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]uuid.UUID{}, nil
	}
	t := tablesFor(kind)

	query := fmt.Sprintf(`SELECT %s, genre_id FROM %s WHERE %s = ANY($1::uuid[])`,
		t.itemFK, t.itemGenres, t.itemFK)
	rows, err := r.db.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("genre links query failed: %w", err)
	}
	defer rows.Close()

	genres := make(map[uuid.UUID][]uuid.UUID, len(ids))
	for rows.Next() {
		var itemID, genreID uuid.UUID
		if err := rows.Scan(&itemID, &genreID); err != nil {
			return nil, fmt.Errorf("failed to scan genre link: %w", err)
		}
		genres[itemID] = append(genres[itemID], genreID)
	}
	return genres, rows.Err()
}

// ItemsWithRatingCountBelow returns items rated fewer than threshold times,
// most rated first, with their genre sets. Feeds the new-item boost.
func (r *CatalogRepository) ItemsWithRatingCountBelow(ctx context.Context, kind models.ItemKind, threshold, limit int) ([]models.CatalogItem, error) {
	t := tablesFor(kind)

	var cols, alias string
	if kind == models.KindBook {
		cols, alias = bookColumns, "b"
	} else {
		cols, alias = mediaColumns, "m"
	}
	query := fmt.Sprintf(`SELECT %s, COUNT(r.user_id) AS rating_count
		FROM %s %s
		LEFT JOIN %s r ON r.%s = %s.id
		GROUP BY %s.id
		HAVING COUNT(r.user_id) < $1
		ORDER BY rating_count DESC, %s.id ASC
		LIMIT $2`,
		cols, t.items, alias, t.ratings, t.itemFK, alias, alias, alias)

	rows, err := r.db.Query(ctx, query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("under-rated items query failed: %w", err)
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		var ratingCount int
		if kind == models.KindBook {
			book := &models.Book{}
			if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Description,
				&book.Language, &book.Edition, &book.Pages, &book.LikedPercent, &ratingCount); err != nil {
				return nil, fmt.Errorf("failed to scan under-rated book: %w", err)
			}
			items = append(items, models.BookItem(book))
		} else {
			media := &models.Media{}
			if err := rows.Scan(&media.ID, &media.MediaType, &media.OriginalTitle, &media.PrimaryTitle,
				&media.Over18, &media.StartYear, &media.Length, &ratingCount); err != nil {
				return nil, fmt.Errorf("failed to scan under-rated media: %w", err)
			}
			items = append(items, models.MediaItem(media))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, kind, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FilterBooks narrows the book catalog; every filter field is optional.
func (r *CatalogRepository) FilterBooks(ctx context.Context, filter models.BookFilter, limit int) ([]models.CatalogItem, error) {
	query := `SELECT DISTINCT ` + bookColumns + ` FROM books b`
	args := []interface{}{}
	argIndex := 1

	if len(filter.Genres) > 0 {
		query += ` JOIN book_genres bg ON bg.book_id = b.id`
	}
	query += ` WHERE 1=1`

	if len(filter.Genres) > 0 {
		query += fmt.Sprintf(" AND bg.genre_id = ANY($%d::uuid[])", argIndex)
		args = append(args, uuidStrings(filter.Genres))
		argIndex++
	}
	if filter.Author != "" {
		query += fmt.Sprintf(" AND b.author ILIKE $%d", argIndex)
		args = append(args, "%"+filter.Author+"%")
		argIndex++
	}
	if filter.Language != "" {
		query += fmt.Sprintf(" AND b.language ILIKE $%d", argIndex)
		args = append(args, filter.Language)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY b.liked_percent DESC, b.id ASC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("book filter query failed: %w", err)
	}
	items, err := r.scanItems(rows, models.KindBook)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, models.KindBook, items); err != nil {
		return nil, err
	}
	return items, nil
}

// FilterMedia narrows the media catalog; every filter field is optional.
func (r *CatalogRepository) FilterMedia(ctx context.Context, filter models.MediaFilter, limit int) ([]models.CatalogItem, error) {
	query := `SELECT DISTINCT ` + mediaColumns + ` FROM media m`
	args := []interface{}{}
	argIndex := 1

	if len(filter.Genres) > 0 {
		query += ` JOIN media_genres mg ON mg.media_id = m.id`
	}
	query += ` WHERE 1=1`

	if len(filter.Genres) > 0 {
		query += fmt.Sprintf(" AND mg.genre_id = ANY($%d::uuid[])", argIndex)
		args = append(args, uuidStrings(filter.Genres))
		argIndex++
	}
	if filter.MediaType != "" {
		query += fmt.Sprintf(" AND m.media_type = $%d", argIndex)
		args = append(args, filter.MediaType)
		argIndex++
	}
	if filter.Over18 != nil {
		query += fmt.Sprintf(" AND m.over18 = $%d", argIndex)
		args = append(args, *filter.Over18)
		argIndex++
	}
	if filter.StartYearFrom != nil {
		query += fmt.Sprintf(" AND m.startyear >= $%d", argIndex)
		args = append(args, *filter.StartYearFrom)
		argIndex++
	}
	if filter.StartYearTo != nil {
		query += fmt.Sprintf(" AND m.startyear <= $%d", argIndex)
		args = append(args, *filter.StartYearTo)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY m.startyear DESC, m.id ASC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("media filter query failed: %w", err)
	}
	items, err := r.scanItems(rows, models.KindMedia)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenresSlice(ctx, models.KindMedia, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *CatalogRepository) CreateBook(ctx context.Context, req *models.BookCreateRequest) (*models.Book, error) {
	book := &models.Book{
		ID:           uuid.New(),
		Title:        req.Title,
		Author:       req.Author,
		ISBN:         req.ISBN,
		Description:  req.Description,
		Language:     req.Language,
		Edition:      req.Edition,
		Pages:        req.Pages,
		LikedPercent: req.LikedPercent,
		Genres:       req.Genres,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO books (id, title, author, isbn, description, language, edition, pages, liked_percent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Description,
		book.Language, book.Edition, book.Pages, book.LikedPercent)
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	for _, genreID := range req.Genres {
		if _, err := tx.Exec(ctx,
			`INSERT INTO book_genres (book_id, genre_id) VALUES ($1, $2)`,
			book.ID, genreID); err != nil {
			return nil, fmt.Errorf("failed to link book genre: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit book: %w", err)
	}
	return book, nil
}

func (r *CatalogRepository) CreateMedia(ctx context.Context, req *models.MediaCreateRequest) (*models.Media, error) {
	media := &models.Media{
		ID:            uuid.New(),
		MediaType:     req.MediaType,
		OriginalTitle: req.OriginalTitle,
		PrimaryTitle:  req.PrimaryTitle,
		Over18:        req.Over18,
		StartYear:     req.StartYear,
		Length:        req.Length,
		Genres:        req.Genres,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO media (id, media_type, original_title, primary_title, over18, startyear, length)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		media.ID, media.MediaType, media.OriginalTitle, media.PrimaryTitle,
		media.Over18, media.StartYear, media.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to insert media: %w", err)
	}

	for _, genreID := range req.Genres {
		if _, err := tx.Exec(ctx,
			`INSERT INTO media_genres (media_id, genre_id) VALUES ($1, $2)`,
			media.ID, genreID); err != nil {
			return nil, fmt.Errorf("failed to link media genre: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit media: %w", err)
	}
	return media, nil
}

func (r *CatalogRepository) scanItems(rows pgx.Rows, kind models.ItemKind) ([]models.CatalogItem, error) {
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		if kind == models.KindBook {
			book := &models.Book{}
			if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Description,
				&book.Language, &book.Edition, &book.Pages, &book.LikedPercent); err != nil {
				return nil, fmt.Errorf("failed to scan book: %w", err)
			}
			items = append(items, models.BookItem(book))
		} else {
			media := &models.Media{}
			if err := rows.Scan(&media.ID, &media.MediaType, &media.OriginalTitle, &media.PrimaryTitle,
				&media.Over18, &media.StartYear, &media.Length); err != nil {
				return nil, fmt.Errorf("failed to scan media: %w", err)
			}
			items = append(items, models.MediaItem(media))
		}
	}
	return items, rows.Err()
}

func (r *CatalogRepository) attachGenresSlice(ctx context.Context, kind models.ItemKind, items []models.CatalogItem) error {
	refs := make([]*models.CatalogItem, len(items))
	for i := range items {
		refs[i] = &items[i]
	}
	return r.attachGenres(ctx, kind, refs)
}

// attachGenres stitches genre id sets onto items with one batch query.
func (r *CatalogRepository) attachGenres(ctx context.Context, kind models.ItemKind, items []*models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	t := tablesFor(kind)

	byID := make(map[uuid.UUID]*models.CatalogItem, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		byID[item.ID] = item
		ids = append(ids, item.ID.String())
	}

	query := fmt.Sprintf(`SELECT %s, genre_id FROM %s WHERE %s = ANY($1::uuid[])`,
		t.itemFK, t.itemGenres, t.itemFK)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("genre links query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, genreID uuid.UUID
		if err := rows.Scan(&itemID, &genreID); err != nil {
			return fmt.Errorf("failed to scan genre link: %w", err)
		}
		item, ok := byID[itemID]
		if !ok {
			continue
		}
		switch kind {
		case models.KindBook:
			item.Book.Genres = append(item.Book.Genres, genreID)
		case models.KindMedia:
			item.Media.Genres = append(item.Media.Genres, genreID)
		}
	}
	return rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
