package models

import (
	"github.com/google/uuid"
)

type Book struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Title        string      `json:"title" db:"title" validate:"required,min=1,max=255"`
	Author       string      `json:"author" db:"author" validate:"required,min=1,max=255"`
	ISBN         *string     `json:"isbn,omitempty" db:"isbn"`
	Description  *string     `json:"description,omitempty" db:"description"`
	Language     string      `json:"language" db:"language"`
	Edition      *string     `json:"edition,omitempty" db:"edition"`
	Pages        *int        `json:"pages,omitempty" db:"pages"`
	LikedPercent float64     `json:"likedPercent" db:"liked_percent" validate:"min=0,max=100"`
	Genres       []uuid.UUID `json:"genres"`
}

type Media struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	MediaType     string      `json:"media_type" db:"media_type" validate:"required,min=1,max=50"`
	OriginalTitle string      `json:"original_title" db:"original_title" validate:"required,min=1,max=255"`
	PrimaryTitle  string      `json:"primary_title" db:"primary_title" validate:"required,min=1,max=255"`
	Over18        bool        `json:"over18" db:"over18"`
	StartYear     int         `json:"startyear" db:"startyear"`
	Length        *int        `json:"length,omitempty" db:"length"` // minutes
	Genres        []uuid.UUID `json:"genres"`
}

// CatalogItem is the kind-neutral view the scoring pipeline works with.
// Exactly one of Book or Media is set, matching Kind.
type CatalogItem struct {
	ID    uuid.UUID
	Kind  ItemKind
	Book  *Book
	Media *Media
}

func (ci CatalogItem) GenreIDs() []uuid.UUID {
	switch ci.Kind {
	case KindBook:
		if ci.Book != nil {
			return ci.Book.Genres
		}
	case KindMedia:
		if ci.Media != nil {
			return ci.Media.Genres
		}
	}
	return nil
}

func BookItem(b *Book) CatalogItem {
	return CatalogItem{ID: b.ID, Kind: KindBook, Book: b}
}

func MediaItem(m *Media) CatalogItem {
	return CatalogItem{ID: m.ID, Kind: KindMedia, Media: m}
}

type BookCreateRequest struct {
	Title        string      `json:"title" validate:"required,min=1,max=255"`
	Author       string      `json:"author" validate:"required,min=1,max=255"`
	ISBN         *string     `json:"isbn,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Language     string      `json:"language" validate:"required,min=1,max=50"`
	Edition      *string     `json:"edition,omitempty"`
	Pages        *int        `json:"pages,omitempty" validate:"omitempty,min=1"`
	LikedPercent float64     `json:"likedPercent" validate:"min=0,max=100"`
	Genres       []uuid.UUID `json:"genres" validate:"required,min=1"`
}

type MediaCreateRequest struct {
	MediaType     string      `json:"media_type" validate:"required,min=1,max=50"`
	OriginalTitle string      `json:"original_title" validate:"required,min=1,max=255"`
	PrimaryTitle  string      `json:"primary_title" validate:"required,min=1,max=255"`
	Over18        bool        `json:"over18"`
	StartYear     int         `json:"startyear" validate:"required,min=1800,max=2100"`
	Length        *int        `json:"length,omitempty" validate:"omitempty,min=1"`
	Genres        []uuid.UUID `json:"genres" validate:"required,min=1"`
}

type GenreCreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// BookFilter narrows a catalog listing. Zero values mean "no constraint".
type BookFilter struct {
	Genres   []uuid.UUID `json:"genres,omitempty"`
	Author   string      `json:"author,omitempty"`
	Language string      `json:"language,omitempty"`
}

type MediaFilter struct {
	Genres        []uuid.UUID `json:"genres,omitempty"`
	MediaType     string      `json:"media_type,omitempty"`
	Over18        *bool       `json:"over18,omitempty"`
	StartYearFrom *int        `json:"startyear_from,omitempty"`
	StartYearTo   *int        `json:"startyear_to,omitempty"`
}

// CatalogIngestRequest is the admin bulk-ingestion payload. Items are
// validated and published onto the ingestion topic one by one.
type CatalogIngestRequest struct {
	Kind  ItemKind             `json:"kind" validate:"required,oneof=book media"`
	Books []BookCreateRequest  `json:"books,omitempty" validate:"omitempty,max=500,dive"`
	Media []MediaCreateRequest `json:"media,omitempty" validate:"omitempty,max=500,dive"`
}
