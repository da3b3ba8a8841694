package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ItemKind discriminates the two catalog taxonomies. Genres, ratings and
// preferences never cross kinds.
type ItemKind string

const (
	KindBook  ItemKind = "book"
	KindMedia ItemKind = "media"
)

func ParseItemKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case KindBook:
		return KindBook, nil
	case KindMedia:
		return KindMedia, nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

func (k ItemKind) Valid() bool {
	return k == KindBook || k == KindMedia
}

// Genre is a single entry in one of the two taxonomies. Names are unique
// within a kind, not across kinds.
type Genre struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name" validate:"required,min=1,max=100"`
	Kind ItemKind  `json:"-" db:"kind"`
}
