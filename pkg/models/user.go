package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username" validate:"required,min=3,max=64"`
	Email        string    `json:"email" db:"email" validate:"required,email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Salt         string    `json:"-" db:"salt"`
	Role         string    `json:"role" db:"role"` // user, admin
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Rating is a single user verdict on one item, 1..10, one row per
// (user, item). Writes overwrite the previous value.
type Rating struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ItemID    uuid.UUID `json:"item_id" db:"item_id"`
	Value     int       `json:"value" db:"value" validate:"required,min=1,max=10"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RatingRequest struct {
	ItemID uuid.UUID `json:"item_id" validate:"required"`
	Value  int       `json:"value" validate:"required,min=1,max=10"`
}

// GenrePreference is a derived per-genre affinity in [-5, 5], recomputed
// from the user's ratings after every rating write.
type GenrePreference struct {
	UserID     uuid.UUID `json:"-" db:"user_id"`
	GenreID    uuid.UUID `json:"-" db:"genre_id"`
	GenreName  string    `json:"genre_name" db:"genre_name"`
	Preference float64   `json:"preference" db:"preference"`
}

type PreferencesResponse struct {
	Books []GenrePreference `json:"books"`
	Media []GenrePreference `json:"media"`
}
