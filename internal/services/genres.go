package services

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

// GenreService lists taxonomies and resolves free-form genre names from
// public requests onto catalog genre ids.
type GenreService struct {
	repos  *repository.Repositories
	logger *logrus.Logger
}

func NewGenreService(repos *repository.Repositories, logger *logrus.Logger) *GenreService {
	return &GenreService{repos: repos, logger: logger}
}

func (s *GenreService) Genres(ctx context.Context, kind models.ItemKind) ([]models.Genre, error) {
	return s.repos.Catalog.Genres(ctx, kind)
}

// Resolve maps each requested genre name onto exactly one catalog genre,
// trying exact case-insensitive match, then a lowercase alphanumeric-only
// form with diacritics stripped, then substring containment. Names that
// stay unresolved or match more than one genre fail the whole request with
// a GenreResolutionError listing both groups and the available taxonomy.
func (s *GenreService) Resolve(ctx context.Context, kind models.ItemKind, input map[string]float64) (map[uuid.UUID]float64, error) {
	genres, err := s.repos.Catalog.Genres(ctx, kind)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)

	detail := models.GenreResolutionDetail{}
	needed := make(map[uuid.UUID]float64, len(input))
	for _, name := range names {
		matches := matchGenre(name, genres)
		switch len(matches) {
		case 1:
			needed[matches[0].ID] = input[name]
		case 0:
			detail.NotFound = append(detail.NotFound, name)
		default:
			detail.Ambiguous = append(detail.Ambiguous, name)
		}
	}

	if len(detail.NotFound) > 0 || len(detail.Ambiguous) > 0 {
		for _, g := range genres {
			detail.AvailableGenres = append(detail.AvailableGenres, g.Name)
		}
		sort.Strings(detail.AvailableGenres)
		s.logger.WithFields(logrus.Fields{
			"kind":      kind,
			"not_found": detail.NotFound,
			"ambiguous": detail.Ambiguous,
		}).Debug("Genre resolution failed")
		return nil, &models.GenreResolutionError{Detail: detail}
	}
	return needed, nil
}

// matchGenre runs the three resolution stages and returns the matches of
// the first stage that produced any.
func matchGenre(name string, genres []models.Genre) []models.Genre {
	var matches []models.Genre
	for _, g := range genres {
		if strings.EqualFold(g.Name, name) {
			matches = append(matches, g)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	normalized := normalizeGenreName(name)
	for _, g := range genres {
		if normalizeGenreName(g.Name) == normalized {
			matches = append(matches, g)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	for _, g := range genres {
		if strings.Contains(normalizeGenreName(g.Name), normalized) {
			matches = append(matches, g)
		}
	}
	return matches
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeGenreName lowercases, strips diacritics and drops everything
// that is not a letter or digit, so "Sci-Fi" and "sci fi" both become
// "scifi".
func normalizeGenreName(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
