package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newMockRepos(t *testing.T) (pgxmock.PgxPoolIface, *repository.Repositories) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return mockDB, repository.New(mockDB, newTestLogger())
}

// seedIdentity plays the part of the auth middleware for routes that read
// the caller from the request context.
func seedIdentity(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("username", "reader")
		c.Set("role", "user")
		c.Next()
	}
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func fixedUUID(n byte) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012x", n))
}

func testBook(id uuid.UUID, title, author string, likedPercent float64, genres ...uuid.UUID) *models.Book {
	return &models.Book{
		ID:           id,
		Title:        title,
		Author:       author,
		Language:     "english",
		LikedPercent: likedPercent,
		Genres:       genres,
	}
}

func bookRows(books ...*models.Book) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "title", "author", "isbn", "description",
		"language", "edition", "pages", "liked_percent",
	})
	for _, b := range books {
		rows.AddRow(b.ID, b.Title, b.Author, b.ISBN, b.Description,
			b.Language, b.Edition, b.Pages, b.LikedPercent)
	}
	return rows
}

func bookLinkRows(books ...*models.Book) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"book_id", "genre_id"})
	for _, b := range books {
		for _, genreID := range b.Genres {
			rows.AddRow(b.ID, genreID)
		}
	}
	return rows
}

// genreRows assigns deterministic ids starting at fixedUUID(100) so tests
// can predict the resolved genre of each listed name.
func genreRows(names ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "name"})
	for i, name := range names {
		rows.AddRow(fixedUUID(byte(100+i)), name)
	}
	return rows
}

func uuidArgs(ids ...uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
