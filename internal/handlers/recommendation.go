package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/middleware"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/pkg/models"
)

type RecommendationHandler struct {
	recommender      *services.RecommenderService
	genreService     *services.GenreService
	metrics          *services.MetricsService
	maxRequestGenres int
	logger           *logrus.Logger
}

func NewRecommendationHandler(logger *logrus.Logger, recommender *services.RecommenderService, genreService *services.GenreService, metrics *services.MetricsService, maxRequestGenres int) *RecommendationHandler {
	return &RecommendationHandler{
		recommender:      recommender,
		genreService:     genreService,
		metrics:          metrics,
		maxRequestGenres: maxRequestGenres,
		logger:           logger,
	}
}

// Public serves anonymous recommendations from a genre-name preference map.
// Names are matched against the catalog taxonomy; unresolvable or ambiguous
// names reject the whole request so callers can correct their spelling.
func (h *RecommendationHandler) Public(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var input map[string]float64
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_JSON",
					"message": "Invalid JSON format",
					"details": err.Error(),
				},
			})
			return
		}
		if h.maxRequestGenres > 0 && len(input) > h.maxRequestGenres {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "TOO_MANY_GENRES",
					"message": fmt.Sprintf("At most %d genres per request", h.maxRequestGenres),
				},
			})
			return
		}

		resolved, err := h.genreService.Resolve(c.Request.Context(), kind, input)
		if err != nil {
			var resolution *models.GenreResolutionError
			if errors.As(err, &resolution) {
				c.JSON(http.StatusNotAcceptable, gin.H{
					"error": gin.H{
						"code":    "GENRES_UNRESOLVED",
						"message": resolution.Error(),
						"detail":  resolution.Detail,
					},
				})
				return
			}
			h.logger.WithError(err).Error("Genre resolution failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RECOMMENDATION_FAILED",
					"message": "Failed to generate recommendations",
				},
			})
			return
		}

		response, err := h.recommender.RecommendPublic(c.Request.Context(), kind, resolved)
		if err != nil {
			h.logger.WithError(err).Error("Public recommendation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RECOMMENDATION_FAILED",
					"message": "Failed to generate recommendations",
				},
			})
			return
		}

		h.metrics.ObserveRecommendation(kind, "public", time.Since(start))
		c.JSON(http.StatusOK, response)
	}
}

// Private serves the authenticated hybrid ranking. Query params: cf toggles
// the collaborative half (default true), alpha overrides the fusion weight.
func (h *RecommendationHandler) Private(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		userID, _, _ := middleware.GetUserFromContext(c)

		opts := services.RecommendOptions{CF: true}

		if raw := c.DefaultQuery("cf", "true"); raw != "" {
			enabled, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": gin.H{
						"code":    "INVALID_CF",
						"message": "cf must be a boolean",
					},
				})
				return
			}
			opts.CF = enabled
		}

		if raw := c.Query("alpha"); raw != "" {
			weight, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": gin.H{
						"code":    "INVALID_ALPHA",
						"message": "alpha must be a number between 0 and 1",
					},
				})
				return
			}
			opts.CFWeight = &weight
		}

		response, err := h.recommender.RecommendForUser(c.Request.Context(), kind, userID, opts)
		if err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Error("Recommendation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RECOMMENDATION_FAILED",
					"message": "Failed to generate recommendations",
				},
			})
			return
		}

		mode := "content"
		if opts.CF {
			mode = "hybrid"
		}
		h.metrics.ObserveRecommendation(kind, mode, time.Since(start))
		c.JSON(http.StatusOK, response)
	}
}
