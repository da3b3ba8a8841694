package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/messaging"
	"github.com/recanthology/engine/internal/middleware"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/pkg/models"
)

type RatingHandler struct {
	repos       *repository.Repositories
	preferences *services.PreferenceService
	similarity  *services.SimilarityService
	messageBus  *messaging.MessageBus
	metrics     *services.MetricsService
	validator   *validator.Validate
	logger      *logrus.Logger
}

func NewRatingHandler(logger *logrus.Logger, repos *repository.Repositories, preferences *services.PreferenceService, similarity *services.SimilarityService, messageBus *messaging.MessageBus, metrics *services.MetricsService) *RatingHandler {
	return &RatingHandler{
		repos:       repos,
		preferences: preferences,
		similarity:  similarity,
		messageBus:  messageBus,
		metrics:     metrics,
		validator:   validator.New(),
		logger:      logger,
	}
}

// Upsert writes or overwrites the caller's rating for one item, then
// rederives genre preferences and drops the item's similarity cache so the
// next recommendation request sees the new taste profile.
func (h *RatingHandler) Upsert(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, _ := middleware.GetUserFromContext(c)

		var request models.RatingRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_JSON",
					"message": "Invalid JSON format",
					"details": err.Error(),
				},
			})
			return
		}
		if err := h.validator.Struct(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "VALIDATION_FAILED",
					"message": "Rating validation failed",
					"details": err.Error(),
				},
			})
			return
		}

		ctx := c.Request.Context()

		if _, err := h.repos.Catalog.Item(ctx, kind, request.ItemID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": gin.H{
						"code":    "ITEM_NOT_FOUND",
						"message": "No such item",
					},
				})
				return
			}
			h.logger.WithError(err).Error("Item lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RATING_FAILED",
					"message": "Failed to store rating",
				},
			})
			return
		}

		rating := models.Rating{
			UserID:    userID,
			ItemID:    request.ItemID,
			Value:     request.Value,
			UpdatedAt: time.Now(),
		}

		if err := h.repos.Ratings.UpsertRating(ctx, kind, rating); err != nil {
			if errors.Is(err, models.ErrIntegrity) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": gin.H{
						"code":    "RATING_REJECTED",
						"message": "Rating value is out of range",
					},
				})
				return
			}
			h.logger.WithError(err).Error("Rating write failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RATING_FAILED",
					"message": "Failed to store rating",
				},
			})
			return
		}

		// The rating is durable; everything downstream is best effort.
		if err := h.preferences.Derive(ctx, kind, userID); err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Error("Preference derivation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "PREFERENCE_DERIVATION_FAILED",
					"message": "Rating stored but preference update failed",
				},
			})
			return
		}

		h.similarity.Invalidate(ctx, kind, request.ItemID)

		if h.messageBus != nil {
			event := messaging.RatingEvent{
				UserID:    userID,
				Kind:      kind,
				ItemID:    request.ItemID,
				Value:     request.Value,
				Timestamp: rating.UpdatedAt,
			}
			if err := h.messageBus.PublishRatingEvent(ctx, event); err != nil {
				h.logger.WithError(err).Warn("Rating event publish failed")
			}
		}

		h.metrics.RatingWritten(kind)

		c.JSON(http.StatusOK, gin.H{
			"message": "Rating stored",
			"rating":  rating,
		})
	}
}
