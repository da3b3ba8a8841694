package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/middleware"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/pkg/models"
)

type UserHandler struct {
	repos       *repository.Repositories
	preferences *services.PreferenceService
	logger      *logrus.Logger
}

func NewUserHandler(logger *logrus.Logger, repos *repository.Repositories, preferences *services.PreferenceService) *UserHandler {
	return &UserHandler{
		repos:       repos,
		preferences: preferences,
		logger:      logger,
	}
}

// Me returns the authenticated user's account.
func (h *UserHandler) Me(c *gin.Context) {
	userID, _, _ := middleware.GetUserFromContext(c)

	user, err := h.repos.Users.ByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "No such user",
				},
			})
			return
		}
		h.logger.WithError(err).Error("Failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_FAILED",
				"message": "Failed to retrieve user profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Preferences returns the caller's derived genre preferences for both
// catalogs, served from the warm cache when fresh.
func (h *UserHandler) Preferences(c *gin.Context) {
	userID, _, _ := middleware.GetUserFromContext(c)

	prefs, err := h.preferences.Preferences(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load preferences")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PREFERENCES_FAILED",
				"message": "Failed to retrieve preferences",
			},
		})
		return
	}

	c.JSON(http.StatusOK, prefs)
}
