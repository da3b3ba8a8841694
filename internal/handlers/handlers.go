package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Auth           *AuthHandler
	Catalog        *CatalogHandler
	Recommendation *RecommendationHandler
	Rating         *RatingHandler
	User           *UserHandler
}

func New(logger *logrus.Logger, cfg *config.Config, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Auth:           NewAuthHandler(logger, svc.Auth),
		Catalog:        NewCatalogHandler(logger, svc.Repos, svc.Genres, svc.MessageBus),
		Recommendation: NewRecommendationHandler(logger, svc.Recommender, svc.Genres, svc.Metrics, cfg.Engine.Public.MaxRequestGenres),
		Rating:         NewRatingHandler(logger, svc.Repos, svc.Preferences, svc.Similarity, svc.MessageBus, svc.Metrics),
		User:           NewUserHandler(logger, svc.Repos, svc.Preferences),
	}
}
