package services

import (
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/cache"
	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/database"
	"github.com/recanthology/engine/internal/messaging"
	"github.com/recanthology/engine/internal/repository"
)

type Services struct {
	Repos *repository.Repositories

	Auth      *AuthService
	Health    *HealthService
	RateLimit *RateLimitService
	Metrics   *MetricsService

	MessageBus *messaging.MessageBus
	Ingestion  *IngestionService

	Genres        *GenreService
	Preferences   *PreferenceService
	Content       *ContentService
	Similarity    *SimilarityService
	Collaborative *CollaborativeService
	ColdStart     *ColdStartService
	Signals       *SignalService
	Recommender   *RecommenderService
	Evaluation    *EvaluationService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	repos := repository.New(db.PG, logger)
	warm := cache.NewRedisStore(db.Redis.Warm)
	cold := cache.NewRedisStore(db.Redis.Cold)

	authService := NewAuthService(repos, cfg, logger, db.Redis.Hot)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis.Hot)
	metricsService := NewMetricsService()

	// Kafka backs rating events and catalog ingestion; the engine serves
	// recommendations without it.
	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Kafka unavailable, continuing without message bus")
		messageBus = nil
	}

	var kafkaPinger KafkaPinger
	if messageBus != nil {
		kafkaPinger = messageBus
	}
	healthService := NewHealthService(cfg, logger, db, kafkaPinger)

	// Recommendation pipeline
	genreService := NewGenreService(repos, logger)
	preferenceService := NewPreferenceService(repos, warm, cfg.Engine.Fusion.ResultTTL, metricsService, logger)
	contentService := NewContentService(repos, logger)
	similarityService := NewSimilarityService(repos, cold, &cfg.Engine.Collaborative, metricsService, logger)
	collaborativeService := NewCollaborativeService(repos, similarityService, &cfg.Engine, logger)
	coldStartService := NewColdStartService(repos, &cfg.Engine.ColdStart, logger)
	signalService := NewSignalService(repos, &cfg.Engine, logger)

	recommenderService := NewRecommenderService(
		repos, contentService, collaborativeService, coldStartService,
		signalService, preferenceService, warm, &cfg.Engine, metricsService, logger,
	)
	evaluationService := NewEvaluationService(
		repos, recommenderService, coldStartService, preferenceService, &cfg.Engine, logger,
	)

	ingestionService := NewIngestionService(repos, messageBus, logger)

	return &Services{
		Repos:         repos,
		Auth:          authService,
		Health:        healthService,
		RateLimit:     rateLimitService,
		Metrics:       metricsService,
		MessageBus:    messageBus,
		Ingestion:     ingestionService,
		Genres:        genreService,
		Preferences:   preferenceService,
		Content:       contentService,
		Similarity:    similarityService,
		Collaborative: collaborativeService,
		ColdStart:     coldStartService,
		Signals:       signalService,
		Recommender:   recommenderService,
		Evaluation:    evaluationService,
	}, nil
}
