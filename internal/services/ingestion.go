package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/messaging"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/pkg/models"
)

const ingestTimeout = 30 * time.Second

// IngestionService drains the catalog ingestion topic and writes items
// into PostgreSQL. Duplicate submissions surface as conflicts and are
// dropped rather than retried.
type IngestionService struct {
	repos  *repository.Repositories
	bus    *messaging.MessageBus
	logger *logrus.Logger
}

func NewIngestionService(repos *repository.Repositories, bus *messaging.MessageBus, logger *logrus.Logger) *IngestionService {
	return &IngestionService{repos: repos, bus: bus, logger: logger}
}

// Start runs the consumer loop until ctx is cancelled. Call in a goroutine.
func (s *IngestionService) Start(ctx context.Context) {
	if s.bus == nil {
		s.logger.Warn("Message bus not configured, catalog ingestion consumer disabled")
		return
	}

	s.logger.Info("Catalog ingestion consumer started")
	if err := s.bus.ConsumeIngestion(ctx, s.handle); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Catalog ingestion consumer stopped")
	}
}

func (s *IngestionService) handle(msg messaging.IngestionMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	var err error
	switch msg.Kind {
	case models.KindBook:
		if msg.Book == nil {
			return fmt.Errorf("book ingestion message without payload")
		}
		_, err = s.repos.Catalog.CreateBook(ctx, msg.Book)
	case models.KindMedia:
		if msg.Media == nil {
			return fmt.Errorf("media ingestion message without payload")
		}
		_, err = s.repos.Catalog.CreateMedia(ctx, msg.Media)
	default:
		return fmt.Errorf("unknown ingestion kind %q", msg.Kind)
	}

	if err != nil {
		// Conflicts mean the item already exists; dropping keeps replays
		// idempotent.
		if errors.Is(err, models.ErrConflict) {
			s.logger.WithFields(logrus.Fields{
				"job_id": msg.JobID,
				"kind":   msg.Kind,
			}).Debug("Ingested item already exists, skipping")
			return nil
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"job_id": msg.JobID,
		"kind":   msg.Kind,
	}).Debug("Catalog item ingested")
	return nil
}
