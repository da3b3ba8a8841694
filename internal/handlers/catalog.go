package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/messaging"
	"github.com/recanthology/engine/internal/repository"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/pkg/models"
)

// catalogListLimit caps the public listing and filter endpoints.
const catalogListLimit = 50

type CatalogHandler struct {
	repos        *repository.Repositories
	genreService *services.GenreService
	messageBus   *messaging.MessageBus
	validator    *validator.Validate
	logger       *logrus.Logger
}

type IngestResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Queued  int       `json:"queued"`
	Message string    `json:"message"`
}

func NewCatalogHandler(logger *logrus.Logger, repos *repository.Repositories, genreService *services.GenreService, messageBus *messaging.MessageBus) *CatalogHandler {
	return &CatalogHandler{
		repos:        repos,
		genreService: genreService,
		messageBus:   messageBus,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Genres lists one taxonomy, name-sorted.
func (h *CatalogHandler) Genres(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		genres, err := h.genreService.Genres(c.Request.Context(), kind)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list genres")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "GENRE_LIST_FAILED",
					"message": "Failed to list genres",
				},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"genres": genres})
	}
}

// List returns the top catalog items of one kind by its popularity field.
func (h *CatalogHandler) List(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.repos.Catalog.ListItems(c.Request.Context(), kind, catalogListLimit)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list catalog items")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "CATALOG_LIST_FAILED",
					"message": "Failed to list catalog items",
				},
			})
			return
		}
		c.JSON(http.StatusOK, itemsPayload(kind, items))
	}
}

// Get returns a single item with its genres.
func (h *CatalogHandler) Get(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_ITEM_ID",
					"message": "Item ID must be a valid UUID",
				},
			})
			return
		}

		item, err := h.repos.Catalog.Item(c.Request.Context(), kind, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": gin.H{
						"code":    "ITEM_NOT_FOUND",
						"message": "No such item",
					},
				})
				return
			}
			h.logger.WithError(err).Error("Failed to fetch catalog item")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "CATALOG_FETCH_FAILED",
					"message": "Failed to fetch catalog item",
				},
			})
			return
		}
		c.JSON(http.StatusOK, itemPayload(*item))
	}
}

// FilterBooks narrows the book catalog by genres and metadata.
func (h *CatalogHandler) FilterBooks(c *gin.Context) {
	var filter models.BookFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	items, err := h.repos.Catalog.FilterBooks(c.Request.Context(), filter, catalogListLimit)
	if err != nil {
		h.logger.WithError(err).Error("Book filter failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "CATALOG_FILTER_FAILED",
				"message": "Failed to filter catalog",
			},
		})
		return
	}
	c.JSON(http.StatusOK, itemsPayload(models.KindBook, items))
}

// FilterMedia narrows the media catalog by genres and metadata.
func (h *CatalogHandler) FilterMedia(c *gin.Context) {
	var filter models.MediaFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	items, err := h.repos.Catalog.FilterMedia(c.Request.Context(), filter, catalogListLimit)
	if err != nil {
		h.logger.WithError(err).Error("Media filter failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "CATALOG_FILTER_FAILED",
				"message": "Failed to filter catalog",
			},
		})
		return
	}
	c.JSON(http.StatusOK, itemsPayload(models.KindMedia, items))
}

// CreateGenre adds one genre to a taxonomy. Admin only.
func (h *CatalogHandler) CreateGenre(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.GenreCreateRequest
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
					"message": "Genre validation failed",
					"details": err.Error(),
				},
			})
			return
		}

		genre, err := h.repos.Catalog.CreateGenre(c.Request.Context(), kind, request.Name)
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{
					"error": gin.H{
						"code":    "GENRE_EXISTS",
						"message": "A genre with this name already exists",
					},
				})
				return
			}
			h.logger.WithError(err).Error("Genre creation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "GENRE_CREATE_FAILED",
					"message": "Failed to create genre",
				},
			})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"genre": genre})
	}
}

// CreateBook inserts one book synchronously. Admin only.
func (h *CatalogHandler) CreateBook(c *gin.Context) {
	var request models.BookCreateRequest
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
				"message": "Book validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	book, err := h.repos.Catalog.CreateBook(c.Request.Context(), &request)
	if err != nil {
		h.logger.WithError(err).Error("Book creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "BOOK_CREATE_FAILED",
				"message": "Failed to create book",
			},
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book": book})
}

// CreateMedia inserts one media item synchronously. Admin only.
func (h *CatalogHandler) CreateMedia(c *gin.Context) {
	var request models.MediaCreateRequest
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
				"message": "Media validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	media, err := h.repos.Catalog.CreateMedia(c.Request.Context(), &request)
	if err != nil {
		h.logger.WithError(err).Error("Media creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "MEDIA_CREATE_FAILED",
				"message": "Failed to create media",
			},
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"media": media})
}

// Ingest queues a bulk catalog batch onto the ingestion topic. The schema
// middleware has already checked the payload shape. Admin only.
func (h *CatalogHandler) Ingest(c *gin.Context) {
	var request models.CatalogIngestRequest
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

	var total int
	switch request.Kind {
	case models.KindBook:
		total = len(request.Books)
	case models.KindMedia:
		total = len(request.Media)
	}
	if total == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "EMPTY_BATCH",
				"message": "Batch contains no items for the requested kind",
			},
		})
		return
	}

	if h.messageBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "MESSAGE_BUS_UNAVAILABLE",
				"message": "Catalog ingestion requires the message bus",
			},
		})
		return
	}

	jobID := uuid.New()
	now := time.Now()
	queued := 0
	for i := 0; i < total; i++ {
		msg := messaging.IngestionMessage{JobID: jobID, Kind: request.Kind, Timestamp: now}
		if request.Kind == models.KindBook {
			msg.Book = &request.Books[i]
		} else {
			msg.Media = &request.Media[i]
		}

		if err := h.messageBus.PublishIngestion(c.Request.Context(), msg); err != nil {
			h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to queue ingestion batch")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "INGESTION_QUEUE_FAILED",
					"message": "Failed to queue catalog batch",
				},
				"queued": queued,
			})
			return
		}
		queued++
	}

	h.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"kind":   request.Kind,
		"queued": queued,
	}).Info("Catalog batch queued for ingestion")

	c.JSON(http.StatusAccepted, IngestResponse{
		JobID:   jobID,
		Queued:  queued,
		Message: "Catalog batch queued for processing",
	})
}

// itemPayload nests the item under a key named after its kind.
func itemPayload(item models.CatalogItem) gin.H {
	switch item.Kind {
	case models.KindBook:
		return gin.H{"book": item.Book}
	case models.KindMedia:
		return gin.H{"media": item.Media}
	}
	return gin.H{}
}

func itemsPayload(kind models.ItemKind, items []models.CatalogItem) gin.H {
	if kind == models.KindBook {
		books := make([]*models.Book, 0, len(items))
		for _, item := range items {
			books = append(books, item.Book)
		}
		return gin.H{"length": len(books), "books": books}
	}

	media := make([]*models.Media, 0, len(items))
	for _, item := range items {
		media = append(media, item.Media)
	}
	return gin.H{"length": len(media), "media": media}
}
