package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/pkg/models"
)

func TestRatingEvent_Serialization(t *testing.T) {
	event := RatingEvent{
		UserID:    uuid.New(),
		Kind:      models.KindBook,
		ItemID:    uuid.New(),
		Value:     8,
		Timestamp: time.Now().UTC(),
	}

	eventBytes, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotEmpty(t, eventBytes)

	var decoded RatingEvent
	err = json.Unmarshal(eventBytes, &decoded)
	require.NoError(t, err)

	assert.Equal(t, event.UserID, decoded.UserID)
	assert.Equal(t, event.Kind, decoded.Kind)
	assert.Equal(t, event.ItemID, decoded.ItemID)
	assert.Equal(t, event.Value, decoded.Value)
}

func TestIngestionMessage_Serialization(t *testing.T) {
	jobID := uuid.New()
	message := IngestionMessage{
		JobID: jobID,
		Kind:  models.KindBook,
		Book: &models.BookCreateRequest{
			Title:        "The Dispossessed",
			Author:       "Ursula K. Le Guin",
			Language:     "english",
			LikedPercent: 93,
			Genres:       []uuid.UUID{uuid.New()},
		},
		Timestamp:  time.Now(),
		RetryCount: 0,
	}

	msgBytes, err := json.Marshal(message)
	require.NoError(t, err)

	var decoded IngestionMessage
	err = json.Unmarshal(msgBytes, &decoded)
	require.NoError(t, err)

	assert.Equal(t, jobID, decoded.JobID)
	assert.Equal(t, models.KindBook, decoded.Kind)
	require.NotNil(t, decoded.Book)
	assert.Equal(t, "The Dispossessed", decoded.Book.Title)
	assert.Nil(t, decoded.Media)
	assert.Equal(t, 0, decoded.RetryCount)
}

func TestIngestionMessage_MediaPayload(t *testing.T) {
	length := 55
	message := IngestionMessage{
		JobID: uuid.New(),
		Kind:  models.KindMedia,
		Media: &models.MediaCreateRequest{
			MediaType:     "tvSeries",
			OriginalTitle: "Dark",
			PrimaryTitle:  "Dark",
			StartYear:     2017,
			Length:        &length,
			Genres:        []uuid.UUID{uuid.New()},
		},
		Timestamp: time.Now(),
	}

	msgBytes, err := json.Marshal(message)
	require.NoError(t, err)

	var decoded IngestionMessage
	err = json.Unmarshal(msgBytes, &decoded)
	require.NoError(t, err)

	require.NotNil(t, decoded.Media)
	assert.Equal(t, "tvSeries", decoded.Media.MediaType)
	assert.Equal(t, 2017, decoded.Media.StartYear)
	require.NotNil(t, decoded.Media.Length)
	assert.Equal(t, 55, *decoded.Media.Length)
	assert.Nil(t, decoded.Book)
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		name          string
		retryCount    int
		maxRetries    int
		shouldRetry   bool
		expectedDelay time.Duration
	}{
		{
			name:          "first retry",
			retryCount:    1,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 1 * time.Second,
		},
		{
			name:          "second retry",
			retryCount:    2,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 2 * time.Second,
		},
		{
			name:          "third retry",
			retryCount:    3,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 4 * time.Second,
		},
		{
			name:        "max retries exceeded",
			retryCount:  4,
			maxRetries:  3,
			shouldRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shouldRetry := tt.retryCount <= tt.maxRetries
			assert.Equal(t, tt.shouldRetry, shouldRetry)

			if shouldRetry && tt.retryCount > 0 {
				baseDelay := time.Second
				delay := baseDelay * time.Duration(1<<uint(tt.retryCount-1))
				assert.Equal(t, tt.expectedDelay, delay)
			}
		})
	}
}

func TestDLQEnvelope(t *testing.T) {
	original := IngestionMessage{
		JobID: uuid.New(),
		Kind:  models.KindBook,
		Book: &models.BookCreateRequest{
			Title:  "Broken Import",
			Author: "Unknown",
		},
		Timestamp:  time.Now(),
		RetryCount: 3,
	}

	dlqMessage := map[string]interface{}{
		"original_message": original,
		"error":            "insert failed",
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	require.NoError(t, err)

	var decoded map[string]interface{}
	err = json.Unmarshal(dlqBytes, &decoded)
	require.NoError(t, err)

	assert.Contains(t, decoded, "original_message")
	assert.Contains(t, decoded, "error")
	assert.Contains(t, decoded, "dlq_timestamp")
	assert.Equal(t, "insert failed", decoded["error"])
}

func TestMessageKeys(t *testing.T) {
	// Rating events key by user so one user's events stay ordered.
	userID := uuid.New()
	assert.Equal(t, userID.String(), string([]byte(userID.String())))

	// Ingestion messages key by kind.
	for _, kind := range []models.ItemKind{models.KindBook, models.KindMedia} {
		t.Run("key_for_"+string(kind), func(t *testing.T) {
			key := []byte(kind)
			assert.Equal(t, string(kind), string(key))
			assert.NotEmpty(t, key)
		})
	}
}

func TestIngestionHandlerDispatch(t *testing.T) {
	handler := func(msg IngestionMessage) error {
		if msg.Book != nil && msg.Book.Title == "fail" {
			return assert.AnError
		}
		return nil
	}

	ok := IngestionMessage{
		JobID: uuid.New(),
		Kind:  models.KindBook,
		Book:  &models.BookCreateRequest{Title: "success", Author: "A"},
	}
	assert.NoError(t, handler(ok))

	bad := IngestionMessage{
		JobID: uuid.New(),
		Kind:  models.KindBook,
		Book:  &models.BookCreateRequest{Title: "fail", Author: "A"},
	}
	assert.Error(t, handler(bad))
}
