package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recanthology/engine/pkg/models"
)

func TestKeyBuilders(t *testing.T) {
	userID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	itemID := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	assert.Equal(t, "rec:book:11111111-2222-3333-4444-555555555555",
		RecommendationKey(models.KindBook, userID))
	assert.Equal(t, "prefs:media:11111111-2222-3333-4444-555555555555",
		PreferencesKey(models.KindMedia, userID))
	assert.Equal(t, "item_sim:book:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee:shrunk:25",
		SimilarityKey(models.KindBook, itemID, 25))
	assert.Equal(t, "item_sim:media:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee:shrunk:*",
		SimilarityPattern(models.KindMedia, itemID))
	assert.Equal(t, "session:11111111-2222-3333-4444-555555555555",
		SessionKey(userID))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("set and get round-trip", func(t *testing.T) {
		in := []models.ItemSimilarity{
			{ItemID: uuid.New(), Score: 0.91},
			{ItemID: uuid.New(), Score: 0.42},
		}
		require.NoError(t, store.Set(ctx, "item_sim:book:x:shrunk:25", in, time.Minute))

		var out []models.ItemSimilarity
		ok, err := store.Get(ctx, "item_sim:book:x:shrunk:25", &out)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, in, out)
	})

	t.Run("miss on absent key", func(t *testing.T) {
		var out string
		ok, err := store.Get(ctx, "missing", &out)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "short", "value", 10*time.Millisecond))
		time.Sleep(25 * time.Millisecond)

		var out string
		ok, err := store.Get(ctx, "short", &out)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete removes keys", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", 1, time.Minute))
		require.NoError(t, store.Set(ctx, "b", 2, time.Minute))
		require.NoError(t, store.Delete(ctx, "a", "b"))

		var out int
		ok, _ := store.Get(ctx, "a", &out)
		assert.False(t, ok)
		ok, _ = store.Get(ctx, "b", &out)
		assert.False(t, ok)
	})

	t.Run("delete by pattern", func(t *testing.T) {
		itemID := uuid.New()
		key25 := SimilarityKey(models.KindBook, itemID, 25)
		key50 := SimilarityKey(models.KindBook, itemID, 50)
		other := SimilarityKey(models.KindBook, uuid.New(), 25)

		require.NoError(t, store.Set(ctx, key25, "x", time.Minute))
		require.NoError(t, store.Set(ctx, key50, "y", time.Minute))
		require.NoError(t, store.Set(ctx, other, "z", time.Minute))

		require.NoError(t, store.DeletePattern(ctx, SimilarityPattern(models.KindBook, itemID)))

		var out string
		ok, _ := store.Get(ctx, key25, &out)
		assert.False(t, ok)
		ok, _ = store.Get(ctx, key50, &out)
		assert.False(t, ok)
		ok, _ = store.Get(ctx, other, &out)
		assert.True(t, ok, "unrelated item must keep its entry")
	})
}
