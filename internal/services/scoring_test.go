package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/recanthology/engine/pkg/models"
)

func TestAlpha(t *testing.T) {
	tests := []struct {
		name        string
		ratingCount int
		cfWeight    float64
		threshold   float64
		expected    float64
	}{
		{"no ratings is pure content", 0, 0.4, 15, 1.0},
		{"at threshold floors at 1-cfWeight", 15, 0.4, 15, 0.6},
		{"beyond threshold stays floored", 150, 0.4, 15, 0.6},
		{"partial history interpolates", 6, 0.4, 15, 0.84},
		{"full cf weight", 5, 1.0, 15, 1 - 5.0/15.0},
		{"zero threshold skips interpolation", 3, 0.4, 0, 0.6},
		{"zero cf weight is always content", 40, 0, 15, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Alpha(tt.ratingCount, tt.cfWeight, tt.threshold), 1e-9)
		})
	}
}

func TestCosine(t *testing.T) {
	u1 := fixedUUID(1)
	u2 := fixedUUID(2)
	u3 := fixedUUID(3)

	t.Run("identical vectors", func(t *testing.T) {
		a := map[uuid.UUID]float64{u1: 5, u2: 5}
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	})

	t.Run("no common raters", func(t *testing.T) {
		a := map[uuid.UUID]float64{u1: 8}
		b := map[uuid.UUID]float64{u2: 8}
		assert.Zero(t, Cosine(a, b))
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Zero(t, Cosine(nil, map[uuid.UUID]float64{u1: 5}))
		assert.Zero(t, Cosine(map[uuid.UUID]float64{u1: 5}, nil))
	})

	t.Run("norms cover the full vectors", func(t *testing.T) {
		// Dot runs over the shared rater only, but a's norm still counts
		// u2, so the result is below 1 even though the shared ratings
		// agree perfectly.
		a := map[uuid.UUID]float64{u1: 10, u2: 5}
		b := map[uuid.UUID]float64{u1: 10}
		assert.InDelta(t, 0.894427, Cosine(a, b), 1e-6)
	})

	t.Run("zero norm", func(t *testing.T) {
		a := map[uuid.UUID]float64{u1: 0}
		b := map[uuid.UUID]float64{u1: 0, u3: 4}
		assert.Zero(t, Cosine(a, b))
	})

	t.Run("symmetry", func(t *testing.T) {
		a := map[uuid.UUID]float64{u1: 9, u2: 3}
		b := map[uuid.UUID]float64{u1: 7, u3: 6}
		assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
	})
}

func TestRescale(t *testing.T) {
	tests := []struct {
		name                         string
		x, srcLo, srcHi, dstLo, dstHi float64
		expected                     float64
	}{
		{"midpoint", 50, 0, 100, -5, 5, 0},
		{"upper bound", 100, 0, 100, -5, 5, 5},
		{"lower bound", 0, 0, 100, -5, 5, -5},
		{"seventy percent", 70, 0, 100, -5, 5, 2},
		{"rounds to three decimals", 1, 0, 3, 0, 1, 0.333},
		{"rounds up", 2, 0, 3, 0, 1, 0.667},
		{"degenerate source maps to lower bound", 7, 4, 4, -5, 5, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Rescale(tt.x, tt.srcLo, tt.srcHi, tt.dstLo, tt.dstHi), 1e-9)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(7, 0, 5))
	assert.Equal(t, 0.0, Clamp(-3, 0, 5))
	assert.Equal(t, 2.5, Clamp(2.5, 0, 5))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 0.4, Clamp01(0.4))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 3.0, roundTo(2.5, 0))
	assert.Equal(t, -3.0, roundTo(-2.5, 0))
	assert.Equal(t, 1.24, roundTo(1.236, 2))
	assert.Equal(t, 0.894, roundTo(0.8944, 3))
	assert.Equal(t, 97.33, roundTo(97.333333, 2))
}

func TestTopKScored(t *testing.T) {
	id1 := fixedUUID(1)
	id2 := fixedUUID(2)
	id3 := fixedUUID(3)
	items := []models.ScoredItem{
		{Score: 75, Item: models.CatalogItem{ID: id2}},
		{Score: 90, Item: models.CatalogItem{ID: id3}},
		{Score: 75, Item: models.CatalogItem{ID: id1}},
	}

	t.Run("orders by score then id", func(t *testing.T) {
		ranked := topKScored(append([]models.ScoredItem(nil), items...), 10)
		assert.Equal(t, []uuid.UUID{id3, id1, id2}, rankedIDs(ranked))
	})

	t.Run("truncates to k", func(t *testing.T) {
		ranked := topKScored(append([]models.ScoredItem(nil), items...), 2)
		assert.Equal(t, []uuid.UUID{id3, id1}, rankedIDs(ranked))
	})

	t.Run("k of zero empties the list", func(t *testing.T) {
		assert.Empty(t, topKScored(append([]models.ScoredItem(nil), items...), 0))
	})
}

func TestSortSimilaritiesDesc(t *testing.T) {
	id1 := fixedUUID(1)
	id2 := fixedUUID(2)
	id3 := fixedUUID(3)
	sims := []models.ItemSimilarity{
		{ItemID: id3, Score: 0.2},
		{ItemID: id2, Score: 0.8},
		{ItemID: id1, Score: 0.2},
	}
	sortSimilaritiesDesc(sims)

	assert.Equal(t, id2, sims[0].ItemID)
	assert.Equal(t, id1, sims[1].ItemID)
	assert.Equal(t, id3, sims[2].ItemID)
}

func TestPublicScoringFn(t *testing.T) {
	assert.InDelta(t, 100.0, publicScoringFn(uuid.Nil, 10), 1e-9)
	assert.InDelta(t, -100.0, publicScoringFn(uuid.Nil, 1), 1e-9)
	assert.InDelta(t, 11.12, publicScoringFn(uuid.Nil, 6), 1e-9)
	// Out-of-range interest values clamp onto the rating scale first.
	assert.InDelta(t, 100.0, publicScoringFn(uuid.Nil, 42), 1e-9)
	assert.InDelta(t, -100.0, publicScoringFn(uuid.Nil, -3), 1e-9)
}
