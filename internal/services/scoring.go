package services

import (
	"bytes"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/recanthology/engine/pkg/models"
)

// Rescale maps x linearly from the source interval onto the destination
// interval, rounded half away from zero to 3 decimals.
func Rescale(x, srcLo, srcHi, dstLo, dstHi float64) float64 {
	if srcHi == srcLo {
		return roundTo(dstLo, 3)
	}
	scaled := (x-srcLo)/(srcHi-srcLo)*(dstHi-dstLo) + dstLo
	return roundTo(scaled, 3)
}

// Clamp bounds x into [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Clamp01 bounds x into [0, 1].
func Clamp01(x float64) float64 {
	return Clamp(x, 0, 1)
}

// Cosine computes cosine similarity between two rating vectors keyed by
// user id. The dot product runs over the common users only; the norms run
// over each full vector. Zero when either norm is zero or no user rated
// both items.
func Cosine(a, b map[uuid.UUID]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var commonA, commonB []float64
	for user, va := range a {
		if vb, ok := b[user]; ok {
			commonA = append(commonA, va)
			commonB = append(commonB, vb)
		}
	}
	if len(commonA) == 0 {
		return 0
	}

	normA := floats.Norm(ratingValues(a), 2)
	normB := floats.Norm(ratingValues(b), 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(commonA, commonB) / (normA * normB)
}

func ratingValues(vec map[uuid.UUID]float64) []float64 {
	out := make([]float64, 0, len(vec))
	for _, v := range vec {
		out = append(out, v)
	}
	return out
}

// roundTo rounds half away from zero to the given number of decimals.
func roundTo(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// sortScoredDesc orders a ranking by score descending, item id ascending on
// ties. Every ranked output of the engine goes through this so results are
// reproducible under a fixed snapshot.
func sortScoredDesc(items []models.ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return lessUUID(items[i].Item.ID, items[j].Item.ID)
	})
}

// topKScored sorts and truncates a ranking to its k best entries.
func topKScored(items []models.ScoredItem, k int) []models.ScoredItem {
	sortScoredDesc(items)
	if k >= 0 && len(items) > k {
		items = items[:k]
	}
	return items
}

// sortSimilaritiesDesc orders a similarity list by score descending, item id
// ascending on ties.
func sortSimilaritiesDesc(sims []models.ItemSimilarity) {
	sort.Slice(sims, func(i, j int) bool {
		if sims[i].Score != sims[j].Score {
			return sims[i].Score > sims[j].Score
		}
		return lessUUID(sims[i].ItemID, sims[j].ItemID)
	})
}

// Alpha is the adaptive content weight of the hybrid blend. A user with no
// ratings gets pure content (alpha 1); at or above the count threshold the
// weight floors at 1 - cfWeight.
func Alpha(ratingCount int, cfWeight, countThreshold float64) float64 {
	if countThreshold <= 0 {
		return 1 - cfWeight
	}
	ratio := math.Min(float64(ratingCount)/countThreshold, 1)
	return 1 - ratio*cfWeight
}
