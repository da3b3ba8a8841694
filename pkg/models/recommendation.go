package models

import (
	"strconv"

	"github.com/google/uuid"
)

// ScoredItem pairs a catalog item with its relativity score in [0, 100].
type ScoredItem struct {
	Score float64     `json:"score"`
	Item  CatalogItem `json:"item"`
}

// ItemSimilarity is one row of an item's similarity list, as cached.
type ItemSimilarity struct {
	ItemID uuid.UUID `json:"item_id"`
	Score  float64   `json:"score"`
}

// RecommendationEntry is one element of the wire response. The item sits
// under a key named after its kind ("book" or "media").
type RecommendationEntry struct {
	Relativity float64 `json:"relativity"`
	Book       *Book   `json:"book,omitempty"`
	Media      *Media  `json:"media,omitempty"`
}

// RecommendationResponse is the public and private response shape:
// {"length": N, "data": {"0": {...}, ..., "N-1": {...}}}.
type RecommendationResponse struct {
	Length int                            `json:"length"`
	Data   map[string]RecommendationEntry `json:"data"`
}

// NewRecommendationResponse indexes an ordered ranking with string keys
// "0".."N-1" so clients iterate in rank order by counting.
func NewRecommendationResponse(items []ScoredItem) RecommendationResponse {
	data := make(map[string]RecommendationEntry, len(items))
	for i, si := range items {
		entry := RecommendationEntry{Relativity: si.Score}
		switch si.Item.Kind {
		case KindBook:
			entry.Book = si.Item.Book
		case KindMedia:
			entry.Media = si.Item.Media
		}
		data[strconv.Itoa(i)] = entry
	}
	return RecommendationResponse{Length: len(items), Data: data}
}

// GenreResolutionDetail reports which requested genre names could not be
// mapped onto the catalog taxonomy and what was available.
type GenreResolutionDetail struct {
	NotFound        []string `json:"not_found"`
	Ambiguous       []string `json:"ambiguous"`
	AvailableGenres []string `json:"available_genres"`
}
