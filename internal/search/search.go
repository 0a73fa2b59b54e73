// Package search matches against videos already loaded into the cache.
package search

import (
	"sort"
	"strings"

	lithammer "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/tagflow/internal/domain"
)

// Match is one title hit
type Match struct {
	Video          domain.Video
	Index          int   // Position in the indexed slice
	MatchedIndexes []int // Rune positions in the title, for highlighting
	Score          int   // Higher is better
}

// VideoIndex implements fuzzy.Source over video titles
type VideoIndex struct {
	videos      []domain.Video
	lowerTitles []string // Pre-computed lowercase titles
}

// NewVideoIndex indexes videos in their current order
func NewVideoIndex(videos []domain.Video) *VideoIndex {
	idx := &VideoIndex{
		videos:      videos,
		lowerTitles: make([]string, len(videos)),
	}
	for i, v := range videos {
		idx.lowerTitles[i] = strings.ToLower(v.DisplayTitle())
	}
	return idx
}

// String returns the lowercase title at index i (implements fuzzy.Source)
func (idx *VideoIndex) String(i int) string { return idx.lowerTitles[i] }

// Len returns the number of videos (implements fuzzy.Source)
func (idx *VideoIndex) Len() int { return len(idx.videos) }

// Find returns title matches for query, best first
func (idx *VideoIndex) Find(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || idx.Len() == 0 {
		return nil
	}

	found := fuzzy.FindFrom(query, idx)
	matches := make([]Match, len(found))
	for i, m := range found {
		matches[i] = Match{
			Video:          idx.videos[m.Index],
			Index:          m.Index,
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return matches
}

// MatchCreators returns the distinct creators of videos ranked against query.
// An empty query lists every creator alphabetically.
func MatchCreators(query string, videos []domain.Video) []string {
	seen := make(map[string]bool)
	var creators []string
	for _, v := range videos {
		if v.Creator != "" && !seen[v.Creator] {
			seen[v.Creator] = true
			creators = append(creators, v.Creator)
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		sort.Strings(creators)
		return creators
	}

	ranks := lithammer.RankFindFold(query, creators)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})

	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Target
	}
	return out
}
