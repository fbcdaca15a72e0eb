package service

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
	"github.com/samber/lo"
	"golang.org/x/text/cases"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/pkg/models"
)

// SearchOptions tunes saved plant search
type SearchOptions struct {
	// Threshold is the minimum score in (0, 1] a match needs
	Threshold float64
	// Limit caps the number of matches, 0 means no cap
	Limit int
}

// DefaultSearchOptions returns the options used by the service
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Threshold: 0.6}
}

// Search scores every saved plant against the query and returns the ones
// at or above the threshold, best first. Ties keep save order.
func Search(plants []models.SavedPlant, query string, opts SearchOptions) ([]models.SearchMatch, error) {
	normalized := normalize(query)
	if normalized == "" {
		return nil, apperrors.NewValidationError("search query cannot be empty", nil)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSearchOptions().Threshold
	}

	matches := make([]models.SearchMatch, 0)
	for _, plant := range plants {
		best := models.SearchMatch{SavedPlant: plant}
		for _, name := range plant.Details.Names() {
			score := Score(normalized, normalize(name))
			if score > best.Score {
				best.Score = score
				best.MatchedName = name
			}
		}
		if best.Score >= opts.Threshold {
			matches = append(matches, best)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// Score rates how well a normalized query matches a normalized name, from 0
// to 1. Substrings score 1. Single-word queries are compared with each word
// of the name by edit distance, longer queries by word error rate.
func Score(query, name string) float64 {
	if query == "" || name == "" {
		return 0
	}
	if strings.Contains(name, query) {
		return 1
	}

	queryWords := strings.Fields(query)
	nameWords := strings.Fields(name)
	if len(queryWords) == 1 {
		candidates := append(append([]string{}, nameWords...), name)
		return lo.Max(lo.Map(candidates, func(word string, _ int) float64 {
			return similarity(query, word)
		}))
	}

	rate, _ := wer.WER(nameWords, queryWords)
	if rate >= 1 {
		return 0
	}
	return 1 - rate
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	distance := levenshtein.Distance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// normalize case folds and collapses whitespace. Casers carry state, so
// one is made per call.
func normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
