// Package printing picks the representative printing shown for a logical
// card.
package printing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sam-warren/cedhtools/internal/metrics"
	"github.com/sam-warren/cedhtools/internal/models"
)

// Policy decides which printing represents a card
type Policy string

const (
	// PolicyMostUsed prefers the printing most decks reference
	PolicyMostUsed Policy = "most_used"
	// PolicyEarliestPrinted prefers the first printing ever released
	PolicyEarliestPrinted Policy = "earliest_printed"
)

const defaultCacheSize = 4096

var ErrNotFound = errors.New("no legal printing found")

// ParsePolicy validates a configured policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyMostUsed, PolicyEarliestPrinted:
		return p, nil
	case "":
		return PolicyMostUsed, nil
	}
	return "", fmt.Errorf("unknown printing policy %q", s)
}

// Source loads every printing of the given cards with usage counts
type Source interface {
	PrintingsWithUsage(ctx context.Context, cardIDs []string) ([]models.PrintingUsage, error)
}

// Selector resolves card identities to one printing each. It is safe for
// concurrent use.
type Selector struct {
	source Source
	policy Policy
	cache  *lru.Cache[string, models.Printing]
}

func NewSelector(source Source, policy Policy) *Selector {
	cache, _ := lru.New[string, models.Printing](defaultCacheSize)
	return &Selector{
		source: source,
		policy: policy,
		cache:  cache,
	}
}

func (s *Selector) Policy() Policy {
	return s.policy
}

// Select returns the representative printing of one card, or ErrNotFound
func (s *Selector) Select(ctx context.Context, cardID string) (models.Printing, error) {
	found, err := s.SelectMany(ctx, []string{cardID})
	if err != nil {
		return models.Printing{}, err
	}
	p, ok := found[cardID]
	if !ok {
		return models.Printing{}, ErrNotFound
	}
	return p, nil
}

// SelectMany resolves a batch of cards. Cards with no legal printing are
// absent from the result.
func (s *Selector) SelectMany(ctx context.Context, cardIDs []string) (map[string]models.Printing, error) {
	result := make(map[string]models.Printing, len(cardIDs))
	var missing []string
	for _, id := range cardIDs {
		if _, done := result[id]; done {
			continue
		}
		if p, ok := s.cache.Get(s.cacheKey(id)); ok {
			metrics.PrintingCacheHits.Inc()
			result[id] = p
			continue
		}
		metrics.PrintingCacheMisses.Inc()
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	candidates, err := s.source.PrintingsWithUsage(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load printings: %w", err)
	}

	byCard := make(map[string][]models.PrintingUsage)
	for _, c := range candidates {
		byCard[c.UniqueCardID] = append(byCard[c.UniqueCardID], c)
	}

	for _, id := range missing {
		p, ok := Choose(byCard[id], s.policy)
		if !ok {
			continue
		}
		s.cache.Add(s.cacheKey(id), p)
		result[id] = p
	}

	return result, nil
}

// Purge drops cached selections, used after usage counts change
func (s *Selector) Purge() {
	s.cache.Purge()
}

func (s *Selector) cacheKey(cardID string) string {
	return string(s.policy) + "|" + cardID
}

// Choose applies a policy to candidate printings of a single card. Only
// legal printings are considered.
func Choose(candidates []models.PrintingUsage, policy Policy) (models.Printing, bool) {
	legal := make([]models.PrintingUsage, 0, len(candidates))
	for _, c := range candidates {
		if c.IsLegal() {
			legal = append(legal, c)
		}
	}
	if len(legal) == 0 {
		return models.Printing{}, false
	}

	sort.SliceStable(legal, func(i, j int) bool {
		a, b := legal[i], legal[j]
		if policy == PolicyMostUsed && a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if !a.ReleasedAt.Equal(b.ReleasedAt) {
			return a.ReleasedAt.Before(b.ReleasedAt)
		}
		if c := CompareCollectorNumbers(a.CollectorNumber, b.CollectorNumber); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})

	return legal[0].Printing, true
}

// CompareCollectorNumbers orders collector numbers by their leading number,
// then as strings. Numbers without digits sort after numbered ones.
func CompareCollectorNumbers(a, b string) int {
	na, okA := leadingNumber(a)
	nb, okB := leadingNumber(b)
	switch {
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	case okA && okB && na != nb:
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func leadingNumber(s string) (int, bool) {
	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
