package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/deck"
	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/metrics"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/rollup"
	"github.com/sam-warren/cedhtools/internal/stats"
)

const (
	maxCommanders   = 2
	defaultTopLimit = 50
	maxTopLimit     = 500
	minSearchLength = 2
	percentScale    = 100
)

var (
	ErrNoCommanders      = errors.New("no commanders resolved")
	ErrTooManyCommanders = errors.New("at most two commanders are supported")
	ErrAmbiguousQuery    = errors.New("provide commander ids or a decklist, not both")
	ErrInvalidWindow     = errors.New("invalid time window")
	ErrInvalidFieldSize  = errors.New("invalid minimum field size")
	ErrCardNotFound      = errors.New("no statistics for this card and commander")
)

// IsInputError reports whether err was caused by the caller's input
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrNoCommanders,
		ErrTooManyCommanders,
		ErrAmbiguousQuery,
		ErrInvalidWindow,
		ErrInvalidFieldSize,
		ErrInvalidDeckReference,
		deck.ErrInvalidDeck,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AggregateStore serves the live rollup snapshots
type AggregateStore interface {
	Slices() []rollup.Slice
	Snapshot(slice rollup.Slice) (*rollup.Snapshot, error)
}

// PrintingLookup loads printings by scryfall id
type PrintingLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Printing, error)
}

// CardResolver picks the representative printing of card identities
type CardResolver interface {
	SelectMany(ctx context.Context, cardIDs []string) (map[string]models.Printing, error)
}

// Query selects one commander identity in one slice. Either CommanderIDs
// or Decklist is set.
type Query struct {
	CommanderIDs []string
	Decklist     *deck.Decklist
	Window       rollup.Window
	MinFieldSize int
}

type resolvedQuery struct {
	key       identity.Key
	slice     rollup.Slice
	structure deck.Structure
}

// StatisticsService assembles commander and card statistics from the
// rollup snapshots
type StatisticsService struct {
	store         AggregateStore
	printings     PrintingLookup
	resolver      CardResolver
	defaultWindow rollup.Window
}

func NewStatisticsService(store AggregateStore, printings PrintingLookup, resolver CardResolver, defaultWindow rollup.Window) *StatisticsService {
	if defaultWindow == "" {
		defaultWindow = rollup.WindowSinceBan
	}
	return &StatisticsService{
		store:         store,
		printings:     printings,
		resolver:      resolver,
		defaultWindow: defaultWindow,
	}
}

// DefaultWindow is the window used when a query leaves it empty
func (s *StatisticsService) DefaultWindow() rollup.Window {
	return s.defaultWindow
}

// CommanderStatistics returns the baseline, the bucketed card statistics
// and the commander details of one commander identity. Missing data gives
// a zeroed baseline, not an error.
func (s *StatisticsService) CommanderStatistics(ctx context.Context, q Query) (*models.StatisticsResponse, error) {
	rq, err := s.resolve(q)
	if err != nil {
		return nil, s.fail(err)
	}

	snap, err := s.store.Snapshot(rq.slice)
	if err != nil {
		return nil, s.fail(err)
	}

	baseAgg, _ := snap.Commander(rq.key)
	rates := stats.RatesOf(baseAgg.Outcomes)
	rows := snap.CardsFor(rq.key)

	printings, err := s.resolvePrintings(ctx, rows)
	if err != nil {
		return nil, s.fail(err)
	}

	buckets := newCardBuckets()
	dropped := 0
	for _, row := range rows {
		p, ok := printings[row.CardID]
		if !ok {
			dropped++
			continue
		}
		stat := cardStat(row, p, baseAgg, rates)
		if placement, ok := rq.structure.Lookup(row.CardID); ok {
			stat.TypeBucket = string(placement.Bucket)
			buckets.ByTypeBucket[stat.TypeBucket] = append(buckets.ByTypeBucket[stat.TypeBucket], stat)
			continue
		}
		buckets.Other = append(buckets.Other, stat)
	}
	for bucket := range buckets.ByTypeBucket {
		sortCardStats(buckets.ByTypeBucket[bucket])
	}
	sortCardStats(buckets.Other)

	commanders, err := s.commanderDetails(ctx, rq.key)
	if err != nil {
		return nil, s.fail(err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("commander_key", rq.key.String()).
		Str("slice", rq.slice.String()).
		Int("cards", len(rows)-dropped).
		Int("dropped", dropped).
		Msg("commander statistics assembled")

	s.succeed(baseAgg)
	return &models.StatisticsResponse{
		CommanderKey:    rq.key.String(),
		Window:          string(rq.slice.Window),
		MinFieldSize:    rq.slice.MinFieldSize,
		SnapshotVersion: snap.Version,
		BuiltAt:         snap.BuiltAt,
		Baseline:        baselineOf(baseAgg, rates),
		Cards:           buckets,
		Commanders:      commanders,
	}, nil
}

// CardStatistics returns the statistics of a single card within a
// commander identity
func (s *StatisticsService) CardStatistics(ctx context.Context, q Query, cardID string) (*models.CardStatisticsResponse, error) {
	rq, err := s.resolve(q)
	if err != nil {
		return nil, s.fail(err)
	}
	cardID = strings.TrimSpace(cardID)

	snap, err := s.store.Snapshot(rq.slice)
	if err != nil {
		return nil, s.fail(err)
	}

	baseAgg, _ := snap.Commander(rq.key)
	rates := stats.RatesOf(baseAgg.Outcomes)

	var (
		row   rollup.CardAggregate
		found bool
	)
	for _, r := range snap.CardsFor(rq.key) {
		if r.CardID == cardID {
			row, found = r, true
			break
		}
	}
	if !found {
		return nil, s.fail(fmt.Errorf("%w: %s", ErrCardNotFound, cardID))
	}

	printings, err := s.resolvePrintings(ctx, []rollup.CardAggregate{row})
	if err != nil {
		return nil, s.fail(err)
	}
	p, ok := printings[row.CardID]
	if !ok {
		return nil, s.fail(fmt.Errorf("%w: %s has no legal printing", ErrCardNotFound, cardID))
	}

	stat := cardStat(row, p, baseAgg, rates)
	if placement, ok := rq.structure.Lookup(row.CardID); ok {
		stat.TypeBucket = string(placement.Bucket)
	}

	commanders, err := s.commanderDetails(ctx, rq.key)
	if err != nil {
		return nil, s.fail(err)
	}

	s.succeed(baseAgg)
	return &models.CardStatisticsResponse{
		CommanderKey: rq.key.String(),
		Window:       string(rq.slice.Window),
		MinFieldSize: rq.slice.MinFieldSize,
		Baseline:     baselineOf(baseAgg, rates),
		Card:         stat,
		Commanders:   commanders,
	}, nil
}

// TopCommanders lists the commander identities of a slice by deck count.
// A non-empty search keeps identities with a commander name containing it,
// case-insensitively; searches shorter than two characters match nothing.
func (s *StatisticsService) TopCommanders(ctx context.Context, window rollup.Window, minFieldSize, limit int, search string) (*models.CommanderListResponse, error) {
	slice, err := s.resolveSlice(window, minFieldSize)
	if err != nil {
		return nil, s.fail(err)
	}
	snap, err := s.store.Snapshot(slice)
	if err != nil {
		return nil, s.fail(err)
	}

	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	resp := &models.CommanderListResponse{
		Window:       string(slice.Window),
		MinFieldSize: slice.MinFieldSize,
		Search:       strings.TrimSpace(search),
		Commanders:   []models.CommanderSummary{},
	}
	if resp.Search != "" && len([]rune(resp.Search)) < minSearchLength {
		metrics.StatisticsRequestsTotal.WithLabelValues("empty").Inc()
		return resp, nil
	}

	keys := make([]identity.Key, 0, len(snap.Commanders))
	for key := range snap.Commanders {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := snap.Commanders[keys[i]], snap.Commanders[keys[j]]
		if a.DeckCount != b.DeckCount {
			return a.DeckCount > b.DeckCount
		}
		return keys[i] < keys[j]
	})

	// searching needs every name, otherwise only the page is resolved
	var names map[string]models.Printing
	if resp.Search != "" {
		if names, err = s.commanderNames(ctx, keys); err != nil {
			return nil, s.fail(err)
		}
		keys = matchingCommanders(keys, names, resp.Search)
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}
	if names == nil {
		if names, err = s.commanderNames(ctx, keys); err != nil {
			return nil, s.fail(err)
		}
	}

	for _, key := range keys {
		agg := snap.Commanders[key]
		rates := stats.RatesOf(agg.Outcomes)
		summary := models.CommanderSummary{
			CommanderKey: key.String(),
			CommanderIDs: key.IDs(),
			DeckCount:    agg.DeckCount,
			Wins:         agg.Wins,
			Draws:        agg.Draws,
			Losses:       agg.Losses,
			Rates:        models.OutcomeRates{Win: rates.Win, Draw: rates.Draw, Loss: rates.Loss},
		}
		for _, id := range summary.CommanderIDs {
			summary.Names = append(summary.Names, commanderName(id, names))
		}
		resp.Commanders = append(resp.Commanders, summary)
	}

	metrics.StatisticsRequestsTotal.WithLabelValues("ok").Inc()
	return resp, nil
}

func (s *StatisticsService) commanderNames(ctx context.Context, keys []identity.Key) (map[string]models.Printing, error) {
	var ids []string
	for _, key := range keys {
		ids = append(ids, key.IDs()...)
	}
	names, err := s.resolver.SelectMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve commander printings: %w", err)
	}
	return names, nil
}

// commanderName falls back to the card id when no printing was found
func commanderName(id string, names map[string]models.Printing) string {
	if p, ok := names[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

func matchingCommanders(keys []identity.Key, names map[string]models.Printing, search string) []identity.Key {
	needle := strings.ToLower(search)
	var out []identity.Key
	for _, key := range keys {
		for _, id := range key.IDs() {
			if strings.Contains(strings.ToLower(commanderName(id, names)), needle) {
				out = append(out, key)
				break
			}
		}
	}
	return out
}

// resolve validates a query before any aggregate is read
func (s *StatisticsService) resolve(q Query) (resolvedQuery, error) {
	var rq resolvedQuery

	ids := q.CommanderIDs
	if q.Decklist != nil {
		if len(q.CommanderIDs) > 0 {
			return rq, ErrAmbiguousQuery
		}
		if err := q.Decklist.Validate(); err != nil {
			return rq, err
		}
		ids = q.Decklist.CommanderIDs()
		rq.structure = deck.Classify(*q.Decklist)
	}

	rq.key = identity.Canonicalize(ids)
	if rq.key.IsZero() {
		return rq, ErrNoCommanders
	}
	if rq.key.Size() > maxCommanders {
		return rq, fmt.Errorf("%w: got %d", ErrTooManyCommanders, rq.key.Size())
	}

	slice, err := s.resolveSlice(q.Window, q.MinFieldSize)
	if err != nil {
		return rq, err
	}
	rq.slice = slice
	return rq, nil
}

// resolveSlice checks the window and field size against the configured
// slices
func (s *StatisticsService) resolveSlice(window rollup.Window, minFieldSize int) (rollup.Slice, error) {
	if window == "" {
		window = s.defaultWindow
	}
	if minFieldSize < 0 {
		return rollup.Slice{}, fmt.Errorf("%w: %d", ErrInvalidFieldSize, minFieldSize)
	}

	windowKnown := false
	for _, slice := range s.store.Slices() {
		if slice.Window != window {
			continue
		}
		windowKnown = true
		if slice.MinFieldSize == minFieldSize {
			return slice, nil
		}
	}
	if !windowKnown {
		return rollup.Slice{}, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}
	return rollup.Slice{}, fmt.Errorf("%w: %d is not a configured threshold", ErrInvalidFieldSize, minFieldSize)
}

// resolvePrintings maps card ids to their display printing. The printing
// recorded at build time is preferred while it is still legal; other cards
// go through the selector, and cards it cannot resolve are left out.
func (s *StatisticsService) resolvePrintings(ctx context.Context, rows []rollup.CardAggregate) (map[string]models.Printing, error) {
	out := make(map[string]models.Printing, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	seen := make(map[string]bool)
	var printingIDs []string
	for _, row := range rows {
		if row.PrintingID != "" && !seen[row.PrintingID] {
			seen[row.PrintingID] = true
			printingIDs = append(printingIDs, row.PrintingID)
		}
	}

	byID := map[string]models.Printing{}
	if len(printingIDs) > 0 {
		var err error
		byID, err = s.printings.GetByIDs(ctx, printingIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load printings: %w", err)
		}
	}

	var missing []string
	for _, row := range rows {
		if p, ok := byID[row.PrintingID]; ok && row.PrintingID != "" && p.IsLegal() {
			out[row.CardID] = p
			continue
		}
		missing = append(missing, row.CardID)
	}

	if len(missing) > 0 {
		selected, err := s.resolver.SelectMany(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to select printings: %w", err)
		}
		for cardID, p := range selected {
			out[cardID] = p
		}
	}

	return out, nil
}

func (s *StatisticsService) commanderDetails(ctx context.Context, key identity.Key) ([]models.CommanderDetail, error) {
	selected, err := s.resolver.SelectMany(ctx, key.IDs())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve commander printings: %w", err)
	}

	details := make([]models.CommanderDetail, 0, len(selected))
	for _, id := range key.IDs() {
		p, ok := selected[id]
		if !ok {
			continue
		}
		details = append(details, models.CommanderDetail{
			UniqueCardID:    id,
			ScryfallID:      p.ID,
			Name:            p.Name,
			TypeLine:        p.TypeLine,
			CMC:             p.CMC,
			ManaCost:        p.ManaCost,
			ImageURL:        p.ImageURL,
			ImageURLLarge:   p.ImageURLLarge,
			ImageURLArtCrop: p.ImageURLArtCrop,
			ScryfallURI:     p.ScryfallURI,
		})
	}

	sort.Slice(details, func(i, j int) bool {
		if details[i].Name != details[j].Name {
			return details[i].Name < details[j].Name
		}
		return details[i].UniqueCardID < details[j].UniqueCardID
	})
	return details, nil
}

func (s *StatisticsService) succeed(baseline rollup.Aggregate) {
	if baseline.DeckCount == 0 {
		metrics.StatisticsRequestsTotal.WithLabelValues("empty").Inc()
		return
	}
	metrics.StatisticsRequestsTotal.WithLabelValues("ok").Inc()
}

func (s *StatisticsService) fail(err error) error {
	switch {
	case IsInputError(err), errors.Is(err, ErrCardNotFound):
		metrics.StatisticsRequestsTotal.WithLabelValues("invalid").Inc()
	case errors.Is(err, rollup.ErrSliceUnavailable):
		metrics.StatisticsRequestsTotal.WithLabelValues("unavailable").Inc()
	default:
		metrics.StatisticsRequestsTotal.WithLabelValues("error").Inc()
	}
	return err
}

func baselineOf(agg rollup.Aggregate, rates stats.Rates) models.Baseline {
	return models.Baseline{
		SampleSize: models.SampleSize{
			TotalDecks: agg.DeckCount,
			TotalGames: agg.Games(),
		},
		Rates: models.OutcomeRates{Win: rates.Win, Draw: rates.Draw, Loss: rates.Loss},
	}
}

func cardStat(row rollup.CardAggregate, p models.Printing, baseline rollup.Aggregate, rates stats.Rates) models.CardStat {
	cardWinRate := stats.WinRate(row.Outcomes)
	significance := stats.CompareToBaseline(row.Outcomes, rates)

	return models.CardStat{
		UniqueCardID:  row.CardID,
		ScryfallID:    p.ID,
		Name:          p.Name,
		TypeLine:      p.TypeLine,
		CMC:           p.CMC,
		ManaCost:      p.ManaCost,
		ImageURL:      p.ImageURL,
		ImageURLLarge: p.ImageURLLarge,
		Legality:      p.Legality,
		ScryfallURI:   p.ScryfallURI,
		DecksWithCard: row.DeckCount,
		InclusionRate: stats.InclusionRate(row.DeckCount, baseline.DeckCount),
		Wins:          row.Wins,
		Draws:         row.Draws,
		Losses:        row.Losses,
		Performance: models.CardPerformance{
			CardWinRate: cardWinRate,
			DeckWinRate: rates.Win,
			WinRateDiff: (cardWinRate - rates.Win) * percentScale,
			Significance: models.Significance{
				Statistic: significance.Statistic,
				PValue:    significance.PValue,
			},
		},
	}
}

// newCardBuckets pre-populates every recognised type bucket so clients see
// empty lists instead of missing keys
func newCardBuckets() models.CardBuckets {
	buckets := models.CardBuckets{
		ByTypeBucket: make(map[string][]models.CardStat, len(deck.TypeBuckets())+1),
		Other:        []models.CardStat{},
	}
	for _, b := range deck.TypeBuckets() {
		buckets.ByTypeBucket[string(b)] = []models.CardStat{}
	}
	return buckets
}

// sortCardStats orders by mana value, then name, then card id
func sortCardStats(cards []models.CardStat) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.CMC != b.CMC {
			return a.CMC < b.CMC
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.UniqueCardID < b.UniqueCardID
	})
}
