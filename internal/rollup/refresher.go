package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sam-warren/cedhtools/internal/metrics"
	"github.com/sam-warren/cedhtools/internal/models"
)

var (
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrRefreshThrottled  = errors.New("refresh requested too recently")
)

const (
	defaultRefreshInterval = 6 * time.Hour
	defaultParallelism     = 4
	// minimum gap between manual triggers
	defaultTriggerInterval = time.Minute
)

// SourceLoader reads the raw records a refresh aggregates
type SourceLoader interface {
	EligibleDecks(ctx context.Context) ([]models.Deck, error)
	LinkedStandings(ctx context.Context) ([]models.LinkedStanding, error)
}

// Persister stores built snapshots so they survive restarts
type Persister interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot, startedAt time.Time) error
	RecordFailure(ctx context.Context, slice Slice, startedAt time.Time, buildErr error) error
	LoadSnapshot(ctx context.Context, slice Slice) (*Snapshot, error)
}

// PrintingResolver picks representative printings for card rows
type PrintingResolver interface {
	SelectMany(ctx context.Context, cardIDs []string) (map[string]models.Printing, error)
	Purge()
}

// SliceStatus is the refresh state of one slice
type SliceStatus struct {
	Window          Window    `json:"window"`
	MinFieldSize    int       `json:"min_field_size"`
	Version         uint64    `json:"version"`
	BuildID         string    `json:"build_id,omitempty"`
	BuiltAt         time.Time `json:"built_at,omitempty"`
	Commanders      int       `json:"commanders"`
	CardRows        int       `json:"card_rows"`
	Running         bool      `json:"running"`
	LastAttempt     time.Time `json:"last_attempt,omitempty"`
	LastDurationSec float64   `json:"last_duration_seconds"`
	LastError       string    `json:"last_error,omitempty"`
}

// RefresherConfig tunes the background refresh
type RefresherConfig struct {
	Interval        time.Duration
	Parallelism     int
	RunOnStart      bool
	TriggerInterval time.Duration
}

// Refresher rebuilds slices and swaps them into the store. A slice is
// never rebuilt concurrently with itself; different slices may be.
type Refresher struct {
	store     *Store
	builder   *Builder
	loader    SourceLoader
	persister Persister
	printings PrintingResolver
	logger    zerolog.Logger
	cfg       RefresherConfig
	limiter   *rate.Limiter
	now       func() time.Time

	mu      sync.Mutex
	running map[Slice]bool
	status  map[Slice]*SliceStatus

	// baseCtx outlives individual requests so manual triggers keep running
	baseCtx context.Context
}

func NewRefresher(store *Store, builder *Builder, loader SourceLoader, persister Persister, printings PrintingResolver, logger zerolog.Logger, cfg RefresherConfig) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRefreshInterval
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.TriggerInterval <= 0 {
		cfg.TriggerInterval = defaultTriggerInterval
	}

	r := &Refresher{
		store:     store,
		builder:   builder,
		loader:    loader,
		persister: persister,
		printings: printings,
		logger:    logger.With().Str("component", "rollup_refresher").Logger(),
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.TriggerInterval), 1),
		now:       time.Now,
		running:   make(map[Slice]bool),
		status:    make(map[Slice]*SliceStatus),
		baseCtx:   context.Background(),
	}
	for _, slice := range store.Slices() {
		r.status[slice] = &SliceStatus{Window: slice.Window, MinFieldSize: slice.MinFieldSize}
	}
	return r
}

// Warm loads the last persisted snapshot of every slice that has no live
// snapshot yet.
func (r *Refresher) Warm(ctx context.Context) error {
	var errs []error
	loaded := 0
	for _, slice := range r.store.Slices() {
		if _, err := r.store.Snapshot(slice); err == nil {
			continue
		}
		snap, err := r.persister.LoadSnapshot(ctx, slice)
		if err != nil {
			errs = append(errs, fmt.Errorf("slice %s: %w", slice, err))
			continue
		}
		if snap == nil {
			continue
		}
		if _, err := r.store.Swap(snap); err != nil {
			errs = append(errs, err)
			continue
		}
		r.recordSuccess(snap, 0)
		loaded++
	}
	r.logger.Info().Int("slices", loaded).Msg("warmed rollup store from persisted snapshots")
	return errors.Join(errs...)
}

// Start runs refreshes on a ticker until ctx is cancelled
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	r.logger.Info().
		Dur("interval", r.cfg.Interval).
		Int("slices", len(r.store.Slices())).
		Int("parallelism", r.cfg.Parallelism).
		Msg("rollup refresher started")

	if r.cfg.RunOnStart {
		r.runScheduled(ctx)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("rollup refresher stopping")
			return
		case <-ticker.C:
			r.runScheduled(ctx)
		}
	}
}

func (r *Refresher) runScheduled(ctx context.Context) {
	if err := r.RefreshAll(ctx); err != nil {
		r.logger.Error().Err(err).Msg("scheduled rollup refresh finished with errors")
	}
}

// Trigger starts a background refresh of the given slices, or of all of
// them when none are given. It returns immediately.
func (r *Refresher) Trigger(slices ...Slice) error {
	for _, s := range slices {
		if !r.store.Has(s) {
			return fmt.Errorf("%w: %s", ErrUnknownSlice, s)
		}
	}
	if !r.limiter.Allow() {
		return ErrRefreshThrottled
	}

	r.mu.Lock()
	ctx := r.baseCtx
	r.mu.Unlock()

	go func() {
		var err error
		if len(slices) == 0 {
			err = r.RefreshAll(ctx)
		} else {
			err = r.refresh(ctx, slices)
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("manual rollup refresh finished with errors")
		}
	}()
	return nil
}

// RefreshSlice rebuilds a single slice. It returns ErrRefreshInProgress
// without doing anything if that slice is already rebuilding.
func (r *Refresher) RefreshSlice(ctx context.Context, slice Slice) error {
	if !r.store.Has(slice) {
		return fmt.Errorf("%w: %s", ErrUnknownSlice, slice)
	}
	if !r.acquire(slice) {
		metrics.RollupBuildsTotal.WithLabelValues(slice.String(), "skipped").Inc()
		return ErrRefreshInProgress
	}
	return r.refreshAcquired(ctx, []Slice{slice})
}

// RefreshAll rebuilds every slice not already rebuilding. Source data is
// read once. A failing slice keeps its previous snapshot and does not stop
// the others.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	return r.refresh(ctx, r.store.Slices())
}

// RefreshSlices rebuilds the given slices from one read of the source
// data. Slices already rebuilding are skipped.
func (r *Refresher) RefreshSlices(ctx context.Context, slices ...Slice) error {
	for _, s := range slices {
		if !r.store.Has(s) {
			return fmt.Errorf("%w: %s", ErrUnknownSlice, s)
		}
	}
	return r.refresh(ctx, slices)
}

func (r *Refresher) refresh(ctx context.Context, slices []Slice) error {
	var acquired []Slice
	for _, s := range slices {
		if r.acquire(s) {
			acquired = append(acquired, s)
			continue
		}
		metrics.RollupBuildsTotal.WithLabelValues(s.String(), "skipped").Inc()
		r.logger.Info().Str("slice", s.String()).Msg("slice already rebuilding, skipped")
	}
	if len(acquired) == 0 {
		return nil
	}
	return r.refreshAcquired(ctx, acquired)
}

// refreshAcquired owns the in-progress flag of every slice it is given
// and releases each one when that slice finishes.
func (r *Refresher) refreshAcquired(ctx context.Context, slices []Slice) error {
	pending := make(map[Slice]bool, len(slices))
	for _, s := range slices {
		pending[s] = true
	}
	defer func() {
		for s := range pending {
			r.release(s)
		}
	}()

	started := r.now()
	ds, err := r.loadDataset(ctx)
	if err != nil {
		for _, s := range slices {
			r.recordFailure(ctx, s, started, err)
		}
		return fmt.Errorf("failed to load rollup source data: %w", err)
	}

	var (
		errMu sync.Mutex
		errs  []error
		g     errgroup.Group
	)
	g.SetLimit(r.cfg.Parallelism)

	for _, s := range slices {
		if ctx.Err() != nil {
			break
		}
		slice := s
		delete(pending, slice)

		g.Go(func() error {
			defer r.release(slice)
			if ctx.Err() != nil {
				return nil
			}
			if err := r.rebuildRecovered(ctx, slice, ds); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("slice %s: %w", slice, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}

	r.logger.Info().
		Int("slices", len(slices)).
		Int("failed", len(errs)).
		Int("decks", ds.DeckCount()).
		Dur("duration", time.Since(started)).
		Msg("rollup refresh finished")

	return errors.Join(errs...)
}

func (r *Refresher) loadDataset(ctx context.Context) (*Dataset, error) {
	decks, err := r.loader.EligibleDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}
	standings, err := r.loader.LinkedStandings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load standings: %w", err)
	}

	ds := NewDataset(decks, standings, r.now())
	metrics.RollupSourceDecks.Set(float64(ds.DeckCount()))

	// drop selections made against older usage counts
	r.printings.Purge()
	printings, err := r.printings.SelectMany(ctx, ds.CardIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve printings: %w", err)
	}
	ds.SetPrintings(printings)

	return ds, nil
}

// rebuild builds, persists and swaps one slice. Nothing is swapped unless
// the snapshot was persisted.
// rebuildRecovered turns a panic while rebuilding one slice into a failure
// of that slice. Errgroup goroutines are out of reach of the caller's
// recover.
func (r *Refresher) rebuildRecovered(ctx context.Context, slice Slice, ds *Dataset) (err error) {
	started := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during rebuild: %v", rec)
			r.recordFailure(ctx, slice, started, err)
		}
	}()
	return r.rebuild(ctx, slice, ds)
}

func (r *Refresher) rebuild(ctx context.Context, slice Slice, ds *Dataset) error {
	started := r.now()
	label := slice.String()

	snap := r.builder.Build(slice, started, ds)
	snap.BuildID = uuid.New().String()
	if prev, err := r.store.Snapshot(slice); err == nil {
		snap.Version = prev.Version + 1
	} else {
		snap.Version = 1
	}

	if err := r.persister.SaveSnapshot(ctx, snap, started); err != nil {
		r.recordFailure(ctx, slice, started, err)
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	if _, err := r.store.Swap(snap); err != nil {
		r.recordFailure(ctx, slice, started, err)
		return err
	}

	duration := r.now().Sub(started)
	r.recordSuccess(snap, duration)
	metrics.RollupBuildsTotal.WithLabelValues(label, "success").Inc()
	metrics.RollupBuildDuration.WithLabelValues(label).Observe(duration.Seconds())

	r.logger.Info().
		Str("slice", label).
		Uint64("version", snap.Version).
		Int("commanders", len(snap.Commanders)).
		Int("card_rows", snap.CardRowCount()).
		Dur("duration", duration).
		Msg("slice rebuilt")

	return nil
}

func (r *Refresher) acquire(slice Slice) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[slice] {
		return false
	}
	r.running[slice] = true
	if st, ok := r.status[slice]; ok {
		st.Running = true
	}
	metrics.RollupRefreshInProgress.Inc()
	return true
}

func (r *Refresher) release(slice Slice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running[slice] {
		return
	}
	delete(r.running, slice)
	if st, ok := r.status[slice]; ok {
		st.Running = false
	}
	metrics.RollupRefreshInProgress.Dec()
}

func (r *Refresher) recordSuccess(snap *Snapshot, duration time.Duration) {
	label := snap.Slice.String()
	metrics.RollupCommanderRows.WithLabelValues(label).Set(float64(len(snap.Commanders)))
	metrics.RollupCardRows.WithLabelValues(label).Set(float64(snap.CardRowCount()))
	metrics.RollupLastSuccess.WithLabelValues(label).Set(float64(snap.BuiltAt.Unix()))

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[snap.Slice]
	if !ok {
		return
	}
	st.Version = snap.Version
	st.BuildID = snap.BuildID
	st.BuiltAt = snap.BuiltAt
	st.Commanders = len(snap.Commanders)
	st.CardRows = snap.CardRowCount()
	st.LastAttempt = snap.BuiltAt
	st.LastDurationSec = duration.Seconds()
	st.LastError = ""
}

func (r *Refresher) recordFailure(ctx context.Context, slice Slice, started time.Time, buildErr error) {
	metrics.RollupBuildsTotal.WithLabelValues(slice.String(), "failed").Inc()
	r.logger.Error().Err(buildErr).Str("slice", slice.String()).Msg("slice rebuild failed, keeping previous snapshot")

	r.mu.Lock()
	if st, ok := r.status[slice]; ok {
		st.LastAttempt = started
		st.LastDurationSec = r.now().Sub(started).Seconds()
		st.LastError = buildErr.Error()
	}
	r.mu.Unlock()

	if err := r.persister.RecordFailure(ctx, slice, started, buildErr); err != nil {
		r.logger.Warn().Err(err).Str("slice", slice.String()).Msg("failed to record rebuild failure")
	}
}

// Slices returns the configured slices
func (r *Refresher) Slices() []Slice {
	return r.store.Slices()
}

// Status reports every slice, ordered by window then field size
func (r *Refresher) Status() []SliceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SliceStatus, 0, len(r.status))
	for _, slice := range r.store.Slices() {
		if st, ok := r.status[slice]; ok {
			out = append(out, *st)
		}
	}
	order := make(map[Window]int)
	for i, w := range AllWindows() {
		order[w] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Window != out[j].Window {
			return order[out[i].Window] < order[out[j].Window]
		}
		return out[i].MinFieldSize < out[j].MinFieldSize
	})
	return out
}
