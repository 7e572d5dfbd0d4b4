package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sam-warren/cedhtools/internal/deck"
	"github.com/sam-warren/cedhtools/internal/metrics"
)

const (
	moxfieldBaseURL    = "https://api2.moxfield.com/v3"
	moxfieldUserAgent  = "cedhtools/1.0"
	moxfieldDeckHost   = "moxfield.com"
	defaultDeckTimeout = 10 * time.Second
)

var (
	ErrDeckNotFound         = errors.New("deck not found, make sure it is public on moxfield")
	ErrUpstreamUnavailable  = errors.New("moxfield is currently unavailable")
	ErrInvalidDeckReference = errors.New("invalid moxfield deck reference")
)

var deckIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// MoxfieldOptions configures the deck client
type MoxfieldOptions struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	CacheTTL          time.Duration
	CacheSize         int
}

// MoxfieldService fetches public decklists from Moxfield. Successful
// lookups are cached; calls are rate limited across all callers.
type MoxfieldService struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	cache     *expirable.LRU[string, *deck.Decklist]
	logger    zerolog.Logger
}

func NewMoxfieldService(opts MoxfieldOptions, logger zerolog.Logger) *MoxfieldService {
	if opts.BaseURL == "" {
		opts.BaseURL = moxfieldBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = moxfieldUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDeckTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}

	return &MoxfieldService{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		cache:     expirable.NewLRU[string, *deck.Decklist](opts.CacheSize, nil, opts.CacheTTL),
		logger:    logger.With().Str("component", "moxfield").Logger(),
	}
}

type moxfieldDeckResponse struct {
	ID       string                   `json:"id"`
	PublicID string                   `json:"publicId"`
	Name     string                   `json:"name"`
	Format   string                   `json:"format"`
	Boards   map[string]moxfieldBoard `json:"boards"`
}

type moxfieldBoard struct {
	Count int                          `json:"count"`
	Cards map[string]moxfieldBoardCard `json:"cards"`
}

type moxfieldBoardCard struct {
	Quantity int          `json:"quantity"`
	Card     moxfieldCard `json:"card"`
}

type moxfieldCard struct {
	ID           string           `json:"id"`
	UniqueCardID string           `json:"uniqueCardId"`
	ScryfallID   string           `json:"scryfall_id"`
	Name         string           `json:"name"`
	Type         moxfieldTypeCode `json:"type"`
}

// moxfieldTypeCode accepts the type code as either a string or a number
type moxfieldTypeCode string

func (t *moxfieldTypeCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = moxfieldTypeCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = moxfieldTypeCode(n.String())
	return nil
}

// FetchDeck returns the validated decklist of a public deck. The returned
// decklist is shared with the cache and must not be modified.
func (s *MoxfieldService) FetchDeck(ctx context.Context, publicID string) (*deck.Decklist, error) {
	if !deckIDPattern.MatchString(publicID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeckReference, publicID)
	}

	if cached, ok := s.cache.Get(publicID); ok {
		metrics.MoxfieldRequestsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/decks/all/%s", s.baseURL, url.PathEscape(publicID))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.MoxfieldAPILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MoxfieldRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.MoxfieldRequestsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrDeckNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		metrics.MoxfieldRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		metrics.MoxfieldRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("moxfield API returned status %d", resp.StatusCode)
	}

	var body moxfieldDeckResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.MoxfieldRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode moxfield response: %w", err)
	}

	list := convertMoxfieldDeck(body, publicID)
	if err := list.Validate(); err != nil {
		metrics.MoxfieldRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	s.cache.Add(publicID, list)
	metrics.MoxfieldRequestsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug().Str("deck_id", publicID).Str("name", list.Name).Msg("fetched deck")

	return list, nil
}

func convertMoxfieldDeck(body moxfieldDeckResponse, publicID string) *deck.Decklist {
	id := body.PublicID
	if id == "" {
		id = publicID
	}
	list := &deck.Decklist{
		ID:     id,
		Name:   body.Name,
		Format: strings.ToLower(body.Format),
		Boards: make(map[string][]deck.Entry, len(body.Boards)),
	}

	for boardName, board := range body.Boards {
		entries := make([]deck.Entry, 0, len(board.Cards))
		for _, bc := range board.Cards {
			cardID := bc.Card.UniqueCardID
			if cardID == "" {
				cardID = bc.Card.ID
			}
			entries = append(entries, deck.Entry{
				UniqueCardID: cardID,
				PrintingID:   bc.Card.ScryfallID,
				Name:         bc.Card.Name,
				TypeCode:     string(bc.Card.Type),
				Quantity:     bc.Quantity,
			})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].UniqueCardID < entries[j].UniqueCardID })
		list.Boards[strings.ToLower(boardName)] = entries
	}

	return list
}

// ParseDeckReference extracts the public deck id from a Moxfield deck URL
// or returns a bare id unchanged
func ParseDeckReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidDeckReference
	}

	if strings.Contains(ref, moxfieldDeckHost) {
		if !strings.Contains(ref, "://") {
			ref = "https://" + ref
		}
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDeckReference, err)
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host != moxfieldDeckHost {
			return "", fmt.Errorf("%w: unexpected host %q", ErrInvalidDeckReference, u.Hostname())
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "decks" {
			return "", fmt.Errorf("%w: %q", ErrInvalidDeckReference, ref)
		}
		ref = parts[1]
	}

	if !deckIDPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeckReference, ref)
	}
	return ref, nil
}
