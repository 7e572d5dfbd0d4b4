package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/deck"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/rollup"
	"github.com/sam-warren/cedhtools/internal/services"
)

// StatisticsProvider answers commander and card statistics queries
type StatisticsProvider interface {
	CommanderStatistics(ctx context.Context, q services.Query) (*models.StatisticsResponse, error)
	CardStatistics(ctx context.Context, q services.Query, cardID string) (*models.CardStatisticsResponse, error)
	TopCommanders(ctx context.Context, window rollup.Window, minFieldSize, limit int, search string) (*models.CommanderListResponse, error)
}

// DeckFetcher loads a decklist by its public id
type DeckFetcher interface {
	FetchDeck(ctx context.Context, publicID string) (*deck.Decklist, error)
}

type StatisticsHandler struct {
	statistics StatisticsProvider
	decks      DeckFetcher
}

func NewStatisticsHandler(statistics StatisticsProvider, decks DeckFetcher) *StatisticsHandler {
	return &StatisticsHandler{
		statistics: statistics,
		decks:      decks,
	}
}

// DeckStatisticsRequest is the body of POST /api/decks/statistics. Either
// Deck (a Moxfield URL or id) or Decklist is set.
type DeckStatisticsRequest struct {
	Deck         string         `json:"deck"`
	Decklist     *deck.Decklist `json:"decklist"`
	Window       string         `json:"window"`
	MinFieldSize int            `json:"min_size"`
}

// GetTopCommanders lists commander identities by deck count, optionally
// narrowed by a name search in q
func (h *StatisticsHandler) GetTopCommanders(c *gin.Context) {
	window, minSize, err := sliceParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
	}

	result, err := h.statistics.TopCommanders(c.Request.Context(), window, minSize, limit, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCommanderStatistics returns the statistics of the commander identity
// named by the commander query parameters
func (h *StatisticsHandler) GetCommanderStatistics(c *gin.Context) {
	q, err := commanderQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.statistics.CommanderStatistics(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCardStatistics returns one card's statistics within a commander identity
func (h *StatisticsHandler) GetCardStatistics(c *gin.Context) {
	cardID := strings.TrimSpace(c.Param("cardId"))
	if cardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card id is required"})
		return
	}

	q, err := commanderQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.statistics.CardStatistics(c.Request.Context(), q, cardID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostDeckStatistics analyses a submitted decklist or a Moxfield deck
// reference
func (h *StatisticsHandler) PostDeckStatistics(c *gin.Context) {
	var req DeckStatisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := services.Query{MinFieldSize: req.MinFieldSize}
	if req.Window != "" {
		w, err := rollup.ParseWindow(req.Window)
		if err != nil {
			respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidWindow, err))
			return
		}
		q.Window = w
	}

	switch {
	case req.Decklist != nil && req.Deck != "":
		respondError(c, services.ErrAmbiguousQuery)
		return
	case req.Decklist != nil:
		q.Decklist = req.Decklist
	case req.Deck != "":
		list, err := h.fetchDeck(c.Request.Context(), req.Deck)
		if err != nil {
			respondError(c, err)
			return
		}
		q.Decklist = list
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "deck or decklist is required"})
		return
	}

	result, err := h.statistics.CommanderStatistics(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDeckStatistics analyses a deck by its Moxfield id, imported or not
func (h *StatisticsHandler) GetDeckStatistics(c *gin.Context) {
	window, minSize, err := sliceParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	list, err := h.fetchDeck(c.Request.Context(), c.Param("deckId"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.statistics.CommanderStatistics(c.Request.Context(), services.Query{
		Decklist:     list,
		Window:       window,
		MinFieldSize: minSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *StatisticsHandler) fetchDeck(ctx context.Context, ref string) (*deck.Decklist, error) {
	id, err := services.ParseDeckReference(ref)
	if err != nil {
		return nil, err
	}
	return h.decks.FetchDeck(ctx, id)
}

// commanderQuery reads repeated or comma separated commander parameters
// and the slice parameters
func commanderQuery(c *gin.Context) (services.Query, error) {
	window, minSize, err := sliceParams(c)
	if err != nil {
		return services.Query{}, err
	}

	var ids []string
	for _, v := range c.QueryArray("commander") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	return services.Query{
		CommanderIDs: ids,
		Window:       window,
		MinFieldSize: minSize,
	}, nil
}

// sliceParams parses the window and min_size query parameters. Empty
// values select the defaults.
func sliceParams(c *gin.Context) (rollup.Window, int, error) {
	var window rollup.Window
	if v := c.Query("window"); v != "" {
		w, err := rollup.ParseWindow(v)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", services.ErrInvalidWindow, err)
		}
		window = w
	}

	minSize := 0
	if v := c.Query("min_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %q", services.ErrInvalidFieldSize, v)
		}
		minSize = n
	}
	return window, minSize, nil
}

// respondError maps service errors to HTTP status codes. Input errors are
// returned verbatim; unexpected faults are logged and hidden.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case services.IsInputError(err), errors.Is(err, rollup.ErrUnknownSlice):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrCardNotFound), errors.Is(err, services.ErrDeckNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, rollup.ErrSliceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
