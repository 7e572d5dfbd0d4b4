package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/rollup"
)

const defaultBuildHistory = 20

// RollupController exposes the background refresher
type RollupController interface {
	Slices() []rollup.Slice
	Status() []rollup.SliceStatus
	Trigger(slices ...rollup.Slice) error
}

// BuildHistory reads persisted build records
type BuildHistory interface {
	RecentBuilds(ctx context.Context, limit int) ([]models.RollupBuild, error)
}

type RollupHandler struct {
	refresher RollupController
	builds    BuildHistory
}

func NewRollupHandler(refresher RollupController, builds BuildHistory) *RollupHandler {
	return &RollupHandler{
		refresher: refresher,
		builds:    builds,
	}
}

// GetStatus returns the live state of every slice and the latest builds
func (h *RollupHandler) GetStatus(c *gin.Context) {
	limit := defaultBuildHistory
	if v := c.Query("builds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "builds must be a positive integer"})
			return
		}
		limit = n
	}

	builds, err := h.builds.RecentBuilds(c.Request.Context(), limit)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load rollup builds")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rollup builds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slices": h.refresher.Status(),
		"builds": builds,
	})
}

// TriggerRefresh starts a background rebuild. Without parameters every
// slice is rebuilt; window and min_size narrow the selection.
func (h *RollupHandler) TriggerRefresh(c *gin.Context) {
	slices, err := h.selectSlices(c.Query("window"), c.Query("min_size"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.refresher.Trigger(slices...); err != nil {
		switch {
		case errors.Is(err, rollup.ErrRefreshThrottled):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, rollup.ErrUnknownSlice):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	zerolog.Ctx(c.Request.Context()).Info().Int("slices", len(slices)).Msg("rollup refresh triggered")

	c.JSON(http.StatusAccepted, gin.H{
		"message": "refresh started",
		"slices":  slices,
	})
}

// selectSlices returns nil for every slice, or the configured slices
// matching the given window and field size
func (h *RollupHandler) selectSlices(windowParam, sizeParam string) ([]rollup.Slice, error) {
	if windowParam == "" && sizeParam == "" {
		return nil, nil
	}

	var window rollup.Window
	if windowParam != "" {
		w, err := rollup.ParseWindow(windowParam)
		if err != nil {
			return nil, err
		}
		window = w
	}

	size := -1
	if sizeParam != "" {
		n, err := strconv.Atoi(sizeParam)
		if err != nil || n < 0 {
			return nil, errors.New("min_size must be a non-negative integer")
		}
		size = n
	}

	var out []rollup.Slice
	for _, s := range h.refresher.Slices() {
		if window != "" && s.Window != window {
			continue
		}
		if size >= 0 && s.MinFieldSize != size {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, rollup.ErrUnknownSlice
	}
	return out, nil
}
