// Package rollup maintains precomputed commander and card aggregates as
// immutable per-slice snapshots that are rebuilt in the background and
// swapped in atomically.
package rollup

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Window is a tournament date range relative to the build time
type Window string

const (
	WindowMonth       Window = "1m"
	WindowThreeMonths Window = "3m"
	WindowSixMonths   Window = "6m"
	WindowYear        Window = "1y"
	WindowSinceBan    Window = "since_ban"
	WindowAllTime     Window = "all"
)

const (
	// DefaultMinSample is the fewest decks a card-level row may be built from
	DefaultMinSample = 5

	// DefaultBanDateValue starts the since_ban window
	DefaultBanDateValue = "2024-09-23"
)

var (
	ErrUnknownWindow    = errors.New("unknown time window")
	ErrUnknownSlice     = errors.New("slice is not configured")
	ErrSliceUnavailable = errors.New("slice has not been built yet")
)

// AllWindows lists every supported window, shortest first
func AllWindows() []Window {
	return []Window{WindowMonth, WindowThreeMonths, WindowSixMonths, WindowYear, WindowSinceBan, WindowAllTime}
}

// DefaultFieldSizes are the minimum tournament sizes sliced by default
func DefaultFieldSizes() []int {
	return []int{0, 30, 60, 100}
}

// DefaultBanDate is the start of the since_ban window
func DefaultBanDate() time.Time {
	t, _ := time.Parse("2006-01-02", DefaultBanDateValue)
	return t
}

// ParseWindow validates a window name
func ParseWindow(s string) (Window, error) {
	w := Window(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllWindows() {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// Cutoff returns the earliest tournament start included in the window.
// The second result is false when the window is unbounded.
func (w Window) Cutoff(now, banDate time.Time) (time.Time, bool) {
	switch w {
	case WindowMonth:
		return now.AddDate(0, -1, 0), true
	case WindowThreeMonths:
		return now.AddDate(0, -3, 0), true
	case WindowSixMonths:
		return now.AddDate(0, -6, 0), true
	case WindowYear:
		return now.AddDate(-1, 0, 0), true
	case WindowSinceBan:
		return banDate, true
	}
	return time.Time{}, false
}

// Slice is one (window, minimum field size) combination
type Slice struct {
	Window       Window `json:"window"`
	MinFieldSize int    `json:"min_field_size"`
}

func (s Slice) String() string {
	return fmt.Sprintf("%s/%d", s.Window, s.MinFieldSize)
}

// Options configure which slices exist and how they are built
type Options struct {
	Windows       []Window
	FieldSizes    []int
	BanDate       time.Time
	MinSampleSize int
}

// DefaultOptions builds every window at the default field sizes
func DefaultOptions() Options {
	return Options{
		Windows:       AllWindows(),
		FieldSizes:    DefaultFieldSizes(),
		BanDate:       DefaultBanDate(),
		MinSampleSize: DefaultMinSample,
	}
}

// Slices expands the options into a deterministic list of slices
func (o Options) Slices() []Slice {
	sizes := append([]int(nil), o.FieldSizes...)
	sort.Ints(sizes)

	seen := make(map[Slice]bool)
	var slices []Slice
	for _, w := range o.Windows {
		for _, size := range sizes {
			s := Slice{Window: w, MinFieldSize: size}
			if seen[s] {
				continue
			}
			seen[s] = true
			slices = append(slices, s)
		}
	}
	return slices
}
