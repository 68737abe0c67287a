package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkClustering   BookmarkType = "clustering"
	BookmarkDispersal    BookmarkType = "dispersal"
	BookmarkSaturation   BookmarkType = "capacity_saturation"
	BookmarkStableRegime BookmarkType = "stable_regime"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int64        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentNeighborPeak float64 // peak mean neighbors in recent history
	saturated          bool    // last window had capacity overflow
	stableWindowsCount int     // consecutive windows with a steady regime
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stable regime detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		// Clustering: mean neighbors > 2x rolling average
		if b := bd.checkClustering(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Dispersal: mean neighbors dropped >30% from recent peak
		if b := bd.checkDispersal(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Stable regime: low variance over 5+ windows
		if b := bd.checkStableRegime(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	// Saturation: first window with truncated cells or neighbor lists
	if b := bd.checkSaturation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)

	if stats.NeighborsMean > bd.recentNeighborPeak {
		bd.recentNeighborPeak = stats.NeighborsMean
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkClustering(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.NeighborsMean
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.NeighborsMean > avg*2.0 && stats.NeighborsMean >= 2 {
		return &Bookmark{
			Type:        BookmarkClustering,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean neighbors %.2f is %.1fx average (%.2f)", stats.NeighborsMean, stats.NeighborsMean/avg, avg),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkDispersal(stats WindowStats) *Bookmark {
	if bd.recentNeighborPeak == 0 {
		return nil
	}

	drop := 1.0 - stats.NeighborsMean/bd.recentNeighborPeak
	if drop > 0.30 && bd.recentNeighborPeak-stats.NeighborsMean >= 1 {
		// Reset peak after triggering
		oldPeak := bd.recentNeighborPeak
		bd.recentNeighborPeak = stats.NeighborsMean

		return &Bookmark{
			Type:        BookmarkDispersal,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean neighbors fell %.0f%% from peak %.2f to %.2f", drop*100, oldPeak, stats.NeighborsMean),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkSaturation(stats WindowStats) *Bookmark {
	overflowing := stats.CellOverflow > 0 || stats.NeighborOverflow > 0
	wasSaturated := bd.saturated
	bd.saturated = overflowing
	if !overflowing || wasSaturated {
		return nil
	}

	return &Bookmark{
		Type:        BookmarkSaturation,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Capacity exceeded: %d cell drops, %d neighbor drops", stats.CellOverflow, stats.NeighborOverflow),
	}
}

func (bd *BookmarkDetector) checkStableRegime(stats WindowStats) *Bookmark {
	if stats.Particles == 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	if bd.historyFull {
		// Circular buffer: take the 4 most recent in write order
		recent = make([]WindowStats, 4)
		for k := 0; k < 4; k++ {
			recent[k] = bd.history[(bd.historyIdx-4+k+bd.historySize)%bd.historySize]
		}
	}

	nbCV2 := cv2(recent, func(w WindowStats) float64 { return w.NeighborsMean })
	spCV2 := cv2(recent, func(w WindowStats) float64 { return w.SpeedMean })

	if nbCV2 < 0.0025 && spCV2 < 0.0025 { // CV^2 < 0.0025 means CV < 5%
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkStableRegime,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Steady regime with %.2f mean neighbors, %.3f mean speed over 5+ windows", stats.NeighborsMean, stats.SpeedMean),
		}
	}

	return nil
}

// cv2 returns the squared coefficient of variation of f over ws.
func cv2(ws []WindowStats, f func(WindowStats) float64) float64 {
	var sum float64
	for _, w := range ws {
		sum += f(w)
	}
	mean := sum / float64(len(ws))
	if mean == 0 {
		return 0
	}
	var v float64
	for _, w := range ws {
		d := f(w) - mean
		v += d * d
	}
	v /= float64(len(ws))
	return v / (mean * mean)
}
