package game

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pthm-cable/particlelife/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	tick := g.engine.Tick()
	if !g.collector.ShouldFlush(tick) {
		return
	}

	g.neighborBuf = g.engine.NeighborCounts(g.neighborBuf)
	stats := g.collector.Flush(tick, g.engine.Particles(), g.neighborBuf, g.engine.FieldNorm())
	perfStats := g.perfCollector.Stats()

	// Call stats callback if provided
	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	// Log stats if enabled (console output)
	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteStats(stats); err != nil {
			slog.Error("failed to write stats", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	// Check for bookmarks
	bookmarks := g.bookmarkDetector.Check(stats)
	for _, bm := range bookmarks {
		if g.logStats {
			bm.LogBookmark()
		}

		if err := g.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}

		// Save snapshot on bookmark
		if g.snapshotDir != "" {
			g.saveSnapshot()
		}
	}
}

// maybeSnapshot dumps particles and the active matrix every snapshotEvery ticks.
func (g *Game) maybeSnapshot() {
	if g.snapshotDir == "" || g.snapshotEvery <= 0 {
		return
	}
	tick := g.engine.Tick()
	if tick%g.snapshotEvery != 0 {
		return
	}
	g.saveSnapshot()
}

// saveSnapshot writes the current particle dump and matrix to disk.
func (g *Game) saveSnapshot() {
	tick := g.engine.Tick()

	path, err := telemetry.SaveParticles(g.engine.Particles(), g.snapshotDir, tick)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	matrixPath := filepath.Join(g.snapshotDir, fmt.Sprintf("matrix_%d.yaml", tick))
	if err := g.engine.Matrix().Save(matrixPath); err != nil {
		slog.Error("failed to save snapshot matrix", "error", err)
	}

	slog.Info("snapshot saved", "path", path, "tick", tick)
}
