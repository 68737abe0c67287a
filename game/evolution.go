package game

import (
	"fmt"
	"log/slog"
)

// maybeEvolve mutates a copy of the active matrix every evolveEvery ticks
// and installs it as a full replace between ticks.
func (g *Game) maybeEvolve() {
	if g.evolveEvery <= 0 {
		return
	}
	tick := g.engine.Tick()
	if tick%g.evolveEvery != 0 {
		return
	}

	m := g.engine.Matrix()
	m.Mutate(g.rng, float32(g.cfg.Evolution.Sigma), float32(g.cfg.Evolution.Limit))
	if err := g.engine.SetMatrix(m); err != nil {
		slog.Error("failed to install mutated matrix", "error", err)
		return
	}

	if g.logStats {
		slog.Info("matrix mutated", "tick", tick, "sigma", g.cfg.Evolution.Sigma)
	}
	if err := g.outputManager.WriteMatrix(m, fmt.Sprintf("matrix_%d.yaml", tick)); err != nil {
		slog.Error("failed to write matrix", "error", err)
	}
}
