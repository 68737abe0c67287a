package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/particlelife/components"
)

// ParticleRecord is one row of a particle dump: the particle tuple in store
// order.
type ParticleRecord struct {
	X     float32 `csv:"x"`
	Y     float32 `csv:"y"`
	VX    float32 `csv:"vx"`
	VY    float32 `csv:"vy"`
	Color int32   `csv:"color"`
}

// SnapshotName returns the dump file name for a tick.
func SnapshotName(tick int64) string {
	return fmt.Sprintf("particles_%d.csv", tick)
}

// SaveParticles writes ps to dir as a CSV dump, one record per particle.
// Returns the filepath where it was saved.
func SaveParticles(ps []components.Particle, dir string, tick int64) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	records := make([]ParticleRecord, len(ps))
	for i, p := range ps {
		records[i] = ParticleRecord{X: p.X, Y: p.Y, VX: p.VX, VY: p.VY, Color: p.Color}
	}

	path := filepath.Join(dir, SnapshotName(tick))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	if err := gocsv.Marshal(records, f); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadParticles reads a dump written by SaveParticles.
func LoadParticles(path string) ([]components.Particle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer f.Close()

	var records []ParticleRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	ps := make([]components.Particle, len(records))
	for i, r := range records {
		ps[i] = components.Particle{X: r.X, Y: r.Y, VX: r.VX, VY: r.VY, Color: r.Color}
	}
	return ps, nil
}
