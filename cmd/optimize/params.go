package main

import (
	"fmt"

	"github.com/pthm-cable/particlelife/config"
	"github.com/pthm-cable/particlelife/interaction"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector maps a flat search vector onto an interaction matrix, one
// parameter per entry in row-major order.
type ParamVector struct {
	Colors int
	Specs  []ParamSpec
}

// NewParamVector creates one parameter per matrix entry bounded by
// [-limit, limit]. Defaults come from base when it has the right shape.
func NewParamVector(colors int, limit float64, base *interaction.Matrix) *ParamVector {
	pv := &ParamVector{Colors: colors}
	for i := 0; i < colors; i++ {
		for j := 0; j < colors; j++ {
			def := 0.0
			if base != nil && base.Size() == colors {
				def = float64(base.Get(i, j))
			}
			pv.Specs = append(pv.Specs, ParamSpec{
				Name:    fmt.Sprintf("m_%d_%d", i, j),
				Min:     -limit,
				Max:     limit,
				Default: def,
			})
		}
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// Rows converts a raw vector into clamped matrix rows.
func (pv *ParamVector) Rows(values []float64) [][]float64 {
	clamped := pv.Clamp(values)
	rows := make([][]float64, pv.Colors)
	for i := range rows {
		rows[i] = clamped[i*pv.Colors : (i+1)*pv.Colors]
	}
	return rows
}

// Matrix converts a raw vector into an interaction matrix.
func (pv *ParamVector) Matrix(values []float64) *interaction.Matrix {
	m, _ := interaction.New(pv.Colors, 0)
	for i, row := range pv.Rows(values) {
		for j, v := range row {
			m.Set(i, j, float32(v))
		}
	}
	return m
}

// ApplyToConfig installs the vector as the config's inline matrix and clears
// any matrix file so the inline rows take effect.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	cfg.Interaction.File = ""
	cfg.Interaction.Matrix = pv.Rows(values)
}
