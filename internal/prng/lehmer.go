// Package prng provides the seeded Park–Miller stream used for synthetic demand.
package prng

import (
	"math"

	"pharmacy-forecast/internal/model"
)

const (
	// Modulus is the Mersenne prime 2^31-1.
	Modulus int64 = 2147483647
	// Multiplier is the minimal-standard Lehmer multiplier.
	Multiplier int64 = 16807
)

// Generator yields successive values in [0,1). Not safe for concurrent use.
type Generator struct {
	state int64
	draws int
}

// New seeds a generator. The seed is reduced to |seed| mod Modulus; zero maps to Modulus-1.
func New(seed int64) *Generator {
	return &Generator{state: normalize(seed)}
}

func normalize(seed int64) int64 {
	s := seed % Modulus
	if s < 0 {
		s = -s
	}
	if s == 0 {
		s = Modulus - 1
	}
	return s
}

// Float64 advances the stream and returns the next value.
func (g *Generator) Float64() float64 {
	g.state = g.state * Multiplier % Modulus
	g.draws++
	return float64(g.state-1) / float64(Modulus-1)
}

// Func exposes the generator as a plain draw function.
func (g *Generator) Func() func() float64 {
	return g.Float64
}

// Draws reports how many values have been produced.
func (g *Generator) Draws() int {
	return g.draws
}

// SeedFor derives the seed for a target: its id, or its average sales when the id is unknown.
func SeedFor(t model.Target) int64 {
	if t.ID != 0 {
		return t.ID
	}
	return int64(math.Round(t.AvgDailySales * 1000))
}
