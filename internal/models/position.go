// Package models defines the domain types shared across accmove packages:
// element positions, pending moves, credentials, work items, and the
// resources exposed by the Autodesk data APIs.
package models

import (
	"fmt"
	"math"
)

// Position is a point in the model's coordinate system.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Finite reports whether all three coordinates are finite numbers.
func (p Position) Finite() bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Sub returns the componentwise difference p - other.
func (p Position) Sub(other Position) Position {
	return Position{
		X: p.X - other.X,
		Y: p.Y - other.Y,
		Z: p.Z - other.Z,
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", p.X, p.Y, p.Z)
}
