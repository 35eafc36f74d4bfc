// SPDX-License-Identifier: MIT

package render

import "math"

// GammaState tracks the running curve-distance cursor used by the gamma
// spacing rule: consecutive features in curve order are thinned so that
// no two survive within less than a gamma-dependent fraction of
// scale(z) of each other.
type GammaState struct {
	previndex uint64
	hasPrev   bool
}

// Accept reports whether a feature at curve position index should be
// kept given gamma and the zoom's curve-distance scale, advancing the
// cursor when it is. gamma<=0 disables the rule (every feature passes).
//
// Formula: keep iff (index-previndex)/scale >= gamma^(-1/gamma), the
// gamma'th root of the reciprocal gap threshold.
func (g *GammaState) Accept(index uint64, scale, gamma float64) bool {
	if gamma <= 0 {
		return true
	}
	if !g.hasPrev {
		g.previndex = index
		g.hasPrev = true
		return true
	}
	gap := float64(index-g.previndex) / scale
	threshold := math.Pow(gamma, -1/gamma)
	if gap < threshold {
		return false
	}
	g.previndex = index
	return true
}
