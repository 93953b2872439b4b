// Copyright 2024 The gridloop Authors
// This file is part of the gridloop library.
//
// The gridloop library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gridloop library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gridloop library. If not, see <http://www.gnu.org/licenses/>.

// Package selection ranks the 25 squares of a round snapshot under a
// configured strategy and emits a deploy-or-skip decision.
package selection

import (
	"sort"

	"github.com/gridloop/miner/protocol"
)

// squareMetric holds the per-square figures the three policies rank by.
type squareMetric struct {
	index           int
	ev              float64
	deployed        uint64
	potentialReward float64
}

// Select evaluates round under cfg with a recommended tip (already capped
// by the caller to cfg.MaxTip), returning the engine's decision.
func Select(round *protocol.RoundSnapshot, cfg *protocol.SessionConfig, tip uint64) protocol.Selection {
	if round.UniformGrid() {
		return protocol.Selection{
			Deploy: false,
			Skip:   &protocol.SkipDecision{Reason: "uniform grid", BestEV: bestEV(round, cfg, tip)},
		}
	}

	metrics := computeMetrics(round, cfg, tip)
	order := rank(metrics, cfg.Strategy)

	n := cfg.NumSquares
	if n > len(order) {
		n = len(order)
	}
	chosen := order[:n]

	var sel protocol.Selection
	sel.Deploy = true
	sel.PerSquareAmount = cfg.PerSquareAmount
	sel.Tip = tip
	for _, m := range chosen {
		sel.Mask[m.index] = true
	}
	sel.Primary = chosen[0].index
	sel.ExpectedEV = metrics[sel.Primary].ev
	return sel
}

// computeMetrics returns the per-square EV, deployed amount, and
// potential reward, following the formula:
//
//	share_i = per_square_amount / (deployed[i] + per_square_amount)
//	potential_reward_i = share_i * total_deployed
//	ev_i = potential_reward_i / 25 - tip
func computeMetrics(round *protocol.RoundSnapshot, cfg *protocol.SessionConfig, tip uint64) []squareMetric {
	out := make([]squareMetric, protocol.Squares)
	amt := float64(cfg.PerSquareAmount)
	total := float64(round.TotalDeployed)
	tipF := float64(tip)
	for i := 0; i < protocol.Squares; i++ {
		deployed := round.Deployed[i]
		share := amt / (float64(deployed) + amt)
		potential := share * total
		ev := potential/float64(protocol.Squares) - tipF
		out[i] = squareMetric{index: i, ev: ev, deployed: deployed, potentialReward: potential}
	}
	return out
}

// rank orders every square best-first under strategy, tie-breaking by
// ascending square index to keep the result deterministic.
func rank(metrics []squareMetric, strategy protocol.Strategy) []squareMetric {
	ordered := append([]squareMetric(nil), metrics...)
	var less func(a, b squareMetric) bool
	switch strategy {
	case protocol.Conservative:
		less = func(a, b squareMetric) bool { return a.deployed < b.deployed }
	case protocol.Aggressive:
		less = func(a, b squareMetric) bool { return a.potentialReward > b.potentialReward }
	default: // BestEV
		less = func(a, b squareMetric) bool { return a.ev > b.ev }
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.index < b.index
	})
	return ordered
}

// bestEV reports the highest ev_i across all squares, used as Skip
// telemetry even when the engine will not deploy.
func bestEV(round *protocol.RoundSnapshot, cfg *protocol.SessionConfig, tip uint64) float64 {
	metrics := computeMetrics(round, cfg, tip)
	best := metrics[0].ev
	for _, m := range metrics[1:] {
		if m.ev > best {
			best = m.ev
		}
	}
	return best
}
