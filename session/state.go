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

package session

// Phase is the per-round state machine a driver walks through once per
// round: IDLE -> WINDOW_OPEN -> DECIDED -> (CHECKPOINTING ->)
// (FUNDING ->) DEPLOYING -> CONFIRMED/FAILED -> WAIT_NEXT -> IDLE.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWindowOpen
	PhaseDecided
	PhaseCheckpointing
	PhaseFunding
	PhaseDeploying
	PhaseConfirmed
	PhaseFailed
	PhaseWaitNext
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseWindowOpen:
		return "WINDOW_OPEN"
	case PhaseDecided:
		return "DECIDED"
	case PhaseCheckpointing:
		return "CHECKPOINTING"
	case PhaseFunding:
		return "FUNDING"
	case PhaseDeploying:
		return "DEPLOYING"
	case PhaseConfirmed:
		return "CONFIRMED"
	case PhaseFailed:
		return "FAILED"
	case PhaseWaitNext:
		return "WAIT_NEXT"
	default:
		return "UNKNOWN"
	}
}
