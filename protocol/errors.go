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

package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors a driver treats as recoverable-within-the-round.
var (
	// ErrConfirmationTimeout means the transaction may still land; it is a
	// warning, not a terminal failure.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrNotSigned means the session has no signing capability and runs in
	// advisory-only mode.
	ErrNotSigned = errors.New("session has no signing key")
	// ErrCancelRequested is normal, cooperative shutdown.
	ErrCancelRequested = errors.New("cancel requested")
)

// ChainUnavailableError wraps an RPC/network failure. Recoverable locally
// by retry/back-off within the round's time budget.
type ChainUnavailableError struct {
	Op  string
	Err error
}

func (e *ChainUnavailableError) Error() string {
	return fmt.Sprintf("chain unavailable during %s: %v", e.Op, e.Err)
}

func (e *ChainUnavailableError) Unwrap() error { return e.Err }

// DecodeError means on-chain account data could not be parsed. Fatal for
// the round it was observed in; non-retriable within that round.
type DecodeError struct {
	Account string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error on %s account: %s", e.Account, e.Reason)
}

// SimulationRejectedError means the program refused the transaction at
// simulation time.
type SimulationRejectedError struct {
	Logs []string
}

func (e *SimulationRejectedError) Error() string {
	return fmt.Sprintf("simulation rejected (%d log lines)", len(e.Logs))
}

// BundleRejectedError means the priority endpoint rejected the bundle.
// Terminal reasons (bad signature, expired blockhash) should set Terminal.
type BundleRejectedError struct {
	Reason   string
	Terminal bool
}

func (e *BundleRejectedError) Error() string {
	return fmt.Sprintf("bundle rejected: %s", e.Reason)
}

// ConfigInvalidError is rejected at start() time.
type ConfigInvalidError struct {
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("invalid session config: %s", e.Reason)
}
