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

// Package chain is the sole reader of on-chain accounts and the sole
// caller of RPC for reads, blockhashes, confirmations, and raw
// transaction submission.
package chain

import (
	"context"
	"time"

	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/protocol"
)

// Timeouts, all soft and recoverable.
const (
	ReadTimeout         = 1000 * time.Millisecond
	RoundFetchTimeout   = 1500 * time.Millisecond
	SimulationTimeout   = 5000 * time.Millisecond
	ConfirmationTimeout = 5000 * time.Millisecond
	BundleTimeout       = 30000 * time.Millisecond
	boardCacheInterval  = 1 * time.Second
)

// Gateway is the Chain Gateway: a cheap-to-clone handle wrapping a pooled
// RPC client and the read-mostly board cache. It owns no per-session
// state and is shared read-only across every session driver.
type Gateway struct {
	rpc   *rpcClient
	board *boardCache
	log   log.Logger
	ws    *slotSubscriber
}

// NewGateway dials endpoint and, if wsEndpoint is non-empty, also starts a
// background slot-stream subscriber that keeps the board cache warm
// between polls, supplementing rather than replacing the poll loop.
func NewGateway(endpoint, wsEndpoint string) *Gateway {
	g := &Gateway{
		rpc:   newRPCClient(endpoint, ReadTimeout),
		board: newBoardCache(boardCacheInterval),
		log:   log.New("component", "chain-gateway"),
	}
	if wsEndpoint != "" {
		g.ws = newSlotSubscriber(wsEndpoint, g.log)
		g.ws.start()
	}
	return g
}

// Close releases background resources (the optional websocket stream).
func (g *Gateway) Close() {
	if g.ws != nil {
		g.ws.stop()
	}
}

// BoardState decodes the singleton board account, serving from the
// ≤1s-old cache when available.
func (g *Gateway) BoardState(ctx context.Context) (protocol.BoardState, error) {
	if b, ok := g.board.get(); ok {
		return b, nil
	}
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	data, err := g.rpc.getAccountInfo(ctx, BoardPDA())
	if err != nil {
		return protocol.BoardState{}, &protocol.ChainUnavailableError{Op: "board_state", Err: err}
	}
	if data == nil {
		return protocol.BoardState{}, &protocol.DecodeError{Account: "board", Reason: "account does not exist"}
	}
	b, err := decodeBoard(data)
	if err != nil {
		return protocol.BoardState{}, err
	}
	g.board.set(b)
	return b, nil
}

// RoundState decodes the per-round account for roundID.
func (g *Gateway) RoundState(ctx context.Context, roundID uint64) (protocol.RoundSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, RoundFetchTimeout)
	defer cancel()
	data, err := g.rpc.getAccountInfo(ctx, RoundPDA(roundID))
	if err != nil {
		return protocol.RoundSnapshot{}, &protocol.ChainUnavailableError{Op: "round_state", Err: err}
	}
	if data == nil {
		return protocol.RoundSnapshot{}, &protocol.DecodeError{Account: "round", Reason: "account does not exist"}
	}
	return decodeRound(data)
}

// CurrentRoundState composes BoardState and RoundState.
func (g *Gateway) CurrentRoundState(ctx context.Context) (protocol.RoundSnapshot, error) {
	board, err := g.BoardState(ctx)
	if err != nil {
		return protocol.RoundSnapshot{}, err
	}
	round, err := g.RoundState(ctx, board.RoundID)
	if err != nil {
		return protocol.RoundSnapshot{}, err
	}
	round.EndSlot = board.EndSlot
	return round, nil
}

// ParticipantState decodes wallet's miner account, returning (nil, nil)
// if the account does not yet exist.
func (g *Gateway) ParticipantState(ctx context.Context, wallet protocol.PublicKey) (*protocol.ParticipantState, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	data, err := g.rpc.getAccountInfo(ctx, MinerPDA(wallet))
	if err != nil {
		return nil, &protocol.ChainUnavailableError{Op: "participant_state", Err: err}
	}
	if data == nil {
		return nil, nil
	}
	return decodeParticipant(data)
}

// Slot returns the current slot, preferring the websocket-fed cache when
// a slot notification arrived within the last second.
func (g *Gateway) Slot(ctx context.Context) (uint64, error) {
	if g.ws != nil {
		if slot, ok := g.ws.latestSlot(); ok {
			return slot, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	slot, err := g.rpc.getSlot(ctx)
	if err != nil {
		return 0, &protocol.ChainUnavailableError{Op: "slot", Err: err}
	}
	return slot, nil
}

// LatestBlockhash fetches a fresh blockhash for transaction construction.
func (g *Gateway) LatestBlockhash(ctx context.Context) (protocol.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	h, err := g.rpc.getLatestBlockhash(ctx)
	if err != nil {
		return protocol.Hash{}, &protocol.ChainUnavailableError{Op: "latest_blockhash", Err: err}
	}
	return h, nil
}

// AutomationBalance returns the lamport balance of wallet's automation
// account.
func (g *Gateway) AutomationBalance(ctx context.Context, wallet protocol.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()
	bal, err := g.rpc.getBalance(ctx, AutomationPDA(wallet))
	if err != nil {
		return 0, &protocol.ChainUnavailableError{Op: "automation_balance", Err: err}
	}
	return bal, nil
}

// SubmitAndConfirm simulates tx, and if simulation passes, submits it and
// waits for confirmation at "confirmed" commitment.
func (g *Gateway) SubmitAndConfirm(ctx context.Context, tx *protocol.Transaction) (protocol.Signature, error) {
	raw, err := tx.Marshal()
	if err != nil {
		return protocol.Signature{}, err
	}

	simCtx, cancel := context.WithTimeout(ctx, SimulationTimeout)
	defer cancel()
	if err := g.rpc.simulateTransaction(simCtx, raw); err != nil {
		return protocol.Signature{}, err
	}

	sendCtx, cancel2 := context.WithTimeout(ctx, BundleTimeout)
	defer cancel2()
	sig, err := g.rpc.sendTransaction(sendCtx, raw)
	if err != nil {
		return protocol.Signature{}, &protocol.ChainUnavailableError{Op: "send_transaction", Err: err}
	}

	confirmed, err := g.Confirm(ctx, sig, ConfirmationTimeout)
	if err != nil {
		return sig, err
	}
	if !confirmed {
		return sig, protocol.ErrConfirmationTimeout
	}
	return sig, nil
}

// Confirm polls getSignatureStatuses for sig until it reaches "confirmed"
// or timeout elapses.
func (g *Gateway) Confirm(ctx context.Context, sig protocol.Signature, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, err := g.rpc.getSignatureStatus(ctx, sig)
		if err != nil {
			return false, &protocol.ChainUnavailableError{Op: "confirm", Err: err}
		}
		if status != nil && status.Err == nil &&
			(status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized") {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}
