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

import (
	"context"
	"testing"
	"time"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/signer"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	cfg := protocol.SessionConfig{
		Wallet:          protocol.PublicKey{1},
		Strategy:        protocol.BestEV,
		PerSquareAmount: 1_000_000,
		NumSquares:      1,
		MaxTip:          1_000_000,
	}
	return NewDriver(
		chain.NewGateway("http://127.0.0.1:1", ""),
		signer.NewMemorySigner(),
		bundle.NewSubmitter("http://127.0.0.1:1", nil),
		eventbus.NewBus(eventbus.MinBufferSize),
		record.NopSink{},
		cfg,
		DefaultDriverConfig(),
		log.New(),
	)
}

func TestPollIntervalUsesCloseCadenceNearTheWindow(t *testing.T) {
	d := newTestDriver(t)
	if got := d.pollInterval(d.driverCfg.FarSlotEdge - 1); got != d.driverCfg.ClosePoll {
		t.Errorf("pollInterval = %v, want ClosePoll %v", got, d.driverCfg.ClosePoll)
	}
}

func TestPollIntervalUsesFarCadenceAwayFromTheWindow(t *testing.T) {
	d := newTestDriver(t)
	if got := d.pollInterval(d.driverCfg.FarSlotEdge + 100); got != d.driverCfg.FarPollMax {
		t.Errorf("pollInterval = %v, want FarPollMax %v", got, d.driverCfg.FarPollMax)
	}
}

func TestCanceledReflectsContextState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if canceled(ctx) {
		t.Fatalf("canceled() = true before cancel")
	}
	cancel()
	if !canceled(ctx) {
		t.Fatalf("canceled() = false after cancel")
	}
}

func TestSleepReturnsCancelRequestedOnContextCancel(t *testing.T) {
	d := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.sleep(ctx, time.Second); err != protocol.ErrCancelRequested {
		t.Errorf("sleep on a canceled context = %v, want protocol.ErrCancelRequested", err)
	}
}

func TestSleepReturnsNilAfterDurationElapses(t *testing.T) {
	d := newTestDriver(t)
	if err := d.sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleep = %v, want nil", err)
	}
}

func TestRunReturnsCancelRequestedWhenContextIsAlreadyCanceled(t *testing.T) {
	d := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != protocol.ErrCancelRequested {
			t.Errorf("Run() = %v, want protocol.ErrCancelRequested", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return promptly for an already-canceled context")
	}
}

func TestStatsStartsAtZero(t *testing.T) {
	d := newTestDriver(t)
	stats := d.Stats()
	if stats.RoundsPlayed != 0 || stats.RoundsSkipped != 0 || stats.TotalDeployed != 0 || stats.TotalTips != 0 {
		t.Errorf("Stats() = %+v, want all zero for a fresh driver", stats)
	}
}
