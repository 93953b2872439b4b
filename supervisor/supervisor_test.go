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

package supervisor

import (
	"testing"
	"time"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/session"
	"github.com/gridloop/miner/signer"
)

func testWallet(b byte) protocol.PublicKey {
	var pk protocol.PublicKey
	pk[0] = b
	return pk
}

func newTestSupervisor() *Supervisor {
	return New(Config{
		Gateway:      chain.NewGateway("http://127.0.0.1:1", ""), // never reached in these tests
		Signer:       signer.NewMemorySigner(),
		Submitter:    bundle.NewSubmitter("http://127.0.0.1:1", nil),
		Bus:          eventbus.NewBus(eventbus.MinBufferSize),
		Sink:         record.NopSink{},
		DriverConfig: session.DefaultDriverConfig(),
	})
}

func validConfig(wallet protocol.PublicKey) protocol.SessionConfig {
	return protocol.SessionConfig{
		SessionID:       wallet.String(),
		Wallet:          wallet,
		Strategy:        protocol.BestEV,
		PerSquareAmount: 1_000_000,
		NumSquares:      1,
		MaxTip:          1_000_000,
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	sup := newTestSupervisor()
	cfg := validConfig(testWallet(1))
	cfg.NumSquares = 0 // invalid: must be 1..=25

	if err := sup.Start(cfg); err == nil {
		t.Fatalf("expected Start to reject an invalid session config")
	}
}

func TestStartRejectsDuplicateWallet(t *testing.T) {
	sup := newTestSupervisor()
	wallet := testWallet(2)

	if err := sup.Start(validConfig(wallet)); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer sup.StopAll()

	err := sup.Start(validConfig(wallet))
	if err == nil {
		t.Fatalf("expected the second Start for the same wallet to be rejected")
	}
	var invalid *protocol.ConfigInvalidError
	ok := false
	if e, is := err.(*protocol.ConfigInvalidError); is {
		invalid = e
		ok = true
	}
	if !ok || invalid.Reason != "already running" {
		t.Errorf("err = %v, want ConfigInvalidError{\"already running\"}", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sup := newTestSupervisor()
	wallet := testWallet(3)

	sup.Stop(wallet) // no driver running yet; must not panic

	if err := sup.Start(validConfig(wallet)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sup.Stop(wallet)
	sup.Stop(wallet) // stopping twice must not panic or error
}

func TestStopRemovesWalletFromList(t *testing.T) {
	sup := newTestSupervisor()
	wallet := testWallet(4)

	if err := sup.Start(validConfig(wallet)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		found := false
		for _, w := range sup.List() {
			if w == wallet {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("wallet never appeared in List() after Start")
		}
		time.Sleep(time.Millisecond)
	}

	sup.Stop(wallet)

	deadline = time.Now().Add(2 * time.Second)
	for {
		found := false
		for _, w := range sup.List() {
			if w == wallet {
				found = true
			}
		}
		if !found {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("wallet still present in List() after Stop")
		}
		time.Sleep(time.Millisecond)
	}
}
