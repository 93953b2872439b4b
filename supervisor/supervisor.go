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

// Package supervisor starts and stops session drivers, keyed by wallet,
// and is the only mutator of the active-session registry.
package supervisor

import (
	"context"
	"sync"

	"github.com/JekaMas/workerpool"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/session"
	"github.com/gridloop/miner/signer"
)

type entry struct {
	cancel context.CancelFunc
	driver *session.Driver
	done   chan struct{}
}

// Supervisor owns the registry of active session drivers and the worker
// pool that runs them. At most one driver may be active per wallet.
type Supervisor struct {
	mu       sync.RWMutex
	active   map[protocol.PublicKey]*entry
	wallets  mapset.Set[protocol.PublicKey]
	pool     *workerpool.WorkerPool
	gateway  *chain.Gateway
	signer   signer.Signer
	submit   *bundle.Submitter
	bus      *eventbus.Bus
	sink     record.Sink
	log      log.Logger
	drvCfg   session.DriverConfig
}

// Config bundles the shared, cloneable handles every driver needs.
type Config struct {
	Gateway       *chain.Gateway
	Signer        signer.Signer
	Submitter     *bundle.Submitter
	Bus           *eventbus.Bus
	Sink          record.Sink
	DriverConfig  session.DriverConfig
	MaxConcurrent int
}

// New returns a Supervisor with an empty registry. MaxConcurrent bounds
// the worker pool's concurrent driver count; 0 or a negative value uses a
// cap of 256.
func New(cfg Config) *Supervisor {
	concurrency := cfg.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 256
	}
	sink := cfg.Sink
	if sink == nil {
		sink = record.NopSink{}
	}
	return &Supervisor{
		active:  make(map[protocol.PublicKey]*entry),
		wallets: mapset.NewSet[protocol.PublicKey](),
		pool:    workerpool.New(concurrency),
		gateway: cfg.Gateway,
		signer:  cfg.Signer,
		submit:  cfg.Submitter,
		bus:     cfg.Bus,
		sink:    sink,
		log:     log.New("component", "supervisor"),
		drvCfg:  cfg.DriverConfig,
	}
}

// Start spawns a driver for scfg.Wallet if none is currently running for
// that wallet. Starting over an active session is an error; replace is
// not supported.
func (s *Supervisor) Start(scfg protocol.SessionConfig) error {
	if err := scfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, running := s.active[scfg.Wallet]; running {
		s.mu.Unlock()
		return &protocol.ConfigInvalidError{Reason: "already running"}
	}

	driver := session.NewDriver(s.gateway, s.signer, s.submit, s.bus, s.sink, scfg, s.drvCfg, s.log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e := &entry{cancel: cancel, driver: driver, done: done}
	s.active[scfg.Wallet] = e
	s.wallets.Add(scfg.Wallet)
	s.mu.Unlock()

	s.pool.Submit(func() {
		defer close(done)
		if err := driver.Run(ctx); err != nil && err != protocol.ErrCancelRequested {
			s.log.Warn("session driver exited with error", "wallet", scfg.Wallet.String(), "err", err)
		}
		s.mu.Lock()
		if s.active[scfg.Wallet] == e {
			delete(s.active, scfg.Wallet)
			s.wallets.Remove(scfg.Wallet)
		}
		s.mu.Unlock()
	})

	return nil
}

// Stop signals cancellation for wallet's driver and removes the registry
// entry. Idempotent: stopping a wallet with no active driver is a no-op.
func (s *Supervisor) Stop(wallet protocol.PublicKey) {
	s.mu.Lock()
	e, ok := s.active[wallet]
	if ok {
		delete(s.active, wallet)
		s.wallets.Remove(wallet)
	}
	s.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// List returns the set of wallets with an active driver.
func (s *Supervisor) List() []protocol.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallets.ToSlice()
}

// Stats returns the cumulative bookkeeping for wallet's active driver,
// or false if no driver is running for it.
func (s *Supervisor) Stats(wallet protocol.PublicKey) (protocol.ActiveSessionStats, bool) {
	s.mu.RLock()
	e, ok := s.active[wallet]
	s.mu.RUnlock()
	if !ok {
		return protocol.ActiveSessionStats{}, false
	}
	return e.driver.Stats(), true
}

// StopAll cancels every active driver and waits for each to exit,
// used for clean process shutdown.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.active))
	for _, e := range s.active {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		<-e.done
	}
}
