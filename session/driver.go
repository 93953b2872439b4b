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

// Package session implements the Session Driver: one cooperative task per
// active wallet that tracks rounds, decides, and sequences transactions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/instruction"
	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/selection"
	"github.com/gridloop/miner/signer"
)

// Driver runs the per-round protocol for one wallet until its context is
// canceled. It holds no back-pointer to whatever started it; Chain
// Gateway, Signer, Bundle Submitter, and the event bus are all cloneable
// handles shared with every other driver.
type Driver struct {
	gateway   *chain.Gateway
	signer    signer.Signer
	submitter *bundle.Submitter
	bus       *eventbus.Bus
	sink      record.Sink
	log       log.Logger

	cfg       protocol.SessionConfig
	driverCfg DriverConfig

	stats protocol.ActiveSessionStats
}

// NewDriver constructs a driver for cfg. sink may be nil, in which case
// record.NopSink is used.
func NewDriver(gw *chain.Gateway, sg signer.Signer, sub *bundle.Submitter, bus *eventbus.Bus, sink record.Sink, cfg protocol.SessionConfig, driverCfg DriverConfig, logger log.Logger) *Driver {
	if sink == nil {
		sink = record.NopSink{}
	}
	return &Driver{
		gateway:   gw,
		signer:    sg,
		submitter: sub,
		bus:       bus,
		sink:      sink,
		log:       logger.New("wallet", cfg.Wallet.String()),
		cfg:       cfg,
		driverCfg: driverCfg,
	}
}

// Stats returns a snapshot of the driver's cumulative bookkeeping.
func (d *Driver) Stats() protocol.ActiveSessionStats { return d.stats }

// Run executes the per-round protocol until ctx is canceled, at which
// point it returns protocol.ErrCancelRequested. Cancellation drops any
// in-flight transaction; Run makes no attempt to revoke it.
func (d *Driver) Run(ctx context.Context) error {
	d.sink.SessionStarted(d.cfg)
	defer d.sink.SessionEnded(d.cfg.Wallet, d.stats)

	for {
		if canceled(ctx) {
			return protocol.ErrCancelRequested
		}

		round, err := d.awaitWindow(ctx)
		if err != nil {
			return err
		}

		sel, err := d.decide(ctx, round)
		if err != nil {
			return err
		}

		if sel.Skip != nil {
			d.stats.RoundsSkipped++
			d.stats.LastRoundID = round.RoundID
			d.stats.LastUpdateTime = time.Now()
			if err := d.waitNextRound(ctx, round.RoundID); err != nil {
				return err
			}
			continue
		}

		if err := d.reconcile(ctx, round, sel); err != nil {
			if err == protocol.ErrCancelRequested {
				return err
			}
			d.log.Warn("reconcile failed, skipping round", "round", round.RoundID, "err", err)
			if err := d.waitNextRound(ctx, round.RoundID); err != nil {
				return err
			}
			continue
		}

		d.deploy(ctx, round, sel)

		d.stats.RoundsPlayed++
		d.stats.LastRoundID = round.RoundID
		d.stats.LastUpdateTime = time.Now()

		if err := d.waitNextRound(ctx, round.RoundID); err != nil {
			return err
		}
	}
}

// awaitWindow is Phase A: poll board state and slot until the round is
// within WEnd slots of closing, then fetch the full round state.
func (d *Driver) awaitWindow(ctx context.Context) (protocol.RoundSnapshot, error) {
	for {
		if canceled(ctx) {
			return protocol.RoundSnapshot{}, protocol.ErrCancelRequested
		}

		board, err := d.gateway.BoardState(ctx)
		if err != nil {
			if serr := d.sleep(ctx, d.backoff()); serr != nil {
				return protocol.RoundSnapshot{}, serr
			}
			continue
		}
		slot, err := d.gateway.Slot(ctx)
		if err != nil {
			if serr := d.sleep(ctx, d.backoff()); serr != nil {
				return protocol.RoundSnapshot{}, serr
			}
			continue
		}

		var slotsRemaining uint64
		if board.EndSlot > slot {
			slotsRemaining = board.EndSlot - slot
		}

		if slotsRemaining > 0 && slotsRemaining <= d.driverCfg.WEnd {
			round, err := d.gateway.RoundState(ctx, board.RoundID)
			if err != nil {
				if serr := d.sleep(ctx, d.backoff()); serr != nil {
					return protocol.RoundSnapshot{}, serr
				}
				continue
			}
			round.EndSlot = board.EndSlot
			return round, nil
		}

		if serr := d.sleep(ctx, d.pollInterval(slotsRemaining)); serr != nil {
			return protocol.RoundSnapshot{}, serr
		}
	}
}

func (d *Driver) pollInterval(slotsRemaining uint64) time.Duration {
	if slotsRemaining < d.driverCfg.FarSlotEdge {
		return d.driverCfg.ClosePoll
	}
	return d.driverCfg.FarPollMax
}

func (d *Driver) backoff() time.Duration {
	return d.driverCfg.FailureBackoffMax
}

// decide is Phase B: snapshot the grid, compute a capped tip, and ask
// the Selection Engine for a verdict.
func (d *Driver) decide(ctx context.Context, round protocol.RoundSnapshot) (protocol.Selection, error) {
	if canceled(ctx) {
		return protocol.Selection{}, protocol.ErrCancelRequested
	}

	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindRoundUpdate, Wallet: d.cfg.Wallet, RoundID: round.RoundID, Time: time.Now(),
		Payload: eventbus.RoundUpdatePayload{Snapshot: round},
	})

	tip := d.driverCfg.RecommendedTip
	if tip > d.cfg.MaxTip {
		tip = d.cfg.MaxTip
	}
	if tip < d.driverCfg.TipFloor && d.driverCfg.TipFloor <= d.cfg.MaxTip {
		tip = d.driverCfg.TipFloor
	}

	sel := selection.Select(&round, &d.cfg, tip)

	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindDecisionMade, Wallet: d.cfg.Wallet, RoundID: round.RoundID, Time: time.Now(),
		Payload: eventbus.DecisionMadePayload{Selection: sel},
	})

	return sel, nil
}

// reconcile is Phase C: settle any outstanding checkpoint, then ensure
// the automation account holds enough balance for this round's deploy.
func (d *Driver) reconcile(ctx context.Context, round protocol.RoundSnapshot, sel protocol.Selection) error {
	if canceled(ctx) {
		return protocol.ErrCancelRequested
	}

	participant, err := d.gateway.ParticipantState(ctx, d.cfg.Wallet)
	if err != nil {
		return err
	}

	if participant.NeedsCheckpoint(round.RoundID) {
		if err := d.runCheckpoint(ctx, participant.RoundIDLast, round.RoundID); err != nil {
			return err
		}
	}

	needed := d.cfg.PerSquareAmount * uint64(sel.SelectedCount())
	balance, err := d.gateway.AutomationBalance(ctx, d.cfg.Wallet)
	if err != nil {
		return err
	}
	if balance < needed {
		if err := d.runAutomate(ctx, needed-balance); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) runCheckpoint(ctx context.Context, roundToSettle, currentRoundID uint64) error {
	ix := instruction.Checkpoint(d.cfg.Wallet, roundToSettle)
	sig, err := d.signAndSubmit(ctx, eventbus.StageCheckpoint, currentRoundID, ix)
	if err != nil {
		return err
	}
	if sig.Zero() {
		return nil // advisory mode: no signing key, nothing to wait for
	}

	confirmed, err := d.gateway.Confirm(ctx, sig, d.driverCfg.ReconcileConfirmTimeout)
	if err == nil && confirmed {
		return nil
	}

	for i := 0; i < d.driverCfg.ReconcilePollAttempts; i++ {
		if serr := d.sleep(ctx, d.driverCfg.ReconcilePollInterval); serr != nil {
			return serr
		}
		p, perr := d.gateway.ParticipantState(ctx, d.cfg.Wallet)
		if perr == nil && p != nil && p.CheckpointID == p.RoundIDLast {
			return nil
		}
	}
	d.log.Warn("checkpoint not observed settled, proceeding anyway", "round_to_settle", roundToSettle)
	return nil
}

func (d *Driver) runAutomate(ctx context.Context, deposit uint64) error {
	ix := instruction.Automate(d.cfg.Wallet, d.cfg.PerSquareAmount, deposit, d.cfg.Wallet, 0, 0, instruction.DISCRETIONARY, false)
	sig, err := d.signAndSubmit(ctx, eventbus.StageAutomate, 0, ix)
	if err != nil {
		return err
	}
	if sig.Zero() {
		return nil
	}

	confirmed, err := d.gateway.Confirm(ctx, sig, d.driverCfg.ReconcileConfirmTimeout)
	if err == nil && confirmed {
		return nil
	}

	for i := 0; i < d.driverCfg.ReconcilePollAttempts; i++ {
		if serr := d.sleep(ctx, d.driverCfg.ReconcilePollInterval); serr != nil {
			return serr
		}
		balance, berr := d.gateway.AutomationBalance(ctx, d.cfg.Wallet)
		if berr == nil && balance >= deposit {
			return nil
		}
	}
	d.log.Warn("automate deposit not observed settled, proceeding anyway", "deposit", deposit)
	return nil
}

// signAndSubmit builds a single-instruction transaction, signs it, and
// submits it directly through the Chain Gateway (checkpoint and automate
// never go through the priority bundle endpoint). It returns a zero
// signature, not an error, when the session has no signing key: that is
// advisory mode, not a failure.
func (d *Driver) signAndSubmit(ctx context.Context, stage eventbus.TxStage, roundID uint64, ix protocol.Instruction) (protocol.Signature, error) {
	if !d.signer.HasKey(d.cfg.Wallet) {
		d.bus.Publish(eventbus.Event{
			Kind: eventbus.KindPendingSignature, Wallet: d.cfg.Wallet, RoundID: roundID, Time: time.Now(),
			Payload: eventbus.PendingSignaturePayload{Stage: stage},
		})
		return protocol.Signature{}, nil
	}

	blockhash, err := d.gateway.LatestBlockhash(ctx)
	if err != nil {
		return protocol.Signature{}, err
	}
	tx := protocol.NewTransaction(d.cfg.Wallet, blockhash, time.Now(), ix)
	signed, err := d.signer.Sign(d.cfg.Wallet, tx)
	if err != nil {
		return protocol.Signature{}, err
	}

	sig, err := d.gateway.SubmitAndConfirm(ctx, signed)
	if sig.Zero() {
		return protocol.Signature{}, err
	}

	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxSubmitted, Wallet: d.cfg.Wallet, RoundID: roundID, Time: time.Now(),
		Payload: eventbus.TxSubmittedPayload{Stage: stage, Signature: sig},
	})
	status := eventbus.TxStatusConfirmed
	reason := ""
	if err != nil {
		status = eventbus.TxStatusTimedOut
		reason = err.Error()
	}
	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxConfirmed, Wallet: d.cfg.Wallet, RoundID: roundID, Time: time.Now(),
		Payload: eventbus.TxConfirmedPayload{Stage: stage, Signature: sig, Status: status, Reason: reason},
	})
	return sig, nil
}

// deploy is Phase D: build the compute-budget-prefixed deploy
// transaction, sign it, and submit it via the bundle endpoint, falling
// back to plain RPC submission on Failed/Dropped or a non-terminal
// submission error. A terminal bundle rejection ends the round's deploy.
func (d *Driver) deploy(ctx context.Context, round protocol.RoundSnapshot, sel protocol.Selection) {
	if !d.signer.HasKey(d.cfg.Wallet) {
		d.bus.Publish(eventbus.Event{
			Kind: eventbus.KindPendingSignature, Wallet: d.cfg.Wallet, RoundID: round.RoundID, Time: time.Now(),
			Payload: eventbus.PendingSignaturePayload{Stage: eventbus.StageDeploy},
		})
		return
	}

	blockhash, err := d.gateway.LatestBlockhash(ctx)
	if err != nil {
		d.log.Warn("deploy aborted: could not fetch blockhash", "round", round.RoundID, "err", err)
		return
	}

	budget := instruction.ComputeBudget(d.driverCfg.ComputeUnitLimit, d.driverCfg.ComputeUnitPrice)
	deployIx := instruction.Deploy(d.cfg.Wallet, d.cfg.Wallet, sel.PerSquareAmount, round.RoundID, sel.Mask)
	ixs := append(append([]protocol.Instruction(nil), budget...), deployIx)

	tx := protocol.NewTransaction(d.cfg.Wallet, blockhash, time.Now(), ixs...)
	signed, err := d.signer.Sign(d.cfg.Wallet, tx)
	if err != nil {
		d.log.Warn("deploy aborted: sign failed", "round", round.RoundID, "err", err)
		return
	}

	raw, err := signed.Marshal()
	if err != nil {
		d.log.Warn("deploy aborted: marshal failed", "round", round.RoundID, "err", err)
		return
	}

	sig, _ := signed.PrimarySignature()

	res, err := d.submitter.Submit(ctx, [][]byte{raw})
	var rejected *protocol.BundleRejectedError
	if errors.As(err, &rejected) && rejected.Terminal {
		d.publishDeployResult(round.RoundID, sig, err)
		d.recordRound(round.RoundID, sel, sig, false)
		return
	}
	needsFallback := err != nil
	if res != nil && (res.Status == bundle.Failed || res.Status == bundle.Dropped) {
		needsFallback = true
	}

	if needsFallback {
		fallbackSig, ferr := d.gateway.SubmitAndConfirm(ctx, signed)
		if !fallbackSig.Zero() {
			sig = fallbackSig
		}
		d.publishDeployResult(round.RoundID, sig, ferr)
		d.recordRound(round.RoundID, sel, sig, ferr == nil)
		return
	}

	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxSubmitted, Wallet: d.cfg.Wallet, RoundID: round.RoundID, Time: time.Now(),
		Payload: eventbus.TxSubmittedPayload{Stage: eventbus.StageDeploy, Signature: sig},
	})

	confirmed, cerr := d.gateway.Confirm(ctx, sig, chain.ConfirmationTimeout)
	status := eventbus.TxStatusConfirmed
	reason := ""
	switch {
	case cerr != nil:
		status = eventbus.TxStatusFailed
		reason = cerr.Error()
	case !confirmed:
		status = eventbus.TxStatusTimedOut
	}
	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxConfirmed, Wallet: d.cfg.Wallet, RoundID: round.RoundID, Time: time.Now(),
		Payload: eventbus.TxConfirmedPayload{Stage: eventbus.StageDeploy, Signature: sig, Status: status, Reason: reason},
	})

	d.recordRound(round.RoundID, sel, sig, status == eventbus.TxStatusConfirmed)
}

func (d *Driver) publishDeployResult(roundID uint64, sig protocol.Signature, err error) {
	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxSubmitted, Wallet: d.cfg.Wallet, RoundID: roundID, Time: time.Now(),
		Payload: eventbus.TxSubmittedPayload{Stage: eventbus.StageDeploy, Signature: sig},
	})
	status := eventbus.TxStatusConfirmed
	reason := ""
	if err != nil {
		status = eventbus.TxStatusFailed
		reason = err.Error()
	}
	d.bus.Publish(eventbus.Event{
		Kind: eventbus.KindTxConfirmed, Wallet: d.cfg.Wallet, RoundID: roundID, Time: time.Now(),
		Payload: eventbus.TxConfirmedPayload{Stage: eventbus.StageDeploy, Signature: sig, Status: status, Reason: reason},
	})
}

func (d *Driver) recordRound(roundID uint64, sel protocol.Selection, sig protocol.Signature, confirmed bool) {
	status := eventbus.TxStatusFailed
	if confirmed {
		status = eventbus.TxStatusConfirmed
		d.stats.TotalDeployed += sel.PerSquareAmount * uint64(sel.SelectedCount())
		d.stats.TotalTips += sel.Tip
	}
	d.sink.RoundPlayed(roundID, sel.Mask, sel.PerSquareAmount, sel.Tip, sig, status, nil)
}

// waitNextRound is Phase E: re-poll board state until the round id
// differs from the one just played.
func (d *Driver) waitNextRound(ctx context.Context, playedRoundID uint64) error {
	for {
		if canceled(ctx) {
			return protocol.ErrCancelRequested
		}
		board, err := d.gateway.BoardState(ctx)
		if err == nil && board.RoundID != playedRoundID {
			return nil
		}
		if serr := d.sleep(ctx, d.driverCfg.WaitNextPollInterval); serr != nil {
			return serr
		}
	}
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return protocol.ErrCancelRequested
	case <-t.C:
		return nil
	}
}

func canceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
