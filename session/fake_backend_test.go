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
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/signer"
)

// callRecorder is a thread-safe, ordered log of which fake endpoint a
// Driver call reached, shared between the fake Chain Gateway and fake
// Bundle Submitter servers so a test can assert relative ordering across
// both.
type callRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *callRecorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *callRecorder) indexOf(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (r *callRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func putU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// buildParticipantAccount encodes a miner account with the given
// checkpoint_id and round_id_last, leaving every other field zero.
func buildParticipantAccount(checkpointID, roundIDLast uint64) []byte {
	buf := make([]byte, 8) // discriminator
	buf = append(buf, make([]byte, 32)...) // authority
	for i := 0; i < protocol.Squares; i++ {
		buf = putU64(buf, 0) // deployed
	}
	for i := 0; i < protocol.Squares; i++ {
		buf = putU64(buf, 0) // cumulative
	}
	buf = putU64(buf, 0) // checkpoint_fee
	buf = putU64(buf, checkpointID)
	buf = putU64(buf, 0) // last_claim_ore_at
	buf = putU64(buf, 0) // last_claim_sol_at
	buf = append(buf, make([]byte, 16)...) // rewards_factor
	buf = putU64(buf, 0) // rewards_sol
	buf = putU64(buf, 0) // rewards_token
	buf = putU64(buf, 0) // refined_token
	buf = putU64(buf, roundIDLast)
	buf = putU64(buf, 0) // lifetime_rewards_sol
	buf = putU64(buf, 0) // lifetime_rewards_tok
	buf = putU64(buf, 0) // lifetime_deployed
	return buf
}

// fakeChainServer answers the JSON-RPC surface the Session Driver's
// reconcile and deploy phases exercise: account reads for the participant
// and automation accounts, a blockhash, simulation, submission, and
// confirmation, all at whatever fixed state the test configures. It
// reports every sendTransaction into rec so a test can compare its
// position against the Bundle Submitter's sendBundle.
func fakeChainServer(t *testing.T, rec *callRecorder, wallet protocol.PublicKey, participant []byte, automationBalance uint64) *httptest.Server {
	t.Helper()
	minerAddr := chain.MinerPDA(wallet).String()
	automationAddr := chain.AutomationPDA(wallet).String()
	var nextSig int64

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Method {
		case "getAccountInfo":
			var addr string
			json.Unmarshal(req.Params[0], &addr)
			if addr == minerAddr {
				rec.record("chain:getAccountInfo:participant")
				if participant == nil {
					fmt.Fprint(w, `{"result":{"value":null}}`)
					return
				}
				enc := base64.StdEncoding.EncodeToString(participant)
				fmt.Fprintf(w, `{"result":{"value":{"data":["%s","base64"],"lamports":1,"owner":"","executable":false}}}`, enc)
				return
			}
			fmt.Fprint(w, `{"result":{"value":null}}`)

		case "getBalance":
			var addr string
			json.Unmarshal(req.Params[0], &addr)
			if addr == automationAddr {
				fmt.Fprintf(w, `{"result":{"value":%d}}`, automationBalance)
				return
			}
			fmt.Fprint(w, `{"result":{"value":0}}`)

		case "getLatestBlockhash":
			var hash protocol.PublicKey
			hash[0] = 0x42
			fmt.Fprintf(w, `{"result":{"value":{"blockhash":"%s"}}}`, hash.String())

		case "simulateTransaction":
			fmt.Fprint(w, `{"result":{"value":{"err":null,"logs":[]}}}`)

		case "sendTransaction":
			rec.record("chain:sendTransaction")
			var sig protocol.Signature
			binary.LittleEndian.PutUint64(sig[:8], uint64(atomic.AddInt64(&nextSig, 1)))
			fmt.Fprintf(w, `{"result":"%s"}`, sig.String())

		case "getSignatureStatuses":
			fmt.Fprint(w, `{"result":{"value":[{"confirmationStatus":"confirmed","err":null}]}}`)

		default:
			fmt.Fprint(w, `{"result":null}`)
		}
	}))
}

// fakeBundleServer answers sendBundle with a fixed status, recording every
// call into rec.
func fakeBundleServer(t *testing.T, rec *callRecorder, status bundle.Status) *httptest.Server {
	t.Helper()
	name := map[bundle.Status]string{bundle.Landed: "Landed", bundle.Failed: "Failed", bundle.Dropped: "Dropped"}[status]
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record("bundle:sendBundle")
		fmt.Fprintf(w, `{"result":{"bundle_id":"test-bundle","status":"%s"}}`, name)
	}))
}

// newFakeBackendFixture wires a Driver carrying a real signing key to a
// fake Chain Gateway (serving the given participant/automation state for
// that same wallet) and a fake Bundle Submitter, both httptest-backed.
// The wallet is generated once and shared between the Driver's signer and
// the fake server's keyed PDAs, exactly as a real deployment would see
// one wallet in both places.
func newFakeBackendFixture(t *testing.T, participant []byte, automationBalance uint64, bundleStatus bundle.Status) (*Driver, *callRecorder, func()) {
	t.Helper()
	sg := signer.NewMemorySigner()
	wallet, err := sg.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rec := &callRecorder{}
	chainSrv := fakeChainServer(t, rec, wallet, participant, automationBalance)
	bundleSrv := fakeBundleServer(t, rec, bundleStatus)

	cfg := protocol.SessionConfig{
		Wallet:          wallet,
		Strategy:        protocol.BestEV,
		PerSquareAmount: 1_000_000,
		NumSquares:      1,
		MaxTip:          1_000_000,
	}
	d := NewDriver(
		chain.NewGateway(chainSrv.URL, ""),
		sg,
		bundle.NewSubmitter(bundleSrv.URL, nil),
		eventbus.NewBus(eventbus.MinBufferSize),
		record.NopSink{},
		cfg,
		DefaultDriverConfig(),
		log.New(),
	)
	cleanup := func() {
		chainSrv.Close()
		bundleSrv.Close()
	}
	return d, rec, cleanup
}

func oneSquareSelection() protocol.Selection {
	sel := protocol.Selection{Deploy: true, PerSquareAmount: 1_000_000}
	sel.Mask[0] = true
	return sel
}

func TestReconcileThenDeploySequencesCheckpointBeforeDeploy(t *testing.T) {
	round := protocol.RoundSnapshot{RoundID: 5}
	sel := oneSquareSelection()

	// CheckpointID != RoundIDLast: a checkpoint is outstanding. The
	// automation account already holds enough for this round, so no
	// automate transaction should fire.
	participant := buildParticipantAccount(4, 5)
	d, rec, cleanup := newFakeBackendFixture(t, participant, 1_000_000, bundle.Landed)
	defer cleanup()

	ctx := context.Background()
	if err := d.reconcile(ctx, round, sel); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	d.deploy(ctx, round, sel)

	checkpointIdx := rec.indexOf("chain:sendTransaction")
	deployIdx := rec.indexOf("bundle:sendBundle")
	if checkpointIdx == -1 {
		t.Fatalf("no checkpoint transaction was submitted")
	}
	if deployIdx == -1 {
		t.Fatalf("no deploy bundle was submitted")
	}
	if checkpointIdx >= deployIdx {
		t.Errorf("checkpoint submitted at index %d, deploy at %d, want checkpoint before deploy", checkpointIdx, deployIdx)
	}
}

func TestReconcileThenDeploySequencesAutomateBeforeDeploy(t *testing.T) {
	round := protocol.RoundSnapshot{RoundID: 5}
	sel := oneSquareSelection()

	// CheckpointID == RoundIDLast and RoundIDLast is not behind the
	// current round: no checkpoint needed. The automation account is
	// underfunded, so an automate transaction must fire.
	participant := buildParticipantAccount(5, 5)
	d, rec, cleanup := newFakeBackendFixture(t, participant, 0, bundle.Landed)
	defer cleanup()

	ctx := context.Background()
	if err := d.reconcile(ctx, round, sel); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	d.deploy(ctx, round, sel)

	automateIdx := rec.indexOf("chain:sendTransaction")
	deployIdx := rec.indexOf("bundle:sendBundle")
	if automateIdx == -1 {
		t.Fatalf("no automate transaction was submitted")
	}
	if deployIdx == -1 {
		t.Fatalf("no deploy bundle was submitted")
	}
	if automateIdx >= deployIdx {
		t.Errorf("automate submitted at index %d, deploy at %d, want automate before deploy", automateIdx, deployIdx)
	}
}

func TestReconcileSkipsCheckpointAndAutomateWhenNeitherIsNeeded(t *testing.T) {
	round := protocol.RoundSnapshot{RoundID: 5}
	sel := oneSquareSelection()

	participant := buildParticipantAccount(5, 5)
	d, rec, cleanup := newFakeBackendFixture(t, participant, 1_000_000, bundle.Landed)
	defer cleanup()

	if err := d.reconcile(context.Background(), round, sel); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n := rec.count("chain:sendTransaction"); n != 0 {
		t.Errorf("chain:sendTransaction called %d times, want 0 when neither checkpoint nor automate is needed", n)
	}
}

func TestReconcileOnACanceledContextSubmitsNothing(t *testing.T) {
	round := protocol.RoundSnapshot{RoundID: 5}
	sel := oneSquareSelection()

	participant := buildParticipantAccount(4, 5) // would need a checkpoint if it ran at all
	d, rec, cleanup := newFakeBackendFixture(t, participant, 0, bundle.Landed)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.reconcile(ctx, round, sel); err != protocol.ErrCancelRequested {
		t.Fatalf("reconcile on a canceled context = %v, want protocol.ErrCancelRequested", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("reconcile on a canceled context reached the backend: %v, want no calls at all", rec.events)
	}
}

func TestDeployOnACanceledContextSubmitsNothing(t *testing.T) {
	round := protocol.RoundSnapshot{RoundID: 5}
	sel := oneSquareSelection()

	d, rec, cleanup := newFakeBackendFixture(t, nil, 0, bundle.Landed)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.deploy(ctx, round, sel)

	if n := rec.count("bundle:sendBundle"); n != 0 {
		t.Errorf("bundle:sendBundle called %d times on a canceled context, want 0", n)
	}
}
