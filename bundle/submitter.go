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

// Package bundle submits signed transactions as an atomic bundle to a
// priority endpoint, with encoding negotiation and tip accounting.
package bundle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/protocol"
)

// Status is the lifecycle state of a submitted bundle.
type Status int

const (
	Pending Status = iota
	Landed
	Failed
	Dropped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Landed:
		return "Landed"
	case Failed:
		return "Failed"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// Result is the outcome of a bundle submission.
type Result struct {
	BundleID   string
	Status     Status
	Slot       uint64 // set when Status == Landed
	Reason     string // set when Status == Failed
	Tip        uint64
	Signatures []protocol.Signature
}

// Submitter submits bundles to a priority endpoint over JSON-RPC.
type Submitter struct {
	endpoint string
	http     *http.Client
}

// NewSubmitter returns a Submitter posting to endpoint.
func NewSubmitter(endpoint string, client *http.Client) *Submitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Submitter{endpoint: endpoint, http: client}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sendBundleResult struct {
	BundleID string `json:"bundle_id"`
	Status   string `json:"status"`
	Slot     uint64 `json:"slot,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type rpcResponse struct {
	Result *sendBundleResult `json:"result"`
	Error  *rpcError         `json:"error"`
}

// Submit sends txs as a single atomic bundle. It first tries base64
// encoding; if the endpoint's rejection message indicates a decode
// failure, it retries exactly once with base58 encoding. Any other
// error is terminal for this bundle.
func (s *Submitter) Submit(ctx context.Context, txs [][]byte) (*Result, error) {
	res, err := s.send(ctx, txs, encodeBase64)
	if err != nil {
		if isDecodeRejection(err) {
			res, err = s.send(ctx, txs, encodeBase58)
		}
		if err != nil {
			return nil, err
		}
	}
	res.Tip = extractTip(txs)
	res.Signatures = extractSignatures(txs)
	return res, nil
}

type encoder func([]byte) string

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
func encodeBase58(b []byte) string { return base58.Encode(b) }

func (s *Submitter) send(ctx context.Context, txs [][]byte, enc encoder) (*Result, error) {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = enc(tx)
	}

	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "sendBundle", Params: []any{encoded}}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &protocol.ChainUnavailableError{Op: "sendBundle", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &protocol.ChainUnavailableError{Op: "sendBundle", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, &protocol.ChainUnavailableError{Op: "sendBundle", Err: err}
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, &protocol.ChainUnavailableError{Op: "sendBundle", Err: err}
	}
	if rr.Error != nil {
		return nil, &protocol.BundleRejectedError{Reason: rr.Error.Message, Terminal: isTerminalReason(rr.Error.Message)}
	}
	if rr.Result == nil {
		return nil, &protocol.ChainUnavailableError{Op: "sendBundle", Err: fmt.Errorf("empty result")}
	}

	return &Result{
		BundleID: rr.Result.BundleID,
		Status:   parseStatus(rr.Result.Status),
		Slot:     rr.Result.Slot,
		Reason:   rr.Result.Reason,
	}, nil
}

func parseStatus(s string) Status {
	switch s {
	case "Landed":
		return Landed
	case "Failed":
		return Failed
	case "Dropped":
		return Dropped
	default:
		return Pending
	}
}

// isDecodeRejection reports whether err's message indicates the endpoint
// could not decode the transaction payload, the signal to retry with the
// alternate encoding.
func isDecodeRejection(err error) bool {
	var rejected *protocol.BundleRejectedError
	if e, ok := err.(*protocol.BundleRejectedError); ok {
		rejected = e
	} else {
		return false
	}
	return strings.Contains(strings.ToLower(rejected.Reason), "could not be decoded")
}

// isTerminalReason reports whether reason names a failure the RPC
// fallback cannot recover from.
func isTerminalReason(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "bad signature") || strings.Contains(lower, "expired blockhash") ||
		strings.Contains(lower, "invalid signature") || strings.Contains(lower, "blockhash not found")
}

// systemTransferDiscriminator is the 4-byte little-endian instruction tag
// the system program uses for a lamport transfer.
const systemTransferDiscriminator = uint32(2)

// extractTip scans every instruction in every transaction for a
// system-program transfer whose destination is a known tip account, and
// sums the lamports. This is informational only: it never affects
// submission behavior.
func extractTip(txs [][]byte) uint64 {
	var total uint64
	for _, raw := range txs {
		total += scanTipTransfers(raw)
	}
	return total
}

// scanTipTransfers parses raw wire bytes back into their account-key
// table and instruction list and sums the lamports of any system-program
// transfer instruction whose destination account is a known tip account.
func scanTipTransfers(raw []byte) uint64 {
	msg, err := parseMessage(raw)
	if err != nil {
		return 0
	}
	var total uint64
	for _, ix := range msg.instructions {
		if int(ix.programIdx) >= len(msg.keys) || msg.keys[ix.programIdx] != chain.SystemProgramID() {
			continue
		}
		if len(ix.data) != 12 {
			continue
		}
		if binary.LittleEndian.Uint32(ix.data[0:4]) != systemTransferDiscriminator {
			continue
		}
		if len(ix.accountIdx) < 2 || int(ix.accountIdx[1]) >= len(msg.keys) {
			continue
		}
		dest := msg.keys[ix.accountIdx[1]]
		if chain.IsTipAccount(dest) {
			total += binary.LittleEndian.Uint64(ix.data[4:12])
		}
	}
	return total
}

type parsedInstruction struct {
	programIdx byte
	accountIdx []byte
	data       []byte
}

type parsedMessage struct {
	keys         []protocol.PublicKey
	instructions []parsedInstruction
}

// parseMessage decodes the wire format Transaction.Marshal produces: a
// compact-array of signatures, then the message header, account-key
// table, blockhash, and compact instruction array.
func parseMessage(raw []byte) (*parsedMessage, error) {
	sigCount, off := decodeCompactLen(raw)
	off += sigCount * 64
	if off+3 > len(raw) {
		return nil, fmt.Errorf("bundle: truncated message header")
	}
	off += 3 // numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned

	keyCount, n := decodeCompactLenAt(raw, off)
	off += n
	keys := make([]protocol.PublicKey, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		if off+32 > len(raw) {
			return nil, fmt.Errorf("bundle: truncated account key table")
		}
		var k protocol.PublicKey
		copy(k[:], raw[off:off+32])
		keys = append(keys, k)
		off += 32
	}

	off += 32 // recent blockhash

	ixCount, n := decodeCompactLenAt(raw, off)
	off += n
	instructions := make([]parsedInstruction, 0, ixCount)
	for i := 0; i < ixCount; i++ {
		if off+1 > len(raw) {
			return nil, fmt.Errorf("bundle: truncated instruction")
		}
		programIdx := raw[off]
		off++

		acctCount, n := decodeCompactLenAt(raw, off)
		off += n
		if off+acctCount > len(raw) {
			return nil, fmt.Errorf("bundle: truncated instruction accounts")
		}
		accountIdx := append([]byte(nil), raw[off:off+acctCount]...)
		off += acctCount

		dataLen, n := decodeCompactLenAt(raw, off)
		off += n
		if off+dataLen > len(raw) {
			return nil, fmt.Errorf("bundle: truncated instruction data")
		}
		data := append([]byte(nil), raw[off:off+dataLen]...)
		off += dataLen

		instructions = append(instructions, parsedInstruction{programIdx: programIdx, accountIdx: accountIdx, data: data})
	}

	return &parsedMessage{keys: keys, instructions: instructions}, nil
}

func decodeCompactLenAt(b []byte, start int) (int, int) {
	n, consumed := decodeCompactLen(b[start:])
	return n, consumed
}

// extractSignatures parses the leading compact-array of signatures off
// each raw transaction.
func extractSignatures(txs [][]byte) []protocol.Signature {
	var out []protocol.Signature
	for _, raw := range txs {
		sigs, _ := parseSignatures(raw)
		out = append(out, sigs...)
	}
	return out
}

func parseSignatures(raw []byte) ([]protocol.Signature, int) {
	if len(raw) == 0 {
		return nil, 0
	}
	n, consumed := decodeCompactLen(raw)
	out := make([]protocol.Signature, 0, n)
	off := consumed
	for i := 0; i < n && off+64 <= len(raw); i++ {
		var sig protocol.Signature
		copy(sig[:], raw[off:off+64])
		out = append(out, sig)
		off += 64
	}
	return out, off
}

func decodeCompactLen(b []byte) (int, int) {
	var n, shift, i int
	for {
		if i >= len(b) {
			return n, i
		}
		c := b[i]
		n |= int(c&0x7f) << shift
		i++
		if c&0x80 == 0 {
			return n, i
		}
		shift += 7
	}
}

// KnownTipAccounts reports whether addr is a tip-treasury account,
// delegating to the Chain Gateway's constant set.
func KnownTipAccounts(addr protocol.PublicKey) bool {
	return chain.IsTipAccount(addr)
}
