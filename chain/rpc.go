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

package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gridloop/miner/protocol"
)

// rpcClient is a minimal JSON-RPC 2.0 client over the chain's RPC surface
// (getAccountInfo, getBalance, getTokenAccountBalance, getSlot,
// getLatestBlockhash, simulateTransaction, sendTransaction,
// getSignatureStatuses), with every call except sendTransaction and
// getSignatureStatuses at "confirmed" commitment. It holds one
// pooled *http.Client, cheap to clone by sharing the pointer across
// sessions.
type rpcClient struct {
	endpoint string
	http     *http.Client
	nextID   int64
}

func newRPCClient(endpoint string, timeout time.Duration) *rpcClient {
	return &rpcClient{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request bounded by ctx. The caller is
// responsible for attaching the per-call soft timeout from §5 to ctx.
func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	id := atomic.AddInt64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: err}
	}
	if rr.Error != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: rr.Error}
	}
	if out == nil {
		return nil
	}
	if len(rr.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return &protocol.ChainUnavailableError{Op: method, Err: err}
	}
	return nil
}

type accountInfoValue struct {
	Data       [2]string `json:"data"` // [base64, "base64"]
	Lamports   uint64    `json:"lamports"`
	Owner      string    `json:"owner"`
	Executable bool      `json:"executable"`
}

type accountInfoResult struct {
	Value *accountInfoValue `json:"value"`
}

func (c *rpcClient) getAccountInfo(ctx context.Context, addr protocol.PublicKey) ([]byte, error) {
	var res accountInfoResult
	params := []any{addr.String(), map[string]any{"encoding": "base64", "commitment": "confirmed"}}
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
	if err != nil {
		return nil, &protocol.DecodeError{Account: addr.String(), Reason: "invalid base64 account data"}
	}
	return data, nil
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

func (c *rpcClient) getBalance(ctx context.Context, addr protocol.PublicKey) (uint64, error) {
	var res balanceResult
	params := []any{addr.String(), map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getBalance", params, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

type tokenBalanceValue struct {
	Amount string `json:"amount"`
}

type tokenBalanceResult struct {
	Value tokenBalanceValue `json:"value"`
}

func (c *rpcClient) getTokenAccountBalance(ctx context.Context, addr protocol.PublicKey) (uint64, error) {
	var res tokenBalanceResult
	params := []any{addr.String(), map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getTokenAccountBalance", params, &res); err != nil {
		return 0, err
	}
	var amount uint64
	_, err := fmt.Sscanf(res.Value.Amount, "%d", &amount)
	if err != nil {
		return 0, nil
	}
	return amount, nil
}

func (c *rpcClient) getSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []any{map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

type blockhashValue struct {
	Blockhash string `json:"blockhash"`
}

type blockhashResult struct {
	Value blockhashValue `json:"value"`
}

func (c *rpcClient) getLatestBlockhash(ctx context.Context) (protocol.Hash, error) {
	var res blockhashResult
	params := []any{map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return protocol.Hash{}, err
	}
	key, err := protocol.ParsePublicKey(res.Value.Blockhash)
	if err != nil {
		return protocol.Hash{}, &protocol.DecodeError{Account: "blockhash", Reason: "invalid base58 blockhash"}
	}
	return protocol.Hash(key), nil
}

type simulateValue struct {
	Err  any      `json:"err"`
	Logs []string `json:"logs"`
}

type simulateResult struct {
	Value simulateValue `json:"value"`
}

func (c *rpcClient) simulateTransaction(ctx context.Context, raw []byte) error {
	var res simulateResult
	encoded := base64.StdEncoding.EncodeToString(raw)
	params := []any{encoded, map[string]any{"encoding": "base64", "sigVerify": true, "commitment": "confirmed"}}
	if err := c.call(ctx, "simulateTransaction", params, &res); err != nil {
		return err
	}
	if res.Value.Err != nil {
		return &protocol.SimulationRejectedError{Logs: res.Value.Logs}
	}
	return nil
}

func (c *rpcClient) sendTransaction(ctx context.Context, raw []byte) (protocol.Signature, error) {
	var sig string
	encoded := base64.StdEncoding.EncodeToString(raw)
	params := []any{encoded, map[string]any{"encoding": "base64", "skipPreflight": true}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return protocol.Signature{}, err
	}
	out, err := protocol.ParseSignature(sig)
	if err != nil {
		return protocol.Signature{}, &protocol.DecodeError{Account: "signature", Reason: "invalid base58 signature"}
	}
	return out, nil
}

type signatureStatus struct {
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

func (c *rpcClient) getSignatureStatus(ctx context.Context, sig protocol.Signature) (*signatureStatus, error) {
	var res signatureStatusesResult
	params := []any{[]string{sig.String()}}
	if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}
