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

// Package eventbus fans a session driver's progress events out to any
// number of subscribers (the consumer-facing event stream).
package eventbus

import (
	"time"

	"github.com/gridloop/miner/protocol"
)

// Kind identifies the shape of Event.Payload.
type Kind int

const (
	KindRoundUpdate Kind = iota
	KindDecisionMade
	KindTxSubmitted
	KindTxConfirmed
	KindPendingSignature
	KindAnalysis
)

func (k Kind) String() string {
	switch k {
	case KindRoundUpdate:
		return "RoundUpdate"
	case KindDecisionMade:
		return "DecisionMade"
	case KindTxSubmitted:
		return "TxSubmitted"
	case KindTxConfirmed:
		return "TxConfirmed"
	case KindPendingSignature:
		return "PendingSignature"
	case KindAnalysis:
		return "Analysis"
	default:
		return "Unknown"
	}
}

// Event is one envelope published on the bus. Every event carries the
// originating wallet and round so subscribers can filter without
// inspecting Payload.
type Event struct {
	Kind    Kind
	Wallet  protocol.PublicKey
	RoundID uint64
	Time    time.Time
	Payload any
}

// RoundUpdatePayload reports the snapshot a driver just observed.
type RoundUpdatePayload struct {
	Snapshot protocol.RoundSnapshot
}

// DecisionMadePayload reports the engine's verdict for this round.
type DecisionMadePayload struct {
	Selection protocol.Selection
}

// TxStage identifies which leg of the submission sequence a
// TxSubmitted/TxConfirmed event describes.
type TxStage int

const (
	StageCheckpoint TxStage = iota
	StageAutomate
	StageDeploy
)

func (s TxStage) String() string {
	switch s {
	case StageCheckpoint:
		return "checkpoint"
	case StageAutomate:
		return "automate"
	case StageDeploy:
		return "deploy"
	default:
		return "unknown"
	}
}

// TxSubmittedPayload reports that a transaction was handed to the
// network.
type TxSubmittedPayload struct {
	Stage     TxStage
	Signature protocol.Signature
}

// TxStatus is the terminal outcome of a submitted transaction.
type TxStatus int

const (
	TxStatusConfirmed TxStatus = iota
	TxStatusFailed
	TxStatusTimedOut
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusConfirmed:
		return "Confirmed"
	case TxStatusFailed:
		return "Failed"
	case TxStatusTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// TxConfirmedPayload reports the final status of a submitted transaction.
type TxConfirmedPayload struct {
	Stage     TxStage
	Signature protocol.Signature
	Status    TxStatus
	Reason    string
}

// PendingSignaturePayload reports that a transaction was built but the
// session has no signing key, so it was never submitted.
type PendingSignaturePayload struct {
	Stage TxStage
}
