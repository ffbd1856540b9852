// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// CanSecondMessage asks whether a collation advertised by a collator could be
// seconded, given what is known about it before fetching it.
// The response is false if the relay parent is unknown, prospective parachains
// are disabled for it or no active leaf considers the candidate a potential member.
type CanSecondMessage struct {
	CandidateParaID      parachaintypes.ParaID
	CandidateRelayParent common.Hash
	CandidateHash        parachaintypes.CandidateHash
	ParentHeadDataHash   common.Hash
	ResponseCh           chan bool
}

// SecondMessage asks the subsystem to validate a fetched collation and, if it
// is valid, second it.
type SecondMessage struct {
	RelayParent             common.Hash
	CandidateReceipt        parachaintypes.CandidateReceipt
	PersistedValidationData parachaintypes.PersistedValidationData
	PoV                     parachaintypes.PoV
}

// StatementMessage is a statement about a candidate received from statement
// distribution, to be imported into the table of its relay parent.
type StatementMessage struct {
	RelayParent         common.Hash
	SignedFullStatement parachaintypes.SignedFullStatementWithPVD
}

// GetBackableCandidatesMessage asks for the backed candidates of the given
// paras. For every para, candidates are given in chain order and the answer
// stops at the first requested candidate that is not backed.
type GetBackableCandidatesMessage struct {
	Candidates map[parachaintypes.ParaID][]parachaintypes.CandidateHashAndRelayParent
	ResCh      chan map[parachaintypes.ParaID][]*parachaintypes.BackedCandidate
}
