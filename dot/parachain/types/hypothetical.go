// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import "github.com/ChainSafe/gossamer/lib/common"

// HypotheticalCandidate is a candidate whose membership in fragment chains is
// being queried. It is either complete, with the full receipt and persisted
// validation data, or incomplete, with only what is known before fetching it.
type HypotheticalCandidate interface {
	isHypotheticalCandidate()
	CandidateHash() CandidateHash
	CandidatePara() ParaID
	RelayParent() common.Hash
	ParentHeadDataHash() (common.Hash, error)
	// OutputHeadDataHash is nil for incomplete candidates.
	OutputHeadDataHash() (*common.Hash, error)
}

// HypotheticalCandidateComplete is a candidate whose receipt and persisted
// validation data are known.
type HypotheticalCandidateComplete struct {
	Hash                    CandidateHash
	Receipt                 CommittedCandidateReceipt
	PersistedValidationData PersistedValidationData
}

func (HypotheticalCandidateComplete) isHypotheticalCandidate() {}

func (h HypotheticalCandidateComplete) CandidateHash() CandidateHash { return h.Hash }

func (h HypotheticalCandidateComplete) CandidatePara() ParaID { return h.Receipt.Descriptor.ParaID }

func (h HypotheticalCandidateComplete) RelayParent() common.Hash {
	return h.Receipt.Descriptor.RelayParent
}

func (h HypotheticalCandidateComplete) ParentHeadDataHash() (common.Hash, error) {
	return h.PersistedValidationData.ParentHead.Hash()
}

func (h HypotheticalCandidateComplete) OutputHeadDataHash() (*common.Hash, error) {
	hash, err := h.Receipt.Commitments.HeadData.Hash()
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

// HypotheticalCandidateIncomplete is a candidate that has been advertised but
// not fetched yet.
type HypotheticalCandidateIncomplete struct {
	Hash                 CandidateHash
	Para                 ParaID
	ParentHeadHash       common.Hash
	CandidateRelayParent common.Hash
}

func (HypotheticalCandidateIncomplete) isHypotheticalCandidate() {}

func (h HypotheticalCandidateIncomplete) CandidateHash() CandidateHash { return h.Hash }

func (h HypotheticalCandidateIncomplete) CandidatePara() ParaID { return h.Para }

func (h HypotheticalCandidateIncomplete) RelayParent() common.Hash { return h.CandidateRelayParent }

func (h HypotheticalCandidateIncomplete) ParentHeadDataHash() (common.Hash, error) {
	return h.ParentHeadHash, nil
}

func (HypotheticalCandidateIncomplete) OutputHeadDataHash() (*common.Hash, error) { return nil, nil }
