// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package prospectiveparachains

import (
	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	inclusionemulator "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util/inclusion-emulator"
	"github.com/tidwall/btree"
)

// PendingAvailability is a candidate on-chain but pending availability, for special
// treatment in the Scope
type PendingAvailability struct {
	CandidateHash parachaintypes.CandidateHash
	RelayParent   inclusionemulator.RelayChainBlockInfo
}

// Scope is the scope of a fragment chain
type Scope struct {
	// the relay parent we're currently building on top of
	relayParent inclusionemulator.RelayChainBlockInfo
	// the other relay parents candidates are allowed to build upon,
	// mapped by the block number
	ancestors *btree.Map[parachaintypes.BlockNumber, inclusionemulator.RelayChainBlockInfo]
	// the other relay parents candidates are allowed to build upon,
	// mapped by hash
	ancestorsByHash map[common.Hash]inclusionemulator.RelayChainBlockInfo
	// candidates pending availability at this block
	pendingAvailability []PendingAvailability
	// the base constraints derived from the latest included candidate
	baseConstraints *parachaintypes.Constraints
	// equal to `max_candidate_depth`
	maxDepth uint
}

// NewScopeWithAncestors defines a new scope, all arguments are straightforward
// except ancestors. Ancestors should be in reverse order, starting with the parent
// of the relayParent, and proceeding backwards in block number decrements of 1.
// Ancestors not following these conditions will be rejected.
//
// This function will only consume ancestors up to the MinRelayParentNumber of the
// baseConstraints.
//
// Only ancestors whose children have the same session as the relay parent's children
// should be provided. It is allowed to provide 0 ancestors.
func NewScopeWithAncestors(
	relayParent inclusionemulator.RelayChainBlockInfo,
	baseConstraints *parachaintypes.Constraints,
	pendingAvailability []PendingAvailability,
	maxDepth uint,
	ancestors []inclusionemulator.RelayChainBlockInfo,
) (*Scope, error) {
	ancestorsMap := btree.NewMap[parachaintypes.BlockNumber, inclusionemulator.RelayChainBlockInfo](100)
	ancestorsByHash := make(map[common.Hash]inclusionemulator.RelayChainBlockInfo)

	prev := relayParent.Number
	for _, ancestor := range ancestors {
		if prev == 0 {
			return nil, errUnexpectedAncestor{Number: ancestor.Number, Prev: prev}
		}

		if ancestor.Number != prev-1 {
			return nil, errUnexpectedAncestor{Number: ancestor.Number, Prev: prev}
		}

		if prev == baseConstraints.MinRelayParentNumber {
			break
		}

		prev = ancestor.Number
		ancestorsByHash[ancestor.Hash] = ancestor
		ancestorsMap.Set(ancestor.Number, ancestor)
	}

	return &Scope{
		relayParent:         relayParent,
		baseConstraints:     baseConstraints,
		pendingAvailability: pendingAvailability,
		maxDepth:            maxDepth,
		ancestors:           ancestorsMap,
		ancestorsByHash:     ancestorsByHash,
	}, nil
}

// EarliestRelayParent gets the earliest relay-parent allowed in the scope of the fragment chain.
func (s *Scope) EarliestRelayParent() inclusionemulator.RelayChainBlockInfo {
	if iter := s.ancestors.Iter(); iter.First() {
		return iter.Value()
	}
	return s.relayParent
}

// Ancestor gets the relay ancestor of the fragment chain by hash. The relay
// parent itself is included.
func (s *Scope) Ancestor(hash common.Hash) *inclusionemulator.RelayChainBlockInfo {
	if hash == s.relayParent.Hash {
		relayParent := s.relayParent
		return &relayParent
	}

	if blockInfo, ok := s.ancestorsByHash[hash]; ok {
		return &blockInfo
	}

	return nil
}

// GetPendingAvailability returns the candidate if it is pending availability in this scope.
func (s *Scope) GetPendingAvailability(candidateHash parachaintypes.CandidateHash) *PendingAvailability {
	for i := range s.pendingAvailability {
		if s.pendingAvailability[i].CandidateHash == candidateHash {
			return &s.pendingAvailability[i]
		}
	}
	return nil
}

// BaseConstraints returns the constraints of the latest included candidate.
func (s *Scope) BaseConstraints() *parachaintypes.Constraints {
	return s.baseConstraints
}

// RelayParent returns the relay parent the scope is built on.
func (s *Scope) RelayParent() inclusionemulator.RelayChainBlockInfo {
	return s.relayParent
}

// MaxDepth returns the maximum candidate depth of the scope.
func (s *Scope) MaxDepth() uint {
	return s.maxDepth
}

// Ancestors returns the ancestors of the scope from the most recent one.
func (s *Scope) Ancestors() []inclusionemulator.RelayChainBlockInfo {
	ancestors := make([]inclusionemulator.RelayChainBlockInfo, 0, s.ancestors.Len())
	s.ancestors.Reverse(func(_ parachaintypes.BlockNumber, info inclusionemulator.RelayChainBlockInfo) bool {
		ancestors = append(ancestors, info)
		return true
	})
	return ancestors
}
