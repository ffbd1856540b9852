// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package prospectiveparachains

import (
	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	inclusionemulator "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util/inclusion-emulator"
)

// defaultMaxUnconnectedCandidates bounds how many stored candidates may sit
// outside a fragment chain before new candidates stop being accepted as potential.
const defaultMaxUnconnectedCandidates = 5

// MemberState is the hypothetical membership of a candidate in a fragment chain
type MemberState byte

const (
	// MemberStateNone means the candidate cannot be part of the chain now or later
	MemberStateNone MemberState = iota
	// MemberStateUnconnected means the candidate is stored but does not connect to the chain
	MemberStateUnconnected
	// MemberStatePresent means the candidate is already part of the chain
	MemberStatePresent
	// MemberStatePotential means the candidate could be added to the chain
	MemberStatePotential
)

func (m MemberState) String() string {
	switch m {
	case MemberStateNone:
		return "none"
	case MemberStateUnconnected:
		return "unconnected"
	case MemberStatePresent:
		return "present"
	case MemberStatePotential:
		return "potential"
	default:
		return "unknown"
	}
}

// Ancestors A collection of ancestor candidates of a parachain.
type Ancestors map[parachaintypes.CandidateHash]struct{}

// fragmentNode is a node of the fragment chain, it holds the fragment built
// out of the candidate and the modifications of every node up to and including it
type fragmentNode struct {
	fragment                *inclusionemulator.Fragment
	candidateHash           parachaintypes.CandidateHash
	cumulativeModifications *inclusionemulator.ConstraintModifications
}

func (f *fragmentNode) relayParent() common.Hash {
	return f.fragment.RelayParent().Hash
}

// FragmentChain is a linear chain of candidates built upon the required parent
// of the scope's base constraints. A candidate whose output head matches its own
// parent head, or a sequence of candidates looping back to a previous head,
// appears at several depths of the chain.
type FragmentChain struct {
	scope *Scope

	chain      []*fragmentNode
	candidates map[parachaintypes.CandidateHash]struct{}

	maxUnconnected uint
}

// PopulateFragmentChain creates a new fragment chain with the given scope and
// populates it with the candidates found in the storage.
func PopulateFragmentChain(scope *Scope, storage *CandidateStorage) *FragmentChain {
	fragmentChain := &FragmentChain{
		scope:          scope,
		candidates:     make(map[parachaintypes.CandidateHash]struct{}),
		maxUnconnected: defaultMaxUnconnectedCandidates,
	}

	fragmentChain.populateChain(storage)
	return fragmentChain
}

// Scope returns the scope of the fragment chain
func (f *FragmentChain) Scope() *Scope {
	return f.scope
}

// Len returns the number of nodes in the chain, repeated candidates included
func (f *FragmentChain) Len() int {
	return len(f.chain)
}

// Contains reports whether the candidate is present at any depth of the chain
func (f *FragmentChain) Contains(candidateHash parachaintypes.CandidateHash) bool {
	_, ok := f.candidates[candidateHash]
	return ok
}

// Candidates returns the set of candidates present in the chain
func (f *FragmentChain) Candidates() map[parachaintypes.CandidateHash]struct{} {
	candidates := make(map[parachaintypes.CandidateHash]struct{}, len(f.candidates))
	for hash := range f.candidates {
		candidates[hash] = struct{}{}
	}
	return candidates
}

// ChainHashes returns the candidate hashes of the chain, in order.
func (f *FragmentChain) ChainHashes() []parachaintypes.CandidateHash {
	hashes := make([]parachaintypes.CandidateHash, len(f.chain))
	for i, node := range f.chain {
		hashes[i] = node.candidateHash
	}
	return hashes
}

// AddAndPopulate repopulates the chain if the given candidate builds upon the
// head of the chain. The candidate must already be present in the storage.
func (f *FragmentChain) AddAndPopulate(candidateHash parachaintypes.CandidateHash, storage *CandidateStorage) {
	entry := storage.get(candidateHash)
	if entry == nil {
		return
	}

	requiredParentHash, err := f.requiredParent().Hash()
	if err != nil {
		logger.Errorf("hashing required parent head data: %s", err)
		return
	}

	if entry.parentHeadDataHash == requiredParentHash {
		f.populateChain(storage)
	}
}

// HypotheticalDepths returns the hypothetical membership of a candidate in this
// fragment chain, without modifying it.
func (f *FragmentChain) HypotheticalDepths(
	candidateHash parachaintypes.CandidateHash,
	candidate parachaintypes.HypotheticalCandidate,
	storage *CandidateStorage,
) MemberState {
	if f.Contains(candidateHash) {
		return MemberStatePresent
	}

	relayParent := candidate.RelayParent()
	if !f.CheckPotential(storage, relayParent, candidateHash) {
		return MemberStateNone
	}

	candidateRelayParent := f.scope.Ancestor(relayParent)
	if candidateRelayParent == nil {
		return MemberStateNone
	}

	childConstraints, err := f.childConstraints()
	if err != nil {
		logger.Debugf("applying constraint modifications of the chain: %s", err)
		return MemberStateNone
	}

	parentHeadHash, err := candidate.ParentHeadDataHash()
	if err != nil {
		logger.Errorf("hashing parent head data of candidate %s: %s", candidateHash, err)
		return MemberStateNone
	}

	requiredParentHash, err := childConstraints.RequiredParent.Hash()
	if err != nil {
		logger.Errorf("hashing required parent head data: %s", err)
		return MemberStateNone
	}

	if parentHeadHash != requiredParentHash {
		if storage.Contains(candidateHash) {
			return MemberStateUnconnected
		}
		return MemberStatePotential
	}

	if complete, ok := candidate.(parachaintypes.HypotheticalCandidateComplete); ok {
		prospectiveCandidate := &inclusionemulator.ProspectiveCandidate{
			Commitments:             complete.Receipt.Commitments,
			PersistedValidationData: complete.PersistedValidationData,
			PoVHash:                 complete.Receipt.Descriptor.PovHash,
			ValidationCodeHash:      complete.Receipt.Descriptor.ValidationCodeHash,
		}

		_, err := inclusionemulator.NewFragment(candidateRelayParent, childConstraints, prospectiveCandidate)
		if err != nil {
			logger.Debugf("candidate %s cannot extend the chain: %s", candidateHash, err)
			return MemberStateNone
		}
	}

	return MemberStatePotential
}

// CheckPotential reports whether a candidate with the given relay parent could
// be added to the chain at all. It bounds the depth of the chain and the number
// of stored candidates not connected to it, the queried one included when it
// is already stored.
func (f *FragmentChain) CheckPotential(
	storage *CandidateStorage,
	relayParent common.Hash,
	candidateHash parachaintypes.CandidateHash,
) bool {
	var unconnected uint
	for _, hash := range storage.CandidateHashes() {
		if f.Contains(hash) {
			continue
		}
		unconnected++
	}

	if unconnected >= f.maxUnconnected {
		logger.Tracef("candidate %s rejected, %d unconnected candidates stored", candidateHash, unconnected)
		return false
	}

	if uint(len(f.chain))+1 > f.scope.maxDepth {
		return false
	}

	candidateRelayParent := f.scope.Ancestor(relayParent)
	if candidateRelayParent == nil {
		return false
	}

	earliest := f.scope.EarliestRelayParent().Number
	if rp := f.earliestRelayParent(); rp != nil && rp.Number > earliest {
		earliest = rp.Number
	}

	return candidateRelayParent.Number >= earliest
}

// FindBackableChain selects `count` candidates after the given `ancestors` which
// can be backed on chain next. The intention of the `ancestors` is to allow queries
// on the basis of one or more candidates which were previously pending availability
// becoming available or candidates timing out.
//
// Candidates pending availability are never returned. The selection stops at the
// first candidate not passing the predicate.
func (f *FragmentChain) FindBackableChain(
	ancestors Ancestors,
	count uint32,
	pred func(parachaintypes.CandidateHash) bool,
) []parachaintypes.CandidateHash {
	if count == 0 {
		return nil
	}

	base, ok := f.findAncestorPath(ancestors)
	if !ok {
		return nil
	}

	end := min(base+int(count), len(f.chain))
	result := make([]parachaintypes.CandidateHash, 0, end-base)

	for _, node := range f.chain[base:end] {
		if f.scope.GetPendingAvailability(node.candidateHash) != nil {
			break
		}

		if !pred(node.candidateHash) {
			break
		}

		result = append(result, node.candidateHash)
	}

	return result
}

// findAncestorPath orders the ancestors into a path from the root of the chain,
// stopping at the first node not present in the ancestors set. It returns the
// index where the walk stopped. The remaining ancestors are holes, unless one of
// them appears more than once in the rest of the chain: then there is no single
// path and no index is returned.
func (f *FragmentChain) findAncestorPath(ancestors Ancestors) (int, bool) {
	if len(f.chain) == 0 {
		return 0, true
	}

	remaining := make(map[parachaintypes.CandidateHash]struct{}, len(ancestors))
	for hash := range ancestors {
		remaining[hash] = struct{}{}
	}

	stop := len(f.chain)
	for i, node := range f.chain {
		if _, ok := remaining[node.candidateHash]; !ok {
			stop = i
			break
		}
		delete(remaining, node.candidateHash)
	}

	if len(remaining) == 0 {
		return stop, true
	}

	occurrences := make(map[parachaintypes.CandidateHash]int)
	for _, node := range f.chain[stop:] {
		if _, ok := remaining[node.candidateHash]; ok {
			occurrences[node.candidateHash]++
		}
	}

	for hash, count := range occurrences {
		if count > 1 {
			logger.Debugf("ancestor %s appears %d times in the chain, path is ambiguous", hash, count)
			return 0, false
		}
	}

	return stop, true
}

// earliestRelayParent returns the relay parent of the last candidate in the
// chain, which may be out of scope for a candidate pending availability.
func (f *FragmentChain) earliestRelayParent() *inclusionemulator.RelayChainBlockInfo {
	if len(f.chain) == 0 {
		return nil
	}

	lastNode := f.chain[len(f.chain)-1]
	if ancestor := f.scope.Ancestor(lastNode.relayParent()); ancestor != nil {
		return ancestor
	}

	if pending := f.scope.GetPendingAvailability(lastNode.candidateHash); pending != nil {
		relayParent := pending.RelayParent
		return &relayParent
	}

	return nil
}

func (f *FragmentChain) requiredParent() parachaintypes.HeadData {
	if len(f.chain) == 0 {
		return f.scope.baseConstraints.RequiredParent
	}
	return f.chain[len(f.chain)-1].fragment.Candidate().Commitments.HeadData
}

// childConstraints are the constraints a candidate extending the chain must match
func (f *FragmentChain) childConstraints() (*parachaintypes.Constraints, error) {
	modifications := inclusionemulator.NewConstraintModificationsIdentity()
	if len(f.chain) > 0 {
		modifications = f.chain[len(f.chain)-1].cumulativeModifications
	}
	return inclusionemulator.ApplyModifications(f.scope.baseConstraints, modifications)
}

// populateChain extends the chain with the candidates from the storage building
// upon its current head, until the depth limit is reached or no valid child exists.
func (f *FragmentChain) populateChain(storage *CandidateStorage) {
	cumulativeModifications := inclusionemulator.NewConstraintModificationsIdentity()
	if len(f.chain) > 0 {
		cumulativeModifications = f.chain[len(f.chain)-1].cumulativeModifications.Clone()
	}

	earliestRelayParent := f.earliestRelayParent()
	if earliestRelayParent == nil {
		scopeEarliest := f.scope.EarliestRelayParent()
		earliestRelayParent = &scopeEarliest
	}

	for uint(len(f.chain)) <= f.scope.maxDepth {
		childConstraints, err := inclusionemulator.ApplyModifications(
			f.scope.baseConstraints, cumulativeModifications)
		if err != nil {
			logger.Debugf("failed to apply modifications: %s", err)
			break
		}

		requiredParentHash, err := childConstraints.RequiredParent.Hash()
		if err != nil {
			logger.Errorf("hashing required parent head data: %s", err)
			break
		}

		child := storage.getParaChild(requiredParentHash)
		if child == nil {
			break
		}

		pending := f.scope.GetPendingAvailability(child.candidateHash)

		var relayParent *inclusionemulator.RelayChainBlockInfo
		if pending != nil {
			pendingRelayParent := pending.RelayParent
			relayParent = &pendingRelayParent
		} else {
			relayParent = f.scope.Ancestor(child.relayParent)
		}

		if relayParent == nil {
			break
		}

		// candidates pending availability may have a relay parent out of scope,
		// their only restriction is to not move backwards.
		var minRelayParentNumber parachaintypes.BlockNumber
		switch {
		case pending != nil && len(f.chain) == 0:
			minRelayParentNumber = pending.RelayParent.Number
		case pending != nil:
			minRelayParentNumber = earliestRelayParent.Number
		default:
			minRelayParentNumber = max(earliestRelayParent.Number, f.scope.EarliestRelayParent().Number)
		}

		if relayParent.Number < minRelayParentNumber {
			break
		}

		operatingConstraints := childConstraints.Clone()
		if pending != nil {
			operatingConstraints.MinRelayParentNumber = pending.RelayParent.Number
		}

		fragment, err := inclusionemulator.NewFragment(relayParent, operatingConstraints, child.candidate)
		if err != nil {
			logger.Debugf("candidate %s cannot extend the chain: %s", child.candidateHash, err)
			break
		}

		cumulativeModifications.Stack(fragment.ConstraintModifications())
		earliestRelayParent = relayParent

		f.chain = append(f.chain, &fragmentNode{
			fragment:                fragment,
			candidateHash:           child.candidateHash,
			cumulativeModifications: cumulativeModifications.Clone(),
		})
		f.candidates[child.candidateHash] = struct{}{}
	}
}
