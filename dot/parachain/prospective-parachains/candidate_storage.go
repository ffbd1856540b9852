// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package prospectiveparachains

import (
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	inclusionemulator "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util/inclusion-emulator"
)

// CandidateState is the lifecycle state of a stored candidate. Candidates
// aren't even considered until they've at least been seconded.
type CandidateState byte

const (
	// CandidateStateSeconded means the candidate has been seconded.
	CandidateStateSeconded CandidateState = iota
	// CandidateStateBacked means the candidate has been backed by its group.
	CandidateStateBacked
)

// candidateEntry represents a candidate in the CandidateStorage
type candidateEntry struct {
	candidateHash      parachaintypes.CandidateHash
	parentHeadDataHash common.Hash
	outputHeadDataHash common.Hash
	relayParent        common.Hash
	candidate          *inclusionemulator.ProspectiveCandidate
	state              CandidateState
}

// CandidateStorage stores the candidates of a single para along with their
// relay parents and backing states. A stored candidate never shares its parent
// head or its output head with another stored candidate.
type CandidateStorage struct {
	// index from parent head data hash to the candidate building on it.
	byParentHead map[common.Hash]parachaintypes.CandidateHash
	// index from output head data hash to the candidate producing it.
	byOutputHead    map[common.Hash]parachaintypes.CandidateHash
	byCandidateHash map[parachaintypes.CandidateHash]*candidateEntry
}

func NewCandidateStorage() *CandidateStorage {
	return &CandidateStorage{
		byParentHead:    make(map[common.Hash]parachaintypes.CandidateHash),
		byOutputHead:    make(map[common.Hash]parachaintypes.CandidateHash),
		byCandidateHash: make(map[parachaintypes.CandidateHash]*candidateEntry),
	}
}

// AddCandidate introduces a new candidate. The persisted validation data must
// be the one committed to by the candidate descriptor.
func (c *CandidateStorage) AddCandidate(
	candidate parachaintypes.CommittedCandidateReceipt,
	persistedValidationData parachaintypes.PersistedValidationData,
	state CandidateState,
) (parachaintypes.CandidateHash, error) {
	candidateHash, err := candidate.Hash()
	if err != nil {
		return parachaintypes.CandidateHash{}, fmt.Errorf("hashing candidate: %w", err)
	}

	if _, ok := c.byCandidateHash[candidateHash]; ok {
		return parachaintypes.CandidateHash{}, fmt.Errorf("%w: %s", ErrCandidateAlreadyKnown, candidateHash)
	}

	pvdHash, err := persistedValidationData.Hash()
	if err != nil {
		return parachaintypes.CandidateHash{}, fmt.Errorf("hashing persisted validation data: %w", err)
	}

	if pvdHash != candidate.Descriptor.PersistedValidationDataHash {
		return parachaintypes.CandidateHash{}, ErrPersistedValidationDataMismatch
	}

	parentHeadDataHash, err := persistedValidationData.ParentHead.Hash()
	if err != nil {
		return parachaintypes.CandidateHash{}, fmt.Errorf("hashing parent head data: %w", err)
	}

	outputHeadDataHash, err := candidate.Commitments.HeadData.Hash()
	if err != nil {
		return parachaintypes.CandidateHash{}, fmt.Errorf("hashing output head data: %w", err)
	}

	if _, ok := c.byParentHead[parentHeadDataHash]; ok {
		return parachaintypes.CandidateHash{}, ErrCandidateWithDuplicateParentHeadHash
	}

	if _, ok := c.byOutputHead[outputHeadDataHash]; ok {
		return parachaintypes.CandidateHash{}, ErrCandidateWithDuplicateOutputHeadHash
	}

	entry := &candidateEntry{
		candidateHash:      candidateHash,
		parentHeadDataHash: parentHeadDataHash,
		outputHeadDataHash: outputHeadDataHash,
		relayParent:        candidate.Descriptor.RelayParent,
		state:              state,
		candidate: &inclusionemulator.ProspectiveCandidate{
			Commitments:             candidate.Commitments,
			PersistedValidationData: persistedValidationData,
			PoVHash:                 candidate.Descriptor.PovHash,
			ValidationCodeHash:      candidate.Descriptor.ValidationCodeHash,
		},
	}

	c.byParentHead[parentHeadDataHash] = candidateHash
	c.byOutputHead[outputHeadDataHash] = candidateHash
	c.byCandidateHash[candidateHash] = entry

	return candidateHash, nil
}

// RemoveCandidate removes the candidate and both of its head data indexes.
func (c *CandidateStorage) RemoveCandidate(candidateHash parachaintypes.CandidateHash) {
	entry, ok := c.byCandidateHash[candidateHash]
	if !ok {
		return
	}

	delete(c.byCandidateHash, candidateHash)

	if c.byParentHead[entry.parentHeadDataHash] == candidateHash {
		delete(c.byParentHead, entry.parentHeadDataHash)
	}
	if c.byOutputHead[entry.outputHeadDataHash] == candidateHash {
		delete(c.byOutputHead, entry.outputHeadDataHash)
	}
}

// MarkBacked notes that an existing candidate has been backed.
func (c *CandidateStorage) MarkBacked(candidateHash parachaintypes.CandidateHash) {
	entry, ok := c.byCandidateHash[candidateHash]
	if !ok {
		logger.Tracef("candidate %s not found while marking as backed", candidateHash)
		return
	}

	logger.Tracef("candidate %s marked as backed", candidateHash)
	entry.state = CandidateStateBacked
}

// IsBacked reports whether a candidate is recorded as being backed.
func (c *CandidateStorage) IsBacked(candidateHash parachaintypes.CandidateHash) bool {
	entry, ok := c.byCandidateHash[candidateHash]
	return ok && entry.state == CandidateStateBacked
}

// Contains reports whether a candidate is contained within the storage already.
func (c *CandidateStorage) Contains(candidateHash parachaintypes.CandidateHash) bool {
	_, ok := c.byCandidateHash[candidateHash]
	return ok
}

// Len returns the number of stored candidates.
func (c *CandidateStorage) Len() int {
	return len(c.byCandidateHash)
}

// CandidateHashes returns the hashes of all stored candidates, in no particular order.
func (c *CandidateStorage) CandidateHashes() []parachaintypes.CandidateHash {
	hashes := make([]parachaintypes.CandidateHash, 0, len(c.byCandidateHash))
	for hash := range c.byCandidateHash {
		hashes = append(hashes, hash)
	}
	return hashes
}

// Retain keeps only the candidates which pass the predicate. The predicate is
// called once per candidate, before any candidate is removed.
func (c *CandidateStorage) Retain(pred func(parachaintypes.CandidateHash) bool) {
	var removed []*candidateEntry
	for hash, entry := range c.byCandidateHash {
		if !pred(hash) {
			removed = append(removed, entry)
		}
	}

	for _, entry := range removed {
		delete(c.byCandidateHash, entry.candidateHash)
		delete(c.byParentHead, entry.parentHeadDataHash)
		delete(c.byOutputHead, entry.outputHeadDataHash)
	}
}

// HeadDataByHash gets head data by its hash. Candidates outputting the head
// data are searched first, then candidates building upon it.
func (c *CandidateStorage) HeadDataByHash(hash common.Hash) *parachaintypes.HeadData {
	if candidateHash, ok := c.byOutputHead[hash]; ok {
		if entry, ok := c.byCandidateHash[candidateHash]; ok {
			return &entry.candidate.Commitments.HeadData
		}
	}

	if candidateHash, ok := c.byParentHead[hash]; ok {
		if entry, ok := c.byCandidateHash[candidateHash]; ok {
			return &entry.candidate.PersistedValidationData.ParentHead
		}
	}

	return nil
}

// RelayParentByCandidateHash returns the relay parent of the candidate, if stored.
func (c *CandidateStorage) RelayParentByCandidateHash(candidateHash parachaintypes.CandidateHash) *common.Hash {
	entry, ok := c.byCandidateHash[candidateHash]
	if !ok {
		return nil
	}

	relayParent := entry.relayParent
	return &relayParent
}

func (c *CandidateStorage) get(candidateHash parachaintypes.CandidateHash) *candidateEntry {
	return c.byCandidateHash[candidateHash]
}

// getParaChild returns the candidate building upon the given parent head data hash.
func (c *CandidateStorage) getParaChild(parentHeadHash common.Hash) *candidateEntry {
	candidateHash, ok := c.byParentHead[parentHeadHash]
	if !ok {
		return nil
	}
	return c.byCandidateHash[candidateHash]
}
