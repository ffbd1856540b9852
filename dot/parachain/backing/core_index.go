// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"slices"

	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// coreIndexFromStatement derives the core a statement is about from the group
// of its sender. Seconded statements must also be for a para the claim queue
// schedules on that core. False is returned on any mismatch.
func coreIndexFromStatement(
	validatorToGroup []*parachaintypes.GroupIndex,
	groupRotationInfo parachaintypes.GroupRotationInfo,
	numCores uint32,
	claimQueue parachaintypes.ClaimQueue,
	statement parachaintypes.SignedFullStatementWithPVD,
) (parachaintypes.CoreIndex, bool) {
	sender := statement.SignedFullStatement.ValidatorIndex

	if int(sender) >= len(validatorToGroup) || validatorToGroup[sender] == nil {
		logger.Debugf("invalid validator index %d, numCores=%d", sender, numCores)
		return 0, false
	}

	coreIndex := groupRotationInfo.CoreForGroup(*validatorToGroup[sender], uint(numCores))
	if uint32(coreIndex) >= numCores {
		logger.Debugf("invalid core index %d, numCores=%d", coreIndex, numCores)
		return 0, false
	}

	seconded, ok := statement.SignedFullStatement.Payload.(parachaintypes.Seconded)
	if !ok {
		return coreIndex, true
	}

	paraID := seconded.Descriptor.ParaID
	if !claimQueue.ContainsPara(coreIndex, paraID) {
		logger.Debugf("core %d is not assigned to para %d, assigned paras: %v",
			coreIndex, paraID, claimQueue[coreIndex])
		return 0, false
	}

	return coreIndex, true
}

// tableAttestedToBacked turns an attested candidate into a backed candidate.
// The validity votes are reordered to follow the positions of their signers
// in the backing group, matching the bits set in the validator indices.
func tableAttestedToBacked(
	attested *attestedCandidate,
	tc *tableContext,
	injectCoreIndex bool,
) (*parachaintypes.BackedCandidate, bool) {
	group, ok := tc.groups[attested.groupID]
	if !ok {
		return nil, false
	}

	type votePosition struct {
		voteIndex     int
		groupPosition int
	}

	validatorIndices := make([]bool, len(group))
	positions := make([]votePosition, 0, len(attested.validityVotes))
	for voteIndex, vote := range attested.validityVotes {
		groupPosition := slices.Index(group, vote.validator)
		if groupPosition < 0 {
			logger.Warnf("validity vote of validator %d does not correspond to group of core %d",
				vote.validator, attested.groupID)
			return nil, false
		}

		validatorIndices[groupPosition] = true
		positions = append(positions, votePosition{voteIndex: voteIndex, groupPosition: groupPosition})
	}

	slices.SortFunc(positions, func(a, b votePosition) int {
		return a.groupPosition - b.groupPosition
	})

	validityVotes := make([]parachaintypes.ValidityAttestation, 0, len(positions))
	for _, position := range positions {
		validityVotes = append(validityVotes, attested.validityVotes[position.voteIndex].attestation)
	}

	backed := &parachaintypes.BackedCandidate{
		Candidate:        attested.candidate,
		ValidityVotes:    validityVotes,
		ValidatorIndices: validatorIndices,
	}
	if injectCoreIndex {
		coreIndex := attested.groupID
		backed.InjectedCoreIndex = &coreIndex
	}

	return backed, true
}
