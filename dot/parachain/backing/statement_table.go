// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"fmt"
	"maps"
	"slices"

	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// tableContext holds what the statement table needs to know about the
// validators of a relay parent.
type tableContext struct {
	validator          *localValidator
	groups             map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex
	validators         []parachaintypes.ValidatorID
	disabledValidators []parachaintypes.ValidatorIndex
}

func (tc *tableContext) isMemberOf(validator parachaintypes.ValidatorIndex, core parachaintypes.CoreIndex) bool {
	return slices.Contains(tc.groups[core], validator)
}

// groupSize returns the size of the group assigned to the core, false if the
// core has no group.
func (tc *tableContext) groupSize(core parachaintypes.CoreIndex) (int, bool) {
	group, ok := tc.groups[core]
	return len(group), ok
}

func (tc *tableContext) validatorIsDisabled(validator parachaintypes.ValidatorIndex) bool {
	return slices.Contains(tc.disabledValidators, validator)
}

// localValidatorIsDisabled reports whether the local validator is disabled.
// ok is false if the node is not a validator at this relay parent.
func (tc *tableContext) localValidatorIsDisabled() (disabled bool, ok bool) {
	if tc.validator == nil {
		return false, false
	}
	return tc.validator.disabled, true
}

type validityVoteKind byte

const (
	// issuedVote is the implicit vote of a validator that seconded the candidate.
	issuedVote validityVoteKind = iota
	// validVote is the explicit vote of a Valid statement.
	validVote
)

type validityVote struct {
	kind      validityVoteKind
	signature parachaintypes.ValidatorSignature
}

func (v validityVote) attestation() parachaintypes.ValidityAttestation {
	if v.kind == issuedVote {
		return parachaintypes.Implicit(v.signature)
	}
	return parachaintypes.Explicit(v.signature)
}

type proposal struct {
	candidateHash parachaintypes.CandidateHash
	signature     parachaintypes.ValidatorSignature
}

type candidateData struct {
	groupID   parachaintypes.CoreIndex
	candidate parachaintypes.CommittedCandidateReceipt
	votes     map[parachaintypes.ValidatorIndex]validityVote
	// voters in the order their votes were imported
	voters []parachaintypes.ValidatorIndex
}

// tableSummary is the outcome of a successful statement import.
type tableSummary struct {
	candidate     parachaintypes.CandidateHash
	groupID       parachaintypes.CoreIndex
	validityVotes int
}

type validatorVote struct {
	validator   parachaintypes.ValidatorIndex
	attestation parachaintypes.ValidityAttestation
}

// attestedCandidate is a candidate with enough validity votes from its group.
type attestedCandidate struct {
	groupID       parachaintypes.CoreIndex
	candidate     parachaintypes.CommittedCandidateReceipt
	validityVotes []validatorVote
}

// statementTable stores the candidates seconded under one relay parent and
// the validity votes cast for them.
type statementTable struct {
	allowMultipleSeconded bool
	authorityData         map[parachaintypes.ValidatorIndex][]proposal
	detectedMisbehaviour  map[parachaintypes.ValidatorIndex][]parachaintypes.Misbehaviour
	candidateVotes        map[parachaintypes.CandidateHash]*candidateData
}

func newStatementTable(allowMultipleSeconded bool) *statementTable {
	return &statementTable{
		allowMultipleSeconded: allowMultipleSeconded,
		authorityData:         make(map[parachaintypes.ValidatorIndex][]proposal),
		detectedMisbehaviour:  make(map[parachaintypes.ValidatorIndex][]parachaintypes.Misbehaviour),
		candidateVotes:        make(map[parachaintypes.CandidateHash]*candidateData),
	}
}

func (table *statementTable) getCandidate(candidateHash parachaintypes.CandidateHash,
) (parachaintypes.CommittedCandidateReceipt, bool) {
	data, ok := table.candidateVotes[candidateHash]
	if !ok {
		return parachaintypes.CommittedCandidateReceipt{}, false
	}
	return data.candidate, true
}

// importStatement imports a signed statement under the given core. It returns
// nil when the statement brought nothing new or was misbehaviour, which is
// recorded against the sender.
func (table *statementTable) importStatement(
	tc *tableContext,
	core parachaintypes.CoreIndex,
	statement parachaintypes.SignedStatement,
) (*tableSummary, error) {
	var (
		summary      *tableSummary
		misbehaviour parachaintypes.Misbehaviour
	)

	switch payload := statement.Statement.(type) {
	case parachaintypes.Seconded:
		candidateHash, err := payload.CandidateHash()
		if err != nil {
			return nil, fmt.Errorf("getting candidate hash: %w", err)
		}

		summary, misbehaviour = table.importCandidate(
			tc, statement.Sender, parachaintypes.CommittedCandidateReceipt(payload),
			candidateHash, statement.Signature, core)
	case parachaintypes.Valid:
		summary, misbehaviour = table.validityVote(tc, statement.Sender, parachaintypes.CandidateHash(payload),
			validityVote{kind: validVote, signature: statement.Signature})
	default:
		return nil, fmt.Errorf("unexpected statement type %T", statement.Statement)
	}

	if misbehaviour != nil {
		table.detectedMisbehaviour[statement.Sender] = append(table.detectedMisbehaviour[statement.Sender], misbehaviour)
		return nil, nil
	}
	return summary, nil
}

func (table *statementTable) importCandidate(
	tc *tableContext,
	authority parachaintypes.ValidatorIndex,
	candidate parachaintypes.CommittedCandidateReceipt,
	candidateHash parachaintypes.CandidateHash,
	signature parachaintypes.ValidatorSignature,
	core parachaintypes.CoreIndex,
) (*tableSummary, parachaintypes.Misbehaviour) {
	if !tc.isMemberOf(authority, core) {
		return nil, parachaintypes.UnauthorizedStatement{
			Statement: parachaintypes.SignedStatement{
				Statement: parachaintypes.Seconded(candidate),
				Signature: signature,
				Sender:    authority,
			},
		}
	}

	proposals, known := table.authorityData[authority]
	newProposal := true
	switch {
	case !known:
	case !table.allowMultipleSeconded && len(proposals) == 1:
		previous := proposals[0]
		if previous.candidateHash != candidateHash {
			// a proposal is only recorded once its candidate is in the table
			previousData := table.candidateVotes[previous.candidateHash]
			return nil, parachaintypes.MultipleCandidates{
				First: parachaintypes.SignedCandidate{
					Candidate: previousData.candidate,
					Signature: previous.signature,
				},
				Second: parachaintypes.SignedCandidate{
					Candidate: candidate,
					Signature: signature,
				},
			}
		}
		newProposal = false
	case table.allowMultipleSeconded && slices.ContainsFunc(proposals, func(p proposal) bool {
		return p.candidateHash == candidateHash
	}):
		newProposal = false
	}

	if newProposal {
		table.authorityData[authority] = append(proposals, proposal{candidateHash: candidateHash, signature: signature})
		if _, ok := table.candidateVotes[candidateHash]; !ok {
			table.candidateVotes[candidateHash] = &candidateData{
				groupID:   core,
				candidate: candidate,
				votes:     make(map[parachaintypes.ValidatorIndex]validityVote),
			}
		}
	}

	return table.validityVote(tc, authority, candidateHash, validityVote{kind: issuedVote, signature: signature})
}

func (table *statementTable) validityVote(
	tc *tableContext,
	from parachaintypes.ValidatorIndex,
	candidateHash parachaintypes.CandidateHash,
	vote validityVote,
) (*tableSummary, parachaintypes.Misbehaviour) {
	data, ok := table.candidateVotes[candidateHash]
	if !ok {
		return nil, nil
	}

	if !tc.isMemberOf(from, data.groupID) {
		// issued votes never get here, importCandidate checked the membership
		return nil, parachaintypes.UnauthorizedStatement{
			Statement: parachaintypes.SignedStatement{
				Statement: parachaintypes.Valid(candidateHash),
				Signature: vote.signature,
				Sender:    from,
			},
		}
	}

	existing, voted := data.votes[from]
	if voted {
		if existing == vote {
			return nil, nil
		}

		switch {
		case existing.kind == issuedVote && vote.kind == issuedVote:
			return nil, parachaintypes.DoubleSign{
				Kind:      parachaintypes.DoubleSignSeconded,
				Candidate: candidateHash,
				First:     existing.signature,
				Second:    vote.signature,
			}
		case existing.kind == validVote && vote.kind == validVote:
			return nil, parachaintypes.DoubleSign{
				Kind:      parachaintypes.DoubleSignValidity,
				Candidate: candidateHash,
				First:     existing.signature,
				Second:    vote.signature,
			}
		case existing.kind == issuedVote:
			return nil, parachaintypes.IssuedAndValidity{
				Candidate:         candidateHash,
				SecondedSignature: existing.signature,
				ValidSignature:    vote.signature,
			}
		default:
			return nil, parachaintypes.IssuedAndValidity{
				Candidate:         candidateHash,
				SecondedSignature: vote.signature,
				ValidSignature:    existing.signature,
			}
		}
	}

	data.votes[from] = vote
	data.voters = append(data.voters, from)

	return &tableSummary{
		candidate:     candidateHash,
		groupID:       data.groupID,
		validityVotes: len(data.votes),
	}, nil
}

// attestedCandidate returns the candidate along with its votes if it has at
// least min(group size, minimumBackingVotes) of them.
func (table *statementTable) attestedCandidate(
	candidateHash parachaintypes.CandidateHash,
	tc *tableContext,
	minimumBackingVotes uint32,
) (*attestedCandidate, bool) {
	data, ok := table.candidateVotes[candidateHash]
	if !ok {
		return nil, false
	}

	groupSize, ok := tc.groupSize(data.groupID)
	if !ok {
		return nil, false
	}

	threshold := min(groupSize, int(minimumBackingVotes))
	if len(data.votes) < threshold {
		return nil, false
	}

	votes := make([]validatorVote, 0, len(data.voters))
	for _, validator := range data.voters {
		votes = append(votes, validatorVote{
			validator:   validator,
			attestation: data.votes[validator].attestation(),
		})
	}

	return &attestedCandidate{
		groupID:       data.groupID,
		candidate:     data.candidate,
		validityVotes: votes,
	}, true
}

type misbehaviourReport struct {
	validator    parachaintypes.ValidatorIndex
	misbehaviour parachaintypes.Misbehaviour
}

// drainMisbehaviours returns the misbehaviour detected since the last call,
// ordered by validator index.
func (table *statementTable) drainMisbehaviours() []misbehaviourReport {
	var reports []misbehaviourReport
	for _, validator := range slices.Sorted(maps.Keys(table.detectedMisbehaviour)) {
		for _, misbehaviour := range table.detectedMisbehaviour[validator] {
			reports = append(reports, misbehaviourReport{validator: validator, misbehaviour: misbehaviour})
		}
	}
	clear(table.detectedMisbehaviour)
	return reports
}
