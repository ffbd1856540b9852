// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

// SignedStatement is a statement about a candidate signed by a validator, as
// imported into the statement table.
type SignedStatement struct {
	Statement Statement
	Signature ValidatorSignature
	Sender    ValidatorIndex
}

// Misbehaviour is a provable misbehaviour of a validator observed while
// importing statements.
type Misbehaviour interface {
	isMisbehaviour()
}

// UnauthorizedStatement is a statement from a validator that is not a member
// of the group responsible for the candidate.
type UnauthorizedStatement struct {
	Statement SignedStatement
}

// SignedCandidate is a seconded candidate together with the seconding signature.
type SignedCandidate struct {
	Candidate CommittedCandidateReceipt
	Signature ValidatorSignature
}

// MultipleCandidates is raised when a validator seconds more candidates than allowed.
type MultipleCandidates struct {
	First  SignedCandidate
	Second SignedCandidate
}

// DoubleSignKind tells which kind of statement was signed twice.
type DoubleSignKind uint8

const (
	// DoubleSignSeconded is two different signatures on the same Seconded statement.
	DoubleSignSeconded DoubleSignKind = iota
	// DoubleSignValidity is two different signatures on the same Valid statement.
	DoubleSignValidity
)

// DoubleSign is raised when a validator signs the same statement twice with
// different signatures.
type DoubleSign struct {
	Kind      DoubleSignKind
	Candidate CandidateHash
	First     ValidatorSignature
	Second    ValidatorSignature
}

// IssuedAndValidity is raised when a validator both seconded a candidate and
// issued a separate Valid statement for it with a different signature.
type IssuedAndValidity struct {
	Candidate         CandidateHash
	SecondedSignature ValidatorSignature
	ValidSignature    ValidatorSignature
}

func (UnauthorizedStatement) isMisbehaviour() {}
func (MultipleCandidates) isMisbehaviour()    {}
func (DoubleSign) isMisbehaviour()            {}
func (IssuedAndValidity) isMisbehaviour()     {}
