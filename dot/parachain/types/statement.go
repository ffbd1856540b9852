// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/ChainSafe/gossamer/lib/keystore"
	"github.com/ChainSafe/gossamer/pkg/scale"
)

var backingStatementMagic = [4]byte{'B', 'K', 'N', 'G'}

// ErrMissingKeypair is returned when the keystore has no keypair for the
// validator key asked to sign.
var ErrMissingKeypair = errors.New("keypair not found in keystore")

// Statement is a statement a validator makes about a candidate. It is either
// Seconded, carrying the full candidate, or Valid, carrying only its hash.
type Statement interface {
	isStatement()
	// CandidateHash returns the hash of the candidate the statement is about.
	CandidateHash() (CandidateHash, error)
	compactIndex() byte
}

// Seconded represents a statement that a validator seconds a candidate.
type Seconded CommittedCandidateReceipt

func (Seconded) isStatement()        {}
func (Seconded) compactIndex() byte { return 1 }

func (s Seconded) CandidateHash() (CandidateHash, error) {
	return CommittedCandidateReceipt(s).Hash()
}

// Valid represents a statement that a validator has deemed a candidate valid.
type Valid CandidateHash

func (Valid) isStatement()        {}
func (Valid) compactIndex() byte { return 2 }

func (v Valid) CandidateHash() (CandidateHash, error) {
	return CandidateHash(v), nil
}

// CompactPayload returns the bytes that are signed for the statement: the
// backing magic, the statement kind and the candidate hash followed by the
// encoded signing context.
func CompactPayload(statement Statement, signingContext SigningContext) ([]byte, error) {
	candidateHash, err := statement.CandidateHash()
	if err != nil {
		return nil, fmt.Errorf("getting candidate hash: %w", err)
	}

	encodedContext, err := scale.Marshal(signingContext)
	if err != nil {
		return nil, fmt.Errorf("encoding signing context: %w", err)
	}

	payload := make([]byte, 0, len(backingStatementMagic)+1+len(candidateHash.Value)+len(encodedContext))
	payload = append(payload, backingStatementMagic[:]...)
	payload = append(payload, statement.compactIndex())
	payload = append(payload, candidateHash.Value[:]...)
	payload = append(payload, encodedContext...)
	return payload, nil
}

// SignStatement signs the statement with the keypair of the given validator key.
func SignStatement(
	ks keystore.Keystore,
	statement Statement,
	signingContext SigningContext,
	key ValidatorID,
) (ValidatorSignature, error) {
	data, err := CompactPayload(statement, signingContext)
	if err != nil {
		return ValidatorSignature{}, fmt.Errorf("encoding data to sign: %w", err)
	}

	publicKey, err := sr25519.NewPublicKey(key[:])
	if err != nil {
		return ValidatorSignature{}, fmt.Errorf("getting public key: %w", err)
	}

	keypair := ks.GetKeypair(publicKey)
	if keypair == nil {
		return ValidatorSignature{}, fmt.Errorf("%w: %x", ErrMissingKeypair, key)
	}

	signatureBytes, err := keypair.Sign(data)
	if err != nil {
		return ValidatorSignature{}, fmt.Errorf("signing data: %w", err)
	}

	var signature ValidatorSignature
	copy(signature[:], signatureBytes)
	return signature, nil
}

// VerifyStatement verifies a validator signature on the statement.
func VerifyStatement(
	statement Statement,
	signingContext SigningContext,
	validator ValidatorID,
	signature ValidatorSignature,
) (bool, error) {
	data, err := CompactPayload(statement, signingContext)
	if err != nil {
		return false, fmt.Errorf("encoding signed data: %w", err)
	}

	publicKey, err := sr25519.NewPublicKey(validator[:])
	if err != nil {
		return false, fmt.Errorf("getting public key: %w", err)
	}

	return publicKey.Verify(data, signature[:])
}

// SignedFullStatement is a statement along with its signature and the index of
// the sender. It is "full" as the Seconded variant includes the candidate receipt.
type SignedFullStatement struct {
	Payload        Statement
	ValidatorIndex ValidatorIndex
	Signature      ValidatorSignature
}

// Verify checks the signature of the statement against the validator key.
func (s SignedFullStatement) Verify(validator ValidatorID, signingContext SigningContext) (bool, error) {
	return VerifyStatement(s.Payload, signingContext, validator, s.Signature)
}

// SignedFullStatementWithPVD is a signed full statement along with the
// persisted validation data of the candidate.
type SignedFullStatementWithPVD struct {
	SignedFullStatement SignedFullStatement

	// PersistedValidationData must be set only for a Seconded statement,
	// otherwise it should be nil.
	PersistedValidationData *PersistedValidationData
}

// ValidityAttestation is an attestation of validity of a candidate, either
// implicit through seconding or explicit through a Valid statement.
type ValidityAttestation interface {
	isValidityAttestation()
	ValidatorSignature() ValidatorSignature
}

// Implicit is the attestation carried by a Seconded statement.
type Implicit ValidatorSignature

func (Implicit) isValidityAttestation() {}

func (i Implicit) ValidatorSignature() ValidatorSignature { return ValidatorSignature(i) }

// Explicit is the attestation carried by a Valid statement.
type Explicit ValidatorSignature

func (Explicit) isValidityAttestation() {}

func (e Explicit) ValidatorSignature() ValidatorSignature { return ValidatorSignature(e) }

// BackedCandidate is a candidate which has been backed by a quorum of its group.
type BackedCandidate struct {
	// The candidate referred to.
	Candidate CommittedCandidateReceipt
	// The validity votes themselves, expressed as signatures, in the order of
	// the group members that issued them.
	ValidityVotes []ValidityAttestation
	// ValidatorIndices marks which members of the backing group voted.
	ValidatorIndices []bool
	// InjectedCoreIndex is set when the core index is injected into the
	// backed candidate.
	InjectedCoreIndex *CoreIndex
}
