// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import (
	"errors"

	"github.com/ChainSafe/gossamer/lib/common"
)

// StatementDistributionMessageShare asks statement distribution to gossip a
// statement signed by the local validator.
type StatementDistributionMessageShare struct {
	RelayParent                common.Hash
	SignedFullStatementWithPVD SignedFullStatementWithPVD
}

// StatementDistributionMessageBacked informs statement distribution that a
// candidate has been backed.
type StatementDistributionMessageBacked CandidateHash

// ProvisionableData is data the provisioner may put into a block.
type ProvisionableData interface {
	isProvisionableData()
}

// ProvisionableDataBackedCandidate is a candidate backed without going through
// prospective parachains.
type ProvisionableDataBackedCandidate CandidateReceipt

// ProvisionableDataMisbehaviorReport is a misbehaviour report of a validator.
type ProvisionableDataMisbehaviorReport struct {
	ValidatorIndex ValidatorIndex
	Misbehaviour   Misbehaviour
}

func (ProvisionableDataBackedCandidate) isProvisionableData()   {}
func (ProvisionableDataMisbehaviorReport) isProvisionableData() {}

// ProvisionerMessageProvisionableData hands provisionable data to the provisioner.
type ProvisionerMessageProvisionableData struct {
	RelayParent       common.Hash
	ProvisionableData ProvisionableData
}

// ErrInvalidErasureRoot is returned by the availability store when the erasure
// root of the chunks does not match the one expected by the candidate.
var ErrInvalidErasureRoot = errors.New("invalid erasure root")

// AvailableData is the data stored for availability of a candidate.
type AvailableData struct {
	PoV            PoV
	ValidationData PersistedValidationData
}

// AvailabilityStoreMessageStoreAvailableData computes and checks the erasure
// root of the available data and stores its chunks.
type AvailabilityStoreMessageStoreAvailableData struct {
	CandidateHash       CandidateHash
	NumValidators       uint32
	AvailableData       AvailableData
	ExpectedErasureRoot common.Hash
	CoreIndex           CoreIndex
	NodeFeatures        NodeFeatures
	Sender              chan error
}

// AvailabilityDistributionMessageFetchPoV fetches the PoV of a candidate from
// a validator of its backing group.
type AvailabilityDistributionMessageFetchPoV struct {
	RelayParent   common.Hash
	FromValidator ValidatorIndex
	ParaID        ParaID
	CandidateHash CandidateHash
	PovHash       common.Hash
	PovCh         chan OverseerFuncRes[PoV]
}

// ReasonForInvalidity is why the validation of a candidate failed.
type ReasonForInvalidity byte

const (
	ExecutionError ReasonForInvalidity = iota
	InvalidOutputs
	Timeout
	ParamsTooLarge
	CodeTooLarge
	PoVDecompressionFailure
	BadReturn
	BadParent
	PoVHashMismatch
	BadSignature
	ParaHeadHashMismatch
	CodeHashMismatch
	CommitmentsHashMismatch
)

// ValidationResult is the outcome of the exhaustive validation of a candidate.
type ValidationResult struct {
	IsValid                 bool
	CandidateCommitments    CandidateCommitments
	PersistedValidationData PersistedValidationData
	ReasonForInvalidity     ReasonForInvalidity
}

// CandidateValidationMessageValidateFromExhaustive validates a candidate with
// all the data it needs provided.
type CandidateValidationMessageValidateFromExhaustive struct {
	PersistedValidationData PersistedValidationData
	ValidationCode          ValidationCode
	CandidateReceipt        CandidateReceipt
	PoV                     PoV
	ExecutorParams          ExecutorParams
	Ch                      chan OverseerFuncRes[ValidationResult]
}

// CollatorProtocolMessageSeconded tells the collator protocol that a collation
// was seconded.
type CollatorProtocolMessageSeconded struct {
	Parent common.Hash
	Stmt   SignedFullStatement
}

// CollatorProtocolMessageInvalid tells the collator protocol that a collation
// turned out to be invalid.
type CollatorProtocolMessageInvalid struct {
	Parent           common.Hash
	CandidateReceipt CandidateReceipt
}
