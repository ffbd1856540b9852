// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import (
	"bytes"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/pkg/scale"
)

// ParaID is the identifier of a parachain (a lane).
type ParaID uint32

// CoreIndex is the index of an availability core.
type CoreIndex uint32

// GroupIndex is the index of a backing group in the validator groups of a session.
type GroupIndex uint32

// ValidatorIndex is the index of a validator in the validator set of a session.
type ValidatorIndex uint32

// SessionIndex is the index of a session.
type SessionIndex uint32

// BlockNumber is a relay chain block number.
type BlockNumber uint32

// ValidatorID is the sr25519 public key of a parachain validator.
type ValidatorID [32]byte

// CollatorID is the sr25519 public key of a collator.
type CollatorID [32]byte

// CollatorSignature is the signature of a collator on a candidate descriptor.
type CollatorSignature [64]byte

// ValidatorSignature is the signature of a validator on a payload.
type ValidatorSignature [64]byte

// CandidateHash is the unique identifier of a candidate receipt.
type CandidateHash struct {
	Value common.Hash `scale:"1"`
}

func (ch CandidateHash) String() string {
	return ch.Value.String()
}

// ValidationCodeHash is the blake2-256 hash of the validation code.
type ValidationCodeHash common.Hash

func (v ValidationCodeHash) String() string {
	return common.Hash(v).String()
}

// ValidationCode is the wasm blob of a parachain validation function.
type ValidationCode []byte

// Hash returns the hash of the validation code.
func (v ValidationCode) Hash() (ValidationCodeHash, error) {
	hash, err := common.Blake2bHash(v)
	if err != nil {
		return ValidationCodeHash{}, fmt.Errorf("hashing validation code: %w", err)
	}
	return ValidationCodeHash(hash), nil
}

// HeadData is the parachain head data, an opaque state blob.
type HeadData struct {
	Data []byte `scale:"1"`
}

// Hash returns the blake2-256 hash of the raw head data bytes.
func (hd HeadData) Hash() (common.Hash, error) {
	return common.Blake2bHash(hd.Data)
}

// Equal reports whether both head data hold the same bytes.
func (hd HeadData) Equal(other HeadData) bool {
	return bytes.Equal(hd.Data, other.Data)
}

// PoV is the proof of validity of a parachain block.
type PoV struct {
	BlockData []byte `scale:"1"`
}

// Hash returns the hash of the proof of validity.
func (p PoV) Hash() (common.Hash, error) {
	encoded, err := scale.Marshal(p)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding pov: %w", err)
	}
	return common.Blake2bHash(encoded)
}

// UpwardMessage is a message sent from a parachain to the relay chain.
type UpwardMessage []byte

// OutboundHrmpMessage is a horizontal message sent to another parachain.
type OutboundHrmpMessage struct {
	Recipient uint32 `scale:"1"`
	Data      []byte `scale:"2"`
}

// CandidateDescriptor is the unique descriptor of a candidate receipt.
type CandidateDescriptor struct {
	// The ID of the para this is a candidate for.
	ParaID ParaID `scale:"1"`
	// RelayParent is the hash of the relay-chain block this should be executed in
	// the context of.
	RelayParent common.Hash `scale:"2"`
	// Collator is the collator's sr25519 public key.
	Collator CollatorID `scale:"3"`
	// PersistedValidationDataHash is the blake2-256 hash of the persisted validation data.
	PersistedValidationDataHash common.Hash `scale:"4"`
	// PovHash is the hash of the PoV block.
	PovHash common.Hash `scale:"5"`
	// ErasureRoot is the root of a block's erasure encoding Merkle tree.
	ErasureRoot common.Hash `scale:"6"`
	// Signature on blake2-256 of components of this receipt.
	Signature CollatorSignature `scale:"7"`
	// ParaHead is the hash of the para header that is being generated by this candidate.
	ParaHead common.Hash `scale:"8"`
	// ValidationCodeHash is the blake2-256 hash of the validation code bytes.
	ValidationCodeHash ValidationCodeHash `scale:"9"`
}

// CandidateCommitments are the commitments made by a parachain candidate.
type CandidateCommitments struct {
	// Messages destined to be interpreted by the Relay chain itself.
	UpwardMessages []UpwardMessage `scale:"1"`
	// Horizontal messages sent by the parachain.
	HorizontalMessages []OutboundHrmpMessage `scale:"2"`
	// New validation code.
	NewValidationCode *ValidationCode `scale:"3"`
	// The head-data produced as a result of execution.
	HeadData HeadData `scale:"4"`
	// The number of messages processed from the DMQ.
	ProcessedDownwardMessages uint32 `scale:"5"`
	// The mark which specifies the block number up to which all inbound HRMP messages are processed.
	HrmpWatermark uint32 `scale:"6"`
}

// Hash returns the blake2-256 hash of the encoded commitments.
func (cc CandidateCommitments) Hash() (common.Hash, error) {
	encoded, err := scale.Marshal(cc)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding candidate commitments: %w", err)
	}
	return common.Blake2bHash(encoded)
}

// CandidateReceipt is a receipt referencing the commitments by hash.
type CandidateReceipt struct {
	Descriptor      CandidateDescriptor `scale:"1"`
	CommitmentsHash common.Hash         `scale:"2"`
}

// Hash returns the candidate hash of the receipt.
func (cr CandidateReceipt) Hash() (CandidateHash, error) {
	encoded, err := scale.Marshal(cr)
	if err != nil {
		return CandidateHash{}, fmt.Errorf("encoding candidate receipt: %w", err)
	}

	hash, err := common.Blake2bHash(encoded)
	if err != nil {
		return CandidateHash{}, fmt.Errorf("hashing candidate receipt: %w", err)
	}
	return CandidateHash{Value: hash}, nil
}

// CommittedCandidateReceipt is a candidate receipt with the full commitments.
type CommittedCandidateReceipt struct {
	Descriptor  CandidateDescriptor  `scale:"1"`
	Commitments CandidateCommitments `scale:"2"`
}

// ToPlain returns the receipt with the commitments replaced by their hash.
func (ccr CommittedCandidateReceipt) ToPlain() (CandidateReceipt, error) {
	commitmentsHash, err := ccr.Commitments.Hash()
	if err != nil {
		return CandidateReceipt{}, err
	}

	return CandidateReceipt{
		Descriptor:      ccr.Descriptor,
		CommitmentsHash: commitmentsHash,
	}, nil
}

// Hash returns the candidate hash, which is the hash of the plain receipt.
func (ccr CommittedCandidateReceipt) Hash() (CandidateHash, error) {
	receipt, err := ccr.ToPlain()
	if err != nil {
		return CandidateHash{}, err
	}
	return receipt.Hash()
}

// PersistedValidationData is the validation data that persists across the
// lifetime of a candidate and is committed to by its descriptor.
type PersistedValidationData struct {
	// The parent head-data.
	ParentHead HeadData `scale:"1"`
	// The relay-chain block number this is in the context of.
	RelayParentNumber uint32 `scale:"2"`
	// The relay-chain block storage root this is in the context of.
	RelayParentStorageRoot common.Hash `scale:"3"`
	// The maximum legal size of a POV block, in bytes.
	MaxPovSize uint32 `scale:"4"`
}

// Hash returns the blake2-256 hash of the encoded persisted validation data.
func (pvd PersistedValidationData) Hash() (common.Hash, error) {
	encoded, err := scale.Marshal(pvd)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding persisted validation data: %w", err)
	}
	return common.Blake2bHash(encoded)
}

// Equal reports whether both persisted validation data are identical.
func (pvd PersistedValidationData) Equal(other PersistedValidationData) bool {
	return pvd.ParentHead.Equal(other.ParentHead) &&
		pvd.RelayParentNumber == other.RelayParentNumber &&
		pvd.RelayParentStorageRoot == other.RelayParentStorageRoot &&
		pvd.MaxPovSize == other.MaxPovSize
}

// SigningContext is the context in which statements are signed: the current
// session index and the hash of the relay parent.
type SigningContext struct {
	SessionIndex SessionIndex `scale:"1"`
	ParentHash   common.Hash  `scale:"2"`
}

// CandidateHashAndRelayParent pairs a candidate hash with its relay parent.
type CandidateHashAndRelayParent struct {
	CandidateHash        CandidateHash
	CandidateRelayParent common.Hash
}
