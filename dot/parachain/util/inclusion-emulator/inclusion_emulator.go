// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package inclusionemulator

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ethereum/go-ethereum/common/math"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// ProspectiveCandidate includes key informations that represents a candidate
// without pinning it to a particular session. For example, commitments are
// represented here, but the erasure-root is not. This means that, prospective
// candidates are not correlated to any session in particular.
type ProspectiveCandidate struct {
	Commitments             parachaintypes.CandidateCommitments
	PersistedValidationData parachaintypes.PersistedValidationData
	PoVHash                 common.Hash
	ValidationCodeHash      parachaintypes.ValidationCodeHash
}

// RelayChainBlockInfo contains minimum information about a relay-chain block.
type RelayChainBlockInfo struct {
	Hash        common.Hash
	StorageRoot common.Hash
	Number      parachaintypes.BlockNumber
}

// OutboundHrmpChannelModification represents modifications to outbound HRMP channels.
type OutboundHrmpChannelModification struct {
	BytesSubmitted    uint32
	MessagesSubmitted uint32
}

// HrmpWatermarkUpdateType defines the type of HrmpWatermarkUpdate.
type HrmpWatermarkUpdateType int

const (
	// Head is a watermark equal to the relay parent number, always valid.
	Head HrmpWatermarkUpdateType = iota
	// Trunk is a watermark lower than the relay parent number. It has to land
	// on a valid watermark.
	Trunk
)

// HrmpWatermarkUpdate represents an update to the HRMP Watermark.
type HrmpWatermarkUpdate struct {
	Type  HrmpWatermarkUpdateType
	Block parachaintypes.BlockNumber
}

// Watermark returns the block number of the HRMP Watermark update.
func (h HrmpWatermarkUpdate) Watermark() parachaintypes.BlockNumber {
	return h.Block
}

// ConstraintModifications represents modifications to constraints as a result of prospective candidates.
type ConstraintModifications struct {
	// The required parent head to build upon.
	RequiredParent *parachaintypes.HeadData
	// The new HRMP watermark.
	HrmpWatermark *HrmpWatermarkUpdate
	// Outbound HRMP channel modifications.
	OutboundHrmp map[parachaintypes.ParaID]OutboundHrmpChannelModification
	// The amount of UMP XCM messages sent. UMP signals and the separator are excluded.
	UmpMessagesSent uint32
	// The amount of UMP XCM bytes sent. UMP signals and the separator are excluded.
	UmpBytesSent uint32
	// The amount of DMP messages processed.
	DmpMessagesProcessed uint32
	// Whether a pending code upgrade has been applied.
	CodeUpgradeApplied bool
}

// NewConstraintModificationsIdentity returns the 'identity' modifications:
// these can be applied to any constraints and yield the exact same result.
func NewConstraintModificationsIdentity() *ConstraintModifications {
	return &ConstraintModifications{
		OutboundHrmp: make(map[parachaintypes.ParaID]OutboundHrmpChannelModification),
	}
}

// Clone returns a copy of the modifications.
func (cm *ConstraintModifications) Clone() *ConstraintModifications {
	clone := *cm
	clone.OutboundHrmp = maps.Clone(cm.OutboundHrmp)
	if clone.OutboundHrmp == nil {
		clone.OutboundHrmp = make(map[parachaintypes.ParaID]OutboundHrmpChannelModification)
	}
	return &clone
}

// Stack stacks other modifications on top of these. This does no sanity-checking, so if
// other is garbage relative to cm, then the new value will be garbage as well.
// This is an addition which is not commutative.
func (cm *ConstraintModifications) Stack(other *ConstraintModifications) {
	if other.RequiredParent != nil {
		cm.RequiredParent = other.RequiredParent
	}

	if other.HrmpWatermark != nil {
		cm.HrmpWatermark = other.HrmpWatermark
	}

	if cm.OutboundHrmp == nil {
		cm.OutboundHrmp = make(map[parachaintypes.ParaID]OutboundHrmpChannelModification)
	}
	for id, mods := range other.OutboundHrmp {
		record := cm.OutboundHrmp[id]
		record.BytesSubmitted += mods.BytesSubmitted
		record.MessagesSubmitted += mods.MessagesSubmitted
		cm.OutboundHrmp[id] = record
	}

	cm.UmpMessagesSent += other.UmpMessagesSent
	cm.UmpBytesSent += other.UmpBytesSent
	cm.DmpMessagesProcessed += other.DmpMessagesProcessed
	cm.CodeUpgradeApplied = cm.CodeUpgradeApplied || other.CodeUpgradeApplied
}

// CheckModifications checks modifications against constraints without applying them.
func CheckModifications(c *parachaintypes.Constraints, modifications *ConstraintModifications) error {
	if modifications.HrmpWatermark != nil && modifications.HrmpWatermark.Type == Trunk {
		if !slices.Contains(c.HRMPInbound.ValidWatermarks, modifications.HrmpWatermark.Watermark()) {
			return &errDisallowedHrmpWatermark{BlockNumber: modifications.HrmpWatermark.Watermark()}
		}
	}

	for id, outboundHrmpMod := range modifications.OutboundHrmp {
		outbound, ok := c.HRMPChannelsOut[id]
		if !ok {
			return &errNoSuchHrmpChannel{paraID: id}
		}

		_, overflow := math.SafeSub(uint64(outbound.BytesRemaining), uint64(outboundHrmpMod.BytesSubmitted))
		if overflow {
			return &errHrmpBytesOverflow{
				paraID:         id,
				bytesRemaining: outbound.BytesRemaining,
				bytesSubmitted: outboundHrmpMod.BytesSubmitted,
			}
		}

		_, overflow = math.SafeSub(uint64(outbound.MessagesRemaining), uint64(outboundHrmpMod.MessagesSubmitted))
		if overflow {
			return &errHrmpMessagesOverflow{
				paraID:            id,
				messagesRemaining: outbound.MessagesRemaining,
				messagesSubmitted: outboundHrmpMod.MessagesSubmitted,
			}
		}
	}

	_, overflow := math.SafeSub(uint64(c.UMPRemaining), uint64(modifications.UmpMessagesSent))
	if overflow {
		return &errUmpMessagesOverflow{
			messagesRemaining: c.UMPRemaining,
			messagesSubmitted: modifications.UmpMessagesSent,
		}
	}

	_, overflow = math.SafeSub(uint64(c.UMPRemainingBytes), uint64(modifications.UmpBytesSent))
	if overflow {
		return &errUmpBytesOverflow{
			bytesRemaining: c.UMPRemainingBytes,
			bytesSubmitted: modifications.UmpBytesSent,
		}
	}

	_, overflow = math.SafeSub(uint64(len(c.DMPRemainingMessages)), uint64(modifications.DmpMessagesProcessed))
	if overflow {
		return &errDmpMessagesUnderflow{
			messagesRemaining: uint32(len(c.DMPRemainingMessages)),
			messagesProcessed: modifications.DmpMessagesProcessed,
		}
	}

	if c.FutureValidationCode == nil && modifications.CodeUpgradeApplied {
		return errAppliedNonexistentCodeUpgrade
	}

	return nil
}

// ApplyModifications returns new constraints with the modifications applied.
// The given constraints are left untouched.
func ApplyModifications(c *parachaintypes.Constraints, modifications *ConstraintModifications) (
	*parachaintypes.Constraints, error) {
	newConstraints := c.Clone()

	if modifications.RequiredParent != nil {
		newConstraints.RequiredParent = *modifications.RequiredParent
	}

	if modifications.HrmpWatermark != nil {
		pos, found := slices.BinarySearch(
			newConstraints.HRMPInbound.ValidWatermarks,
			modifications.HrmpWatermark.Watermark())

		if found {
			// exact match, so this is OK in all cases.
			newConstraints.HRMPInbound.ValidWatermarks = newConstraints.HRMPInbound.ValidWatermarks[pos+1:]
		} else {
			switch modifications.HrmpWatermark.Type {
			case Head:
				newConstraints.HRMPInbound.ValidWatermarks = newConstraints.HRMPInbound.ValidWatermarks[pos:]
			case Trunk:
				return nil, &errDisallowedHrmpWatermark{BlockNumber: modifications.HrmpWatermark.Block}
			}
		}
	}

	for id, outboundHrmpMod := range modifications.OutboundHrmp {
		outbound, ok := newConstraints.HRMPChannelsOut[id]
		if !ok {
			return nil, &errNoSuchHrmpChannel{paraID: id}
		}

		if outboundHrmpMod.BytesSubmitted > outbound.BytesRemaining {
			return nil, &errHrmpBytesOverflow{
				paraID:         id,
				bytesRemaining: outbound.BytesRemaining,
				bytesSubmitted: outboundHrmpMod.BytesSubmitted,
			}
		}

		if outboundHrmpMod.MessagesSubmitted > outbound.MessagesRemaining {
			return nil, &errHrmpMessagesOverflow{
				paraID:            id,
				messagesRemaining: outbound.MessagesRemaining,
				messagesSubmitted: outboundHrmpMod.MessagesSubmitted,
			}
		}

		outbound.BytesRemaining -= outboundHrmpMod.BytesSubmitted
		outbound.MessagesRemaining -= outboundHrmpMod.MessagesSubmitted
		newConstraints.HRMPChannelsOut[id] = outbound
	}

	if modifications.UmpMessagesSent > newConstraints.UMPRemaining {
		return nil, &errUmpMessagesOverflow{
			messagesRemaining: newConstraints.UMPRemaining,
			messagesSubmitted: modifications.UmpMessagesSent,
		}
	}
	newConstraints.UMPRemaining -= modifications.UmpMessagesSent

	if modifications.UmpBytesSent > newConstraints.UMPRemainingBytes {
		return nil, &errUmpBytesOverflow{
			bytesRemaining: newConstraints.UMPRemainingBytes,
			bytesSubmitted: modifications.UmpBytesSent,
		}
	}
	newConstraints.UMPRemainingBytes -= modifications.UmpBytesSent

	if modifications.DmpMessagesProcessed > uint32(len(newConstraints.DMPRemainingMessages)) {
		return nil, &errDmpMessagesUnderflow{
			messagesRemaining: uint32(len(newConstraints.DMPRemainingMessages)),
			messagesProcessed: modifications.DmpMessagesProcessed,
		}
	}
	newConstraints.DMPRemainingMessages = newConstraints.DMPRemainingMessages[modifications.DmpMessagesProcessed:]

	if modifications.CodeUpgradeApplied {
		if newConstraints.FutureValidationCode == nil {
			return nil, errAppliedNonexistentCodeUpgrade
		}

		newConstraints.ValidationCodeHash = newConstraints.FutureValidationCode.ValidationCodeHash
		newConstraints.FutureValidationCode = nil
	}

	return newConstraints, nil
}

// Fragment is another prospective parachain block. A fragment is guaranteed to
// be valid under its operating constraints.
type Fragment struct {
	relayParent          *RelayChainBlockInfo
	operatingConstraints *parachaintypes.Constraints
	candidate            *ProspectiveCandidate
	modifications        *ConstraintModifications
}

func (f *Fragment) RelayParent() *RelayChainBlockInfo {
	return f.relayParent
}

func (f *Fragment) OperatingConstraints() *parachaintypes.Constraints {
	return f.operatingConstraints
}

func (f *Fragment) Candidate() *ProspectiveCandidate {
	return f.candidate
}

func (f *Fragment) ConstraintModifications() *ConstraintModifications {
	return f.modifications
}

// NewFragment creates a new Fragment. This fails if the fragment isnt in line
// with the operating constraints. That is, either its inputs or outputs fail
// checks against the constraints.
// This does not check that the collator signature is valid or whether the PoV is
// small enough.
func NewFragment(
	relayParent *RelayChainBlockInfo,
	operatingConstraints *parachaintypes.Constraints,
	candidate *ProspectiveCandidate) (*Fragment, error) {

	modifications, err := CheckAgainstConstraints(
		relayParent,
		operatingConstraints,
		candidate.Commitments,
		candidate.ValidationCodeHash,
		candidate.PersistedValidationData,
	)
	if err != nil {
		return nil, err
	}

	return &Fragment{
		relayParent:          relayParent,
		operatingConstraints: operatingConstraints,
		candidate:            candidate,
		modifications:        modifications,
	}, nil
}

// CheckAgainstConstraints computes the modifications a candidate makes and
// validates the candidate against the operating constraints.
func CheckAgainstConstraints(
	relayParent *RelayChainBlockInfo,
	operatingConstraints *parachaintypes.Constraints,
	commitments parachaintypes.CandidateCommitments,
	validationCodeHash parachaintypes.ValidationCodeHash,
	persistedValidationData parachaintypes.PersistedValidationData,
) (*ConstraintModifications, error) {
	var umpMessagesSent, umpBytesSent uint32
	for message := range skipUmpSignals(commitments.UpwardMessages) {
		umpMessagesSent++
		umpBytesSent += uint32(len(message))
	}

	hrmpWatermark := HrmpWatermarkUpdate{
		Type:  Trunk,
		Block: parachaintypes.BlockNumber(commitments.HrmpWatermark),
	}
	if hrmpWatermark.Block == relayParent.Number {
		hrmpWatermark.Type = Head
	}

	outboundHrmp := make(map[parachaintypes.ParaID]OutboundHrmpChannelModification)
	var lastRecipient *parachaintypes.ParaID

	for i, message := range commitments.HorizontalMessages {
		recipient := parachaintypes.ParaID(message.Recipient)
		if lastRecipient != nil && *lastRecipient >= recipient {
			return nil, &errHrmpMessagesDescendingOrDuplicate{index: uint(i)}
		}
		lastRecipient = &recipient

		record := outboundHrmp[recipient]
		record.BytesSubmitted += uint32(len(message.Data))
		record.MessagesSubmitted++
		outboundHrmp[recipient] = record
	}

	codeUpgradeApplied := false
	if operatingConstraints.FutureValidationCode != nil {
		codeUpgradeApplied = relayParent.Number >= operatingConstraints.FutureValidationCode.BlockNumber
	}

	requiredParent := commitments.HeadData
	modifications := &ConstraintModifications{
		RequiredParent:       &requiredParent,
		HrmpWatermark:        &hrmpWatermark,
		OutboundHrmp:         outboundHrmp,
		UmpMessagesSent:      umpMessagesSent,
		UmpBytesSent:         umpBytesSent,
		DmpMessagesProcessed: commitments.ProcessedDownwardMessages,
		CodeUpgradeApplied:   codeUpgradeApplied,
	}

	err := validateAgainstConstraints(
		operatingConstraints,
		relayParent,
		commitments,
		persistedValidationData,
		validationCodeHash,
		modifications,
	)
	if err != nil {
		return nil, err
	}

	return modifications, nil
}

// skipUmpSignals yields the upward messages up to the separator. What follows
// the separator are UMP signals, which do not count as messages.
func skipUmpSignals(upwardMessages []parachaintypes.UpwardMessage) iter.Seq[parachaintypes.UpwardMessage] {
	return func(yield func(parachaintypes.UpwardMessage) bool) {
		for _, message := range upwardMessages {
			if len(message) == 0 {
				return
			}
			if !yield(message) {
				return
			}
		}
	}
}

func validateAgainstConstraints(
	constraints *parachaintypes.Constraints,
	relayParent *RelayChainBlockInfo,
	commitments parachaintypes.CandidateCommitments,
	persistedValidationData parachaintypes.PersistedValidationData,
	validationCodeHash parachaintypes.ValidationCodeHash,
	modifications *ConstraintModifications,
) error {
	expectedPVD := parachaintypes.PersistedValidationData{
		ParentHead:             constraints.RequiredParent,
		RelayParentNumber:      uint32(relayParent.Number),
		RelayParentStorageRoot: relayParent.StorageRoot,
		MaxPovSize:             constraints.MaxPoVSize,
	}

	if !expectedPVD.Equal(persistedValidationData) {
		return fmt.Errorf("%w: expected %v, got %v",
			errPersistedValidationDataMismatch, expectedPVD, persistedValidationData)
	}

	if constraints.ValidationCodeHash != validationCodeHash {
		return &errValidationCodeMismatch{
			expected: constraints.ValidationCodeHash,
			got:      validationCodeHash,
		}
	}

	if relayParent.Number < constraints.MinRelayParentNumber {
		return &errRelayParentTooOld{
			minAllowed: constraints.MinRelayParentNumber,
			current:    relayParent.Number,
		}
	}

	announcedCodeSize := 0
	if commitments.NewValidationCode != nil {
		if constraints.UpgradeRestriction != nil {
			return errCodeUpgradeRestricted
		}
		announcedCodeSize = len(*commitments.NewValidationCode)
	}

	if uint32(announcedCodeSize) > constraints.MaxCodeSize {
		return &errCodeSizeTooLarge{
			maxAllowed: constraints.MaxCodeSize,
			newSize:    uint32(announcedCodeSize),
		}
	}

	if modifications.DmpMessagesProcessed == 0 {
		if len(constraints.DMPRemainingMessages) > 0 && constraints.DMPRemainingMessages[0] <= relayParent.Number {
			return errDmpAdvancementRule
		}
	}

	if len(commitments.HorizontalMessages) > int(constraints.MaxNumHRMPPerCandidate) {
		return &errHrmpMessagesPerCandidateOverflow{
			messagesAllowed:   constraints.MaxNumHRMPPerCandidate,
			messagesSubmitted: uint32(len(commitments.HorizontalMessages)),
		}
	}

	if modifications.UmpMessagesSent > constraints.MaxNumUMPPerCandidate {
		return &errUmpMessagesPerCandidateOverflow{
			messagesAllowed:   constraints.MaxNumUMPPerCandidate,
			messagesSubmitted: modifications.UmpMessagesSent,
		}
	}

	if err := CheckModifications(constraints, modifications); err != nil {
		return &errOutputsInvalid{modificationErr: err}
	}

	return nil
}
