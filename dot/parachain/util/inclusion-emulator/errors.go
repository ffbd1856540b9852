// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package inclusionemulator

import (
	"errors"
	"fmt"

	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

var (
	errAppliedNonexistentCodeUpgrade   = errors.New("applied non existent code upgrade")
	errPersistedValidationDataMismatch = errors.New("persisted validation data mismatch")
	errCodeUpgradeRestricted           = errors.New("code upgrade restricted")
	errDmpAdvancementRule              = errors.New("dmp advancement rule")
)

type errDisallowedHrmpWatermark struct {
	BlockNumber parachaintypes.BlockNumber
}

func (e *errDisallowedHrmpWatermark) Error() string {
	return fmt.Sprintf("disallowed hrmp watermark: %d", e.BlockNumber)
}

type errNoSuchHrmpChannel struct {
	paraID parachaintypes.ParaID
}

func (e *errNoSuchHrmpChannel) Error() string {
	return fmt.Sprintf("no such hrmp channel: %d", e.paraID)
}

type errHrmpMessagesOverflow struct {
	paraID            parachaintypes.ParaID
	messagesRemaining uint32
	messagesSubmitted uint32
}

func (e *errHrmpMessagesOverflow) Error() string {
	return fmt.Sprintf("hrmp messages overflow on channel to %d: remaining %d, submitted %d",
		e.paraID, e.messagesRemaining, e.messagesSubmitted)
}

type errHrmpBytesOverflow struct {
	paraID         parachaintypes.ParaID
	bytesRemaining uint32
	bytesSubmitted uint32
}

func (e *errHrmpBytesOverflow) Error() string {
	return fmt.Sprintf("hrmp bytes overflow on channel to %d: remaining %d, submitted %d",
		e.paraID, e.bytesRemaining, e.bytesSubmitted)
}

type errUmpMessagesOverflow struct {
	messagesRemaining uint32
	messagesSubmitted uint32
}

func (e *errUmpMessagesOverflow) Error() string {
	return fmt.Sprintf("ump messages overflow: remaining %d, submitted %d", e.messagesRemaining, e.messagesSubmitted)
}

type errUmpBytesOverflow struct {
	bytesRemaining uint32
	bytesSubmitted uint32
}

func (e *errUmpBytesOverflow) Error() string {
	return fmt.Sprintf("ump bytes overflow: remaining %d, submitted %d", e.bytesRemaining, e.bytesSubmitted)
}

type errDmpMessagesUnderflow struct {
	messagesRemaining uint32
	messagesProcessed uint32
}

func (e *errDmpMessagesUnderflow) Error() string {
	return fmt.Sprintf("dmp messages underflow: remaining %d, processed %d", e.messagesRemaining, e.messagesProcessed)
}

type errValidationCodeMismatch struct {
	expected parachaintypes.ValidationCodeHash
	got      parachaintypes.ValidationCodeHash
}

func (e *errValidationCodeMismatch) Error() string {
	return fmt.Sprintf("validation code mismatch: expected %s, got %s", e.expected, e.got)
}

type errOutputsInvalid struct {
	modificationErr error
}

func (e *errOutputsInvalid) Error() string {
	return fmt.Sprintf("outputs invalid: %s", e.modificationErr)
}

func (e *errOutputsInvalid) Unwrap() error {
	return e.modificationErr
}

type errCodeSizeTooLarge struct {
	maxAllowed uint32
	newSize    uint32
}

func (e *errCodeSizeTooLarge) Error() string {
	return fmt.Sprintf("code size too large: max allowed %d, new %d", e.maxAllowed, e.newSize)
}

type errRelayParentTooOld struct {
	minAllowed parachaintypes.BlockNumber
	current    parachaintypes.BlockNumber
}

func (e *errRelayParentTooOld) Error() string {
	return fmt.Sprintf("relay parent too old: min allowed %d, current %d", e.minAllowed, e.current)
}

type errUmpMessagesPerCandidateOverflow struct {
	messagesAllowed   uint32
	messagesSubmitted uint32
}

func (e *errUmpMessagesPerCandidateOverflow) Error() string {
	return fmt.Sprintf("ump messages per candidate overflow: allowed %d, submitted %d",
		e.messagesAllowed, e.messagesSubmitted)
}

type errHrmpMessagesPerCandidateOverflow struct {
	messagesAllowed   uint32
	messagesSubmitted uint32
}

func (e *errHrmpMessagesPerCandidateOverflow) Error() string {
	return fmt.Sprintf("hrmp messages per candidate overflow: allowed %d, submitted %d",
		e.messagesAllowed, e.messagesSubmitted)
}

type errHrmpMessagesDescendingOrDuplicate struct {
	index uint
}

func (e *errHrmpMessagesDescendingOrDuplicate) Error() string {
	return fmt.Sprintf("hrmp messages descending or duplicate at index %d", e.index)
}
