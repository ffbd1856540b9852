// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package prospectiveparachains

import (
	"errors"
	"fmt"

	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

var (
	ErrCandidateAlreadyKnown                = errors.New("candidate already known")
	ErrPersistedValidationDataMismatch      = errors.New("candidate does not match the persisted validation data provided alongside it") //nolint:lll
	ErrCandidateWithDuplicateParentHeadHash = errors.New("a candidate with the same parent head hash is already stored")
	ErrCandidateWithDuplicateOutputHeadHash = errors.New("a candidate with the same output head hash is already stored")

	errCandidateNotFound  = errors.New("candidate not found in storage")
	errRelayParentUnknown = errors.New("relay parent not tracked")
)

type errUnexpectedAncestor struct {
	// The block number that this error occurred at
	Number parachaintypes.BlockNumber
	// The previous seen block number, which did not match `number`.
	Prev parachaintypes.BlockNumber
}

func (e errUnexpectedAncestor) Error() string {
	return fmt.Sprintf("unexpected ancestor %d, expected %d", e.Number, e.Prev)
}
