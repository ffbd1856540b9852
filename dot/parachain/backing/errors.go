// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"context"
	"errors"
	"fmt"

	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util"
)

var (
	errRejectedByProspectiveParachains = errors.New("candidate rejected by prospective parachains subsystem")
	errCoreIndexUnavailable            = errors.New("core index is not available")
	errCandidateNotFound               = errors.New("candidate not found in statement table")
	errNoValidationCode                = errors.New("validation code not found")
	errFetchPoV                        = errors.New("fetching proof of validity")
	errValidatorPoolStopped            = errors.New("background validation pool stopped")
	errResultChannelClosed             = errors.New("background validation result channel closed")
	errNoValidatorGroups               = errors.New("no validator groups returned by the runtime")
	errMissingPVD                      = errors.New("seconded statement without persisted validation data")
)

type errStoreAvailableData struct {
	candidateHash parachaintypes.CandidateHash
	err           error
}

func (e errStoreAvailableData) Error() string {
	return fmt.Sprintf("storing available data of candidate %s: %s", e.candidateHash, e.err)
}

func (e errStoreAvailableData) Unwrap() error {
	return e.err
}

type errValidationFailed struct {
	candidateHash parachaintypes.CandidateHash
	err           error
}

func (e errValidationFailed) Error() string {
	return fmt.Sprintf("validating candidate %s: %s", e.candidateHash, e.err)
}

func (e errValidationFailed) Unwrap() error {
	return e.err
}

// isFatal reports whether the error comes from local infrastructure the loop
// cannot continue without. Every other error is logged and the loop goes on.
func isFatal(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errValidatorPoolStopped),
		errors.Is(err, errResultChannelClosed):
		return true
	default:
		return false
	}
}

// isRejection reports whether a failed collaborator request must be treated
// as a negative answer rather than an infrastructure failure.
func isRejection(err error) bool {
	return errors.Is(err, util.ErrResponseChannelClosed) ||
		errors.Is(err, parachaintypes.ErrSubsystemRequestTimeout)
}
