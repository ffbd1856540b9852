// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/ChainSafe/gossamer/lib/keystore"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// ErrResponseChannelClosed is returned when a collaborator drops the response
// channel without answering.
var ErrResponseChannelClosed = errors.New("response channel closed")

// SigningKeyAndIndex finds the first key we can sign with from the given set of validators,
// if any, and returns it along with the validator index.
func SigningKeyAndIndex(
	validators []parachaintypes.ValidatorID,
	ks keystore.Keystore,
) (*parachaintypes.ValidatorID, parachaintypes.ValidatorIndex) {
	for i, validator := range validators {
		publicKey, err := sr25519.NewPublicKey(validator[:])
		if err != nil {
			continue
		}

		if ks.GetKeypair(publicKey) != nil {
			validator := validator
			return &validator, parachaintypes.ValidatorIndex(i)
		}
	}
	return nil, 0
}

// ValidatorToGroup maps every validator index of the session to the group it
// belongs to. Validators outside of every group map to nil.
func ValidatorToGroup(numValidators int, groups [][]parachaintypes.ValidatorIndex) []*parachaintypes.GroupIndex {
	validatorToGroup := make([]*parachaintypes.GroupIndex, numValidators)
	for groupIdx, group := range groups {
		groupIndex := parachaintypes.GroupIndex(groupIdx)
		for _, validator := range group {
			if int(validator) < numValidators {
				validatorToGroup[validator] = &groupIndex
			}
		}
	}
	return validatorToGroup
}

// SendOverseerMessage sends the message to the overseer and waits for the
// answer on responseChan. It gives up after the subsystem request timeout, when
// the context is done or when the collaborator closes responseChan.
func SendOverseerMessage[T any](
	ctx context.Context,
	overseerChan chan<- any,
	message any,
	responseChan <-chan T,
) (T, error) {
	var zero T

	timer := time.NewTimer(parachaintypes.SubsystemRequestTimeout)
	defer timer.Stop()

	select {
	case overseerChan <- message:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, parachaintypes.ErrSubsystemRequestTimeout
	}

	select {
	case response, ok := <-responseChan:
		if !ok {
			return zero, ErrResponseChannelClosed
		}
		return response, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, parachaintypes.ErrSubsystemRequestTimeout
	}
}

// ExecutorParamsAtRelayParent returns the executor params of the session of
// the relay parent. Runtimes without the API run with the default params.
func ExecutorParamsAtRelayParent(rt parachaintypes.RuntimeInstance, relayParent common.Hash,
) (*parachaintypes.ExecutorParams, error) {
	sessionIndex, err := rt.ParachainHostSessionIndexForChild()
	if err != nil {
		return nil, fmt.Errorf("getting session index for relay parent %s: %w", relayParent, err)
	}

	executorParams, err := rt.ParachainHostSessionExecutorParams(sessionIndex)
	if err != nil {
		if errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported) {
			defaultExecutorParams := parachaintypes.NewExecutorParams()
			return &defaultExecutorParams, nil
		}
		return nil, err
	}

	if executorParams == nil {
		return nil, fmt.Errorf("no executor params for session %d at relay parent %s", sessionIndex, relayParent)
	}

	return executorParams, nil
}
