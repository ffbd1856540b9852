// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util"
)

// povData is the PoV a validation job works with: either already at hand or
// to be fetched from a backing validator.
type povData interface {
	isPoVData()
}

type povReady parachaintypes.PoV

type povFetchFromValidator struct {
	fromValidator parachaintypes.ValidatorIndex
	candidateHash parachaintypes.CandidateHash
	povHash       common.Hash
}

func (povReady) isPoVData()              {}
func (povFetchFromValidator) isPoVData() {}

type backgroundValidationOutputs struct {
	commitments             parachaintypes.CandidateCommitments
	persistedValidationData parachaintypes.PersistedValidationData
}

// backgroundValidationResult is the outcome of a validation job. outputs is
// nil when the candidate turned out to be invalid.
type backgroundValidationResult struct {
	candidate parachaintypes.CandidateReceipt
	outputs   *backgroundValidationOutputs
}

// validatedCandidateCommand is sent by validation jobs back to the main loop.
// It is one of secondCommand, attestCommand or attestNoPoVCommand.
type validatedCandidateCommand interface {
	relayParentHash() common.Hash
	candidateHash() parachaintypes.CandidateHash
}

// secondCommand carries the validation result of a candidate we were asked to second.
type secondCommand struct {
	relayParent common.Hash
	hash        parachaintypes.CandidateHash
	result      backgroundValidationResult
}

// attestCommand carries the validation result of a candidate seconded by another validator.
type attestCommand struct {
	relayParent common.Hash
	hash        parachaintypes.CandidateHash
	result      backgroundValidationResult
}

// attestNoPoVCommand tells that the backing validator did not serve the PoV.
type attestNoPoVCommand struct {
	relayParent common.Hash
	hash        parachaintypes.CandidateHash
}

func (c secondCommand) relayParentHash() common.Hash      { return c.relayParent }
func (c attestCommand) relayParentHash() common.Hash      { return c.relayParent }
func (c attestNoPoVCommand) relayParentHash() common.Hash { return c.relayParent }

func (c secondCommand) candidateHash() parachaintypes.CandidateHash      { return c.hash }
func (c attestCommand) candidateHash() parachaintypes.CandidateHash      { return c.hash }
func (c attestNoPoVCommand) candidateHash() parachaintypes.CandidateHash { return c.hash }

type backgroundValidationParams struct {
	candidate               parachaintypes.CandidateReceipt
	candidateHash           parachaintypes.CandidateHash
	relayParent             common.Hash
	nodeFeatures            parachaintypes.NodeFeatures
	executorParams          parachaintypes.ExecutorParams
	persistedValidationData parachaintypes.PersistedValidationData
	pov                     povData
	numValidators           int
	coreIndex               parachaintypes.CoreIndex
	makeCommand             func(backgroundValidationResult) validatedCandidateCommand
}

func (cb *CandidateBacking) validationCode(
	relayParent common.Hash,
	hash parachaintypes.ValidationCodeHash,
) (parachaintypes.ValidationCode, error) {
	if code, ok := cb.codeCache.Get(hash); ok {
		return code, nil
	}

	rt, err := cb.blockState.GetRuntime(relayParent)
	if err != nil {
		return nil, fmt.Errorf("getting runtime for relay parent %s: %w", relayParent, err)
	}

	code, err := rt.ParachainHostValidationCodeByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("getting validation code %s: %w", hash, err)
	}
	if code == nil {
		return nil, fmt.Errorf("%w: %s", errNoValidationCode, hash)
	}

	cb.codeCache.Add(hash, *code)
	return *code, nil
}

func (cb *CandidateBacking) requestPoV(
	ctx context.Context,
	relayParent common.Hash,
	paraID parachaintypes.ParaID,
	fetch povFetchFromValidator,
) (parachaintypes.PoV, error) {
	povCh := make(chan parachaintypes.OverseerFuncRes[parachaintypes.PoV], 1)
	res, err := util.SendOverseerMessage(ctx, cb.SubsystemToOverseer, parachaintypes.AvailabilityDistributionMessageFetchPoV{
		RelayParent:   relayParent,
		FromValidator: fetch.fromValidator,
		ParaID:        paraID,
		CandidateHash: fetch.candidateHash,
		PovHash:       fetch.povHash,
		PovCh:         povCh,
	}, povCh)
	if err != nil {
		if isFatal(err) {
			return parachaintypes.PoV{}, err
		}
		return parachaintypes.PoV{}, fmt.Errorf("%w: %w", errFetchPoV, err)
	}
	if res.Err != nil {
		return parachaintypes.PoV{}, fmt.Errorf("%w: %w", errFetchPoV, res.Err)
	}

	return res.Data, nil
}

func (cb *CandidateBacking) requestCandidateValidation(
	ctx context.Context,
	params backgroundValidationParams,
	validationCode parachaintypes.ValidationCode,
	pov parachaintypes.PoV,
) (parachaintypes.ValidationResult, error) {
	resCh := make(chan parachaintypes.OverseerFuncRes[parachaintypes.ValidationResult], 1)
	res, err := util.SendOverseerMessage(ctx, cb.SubsystemToOverseer,
		parachaintypes.CandidateValidationMessageValidateFromExhaustive{
			PersistedValidationData: params.persistedValidationData,
			ValidationCode:          validationCode,
			CandidateReceipt:        params.candidate,
			PoV:                     pov,
			ExecutorParams:          params.executorParams,
			Ch:                      resCh,
		}, resCh)
	if err != nil {
		return parachaintypes.ValidationResult{}, err
	}
	if res.Err != nil {
		return parachaintypes.ValidationResult{}, errValidationFailed{candidateHash: params.candidateHash, err: res.Err}
	}

	return res.Data, nil
}

// storeAvailableData hands the available data to the availability store,
// which also checks that its erasure root matches the expected one.
func (cb *CandidateBacking) storeAvailableData(
	ctx context.Context,
	params backgroundValidationParams,
	pov parachaintypes.PoV,
	validationData parachaintypes.PersistedValidationData,
) error {
	resCh := make(chan error, 1)
	res, err := util.SendOverseerMessage(ctx, cb.SubsystemToOverseer,
		parachaintypes.AvailabilityStoreMessageStoreAvailableData{
			CandidateHash: params.candidateHash,
			NumValidators: uint32(params.numValidators),
			AvailableData: parachaintypes.AvailableData{
				PoV:            pov,
				ValidationData: validationData,
			},
			ExpectedErasureRoot: params.candidate.Descriptor.ErasureRoot,
			CoreIndex:           params.coreIndex,
			NodeFeatures:        params.nodeFeatures,
			Sender:              resCh,
		}, resCh)
	if err != nil {
		return errStoreAvailableData{candidateHash: params.candidateHash, err: err}
	}
	if res != nil {
		return errStoreAvailableData{candidateHash: params.candidateHash, err: res}
	}
	return nil
}

// validateAndMakeAvailable validates the candidate and, if it is valid, makes
// its data available. The result is sent back to the main loop.
func (cb *CandidateBacking) validateAndMakeAvailable(ctx context.Context, params backgroundValidationParams) error {
	validationCode, err := cb.validationCode(params.relayParent, params.candidate.Descriptor.ValidationCodeHash)
	if err != nil {
		return err
	}

	var pov parachaintypes.PoV
	switch data := params.pov.(type) {
	case povReady:
		pov = parachaintypes.PoV(data)
	case povFetchFromValidator:
		pov, err = cb.requestPoV(ctx, params.relayParent, params.candidate.Descriptor.ParaID, data)
		if errors.Is(err, errFetchPoV) {
			logger.Debugf("fetching pov of candidate %s from validator %d: %s",
				params.candidateHash, data.fromValidator, err)
			return cb.sendCommand(ctx, attestNoPoVCommand{relayParent: params.relayParent, hash: params.candidateHash})
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unexpected pov data %T", params.pov)
	}

	validationResult, err := cb.requestCandidateValidation(ctx, params, validationCode, pov)
	if err != nil {
		return err
	}

	result := backgroundValidationResult{candidate: params.candidate}
	switch {
	case validationResult.IsValid:
		logger.Debugf("validation successful, candidate hash: %s", params.candidateHash)

		err := cb.storeAvailableData(ctx, params, pov, validationResult.PersistedValidationData)
		switch {
		case err == nil:
			result.outputs = &backgroundValidationOutputs{
				commitments:             validationResult.CandidateCommitments,
				persistedValidationData: validationResult.PersistedValidationData,
			}
		case errors.Is(err, parachaintypes.ErrInvalidErasureRoot):
			logger.Debugf("erasure root doesn't match the one announced by candidate %s", params.candidateHash)
		default:
			return err
		}
	case validationResult.ReasonForInvalidity == parachaintypes.CommitmentsHashMismatch:
		logger.Warnf("validation of candidate %s yielded different commitments", params.candidateHash)
	default:
		logger.Warnf("validation of candidate %s yielded an invalid candidate, reason: %d",
			params.candidateHash, validationResult.ReasonForInvalidity)
	}

	return cb.sendCommand(ctx, params.makeCommand(result))
}

func (cb *CandidateBacking) sendCommand(ctx context.Context, command validatedCandidateCommand) error {
	select {
	case cb.validationResults <- command:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending validation result of candidate %s: %w", command.candidateHash(), ctx.Err())
	}
}

// backgroundValidateAndMakeAvailable submits a validation job, unless one is
// already running for the candidate or we are not assigned to a core.
func (cb *CandidateBacking) backgroundValidateAndMakeAvailable(
	ctx context.Context,
	rpState *perRelayParentState,
	params backgroundValidationParams,
) error {
	if rpState.assignedCore == nil {
		return nil
	}
	if _, ok := rpState.awaitingValidation[params.candidateHash]; ok {
		return nil
	}
	if cb.validationPool.Stopped() {
		return errValidatorPoolStopped
	}

	rpState.awaitingValidation[params.candidateHash] = struct{}{}
	params.coreIndex = *rpState.assignedCore

	cb.validationPool.Submit(func() {
		err := cb.validateAndMakeAvailable(ctx, params)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			logger.Debugf("validation of candidate %s stopped, leaf no longer active? %s", params.candidateHash, err)
		default:
			logger.Errorf("failed to validate and make available candidate %s: %s", params.candidateHash, err)
		}
	})

	return nil
}

// kickOffValidationWork validates a candidate seconded by another validator,
// fetching its PoV from the validator the attesting data points at.
func (cb *CandidateBacking) kickOffValidationWork(
	ctx context.Context,
	rpState *perRelayParentState,
	pvd parachaintypes.PersistedValidationData,
	attesting attestingData,
) error {
	disabled, isValidator := rpState.tableContext.localValidatorIsDisabled()
	if !isValidator {
		logger.Debug("we are not a validator, not kicking off validation")
		return nil
	}
	if disabled {
		logger.Info("we are disabled, not kicking off validation")
		return nil
	}

	candidateHash, err := attesting.candidate.Hash()
	if err != nil {
		return fmt.Errorf("getting candidate hash: %w", err)
	}

	if _, ok := rpState.issuedStatements[candidateHash]; ok {
		return nil
	}

	logger.Debugf("kicking off validation of candidate %s", candidateHash)

	return cb.backgroundValidateAndMakeAvailable(ctx, rpState, backgroundValidationParams{
		candidate:               attesting.candidate,
		candidateHash:           candidateHash,
		relayParent:             rpState.parent,
		nodeFeatures:            rpState.nodeFeatures,
		executorParams:          rpState.executorParams,
		persistedValidationData: pvd,
		pov: povFetchFromValidator{
			fromValidator: attesting.fromValidator,
			candidateHash: candidateHash,
			povHash:       attesting.povHash,
		},
		numValidators: len(rpState.tableContext.validators),
		makeCommand: func(result backgroundValidationResult) validatedCandidateCommand {
			return attestCommand{relayParent: rpState.parent, hash: candidateHash, result: result}
		},
	})
}

// validateAndSecond validates a candidate with the intent to second it.
func (cb *CandidateBacking) validateAndSecond(
	ctx context.Context,
	rpState *perRelayParentState,
	pvd parachaintypes.PersistedValidationData,
	candidate parachaintypes.CandidateReceipt,
	candidateHash parachaintypes.CandidateHash,
	pov parachaintypes.PoV,
) error {
	logger.Debugf("validate and second candidate %s", candidateHash)

	relayParent := rpState.parent
	return cb.backgroundValidateAndMakeAvailable(ctx, rpState, backgroundValidationParams{
		candidate:               candidate,
		candidateHash:           candidateHash,
		relayParent:             relayParent,
		nodeFeatures:            rpState.nodeFeatures,
		executorParams:          rpState.executorParams,
		persistedValidationData: pvd,
		pov:                     povReady(pov),
		numValidators:           len(rpState.tableContext.validators),
		makeCommand: func(result backgroundValidationResult) validatedCandidateCommand {
			return secondCommand{relayParent: relayParent, hash: candidateHash, result: result}
		},
	})
}
