// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/lib/keystore"
	lru "github.com/hashicorp/golang-lru/v2"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util"
	"golang.org/x/sync/errgroup"
)

// legacyMinBackingVotes is used by runtimes that do not expose the minimum
// backing votes.
const legacyMinBackingVotes = 2

// localValidator is the validator this node signs statements as.
type localValidator struct {
	key            parachaintypes.ValidatorID
	index          parachaintypes.ValidatorIndex
	disabled       bool
	signingContext parachaintypes.SigningContext
}

// sign signs the statement. The persisted validation data is only carried
// along for Seconded statements.
func (v *localValidator) sign(
	ks keystore.Keystore,
	payload parachaintypes.Statement,
	pvd *parachaintypes.PersistedValidationData,
) (parachaintypes.SignedFullStatementWithPVD, error) {
	signature, err := parachaintypes.SignStatement(ks, payload, v.signingContext, v.key)
	if err != nil {
		return parachaintypes.SignedFullStatementWithPVD{}, fmt.Errorf("signing statement: %w", err)
	}

	return parachaintypes.SignedFullStatementWithPVD{
		SignedFullStatement: parachaintypes.SignedFullStatement{
			Payload:        payload,
			ValidatorIndex: v.index,
			Signature:      signature,
		},
		PersistedValidationData: pvd,
	}, nil
}

// attestingData is what is needed to validate a candidate seconded by another
// validator, along with the backing validators to fetch the PoV from if the
// current one does not serve it.
type attestingData struct {
	candidate     parachaintypes.CandidateReceipt
	povHash       common.Hash
	fromValidator parachaintypes.ValidatorIndex
	backing       []parachaintypes.ValidatorIndex
}

type perCandidateState struct {
	persistedValidationData parachaintypes.PersistedValidationData
	secondedLocally         bool
	relayParent             common.Hash
}

type perRelayParentState struct {
	parent common.Hash
	// asyncBacking is false when prospective parachains are disabled at the
	// leaf this relay parent was activated under.
	asyncBacking        bool
	nodeFeatures        parachaintypes.NodeFeatures
	executorParams      parachaintypes.ExecutorParams
	assignedCore        *parachaintypes.CoreIndex
	backed              map[parachaintypes.CandidateHash]struct{}
	table               *statementTable
	tableContext        *tableContext
	issuedStatements    map[parachaintypes.CandidateHash]struct{}
	awaitingValidation  map[parachaintypes.CandidateHash]struct{}
	fallbacks           map[parachaintypes.CandidateHash]*attestingData
	minimumBackingVotes uint32
	injectCoreIndex     bool
	numCores            uint32
	claimQueue          parachaintypes.ClaimQueue
	validatorToGroup    []*parachaintypes.GroupIndex
	groupRotationInfo   parachaintypes.GroupRotationInfo
	// seconded is the candidate seconded locally when async backing is disabled,
	// only one is allowed per relay parent then.
	seconded *parachaintypes.CandidateHash
}

// localValidatorIndex returns the index of the local validator, false if the
// node is not a validator at this relay parent.
func (rpState *perRelayParentState) localValidatorIndex() (parachaintypes.ValidatorIndex, bool) {
	if rpState.tableContext.validator == nil {
		return 0, false
	}
	return rpState.tableContext.validator.index, true
}

type sessionData struct {
	validators          []parachaintypes.ValidatorID
	nodeFeatures        parachaintypes.NodeFeatures
	executorParams      parachaintypes.ExecutorParams
	minimumBackingVotes uint32
	validatorToGroup    []*parachaintypes.GroupIndex
}

// sessionCache keeps the runtime data that only changes between sessions.
type sessionCache struct {
	sessions *lru.Cache[parachaintypes.SessionIndex, *sessionData]
}

func newSessionCache(size int) (*sessionCache, error) {
	sessions, err := lru.New[parachaintypes.SessionIndex, *sessionData](size)
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &sessionCache{sessions: sessions}, nil
}

func (c *sessionCache) get(
	rt parachaintypes.RuntimeInstance,
	relayParent common.Hash,
	sessionIndex parachaintypes.SessionIndex,
	groups [][]parachaintypes.ValidatorIndex,
) (*sessionData, error) {
	if data, ok := c.sessions.Get(sessionIndex); ok {
		return data, nil
	}

	validators, err := rt.ParachainHostValidators()
	if err != nil {
		return nil, fmt.Errorf("getting validators: %w", err)
	}

	nodeFeatures, err := rt.ParachainHostNodeFeatures()
	if err != nil && !errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported) {
		return nil, fmt.Errorf("getting node features: %w", err)
	}

	executorParams, err := util.ExecutorParamsAtRelayParent(rt, relayParent)
	if err != nil {
		return nil, fmt.Errorf("getting executor params: %w", err)
	}

	minimumBackingVotes, err := rt.ParachainHostMinimumBackingVotes()
	switch {
	case errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported):
		minimumBackingVotes = legacyMinBackingVotes
	case err != nil:
		return nil, fmt.Errorf("getting minimum backing votes: %w", err)
	}

	data := &sessionData{
		validators:          validators,
		nodeFeatures:        nodeFeatures,
		executorParams:      *executorParams,
		minimumBackingVotes: minimumBackingVotes,
		validatorToGroup:    util.ValidatorToGroup(len(validators), groups),
	}
	c.sessions.Add(sessionIndex, data)
	return data, nil
}

// constructPerRelayParentState loads from the runtime what backing work on
// top of the relay parent needs.
func (cb *CandidateBacking) constructPerRelayParentState(
	relayParent common.Hash,
	asyncBacking bool,
) (*perRelayParentState, error) {
	rt, err := cb.blockState.GetRuntime(relayParent)
	if err != nil {
		return nil, fmt.Errorf("getting runtime for relay parent %s: %w", relayParent, err)
	}

	var (
		sessionIndex       parachaintypes.SessionIndex
		validatorGroups    *parachaintypes.ValidatorGroups
		claimQueue         parachaintypes.ClaimQueue
		disabledValidators []parachaintypes.ValidatorIndex
		g                  errgroup.Group
	)

	g.Go(func() (err error) {
		sessionIndex, err = rt.ParachainHostSessionIndexForChild()
		if err != nil {
			return fmt.Errorf("getting session index: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		validatorGroups, err = rt.ParachainHostValidatorGroups()
		if err != nil {
			return fmt.Errorf("getting validator groups: %w", err)
		}
		if validatorGroups == nil {
			return errNoValidatorGroups
		}
		return nil
	})
	g.Go(func() (err error) {
		claimQueue, err = rt.ParachainHostClaimQueue()
		if err != nil {
			return fmt.Errorf("getting claim queue: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		disabledValidators, err = rt.ParachainHostDisabledValidators()
		if errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting disabled validators: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	session, err := cb.sessionCache.get(rt, relayParent, sessionIndex, validatorGroups.Validators)
	if err != nil {
		return nil, fmt.Errorf("getting data of session %d: %w", sessionIndex, err)
	}

	injectCoreIndex := session.nodeFeatures.Enabled(parachaintypes.ElasticScalingMVP)
	logger.Debugf("new state for relay parent %s, injectCoreIndex=%t", relayParent, injectCoreIndex)

	var validator *localValidator
	key, index := util.SigningKeyAndIndex(session.validators, cb.keystore)
	if key != nil {
		validator = &localValidator{
			key:      *key,
			index:    index,
			disabled: slices.Contains(disabledValidators, index),
			signingContext: parachaintypes.SigningContext{
				SessionIndex: sessionIndex,
				ParentHash:   relayParent,
			},
		}
	}

	numCores := len(validatorGroups.Validators)
	groups := make(map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex)
	var assignedCore *parachaintypes.CoreIndex

	for idx := range numCores {
		coreIndex := parachaintypes.CoreIndex(idx)
		if !claimQueue.HasCore(coreIndex) {
			continue
		}

		groupIndex := validatorGroups.GroupRotationInfo.GroupForCore(coreIndex, uint(numCores))
		if int(groupIndex) >= numCores {
			continue
		}

		group := validatorGroups.Validators[groupIndex]
		if validator != nil && slices.Contains(group, validator.index) {
			assignedCore = &coreIndex
		}
		groups[coreIndex] = group
	}
	logger.Debugf("table context groups at relay parent %s: %v", relayParent, groups)

	return &perRelayParentState{
		parent:         relayParent,
		asyncBacking:   asyncBacking,
		nodeFeatures:   session.nodeFeatures,
		executorParams: session.executorParams,
		assignedCore:   assignedCore,
		backed:         make(map[parachaintypes.CandidateHash]struct{}),
		table:          newStatementTable(asyncBacking),
		tableContext: &tableContext{
			validator:          validator,
			groups:             groups,
			validators:         session.validators,
			disabledValidators: disabledValidators,
		},
		issuedStatements:    make(map[parachaintypes.CandidateHash]struct{}),
		awaitingValidation:  make(map[parachaintypes.CandidateHash]struct{}),
		fallbacks:           make(map[parachaintypes.CandidateHash]*attestingData),
		minimumBackingVotes: session.minimumBackingVotes,
		injectCoreIndex:     injectCoreIndex,
		numCores:            uint32(numCores),
		claimQueue:          claimQueue,
		validatorToGroup:    session.validatorToGroup,
		groupRotationInfo:   validatorGroups.GroupRotationInfo,
	}, nil
}
