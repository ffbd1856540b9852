// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"testing"

	"github.com/paritytech/polkadot-sdk-sub011/config"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestConstructPerRelayParentState(t *testing.T) {
	t.Parallel()

	core0 := parachaintypes.CoreIndex(0)

	tests := map[string]struct {
		setup                   func(s *testState)
		expectedGroups          map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex
		expectedAssignedCore    *parachaintypes.CoreIndex
		expectedDisabled        bool
		expectedInjectCoreIndex bool
	}{
		"assigned_to_core_with_claims": {
			expectedGroups: map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex{
				0: {0, 1, 2},
				1: {3},
			},
			expectedAssignedCore: &core0,
		},
		"core_without_claims_has_no_group": {
			setup: func(s *testState) {
				s.claimQueue = parachaintypes.ClaimQueue{1: {2}}
			},
			expectedGroups: map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex{
				1: {3},
			},
		},
		"local_validator_disabled": {
			setup: func(s *testState) {
				s.disabled = []parachaintypes.ValidatorIndex{0}
			},
			expectedGroups: map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex{
				0: {0, 1, 2},
				1: {3},
			},
			expectedAssignedCore: &core0,
			expectedDisabled:     true,
		},
		"elastic_scaling_enabled": {
			setup: func(s *testState) {
				s.nodeFeatures = parachaintypes.NodeFeatures{false, true}
			},
			expectedGroups: map[parachaintypes.CoreIndex][]parachaintypes.ValidatorIndex{
				0: {0, 1, 2},
				1: {3},
			},
			expectedAssignedCore:    &core0,
			expectedInjectCoreIndex: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestState(t, true)
			if tt.setup != nil {
				tt.setup(s)
			}

			ctrl := gomock.NewController(t)
			cb, err := New(nil, s.blockState(ctrl), s.keystore, config.DefaultBackingConfig(), nil)
			require.NoError(t, err)

			rpState, err := cb.constructPerRelayParentState(testLeaf, true)
			require.NoError(t, err)

			assert.Equal(t, testLeaf, rpState.parent)
			assert.True(t, rpState.asyncBacking)
			assert.Equal(t, tt.expectedGroups, rpState.tableContext.groups)
			assert.Equal(t, tt.expectedAssignedCore, rpState.assignedCore)
			assert.Equal(t, tt.expectedInjectCoreIndex, rpState.injectCoreIndex)
			assert.Equal(t, uint32(2), rpState.numCores)
			assert.Equal(t, uint32(2), rpState.minimumBackingVotes)

			index, ok := rpState.localValidatorIndex()
			require.True(t, ok)
			assert.Equal(t, parachaintypes.ValidatorIndex(0), index)

			disabled, ok := rpState.tableContext.localValidatorIsDisabled()
			require.True(t, ok)
			assert.Equal(t, tt.expectedDisabled, disabled)
			assert.Equal(t, s.signingContext(testLeaf), rpState.tableContext.validator.signingContext)
		})
	}
}

func TestConstructPerRelayParentState_NotAValidator(t *testing.T) {
	t.Parallel()

	s := newTestState(t, false)
	s.validators = s.validators[1:]

	ctrl := gomock.NewController(t)
	cb, err := New(nil, s.blockState(ctrl), s.keystore, config.DefaultBackingConfig(), nil)
	require.NoError(t, err)

	rpState, err := cb.constructPerRelayParentState(testLeaf, false)
	require.NoError(t, err)

	_, ok := rpState.localValidatorIndex()
	assert.False(t, ok)
	assert.Nil(t, rpState.assignedCore)
	assert.False(t, rpState.table.allowMultipleSeconded)
}

func TestSessionCache_Get(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	validators := make([]parachaintypes.ValidatorID, 3)
	groups := [][]parachaintypes.ValidatorIndex{{0, 2}, {1}}

	// a cached session does not hit the runtime again
	rt := parachaintypes.NewMockRuntimeInstance(ctrl)
	rt.EXPECT().ParachainHostValidators().Return(validators, nil)
	rt.EXPECT().ParachainHostNodeFeatures().Return(nil, parachaintypes.ErrRuntimeAPINotSupported)
	rt.EXPECT().ParachainHostSessionIndexForChild().Return(testSession, nil)
	rt.EXPECT().ParachainHostSessionExecutorParams(testSession).
		Return(nil, parachaintypes.ErrRuntimeAPINotSupported)
	rt.EXPECT().ParachainHostMinimumBackingVotes().Return(uint32(0), parachaintypes.ErrRuntimeAPINotSupported)

	cache, err := newSessionCache(2)
	require.NoError(t, err)

	first, err := cache.get(rt, testLeaf, testSession, groups)
	require.NoError(t, err)
	second, err := cache.get(rt, testLeaf, testSession, groups)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, uint32(legacyMinBackingVotes), first.minimumBackingVotes)
	assert.Equal(t, parachaintypes.NewExecutorParams(), first.executorParams)
	assert.Nil(t, first.nodeFeatures)
	require.Len(t, first.validatorToGroup, 3)
	assert.Equal(t, parachaintypes.GroupIndex(0), *first.validatorToGroup[2])
}
