// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ChainSafe/gossamer/dot/types"
	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/lib/crypto"
	"github.com/ChainSafe/gossamer/lib/keystore"
	"github.com/gammazero/workerpool"
	"github.com/paritytech/polkadot-sdk-sub011/config"
	prospectiveparachains "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/prospective-parachains"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

const (
	testLeafNumber = 10
	testSession    = parachaintypes.SessionIndex(1)
)

var (
	testLeaf           = relayHash(testLeafNumber)
	testValidationCode = parachaintypes.ValidationCode{1, 2, 3}
)

// testState is a session of four validators: Alice, the local one, Bob and
// Charlie in group 0 on core 0 for para 1, Dave alone in group 1 on core 1
// for para 2.
type testState struct {
	keystore     keystore.Keystore
	peers        keystore.Keystore
	validators   []parachaintypes.ValidatorID
	disabled     []parachaintypes.ValidatorIndex
	nodeFeatures parachaintypes.NodeFeatures
	claimQueue   parachaintypes.ClaimQueue
	asyncBacking bool
}

func newTestState(t *testing.T, asyncBacking bool) *testState {
	t.Helper()

	keyring, err := keystore.NewSr25519Keyring()
	require.NoError(t, err)
	alice, bob, charlie, dave := keyring.Alice(), keyring.Bob(), keyring.Charlie(), keyring.Dave()

	local := keystore.NewBasicKeystore("local", crypto.Sr25519Type)
	require.NoError(t, local.Insert(alice))

	peers := keystore.NewBasicKeystore("peers", crypto.Sr25519Type)
	require.NoError(t, peers.Insert(bob))
	require.NoError(t, peers.Insert(charlie))
	require.NoError(t, peers.Insert(dave))

	return &testState{
		keystore: local,
		peers:    peers,
		validators: []parachaintypes.ValidatorID{
			parachaintypes.ValidatorID(alice.Public().Encode()),
			parachaintypes.ValidatorID(bob.Public().Encode()),
			parachaintypes.ValidatorID(charlie.Public().Encode()),
			parachaintypes.ValidatorID(dave.Public().Encode()),
		},
		claimQueue:   parachaintypes.ClaimQueue{0: {1}, 1: {2}},
		asyncBacking: asyncBacking,
	}
}

func (s *testState) signingContext(relayParent common.Hash) parachaintypes.SigningContext {
	return parachaintypes.SigningContext{SessionIndex: testSession, ParentHash: relayParent}
}

func (s *testState) runtime(ctrl *gomock.Controller) *parachaintypes.MockRuntimeInstance {
	rt := parachaintypes.NewMockRuntimeInstance(ctrl)
	if s.asyncBacking {
		rt.EXPECT().ParachainHostAsyncBackingParams().
			Return(&parachaintypes.AsyncBackingParams{MaxCandidateDepth: 4}, nil).AnyTimes()
	} else {
		rt.EXPECT().ParachainHostAsyncBackingParams().
			Return(nil, parachaintypes.ErrRuntimeAPINotSupported).AnyTimes()
	}

	code := testValidationCode
	rt.EXPECT().ParachainHostSessionIndexForChild().Return(testSession, nil).AnyTimes()
	rt.EXPECT().ParachainHostValidatorGroups().Return(&parachaintypes.ValidatorGroups{
		Validators: [][]parachaintypes.ValidatorIndex{{0, 1, 2}, {3}},
	}, nil).AnyTimes()
	rt.EXPECT().ParachainHostClaimQueue().Return(s.claimQueue, nil).AnyTimes()
	rt.EXPECT().ParachainHostDisabledValidators().Return(s.disabled, nil).AnyTimes()
	rt.EXPECT().ParachainHostValidators().Return(s.validators, nil).AnyTimes()
	rt.EXPECT().ParachainHostNodeFeatures().Return(s.nodeFeatures, nil).AnyTimes()
	rt.EXPECT().ParachainHostSessionExecutorParams(gomock.Any()).
		Return(nil, parachaintypes.ErrRuntimeAPINotSupported).AnyTimes()
	rt.EXPECT().ParachainHostMinimumBackingVotes().Return(uint32(2), nil).AnyTimes()
	rt.EXPECT().ParachainHostValidationCodeByHash(gomock.Any()).Return(&code, nil).AnyTimes()
	return rt
}

// blockState serves relay blocks 9 to 12 which all share one runtime.
func (s *testState) blockState(ctrl *gomock.Controller) *parachaintypes.MockBlockState {
	rt := s.runtime(ctrl)

	headers := make(map[common.Hash]*types.Header)
	for number := uint(9); number <= 12; number++ {
		headers[relayHash(number)] = &types.Header{Number: number, ParentHash: relayHash(number - 1)}
	}

	blockState := parachaintypes.NewMockBlockState(ctrl)
	blockState.EXPECT().GetHeader(gomock.Any()).
		DoAndReturn(func(hash common.Hash) (*types.Header, error) {
			header, ok := headers[hash]
			if !ok {
				return nil, fmt.Errorf("header %s not found", hash)
			}
			return header, nil
		}).AnyTimes()
	blockState.EXPECT().GetRuntime(gomock.Any()).Return(rt, nil).AnyTimes()
	return blockState
}

// sign signs a statement at the test leaf as one of the remote validators.
func (s *testState) sign(
	t *testing.T,
	validator parachaintypes.ValidatorIndex,
	payload parachaintypes.Statement,
	pvd *parachaintypes.PersistedValidationData,
) parachaintypes.SignedFullStatementWithPVD {
	t.Helper()

	sig, err := parachaintypes.SignStatement(s.peers, payload, s.signingContext(testLeaf), s.validators[validator])
	require.NoError(t, err)

	return parachaintypes.SignedFullStatementWithPVD{
		SignedFullStatement: parachaintypes.SignedFullStatement{
			Payload:        payload,
			ValidatorIndex: validator,
			Signature:      sig,
		},
		PersistedValidationData: pvd,
	}
}

func makeCandidate(
	t *testing.T,
	paraID parachaintypes.ParaID,
	head byte,
) (parachaintypes.CommittedCandidateReceipt, parachaintypes.PersistedValidationData, parachaintypes.PoV) {
	t.Helper()

	pvd := parachaintypes.PersistedValidationData{
		ParentHead:        parachaintypes.HeadData{Data: []byte{head, 0}},
		RelayParentNumber: testLeafNumber,
		MaxPovSize:        1024,
	}
	pvdHash, err := pvd.Hash()
	require.NoError(t, err)

	pov := parachaintypes.PoV{BlockData: []byte{head}}
	povHash, err := pov.Hash()
	require.NoError(t, err)

	codeHash, err := testValidationCode.Hash()
	require.NoError(t, err)

	candidate := parachaintypes.CommittedCandidateReceipt{
		Descriptor: parachaintypes.CandidateDescriptor{
			ParaID:                      paraID,
			RelayParent:                 testLeaf,
			PersistedValidationDataHash: pvdHash,
			PovHash:                     povHash,
			ValidationCodeHash:          codeHash,
		},
		Commitments: parachaintypes.CandidateCommitments{
			HeadData: parachaintypes.HeadData{Data: []byte{head}},
		},
	}
	return candidate, pvd, pov
}

func plainReceipt(
	t *testing.T,
	candidate parachaintypes.CommittedCandidateReceipt,
) (parachaintypes.CandidateReceipt, parachaintypes.CandidateHash) {
	t.Helper()

	receipt, err := candidate.ToPlain()
	require.NoError(t, err)
	hash, err := receipt.Hash()
	require.NoError(t, err)
	return receipt, hash
}

// testOverseer answers the requests of the subsystem on behalf of its
// collaborators and hands every other message to the test.
type testOverseer struct {
	ch       chan any
	received chan any

	rejectIntroduction bool
	notPotentialMember bool
	invalid            bool
	// validators that do not serve PoVs
	withholding map[parachaintypes.ValidatorIndex]bool
	commitments map[common.Hash]parachaintypes.CandidateCommitments
	povs        map[common.Hash]parachaintypes.PoV
}

func newTestOverseer() *testOverseer {
	return &testOverseer{
		ch:          make(chan any),
		received:    make(chan any, 64),
		withholding: make(map[parachaintypes.ValidatorIndex]bool),
		commitments: make(map[common.Hash]parachaintypes.CandidateCommitments),
		povs:        make(map[common.Hash]parachaintypes.PoV),
	}
}

// validates makes the candidate valid and its PoV available. It must be
// called before start.
func (o *testOverseer) validates(t *testing.T, candidate parachaintypes.CommittedCandidateReceipt,
	pov parachaintypes.PoV) {
	t.Helper()

	commitmentsHash, err := candidate.Commitments.Hash()
	require.NoError(t, err)
	o.commitments[commitmentsHash] = candidate.Commitments
	o.povs[candidate.Descriptor.PovHash] = pov
}

// start serves requests until the returned function is called.
func (o *testOverseer) start() (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case msg := <-o.ch:
				o.handle(msg)
			case <-quit:
				return
			}
		}
	}()

	return func() {
		close(quit)
		<-done
	}
}

func (o *testOverseer) handle(msg any) {
	switch msg := msg.(type) {
	case prospectiveparachains.GetMinimumRelayParents:
		msg.Sender <- []prospectiveparachains.ParaIDBlockNumber{
			{ParaID: 1, BlockNumber: testLeafNumber},
			{ParaID: 2, BlockNumber: testLeafNumber},
		}
	case prospectiveparachains.IntroduceSecondedCandidate:
		msg.Response <- !o.rejectIntroduction
	case prospectiveparachains.GetHypotheticalMembership:
		items := make([]prospectiveparachains.HypotheticalMembershipResponseItem, 0, len(msg.Candidates))
		for _, candidate := range msg.Candidates {
			item := prospectiveparachains.HypotheticalMembershipResponseItem{HypotheticalCandidate: candidate}
			if !o.notPotentialMember && msg.FragmentChainRelayParent != nil {
				item.HypotheticalMembership = []common.Hash{*msg.FragmentChainRelayParent}
			}
			items = append(items, item)
		}
		msg.Response <- items
	case parachaintypes.AvailabilityDistributionMessageFetchPoV:
		pov, ok := o.povs[msg.PovHash]
		if !ok || o.withholding[msg.FromValidator] {
			msg.PovCh <- parachaintypes.OverseerFuncRes[parachaintypes.PoV]{Err: errors.New("pov unavailable")}
			return
		}
		msg.PovCh <- parachaintypes.OverseerFuncRes[parachaintypes.PoV]{Data: pov}
	case parachaintypes.CandidateValidationMessageValidateFromExhaustive:
		msg.Ch <- parachaintypes.OverseerFuncRes[parachaintypes.ValidationResult]{
			Data: parachaintypes.ValidationResult{
				IsValid:                 !o.invalid,
				CandidateCommitments:    o.commitments[msg.CandidateReceipt.CommitmentsHash],
				PersistedValidationData: msg.PersistedValidationData,
			},
		}
	case parachaintypes.AvailabilityStoreMessageStoreAvailableData:
		msg.Sender <- nil
	default:
		o.received <- msg
	}
}

func expectMessage[T any](t *testing.T, o *testOverseer) T {
	t.Helper()

	var zero T
	select {
	case msg := <-o.received:
		typed, ok := msg.(T)
		require.Truef(t, ok, "expected %T, got %T", zero, msg)
		return typed
	case <-time.After(time.Second):
		t.Fatalf("no %T was sent", zero)
	}
	return zero
}

func assertNoMessage(t *testing.T, o *testOverseer) {
	t.Helper()

	select {
	case msg := <-o.received:
		t.Fatalf("unexpected message %T", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func receiveCommand(t *testing.T, cb *CandidateBacking) validatedCandidateCommand {
	t.Helper()

	select {
	case command := <-cb.validationResults:
		return command
	case <-time.After(time.Second):
		t.Fatal("no validation result")
	}
	return nil
}

// newTestBacking returns a subsystem with a running validation pool, talking
// to the overseer. The overseer must be configured already.
func newTestBacking(t *testing.T, s *testState, o *testOverseer, cfg config.BackingConfig) *CandidateBacking {
	t.Helper()

	ctrl := gomock.NewController(t)
	cb, err := New(o.ch, s.blockState(ctrl), s.keystore, cfg, nil)
	require.NoError(t, err)

	t.Cleanup(o.start())

	cb.validationPool = workerpool.New(2)
	t.Cleanup(cb.validationPool.Stop)
	return cb
}

func activateLeaf(t *testing.T, cb *CandidateBacking, number uint) {
	t.Helper()

	err := cb.ProcessActiveLeavesUpdateSignal(context.Background(), parachaintypes.ActiveLeavesUpdateSignal{
		Activated: &parachaintypes.ActivatedLeaf{Hash: relayHash(number), Number: uint32(number)},
	})
	require.NoError(t, err)
}

func expectBacked(
	t *testing.T,
	o *testOverseer,
	asyncBacking bool,
	candidate parachaintypes.CommittedCandidateReceipt,
) {
	t.Helper()

	receipt, hash := plainReceipt(t, candidate)
	if asyncBacking {
		assert.Equal(t, prospectiveparachains.CandidateBacked{
			ParaID:        candidate.Descriptor.ParaID,
			CandidateHash: hash,
		}, expectMessage[prospectiveparachains.CandidateBacked](t, o))
	} else {
		assert.Equal(t, parachaintypes.ProvisionerMessageProvisionableData{
			RelayParent:       candidate.Descriptor.RelayParent,
			ProvisionableData: parachaintypes.ProvisionableDataBackedCandidate(receipt),
		}, expectMessage[parachaintypes.ProvisionerMessageProvisionableData](t, o))
	}
	assert.Equal(t, parachaintypes.StatementDistributionMessageBacked(hash),
		expectMessage[parachaintypes.StatementDistributionMessageBacked](t, o))
}

func TestNew(t *testing.T) {
	t.Parallel()

	cb, err := New(nil, nil, nil, config.BackingConfig{FreeCodeUpgradesPerBlock: 3}, prometheus.NewRegistry())
	require.NoError(t, err)

	expected := config.DefaultBackingConfig()
	expected.FreeCodeUpgradesPerBlock = 3
	assert.Equal(t, expected, cb.cfg)
	assert.Equal(t, parachaintypes.CandidateBacking, cb.Name())
	assert.Equal(t, expected.ResultQueueSize, cap(cb.validationResults))
}

func TestCandidateBacking_SecondAndBack(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		asyncBacking bool
	}{
		"async_backing":          {asyncBacking: true},
		"async_backing_disabled": {asyncBacking: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := newTestState(t, tt.asyncBacking)
			candidate, pvd, pov := makeCandidate(t, 1, 1)
			receipt, hash := plainReceipt(t, candidate)

			o := newTestOverseer()
			o.validates(t, candidate, pov)
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
			activateLeaf(t, cb, testLeafNumber)

			err := cb.handleSecondMessage(ctx, SecondMessage{
				RelayParent:             testLeaf,
				CandidateReceipt:        receipt,
				PersistedValidationData: pvd,
				PoV:                     pov,
			})
			require.NoError(t, err)

			command := receiveCommand(t, cb)
			require.IsType(t, secondCommand{}, command)
			require.NoError(t, cb.handleValidatedCandidateCommand(ctx, command))

			share := expectMessage[parachaintypes.StatementDistributionMessageShare](t, o)
			assert.Equal(t, testLeaf, share.RelayParent)
			statement := share.SignedFullStatementWithPVD
			assert.Equal(t, parachaintypes.Seconded(candidate), statement.SignedFullStatement.Payload)
			assert.Equal(t, parachaintypes.ValidatorIndex(0), statement.SignedFullStatement.ValidatorIndex)
			require.NotNil(t, statement.PersistedValidationData)
			assert.Equal(t, pvd, *statement.PersistedValidationData)

			ok, err := statement.SignedFullStatement.Verify(s.validators[0], s.signingContext(testLeaf))
			require.NoError(t, err)
			assert.True(t, ok)

			seconded := expectMessage[parachaintypes.CollatorProtocolMessageSeconded](t, o)
			assert.Equal(t, testLeaf, seconded.Parent)
			assert.Equal(t, statement.SignedFullStatement, seconded.Stmt)
			assert.True(t, cb.perCandidate[hash].secondedLocally)

			err = cb.handleStatementMessage(ctx, StatementMessage{
				RelayParent:         testLeaf,
				SignedFullStatement: s.sign(t, 1, parachaintypes.Valid(hash), nil),
			})
			require.NoError(t, err)
			expectBacked(t, o, tt.asyncBacking, candidate)

			resCh := make(chan map[parachaintypes.ParaID][]*parachaintypes.BackedCandidate, 1)
			cb.handleGetBackableCandidatesMessage(GetBackableCandidatesMessage{
				Candidates: map[parachaintypes.ParaID][]parachaintypes.CandidateHashAndRelayParent{
					1: {{CandidateHash: hash, CandidateRelayParent: testLeaf}},
				},
				ResCh: resCh,
			})
			backable := <-resCh
			require.Len(t, backable[1], 1)
			assert.Equal(t, candidate, backable[1][0].Candidate)
			assert.Equal(t, []bool{true, true, false}, backable[1][0].ValidatorIndices)
			assert.Len(t, backable[1][0].ValidityVotes, 2)
			assert.Nil(t, backable[1][0].InjectedCoreIndex)

			assert.Equal(t, float64(1), testutil.ToFloat64(cb.metrics.candidatesSeconded))
			assert.Equal(t, float64(1), testutil.ToFloat64(cb.metrics.candidatesBacked))
			assertNoMessage(t, o)
		})
	}
}

func TestCandidateBacking_AttestCandidateSecondedByPeer(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		asyncBacking bool
	}{
		"async_backing":          {asyncBacking: true},
		"async_backing_disabled": {asyncBacking: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := newTestState(t, tt.asyncBacking)
			candidate, pvd, pov := makeCandidate(t, 1, 1)
			_, hash := plainReceipt(t, candidate)

			o := newTestOverseer()
			o.validates(t, candidate, pov)
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
			activateLeaf(t, cb, testLeafNumber)

			err := cb.handleStatementMessage(ctx, StatementMessage{
				RelayParent:         testLeaf,
				SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
			})
			require.NoError(t, err)
			require.Contains(t, cb.perCandidate, hash)
			assert.False(t, cb.perCandidate[hash].secondedLocally)

			command := receiveCommand(t, cb)
			require.IsType(t, attestCommand{}, command)
			require.NoError(t, cb.handleValidatedCandidateCommand(ctx, command))

			share := expectMessage[parachaintypes.StatementDistributionMessageShare](t, o)
			assert.Equal(t, parachaintypes.Valid(hash), share.SignedFullStatementWithPVD.SignedFullStatement.Payload)
			assert.Nil(t, share.SignedFullStatementWithPVD.PersistedValidationData)
			expectBacked(t, o, tt.asyncBacking, candidate)

			rpState := cb.perRelayParent[testLeaf]
			assert.Contains(t, rpState.issuedStatements, hash)
			assert.Empty(t, rpState.fallbacks)
			assert.Empty(t, rpState.awaitingValidation)
			assertNoMessage(t, o)
		})
	}
}

func TestCandidateBacking_FetchPoVFromOtherBacker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestState(t, true)
	candidate, pvd, pov := makeCandidate(t, 1, 1)
	_, hash := plainReceipt(t, candidate)

	o := newTestOverseer()
	o.validates(t, candidate, pov)
	o.withholding[1] = true
	cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
	activateLeaf(t, cb, testLeafNumber)

	err := cb.handleStatementMessage(ctx, StatementMessage{
		RelayParent:         testLeaf,
		SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
	})
	require.NoError(t, err)

	// Charlie votes while the PoV is still being fetched from Bob
	err = cb.handleStatementMessage(ctx, StatementMessage{
		RelayParent:         testLeaf,
		SignedFullStatement: s.sign(t, 2, parachaintypes.Valid(hash), nil),
	})
	require.NoError(t, err)
	expectBacked(t, o, true, candidate)
	assert.Equal(t, []parachaintypes.ValidatorIndex{2}, cb.perRelayParent[testLeaf].fallbacks[hash].backing)

	command := receiveCommand(t, cb)
	require.IsType(t, attestNoPoVCommand{}, command)
	require.NoError(t, cb.handleValidatedCandidateCommand(ctx, command))

	command = receiveCommand(t, cb)
	require.IsType(t, attestCommand{}, command)
	require.NoError(t, cb.handleValidatedCandidateCommand(ctx, command))

	share := expectMessage[parachaintypes.StatementDistributionMessageShare](t, o)
	assert.Equal(t, parachaintypes.Valid(hash), share.SignedFullStatementWithPVD.SignedFullStatement.Payload)

	// already reported as backed
	assertNoMessage(t, o)
}

func TestCandidateBacking_SecondingRejected(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		configure       func(o *testOverseer)
		expectedInvalid bool
	}{
		"invalid_candidate": {
			configure:       func(o *testOverseer) { o.invalid = true },
			expectedInvalid: true,
		},
		"rejected_by_prospective_parachains": {
			configure:       func(o *testOverseer) { o.rejectIntroduction = true },
			expectedInvalid: true,
		},
		"not_a_potential_member": {
			configure: func(o *testOverseer) { o.notPotentialMember = true },
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := newTestState(t, true)
			candidate, pvd, pov := makeCandidate(t, 1, 1)
			receipt, hash := plainReceipt(t, candidate)

			o := newTestOverseer()
			o.validates(t, candidate, pov)
			tt.configure(o)
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
			activateLeaf(t, cb, testLeafNumber)

			err := cb.handleSecondMessage(ctx, SecondMessage{
				RelayParent:             testLeaf,
				CandidateReceipt:        receipt,
				PersistedValidationData: pvd,
				PoV:                     pov,
			})
			require.NoError(t, err)
			require.NoError(t, cb.handleValidatedCandidateCommand(ctx, receiveCommand(t, cb)))

			if tt.expectedInvalid {
				assert.Equal(t, parachaintypes.CollatorProtocolMessageInvalid{
					Parent:           testLeaf,
					CandidateReceipt: receipt,
				}, expectMessage[parachaintypes.CollatorProtocolMessageInvalid](t, o))
			}
			assertNoMessage(t, o)

			assert.NotContains(t, cb.perRelayParent[testLeaf].issuedStatements, hash)
			assert.NotContains(t, cb.perCandidate, hash)
			assert.Equal(t, float64(0), testutil.ToFloat64(cb.metrics.candidatesSeconded))
		})
	}
}

func TestCandidateBacking_IgnoredSecondRequests(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		asyncBacking bool
		paraID       parachaintypes.ParaID
		disabled     []parachaintypes.ValidatorIndex
		modify       func(receipt *parachaintypes.CandidateReceipt, pvd *parachaintypes.PersistedValidationData)
		setup        func(cb *CandidateBacking)
	}{
		"wrong_persisted_validation_data": {
			asyncBacking: true,
			paraID:       1,
			modify: func(_ *parachaintypes.CandidateReceipt, pvd *parachaintypes.PersistedValidationData) {
				pvd.MaxPovSize++
			},
		},
		"relay_parent_out_of_view": {
			asyncBacking: true,
			paraID:       1,
			modify: func(receipt *parachaintypes.CandidateReceipt, _ *parachaintypes.PersistedValidationData) {
				receipt.Descriptor.RelayParent = relayHash(3)
			},
		},
		"para_not_assigned_to_our_core": {
			asyncBacking: true,
			paraID:       2,
		},
		"local_validator_disabled": {
			asyncBacking: true,
			paraID:       1,
			disabled:     []parachaintypes.ValidatorIndex{0},
		},
		"already_seconded_without_async_backing": {
			paraID: 1,
			setup: func(cb *CandidateBacking) {
				cb.perRelayParent[testLeaf].seconded = &parachaintypes.CandidateHash{Value: repeatHash(9)}
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestState(t, tt.asyncBacking)
			s.disabled = tt.disabled
			candidate, pvd, pov := makeCandidate(t, tt.paraID, 1)
			receipt, _ := plainReceipt(t, candidate)
			if tt.modify != nil {
				tt.modify(&receipt, &pvd)
			}

			o := newTestOverseer()
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
			activateLeaf(t, cb, testLeafNumber)
			if tt.setup != nil {
				tt.setup(cb)
			}

			err := cb.handleSecondMessage(context.Background(), SecondMessage{
				RelayParent:             testLeaf,
				CandidateReceipt:        receipt,
				PersistedValidationData: pvd,
				PoV:                     pov,
			})
			require.NoError(t, err)

			assert.Empty(t, cb.perRelayParent[testLeaf].awaitingValidation)
			assert.Empty(t, cb.validationResults)
			assertNoMessage(t, o)
		})
	}
}

func TestCandidateBacking_CanSecond(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		asyncBacking       bool
		notPotentialMember bool
		relayParent        common.Hash
		expected           bool
	}{
		"potential_member": {
			asyncBacking: true,
			relayParent:  testLeaf,
			expected:     true,
		},
		"not_a_potential_member": {
			asyncBacking:       true,
			notPotentialMember: true,
			relayParent:        testLeaf,
		},
		"async_backing_disabled": {
			relayParent: testLeaf,
		},
		"unknown_relay_parent": {
			asyncBacking: true,
			relayParent:  relayHash(3),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestState(t, tt.asyncBacking)
			o := newTestOverseer()
			o.notPotentialMember = tt.notPotentialMember
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
			activateLeaf(t, cb, testLeafNumber)

			resCh := make(chan bool, 1)
			err := cb.handleCanSecondMessage(context.Background(), CanSecondMessage{
				CandidateParaID:      1,
				CandidateRelayParent: tt.relayParent,
				CandidateHash:        parachaintypes.CandidateHash{Value: repeatHash(1)},
				ParentHeadDataHash:   repeatHash(2),
				ResponseCh:           resCh,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, <-resCh)
		})
	}
}

func TestCandidateBacking_StatementImport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejected_by_prospective_parachains", func(t *testing.T) {
		t.Parallel()

		s := newTestState(t, true)
		candidate, pvd, _ := makeCandidate(t, 1, 1)
		_, hash := plainReceipt(t, candidate)

		o := newTestOverseer()
		o.rejectIntroduction = true
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
		activateLeaf(t, cb, testLeafNumber)

		err := cb.handleStatementMessage(ctx, StatementMessage{
			RelayParent:         testLeaf,
			SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
		})
		require.NoError(t, err)

		assert.NotContains(t, cb.perCandidate, hash)
		_, ok := cb.perRelayParent[testLeaf].table.getCandidate(hash)
		assert.False(t, ok)
		assert.Empty(t, cb.perRelayParent[testLeaf].awaitingValidation)
		assertNoMessage(t, o)
	})

	t.Run("seconded_for_para_not_scheduled_on_sender_core", func(t *testing.T) {
		t.Parallel()

		// bob is in group 0, whose core only claims para 1
		s := newTestState(t, true)
		candidate, pvd, _ := makeCandidate(t, 2, 1)
		_, hash := plainReceipt(t, candidate)

		o := newTestOverseer()
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
		activateLeaf(t, cb, testLeafNumber)

		err := cb.processMessage(ctx, StatementMessage{
			RelayParent:         testLeaf,
			SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
		})
		require.NoError(t, err)

		assert.NotContains(t, cb.perCandidate, hash)
		_, ok := cb.perRelayParent[testLeaf].table.getCandidate(hash)
		assert.False(t, ok)
		assert.Empty(t, cb.perRelayParent[testLeaf].awaitingValidation)
		assertNoMessage(t, o)
	})

	t.Run("seconded_without_persisted_validation_data", func(t *testing.T) {
		t.Parallel()

		s := newTestState(t, true)
		candidate, _, _ := makeCandidate(t, 1, 1)
		_, hash := plainReceipt(t, candidate)

		o := newTestOverseer()
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
		activateLeaf(t, cb, testLeafNumber)

		err := cb.handleStatementMessage(ctx, StatementMessage{
			RelayParent:         testLeaf,
			SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), nil),
		})
		require.NoError(t, err)
		assert.NotContains(t, cb.perCandidate, hash)
		assertNoMessage(t, o)
	})

	t.Run("sender_disabled", func(t *testing.T) {
		t.Parallel()

		s := newTestState(t, false)
		s.disabled = []parachaintypes.ValidatorIndex{1}
		candidate, pvd, _ := makeCandidate(t, 1, 1)
		_, hash := plainReceipt(t, candidate)

		o := newTestOverseer()
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
		activateLeaf(t, cb, testLeafNumber)

		err := cb.handleStatementMessage(ctx, StatementMessage{
			RelayParent:         testLeaf,
			SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
		})
		require.NoError(t, err)
		assert.NotContains(t, cb.perCandidate, hash)
		assertNoMessage(t, o)
	})

	t.Run("unknown_relay_parent", func(t *testing.T) {
		t.Parallel()

		s := newTestState(t, false)
		candidate, pvd, _ := makeCandidate(t, 1, 1)

		o := newTestOverseer()
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())

		err := cb.handleStatementMessage(ctx, StatementMessage{
			RelayParent:         testLeaf,
			SignedFullStatement: s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
		})
		require.NoError(t, err)
		assert.Empty(t, cb.perCandidate)
		assertNoMessage(t, o)
	})

	t.Run("multiple_candidates_reported", func(t *testing.T) {
		t.Parallel()

		s := newTestState(t, false)
		s.disabled = []parachaintypes.ValidatorIndex{0}
		candidateA, pvdA, _ := makeCandidate(t, 1, 1)
		candidateB, pvdB, _ := makeCandidate(t, 1, 2)

		o := newTestOverseer()
		cb := newTestBacking(t, s, o, config.DefaultBackingConfig())
		activateLeaf(t, cb, testLeafNumber)

		first := s.sign(t, 1, parachaintypes.Seconded(candidateA), &pvdA)
		second := s.sign(t, 1, parachaintypes.Seconded(candidateB), &pvdB)
		for _, statement := range []parachaintypes.SignedFullStatementWithPVD{first, second} {
			err := cb.handleStatementMessage(ctx, StatementMessage{RelayParent: testLeaf, SignedFullStatement: statement})
			require.NoError(t, err)
		}

		assert.Equal(t, parachaintypes.ProvisionerMessageProvisionableData{
			RelayParent: testLeaf,
			ProvisionableData: parachaintypes.ProvisionableDataMisbehaviorReport{
				ValidatorIndex: 1,
				Misbehaviour: parachaintypes.MultipleCandidates{
					First: parachaintypes.SignedCandidate{
						Candidate: candidateA,
						Signature: first.SignedFullStatement.Signature,
					},
					Second: parachaintypes.SignedCandidate{
						Candidate: candidateB,
						Signature: second.SignedFullStatement.Signature,
					},
				},
			},
		}, expectMessage[parachaintypes.ProvisionerMessageProvisionableData](t, o))
		assertNoMessage(t, o)
	})
}

func TestCandidateBacking_ProcessActiveLeavesUpdateSignal(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		asyncBacking bool
		// relay parents kept once leaf 11 is activated and leaf 10 deactivated
		expectedRelayParents []common.Hash
	}{
		"async_backing": {
			asyncBacking:         true,
			expectedRelayParents: []common.Hash{relayHash(10), relayHash(11)},
		},
		"async_backing_disabled": {
			expectedRelayParents: []common.Hash{relayHash(11)},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestState(t, tt.asyncBacking)
			o := newTestOverseer()
			cb := newTestBacking(t, s, o, config.DefaultBackingConfig())

			activateLeaf(t, cb, 10)
			assert.Equal(t, map[common.Hash]bool{testLeaf: tt.asyncBacking}, cb.perLeaf)
			require.Contains(t, cb.perRelayParent, testLeaf)
			assert.Equal(t, tt.asyncBacking, cb.perRelayParent[testLeaf].asyncBacking)
			assert.Equal(t, tt.asyncBacking, cb.perRelayParent[testLeaf].table.allowMultipleSeconded)
			if tt.asyncBacking {
				assert.Equal(t, []common.Hash{testLeaf}, cb.implicitView.activeLeaves())
			} else {
				assert.Empty(t, cb.implicitView.activeLeaves())
			}

			staleCandidate := parachaintypes.CandidateHash{Value: repeatHash(1)}
			cb.perCandidate[staleCandidate] = &perCandidateState{relayParent: relayHash(9)}

			activateLeaf(t, cb, 11)
			err := cb.ProcessActiveLeavesUpdateSignal(context.Background(), parachaintypes.ActiveLeavesUpdateSignal{
				Deactivated: []common.Hash{testLeaf},
			})
			require.NoError(t, err)

			relayParents := make([]common.Hash, 0, len(cb.perRelayParent))
			for relayParent := range cb.perRelayParent {
				relayParents = append(relayParents, relayParent)
			}
			assert.ElementsMatch(t, tt.expectedRelayParents, relayParents)
			assert.NotContains(t, cb.perCandidate, staleCandidate)

			err = cb.ProcessActiveLeavesUpdateSignal(context.Background(), parachaintypes.ActiveLeavesUpdateSignal{
				Deactivated: []common.Hash{relayHash(11)},
			})
			require.NoError(t, err)
			assert.Empty(t, cb.perLeaf)
			assert.Empty(t, cb.perRelayParent)
		})
	}
}

func TestCandidateBacking_CodeUpgradeBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestState(t, true)
	// a disabled local validator only imports
	s.disabled = []parachaintypes.ValidatorIndex{0}

	code := parachaintypes.ValidationCode{4, 5, 6}
	candidateA, pvdA, _ := makeCandidate(t, 1, 1)
	candidateA.Commitments.NewValidationCode = &code
	candidateB, pvdB, _ := makeCandidate(t, 1, 2)
	candidateB.Commitments.NewValidationCode = &code
	_, hashA := plainReceipt(t, candidateA)
	_, hashB := plainReceipt(t, candidateB)

	cfg := config.DefaultBackingConfig()
	cfg.FreeCodeUpgradesPerBlock = 1

	o := newTestOverseer()
	cb := newTestBacking(t, s, o, cfg)
	activateLeaf(t, cb, testLeafNumber)

	back := func(candidate parachaintypes.CommittedCandidateReceipt, hash parachaintypes.CandidateHash,
		pvd parachaintypes.PersistedValidationData) {
		for _, statement := range []parachaintypes.SignedFullStatementWithPVD{
			s.sign(t, 1, parachaintypes.Seconded(candidate), &pvd),
			s.sign(t, 2, parachaintypes.Valid(hash), nil),
		} {
			err := cb.handleStatementMessage(ctx, StatementMessage{RelayParent: testLeaf, SignedFullStatement: statement})
			require.NoError(t, err)
		}
	}

	back(candidateA, hashA, pvdA)
	expectBacked(t, o, true, candidateA)

	back(candidateB, hashB, pvdB)
	assertNoMessage(t, o)
	assert.Contains(t, cb.perRelayParent[testLeaf].backed, hashB)

	activateLeaf(t, cb, testLeafNumber+1)
	expectBacked(t, o, true, candidateB)
	assertNoMessage(t, o)
}

func TestCandidateBacking_Run(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestState(t, true)
	o := newTestOverseer()
	stopOverseer := o.start()
	defer stopOverseer()

	ctrl := gomock.NewController(t)
	cb, err := New(o.ch, s.blockState(ctrl), s.keystore, config.BackingConfig{}, prometheus.NewRegistry())
	require.NoError(t, err)

	overseerToSubsystem := make(chan any)
	done := make(chan struct{})
	go func() {
		cb.Run(context.Background(), overseerToSubsystem)
		close(done)
	}()

	overseerToSubsystem <- parachaintypes.ActiveLeavesUpdateSignal{
		Activated: &parachaintypes.ActivatedLeaf{Hash: testLeaf, Number: testLeafNumber},
	}
	overseerToSubsystem <- parachaintypes.BlockFinalizedSignal{Hash: relayHash(9), BlockNumber: 9}
	overseerToSubsystem <- struct{}{}

	resCh := make(chan bool, 1)
	overseerToSubsystem <- CanSecondMessage{
		CandidateParaID:      1,
		CandidateRelayParent: testLeaf,
		CandidateHash:        parachaintypes.CandidateHash{Value: repeatHash(1)},
		ParentHeadDataHash:   repeatHash(2),
		ResponseCh:           resCh,
	}
	assert.True(t, <-resCh)

	overseerToSubsystem <- parachaintypes.Conclude{}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subsystem did not stop")
	}
}

func TestCandidateBacking_RunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cb, err := New(nil, nil, nil, config.BackingConfig{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cb.Run(ctx, make(chan any))
		close(done)
	}()

	cancel()
	<-done
}

func TestCandidateBacking_UnknownMessage(t *testing.T) {
	t.Parallel()

	cb, err := New(nil, nil, nil, config.BackingConfig{}, nil)
	require.NoError(t, err)

	err = cb.processMessage(context.Background(), struct{}{})
	require.ErrorIs(t, err, parachaintypes.ErrUnknownOverseerMessage)
}
