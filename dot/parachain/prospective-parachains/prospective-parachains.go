// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package prospectiveparachains

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/hashicorp/go-multierror"
	"github.com/paritytech/polkadot-sdk-sub011/config"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	inclusionemulator "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util/inclusion-emulator"
	"github.com/paritytech/polkadot-sdk-sub011/internal/log"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "prospective_parachains"), log.SetLevel(log.Debug))

// relayBlockViewData holds the fragment chains of every para scheduled at an active leaf
type relayBlockViewData struct {
	fragmentChains map[parachaintypes.ParaID]*FragmentChain
}

type view struct {
	// Active leaves which support async backing, and their fragment chains
	activeLeaves map[common.Hash]*relayBlockViewData
	// The candidates known per para, shared by the chains of every leaf
	storage map[parachaintypes.ParaID]*CandidateStorage
}

func newView() *view {
	return &view{
		activeLeaves: make(map[common.Hash]*relayBlockViewData),
		storage:      make(map[parachaintypes.ParaID]*CandidateStorage),
	}
}

// fragmentChains returns the chains of the para in every active leaf
func (v *view) fragmentChains(para parachaintypes.ParaID) map[common.Hash]*FragmentChain {
	chains := make(map[common.Hash]*FragmentChain)
	for leaf, data := range v.activeLeaves {
		if chain, ok := data.fragmentChains[para]; ok {
			chains[leaf] = chain
		}
	}
	return chains
}

type ProspectiveParachains struct {
	SubsystemToOverseer chan<- any

	blockState     parachaintypes.BlockState
	maxUnconnected uint
	view           *view
}

// Name returns the name of the subsystem
func (*ProspectiveParachains) Name() parachaintypes.SubSystemName {
	return parachaintypes.ProspectiveParachains
}

// NewProspectiveParachains creates a new ProspectiveParachain subsystem
func NewProspectiveParachains(
	overseerChan chan<- any,
	blockState parachaintypes.BlockState,
	cfg config.ProspectiveParachainsConfig,
) *ProspectiveParachains {
	maxUnconnected := cfg.MaxUnconnectedCandidates
	if maxUnconnected == 0 {
		maxUnconnected = defaultMaxUnconnectedCandidates
	}

	return &ProspectiveParachains{
		SubsystemToOverseer: overseerChan,
		blockState:          blockState,
		maxUnconnected:      maxUnconnected,
		view:                newView(),
	}
}

// Run starts the ProspectiveParachains subsystem
func (pp *ProspectiveParachains) Run(ctx context.Context, overseerToSubsystem <-chan any) {
	for {
		select {
		case msg, ok := <-overseerToSubsystem:
			if !ok {
				return
			}

			if _, conclude := msg.(parachaintypes.Conclude); conclude {
				pp.Stop()
				return
			}

			if err := pp.processMessage(msg); err != nil {
				logger.Errorf("processing overseer message: %s", err)
			}
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("ctx error: %s", err)
			}
			return
		}
	}
}

func (*ProspectiveParachains) Stop() {}

func (pp *ProspectiveParachains) processMessage(msg any) error {
	switch msg := msg.(type) {
	case parachaintypes.ActiveLeavesUpdateSignal:
		return pp.ProcessActiveLeavesUpdateSignal(msg)
	case parachaintypes.BlockFinalizedSignal:
		return pp.ProcessBlockFinalizedSignal(msg)
	case IntroduceSecondedCandidate:
		msg.Response <- pp.introduceSecondedCandidate(msg.IntroduceSecondedCandidateRequest)
	case CandidateBacked:
		pp.candidateBacked(msg.ParaID, msg.CandidateHash)
	case GetBackableCandidates:
		msg.Response <- pp.getBackableCandidates(msg)
	case GetHypotheticalMembership:
		msg.Response <- pp.getHypotheticalMembership(msg.HypotheticalMembershipRequest)
	case GetMinimumRelayParents:
		msg.Sender <- pp.getMinimumRelayParents(msg.RelayChainBlockHash)
	case GetProspectiveValidationData:
		msg.Sender <- pp.getProspectiveValidationData(msg.ProspectiveValidationDataRequest)
	default:
		return fmt.Errorf("%w: %T", parachaintypes.ErrUnknownOverseerMessage, msg)
	}

	return nil
}

// ProcessActiveLeavesUpdateSignal processes active leaves update signal
func (pp *ProspectiveParachains) ProcessActiveLeavesUpdateSignal(signal parachaintypes.ActiveLeavesUpdateSignal) error {
	for _, deactivated := range signal.Deactivated {
		delete(pp.view.activeLeaves, deactivated)
	}

	var err error
	if signal.Activated != nil {
		err = pp.activateLeaf(signal.Activated.Hash)
	}

	pp.pruneStorage()
	return err
}

// ProcessBlockFinalizedSignal processes block finalized signal
func (*ProspectiveParachains) ProcessBlockFinalizedSignal(parachaintypes.BlockFinalizedSignal) error {
	// NOTE: this subsystem does not process block finalized signal
	return nil
}

func (pp *ProspectiveParachains) activateLeaf(leafHash common.Hash) error {
	rt, err := pp.blockState.GetRuntime(leafHash)
	if err != nil {
		return fmt.Errorf("getting runtime for leaf %s: %w", leafHash, err)
	}

	asyncBackingParams, err := rt.ParachainHostAsyncBackingParams()
	if errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported) {
		logger.Tracef("leaf %s does not support async backing", leafHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting async backing params: %w", err)
	}

	claimQueue, err := rt.ParachainHostClaimQueue()
	if err != nil {
		return fmt.Errorf("getting claim queue: %w", err)
	}

	leafInfo, err := pp.blockInfo(leafHash)
	if err != nil {
		return err
	}

	ancestry, err := pp.fetchAncestry(leafInfo, uint(asyncBackingParams.AllowedAncestryLen))
	if err != nil {
		return fmt.Errorf("fetching ancestry of leaf %s: %w", leafHash, err)
	}

	leafData := &relayBlockViewData{
		fragmentChains: make(map[parachaintypes.ParaID]*FragmentChain),
	}

	var errs *multierror.Error
	for para := range claimQueue.Paras() {
		chain, err := pp.buildFragmentChain(rt, para, *leafInfo, ancestry, uint(asyncBackingParams.MaxCandidateDepth))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("para %d: %w", para, err))
			continue
		}
		if chain == nil {
			continue
		}

		logger.Tracef("fragment chain of para %d at leaf %s: %d candidates",
			para, leafHash, chain.Len())
		leafData.fragmentChains[para] = chain
	}

	pp.view.activeLeaves[leafHash] = leafData
	return errs.ErrorOrNil()
}

// buildFragmentChain populates the fragment chain of the para at the leaf. The
// candidates pending availability are added to the para storage as backed.
func (pp *ProspectiveParachains) buildFragmentChain(
	rt parachaintypes.RuntimeInstance,
	para parachaintypes.ParaID,
	leafInfo inclusionemulator.RelayChainBlockInfo,
	ancestry []inclusionemulator.RelayChainBlockInfo,
	maxDepth uint,
) (*FragmentChain, error) {
	backingState, err := rt.ParachainHostParaBackingState(para)
	if err != nil {
		return nil, fmt.Errorf("getting backing state: %w", err)
	}
	if backingState == nil {
		logger.Tracef("para %d is not registered", para)
		return nil, nil
	}

	storage, ok := pp.view.storage[para]
	if !ok {
		storage = NewCandidateStorage()
		pp.view.storage[para] = storage
	}

	pendingAvailability, err := pp.preparePendingAvailability(storage, backingState)
	if err != nil {
		return nil, err
	}

	constraints := backingState.Constraints.Clone()
	scope, err := NewScopeWithAncestors(leafInfo, constraints, pendingAvailability, maxDepth, ancestry)
	if err != nil {
		return nil, fmt.Errorf("creating scope: %w", err)
	}

	chain := PopulateFragmentChain(scope, storage)
	chain.maxUnconnected = pp.maxUnconnected
	return chain, nil
}

// preparePendingAvailability adds the candidates pending availability to the
// storage, reconstructing their persisted validation data from the chain of
// required parents.
func (pp *ProspectiveParachains) preparePendingAvailability(
	storage *CandidateStorage,
	backingState *parachaintypes.BackingState,
) ([]PendingAvailability, error) {
	requiredParent := backingState.Constraints.RequiredParent
	pendingAvailability := make([]PendingAvailability, 0, len(backingState.PendingAvailability))

	for _, pending := range backingState.PendingAvailability {
		relayParentHeader, err := pp.blockState.GetHeader(pending.Descriptor.RelayParent)
		if err != nil {
			return nil, fmt.Errorf("getting relay parent of pending candidate %s: %w", pending.CandidateHash, err)
		}

		relayParent := inclusionemulator.RelayChainBlockInfo{
			Hash:        pending.Descriptor.RelayParent,
			Number:      pending.RelayParentNumber,
			StorageRoot: relayParentHeader.StateRoot,
		}

		pvd := parachaintypes.PersistedValidationData{
			ParentHead:             requiredParent,
			RelayParentNumber:      uint32(pending.RelayParentNumber),
			RelayParentStorageRoot: relayParent.StorageRoot,
			MaxPovSize:             pending.MaxPoVSize,
		}

		candidate := parachaintypes.CommittedCandidateReceipt{
			Descriptor:  pending.Descriptor,
			Commitments: pending.Commitments,
		}

		_, err = storage.AddCandidate(candidate, pvd, CandidateStateBacked)
		switch {
		case errors.Is(err, ErrCandidateAlreadyKnown):
			storage.MarkBacked(pending.CandidateHash)
		case err != nil:
			// the following candidates cannot build on this one
			logger.Warnf("adding pending availability candidate %s: %s", pending.CandidateHash, err)
			return pendingAvailability, nil
		}

		pendingAvailability = append(pendingAvailability, PendingAvailability{
			CandidateHash: pending.CandidateHash,
			RelayParent:   relayParent,
		})
		requiredParent = pending.Commitments.HeadData
	}

	return pendingAvailability, nil
}

func (pp *ProspectiveParachains) blockInfo(hash common.Hash) (*inclusionemulator.RelayChainBlockInfo, error) {
	header, err := pp.blockState.GetHeader(hash)
	if err != nil {
		return nil, fmt.Errorf("getting header of block %s: %w", hash, err)
	}

	return &inclusionemulator.RelayChainBlockInfo{
		Hash:        hash,
		Number:      parachaintypes.BlockNumber(header.Number),
		StorageRoot: header.StateRoot,
	}, nil
}

// fetchAncestry returns up to `ancestors` ancestors of the leaf, starting with its
// parent. The walk stops at the genesis block or at the first ancestor whose
// children belong to another session than the leaf's children.
func (pp *ProspectiveParachains) fetchAncestry(
	leaf *inclusionemulator.RelayChainBlockInfo,
	ancestors uint,
) ([]inclusionemulator.RelayChainBlockInfo, error) {
	if ancestors == 0 {
		return nil, nil
	}

	leafRuntime, err := pp.blockState.GetRuntime(leaf.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting runtime: %w", err)
	}

	leafSession, err := leafRuntime.ParachainHostSessionIndexForChild()
	if err != nil {
		return nil, fmt.Errorf("getting session index: %w", err)
	}

	header, err := pp.blockState.GetHeader(leaf.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting header: %w", err)
	}

	ancestry := make([]inclusionemulator.RelayChainBlockInfo, 0, ancestors)
	for uint(len(ancestry)) < ancestors && header.Number > 0 {
		parentHash := header.ParentHash

		rt, err := pp.blockState.GetRuntime(parentHash)
		if err != nil {
			return nil, fmt.Errorf("getting runtime of ancestor %s: %w", parentHash, err)
		}

		session, err := rt.ParachainHostSessionIndexForChild()
		if err != nil {
			return nil, fmt.Errorf("getting session index of ancestor %s: %w", parentHash, err)
		}
		if session != leafSession {
			break
		}

		header, err = pp.blockState.GetHeader(parentHash)
		if err != nil {
			return nil, fmt.Errorf("getting header of ancestor %s: %w", parentHash, err)
		}

		ancestry = append(ancestry, inclusionemulator.RelayChainBlockInfo{
			Hash:        parentHash,
			Number:      parachaintypes.BlockNumber(header.Number),
			StorageRoot: header.StateRoot,
		})
	}

	return ancestry, nil
}

// pruneStorage keeps the candidates which are part of a fragment chain, have a
// relay parent in the scope of an active leaf, or are pending availability.
func (pp *ProspectiveParachains) pruneStorage() {
	for para, storage := range pp.view.storage {
		chains := pp.view.fragmentChains(para)
		if len(chains) == 0 {
			delete(pp.view.storage, para)
			continue
		}

		storage.Retain(func(candidateHash parachaintypes.CandidateHash) bool {
			relayParent := storage.RelayParentByCandidateHash(candidateHash)
			for _, chain := range chains {
				if chain.Contains(candidateHash) {
					return true
				}
				if chain.Scope().GetPendingAvailability(candidateHash) != nil {
					return true
				}
				if relayParent != nil && chain.Scope().Ancestor(*relayParent) != nil {
					return true
				}
			}
			return false
		})
	}
}

func (pp *ProspectiveParachains) introduceSecondedCandidate(request IntroduceSecondedCandidateRequest) bool {
	para := request.CandidateParaID
	candidate := request.CandidateReceipt
	pvd := request.PersistedValidationData

	storage, ok := pp.view.storage[para]
	if !ok {
		logger.Debugf("received seconded candidate for inactive para %d", para)
		return false
	}

	candidateHash, err := candidate.Hash()
	if err != nil {
		logger.Errorf("hashing seconded candidate: %s", err)
		return false
	}

	if storage.Contains(candidateHash) {
		logger.Tracef("seconded candidate %s already known", candidateHash)
		return true
	}

	hypothetical := parachaintypes.HypotheticalCandidateComplete{
		Hash:                    candidateHash,
		Receipt:                 candidate,
		PersistedValidationData: pvd,
	}

	chains := pp.view.fragmentChains(para)
	hasPotential := false
	for _, chain := range chains {
		if chain.HypotheticalDepths(candidateHash, hypothetical, storage) != MemberStateNone {
			hasPotential = true
			break
		}
	}

	if !hasPotential {
		logger.Debugf("seconded candidate %s has no potential in any fragment chain", candidateHash)
		return false
	}

	if _, err := storage.AddCandidate(candidate, pvd, CandidateStateSeconded); err != nil {
		logger.Debugf("rejecting seconded candidate %s: %s", candidateHash, err)
		return false
	}

	for _, chain := range chains {
		chain.AddAndPopulate(candidateHash, storage)
	}

	return true
}

func (pp *ProspectiveParachains) candidateBacked(para parachaintypes.ParaID, candidateHash parachaintypes.CandidateHash) {
	storage, ok := pp.view.storage[para]
	if !ok {
		logger.Debugf("received candidate backed for inactive para %d", para)
		return
	}

	if !storage.Contains(candidateHash) {
		logger.Debugf("received candidate backed for unknown candidate %s", candidateHash)
		return
	}

	if storage.IsBacked(candidateHash) {
		return
	}

	storage.MarkBacked(candidateHash)
}

func (pp *ProspectiveParachains) getBackableCandidates(
	msg GetBackableCandidates,
) []parachaintypes.CandidateHashAndRelayParent {
	leafData, ok := pp.view.activeLeaves[msg.RelayParentHash]
	if !ok {
		logger.Debugf("requested backable candidates for inactive relay parent %s", msg.RelayParentHash)
		return nil
	}

	chain, ok := leafData.fragmentChains[msg.ParaID]
	if !ok {
		logger.Debugf("requested backable candidates for inactive para %d", msg.ParaID)
		return nil
	}

	storage, ok := pp.view.storage[msg.ParaID]
	if !ok {
		return nil
	}

	hashes := chain.FindBackableChain(msg.Ancestors, msg.RequestedQty, storage.IsBacked)

	backable := make([]parachaintypes.CandidateHashAndRelayParent, 0, len(hashes))
	for _, hash := range hashes {
		relayParent := storage.RelayParentByCandidateHash(hash)
		if relayParent == nil {
			logger.Errorf("%s: %s", errCandidateNotFound, hash)
			continue
		}

		backable = append(backable, parachaintypes.CandidateHashAndRelayParent{
			CandidateHash:        hash,
			CandidateRelayParent: *relayParent,
		})
	}

	return backable
}

func (pp *ProspectiveParachains) getHypotheticalMembership(
	request HypotheticalMembershipRequest,
) []HypotheticalMembershipResponseItem {
	response := make([]HypotheticalMembershipResponseItem, 0, len(request.Candidates))

	for _, candidate := range request.Candidates {
		membership := HypotheticalMembership{}
		para := candidate.CandidatePara()

		storage, ok := pp.view.storage[para]
		if ok {
			for leaf, chain := range pp.view.fragmentChains(para) {
				if request.FragmentChainRelayParent != nil && *request.FragmentChainRelayParent != leaf {
					continue
				}

				state := chain.HypotheticalDepths(candidate.CandidateHash(), candidate, storage)
				if state != MemberStateNone {
					membership = append(membership, leaf)
				}
			}
		}

		response = append(response, HypotheticalMembershipResponseItem{
			HypotheticalCandidate:  candidate,
			HypotheticalMembership: membership,
		})
	}

	return response
}

func (pp *ProspectiveParachains) getMinimumRelayParents(relayChainBlockHash common.Hash) []ParaIDBlockNumber {
	leafData, ok := pp.view.activeLeaves[relayChainBlockHash]
	if !ok {
		return nil
	}

	minimumRelayParents := make([]ParaIDBlockNumber, 0, len(leafData.fragmentChains))
	for para, chain := range leafData.fragmentChains {
		minimumRelayParents = append(minimumRelayParents, ParaIDBlockNumber{
			ParaID:      para,
			BlockNumber: chain.Scope().EarliestRelayParent().Number,
		})
	}

	return minimumRelayParents
}

func (pp *ProspectiveParachains) getProspectiveValidationData(
	request ProspectiveValidationDataRequest,
) *parachaintypes.PersistedValidationData {
	storage, ok := pp.view.storage[request.ParaID]
	if !ok {
		return nil
	}

	var (
		parentHeadHash common.Hash
		headData       *parachaintypes.HeadData
	)

	switch parent := request.ParentHeadData.(type) {
	case ParentHeadDataHash:
		parentHeadHash = common.Hash(parent)
	case ParentHeadDataWithData:
		parentHeadHash = common.Hash(parent.Hash)
		data := parent.Data
		headData = &data
	default:
		logger.Errorf("unexpected parent head data type %T", parent)
		return nil
	}

	var (
		relayParentInfo *inclusionemulator.RelayChainBlockInfo
		maxPoVSize      *uint32
	)

	for _, chain := range pp.view.fragmentChains(request.ParaID) {
		if relayParentInfo != nil && headData != nil && maxPoVSize != nil {
			break
		}

		scope := chain.Scope()
		if relayParentInfo == nil {
			relayParentInfo = scope.Ancestor(request.CandidateRelayParent)
		}

		if headData == nil {
			requiredParent := scope.BaseConstraints().RequiredParent
			requiredParentHash, err := requiredParent.Hash()
			if err == nil && requiredParentHash == parentHeadHash {
				headData = &requiredParent
			} else {
				headData = storage.HeadDataByHash(parentHeadHash)
			}
		}

		if maxPoVSize == nil {
			size := scope.BaseConstraints().MaxPoVSize
			maxPoVSize = &size
		}
	}

	if relayParentInfo == nil || headData == nil || maxPoVSize == nil {
		logger.Debugf("%s: cannot build validation data for relay parent %s",
			errRelayParentUnknown, request.CandidateRelayParent)
		return nil
	}

	return &parachaintypes.PersistedValidationData{
		ParentHead:             *headData,
		RelayParentNumber:      uint32(relayParentInfo.Number),
		RelayParentStorageRoot: relayParentInfo.StorageRoot,
		MaxPovSize:             *maxPoVSize,
	}
}
