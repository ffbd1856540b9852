// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package backing implements the candidate backing subsystem. It imports the
// statements validators make about parachain candidates, validates candidates
// in the background, signs statements of its own and reports the candidates
// backed by a quorum of their group.
package backing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ChainSafe/gossamer/lib/common"
	"github.com/ChainSafe/gossamer/lib/keystore"
	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paritytech/polkadot-sdk-sub011/config"
	prospectiveparachains "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/prospective-parachains"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	"github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util"
	"github.com/paritytech/polkadot-sdk-sub011/internal/log"
	"github.com/prometheus/client_golang/prometheus"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "candidate_backing"), log.SetLevel(log.Debug))

// CandidateBacking is the candidate backing subsystem.
type CandidateBacking struct {
	SubsystemToOverseer chan<- any

	blockState   parachaintypes.BlockState
	keystore     keystore.Keystore
	cfg          config.BackingConfig
	metrics      *metrics
	sessionCache *sessionCache
	codeCache    *lru.Cache[parachaintypes.ValidationCodeHash, parachaintypes.ValidationCode]

	validationPool    *workerpool.WorkerPool
	validationResults chan validatedCandidateCommand

	implicitView *implicitView
	// active leaves and whether async backing is enabled at them
	perLeaf map[common.Hash]bool
	// state of every relay parent allowed under the active leaves
	perRelayParent map[common.Hash]*perRelayParentState
	// state of every candidate seconded under a tracked relay parent
	perCandidate map[parachaintypes.CandidateHash]*perCandidateState
	budget       *codeUpgradeBudget
}

// New creates the candidate backing subsystem. Zero values in the
// configuration are replaced by the defaults.
func New(
	overseerChan chan<- any,
	blockState parachaintypes.BlockState,
	ks keystore.Keystore,
	cfg config.BackingConfig,
	reg prometheus.Registerer,
) (*CandidateBacking, error) {
	defaults := config.DefaultBackingConfig()
	if cfg.ValidationWorkers <= 0 {
		cfg.ValidationWorkers = defaults.ValidationWorkers
	}
	if cfg.ResultQueueSize <= 0 {
		cfg.ResultQueueSize = defaults.ResultQueueSize
	}
	if cfg.SessionCacheSize <= 0 {
		cfg.SessionCacheSize = defaults.SessionCacheSize
	}
	if cfg.ValidationCodeCacheSize <= 0 {
		cfg.ValidationCodeCacheSize = defaults.ValidationCodeCacheSize
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	sessions, err := newSessionCache(cfg.SessionCacheSize)
	if err != nil {
		return nil, err
	}

	codeCache, err := lru.New[parachaintypes.ValidationCodeHash, parachaintypes.ValidationCode](
		cfg.ValidationCodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating validation code cache: %w", err)
	}

	cb := &CandidateBacking{
		SubsystemToOverseer: overseerChan,
		blockState:          blockState,
		keystore:            ks,
		cfg:                 cfg,
		metrics:             m,
		sessionCache:        sessions,
		codeCache:           codeCache,
	}
	cb.resetState()
	return cb, nil
}

// Name returns the name of the subsystem
func (*CandidateBacking) Name() parachaintypes.SubSystemName {
	return parachaintypes.CandidateBacking
}

func (cb *CandidateBacking) resetState() {
	cb.implicitView = newImplicitView(cb.blockState, cb.fetchMinRelayParents)
	cb.perLeaf = make(map[common.Hash]bool)
	cb.perRelayParent = make(map[common.Hash]*perRelayParentState)
	cb.perCandidate = make(map[parachaintypes.CandidateHash]*perCandidateState)
	cb.budget = newCodeUpgradeBudget(cb.cfg.FreeCodeUpgradesPerBlock)
	cb.validationResults = make(chan validatedCandidateCommand, cb.cfg.ResultQueueSize)
}

// Run starts the CandidateBacking subsystem. It returns when the context is
// done, on Conclude or when the overseer channel is closed. A fatal error
// drops the state and restarts the subsystem.
func (cb *CandidateBacking) Run(ctx context.Context, overseerToSubsystem <-chan any) {
	for {
		err := cb.runUntilFatal(ctx, overseerToSubsystem)
		if err == nil || ctx.Err() != nil {
			return
		}

		logger.Errorf("candidate backing hit a fatal error, restarting: %s", err)
		cb.resetState()
	}
}

func (cb *CandidateBacking) runUntilFatal(ctx context.Context, overseerToSubsystem <-chan any) error {
	cb.validationPool = workerpool.New(cb.cfg.ValidationWorkers)
	defer cb.validationPool.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		// validation results go first
		select {
		case command := <-cb.validationResults:
			if err := cb.handleValidatedCandidateCommand(ctx, command); err != nil {
				if isFatal(err) {
					return err
				}
				logger.Errorf("handling validated candidate command: %s", err)
			}
			continue
		default:
		}

		select {
		case command := <-cb.validationResults:
			if err := cb.handleValidatedCandidateCommand(ctx, command); err != nil {
				if isFatal(err) {
					return err
				}
				logger.Errorf("handling validated candidate command: %s", err)
			}
		case msg, ok := <-overseerToSubsystem:
			if !ok {
				return nil
			}

			if _, conclude := msg.(parachaintypes.Conclude); conclude {
				cb.Stop()
				return nil
			}

			if err := cb.processMessage(ctx, msg); err != nil {
				if isFatal(err) {
					return err
				}
				logger.Errorf("processing overseer message: %s", err)
			}
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("ctx error: %s", err)
			}
			return nil
		}
	}
}

func (*CandidateBacking) Stop() {}

func (cb *CandidateBacking) processMessage(ctx context.Context, msg any) error {
	switch msg := msg.(type) {
	case parachaintypes.ActiveLeavesUpdateSignal:
		return cb.ProcessActiveLeavesUpdateSignal(ctx, msg)
	case parachaintypes.BlockFinalizedSignal:
		return cb.ProcessBlockFinalizedSignal(msg)
	case CanSecondMessage:
		return cb.handleCanSecondMessage(ctx, msg)
	case SecondMessage:
		return cb.handleSecondMessage(ctx, msg)
	case StatementMessage:
		return cb.handleStatementMessage(ctx, msg)
	case GetBackableCandidatesMessage:
		cb.handleGetBackableCandidatesMessage(msg)
	default:
		return fmt.Errorf("%w: %T", parachaintypes.ErrUnknownOverseerMessage, msg)
	}

	return nil
}

// ProcessBlockFinalizedSignal does nothing, finality is irrelevant to backing.
func (*CandidateBacking) ProcessBlockFinalizedSignal(parachaintypes.BlockFinalizedSignal) error {
	return nil
}

// ProcessActiveLeavesUpdateSignal updates the view, drops the state of relay
// parents and candidates that left it and builds the state of the relay
// parents allowed under the new leaf.
func (cb *CandidateBacking) ProcessActiveLeavesUpdateSignal(
	ctx context.Context,
	signal parachaintypes.ActiveLeavesUpdateSignal,
) error {
	var (
		asyncBacking  bool
		activationErr error
	)

	// activating before deactivating lets the implicit view reuse its storage
	if leaf := signal.Activated; leaf != nil {
		asyncBacking, activationErr = cb.asyncBackingEnabled(leaf.Hash)
		if activationErr == nil && asyncBacking {
			activationErr = cb.implicitView.activateLeaf(ctx, leaf.Hash)
		}
		if activationErr == nil {
			cb.perLeaf[leaf.Hash] = asyncBacking
		}
	}

	for _, deactivated := range signal.Deactivated {
		cb.implicitView.deactivateLeaf(deactivated)
		delete(cb.perLeaf, deactivated)
	}

	remaining := cb.implicitView.allAllowedRelayParents()
	for leaf := range cb.perLeaf {
		remaining[leaf] = struct{}{}
	}
	for relayParent := range cb.perRelayParent {
		if _, ok := remaining[relayParent]; !ok {
			delete(cb.perRelayParent, relayParent)
		}
	}
	for candidateHash, candidateState := range cb.perCandidate {
		if _, ok := cb.perRelayParent[candidateState.relayParent]; !ok {
			delete(cb.perCandidate, candidateHash)
		}
	}

	leaf := signal.Activated
	if leaf == nil {
		return nil
	}
	if activationErr != nil {
		if isFatal(activationErr) {
			return activationErr
		}
		logger.Debugf("failed to load implicit view for leaf %s: %s", leaf.Hash, activationErr)
		return nil
	}

	freshRelayParents := []common.Hash{leaf.Hash}
	if asyncBacking {
		freshRelayParents = cb.implicitView.knownAllowedRelayParentsUnder(leaf.Hash, nil)
		if freshRelayParents == nil {
			logger.Warnf("implicit view gave no relay parents for leaf %s", leaf.Hash)
			freshRelayParents = []common.Hash{leaf.Hash}
		}
	}

	for _, relayParent := range freshRelayParents {
		if _, ok := cb.perRelayParent[relayParent]; ok {
			continue
		}

		rpState, err := cb.constructPerRelayParentState(relayParent, asyncBacking)
		if err != nil {
			logger.Warnf("cannot participate in candidate backing at relay parent %s: %s", relayParent, err)
			continue
		}
		cb.perRelayParent[relayParent] = rpState
	}

	released := cb.budget.reset(func(notification backedNotification) bool {
		_, ok := cb.perRelayParent[notification.relayParent]
		return ok
	})
	for _, notification := range released {
		if err := cb.notifyBacked(ctx, notification); err != nil {
			return err
		}
	}

	return nil
}

// asyncBackingEnabled reports whether prospective parachains are enabled at
// the leaf, which is the case when its runtime exposes async backing params.
func (cb *CandidateBacking) asyncBackingEnabled(leaf common.Hash) (bool, error) {
	rt, err := cb.blockState.GetRuntime(leaf)
	if err != nil {
		return false, fmt.Errorf("getting runtime for leaf %s: %w", leaf, err)
	}

	_, err = rt.ParachainHostAsyncBackingParams()
	switch {
	case errors.Is(err, parachaintypes.ErrRuntimeAPINotSupported):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("getting async backing params: %w", err)
	}
	return true, nil
}

func (cb *CandidateBacking) fetchMinRelayParents(
	ctx context.Context,
	leaf common.Hash,
) ([]prospectiveparachains.ParaIDBlockNumber, error) {
	resCh := make(chan []prospectiveparachains.ParaIDBlockNumber, 1)
	return util.SendOverseerMessage(ctx, cb.SubsystemToOverseer, prospectiveparachains.GetMinimumRelayParents{
		RelayChainBlockHash: leaf,
		Sender:              resCh,
	}, resCh)
}

func (cb *CandidateBacking) sendMessage(ctx context.Context, msg any) error {
	select {
	case cb.SubsystemToOverseer <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending %T: %w", msg, ctx.Err())
	}
}

// secondingSanityCheck returns the active leaves under which the candidate is
// a member or potential member of the fragment chain of its para.
func (cb *CandidateBacking) secondingSanityCheck(
	ctx context.Context,
	candidate parachaintypes.HypotheticalCandidate,
) ([]common.Hash, error) {
	candidatePara := candidate.CandidatePara()
	candidateRelayParent := candidate.RelayParent()
	candidateHash := candidate.CandidateHash()

	var leavesForSeconding []common.Hash
	for _, head := range cb.implicitView.activeLeaves() {
		allowedParents := cb.implicitView.knownAllowedRelayParentsUnder(head, &candidatePara)
		if !slices.Contains(allowedParents, candidateRelayParent) {
			continue
		}

		resCh := make(chan []prospectiveparachains.HypotheticalMembershipResponseItem, 1)
		memberships, err := util.SendOverseerMessage(ctx, cb.SubsystemToOverseer,
			prospectiveparachains.GetHypotheticalMembership{
				HypotheticalMembershipRequest: prospectiveparachains.HypotheticalMembershipRequest{
					Candidates:               []parachaintypes.HypotheticalCandidate{candidate},
					FragmentChainRelayParent: &head,
				},
				Response: resCh,
			}, resCh)
		if err != nil {
			if isRejection(err) {
				logger.Warnf("failed to reach prospective parachains for hypothetical membership: %s", err)
				return nil, nil
			}
			return nil, err
		}

		isMemberOrPotential := slices.ContainsFunc(memberships,
			func(item prospectiveparachains.HypotheticalMembershipResponseItem) bool {
				return item.HypotheticalCandidate.CandidateHash() == candidateHash &&
					slices.Contains(item.HypotheticalMembership, head)
			})
		if !isMemberOrPotential {
			logger.Debugf("refusing to second candidate %s at leaf %s, it is not a potential member",
				candidateHash, head)
			continue
		}

		leavesForSeconding = append(leavesForSeconding, head)
	}

	return leavesForSeconding, nil
}

func (cb *CandidateBacking) handleCanSecondMessage(ctx context.Context, msg CanSecondMessage) error {
	canSecond := false

	rpState, ok := cb.perRelayParent[msg.CandidateRelayParent]
	if ok && rpState.asyncBacking {
		leaves, err := cb.secondingSanityCheck(ctx, parachaintypes.HypotheticalCandidateIncomplete{
			Hash:                 msg.CandidateHash,
			Para:                 msg.CandidateParaID,
			ParentHeadHash:       msg.ParentHeadDataHash,
			CandidateRelayParent: msg.CandidateRelayParent,
		})
		if err != nil {
			return err
		}
		canSecond = len(leaves) > 0
	}

	msg.ResponseCh <- canSecond
	return nil
}

func (cb *CandidateBacking) handleValidatedCandidateCommand(
	ctx context.Context,
	command validatedCandidateCommand,
) error {
	rpState, ok := cb.perRelayParent[command.relayParentHash()]
	if !ok {
		logger.Tracef("validation result of candidate %s for relay parent %s no longer in view",
			command.candidateHash(), command.relayParentHash())
		return nil
	}

	candidateHash := command.candidateHash()
	delete(rpState.awaitingValidation, candidateHash)

	switch command := command.(type) {
	case secondCommand:
		return cb.handleSecondResult(ctx, rpState, candidateHash, command.result)
	case attestCommand:
		// no more validation jobs for this candidate
		delete(rpState.fallbacks, candidateHash)

		if _, issued := rpState.issuedStatements[candidateHash]; issued {
			return nil
		}
		if command.result.outputs != nil {
			_, err := cb.signImportAndDistributeStatement(ctx, rpState, parachaintypes.Valid(candidateHash), nil)
			if err != nil {
				return err
			}
		}
		rpState.issuedStatements[candidateHash] = struct{}{}
	case attestNoPoVCommand:
		attesting, ok := rpState.fallbacks[candidateHash]
		if !ok {
			logger.Warnf("AttestNoPoV was triggered without fallback being available, candidate hash: %s",
				candidateHash)
			return nil
		}
		if len(attesting.backing) == 0 {
			return nil
		}

		last := len(attesting.backing) - 1
		attesting.fromValidator = attesting.backing[last]
		attesting.backing = attesting.backing[:last]

		// candidates are pruned along with their relay parent
		candidateState, ok := cb.perCandidate[candidateHash]
		if !ok {
			return nil
		}
		return cb.kickOffValidationWork(ctx, rpState, candidateState.persistedValidationData, *attesting)
	default:
		return fmt.Errorf("unexpected validated candidate command %T", command)
	}

	return nil
}

func (cb *CandidateBacking) handleSecondResult(
	ctx context.Context,
	rpState *perRelayParentState,
	candidateHash parachaintypes.CandidateHash,
	result backgroundValidationResult,
) error {
	if result.outputs == nil {
		return cb.sendMessage(ctx, parachaintypes.CollatorProtocolMessageInvalid{
			Parent:           rpState.parent,
			CandidateReceipt: result.candidate,
		})
	}

	if _, issued := rpState.issuedStatements[candidateHash]; issued {
		return nil
	}

	receipt := parachaintypes.CommittedCandidateReceipt{
		Descriptor:  result.candidate.Descriptor,
		Commitments: result.outputs.commitments,
	}
	pvd := result.outputs.persistedValidationData

	if rpState.asyncBacking {
		// the fragment chains may have moved on while the candidate was validated
		leaves, err := cb.secondingSanityCheck(ctx, parachaintypes.HypotheticalCandidateComplete{
			Hash:                    candidateHash,
			Receipt:                 receipt,
			PersistedValidationData: pvd,
		})
		if err != nil {
			return err
		}
		if len(leaves) == 0 {
			return nil
		}
	} else if rpState.seconded != nil && *rpState.seconded != candidateHash {
		logger.Debugf("already seconded candidate %s at relay parent %s, not seconding %s",
			*rpState.seconded, rpState.parent, candidateHash)
		return nil
	}

	signed, err := cb.signImportAndDistributeStatement(ctx, rpState, parachaintypes.Seconded(receipt), &pvd)
	if errors.Is(err, errRejectedByProspectiveParachains) {
		logger.Debugf("attempted to second candidate %s but was rejected by prospective parachains",
			candidateHash)
		return cb.sendMessage(ctx, parachaintypes.CollatorProtocolMessageInvalid{
			Parent:           receipt.Descriptor.RelayParent,
			CandidateReceipt: result.candidate,
		})
	}
	if err != nil {
		return err
	}
	if signed == nil {
		return nil
	}

	if candidateState, ok := cb.perCandidate[candidateHash]; ok {
		candidateState.secondedLocally = true
	} else {
		logger.Warnf("missing per candidate state for seconded candidate %s", candidateHash)
	}

	rpState.issuedStatements[candidateHash] = struct{}{}
	if !rpState.asyncBacking {
		rpState.seconded = &candidateHash
	}

	cb.metrics.onCandidateSeconded()
	return cb.sendMessage(ctx, parachaintypes.CollatorProtocolMessageSeconded{
		Parent: rpState.parent,
		Stmt:   signed.SignedFullStatement,
	})
}

// signImportAndDistributeStatement signs a statement as the local validator,
// imports it and shares it. It returns nil if the node cannot sign at this
// relay parent.
func (cb *CandidateBacking) signImportAndDistributeStatement(
	ctx context.Context,
	rpState *perRelayParentState,
	payload parachaintypes.Statement,
	pvd *parachaintypes.PersistedValidationData,
) (*parachaintypes.SignedFullStatementWithPVD, error) {
	validator := rpState.tableContext.validator
	if validator == nil {
		return nil, nil
	}

	signed, err := validator.sign(cb.keystore, payload, pvd)
	if err != nil {
		logger.Warnf("cannot sign statement at relay parent %s: %s", rpState.parent, err)
		return nil, nil
	}
	cb.metrics.onStatementSigned()

	summary, err := cb.importStatement(ctx, rpState, signed)
	if err != nil {
		return nil, err
	}

	// Share always goes out before Backed, which postImportStatementActions sends
	err = cb.sendMessage(ctx, parachaintypes.StatementDistributionMessageShare{
		RelayParent:                rpState.parent,
		SignedFullStatementWithPVD: signed,
	})
	if err != nil {
		return nil, err
	}

	if err := cb.postImportStatementActions(ctx, rpState, summary); err != nil {
		return nil, err
	}
	return &signed, nil
}

// importStatement imports a statement into the table of the relay parent.
// A fresh Seconded candidate is first introduced to prospective parachains,
// which may reject it with errRejectedByProspectiveParachains.
func (cb *CandidateBacking) importStatement(
	ctx context.Context,
	rpState *perRelayParentState,
	signed parachaintypes.SignedFullStatementWithPVD,
) (*tableSummary, error) {
	statement := signed.SignedFullStatement
	candidateHash, err := statement.Payload.CandidateHash()
	if err != nil {
		return nil, fmt.Errorf("getting candidate hash: %w", err)
	}

	logger.Debugf("importing statement %T from validator %d, candidate hash: %s",
		statement.Payload, statement.ValidatorIndex, candidateHash)

	coreIndex, ok := coreIndexFromStatement(rpState.validatorToGroup, rpState.groupRotationInfo,
		rpState.numCores, rpState.claimQueue, signed)
	if !ok {
		return nil, errCoreIndexUnavailable
	}

	if seconded, ok := statement.Payload.(parachaintypes.Seconded); ok {
		if _, known := cb.perCandidate[candidateHash]; !known {
			if signed.PersistedValidationData == nil {
				return nil, fmt.Errorf("%w: %w", errRejectedByProspectiveParachains, errMissingPVD)
			}
			pvd := *signed.PersistedValidationData

			if rpState.asyncBacking {
				accepted, err := cb.introduceSecondedCandidate(ctx, parachaintypes.CommittedCandidateReceipt(seconded), pvd)
				if err != nil {
					return nil, err
				}
				if !accepted {
					return nil, errRejectedByProspectiveParachains
				}
			}

			cb.perCandidate[candidateHash] = &perCandidateState{
				persistedValidationData: pvd,
				relayParent:             seconded.Descriptor.RelayParent,
			}
		}
	}

	return rpState.table.importStatement(rpState.tableContext, coreIndex, parachaintypes.SignedStatement{
		Statement: statement.Payload,
		Signature: statement.Signature,
		Sender:    statement.ValidatorIndex,
	})
}

func (cb *CandidateBacking) introduceSecondedCandidate(
	ctx context.Context,
	candidate parachaintypes.CommittedCandidateReceipt,
	pvd parachaintypes.PersistedValidationData,
) (bool, error) {
	resCh := make(chan bool, 1)
	accepted, err := util.SendOverseerMessage(ctx, cb.SubsystemToOverseer,
		prospectiveparachains.IntroduceSecondedCandidate{
			IntroduceSecondedCandidateRequest: prospectiveparachains.IntroduceSecondedCandidateRequest{
				CandidateParaID:         candidate.Descriptor.ParaID,
				CandidateReceipt:        candidate,
				PersistedValidationData: pvd,
			},
			Response: resCh,
		}, resCh)
	if err != nil {
		if isRejection(err) {
			logger.Warnf("could not reach the prospective parachains subsystem: %s", err)
			return false, nil
		}
		return false, err
	}
	return accepted, nil
}

// postImportStatementActions reports the candidate of the summary if it just
// got backed, then reports the misbehaviour the table detected.
func (cb *CandidateBacking) postImportStatementActions(
	ctx context.Context,
	rpState *perRelayParentState,
	summary *tableSummary,
) error {
	if summary == nil {
		logger.Debug("no attested candidate")
		return cb.issueNewMisbehaviours(ctx, rpState)
	}

	attested, ok := rpState.table.attestedCandidate(summary.candidate, rpState.tableContext,
		rpState.minimumBackingVotes)
	switch {
	case !ok:
		logger.Debugf("candidate %s is not attested yet", summary.candidate)
	default:
		if _, known := rpState.backed[summary.candidate]; known {
			logger.Debugf("candidate %s already known as backed", summary.candidate)
			break
		}
		rpState.backed[summary.candidate] = struct{}{}

		backed, ok := tableAttestedToBacked(attested, rpState.tableContext, rpState.injectCoreIndex)
		if !ok {
			logger.Debugf("cannot get backed candidate %s", summary.candidate)
			break
		}

		notification := backedNotification{
			relayParent:   rpState.parent,
			candidateHash: summary.candidate,
			candidate:     backed.Candidate,
			asyncBacking:  rpState.asyncBacking,
		}
		if !cb.budget.admit(notification) {
			logger.Debugf("candidate %s upgrades its validation code over the budget, deferring its report",
				summary.candidate)
			break
		}
		if err := cb.notifyBacked(ctx, notification); err != nil {
			return err
		}
	}

	return cb.issueNewMisbehaviours(ctx, rpState)
}

// notifyBacked tells prospective parachains, or the provisioner when async
// backing is disabled, and statement distribution that a candidate is backed.
func (cb *CandidateBacking) notifyBacked(ctx context.Context, notification backedNotification) error {
	paraID := notification.candidate.Descriptor.ParaID
	logger.Debugf("candidate backed, candidate hash: %s, relay parent: %s, para id: %d",
		notification.candidateHash, notification.relayParent, paraID)

	if notification.asyncBacking {
		err := cb.sendMessage(ctx, prospectiveparachains.CandidateBacked{
			ParaID:        paraID,
			CandidateHash: notification.candidateHash,
		})
		if err != nil {
			return err
		}
	} else {
		receipt, err := notification.candidate.ToPlain()
		if err != nil {
			return fmt.Errorf("getting plain receipt of candidate %s: %w", notification.candidateHash, err)
		}

		err = cb.sendMessage(ctx, parachaintypes.ProvisionerMessageProvisionableData{
			RelayParent:       notification.relayParent,
			ProvisionableData: parachaintypes.ProvisionableDataBackedCandidate(receipt),
		})
		if err != nil {
			return err
		}
	}

	err := cb.sendMessage(ctx, parachaintypes.StatementDistributionMessageBacked(notification.candidateHash))
	if err != nil {
		return err
	}

	cb.metrics.onCandidateBacked()
	return nil
}

func (cb *CandidateBacking) issueNewMisbehaviours(ctx context.Context, rpState *perRelayParentState) error {
	for _, report := range rpState.table.drainMisbehaviours() {
		err := cb.sendMessage(ctx, parachaintypes.ProvisionerMessageProvisionableData{
			RelayParent: rpState.parent,
			ProvisionableData: parachaintypes.ProvisionableDataMisbehaviorReport{
				ValidatorIndex: report.validator,
				Misbehaviour:   report.misbehaviour,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// maybeValidateAndImport imports a statement and, if the candidate is for
// our core, starts validating it.
func (cb *CandidateBacking) maybeValidateAndImport(
	ctx context.Context,
	relayParent common.Hash,
	signed parachaintypes.SignedFullStatementWithPVD,
) error {
	rpState, ok := cb.perRelayParent[relayParent]
	if !ok {
		logger.Tracef("received statement for unknown relay parent %s", relayParent)
		return nil
	}

	sender := signed.SignedFullStatement.ValidatorIndex
	if rpState.tableContext.validatorIsDisabled(sender) {
		logger.Debugf("not importing statement because the sender %d is disabled", sender)
		return nil
	}

	summary, err := cb.importStatement(ctx, rpState, signed)
	switch {
	case errors.Is(err, errRejectedByProspectiveParachains):
		logger.Debugf("statement rejected by prospective parachains, relay parent: %s", relayParent)
		return nil
	case errors.Is(err, errCoreIndexUnavailable):
		logger.Debugf("dropping statement from validator %d, no core for it under relay parent %s",
			sender, relayParent)
		return nil
	}
	if err != nil {
		return err
	}

	if err := cb.postImportStatementActions(ctx, rpState, summary); err != nil {
		return err
	}

	if summary == nil {
		return nil
	}
	if rpState.assignedCore == nil || summary.groupID != *rpState.assignedCore {
		return nil
	}

	var attesting attestingData
	switch payload := signed.SignedFullStatement.Payload.(type) {
	case parachaintypes.Seconded:
		candidate, ok := rpState.table.getCandidate(summary.candidate)
		if !ok {
			return fmt.Errorf("%w: %s", errCandidateNotFound, summary.candidate)
		}

		plain, err := candidate.ToPlain()
		if err != nil {
			return fmt.Errorf("getting plain receipt of candidate %s: %w", summary.candidate, err)
		}

		attesting = attestingData{
			candidate:     plain,
			povHash:       payload.Descriptor.PovHash,
			fromValidator: sender,
		}
		fallback := attesting
		rpState.fallbacks[summary.candidate] = &fallback
	case parachaintypes.Valid:
		fallback, ok := rpState.fallbacks[summary.candidate]
		if !ok {
			return nil
		}

		if ourIndex, isValidator := rpState.localValidatorIndex(); isValidator && ourIndex == sender {
			return nil
		}

		if _, running := rpState.awaitingValidation[summary.candidate]; running {
			fallback.backing = append(fallback.backing, sender)
			return nil
		}

		fallback.fromValidator = sender
		attesting = *fallback
	}

	// the entry exists once import succeeded
	candidateState, ok := cb.perCandidate[summary.candidate]
	if !ok {
		return nil
	}
	return cb.kickOffValidationWork(ctx, rpState, candidateState.persistedValidationData, attesting)
}

func (cb *CandidateBacking) handleSecondMessage(ctx context.Context, msg SecondMessage) error {
	timer := cb.metrics.timeProcessSecond()
	defer timer.ObserveDuration()

	candidateHash, err := msg.CandidateReceipt.Hash()
	if err != nil {
		return fmt.Errorf("getting candidate hash: %w", err)
	}

	pvdHash, err := msg.PersistedValidationData.Hash()
	if err != nil {
		return fmt.Errorf("hashing persisted validation data: %w", err)
	}

	descriptor := msg.CandidateReceipt.Descriptor
	if descriptor.PersistedValidationDataHash != pvdHash {
		logger.Warnf("candidate backing was asked to second candidate %s with wrong PVD", candidateHash)
		return nil
	}

	rpState, ok := cb.perRelayParent[descriptor.RelayParent]
	if !ok {
		logger.Tracef("asked to second candidate %s outside of our view, relay parent: %s",
			candidateHash, descriptor.RelayParent)
		return nil
	}

	if disabled, _ := rpState.tableContext.localValidatorIsDisabled(); disabled {
		logger.Warn("local validator is disabled, not validating and seconding")
		return nil
	}

	if rpState.assignedCore == nil || !rpState.claimQueue.ContainsPara(*rpState.assignedCore, descriptor.ParaID) {
		logger.Debugf("asked to second candidate of para %d outside of our assignment, assigned core: %v",
			descriptor.ParaID, rpState.assignedCore)
		return nil
	}

	if !rpState.asyncBacking && rpState.seconded != nil {
		logger.Debugf("already seconded candidate %s at relay parent %s", *rpState.seconded, rpState.parent)
		return nil
	}

	if _, issued := rpState.issuedStatements[candidateHash]; issued {
		return nil
	}

	return cb.validateAndSecond(ctx, rpState, msg.PersistedValidationData, msg.CandidateReceipt,
		candidateHash, msg.PoV)
}

func (cb *CandidateBacking) handleStatementMessage(ctx context.Context, msg StatementMessage) error {
	timer := cb.metrics.timeProcessStatement()
	defer timer.ObserveDuration()

	return cb.maybeValidateAndImport(ctx, msg.RelayParent, msg.SignedFullStatement)
}

func (cb *CandidateBacking) handleGetBackableCandidatesMessage(msg GetBackableCandidatesMessage) {
	timer := cb.metrics.timeGetBackableCandidates()
	defer timer.ObserveDuration()

	backed := make(map[parachaintypes.ParaID][]*parachaintypes.BackedCandidate, len(msg.Candidates))
	for paraID, candidates := range msg.Candidates {
		for _, candidate := range candidates {
			rpState, ok := cb.perRelayParent[candidate.CandidateRelayParent]
			if !ok {
				logger.Debugf("requested candidate %s has relay parent %s out of view",
					candidate.CandidateHash, candidate.CandidateRelayParent)
				break
			}

			attested, ok := rpState.table.attestedCandidate(candidate.CandidateHash, rpState.tableContext,
				rpState.minimumBackingVotes)
			if !ok {
				break
			}

			backedCandidate, ok := tableAttestedToBacked(attested, rpState.tableContext, rpState.injectCoreIndex)
			if !ok {
				break
			}
			backed[paraID] = append(backed[paraID], backedCandidate)
		}
	}

	msg.ResCh <- backed
}
