// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"github.com/ChainSafe/gossamer/lib/common"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// backedNotification is what collaborators are told about a newly backed candidate.
type backedNotification struct {
	relayParent   common.Hash
	candidateHash parachaintypes.CandidateHash
	candidate     parachaintypes.CommittedCandidateReceipt
	asyncBacking  bool
}

// codeUpgradeBudget caps how many backed candidates carrying a validation
// code upgrade are reported between two leaf activations. Notifications over
// the budget are held back until the next activation. A zero limit means no cap.
type codeUpgradeBudget struct {
	limit    uint32
	used     uint32
	deferred []backedNotification
}

func newCodeUpgradeBudget(limit uint32) *codeUpgradeBudget {
	return &codeUpgradeBudget{limit: limit}
}

// admit reports whether the notification can be sent now. If not, it is
// deferred.
func (b *codeUpgradeBudget) admit(notification backedNotification) bool {
	if b.limit == 0 || notification.candidate.Commitments.NewValidationCode == nil {
		return true
	}

	if b.used < b.limit {
		b.used++
		return true
	}

	b.deferred = append(b.deferred, notification)
	return false
}

// reset starts a new cycle and returns the deferred notifications that fit in
// it. Deferred notifications that are no longer relevant are dropped.
func (b *codeUpgradeBudget) reset(relevant func(backedNotification) bool) []backedNotification {
	b.used = 0
	pending := b.deferred
	b.deferred = nil

	var released []backedNotification
	for _, notification := range pending {
		if !relevant(notification) {
			continue
		}
		if b.admit(notification) {
			released = append(released, notification)
		}
	}
	return released
}
