// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import "slices"

// ClaimQueue maps each core to the paras scheduled on it, starting from the
// next block.
type ClaimQueue map[CoreIndex][]ParaID

// ContainsPara reports whether the para is claimed at any depth of the core's queue.
func (cq ClaimQueue) ContainsPara(core CoreIndex, para ParaID) bool {
	return slices.Contains(cq[core], para)
}

// HasCore reports whether the core has any claims.
func (cq ClaimQueue) HasCore(core CoreIndex) bool {
	_, ok := cq[core]
	return ok
}

// ParaCores returns the cores that have the para anywhere in their claims,
// in ascending order.
func (cq ClaimQueue) ParaCores(para ParaID) []CoreIndex {
	var cores []CoreIndex
	for core, paras := range cq {
		if slices.Contains(paras, para) {
			cores = append(cores, core)
		}
	}
	slices.Sort(cores)
	return cores
}

// Paras returns the set of all paras present in the claim queue.
func (cq ClaimQueue) Paras() map[ParaID]struct{} {
	paras := make(map[ParaID]struct{})
	for _, claims := range cq {
		for _, para := range claims {
			paras[para] = struct{}{}
		}
	}
	return paras
}

// GroupRotationInfo is the rotation schedule of backing groups over cores.
type GroupRotationInfo struct {
	// SessionStartBlock is the block number at which the session started.
	SessionStartBlock BlockNumber
	// GroupRotationFrequency is the number of blocks between rotations.
	GroupRotationFrequency BlockNumber
	// Now is the number of the block the rotation info is for.
	Now BlockNumber
}

func (g GroupRotationInfo) rotations() uint64 {
	if g.Now < g.SessionStartBlock {
		return 0
	}
	return uint64((g.Now - g.SessionStartBlock) / g.GroupRotationFrequency)
}

// GroupForCore returns the index of the group assigned to the core at the
// current rotation.
func (g GroupRotationInfo) GroupForCore(core CoreIndex, cores uint) GroupIndex {
	if g.GroupRotationFrequency == 0 {
		return GroupIndex(core)
	}
	if cores == 0 {
		return 0
	}

	n := uint64(cores)
	return GroupIndex((uint64(core) + g.rotations()) % n)
}

// CoreForGroup returns the index of the core the group is assigned to at the
// current rotation.
func (g GroupRotationInfo) CoreForGroup(group GroupIndex, cores uint) CoreIndex {
	if g.GroupRotationFrequency == 0 {
		return CoreIndex(group)
	}
	if cores == 0 {
		return 0
	}

	n := uint64(cores)
	rotations := g.rotations() % n
	return CoreIndex((uint64(group) + n - rotations) % n)
}

// ValidatorGroups holds the backing groups of a session and their rotation.
type ValidatorGroups struct {
	Validators        [][]ValidatorIndex
	GroupRotationInfo GroupRotationInfo
}

// FeatureIndex is a bit in the node features bitfield.
type FeatureIndex uint8

const (
	// EnableAssignmentsV2 enables the v2 assignments of approval voting.
	EnableAssignmentsV2 FeatureIndex = iota
	// ElasticScalingMVP allows a para to be scheduled on more than one core.
	// It requires the core index to be carried by backed candidates.
	ElasticScalingMVP
	// AvailabilityChunkMapping enables the systematic chunk mapping.
	AvailabilityChunkMapping
	// CandidateReceiptV2 enables the v2 candidate receipts.
	CandidateReceiptV2
)

// NodeFeatures is the bitfield of features enabled for a session.
type NodeFeatures []bool

// Enabled reports whether the feature bit is set.
func (nf NodeFeatures) Enabled(feature FeatureIndex) bool {
	return int(feature) < len(nf) && nf[feature]
}

// ExecutorParam is a single execution environment parameter.
type ExecutorParam struct {
	Name  string
	Value uint64
}

// ExecutorParams are the execution environment parameters of a session.
type ExecutorParams []ExecutorParam

// NewExecutorParams returns the default, empty executor params.
func NewExecutorParams() ExecutorParams {
	return ExecutorParams{}
}
