// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package backing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ChainSafe/gossamer/lib/common"
	prospectiveparachains "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/prospective-parachains"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
)

// minimumRetainLength is how many blocks below an active leaf are kept in
// storage, so activating its children does not walk the headers again.
const minimumRetainLength = 2

var errLeafAlreadyKnown = errors.New("leaf was already known")

// minRelayParentsFetcher returns the minimum relay parent of every para
// prospective parachains builds on under the leaf.
type minRelayParentsFetcher func(ctx context.Context, leaf common.Hash) ([]prospectiveparachains.ParaIDBlockNumber, error)

type allowedRelayParents struct {
	minimumRelayParents map[parachaintypes.ParaID]parachaintypes.BlockNumber
	// ancestry in descending order, from the block itself down to the lowest
	// minimum relay parent
	contiguous []common.Hash
}

func (a *allowedRelayParents) allowedRelayParentsFor(
	paraID *parachaintypes.ParaID,
	baseNumber parachaintypes.BlockNumber,
) []common.Hash {
	if paraID == nil {
		return a.contiguous
	}

	paraMin, ok := a.minimumRelayParents[*paraID]
	if !ok || baseNumber < paraMin {
		return []common.Hash{}
	}

	sliceLen := min(int(baseNumber-paraMin)+1, len(a.contiguous))
	return a.contiguous[:sliceLen]
}

type blockInfo struct {
	blockNumber parachaintypes.BlockNumber
	parentHash  common.Hash
	// set only for blocks that have been active leaves
	allowedRelayParents *allowedRelayParents
}

// implicitView is the view of the relay chain derived from the active leaves
// and the minimum relay parents prospective parachains accepts under them.
type implicitView struct {
	blockState           parachaintypes.BlockState
	fetchMinRelayParents minRelayParentsFetcher

	// retain minimum of every active leaf
	leaves           map[common.Hash]parachaintypes.BlockNumber
	blockInfoStorage map[common.Hash]*blockInfo
}

func newImplicitView(blockState parachaintypes.BlockState, fetch minRelayParentsFetcher) *implicitView {
	return &implicitView{
		blockState:           blockState,
		fetchMinRelayParents: fetch,
		leaves:               make(map[common.Hash]parachaintypes.BlockNumber),
		blockInfoStorage:     make(map[common.Hash]*blockInfo),
	}
}

func (v *implicitView) activeLeaves() []common.Hash {
	return slices.Collect(maps.Keys(v.leaves))
}

// activateLeaf loads the headers of the leaf ancestry down to its lowest
// minimum relay parent. Leaves are best activated before old ones are
// deactivated, so the storage they share is reused.
func (v *implicitView) activateLeaf(ctx context.Context, leafHash common.Hash) error {
	if _, ok := v.leaves[leafHash]; ok {
		return errLeafAlreadyKnown
	}

	leafHeader, err := v.blockState.GetHeader(leafHash)
	if err != nil {
		return fmt.Errorf("getting header of leaf %s: %w", leafHash, err)
	}
	leafNumber := parachaintypes.BlockNumber(leafHeader.Number)

	minRelayParents, err := v.fetchMinRelayParents(ctx, leafHash)
	if err != nil {
		return fmt.Errorf("fetching minimum relay parents of leaf %s: %w", leafHash, err)
	}

	minimumRelayParents := make(map[parachaintypes.ParaID]parachaintypes.BlockNumber, len(minRelayParents))
	minMin := leafNumber
	for _, minRelayParent := range minRelayParents {
		minimumRelayParents[minRelayParent.ParaID] = minRelayParent.BlockNumber
		minMin = min(minMin, minRelayParent.BlockNumber)
	}

	ancestry := []common.Hash{leafHash}
	if leafNumber > 0 {
		nextNumber := leafNumber - 1
		nextHash := leafHeader.ParentHash

		for nextNumber >= minMin {
			info, ok := v.blockInfoStorage[nextHash]
			if !ok {
				header, err := v.blockState.GetHeader(nextHash)
				if err != nil {
					return fmt.Errorf("getting header of ancestor %s: %w", nextHash, err)
				}

				info = &blockInfo{
					blockNumber: nextNumber,
					parentHash:  header.ParentHash,
				}
				v.blockInfoStorage[nextHash] = info
			}

			ancestry = append(ancestry, nextHash)
			if nextNumber == 0 {
				break
			}

			nextNumber--
			nextHash = info.parentHash
		}
	}

	v.blockInfoStorage[leafHash] = &blockInfo{
		blockNumber: leafNumber,
		parentHash:  leafHeader.ParentHash,
		allowedRelayParents: &allowedRelayParents{
			minimumRelayParents: minimumRelayParents,
			contiguous:          ancestry,
		},
	}

	var retainFloor parachaintypes.BlockNumber
	if leafNumber >= minimumRetainLength {
		retainFloor = leafNumber - minimumRetainLength
	}
	v.leaves[leafHash] = min(minMin, retainFloor)

	return nil
}

// deactivateLeaf removes the leaf and prunes the blocks no remaining leaf
// needs. It returns the pruned block hashes.
func (v *implicitView) deactivateLeaf(leafHash common.Hash) []common.Hash {
	if _, ok := v.leaves[leafHash]; !ok {
		return nil
	}
	delete(v.leaves, leafHash)

	var removed []common.Hash
	if len(v.leaves) == 0 {
		for hash := range v.blockInfoStorage {
			removed = append(removed, hash)
		}
		clear(v.blockInfoStorage)
		return removed
	}

	minimum := slices.Min(slices.Collect(maps.Values(v.leaves)))
	for hash, info := range v.blockInfoStorage {
		if info.blockNumber < minimum {
			removed = append(removed, hash)
			delete(v.blockInfoStorage, hash)
		}
	}
	return removed
}

// allAllowedRelayParents returns the union of the relay parents allowed under
// the active leaves.
func (v *implicitView) allAllowedRelayParents() map[common.Hash]struct{} {
	relayParents := make(map[common.Hash]struct{})
	for leaf := range v.leaves {
		for _, relayParent := range v.knownAllowedRelayParentsUnder(leaf, nil) {
			relayParents[relayParent] = struct{}{}
		}
	}
	return relayParents
}

// knownAllowedRelayParentsUnder returns the relay parents candidates of the
// para may use when backed in a child of the block, starting from the block
// itself. A nil para gives the relay parents of all paras. The result is nil
// if the block has never been an active leaf.
func (v *implicitView) knownAllowedRelayParentsUnder(
	blockHash common.Hash,
	paraID *parachaintypes.ParaID,
) []common.Hash {
	info, ok := v.blockInfoStorage[blockHash]
	if !ok || info.allowedRelayParents == nil {
		return nil
	}
	return info.allowedRelayParents.allowedRelayParentsFor(paraID, info.blockNumber)
}
