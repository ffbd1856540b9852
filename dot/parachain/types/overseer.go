// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import (
	"errors"
	"time"

	"github.com/ChainSafe/gossamer/dot/types"
	"github.com/ChainSafe/gossamer/lib/common"
)

// SubSystemName is the name of a parachain subsystem.
type SubSystemName string

const (
	CandidateBacking      SubSystemName = "CandidateBacking"
	ProspectiveParachains SubSystemName = "ProspectiveParachains"
)

// SubsystemRequestTimeout is how long a subsystem waits for the answer of a collaborator.
const SubsystemRequestTimeout = 1 * time.Second

var (
	ErrUnknownOverseerMessage  = errors.New("unknown overseer message type")
	ErrSubsystemRequestTimeout = errors.New("subsystem request timed out")
	// ErrRuntimeAPINotSupported is returned by a runtime that does not expose
	// the requested parachain host API.
	ErrRuntimeAPINotSupported = errors.New("runtime api not supported")
)

// ActivatedLeaf is a new relay chain head to start work on.
type ActivatedLeaf struct {
	Hash   common.Hash
	Number uint32
}

// ActiveLeavesUpdateSignal changes the set of active leaves.
type ActiveLeavesUpdateSignal struct {
	Activated *ActivatedLeaf
	// Relay chain block hashes no longer of interest.
	Deactivated []common.Hash
}

// BlockFinalizedSignal signals a relay chain block finalization.
type BlockFinalizedSignal struct {
	Hash        common.Hash
	BlockNumber uint32
}

// Conclude asks the subsystem to shut down.
type Conclude struct{}

// OverseerFuncRes is the result of a request answered by a collaborator.
type OverseerFuncRes[T any] struct {
	Err  error
	Data T
}

// BlockState is the relay chain block state a subsystem reads from.
type BlockState interface {
	GetRuntime(blockHash common.Hash) (instance RuntimeInstance, err error)
	GetHeader(hash common.Hash) (*types.Header, error)
}

// RuntimeInstance is the parachain host runtime API at a given relay chain block.
type RuntimeInstance interface {
	ParachainHostSessionIndexForChild() (SessionIndex, error)
	ParachainHostValidators() ([]ValidatorID, error)
	ParachainHostValidatorGroups() (*ValidatorGroups, error)
	ParachainHostClaimQueue() (ClaimQueue, error)
	ParachainHostDisabledValidators() ([]ValidatorIndex, error)
	ParachainHostMinimumBackingVotes() (uint32, error)
	ParachainHostNodeFeatures() (NodeFeatures, error)
	ParachainHostSessionExecutorParams(index SessionIndex) (*ExecutorParams, error)
	ParachainHostAsyncBackingParams() (*AsyncBackingParams, error)
	ParachainHostValidationCodeByHash(validationCodeHash ValidationCodeHash) (*ValidationCode, error)
	ParachainHostParaBackingState(paraID ParaID) (*BackingState, error)
}
