// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ChainSafe/gossamer/lib/common"
	prospectiveparachains "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/prospective-parachains"
	parachaintypes "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/types"
	inclusionemulator "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/util/inclusion-emulator"
	"gopkg.in/yaml.v3"
)

var (
	errNoCandidateName    = errors.New("candidate without a name")
	errDuplicateCandidate = errors.New("duplicate candidate name")
	errUnknownCandidate   = errors.New("unknown candidate")
	errMissingRelayParent = errors.New("missing relay parent")
)

const (
	defaultMaxPoVSize        = 1_000_000
	defaultMaxCodeSize       = 1_000_000
	defaultUMPRemaining      = 10
	defaultUMPRemainingBytes = 1_000
)

// hexHash is a 0x prefixed 32 bytes hash in a scenario file.
type hexHash common.Hash

func (h *hexHash) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	hash, err := common.HexToHash(s)
	if err != nil {
		return fmt.Errorf("line %d: decoding hash %q: %w", value.Line, s, err)
	}
	*h = hexHash(hash)
	return nil
}

// hexBytes is 0x prefixed opaque data in a scenario file, such as head data.
type hexBytes []byte

func (b *hexBytes) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	data, err := common.HexToBytes(s)
	if err != nil {
		return fmt.Errorf("line %d: decoding bytes %q: %w", value.Line, s, err)
	}
	*b = data
	return nil
}

type relayBlock struct {
	Hash        hexHash `yaml:"hash"`
	Number      uint32  `yaml:"number"`
	StorageRoot hexHash `yaml:"storage_root"`
}

func (r relayBlock) info() inclusionemulator.RelayChainBlockInfo {
	return inclusionemulator.RelayChainBlockInfo{
		Hash:        common.Hash(r.Hash),
		StorageRoot: common.Hash(r.StorageRoot),
		Number:      parachaintypes.BlockNumber(r.Number),
	}
}

type scenarioConstraints struct {
	MinRelayParentNumber uint32   `yaml:"min_relay_parent_number"`
	MaxPoVSize           *uint32  `yaml:"max_pov_size"`
	MaxCodeSize          *uint32  `yaml:"max_code_size"`
	UMPRemaining         *uint32  `yaml:"ump_remaining"`
	UMPRemainingBytes    *uint32  `yaml:"ump_remaining_bytes"`
	ValidWatermarks      []uint32 `yaml:"valid_watermarks"`
	RequiredParent       hexBytes `yaml:"required_parent"`
	ValidationCodeHash   hexHash  `yaml:"validation_code_hash"`
	DMPRemainingMessages []uint32 `yaml:"dmp_remaining_messages"`
	UpgradeRestricted    bool     `yaml:"upgrade_restricted"`
	FutureCode           *hexHash `yaml:"future_validation_code_hash"`
	FutureCodeAt         uint32   `yaml:"future_validation_code_at"`
}

func valueOr(value *uint32, fallback uint32) uint32 {
	if value == nil {
		return fallback
	}
	return *value
}

func (c scenarioConstraints) constraints() *parachaintypes.Constraints {
	constraints := &parachaintypes.Constraints{
		MinRelayParentNumber:  parachaintypes.BlockNumber(c.MinRelayParentNumber),
		MaxPoVSize:            valueOr(c.MaxPoVSize, defaultMaxPoVSize),
		MaxCodeSize:           valueOr(c.MaxCodeSize, defaultMaxCodeSize),
		UMPRemaining:          valueOr(c.UMPRemaining, defaultUMPRemaining),
		UMPRemainingBytes:     valueOr(c.UMPRemainingBytes, defaultUMPRemainingBytes),
		MaxNumUMPPerCandidate: defaultUMPRemaining,
		HRMPChannelsOut:       make(map[parachaintypes.ParaID]parachaintypes.OutboundHRMPChannelLimitations),
		RequiredParent:        parachaintypes.HeadData{Data: c.RequiredParent},
		ValidationCodeHash:    parachaintypes.ValidationCodeHash(c.ValidationCodeHash),
	}

	for _, watermark := range c.ValidWatermarks {
		constraints.HRMPInbound.ValidWatermarks = append(constraints.HRMPInbound.ValidWatermarks,
			parachaintypes.BlockNumber(watermark))
	}
	for _, sentAt := range c.DMPRemainingMessages {
		constraints.DMPRemainingMessages = append(constraints.DMPRemainingMessages,
			parachaintypes.BlockNumber(sentAt))
	}

	if c.UpgradeRestricted {
		constraints.UpgradeRestriction = &parachaintypes.UpgradeRestriction{}
	}
	if c.FutureCode != nil {
		constraints.FutureValidationCode = &parachaintypes.FutureValidationCode{
			BlockNumber:        parachaintypes.BlockNumber(c.FutureCodeAt),
			ValidationCodeHash: parachaintypes.ValidationCodeHash(*c.FutureCode),
		}
	}
	return constraints
}

type scenarioCandidate struct {
	Name          string      `yaml:"name"`
	RelayParent   *relayBlock `yaml:"relay_parent"`
	ParentHead    hexBytes    `yaml:"parent_head"`
	Head          hexBytes    `yaml:"head"`
	HrmpWatermark *uint32     `yaml:"hrmp_watermark"`
	NewCode       hexBytes    `yaml:"new_validation_code"`
	Backed        bool        `yaml:"backed"`
	// PendingAvailability marks a candidate already backed on chain and
	// waiting to become available.
	PendingAvailability bool `yaml:"pending_availability"`
}

// scenario describes the relay chain view of a single para and the
// candidates known for it.
type scenario struct {
	Para        uint32              `yaml:"para"`
	MaxDepth    uint                `yaml:"max_depth"`
	RelayParent relayBlock          `yaml:"relay_parent"`
	Ancestors   []relayBlock        `yaml:"ancestors"`
	Constraints scenarioConstraints `yaml:"constraints"`
	Candidates  []scenarioCandidate `yaml:"candidates"`
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*scenario, error) {
	var s scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	seen := make(map[string]struct{}, len(s.Candidates))
	for _, candidate := range s.Candidates {
		if candidate.Name == "" {
			return nil, errNoCandidateName
		}
		if _, ok := seen[candidate.Name]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateCandidate, candidate.Name)
		}
		seen[candidate.Name] = struct{}{}

		if candidate.RelayParent == nil {
			return nil, fmt.Errorf("%w: candidate %s", errMissingRelayParent, candidate.Name)
		}
	}
	return &s, nil
}

// receipt builds the committed receipt of a candidate and the validation data
// it commits to.
func (c scenarioCandidate) receipt(
	para parachaintypes.ParaID,
	constraints *parachaintypes.Constraints,
) (parachaintypes.CommittedCandidateReceipt, parachaintypes.PersistedValidationData, error) {
	relayParent := c.RelayParent.info()
	pvd := parachaintypes.PersistedValidationData{
		ParentHead:             parachaintypes.HeadData{Data: c.ParentHead},
		RelayParentNumber:      uint32(relayParent.Number),
		RelayParentStorageRoot: relayParent.StorageRoot,
		MaxPovSize:             constraints.MaxPoVSize,
	}

	pvdHash, err := pvd.Hash()
	if err != nil {
		return parachaintypes.CommittedCandidateReceipt{}, pvd, fmt.Errorf("hashing validation data: %w", err)
	}

	head := parachaintypes.HeadData{Data: c.Head}
	headHash, err := head.Hash()
	if err != nil {
		return parachaintypes.CommittedCandidateReceipt{}, pvd, fmt.Errorf("hashing head data: %w", err)
	}

	receipt := parachaintypes.CommittedCandidateReceipt{
		Descriptor: parachaintypes.CandidateDescriptor{
			ParaID:                      para,
			RelayParent:                 relayParent.Hash,
			PersistedValidationDataHash: pvdHash,
			ParaHead:                    headHash,
			ValidationCodeHash:          constraints.ValidationCodeHash,
		},
		Commitments: parachaintypes.CandidateCommitments{
			HeadData:      head,
			HrmpWatermark: valueOr(c.HrmpWatermark, c.RelayParent.Number),
		},
	}
	if c.NewCode != nil {
		code := parachaintypes.ValidationCode(c.NewCode)
		receipt.Commitments.NewValidationCode = &code
	}
	return receipt, pvd, nil
}

// build fills a candidate storage from the scenario and creates the scope of
// its fragment chain. Candidates refused by the storage are reported by name.
func (s *scenario) build() (*built, error) {
	para := parachaintypes.ParaID(s.Para)
	constraints := s.Constraints.constraints()

	b := &built{
		storage:  prospectiveparachains.NewCandidateStorage(),
		names:    make(map[parachaintypes.CandidateHash]string, len(s.Candidates)),
		hashes:   make(map[string]parachaintypes.CandidateHash, len(s.Candidates)),
		rejected: make(map[string]string),
	}

	var pending []prospectiveparachains.PendingAvailability
	for _, candidate := range s.Candidates {
		receipt, pvd, err := candidate.receipt(para, constraints)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", candidate.Name, err)
		}

		state := prospectiveparachains.CandidateStateSeconded
		if candidate.Backed || candidate.PendingAvailability {
			state = prospectiveparachains.CandidateStateBacked
		}

		hash, err := b.storage.AddCandidate(receipt, pvd, state)
		if err != nil {
			logger.Warnf("candidate %s not stored: %s", candidate.Name, err)
			b.rejected[candidate.Name] = err.Error()
			continue
		}
		logger.Debugf("stored candidate %s as %s", candidate.Name, hash)

		b.names[hash] = candidate.Name
		b.hashes[candidate.Name] = hash
		b.order = append(b.order, hash)
		b.hypothetical = append(b.hypothetical, parachaintypes.HypotheticalCandidateComplete{
			Hash:                    hash,
			Receipt:                 receipt,
			PersistedValidationData: pvd,
		})

		if candidate.PendingAvailability {
			pending = append(pending, prospectiveparachains.PendingAvailability{
				CandidateHash: hash,
				RelayParent:   candidate.RelayParent.info(),
			})
		}
	}

	ancestors := make([]inclusionemulator.RelayChainBlockInfo, 0, len(s.Ancestors))
	for _, ancestor := range s.Ancestors {
		ancestors = append(ancestors, ancestor.info())
	}

	scope, err := prospectiveparachains.NewScopeWithAncestors(
		s.RelayParent.info(), constraints, pending, s.MaxDepth, ancestors)
	if err != nil {
		return nil, fmt.Errorf("creating scope: %w", err)
	}
	b.scope = scope
	return b, nil
}

type built struct {
	scope        *prospectiveparachains.Scope
	storage      *prospectiveparachains.CandidateStorage
	order        []parachaintypes.CandidateHash
	hypothetical []parachaintypes.HypotheticalCandidateComplete
	names        map[parachaintypes.CandidateHash]string
	hashes       map[string]parachaintypes.CandidateHash
	rejected     map[string]string
}

// resolve maps candidate names, or hex candidate hashes, to candidate hashes.
func (b *built) resolve(refs []string) (prospectiveparachains.Ancestors, error) {
	ancestors := make(prospectiveparachains.Ancestors, len(refs))
	for _, ref := range refs {
		if hash, ok := b.hashes[ref]; ok {
			ancestors[hash] = struct{}{}
			continue
		}

		hash, err := common.HexToHash(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errUnknownCandidate, ref)
		}
		ancestors[parachaintypes.CandidateHash{Value: hash}] = struct{}{}
	}
	return ancestors, nil
}

func (b *built) name(hash parachaintypes.CandidateHash) string {
	if name, ok := b.names[hash]; ok {
		return name
	}
	return hash.String()
}
