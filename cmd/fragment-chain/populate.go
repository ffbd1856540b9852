// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	prospectiveparachains "github.com/paritytech/polkadot-sdk-sub011/dot/parachain/prospective-parachains"
)

type membership struct {
	Candidate string
	State     string
}

// report is what populate found for a scenario. Candidates are named after
// the scenario entries.
type report struct {
	Chain    []string
	Members  []membership
	Backable []string
	// Rejected maps the candidates refused by the storage to the reason.
	Rejected map[string]string
}

func populate(s *scenario, ancestorRefs []string, count uint32) (*report, error) {
	b, err := s.build()
	if err != nil {
		return nil, err
	}

	ancestors, err := b.resolve(ancestorRefs)
	if err != nil {
		return nil, err
	}

	chain := prospectiveparachains.PopulateFragmentChain(b.scope, b.storage)
	logger.Debugf("fragment chain of para %d has %d candidates", s.Para, chain.Len())

	r := &report{Rejected: b.rejected}
	for _, hash := range chain.ChainHashes() {
		r.Chain = append(r.Chain, b.name(hash))
	}

	for _, candidate := range b.hypothetical {
		state := chain.HypotheticalDepths(candidate.Hash, candidate, b.storage)
		r.Members = append(r.Members, membership{
			Candidate: b.name(candidate.Hash),
			State:     state.String(),
		})
	}

	for _, hash := range chain.FindBackableChain(ancestors, count, b.storage.IsBacked) {
		r.Backable = append(r.Backable, b.name(hash))
	}
	return r, nil
}

func (r *report) write(w io.Writer) {
	fmt.Fprintf(w, "chain: %s\n", strings.Join(r.Chain, " "))
	for _, member := range r.Members {
		fmt.Fprintf(w, "candidate %s: %s\n", member.Candidate, member.State)
	}

	rejected := make([]string, 0, len(r.Rejected))
	for name := range r.Rejected {
		rejected = append(rejected, name)
	}
	slices.Sort(rejected)
	for _, name := range rejected {
		fmt.Fprintf(w, "rejected %s: %s\n", name, r.Rejected[name])
	}

	fmt.Fprintf(w, "backable: %s\n", strings.Join(r.Backable, " "))
}
