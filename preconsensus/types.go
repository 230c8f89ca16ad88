// Package preconsensus implements the frontier-union preproposal layer that
// runs ahead of a consensus round: every process gathers its local frontier
// set into a PreProposal, 2f+1 of those are combined into a Proposal whose
// hash becomes the value a consensus.Process.Propose call actually agrees
// on. This guarantees any value reaching consensus already reflects blocks
// finalized by at least f+1 correct processes.
package preconsensus

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/archipelago/bft-consensus/consensus"
)

// FrontiersThreshold is the exact number of frontier hashes a PreProposal
// must carry to be considered well-formed.
const FrontiersThreshold = 1000

// FrontierHash identifies one finalized block at the tip of a process's
// local chain.
type FrontierHash [32]byte

// PreProposalHash is the content-address of a PreProposal: the hash of its
// (deduplicated, order-independent) frontier set.
type PreProposalHash [32]byte

// ProposalHash is the content-address of a Proposal: the hash of its
// (deduplicated, order-independent) set of constituent PreProposalHashes.
type ProposalHash [32]byte

// PreProposal is one process's claim about its local frontier set. Valid
// iff it carries exactly FrontiersThreshold frontiers, each backed by at
// least 2f+1 votes at the caller's layer (a Non-goal here: this package
// takes the frontier set as given and only handles aggregation).
type PreProposal struct {
	Frontiers []FrontierHash
	Sender    consensus.ProcessID
	Hash      PreProposalHash
}

// NewPreProposal builds a PreProposal over frontiers, computing its
// content-hash over the deduplicated, sorted set so that two PreProposals
// carrying the same frontiers in different orders hash identically.
func NewPreProposal(frontiers []FrontierHash, sender consensus.ProcessID) PreProposal {
	return PreProposal{
		Frontiers: frontiers,
		Sender:    sender,
		Hash:      hashFrontierSet(frontiers),
	}
}

// Valid reports whether p carries exactly FrontiersThreshold frontiers.
func (p PreProposal) Valid() bool {
	return len(p.Frontiers) == FrontiersThreshold
}

func hashFrontierSet(frontiers []FrontierHash) PreProposalHash {
	dedup := make(map[FrontierHash]struct{}, len(frontiers))
	for _, f := range frontiers {
		dedup[f] = struct{}{}
	}
	sorted := make([]FrontierHash, 0, len(dedup))
	for f := range dedup {
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	h := sha256.New()
	for _, f := range sorted {
		h.Write(f[:])
	}
	var out PreProposalHash
	copy(out[:], h.Sum(nil))
	return out
}

// Proposal is the union of 2f+1 PreProposals, reduced to the set of their
// hashes; the union of their underlying frontiers is not stored and is
// computed by Frontiers from the PreProposals passed to it. Its Hash is the
// value that ultimately seeds a consensus round.
type Proposal struct {
	Preproposals []PreProposalHash
	Sender       consensus.ProcessID
	Hash         ProposalHash
}

// CreateProposal builds a Proposal out of preproposals, attributed to
// sender. It is the caller's responsibility to ensure len(preproposals) is
// at least 2f+1 and every member is Valid — CollectPreProposal enforces
// both.
func CreateProposal(preproposals []PreProposal, sender consensus.ProcessID) Proposal {
	hashes := make([]PreProposalHash, len(preproposals))
	for i, pp := range preproposals {
		hashes[i] = pp.Hash
	}
	return Proposal{
		Preproposals: hashes,
		Sender:       sender,
		Hash:         hashProposalSet(hashes),
	}
}

func hashProposalSet(hashes []PreProposalHash) ProposalHash {
	dedup := make(map[PreProposalHash]struct{}, len(hashes))
	for _, h := range hashes {
		dedup[h] = struct{}{}
	}
	sorted := make([]PreProposalHash, 0, len(dedup))
	for h := range dedup {
		sorted = append(sorted, h)
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	hasher := sha256.New()
	for _, h := range sorted {
		hasher.Write(h[:])
	}
	var out ProposalHash
	copy(out[:], hasher.Sum(nil))
	return out
}

// Frontiers returns the union of every frontier carried by the
// PreProposals in all that are actually referenced by p, sorted for
// determinism. all need not be limited to p's constituents; non-members are
// skipped.
func (p Proposal) Frontiers(all []PreProposal) []FrontierHash {
	referenced := make(map[PreProposalHash]bool, len(p.Preproposals))
	for _, h := range p.Preproposals {
		referenced[h] = true
	}

	union := make(map[FrontierHash]struct{})
	for _, pp := range all {
		if !referenced[pp.Hash] {
			continue
		}
		for _, f := range pp.Frontiers {
			union[f] = struct{}{}
		}
	}

	out := make([]FrontierHash, 0, len(union))
	for f := range union {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
