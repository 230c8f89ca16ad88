package preconsensus

import (
	"errors"

	"github.com/archipelago/bft-consensus/consensus"
)

// ErrInsufficientPreProposals is returned by CollectPreProposal when fewer
// than 2f+1 valid preproposals are available.
var ErrInsufficientPreProposals = errors.New("preconsensus: fewer than 2f+1 valid preproposals")

// CollectPreProposal runs the preconsensus aggregation step: out of
// delivered, pick the first 2f+1 valid PreProposals (deduplicated by
// sender, first-seen wins) and fold them into a Proposal attributed to
// sender. This is the step whose output hash seeds a consensus round's
// initial value (SPEC's Process.Propose v).
func CollectPreProposal(delivered []PreProposal, f int, sender consensus.ProcessID) (Proposal, error) {
	threshold := 2*f + 1

	seen := make(map[consensus.ProcessID]bool, len(delivered))
	picked := make([]PreProposal, 0, threshold)
	for _, pp := range delivered {
		if !pp.Valid() || seen[pp.Sender] {
			continue
		}
		seen[pp.Sender] = true
		picked = append(picked, pp)
		if len(picked) == threshold {
			break
		}
	}

	if len(picked) < threshold {
		return Proposal{}, ErrInsufficientPreProposals
	}

	return CreateProposal(picked, sender), nil
}
