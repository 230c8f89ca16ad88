package preconsensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archipelago/bft-consensus/consensus"
)

func validPreProposal(sender consensus.ProcessID) PreProposal {
	frontiers := make([]FrontierHash, FrontiersThreshold)
	for i := range frontiers {
		frontiers[i][0] = byte(sender)
		frontiers[i][1] = byte(i)
		frontiers[i][2] = byte(i >> 8)
	}
	return NewPreProposal(frontiers, sender)
}

func TestCollectPreProposalSucceedsAtThreshold(t *testing.T) {
	f := 1
	delivered := []PreProposal{validPreProposal(0), validPreProposal(1), validPreProposal(2)}

	proposal, err := CollectPreProposal(delivered, f, 0)
	require.NoError(t, err)
	require.Len(t, proposal.Preproposals, 3)
}

func TestCollectPreProposalFailsBelowThreshold(t *testing.T) {
	f := 1
	delivered := []PreProposal{validPreProposal(0), validPreProposal(1)}

	_, err := CollectPreProposal(delivered, f, 0)
	require.ErrorIs(t, err, ErrInsufficientPreProposals)
}

func TestCollectPreProposalIgnoresInvalidAndDuplicateSenders(t *testing.T) {
	f := 1
	invalid := PreProposal{Frontiers: []FrontierHash{fh(1)}, Sender: 5}
	dup := validPreProposal(0)
	delivered := []PreProposal{validPreProposal(0), dup, invalid, validPreProposal(1), validPreProposal(2)}

	proposal, err := CollectPreProposal(delivered, f, 0)
	require.NoError(t, err)
	require.Len(t, proposal.Preproposals, 3)
}
