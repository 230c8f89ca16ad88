package preconsensus

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archipelago/bft-consensus/consensus"
)

func fh(b byte) FrontierHash {
	var f FrontierHash
	f[0] = b
	return f
}

func TestPreProposalHashOrderIndependent(t *testing.T) {
	p1 := NewPreProposal([]FrontierHash{fh(1), fh(2)}, 0)
	p2 := NewPreProposal([]FrontierHash{fh(2), fh(1)}, 0)
	require.Equal(t, p1.Hash, p2.Hash)
}

func TestPreProposalHashSenderIndependent(t *testing.T) {
	p1 := NewPreProposal([]FrontierHash{fh(1)}, 0)
	p2 := NewPreProposal([]FrontierHash{fh(1)}, 9)
	require.Equal(t, p1.Hash, p2.Hash)
}

func TestPreProposalValid(t *testing.T) {
	frontiers := make([]FrontierHash, FrontiersThreshold)
	require.True(t, NewPreProposal(frontiers, 0).Valid())
	require.False(t, NewPreProposal(frontiers[:1], 0).Valid())
}

func TestCreateProposalOrderIndependent(t *testing.T) {
	a := PreProposalHash(sha256.Sum256([]byte("a")))
	b := PreProposalHash(sha256.Sum256([]byte("b")))

	p1 := CreateProposal([]PreProposal{{Hash: a}, {Hash: b}}, 0)
	p2 := CreateProposal([]PreProposal{{Hash: b}, {Hash: a}}, 0)
	require.Equal(t, p1.Hash, p2.Hash)
}

func TestProposalFrontiersUnion(t *testing.T) {
	pp1 := NewPreProposal([]FrontierHash{fh(1), fh(2)}, 0)
	pp2 := NewPreProposal([]FrontierHash{fh(2), fh(3)}, 1)
	proposal := CreateProposal([]PreProposal{pp1, pp2}, consensus.ProcessID(0))

	union := proposal.Frontiers([]PreProposal{pp1, pp2})
	require.ElementsMatch(t, []FrontierHash{fh(1), fh(2), fh(3)}, union)
}
