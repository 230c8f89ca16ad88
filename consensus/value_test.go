package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRValueLess(t *testing.T) {
	require.True(t, RValue{Rank: 0, Value: 5}.Less(RValue{Rank: 1, Value: 0}))
	require.True(t, RValue{Rank: 2, Value: 1}.Less(RValue{Rank: 2, Value: 2}))
	require.False(t, RValue{Rank: 2, Value: 2}.Less(RValue{Rank: 2, Value: 2}))
	require.False(t, RValue{Rank: 3, Value: 0}.Less(RValue{Rank: 2, Value: 100}))
}

func TestMaxRValue(t *testing.T) {
	a := RValue{Rank: 1, Value: 9}
	b := RValue{Rank: 1, Value: 3}
	require.Equal(t, a, maxRValue(a, b))
	require.Equal(t, a, maxRValue(b, a))
}

// TestHashInvariance is property 6 of the testable properties: two
// broadcasts sharing (step, v, flag, rank) hash equal regardless of sender
// or certificate, and changing any of those four fields changes the hash.
func TestHashInvariance(t *testing.T) {
	flag := true
	base := Broadcast{Sender: 1, Step: StepB, Rank: 3, Value: 42, Flag: &flag}
	sameLogical := Broadcast{Sender: 2, Step: StepB, Rank: 3, Value: 42, Flag: &flag, Certificate: []Response{{Sender: 9}}}
	require.Equal(t, base.Hash(), sameLogical.Hash())

	diffStep := base
	diffStep.Step = StepA
	require.NotEqual(t, base.Hash(), diffStep.Hash())

	diffValue := base
	diffValue.Value = 43
	require.NotEqual(t, base.Hash(), diffValue.Hash())

	diffRank := base
	diffRank.Rank = 4
	require.NotEqual(t, base.Hash(), diffRank.Hash())

	otherFlag := false
	diffFlag := base
	diffFlag.Flag = &otherFlag
	require.NotEqual(t, base.Hash(), diffFlag.Hash())

	nilFlag := base
	nilFlag.Flag = nil
	require.NotEqual(t, base.Hash(), nilFlag.Hash())
}

func TestResponseWellFormed(t *testing.T) {
	r := Response{
		Step: StepR,
		Rank: 2,
		State: []State{
			{Value: RValue{Rank: 2, Value: 1}, Justification: Broadcast{Step: StepR, Rank: 2}},
		},
	}
	require.True(t, r.wellFormed())

	bad := Response{
		Step: StepR,
		Rank: 2,
		State: []State{
			{Value: RValue{Rank: 2, Value: 1}, Justification: Broadcast{Step: StepA, Rank: 2}},
		},
	}
	require.False(t, bad.wellFormed())
}
