package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestHandleResponsePromotesOnceThresholdReached exercises the §4.4
// response-level reliable check directly: well-formed responses accumulate
// in the pending-responses table keyed by their justifying broadcasts'
// hashes, and only get promoted into the response index once 2f+1 distinct
// senders have contributed to the same key.
func TestHandleResponsePromotesOnceThresholdReached(t *testing.T) {
	in := make(chan Message)
	p := NewProcess(0, 1, nil, in, false)
	defer func() {
		p.Stop()
		<-p.Done()
	}()

	make1 := func(sender ProcessID) Response { return rResp(sender, 4, 100) }

	in <- Message{Response: ptr(make1(0))}
	in <- Message{Response: ptr(make1(1))}

	time.Sleep(20 * time.Millisecond)
	p.mu.Lock()
	require.Empty(t, p.responseIndex[indexKey{Step: StepR, Rank: 4}])
	p.mu.Unlock()

	in <- Message{Response: ptr(make1(2))}
	time.Sleep(20 * time.Millisecond)

	p.mu.Lock()
	bucket := p.responseIndex[indexKey{Step: StepR, Rank: 4}]
	p.mu.Unlock()
	require.Len(t, bucket, 3)
}

// TestHandleResponseDropsMalformed exercises the malformed-message branch
// of the §7 error taxonomy: a response whose justification step/rank
// disagrees with its own is dropped and recorded in the suspicion ledger,
// never reaching the pending-responses table.
func TestHandleResponseDropsMalformed(t *testing.T) {
	in := make(chan Message)
	p := NewProcess(0, 1, nil, in, false)
	defer func() {
		p.Stop()
		<-p.Done()
	}()

	bad := Response{
		Sender: 7,
		Step:   StepR,
		Rank:   1,
		State: []State{
			{Value: RValue{Rank: 1, Value: 1}, Justification: Broadcast{Step: StepA, Rank: 1}},
		},
	}
	in <- Message{Response: &bad}
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, p.Suspicion().Count(7))
	p.mu.Lock()
	require.Empty(t, p.responseIndex[indexKey{Step: StepR, Rank: 1}])
	p.mu.Unlock()
}

// TestHandleBroadcastDropsInvalidCertificate exercises the invalid-
// certificate branch: a non-rank-0 broadcast with no certificate and no
// amplification is dropped and recorded.
func TestHandleBroadcastDropsInvalidCertificate(t *testing.T) {
	in := make(chan Message)
	p := NewProcess(0, 1, nil, in, false)
	defer func() {
		p.Stop()
		<-p.Done()
	}()

	b := Broadcast{Sender: 3, Step: StepA, Rank: 1, Value: 5}
	in <- Message{Broadcast: &b}
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, p.Suspicion().Count(3))
}

func ptr(r Response) *Response { return &r }
