package consensus

import "hash/fnv"

// BroadcastHash is the content-addressable identity of a Broadcast. It
// deliberately covers only (step, value, flag, rank) — sender and
// certificate are excluded on purpose, so that two different processes
// broadcasting the same logical message collide, letting the "broadcast
// responsible for this value" lookup (§4.3) match any sender who said the
// same thing.
type BroadcastHash uint64

// Broadcast is one of the two message kinds the protocol exchanges. A
// process sends at most one Broadcast per (step, rank).
type Broadcast struct {
	Sender      ProcessID
	Step        Step
	Rank        Rank
	Value       int64
	Flag        *bool // only set for B-step broadcasts
	Certificate []Response
}

// Hash computes the content-hash identity of b over exactly
// (step, value, flag, rank), per §3's invariant.
func (b Broadcast) Hash() BroadcastHash {
	h := fnv.New64a()
	var buf [1 + 8 + 1 + 8 + 8]byte
	buf[0] = byte(b.Step)
	putInt64(buf[1:9], b.Value)
	switch {
	case b.Flag == nil:
		buf[9] = 0
	case !*b.Flag:
		buf[9] = 1
	default:
		buf[9] = 2
	}
	putInt64(buf[10:18], int64(b.Rank))
	_, _ = h.Write(buf[:])
	return BroadcastHash(h.Sum64())
}

func putInt64(dst []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(u >> (8 * uint(i)))
	}
}

// State pairs a value carried by a Response with the Broadcast that
// justifies it: the broadcast whose (step, rank, value[, flag]) matches the
// value being certified, found via broadcasts-seen (§4.3).
type State struct {
	Value         StepValue
	Justification Broadcast
}

// Response is the second message kind: a process's answer to a delivered
// Broadcast, carrying one state per value it certifies at (step, rank).
type Response struct {
	Sender ProcessID
	Step   Step
	Rank   Rank
	State  []State
}

// wellFormed is the stateless well-formedness predicate of §4.4: every
// state's justifying broadcast must share the response's step and rank.
func (r Response) wellFormed() bool {
	for _, s := range r.State {
		if s.Justification.Step != r.Step || s.Justification.Rank != r.Rank {
			return false
		}
	}
	return true
}

func (r Response) rValues() []RValue {
	out := make([]RValue, 0, len(r.State))
	for _, s := range r.State {
		if v, ok := s.Value.(RValue); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r Response) aValues() []AValue {
	out := make([]AValue, 0, len(r.State))
	for _, s := range r.State {
		if v, ok := s.Value.(AValue); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r Response) bValues() []BValue {
	out := make([]BValue, 0, len(r.State))
	for _, s := range r.State {
		if v, ok := s.Value.(BValue); ok {
			out = append(out, v)
		}
	}
	return out
}
