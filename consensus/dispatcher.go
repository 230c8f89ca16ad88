package consensus

// dispatchLoop is the single-threaded per-process activity of §5: consume
// the inbound queue, validate, update registers/index, emit responses. It
// is the sole writer of the guarded state in Process.
func (p *Process) dispatchLoop() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			p.dispatchLogger.Info().Msg("dispatcher received stop signal, terminating")
			return
		case msg, ok := <-p.in:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *Process) handleMessage(msg Message) {
	switch {
	case msg.Broadcast != nil:
		p.handleBroadcast(*msg.Broadcast)
	case msg.Response != nil:
		p.handleResponse(*msg.Response)
	}
}

func (p *Process) handleBroadcast(b Broadcast) {
	p.dispatchLogger.Debug().
		Str("step", b.Step.String()).
		Int("sender", int(b.Sender)).
		Int64("rank", int64(b.Rank)).
		Int64("value", b.Value).
		Msg("received broadcast")

	reliable := p.isReliableBroadcast(b)
	if !reliable {
		p.suspicion.Record(b.Sender, "invalid certificate")
		p.certLogger.Debug().Int("sender", int(b.Sender)).Msg("dropped broadcast: failed reliable-broadcast check")
		return
	}

	p.recordCitations(b)
	p.recordSeen(b)

	switch b.Step {
	case StepR:
		p.answerR(b)
	case StepA:
		p.answerA(b)
	case StepB:
		p.answerB(b)
	}
}

// recordSeen registers b (by content-hash) in broadcasts-seen. Different
// senders broadcasting the same logical (step, value, flag, rank) collide on
// purpose, per §3; only the first instance is kept as the "representative"
// for the responsible-broadcast lookup, and the repetition count is bumped.
func (p *Process) recordSeen(b Broadcast) {
	h := b.Hash()
	if existing, ok := p.broadcastsSeen[h]; ok {
		existing.Count++
		return
	}
	p.broadcastsSeen[h] = &seenBroadcast{Broadcast: b, Count: 1}
}

// recordCitations implements the amplification bookkeeping of §9: for every
// distinct broadcast a certificate justifies, note that this broadcast's
// certificate cited it. The citer is identified by sender, not by b's own
// content-hash — b.Hash() deliberately collides across senders (§3), so
// using it here would undercount independent certificates from different
// senders that happen to carry the same logical payload.
func (p *Process) recordCitations(b Broadcast) {
	if b.Certificate == nil {
		return
	}
	for _, resp := range b.Certificate {
		for _, st := range resp.State {
			target := st.Justification.Hash()
			set, ok := p.ampCitations[target]
			if !ok {
				set = make(map[ProcessID]bool)
				p.ampCitations[target] = set
			}
			set[b.Sender] = true
		}
	}
}

func (p *Process) amplificationCount(h BroadcastHash) int {
	return len(p.ampCitations[h])
}

// responsibleBroadcast finds a seen broadcast matching (step, rank, value)
// and, for B-step lookups, flag — the "bcast responsible for this value"
// lookup of §4.3.
func (p *Process) responsibleBroadcast(step Step, rank Rank, value int64, flag *bool) (Broadcast, bool) {
	for _, sb := range p.broadcastsSeen {
		b := sb.Broadcast
		if b.Step != step || b.Rank != rank || b.Value != value {
			continue
		}
		if flag != nil {
			if b.Flag == nil || *b.Flag != *flag {
				continue
			}
		}
		return b, true
	}
	return Broadcast{}, false
}

// answerR implements the R-answer rule of §4.3.
func (p *Process) answerR(b Broadcast) {
	newR := RValue{Rank: b.Rank, Value: b.Value}

	p.mu.Lock()
	p.rRegister = maxRValue(p.rRegister, newR)
	current := p.rRegister
	p.mu.Unlock()

	justifying, ok := p.responsibleBroadcast(StepR, current.Rank, current.Value, nil)
	if !ok {
		// Our own register update is always backed by a broadcast we just
		// saw (the one delivered, or an earlier one with the same value).
		justifying = b
	}

	resp := Response{
		Sender: p.id,
		Step:   StepR,
		Rank:   b.Rank,
		State:  []State{{Value: current, Justification: justifying}},
	}
	p.sendMessage(Message{Response: &resp})
}

// answerA implements the A-answer rule of §4.3.
func (p *Process) answerA(b Broadcast) {
	v := AValue(b.Value)

	p.mu.Lock()
	slot := p.aRegisters[b.Rank]
	switch {
	case !containsA(slot, v) && len(slot) < 2:
		slot = append(slot, v)
	case int64(v) > maxA(slot):
		idx := minAIndex(slot)
		if idx >= 0 {
			slot[idx] = v
		}
	}
	// Open question (§9): a tie with the current maximum when the slot is
	// already full is a no-op, matching the original implementation.
	p.aRegisters[b.Rank] = slot
	current := append([]AValue(nil), slot...)
	p.mu.Unlock()

	states := make([]State, 0, len(current))
	seen := map[AValue]bool{}
	for _, a := range current {
		if seen[a] {
			continue
		}
		seen[a] = true
		if just, ok := p.responsibleBroadcast(StepA, b.Rank, int64(a), nil); ok {
			states = append(states, State{Value: a, Justification: just})
		}
	}

	resp := Response{Sender: p.id, Step: StepA, Rank: b.Rank, State: states}
	p.sendMessage(Message{Response: &resp})
}

func containsA(s []AValue, v AValue) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func maxA(s []AValue) int64 {
	if len(s) == 0 {
		return minInt64
	}
	m := int64(s[0])
	for _, x := range s[1:] {
		if int64(x) > m {
			m = int64(x)
		}
	}
	return m
}

func minAIndex(s []AValue) int {
	if len(s) == 0 {
		return -1
	}
	idx := 0
	for i, x := range s[1:] {
		if int64(x) < int64(s[idx]) {
			idx = i + 1
		}
	}
	return idx
}

const minInt64 = -(1 << 62)

// answerB implements the B-answer rule of §4.3.
func (p *Process) answerB(b Broadcast) {
	if b.Flag == nil {
		p.suspicion.Record(b.Sender, "B-step broadcast missing flag")
		return
	}
	v := BValue{Value: b.Value, Flag: *b.Flag}

	p.mu.Lock()
	slot := p.bRegisters[b.Rank]
	m := maxB(slot)
	switch {
	case len(slot) < 2:
		slot = append(slot, v)
	case (v.Flag && !containsB(slot, v)) || (!v.Flag && v.Value > m):
		slot[0] = v
	}
	p.bRegisters[b.Rank] = slot
	current := append([]BValue(nil), slot...)
	p.mu.Unlock()

	var truePairs, falsePairs []BValue
	for _, bv := range current {
		if bv.Flag {
			truePairs = append(truePairs, bv)
		} else {
			falsePairs = append(falsePairs, bv)
		}
	}

	var states []State
	switch {
	case len(truePairs) > 0 && len(falsePairs) == 0:
		if just, ok := p.responsibleBroadcast(StepB, b.Rank, truePairs[0].Value, boolPtr(true)); ok {
			states = append(states, State{Value: truePairs[0], Justification: just})
		}
	case len(truePairs) > 0 && len(falsePairs) > 0:
		if just, ok := p.responsibleBroadcast(StepB, b.Rank, truePairs[0].Value, boolPtr(true)); ok {
			states = append(states, State{Value: truePairs[0], Justification: just})
		}
		highest := highestB(falsePairs)
		if just, ok := p.responsibleBroadcast(StepB, b.Rank, highest.Value, boolPtr(false)); ok {
			states = append(states, State{Value: highest, Justification: just})
		}
	case len(falsePairs) > 0:
		highest := highestB(falsePairs)
		if just, ok := p.responsibleBroadcast(StepB, b.Rank, highest.Value, boolPtr(false)); ok {
			states = append(states, State{Value: highest, Justification: just})
		}
	}

	resp := Response{Sender: p.id, Step: StepB, Rank: b.Rank, State: states}
	p.sendMessage(Message{Response: &resp})
}

func boolPtr(b bool) *bool { return &b }

func containsB(s []BValue, v BValue) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func maxB(s []BValue) int64 {
	if len(s) == 0 {
		return minInt64
	}
	m := s[0].Value
	for _, x := range s[1:] {
		if x.Value > m {
			m = x.Value
		}
	}
	return m
}

func highestB(s []BValue) BValue {
	best := s[0]
	for _, x := range s[1:] {
		if x.Value > best.Value {
			best = x
		}
	}
	return best
}

// handleResponse implements the response-level reliable check of §4.4: hold
// well-formed responses in the pending-responses table keyed by the set of
// their justifying broadcasts' content-hashes, and promote every response in
// a group once 2f+1 distinct responses share that key.
func (p *Process) handleResponse(r Response) {
	p.dispatchLogger.Debug().
		Str("step", r.Step.String()).
		Int("sender", int(r.Sender)).
		Int64("rank", int64(r.Rank)).
		Msg("received response")

	if !r.wellFormed() {
		p.suspicion.Record(r.Sender, "malformed response")
		p.dispatchLogger.Debug().Int("sender", int(r.Sender)).Msg("dropped response: not well-formed")
		return
	}
	if !p.verifySignature(r) {
		p.suspicion.Record(r.Sender, "signature check failed")
		return
	}

	hashes := make([]BroadcastHash, 0, len(r.State))
	for _, s := range r.State {
		hashes = append(hashes, s.Justification.Hash())
	}
	key := certKey(hashes)

	group := p.pendingResponses[key]
	for _, existing := range group {
		if existing.Sender == r.Sender {
			return
		}
	}
	group = append(group, r)
	p.pendingResponses[key] = group

	threshold := 2*p.f + 1
	if len(group) < threshold {
		return
	}

	p.mu.Lock()
	for _, resp := range group {
		k := indexKey{Step: resp.Step, Rank: resp.Rank}
		bucket, ok := p.responseIndex[k]
		if !ok {
			bucket = make(map[ProcessID]Response)
			p.responseIndex[k] = bucket
		}
		if _, already := bucket[resp.Sender]; !already && len(bucket) < threshold {
			bucket[resp.Sender] = resp
		}
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}
