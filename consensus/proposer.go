package consensus

import (
	"context"
	"math"
)

// Stopped is the sentinel Propose returns when the process was stopped (or
// its context cancelled) before reaching a decision, per §5's cancellation
// semantics.
const Stopped int64 = math.MinInt64

// Propose is the proposer activity of §4.1: drive the R/A/B loop starting
// at rank0 with value0, adopting and advancing rank on Adopt, returning the
// committed value on Commit. threshold is conventionally 2f+1.
func (p *Process) Propose(ctx context.Context, threshold int, value0 int64, rank0 Rank) int64 {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-finished:
		}
	}()

	value, rank := value0, rank0
	for {
		if p.cancelled(ctx) {
			return Stopped
		}

		rValue, ok := p.rStep(ctx, threshold, RValue{Rank: rank, Value: value})
		if !ok {
			return Stopped
		}

		flag, aValue, ok := p.aStep(ctx, threshold, rValue)
		if !ok {
			return Stopped
		}

		decision, ok := p.bStep(ctx, threshold, rValue.Rank, flag, aValue)
		if !ok {
			return Stopped
		}

		if decision.Committed {
			p.proposeLogger.Info().Int64("rank", int64(rValue.Rank)).Int64("value", decision.Value).Msg("committed")
			return decision.Value
		}

		p.proposeLogger.Info().Int64("rank", int64(rValue.Rank)).Int64("value", decision.Value).Msg("adopted, advancing rank")
		value = decision.Value
		rank = rValue.Rank + 1
	}
}

func (p *Process) cancelled(ctx context.Context) bool {
	return p.stopped_() || ctx.Err() != nil
}

// rStep is §4.1 step 1: broadcast R (with a B-certificate from rank-1 unless
// rank is 0), wait for 2f+1 R-responses, return the maximum RValue seen.
func (p *Process) rStep(ctx context.Context, threshold int, rv RValue) (RValue, bool) {
	rank := rv.Rank
	p.proposeLogger.Info().Int64("rank", int64(rank)).Int64("value", rv.Value).Msg("R-step starting")

	if rank > 0 {
		cert, ok := p.waitForResponses(ctx, StepB, rank-1, threshold)
		if !ok {
			return RValue{}, false
		}
		b := Broadcast{Sender: p.id, Step: StepR, Rank: rank, Value: rv.Value, Certificate: cert}
		p.sendMessage(Message{Broadcast: &b})
	} else {
		b := Broadcast{Sender: p.id, Step: StepR, Rank: rank, Value: rv.Value}
		p.sendMessage(Message{Broadcast: &b})
	}

	responses, ok := p.waitForResponses(ctx, StepR, rank, threshold)
	if !ok {
		return RValue{}, false
	}
	max, found := aggregateRMax(responses)
	if !found {
		return RValue{}, false
	}
	return max, true
}

// aStep is §4.1 step 2: broadcast A with the R-certificate just collected,
// wait for 2f+1 A-responses, return (true, v) on unanimity, else
// (false, max value seen).
func (p *Process) aStep(ctx context.Context, threshold int, r RValue) (bool, int64, bool) {
	rank := r.Rank
	p.proposeLogger.Info().Int64("rank", int64(rank)).Int64("value", r.Value).Msg("A-step starting")

	rCert, ok := p.waitForResponses(ctx, StepR, rank, threshold)
	if !ok {
		return false, 0, false
	}
	b := Broadcast{Sender: p.id, Step: StepA, Rank: rank, Value: r.Value, Certificate: rCert}
	p.sendMessage(Message{Broadcast: &b})

	responses, ok := p.waitForResponses(ctx, StepA, rank, threshold)
	if !ok {
		return false, 0, false
	}
	flag, value := aggregateA(responses, threshold)
	return flag, value, true
}

// bStep is §4.1 step 3: broadcast B with the A-certificate just collected,
// wait for 2f+1 B-responses, decide Commit or Adopt per §4.1's rule.
func (p *Process) bStep(ctx context.Context, threshold int, rank Rank, flag bool, value int64) (Decision, bool) {
	p.proposeLogger.Info().Int64("rank", int64(rank)).Int64("value", value).Bool("flag", flag).Msg("B-step starting")

	aCert, ok := p.waitForResponses(ctx, StepA, rank, threshold)
	if !ok {
		return Decision{}, false
	}
	f := flag
	b := Broadcast{Sender: p.id, Step: StepB, Rank: rank, Value: value, Flag: &f, Certificate: aCert}
	p.sendMessage(Message{Broadcast: &b})

	responses, ok := p.waitForResponses(ctx, StepB, rank, threshold)
	if !ok {
		return Decision{}, false
	}
	return aggregateB(responses, threshold), true
}

// waitForResponses is the only blocking primitive in the proposer (§5): it
// waits until the response index holds at least threshold entries for
// (step, rank), using a condition variable rather than busy-polling. It
// returns false if the process was stopped or ctx was cancelled first.
func (p *Process) waitForResponses(ctx context.Context, step Step, rank Rank, threshold int) ([]Response, bool) {
	key := indexKey{Step: step, Rank: rank}

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.responseIndex[key]) < threshold {
		if p.cancelled(ctx) {
			return nil, false
		}
		p.cond.Wait()
	}
	if p.cancelled(ctx) {
		return nil, false
	}

	bucket := p.responseIndex[key]
	out := make([]Response, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r)
	}
	return out, true
}

// sendMessage is the outbound half of §6: construct the wire message, run
// it through the Byzantine fuzzer when this process is adversarial (§6's
// fuzz injector), then fan it out to every peer channel, one goroutine per
// send. A send to a closed peer channel is logged and does not abort the
// process, per §7 — with at most f silent peers the protocol still
// progresses; a send to a blocked channel waits in its goroutine until the
// process stops.
func (p *Process) sendMessage(msg Message) {
	if p.byzantine && p.rng != nil {
		p.rng.mutate(&msg)
	}

	switch {
	case msg.Broadcast != nil:
		p.proposeLogger.Debug().
			Str("step", msg.Broadcast.Step.String()).
			Int64("rank", int64(msg.Broadcast.Rank)).
			Int64("value", msg.Broadcast.Value).
			Msg("sending broadcast")
	case msg.Response != nil:
		p.dispatchLogger.Debug().
			Str("step", msg.Response.Step.String()).
			Int64("rank", int64(msg.Response.Rank)).
			Msg("sending response")
	}

	for _, ch := range p.out {
		go p.deliver(ch, msg)
	}
}

func (p *Process) deliver(ch chan<- Message, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			p.proposeLogger.Warn().Interface("panic", r).Msg("channel send failed")
		}
	}()
	select {
	case ch <- msg:
	case <-p.stopCh:
	}
}
