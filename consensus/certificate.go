package consensus

// isReliableBroadcast implements the certificate validator of §4.2: a
// Broadcast is reliable iff it's a rank-0 R-step broadcast, or it has been
// amplified (cited by more than f distinct certificates already routed
// through this process), or its own certificate replays correctly through
// the step-appropriate aggregation rule.
func (p *Process) isReliableBroadcast(b Broadcast) bool {
	if b.Step == StepR && b.Rank == 0 {
		if b.Flag != nil {
			return false
		}
		return true
	}

	if p.amplificationCount(b.Hash()) > p.f {
		return true
	}

	if b.Certificate == nil {
		return false
	}

	threshold := 2*p.f + 1
	if len(b.Certificate) < threshold {
		return false
	}

	switch b.Step {
	case StepR:
		if b.Flag != nil {
			return false
		}
		return certifiesR(b, threshold)
	case StepA:
		if b.Flag != nil {
			return false
		}
		return certifiesA(b, threshold)
	case StepB:
		if b.Flag == nil {
			return false
		}
		return certifiesB(b, threshold)
	default:
		return false
	}
}

// certifiesR checks that b's certificate (2f+1 B-responses from rank-1)
// replays, via the B-step aggregation, to Adopt(b.Value).
func certifiesR(b Broadcast, threshold int) bool {
	for _, resp := range b.Certificate {
		if resp.Step != StepB || resp.Rank != b.Rank-1 {
			return false
		}
	}
	decision := aggregateB(b.Certificate, threshold)
	return !decision.Committed && decision.Value == b.Value
}

// certifiesA checks that b's certificate (2f+1 R-responses from this rank)
// has a maximum RValue whose value matches b.Value.
func certifiesA(b Broadcast, threshold int) bool {
	for _, resp := range b.Certificate {
		if resp.Step != StepR || resp.Rank != b.Rank {
			return false
		}
	}
	max, ok := aggregateRMax(b.Certificate)
	return ok && max.Value == b.Value
}

// certifiesB checks that b's certificate (2f+1 A-responses from this rank)
// replays, via the A-step aggregation, to (b.Flag, b.Value).
func certifiesB(b Broadcast, threshold int) bool {
	for _, resp := range b.Certificate {
		if resp.Step != StepA || resp.Rank != b.Rank {
			return false
		}
	}
	flag, value := aggregateA(b.Certificate, threshold)
	return flag == *b.Flag && value == b.Value
}
