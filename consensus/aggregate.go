package consensus

// aggregateRMax computes the R-step step-output: the maximum RValue carried
// across the given responses (one per response, extracting the first
// RValue-typed state — an R-response carries exactly one).
func aggregateRMax(responses []Response) (RValue, bool) {
	var max RValue
	found := false
	for _, r := range responses {
		for _, s := range r.State {
			if v, ok := s.Value.(RValue); ok {
				if !found || max.Less(v) {
					max = v
					found = true
				}
				break
			}
		}
	}
	return max, found
}

// aggregateA computes the A-step step-output: (true, v) if some value
// appears in at least threshold responses, else (false, max value seen).
// Per response, only the first AValue-typed state is counted, matching the
// one-state-per-process view the aggregation takes (§4.1).
func aggregateA(responses []Response, threshold int) (bool, int64) {
	counts := make(map[int64]int)
	var max int64
	haveMax := false
	for _, r := range responses {
		for _, s := range r.State {
			if v, ok := s.Value.(AValue); ok {
				counts[int64(v)]++
				if !haveMax || int64(v) > max {
					max = int64(v)
					haveMax = true
				}
				break
			}
		}
	}
	for v, c := range counts {
		if c >= threshold {
			return true, v
		}
	}
	return false, max
}

// aggregateB computes the B-step decision: Commit if at least threshold
// true-pairs agree (all sharing the same value, by protocol correctness),
// Adopt(v) if at least one true-pair exists, else Adopt(max false-pair).
func aggregateB(responses []Response, threshold int) Decision {
	var trueCount int
	var firstTrue int64
	haveTrue := false
	var maxFalse int64
	haveFalse := false

	for _, r := range responses {
		for _, s := range r.State {
			if v, ok := s.Value.(BValue); ok {
				if v.Flag {
					trueCount++
					if !haveTrue {
						firstTrue = v.Value
						haveTrue = true
					}
				} else if !haveFalse || v.Value > maxFalse {
					maxFalse = v.Value
					haveFalse = true
				}
				break
			}
		}
	}

	if trueCount >= threshold {
		return commit(firstTrue)
	}
	if haveTrue {
		return adopt(firstTrue)
	}
	return adopt(maxFalse)
}
