package consensus

import "math/rand"

// byzantineFuzzer mutates outgoing messages before they leave a Byzantine
// process, exercising the certificate and response validators (§6's fuzz
// injector, grounded on bft_archipelago.rs::send_message). Used by the tests
// and by the simulation driver's Byzantine processes — a correct process
// never byzantine-fuzzes its own traffic.
type byzantineFuzzer struct {
	rng *rand.Rand
}

func newByzantineFuzzer() *byzantineFuzzer {
	return &byzantineFuzzer{rng: rand.New(rand.NewSource(1))}
}

func nextStep(s Step) Step {
	switch s {
	case StepR:
		return StepA
	case StepA:
		return StepB
	default:
		return StepR
	}
}

// mutate corrupts the outgoing message. A Broadcast gets one randomly chosen
// field corrupted (step, flag or rank), per §9's "Byzantine flag value
// space" note: rank may be fuzzed to an arbitrary small integer, so
// registers keyed by rank must tolerate it without panicking (they're maps,
// not fixed slices — see aRegisters/bRegisters). A Response always has its
// step advanced to the next step.
func (f *byzantineFuzzer) mutate(msg *Message) {
	switch {
	case msg.Broadcast != nil:
		b := msg.Broadcast
		switch f.rng.Intn(3) {
		case 0:
			b.Step = nextStep(b.Step)
		case 1:
			flag := f.rng.Intn(2) == 1
			b.Flag = &flag
		case 2:
			b.Rank = Rank(f.rng.Intn(100))
		}
	case msg.Response != nil:
		r := msg.Response
		r.Step = nextStep(r.Step)
	}
}
