package consensus

// NewGroup wires up n processes, each holding an inbound channel and the
// full list of n outbound channels (including its own — every process is
// also one of its own neighbors, matching the loopback wiring the original
// harness uses). byzantine marks which process ids should run the fuzz
// injector. This is a convenience for simulations and tests; production
// deployments would instead hand NewProcess real network-backed channels,
// per §6's "no networking transport is specified" Non-goal.
func NewGroup(n, f int, byzantine map[ProcessID]bool, opts ...Option) []*Process {
	inboxes := make([]chan Message, n)
	for i := range inboxes {
		inboxes[i] = make(chan Message, 4096)
	}

	out := make([]chan<- Message, n)
	for i, ch := range inboxes {
		out[i] = ch
	}

	procs := make([]*Process, n)
	for i := 0; i < n; i++ {
		id := ProcessID(i)
		procs[i] = NewProcess(id, f, out, inboxes[i], byzantine[id], opts...)
	}
	return procs
}

// StopAll stops every process in procs.
func StopAll(procs []*Process) {
	for _, p := range procs {
		p.Stop()
	}
}
