package main

import (
	"context"

	"github.com/archipelago/bft-consensus/consensus"
)

// Node wraps a single consensus.Process together with the channel its
// eventual Propose outcome is delivered on, mirroring the teacher's thin
// per-node wrapper around its service manager.
type Node struct {
	ID      consensus.ProcessID
	Process *consensus.Process
	result  chan int64
}

// NewNode wraps proc for a simulation run.
func NewNode(proc *consensus.Process) *Node {
	return &Node{
		ID:      proc.ID(),
		Process: proc,
		result:  make(chan int64, 1),
	}
}

// Start runs Propose in a goroutine and delivers its outcome on Result().
func (n *Node) Start(ctx context.Context, threshold int, value0 int64, rank0 consensus.Rank) {
	go func() {
		n.result <- n.Process.Propose(ctx, threshold, value0, rank0)
	}()
}

// Result returns the channel the final decision will be sent on.
func (n *Node) Result() <-chan int64 {
	return n.result
}
