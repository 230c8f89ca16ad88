package preconsensus

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/archipelago/bft-consensus/consensus"
)

// messageType names the three Bracha reliable-broadcast rounds, adapted
// from the teacher's ACast service.
type messageType int

const (
	msgMSG messageType = iota
	msgECHO
	msgREADY
)

func (t messageType) String() string {
	switch t {
	case msgMSG:
		return "MSG"
	case msgECHO:
		return "ECHO"
	case msgREADY:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// BroadcastMessage is the wire envelope for the preproposal broadcast
// channel. Unlike the teacher's ACastMessage, instances are keyed by the
// PreProposal's own content-hash rather than a random per-broadcast UUID:
// a PreProposal already has stable, sender-independent identity.
type BroadcastMessage struct {
	Type  messageType
	Value PreProposal
	From  consensus.ProcessID
}

type bracheInstance struct {
	receivedEcho  map[consensus.ProcessID]bool
	receivedReady map[consensus.ProcessID]bool
	sentEcho      bool
	sentReady     bool
	delivered     bool
	value         PreProposal
}

func newBrachaInstance() *bracheInstance {
	return &bracheInstance{
		receivedEcho:  make(map[consensus.ProcessID]bool),
		receivedReady: make(map[consensus.ProcessID]bool),
	}
}

// Broadcaster runs one Bracha reliable-broadcast instance per distinct
// PreProposal hash, fanning delivered values onto Delivered(). Grounded on
// the teacher's AcastService, generalized from a comparable type parameter
// to the PreProposal's explicit PreProposalHash identity (a PreProposal's
// Frontiers slice makes it non-comparable in Go).
type Broadcaster struct {
	id consensus.ProcessID
	n  int
	f  int

	instances map[PreProposalHash]*bracheInstance
	out       []chan<- BroadcastMessage
	delivered chan PreProposal
	logger    zerolog.Logger
}

// NewBroadcaster constructs a broadcaster for process id among n processes
// tolerating f Byzantine, fanning out to out (including a loopback entry to
// itself, matching the consensus package's NewGroup convention).
func NewBroadcaster(id consensus.ProcessID, n, f int, out []chan<- BroadcastMessage) *Broadcaster {
	return &Broadcaster{
		id:        id,
		n:         n,
		f:         f,
		instances: make(map[PreProposalHash]*bracheInstance),
		out:       out,
		delivered: make(chan PreProposal, n),
		logger: log.With().
			Str("layer", "PRECONSENSUS").
			Int("node_id", int(id)).
			Logger(),
	}
}

// Delivered yields every PreProposal this broadcaster has reliably
// delivered, including its own.
func (b *Broadcaster) Delivered() <-chan PreProposal { return b.delivered }

func (b *Broadcaster) instance(hash PreProposalHash) *bracheInstance {
	inst, ok := b.instances[hash]
	if !ok {
		inst = newBrachaInstance()
		b.instances[hash] = inst
	}
	return inst
}

// Start broadcasts value as the initial MSG of a new Bracha instance. Only
// the process that produced value calls this.
func (b *Broadcaster) Start(value PreProposal) {
	b.broadcast(BroadcastMessage{Type: msgMSG, Value: value, From: b.id})
}

// HandleMessage runs one step of the Bracha state machine for msg. Not
// safe for concurrent use — callers serialize delivery the same way the
// consensus dispatcher does.
func (b *Broadcaster) HandleMessage(msg BroadcastMessage) {
	inst := b.instance(msg.Value.Hash)
	if inst.delivered {
		return
	}
	inst.value = msg.Value

	switch msg.Type {
	case msgMSG:
		if !inst.sentEcho {
			inst.sentEcho = true
			b.logger.Debug().Int("from", int(msg.From)).Msg("received MSG, broadcasting ECHO")
			b.broadcast(BroadcastMessage{Type: msgECHO, Value: msg.Value, From: b.id})
		}

	case msgECHO:
		inst.receivedEcho[msg.From] = true
		threshold := b.n - b.f
		if len(inst.receivedEcho) >= threshold && !inst.sentReady {
			inst.sentReady = true
			b.logger.Debug().Int("count", len(inst.receivedEcho)).Msg("ECHO threshold reached, broadcasting READY")
			b.broadcast(BroadcastMessage{Type: msgREADY, Value: msg.Value, From: b.id})
		}

	case msgREADY:
		inst.receivedReady[msg.From] = true
		count := len(inst.receivedReady)

		if count >= b.f+1 && !inst.sentReady {
			inst.sentReady = true
			b.logger.Debug().Int("count", count).Msg("READY threshold reached early, broadcasting READY")
			b.broadcast(BroadcastMessage{Type: msgREADY, Value: msg.Value, From: b.id})
		}

		if count >= 2*b.f+1 && !inst.delivered {
			inst.delivered = true
			inst.receivedEcho = nil
			inst.receivedReady = nil
			b.logger.Info().Int("sender", int(msg.Value.Sender)).Msg("preproposal reliably delivered")
			b.delivered <- inst.value
		}
	}
}

func (b *Broadcaster) broadcast(msg BroadcastMessage) {
	for _, ch := range b.out {
		go func(c chan<- BroadcastMessage) { c <- msg }(ch)
	}
}
