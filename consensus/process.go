package consensus

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Message is the wire envelope exchanged between processes. Wire encoding is
// deliberately unspecified (§6) — this struct is the in-process equivalent
// of "encode and put on the socket".
type Message struct {
	Broadcast *Broadcast
	Response  *Response
}

// indexKey buckets the response index and pending-responses table by
// (step, rank).
type indexKey struct {
	Step Step
	Rank Rank
}

type seenBroadcast struct {
	Broadcast Broadcast
	Count     int64
}

// SignatureVerifier is the pluggable predicate §4.2/§9 call for: no concrete
// signature scheme is specified at this layer. The zero value (nil) is
// replaced by an always-valid predicate in NewProcess.
type SignatureVerifier func(Response) bool

// Option configures optional Process construction parameters.
type Option func(*Process)

// WithSignatureVerifier installs a predicate that every indexed Response
// must satisfy, in addition to the well-formedness and reliable-response
// checks of §4.4. Use this to plug in real signature verification; the
// default accepts everything, per §9's explicit omission.
func WithSignatureVerifier(fn SignatureVerifier) Option {
	return func(p *Process) { p.verifySignature = fn }
}

// WithLogger overrides the process's logger (default derives one from the
// global zerolog logger, tagged with layer="CONSENSUS" and the process id).
func WithLogger(l zerolog.Logger) Option {
	return func(p *Process) { p.logger = l }
}

// Process is one participant in the protocol: a dispatcher goroutine that
// owns the registers and response index, and a proposer driven by calling
// Propose. Both activities communicate only through the guarded state below,
// per §5.
type Process struct {
	id  ProcessID
	f   int
	out []chan<- Message
	in  <-chan Message

	byzantine bool
	rng       *byzantineFuzzer

	logger          zerolog.Logger
	dispatchLogger  zerolog.Logger
	proposeLogger   zerolog.Logger
	certLogger      zerolog.Logger
	verifySignature SignatureVerifier

	stopped int32
	stopCh  chan struct{}
	done    chan struct{}

	// Guarded by mu/cond: dispatcher is sole writer, proposer only reads.
	mu            sync.RWMutex
	cond          *sync.Cond
	rRegister     RValue
	aRegisters    map[Rank][]AValue
	bRegisters    map[Rank][]BValue
	responseIndex map[indexKey]map[ProcessID]Response

	// Dispatcher-exclusive, no locking required.
	broadcastsSeen   map[BroadcastHash]*seenBroadcast
	pendingResponses map[string][]Response
	ampCitations     map[BroadcastHash]map[ProcessID]bool
	suspicion        *SuspicionLedger
}

// NewProcess constructs a process with N peer-out channels (out, indexed
// however the caller likes — typically one per process id, including a
// loopback channel to itself, matching the protocol's "broadcast to all"
// semantics) and its own inbound queue in. f is the maximum tolerated
// Byzantine count; byzantine marks this instance as a fuzzing adversary for
// tests (§6's Byzantine fuzz injector).
func NewProcess(id ProcessID, f int, out []chan<- Message, in <-chan Message, byzantine bool, opts ...Option) *Process {
	p := &Process{
		id:               id,
		f:                f,
		out:              out,
		in:               in,
		byzantine:        byzantine,
		stopCh:           make(chan struct{}),
		done:             make(chan struct{}),
		aRegisters:       make(map[Rank][]AValue),
		bRegisters:       make(map[Rank][]BValue),
		responseIndex:    make(map[indexKey]map[ProcessID]Response),
		broadcastsSeen:   make(map[BroadcastHash]*seenBroadcast),
		pendingResponses: make(map[string][]Response),
		ampCitations:     make(map[BroadcastHash]map[ProcessID]bool),
		suspicion:        NewSuspicionLedger(),
		verifySignature:  func(Response) bool { return true },
		logger: log.With().
			Str("layer", "CONSENSUS").
			Int("node_id", int(id)).
			Logger(),
		dispatchLogger: log.With().Str("layer", "DISPATCH").Int("node_id", int(id)).Logger(),
		proposeLogger:  log.With().Str("layer", "PROPOSE").Int("node_id", int(id)).Logger(),
		certLogger:     log.With().Str("layer", "CERT").Int("node_id", int(id)).Logger(),
	}
	p.cond = sync.NewCond(&p.mu)
	if byzantine {
		p.rng = newByzantineFuzzer()
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.verifySignature == nil {
		p.verifySignature = func(Response) bool { return true }
	}

	go p.dispatchLoop()

	return p
}

// Stop signals the dispatcher to exit after its current message and unblocks
// any proposer goroutine waiting at a suspension point. Non-blocking and
// idempotent.
func (p *Process) Stop() {
	if atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		close(p.stopCh)
		p.cond.L.Lock()
		p.cond.Broadcast()
		p.cond.L.Unlock()
	}
}

func (p *Process) stopped_() bool {
	return atomic.LoadInt32(&p.stopped) == 1
}

// Done is closed once the dispatcher goroutine has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// ID returns the process's identity.
func (p *Process) ID() ProcessID { return p.id }

func certKey(hashes []BroadcastHash) string {
	sorted := append([]BroadcastHash(nil), hashes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, h := range sorted {
		parts[i] = strconv.FormatUint(uint64(h), 36)
	}
	return strings.Join(parts, ",")
}
