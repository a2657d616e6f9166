// Package node implements the per-node orchestrator (§4.5, §5): a
// receive loop and a periodic tick loop both post closures onto one
// dispatch channel, which a single goroutine drains serially. Every
// packet-processing and maintenance call into the Algorithm happens from
// inside a dispatch closure; the read-only GetNextHop and Neighbors
// queries are made directly from the caller's goroutine. Either way the
// algorithm's own mutex is never held across a blocking channel
// operation and the node never needs more than that one mutex per
// node, matching §5's "single re-entrant mutex" design without Go's
// sync.Mutex needing to actually be re-entrant.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nplabs/meshrouter/algo"
	"github.com/nplabs/meshrouter/dedup"
	"github.com/nplabs/meshrouter/packet"
	"github.com/nplabs/meshrouter/transport"
)

const (
	DefaultTickInterval = 750 * time.Millisecond
	DefaultSeenCapacity = 50000
	DefaultMessageTTL   = 16
	dispatchBuffer      = 128
	shutdownDrainBudget = 2 * time.Second
)

// ActionTag labels a packet event for the console/packet-log, mirroring
// the original prototype's colored action tags (§9).
type ActionTag string

const (
	TagReceived  ActionTag = "RECEIVED"
	TagSent      ActionTag = "SENT"
	TagForwarded ActionTag = "FORWARDED"
	TagFlooded   ActionTag = "FLOODED"
	TagDropped   ActionTag = "DROPPED"
	TagError     ActionTag = "ERROR"
)

// Event is published to every registered observer (the CLI's packet-log
// ring buffer, in particular) whenever the node logs a packet action.
type Event struct {
	Tag    ActionTag
	Packet *packet.Packet
	Peer   string // the neighbor a packet arrived from or was sent to
	Note   string
	At     time.Time
}

type Observer func(Event)

// Node is the orchestrator binding one Algorithm to one Transport.
type Node struct {
	id  string
	tr  transport.Transport
	alg algo.Algorithm

	seen         *dedup.Set[string]
	logger       *slog.Logger
	tickInterval time.Duration
	messageTTL   int

	mu        sync.Mutex
	observers []Observer

	dispatch chan func()
	ctx      context.Context
}

type Option func(*Node)

func WithTickInterval(d time.Duration) Option { return func(n *Node) { n.tickInterval = d } }
func WithSeenCapacity(capacity int) Option {
	return func(n *Node) { n.seen = dedup.New[string](capacity) }
}
func WithMessageTTL(ttl int) Option    { return func(n *Node) { n.messageTTL = ttl } }
func WithLogger(l *slog.Logger) Option { return func(n *Node) { n.logger = l } }

func New(id string, tr transport.Transport, alg algo.Algorithm, opts ...Option) *Node {
	n := &Node{
		id:           id,
		tr:           tr,
		alg:          alg,
		seen:         dedup.New[string](DefaultSeenCapacity),
		logger:       slog.Default(),
		tickInterval: DefaultTickInterval,
		messageTTL:   DefaultMessageTTL,
		dispatch:     make(chan func(), dispatchBuffer),
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) ID() string                { return n.id }
func (n *Node) Algorithm() algo.Algorithm { return n.alg }

// Observe registers an observer called for every logged packet event.
// Used by cli.Session to feed its packet-log ring buffer.
func (n *Node) Observe(obs Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, obs)
}

// GetNextHop is safe to call from any goroutine without going through
// the dispatch loop: the routing table is published via atomic pointer
// swap and reads never need the algorithm's lock (§5).
func (n *Node) GetNextHop(dst string) (string, bool) {
	return n.alg.GetNextHop(dst)
}

// Neighbors reports the algorithm's current neighbor snapshot, if it
// supports introspection.
func (n *Node) Neighbors() map[string]algo.NeighborInfo {
	if insp, ok := n.alg.(algo.Inspectable); ok {
		return insp.Neighbors()
	}
	return nil
}

// Run blocks until ctx is canceled, pumping the receive and tick loops
// into the dispatch loop. On cancellation it drains any already-queued
// work for up to shutdownDrainBudget before returning.
func (n *Node) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.ctx = runCtx
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); n.receiveLoop(runCtx) }()
	go func() { defer wg.Done(); n.tickLoop(runCtx) }()

	n.dispatchLoop(runCtx)
	wg.Wait()
	return nil
}

// ConfigureNeighbor declares (or updates the cost of) a direct neighbor,
// per the static topology configuration (§6). Routed through the
// dispatch loop so it never races with an in-flight packet handler.
func (n *Node) ConfigureNeighbor(id string, cost int) {
	n.post(func() {
		n.alg.UpdateNeighbor(id, algo.NeighborInfo{Cost: cost}, time.Now())
	})
}

// SendMessage originates a user data packet addressed to dst.
func (n *Node) SendMessage(dst, payload string) {
	n.post(func() {
		p := packet.New(n.alg.Name(), packet.TypeMessage, n.id, dst, n.messageTTL)
		p.Payload = payload
		n.sendOriginated(p)
	})
}

// SendEcho originates an echo probe addressed to dst.
func (n *Node) SendEcho(dst string) {
	n.post(func() {
		p := packet.New(n.alg.Name(), packet.TypeEcho, n.id, dst, n.messageTTL)
		n.sendOriginated(p)
	})
}

func (n *Node) post(fn func()) {
	select {
	case n.dispatch <- fn:
	case <-n.ctx.Done():
	}
}

func (n *Node) receiveLoop(ctx context.Context) {
	for {
		pkt, from, err := n.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			continue
		}
		select {
		case n.dispatch <- func() { n.handleInbound(pkt, from, time.Now()) }:
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case n.dispatch <- func() { n.handleTick(time.Now()) }:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) dispatchLoop(ctx context.Context) {
	for {
		select {
		case fn := <-n.dispatch:
			fn()
		case <-ctx.Done():
			n.drainOnShutdown()
			return
		}
	}
}

func (n *Node) drainOnShutdown() {
	deadline := time.NewTimer(shutdownDrainBudget)
	defer deadline.Stop()
	for {
		select {
		case fn := <-n.dispatch:
			fn()
		case <-deadline.C:
			return
		default:
			return
		}
	}
}

func (n *Node) handleInbound(pkt *packet.Packet, from string, now time.Time) {
	id := pkt.EnsureMsgID()
	if !n.seen.Insert(id) {
		n.emit(TagDropped, pkt, from, "duplicate msg_id")
		return
	}
	n.emit(TagReceived, pkt, from, "")

	action := n.alg.ProcessPacket(pkt, from, now)
	switch action.Kind {
	case algo.Consume:
		n.handleConsumed(pkt)
	case algo.Flood, algo.FloodLSA:
		n.forward(pkt, from, "")
	case algo.Unicast:
		n.forward(pkt, from, action.NextHop)
	}
}

// handleConsumed completes the echo round trip (§9): a node addressed
// by an echo packet replies in kind. LSR's consumed echoes reply via
// the normal routed path; flooding's reply simply floods back.
func (n *Node) handleConsumed(pkt *packet.Packet) {
	if pkt.To != n.id || pkt.Type != packet.TypeEcho {
		return
	}
	reply := packet.New(n.alg.Name(), packet.TypeEchoReply, n.id, pkt.From, n.messageTTL)
	reply.Payload = pkt.Payload
	n.sendOriginated(reply)
}

func (n *Node) forward(pkt *packet.Packet, from, nextHop string) {
	out := pkt.Clone()
	if !out.DecrementTTL() {
		n.emit(TagDropped, pkt, from, "ttl expired")
		return
	}
	if nextHop != "" {
		if err := n.tr.SendUnicast(n.ctx, nextHop, out); err != nil {
			n.emit(TagError, pkt, nextHop, err.Error())
			return
		}
		n.emit(TagForwarded, out, nextHop, "")
		return
	}
	if err := n.tr.SendBroadcast(n.ctx, out, from); err != nil {
		n.emit(TagError, pkt, from, err.Error())
		return
	}
	n.emit(TagFlooded, out, from, "")
}

// sendOriginated dispatches a packet this node itself created: its own
// msg_id is pre-recorded so a looped-back copy of it is dropped as a
// duplicate rather than reprocessed (§4.2).
func (n *Node) sendOriginated(pkt *packet.Packet) {
	n.seen.Insert(pkt.EnsureMsgID())

	var err error
	switch {
	case pkt.Type == packet.TypeHello || pkt.Type == packet.TypeLSA || pkt.To == packet.Broadcast:
		err = n.tr.SendBroadcast(n.ctx, pkt, "")
	default:
		if hop, ok := n.alg.GetNextHop(pkt.To); ok {
			err = n.tr.SendUnicast(n.ctx, hop, pkt)
		} else {
			err = n.tr.SendBroadcast(n.ctx, pkt, "")
		}
	}
	if err != nil {
		n.emit(TagError, pkt, "", err.Error())
		return
	}
	n.emit(TagSent, pkt, "", "")
}

// handleTick runs the per-tick maintenance in the order spec §4.5
// prescribes: timeouts and aging first, so a neighbor that just expired
// or an LSA that just aged out is reflected in this same tick's
// outgoing HELLO/LSA rather than the next one.
func (n *Node) handleTick(now time.Time) {
	if m, ok := n.alg.(algo.Maintainer); ok {
		m.CheckNeighborTimeouts(now)
		m.AgeLSADatabase(now)
	}
	if hs, ok := n.alg.(algo.HelloSender); ok && hs.ShouldSendHello(now) {
		n.sendOriginated(hs.CreateHelloPacket(now))
	}
	if ls, ok := n.alg.(algo.LSASender); ok && ls.ShouldSendLSA(now) {
		n.sendOriginated(ls.CreateLSAPacket(now))
	}
}

func (n *Node) emit(tag ActionTag, pkt *packet.Packet, peer, note string) {
	lvl := slog.LevelDebug
	if tag == TagError {
		lvl = slog.LevelError
	}
	n.logger.Log(n.ctx, lvl, "packet",
		slog.String("action", string(tag)),
		slog.String("node", n.id),
		slog.String("peer", peer),
		slog.String("type", pkt.Type),
		slog.String("from", pkt.From),
		slog.String("to", pkt.To),
		slog.String("note", note),
	)

	evt := Event{Tag: tag, Packet: pkt, Peer: peer, Note: note, At: time.Now()}
	n.mu.Lock()
	observers := append([]Observer(nil), n.observers...)
	n.mu.Unlock()
	for _, obs := range observers {
		obs(evt)
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("node(%s, algo=%s)", n.id, n.alg.Name())
}
