package algo

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/nplabs/meshrouter/dedup"
	"github.com/nplabs/meshrouter/packet"
)

// Default LSR timers (§4.4). All are overridable via LSROption for tests
// that need to exercise aging/timeout behavior without waiting out the
// production cadence — every call still takes `now` explicitly, so
// shrinking these only changes *when* ShouldSendHello/ShouldSendLSA/
// CheckNeighborTimeouts/AgeLSADatabase fire, never how they decide.
const (
	DefaultHelloInterval      = 5 * time.Second
	DefaultNeighborTimeout    = 20 * time.Second
	DefaultLSAMinInterval     = 8 * time.Second
	DefaultLSARefreshInterval = 30 * time.Second
	DefaultLSAMaxAge          = 90 * time.Second
	DefaultLSASeenCapacity    = 1024

	// LSAInitialTTL is the TTL an LSA is originated with (§4.4
	// create_lsa_packet): large enough to traverse any topology this
	// protocol is meant to run over, unlike the 3-hop path window.
	LSAInitialTTL = 16
)

// LSARecord is the wire payload carried inside a TypeLSA packet: one
// origin's advertised view of its directly attached neighbors and their
// costs, tagged with a per-origin monotonic sequence number (§4.4).
type LSARecord struct {
	Origin    string         `json:"origin"`
	Seq       int            `json:"seq"`
	Neighbors map[string]int `json:"neighbors"`
}

func EncodeLSARecord(r LSARecord) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode lsa record: %w", err)
	}
	return string(b), nil
}

func DecodeLSARecord(payload string) (LSARecord, error) {
	var r LSARecord
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return LSARecord{}, fmt.Errorf("decode lsa record: %w", err)
	}
	return r, nil
}

type neighborState struct {
	cost      int
	lastHello time.Time
	alive     bool
}

type lsdbEntry struct {
	seq          int
	neighbors    map[string]int
	lastReceived time.Time
}

type lsaKey struct {
	origin string
	seq    int
}

// LSR implements link-state routing (§4.4): neighbors are discovered and
// kept live by HELLO, the network's topology is learned by flooding
// link-state advertisements, and routes are the first hop of a
// deterministic shortest-path computation over the resulting graph
// (spf.go).
//
// LSR carries a single mutex guarding all mutable state, mirroring the
// "re-entrant mutex" of §5: since sync.Mutex does not re-lock, every
// method that needs the lock held while it calls into another
// lock-requiring operation (e.g. CreateLSAPacket calling
// calculateRoutes) does so through an internal *Locked helper that
// assumes the caller already holds the lock. Locked helpers never
// re-acquire it and never call back into their own exported wrapper.
type LSR struct {
	selfID string

	helloInterval      time.Duration
	neighborTimeout    time.Duration
	lsaMinInterval     time.Duration
	lsaRefreshInterval time.Duration
	lsaMaxAge          time.Duration

	mu              sync.Mutex
	neighbors       map[string]*neighborState
	lsdb            *ttlcache.Cache[string, lsdbEntry]
	lsaSeen         *dedup.Set[lsaKey]
	mySeq           int
	lastHelloTime   time.Time
	lastLSATime     time.Time
	topologyChanged bool

	routingTable atomic.Pointer[map[string]string]
}

type LSROption func(*LSR)

func WithHelloInterval(d time.Duration) LSROption      { return func(r *LSR) { r.helloInterval = d } }
func WithNeighborTimeout(d time.Duration) LSROption    { return func(r *LSR) { r.neighborTimeout = d } }
func WithLSAMinInterval(d time.Duration) LSROption     { return func(r *LSR) { r.lsaMinInterval = d } }
func WithLSARefreshInterval(d time.Duration) LSROption { return func(r *LSR) { r.lsaRefreshInterval = d } }
func WithLSAMaxAge(d time.Duration) LSROption          { return func(r *LSR) { r.lsaMaxAge = d } }
func WithLSASeenCapacity(n int) LSROption {
	return func(r *LSR) { r.lsaSeen = dedup.New[lsaKey](n) }
}

func NewLSR(selfID string, opts ...LSROption) *LSR {
	r := &LSR{
		selfID:             selfID,
		helloInterval:      DefaultHelloInterval,
		neighborTimeout:    DefaultNeighborTimeout,
		lsaMinInterval:     DefaultLSAMinInterval,
		lsaRefreshInterval: DefaultLSARefreshInterval,
		lsaMaxAge:          DefaultLSAMaxAge,
		neighbors:          make(map[string]*neighborState),
		lsaSeen:            dedup.New[lsaKey](DefaultLSASeenCapacity),
		lsdb:               ttlcache.New[string, lsdbEntry](),
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := map[string]string{}
	r.routingTable.Store(&empty)
	return r
}

func (r *LSR) Name() string { return "lsr" }

func (r *LSR) UpdateNeighbor(id string, info NeighborInfo, now time.Time) {
	if info.Cost <= 0 {
		info.Cost = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.neighbors[id]
	if !ok {
		ns = &neighborState{lastHello: now, alive: true}
		r.neighbors[id] = ns
		r.topologyChanged = true
	} else if ns.cost != info.Cost || !ns.alive {
		r.topologyChanged = true
	}
	ns.cost = info.Cost
	ns.alive = true
}

func (r *LSR) ProcessPacket(pkt *packet.Packet, fromNeighbor string, now time.Time) Action {
	switch pkt.Type {
	case packet.TypeHello:
		r.handleHello(pkt, fromNeighbor, now)
		return NoAction()
	case packet.TypeLSA, packet.TypeInfo:
		return r.handleLSA(pkt, now)
	default: // TypeMessage, TypeEcho, TypeEchoReply
		return r.handleData(pkt)
	}
}

// unknownNeighborSentinel is what the transport reports as from_neighbor
// when the substrate couldn't identify the sending link (§6).
const unknownNeighborSentinel = "unknown"

func (r *LSR) handleHello(pkt *packet.Packet, fromNeighbor string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := fromNeighbor
	if id == unknownNeighborSentinel {
		if _, known := r.neighbors[pkt.From]; !known {
			return // unresolved: never heard of the claimed sender before
		}
		id = pkt.From
	}

	ns, ok := r.neighbors[id]
	if !ok {
		r.neighbors[id] = &neighborState{cost: 1, lastHello: now, alive: true}
		r.topologyChanged = true
		return
	}
	ns.lastHello = now
	if !ns.alive {
		ns.alive = true
		r.topologyChanged = true
	}
}

func (r *LSR) handleLSA(pkt *packet.Packet, now time.Time) Action {
	if !r.handlePath(pkt) {
		return NoAction() // path loop
	}

	rec, err := DecodeLSARecord(pkt.Payload)
	if err != nil {
		return NoAction()
	}
	if rec.Origin == r.selfID {
		return NoAction() // our own advertisement, flooded back around
	}
	if rec.Origin != pkt.From {
		return NoAction() // anti-spoof: origin must match the packet's from address
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := lsaKey{origin: rec.Origin, seq: rec.Seq}
	if r.lsaSeen.Contains(key) {
		return NoAction()
	}

	if item := r.lsdb.Get(rec.Origin); item != nil && rec.Seq <= item.Value().seq {
		return NoAction() // stale or duplicate sequence number
	}

	r.lsaSeen.Insert(key)
	r.lsdb.Set(rec.Origin, lsdbEntry{
		seq:          rec.Seq,
		neighbors:    rec.Neighbors,
		lastReceived: now,
	}, ttlcache.NoTTL)
	r.topologyChanged = true
	r.calculateRoutesLocked(now)
	return FloodLSAAction()
}

// handleData does not touch r.mu: it only reads the atomically published
// routing table, which is by design safe to read without the lock (§5).
func (r *LSR) handleData(pkt *packet.Packet) Action {
	if pkt.To == r.selfID {
		return NoAction()
	}
	if !r.handlePath(pkt) {
		return NoAction() // path loop
	}

	if nextHop, ok := r.GetNextHop(pkt.To); ok {
		return UnicastAction(nextHop)
	}
	return FloodAction() // no known route yet, fall back to flooding
}

// handlePath implements handle_path(pkt): if self_id already appears in
// the packet's path window, it's a loop and the packet must be dropped.
// Otherwise the window is advanced (dropping the oldest entry once it
// would exceed MaxPathLen) and self_id is appended.
func (r *LSR) handlePath(pkt *packet.Packet) bool {
	path := pkt.GetPath()
	for _, hop := range path {
		if hop == r.selfID {
			return false
		}
	}
	if len(path) >= packet.MaxPathLen {
		path = path[1:]
	}
	path = append(path, r.selfID)
	pkt.SetPath(path)
	return true
}

func (r *LSR) ShouldSendHello(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHelloTime.IsZero() || now.Sub(r.lastHelloTime) >= r.helloInterval
}

func (r *LSR) CreateHelloPacket(now time.Time) *packet.Packet {
	r.mu.Lock()
	r.lastHelloTime = now
	r.mu.Unlock()

	p := packet.New(r.Name(), packet.TypeHello, r.selfID, packet.Broadcast, 1)
	p.Headers[packet.HeaderTS] = now.Unix()
	return p
}

func (r *LSR) ShouldSendLSA(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastLSATime.IsZero() {
		return true
	}
	if r.topologyChanged && now.Sub(r.lastLSATime) >= r.lsaMinInterval {
		return true
	}
	return now.Sub(r.lastLSATime) >= r.lsaRefreshInterval
}

func (r *LSR) CreateLSAPacket(now time.Time) *packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mySeq++
	neighbors := make(map[string]int, len(r.neighbors))
	for id, ns := range r.neighbors {
		if !ns.alive {
			continue
		}
		neighbors[id] = ns.cost
	}
	rec := LSARecord{Origin: r.selfID, Seq: r.mySeq, Neighbors: neighbors}
	payload, err := EncodeLSARecord(rec)
	if err != nil {
		payload = "{}"
	}

	r.lsdb.Set(r.selfID, lsdbEntry{seq: r.mySeq, neighbors: neighbors, lastReceived: now}, ttlcache.NoTTL)
	r.lastLSATime = now
	r.topologyChanged = false
	r.calculateRoutesLocked(now)

	p := packet.New(r.Name(), packet.TypeLSA, r.selfID, packet.Broadcast, LSAInitialTTL)
	p.Headers[packet.HeaderTS] = now.Unix()
	p.Payload = payload
	return p
}

func (r *LSR) CheckNeighborTimeouts(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, ns := range r.neighbors {
		if ns.alive && now.Sub(ns.lastHello) > r.neighborTimeout {
			ns.alive = false
			changed = true
		}
	}
	if changed {
		r.topologyChanged = true
		r.calculateRoutesLocked(now)
	}
}

func (r *LSR) AgeLSADatabase(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for origin, item := range r.lsdb.Items() {
		if origin == r.selfID {
			continue
		}
		if now.Sub(item.Value().lastReceived) > r.lsaMaxAge {
			r.lsdb.Delete(origin)
			changed = true
		}
	}
	if changed {
		r.topologyChanged = true
		r.calculateRoutesLocked(now)
	}
}

// calculateRoutesLocked recomputes the forwarding table from the
// current LSDB plus live direct neighbors, and atomically publishes it.
// Callers must already hold r.mu.
func (r *LSR) calculateRoutesLocked(now time.Time) {
	adjacency := make(map[string]map[string]int)
	live := make(map[string]bool, len(r.neighbors))

	selfEdges := make(map[string]int, len(r.neighbors))
	for id, ns := range r.neighbors {
		if !ns.alive {
			continue
		}
		selfEdges[id] = ns.cost
		live[id] = true
	}
	adjacency[r.selfID] = selfEdges

	for origin, item := range r.lsdb.Items() {
		if origin == r.selfID {
			continue
		}
		entry := item.Value()
		edges := make(map[string]int, len(entry.neighbors))
		for k, v := range entry.neighbors {
			edges[k] = v
		}
		adjacency[origin] = edges
	}

	routes := shortestPaths(r.selfID, adjacency, live)
	_ = now
	r.routingTable.Store(&routes)
}

func (r *LSR) GetNextHop(dst string) (string, bool) {
	table := r.routingTable.Load()
	if table == nil {
		return "", false
	}
	hop, ok := (*table)[dst]
	return hop, ok
}

// Neighbors returns a snapshot of currently-live neighbors, for CLI
// introspection (the `neighbors`/`debug` commands).
func (r *LSR) Neighbors() map[string]NeighborInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]NeighborInfo, len(r.neighbors))
	for id, ns := range r.neighbors {
		if !ns.alive {
			continue
		}
		out[id] = NeighborInfo{Cost: ns.cost}
	}
	return out
}
