package algo

import (
	"sync"
	"time"

	"github.com/nplabs/meshrouter/packet"
)

// FloodingHelloInterval is the cadence at which Flooding announces
// itself. HELLO packets carry TTL 1 so they reach only direct neighbors
// and are never re-flooded onward (§4.3: "HELLO never transits").
const FloodingHelloInterval = 5 * time.Second

// Flooding is the flooding strategy (§4.3): storm prevention is entirely
// delegated to the orchestrator's dedup + TTL discipline (§4.5); this
// type carries no routing state of its own, only a record of known
// neighbors for introspection (the `neighbors`/`debug` CLI commands).
type Flooding struct {
	selfID string

	mu            sync.Mutex
	neighbors     map[string]NeighborInfo
	lastHelloTime time.Time
}

func NewFlooding(selfID string) *Flooding {
	return &Flooding{
		selfID:    selfID,
		neighbors: make(map[string]NeighborInfo),
	}
}

func (f *Flooding) Name() string { return "flooding" }

func (f *Flooding) UpdateNeighbor(id string, info NeighborInfo, _ time.Time) {
	if info.Cost <= 0 {
		info.Cost = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.neighbors[id] = info
}

// Neighbors returns a snapshot of known neighbors, for CLI introspection.
func (f *Flooding) Neighbors() map[string]NeighborInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]NeighborInfo, len(f.neighbors))
	for k, v := range f.neighbors {
		out[k] = v
	}
	return out
}

func (f *Flooding) ProcessPacket(pkt *packet.Packet, _ string, _ time.Time) Action {
	if pkt.To == f.selfID {
		switch pkt.Type {
		case packet.TypeMessage, packet.TypeEcho, packet.TypeEchoReply:
			return NoAction()
		}
	}
	return FloodAction()
}

func (f *Flooding) ShouldSendHello(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHelloTime.IsZero() || now.Sub(f.lastHelloTime) >= FloodingHelloInterval
}

func (f *Flooding) CreateHelloPacket(now time.Time) *packet.Packet {
	f.mu.Lock()
	f.lastHelloTime = now
	f.mu.Unlock()

	p := packet.New(f.Name(), packet.TypeHello, f.selfID, packet.Broadcast, 1)
	p.Headers[packet.HeaderTS] = now.Unix()
	p.SetPath([]string{})
	return p
}

// GetNextHop is unused by pure flooding; it always reports no route.
func (f *Flooding) GetNextHop(_ string) (string, bool) {
	return "", false
}
