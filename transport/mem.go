package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nplabs/meshrouter/packet"
)

const memInboxCapacity = 256

type inboundPacket struct {
	pkt  *packet.Packet
	from string
}

// MemNetwork is an in-process switchboard connecting a set of
// MemTransports. It exists purely for tests and local simulation (§8's
// scenario harness): declaring adjacency is explicit, there is no
// discovery, and delivery is best-effort (a full inbox drops its oldest
// entry rather than blocking the sender), mirroring a lossy real link.
type MemNetwork struct {
	mu    sync.Mutex
	nodes map[string]*MemTransport
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{nodes: make(map[string]*MemTransport)}
}

// NewTransport registers a node under id with the given directly
// connected neighbor ids and returns its Transport handle. Neighbors
// may be registered before or after this call; an edge only delivers
// once both ends exist.
func (n *MemNetwork) NewTransport(id string, neighbors ...string) *MemTransport {
	t := &MemTransport{
		id:        id,
		network:   n,
		neighbors: append([]string(nil), neighbors...),
		inbox:     make(chan inboundPacket, memInboxCapacity),
		done:      make(chan struct{}),
	}
	n.mu.Lock()
	n.nodes[id] = t
	n.mu.Unlock()
	return t
}

func (n *MemNetwork) lookup(id string) *MemTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[id]
}

// MemTransport is one node's handle onto a MemNetwork.
type MemTransport struct {
	id        string
	network   *MemNetwork
	neighbors []string

	inbox chan inboundPacket

	closeOnce sync.Once
	done      chan struct{}
}

func (t *MemTransport) SendUnicast(ctx context.Context, neighbor string, pkt *packet.Packet) error {
	target := t.network.lookup(neighbor)
	if target == nil {
		return fmt.Errorf("transport: unknown neighbor %q", neighbor)
	}
	target.deliver(inboundPacket{pkt: pkt, from: t.id})
	return nil
}

func (t *MemTransport) SendBroadcast(ctx context.Context, pkt *packet.Packet, exclude string) error {
	for _, neighbor := range t.neighbors {
		if neighbor == exclude {
			continue
		}
		if target := t.network.lookup(neighbor); target != nil {
			target.deliver(inboundPacket{pkt: pkt, from: t.id})
		}
	}
	return nil
}

func (t *MemTransport) deliver(item inboundPacket) {
	select {
	case <-t.done:
		return
	default:
	}
	// every recipient gets its own copy, so receivers rewriting headers
	// (the path window) never share a map with each other or the sender.
	item.pkt = item.pkt.Clone()
	select {
	case t.inbox <- item:
	default:
		// inbox full: drop the oldest buffered packet to make room,
		// matching a lossy real link under load rather than blocking
		// the sender.
		select {
		case <-t.inbox:
		default:
		}
		select {
		case t.inbox <- item:
		default:
		}
	}
}

func (t *MemTransport) Receive(ctx context.Context) (*packet.Packet, string, error) {
	select {
	case item := <-t.inbox:
		return item.pkt, item.from, nil
	case <-t.done:
		select {
		case item := <-t.inbox:
			return item.pkt, item.from, nil
		default:
		}
		return nil, "", ErrClosed
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (t *MemTransport) Neighbors() []string {
	return append([]string(nil), t.neighbors...)
}

func (t *MemTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
