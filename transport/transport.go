// Package transport defines the delivery substrate a node.Node runs on
// top of (§6) and provides two concrete adapters: an in-process
// MemTransport for tests and single-process simulation, and a
// ZeroMQ-backed ZMQTransport for the pub/sub broker substrate option.
package transport

import (
	"context"
	"errors"

	"github.com/nplabs/meshrouter/packet"
)

// ErrClosed is returned by Receive once the transport has been closed
// and has no further buffered packets to deliver.
var ErrClosed = errors.New("transport: closed")

// Transport is the capability a node.Node needs from its delivery
// substrate (§6): unicast to one named neighbor, broadcast to every
// directly reachable neighbor, and a blocking receive of the next
// inbound packet along with which neighbor it arrived from.
//
// Implementations do not interpret packet contents — msg_id dedup, TTL
// decrement, and routing decisions are entirely the orchestrator's and
// algorithm's job (§4.5, §5). A Transport only ever moves bytes between
// directly connected neighbors.
type Transport interface {
	// SendUnicast delivers pkt to exactly the named neighbor.
	SendUnicast(ctx context.Context, neighbor string, pkt *packet.Packet) error
	// SendBroadcast delivers pkt to every neighbor except exclude (which
	// may be empty to address all neighbors).
	SendBroadcast(ctx context.Context, pkt *packet.Packet, exclude string) error
	// Receive blocks until a packet arrives, the context is canceled, or
	// the transport is closed. It returns the packet and the id of the
	// neighbor it was received from.
	Receive(ctx context.Context) (*packet.Packet, string, error)
	// Neighbors reports the currently known direct neighbors.
	Neighbors() []string
	Close() error
}
