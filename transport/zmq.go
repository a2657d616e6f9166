package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/destiny/zmq4/v25"
	"github.com/nplabs/meshrouter/packet"
)

// broadcastTopic is the topic every ZMQTransport subscribes to in
// addition to its own node id, used for SendBroadcast.
const broadcastTopic = "*"

// ZMQTransport is a PUB/SUB backed Transport (§6's "pub/sub broker"
// substrate option): each node binds one PUB socket carrying everything
// it originates, and dials one SUB socket per declared neighbor,
// subscribing on it to this node's own id topic and the shared broadcast
// topic. A message's topic frame is the intended recipient id (or
// broadcastTopic), letting every subscriber filter at the socket layer
// rather than in application code.
type ZMQTransport struct {
	id   string
	pub  zmq4.Socket
	subs map[string]zmq4.Socket // neighbor id -> dialed SUB socket

	mu        sync.Mutex
	neighbors []string

	recvCh chan inboundPacket
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewZMQTransport binds a PUB socket at bindEndpoint for this node and
// dials a SUB socket to every neighbor's PUB endpoint in
// neighborEndpoints (neighbor id -> "tcp://host:port"-style address).
func NewZMQTransport(ctx context.Context, id, bindEndpoint string, neighborEndpoints map[string]string) (*ZMQTransport, error) {
	runCtx, cancel := context.WithCancel(ctx)

	pub := zmq4.NewPub(runCtx)
	if err := pub.Listen(bindEndpoint); err != nil {
		cancel()
		return nil, fmt.Errorf("zmq transport: bind pub %s: %w", bindEndpoint, err)
	}

	t := &ZMQTransport{
		id:     id,
		pub:    pub,
		subs:   make(map[string]zmq4.Socket, len(neighborEndpoints)),
		recvCh: make(chan inboundPacket, memInboxCapacity),
		cancel: cancel,
	}

	for neighbor, endpoint := range neighborEndpoints {
		sub := zmq4.NewSub(runCtx)
		if err := sub.Dial(endpoint); err != nil {
			t.Close()
			return nil, fmt.Errorf("zmq transport: dial sub %s at %s: %w", neighbor, endpoint, err)
		}
		if err := sub.SetOption(zmq4.OptionSubscribe, id); err != nil {
			t.Close()
			return nil, fmt.Errorf("zmq transport: subscribe own topic on %s: %w", neighbor, err)
		}
		if err := sub.SetOption(zmq4.OptionSubscribe, broadcastTopic); err != nil {
			t.Close()
			return nil, fmt.Errorf("zmq transport: subscribe broadcast topic on %s: %w", neighbor, err)
		}
		t.subs[neighbor] = sub
		t.neighbors = append(t.neighbors, neighbor)

		t.wg.Add(1)
		go t.pump(runCtx, neighbor, sub)
	}

	return t, nil
}

func (t *ZMQTransport) pump(ctx context.Context, neighbor string, sub zmq4.Socket) {
	defer t.wg.Done()
	for {
		msg, err := sub.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		if len(msg.Frames) < 2 {
			continue
		}
		pkt, err := packet.Decode(msg.Frames[1])
		if err != nil {
			continue
		}
		select {
		case t.recvCh <- inboundPacket{pkt: pkt, from: neighbor}:
		case <-ctx.Done():
			return
		}
	}
}

func (t *ZMQTransport) publish(topic string, pkt *packet.Packet) error {
	data, err := packet.Encode(pkt)
	if err != nil {
		return fmt.Errorf("zmq transport: encode: %w", err)
	}
	return t.pub.Send(zmq4.NewMsgFrom([]byte(topic), data))
}

func (t *ZMQTransport) SendUnicast(_ context.Context, neighbor string, pkt *packet.Packet) error {
	return t.publish(neighbor, pkt)
}

func (t *ZMQTransport) SendBroadcast(_ context.Context, pkt *packet.Packet, _ string) error {
	// exclude is ignored: a PUB socket cannot leave out one subscriber,
	// so every neighbor dialed to this node, exclude included, receives
	// the broadcast. The sender itself never hears it back, since it
	// holds no SUB socket on its own PUB.
	return t.publish(broadcastTopic, pkt)
}

// Receive returns when a packet arrives or ctx is canceled. Closing the
// transport does not unblock it, and it never returns ErrClosed.
func (t *ZMQTransport) Receive(ctx context.Context) (*packet.Packet, string, error) {
	select {
	case item := <-t.recvCh:
		return item.pkt, item.from, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (t *ZMQTransport) Neighbors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.neighbors...)
}

func (t *ZMQTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		_ = t.pub.Close()
		for _, sub := range t.subs {
			_ = sub.Close()
		}
		t.wg.Wait()
	})
	return nil
}
