// Package packet implements the wire-format control message record shared
// by the flooding transport and the link-state routing engine: a small,
// self-describing JSON object plus the handful of header conventions both
// algorithms rely on (msg_id, seq, ts, path).
package packet

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Packet types recognized by the core.
const (
	TypeHello     = "hello"
	TypeInfo      = "info"
	TypeLSA       = "lsa"
	TypeMessage   = "message"
	TypeEcho      = "echo"
	TypeEchoReply = "echo_reply"
)

// Broadcast is the sentinel destination address meaning "all neighbors".
const Broadcast = "broadcast"

// Recognized header keys.
const (
	HeaderMsgID = "msg_id"
	HeaderSeq   = "seq"
	HeaderTS    = "ts"
	HeaderPath  = "path"
)

// MaxPathLen is the bound on the path-window header (§3).
const MaxPathLen = 3

// MalformedPacket is returned by Decode when the bytes don't describe a
// well-formed packet: invalid JSON, a missing required field, or a type
// mismatch on a required field.
type MalformedPacket struct {
	Reason string
}

func (e *MalformedPacket) Error() string {
	return fmt.Sprintf("malformed packet: %s", e.Reason)
}

// Packet is the in-memory control-message record described in spec §3.
// Headers is a free-form bag so that unknown keys round-trip unchanged
// (the wire format requires this); the recognized keys have typed
// accessors below.
type Packet struct {
	Proto   string
	Type    string
	From    string
	To      string
	TTL     int
	Headers map[string]any
	Payload string
}

type wireForm struct {
	Proto   string         `json:"proto"`
	Type    string         `json:"type"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	TTL     int            `json:"ttl"`
	Headers map[string]any `json:"headers"`
	Payload string         `json:"payload"`
}

// New constructs a packet with the given fields, TTL and an empty header
// bag. Callers typically follow up with EnsureMsgID before the first send.
func New(proto, typ, from, to string, ttl int) *Packet {
	return &Packet{
		Proto:   proto,
		Type:    typ,
		From:    from,
		To:      to,
		TTL:     ttl,
		Headers: map[string]any{},
	}
}

// Encode serializes the packet as a single JSON object per spec §4.1.
func Encode(p *Packet) ([]byte, error) {
	headers := p.Headers
	if headers == nil {
		headers = map[string]any{}
	}
	return json.Marshal(wireForm{
		Proto:   p.Proto,
		Type:    p.Type,
		From:    p.From,
		To:      p.To,
		TTL:     p.TTL,
		Headers: headers,
		Payload: p.Payload,
	})
}

// Decode parses the wire format, failing with *MalformedPacket on invalid
// JSON, a missing required field (proto, type, from, to, ttl), or a type
// mismatch on one of those fields. Unknown header keys are preserved.
func Decode(data []byte) (*Packet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedPacket{Reason: err.Error()}
	}

	for _, field := range []string{"proto", "type", "from", "to", "ttl"} {
		if _, ok := raw[field]; !ok {
			return nil, &MalformedPacket{Reason: "missing field " + field}
		}
	}

	p := &Packet{Headers: map[string]any{}}
	fields := []struct {
		name string
		dst  any
	}{
		{"proto", &p.Proto},
		{"type", &p.Type},
		{"from", &p.From},
		{"to", &p.To},
		{"ttl", &p.TTL},
	}
	for _, f := range fields {
		if err := json.Unmarshal(raw[f.name], f.dst); err != nil {
			return nil, &MalformedPacket{Reason: f.name + ": " + err.Error()}
		}
	}
	if p.TTL < 0 {
		return nil, &MalformedPacket{Reason: "ttl must be >= 0"}
	}
	if hv, ok := raw["headers"]; ok {
		if err := json.Unmarshal(hv, &p.Headers); err != nil {
			return nil, &MalformedPacket{Reason: "headers: " + err.Error()}
		}
	}
	if pv, ok := raw["payload"]; ok {
		if err := json.Unmarshal(pv, &p.Payload); err != nil {
			return nil, &MalformedPacket{Reason: "payload: " + err.Error()}
		}
	}
	return p, nil
}

// MsgID returns headers["msg_id"], or "" if absent or not a string.
func (p *Packet) MsgID() string {
	v, _ := p.Headers[HeaderMsgID].(string)
	return v
}

// EnsureMsgID assigns a fresh uuid into headers["msg_id"] if missing or
// empty, and returns the (possibly newly-assigned) id. Per §4.1, once
// assigned a msg_id is never mutated.
func (p *Packet) EnsureMsgID() string {
	if id := p.MsgID(); id != "" {
		return id
	}
	if p.Headers == nil {
		p.Headers = map[string]any{}
	}
	id := uuid.NewString()
	p.Headers[HeaderMsgID] = id
	return id
}

// GetPath returns headers["path"] normalized to []string. Decoding a
// packet from JSON yields []interface{}; constructing one in-process may
// store []string directly. Anything else (missing key, wrong type) reads
// back as an empty path.
func (p *Packet) GetPath() []string {
	switch v := p.Headers[HeaderPath].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return []string{}
			}
			out = append(out, s)
		}
		return out
	default:
		return []string{}
	}
}

// SetPath overwrites headers["path"]. Enforcing the 3-entry window is the
// caller's responsibility (see algo.LSR.handlePath).
func (p *Packet) SetPath(path []string) {
	if p.Headers == nil {
		p.Headers = map[string]any{}
	}
	stored := make([]string, len(path))
	copy(stored, path)
	p.Headers[HeaderPath] = stored
}

// DecrementTTL decrements TTL by one and reports whether the packet is
// still live (TTL > 0) afterwards.
func (p *Packet) DecrementTTL() bool {
	p.TTL--
	return p.TTL > 0
}

// Clone returns a deep-enough copy: a new Packet with its own Headers map,
// so that two concurrently-forwarded copies of the same logical message
// (e.g. during flood fan-out) can't race on header mutation.
func (p *Packet) Clone() *Packet {
	headers := make(map[string]any, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}
	c := *p
	c.Headers = headers
	return &c
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet(proto=%s, type=%s, from=%s, to=%s, ttl=%d, msg_id=%s)",
		p.Proto, p.Type, p.From, p.To, p.TTL, p.MsgID())
}
