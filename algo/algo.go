// Package algo implements the two routing-algorithm strategies described
// in spec §4.3/§4.4: Flooding and LSR (link-state routing). Both satisfy
// Algorithm, plus whichever of the optional capability interfaces below
// apply to them — the Go expression of the spec's "tagged variant",
// avoided in favor of small interfaces the orchestrator probes with a
// type assertion (see node.Node), rather than a deep inheritance
// hierarchy (§9 Design Notes).
//
// Every type in this package is pure state: no I/O, no blocking, no
// sleeping (§5). Time is always supplied by the caller as an explicit
// `now time.Time` rather than read from the wall clock internally, so
// that orchestrator and tests share one notion of "now" and aging
// scenarios (§8) are exercised without real sleeps.
package algo

import (
	"time"

	"github.com/nplabs/meshrouter/packet"
)

// ActionKind tags the result of ProcessPacket.
type ActionKind int

const (
	// Consume — the action carries no further work for the orchestrator.
	Consume ActionKind = iota
	// Flood — forward to every neighbor except the inbound one.
	Flood
	// FloodLSA — as Flood, but for a link-state advertisement.
	FloodLSA
	// Unicast — forward to exactly the one named neighbor.
	Unicast
)

// Action is what an Algorithm decides to do with an inbound packet. The
// zero Action is Consume (spec's "None").
type Action struct {
	Kind    ActionKind
	NextHop string // meaningful only when Kind == Unicast
}

func NoAction() Action               { return Action{Kind: Consume} }
func FloodAction() Action            { return Action{Kind: Flood} }
func FloodLSAAction() Action         { return Action{Kind: FloodLSA} }
func UnicastAction(nextHop string) Action {
	return Action{Kind: Unicast, NextHop: nextHop}
}

// NeighborInfo is the caller-supplied half of neighbor state (§3): a
// cost, defaulting to 1 when not given.
type NeighborInfo struct {
	Cost int
}

// Algorithm is the capability set every routing strategy must provide
// (§9 Design Notes).
type Algorithm interface {
	Name() string
	UpdateNeighbor(id string, info NeighborInfo, now time.Time)
	ProcessPacket(pkt *packet.Packet, fromNeighbor string, now time.Time) Action
	GetNextHop(dst string) (string, bool)
}

// HelloSender is implemented by algorithms that originate periodic HELLO
// packets (both Flooding and LSR).
type HelloSender interface {
	ShouldSendHello(now time.Time) bool
	CreateHelloPacket(now time.Time) *packet.Packet
}

// LSASender is implemented by algorithms that originate link-state
// advertisements (LSR only).
type LSASender interface {
	ShouldSendLSA(now time.Time) bool
	CreateLSAPacket(now time.Time) *packet.Packet
}

// Maintainer is implemented by algorithms with periodic housekeeping
// beyond hello/LSA origination (LSR's neighbor-timeout sweep and LSDB
// aging; Flooding implements neither, so the orchestrator's tick skips
// this step for it and only sends its HELLO, per §4.5).
type Maintainer interface {
	CheckNeighborTimeouts(now time.Time)
	AgeLSADatabase(now time.Time)
}

// Inspectable is implemented by algorithms that can report a snapshot
// of their known neighbors, used by the CLI's `neighbors`/`debug`
// commands.
type Inspectable interface {
	Neighbors() map[string]NeighborInfo
}
