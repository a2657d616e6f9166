// Package cli implements the interactive REPL a running node exposes
// on stdin/stdout (§9's supplemented operator surface): send, echo,
// neighbors, routes, topology, logs, path, debug, quit — the same
// command set as the original prototype's _handle_user_input, kept
// verbatim since spec.md's Non-goals never named the operator surface.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nplabs/meshrouter/algo"
	"github.com/nplabs/meshrouter/config"
	"github.com/nplabs/meshrouter/node"
)

// logRingCapacity bounds the in-memory packet log the `logs` command
// prints from (§9).
const logRingCapacity = 100

// ANSI color codes, a direct translation of the original prototype's
// Colors class.
const (
	colorRed     = "\033[91m"
	colorGreen   = "\033[92m"
	colorYellow  = "\033[93m"
	colorBlue    = "\033[94m"
	colorMagenta = "\033[95m"
	colorCyan    = "\033[96m"
	colorBold    = "\033[1m"
	colorEnd     = "\033[0m"
)

func colorFor(tag node.ActionTag) string {
	switch tag {
	case node.TagReceived:
		return colorGreen
	case node.TagSent:
		return colorBlue
	case node.TagForwarded:
		return colorCyan
	case node.TagFlooded:
		return colorMagenta
	case node.TagError:
		return colorRed
	case node.TagDropped:
		return colorYellow
	default:
		return ""
	}
}

// Session is one interactive REPL bound to a running node.Node.
type Session struct {
	n        *node.Node
	topology config.Topology
	names    config.Names

	out io.Writer

	mu  sync.Mutex
	log []node.Event
}

func NewSession(n *node.Node, topology config.Topology, names config.Names, out io.Writer) *Session {
	s := &Session{n: n, topology: topology, names: names, out: out}
	n.Observe(s.record)
	return s
}

func (s *Session) record(e node.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	if len(s.log) > logRingCapacity {
		s.log = s.log[len(s.log)-logRingCapacity:]
	}
}

// Run reads commands from in until it hits EOF, a read error, or a
// "quit" command, writing responses to the Session's out.
func (s *Session) Run(in io.Reader) {
	fmt.Fprintf(s.out, "\n%sNode %s ready.%s Commands:\n", colorBold, s.n.ID(), colorEnd)
	for _, line := range []string{
		"send <destination> <message> - send a message to destination",
		"echo <destination> - send an echo probe to destination",
		"neighbors - show known neighbors",
		"routes - show the routing table",
		"topology - show the declared network topology",
		"logs - show recent packet logs",
		"path <destination> - show the next hop toward destination",
		"debug - show routing algorithm state",
		"quit - exit",
	} {
		fmt.Fprintf(s.out, "  %s%s%s\n", colorCyan, line, colorEnd)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(s.out, "\n%s%s>%s ", colorBold, s.n.ID(), colorEnd)
		if !scanner.Scan() {
			return
		}
		if !s.dispatch(strings.Fields(scanner.Text())) {
			return
		}
	}
}

// dispatch runs one parsed command line, returning false on "quit".
func (s *Session) dispatch(args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "send":
		if len(args) < 3 {
			fmt.Fprintf(s.out, "%susage: send <destination> <message>%s\n", colorRed, colorEnd)
			return true
		}
		s.n.SendMessage(args[1], strings.Join(args[2:], " "))
	case "echo":
		if len(args) < 2 {
			fmt.Fprintf(s.out, "%susage: echo <destination>%s\n", colorRed, colorEnd)
			return true
		}
		s.n.SendEcho(args[1])
	case "neighbors":
		s.printNeighbors()
	case "routes":
		s.printRoutes()
	case "topology":
		s.printTopology()
	case "logs":
		s.printLogs()
	case "path":
		if len(args) < 2 {
			fmt.Fprintf(s.out, "%susage: path <destination>%s\n", colorRed, colorEnd)
			return true
		}
		s.printPath(args[1])
	case "debug":
		s.printDebug()
	case "quit":
		return false
	default:
		fmt.Fprintf(s.out, "%sunknown command%s\n", colorRed, colorEnd)
	}
	return true
}

func (s *Session) printNeighbors() {
	fmt.Fprintf(s.out, "%sNeighbors:%s\n", colorBold, colorEnd)
	for id, info := range s.n.Neighbors() {
		fmt.Fprintf(s.out, "  %s%s%s: cost %d\n", colorYellow, id, colorEnd, info.Cost)
	}
}

func (s *Session) printRoutes() {
	fmt.Fprintf(s.out, "%sRouting table:%s\n", colorBold, colorEnd)
	for dest := range s.topology {
		if dest == s.n.ID() {
			continue
		}
		if hop, ok := s.n.GetNextHop(dest); ok {
			fmt.Fprintf(s.out, "  %s%s%s -> %s%s%s\n", colorYellow, dest, colorEnd, colorCyan, hop, colorEnd)
		}
	}
}

func (s *Session) printTopology() {
	fmt.Fprintf(s.out, "%sNetwork topology:%s\n", colorBold, colorEnd)
	for nodeID, neighbors := range s.topology {
		marker := ""
		if nodeID == s.n.ID() {
			marker = fmt.Sprintf(" %s(this node)%s", colorGreen, colorEnd)
		}
		fmt.Fprintf(s.out, "  %s%s%s%s: %v\n", colorYellow, nodeID, colorEnd, marker, neighbors)
	}
}

func (s *Session) printLogs() {
	s.mu.Lock()
	entries := append([]node.Event(nil), s.log...)
	s.mu.Unlock()

	fmt.Fprintf(s.out, "%sRecent packet logs:%s\n", colorBold, colorEnd)
	for _, e := range entries {
		fmt.Fprintf(s.out, "  %s[%s]%s %s %s -> %s (peer %s)%s\n",
			colorFor(e.Tag), e.Tag, colorEnd, e.Packet.Type, e.Packet.From, e.Packet.To, e.Peer, colorEnd)
	}
}

func (s *Session) printPath(dest string) {
	hop, ok := s.n.GetNextHop(dest)
	if !ok {
		fmt.Fprintf(s.out, "No path to %s%s%s\n", colorYellow, dest, colorEnd)
		return
	}
	fmt.Fprintf(s.out, "Path to %s%s%s: next hop %s%s%s\n", colorYellow, dest, colorEnd, colorCyan, hop, colorEnd)
}

func (s *Session) printDebug() {
	fmt.Fprintf(s.out, "%sRouting Algorithm Debug Info:%s\n", colorBold, colorEnd)
	fmt.Fprintf(s.out, "  Algorithm: %s%s%s\n", colorYellow, s.n.Algorithm().Name(), colorEnd)
	fmt.Fprintf(s.out, "  Neighbors: %s%v%s\n", colorMagenta, neighborIDs(s.n.Neighbors()), colorEnd)
}

func neighborIDs(m map[string]algo.NeighborInfo) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}
