// Package config loads the two JSON document shapes a node is started
// from (§6): a topology document describing the whole network's
// adjacency, and a names document mapping each node id to the address
// it's reachable at. Both share the same envelope —
// {"type": "topo"|"names", "config": {...}} — with the type tag checked
// before the payload is interpreted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the common envelope both config file shapes share.
type Document struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Topology is the whole network's adjacency: node id -> the ids of its
// directly connected neighbors. Costs aren't carried in the topology
// file itself (every declared edge defaults to cost 1, per
// §3's "default neighbor cost"); a deployment wanting non-uniform costs
// sets them afterwards via Node.ConfigureNeighbor.
type Topology map[string][]string

// NeighborsOf returns the declared neighbors of id, or nil if id has no
// entry in the topology.
func (t Topology) NeighborsOf(id string) []string {
	return t[id]
}

// NodeAddress is one entry of a names document: where a node id can be
// reached.
type NodeAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Names is node id -> address, used to resolve a neighbor id to a dial
// target for transport.ZMQTransport.
type Names map[string]NodeAddress

func LoadTopology(path string) (Topology, error) {
	doc, err := readDocument(path, "topo")
	if err != nil {
		return nil, err
	}
	var topo Topology
	if err := json.Unmarshal(doc.Config, &topo); err != nil {
		return nil, fmt.Errorf("config: decode topo %s: %w", path, err)
	}
	return topo, nil
}

func LoadNames(path string) (Names, error) {
	doc, err := readDocument(path, "names")
	if err != nil {
		return nil, err
	}
	var names Names
	if err := json.Unmarshal(doc.Config, &names); err != nil {
		return nil, fmt.Errorf("config: decode names %s: %w", path, err)
	}
	return names, nil
}

// NeighborAddresses resolves a list of neighbor ids against a Names
// document into the "tcp://host:port" style endpoints ZMQTransport
// needs, failing if any neighbor is missing its address.
func NeighborAddresses(names Names, neighbors []string) (map[string]string, error) {
	out := make(map[string]string, len(neighbors))
	for _, id := range neighbors {
		addr, ok := names[id]
		if !ok {
			return nil, fmt.Errorf("config: no address for neighbor %q", id)
		}
		out[id] = fmt.Sprintf("tcp://%s:%d", addr.Host, addr.Port)
	}
	return out, nil
}

func readDocument(path, wantType string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Type != wantType {
		return nil, fmt.Errorf("config: %s: expected type %q, got %q", path, wantType, doc.Type)
	}
	return &doc, nil
}
