// Package neighbor implements the neighbor registry: for each known
// neighbor, its address, UDP port, relationship, and local socket.
package neighbor

import (
	"fmt"
	"net"

	"github.com/rhicks/simbgp/pkg/rerrors"
)

// Relation is the commercial relationship with a neighbor, governing the
// valley-free export policy.
type Relation int

const (
	Customer Relation = iota
	Peer
	Provider
)

func (r Relation) String() string {
	switch r {
	case Customer:
		return "cust"
	case Peer:
		return "peer"
	case Provider:
		return "prov"
	default:
		return "unknown"
	}
}

// ParseRelation maps a CLI/spec relation token to a Relation. An unknown
// token returns ErrInvalidRelation, fatal at startup.
func ParseRelation(s string) (Relation, error) {
	switch s {
	case "cust":
		return Customer, nil
	case "peer":
		return Peer, nil
	case "prov":
		return Provider, nil
	default:
		return 0, fmt.Errorf("neighbor: %w: %q", rerrors.ErrInvalidRelation, s)
	}
}

// Neighbor is one entry in the registry: its address, port, relation, and
// the local socket used to talk to it.
type Neighbor struct {
	Address    string
	Port       int
	Relation   Relation
	Conn       *net.UDPConn
	RemoteAddr *net.UDPAddr
}

// LocalEndpoint returns the router's own apparent address toward this
// neighbor: the neighbor's address with its final character stripped and
// "1" appended (literal string-level substitution, per spec — not a
// dot-aware octet replace).
func LocalEndpoint(neighborAddr string) string {
	if neighborAddr == "" {
		return neighborAddr
	}
	return neighborAddr[:len(neighborAddr)-1] + "1"
}

// Registry is the authoritative key/value store from neighbor address to
// its (port, relation, socket). Populated once at startup; iteration order
// is not observable externally.
type Registry struct {
	byAddr map[string]*Neighbor
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byAddr: make(map[string]*Neighbor)}
}

// Add binds a fresh ephemeral loopback UDP socket for addr and registers
// the neighbor. Returns ErrBind if the socket cannot be created.
func (r *Registry) Add(addr string, port int, relation Relation) (*Neighbor, error) {
	laddr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("neighbor: %w: %v", rerrors.ErrBind, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("neighbor: %w: %v", rerrors.ErrBind, err)
	}
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("neighbor: %w: %v", rerrors.ErrBind, err)
	}

	n := &Neighbor{
		Address:    addr,
		Port:       port,
		Relation:   relation,
		Conn:       conn,
		RemoteAddr: raddr,
	}
	r.byAddr[addr] = n
	r.order = append(r.order, addr)
	return n, nil
}

// Get returns the neighbor registered under addr, if any.
func (r *Registry) Get(addr string) (*Neighbor, bool) {
	n, ok := r.byAddr[addr]
	return n, ok
}

// All returns every neighbor, in registration order.
func (r *Registry) All() []*Neighbor {
	out := make([]*Neighbor, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.byAddr[addr])
	}
	return out
}

// Close releases every neighbor's socket.
func (r *Registry) Close() {
	for _, n := range r.byAddr {
		n.Conn.Close()
	}
}
