package rtable

import (
	"errors"

	"github.com/rhicks/simbgp/pkg/ipv4"
)

// ErrNoRoute is returned by BestRoute when no entry covers the destination.
var ErrNoRoute = errors.New("rtable: no route")

// Table is the unordered multiset of route entries described by the spec:
// for any pair of distinct entries, aggregable(A, B) is always false.
type Table struct {
	rows []Route
}

// New returns an empty routing table.
func New() *Table {
	return &Table{}
}

// Rows returns a snapshot of the current entries, for dump/table responses.
// Callers must not mutate the returned slice's Routes' ASPath in place.
func (t *Table) Rows() []Route {
	out := make([]Route, len(t.rows))
	copy(out, t.rows)
	return out
}

// Update inserts entry, first clearing any existing coverage of the same
// (network, netmask) from the same peer, then cascading aggregation with
// any existing adjacent row sharing all other attributes.
func (t *Table) Update(entry Route) {
	entry.ASPath = cloneASPath(entry.ASPath)

	t.Withdraw(entry.Network, entry.Netmask, entry.Peer)

	for {
		idx := t.findAggregable(entry)
		if idx < 0 {
			break
		}
		partner := t.removeAt(idx)
		newMask := ipv4.NarrowMask(partner.Netmask)
		entry = Route{
			Peer:       partner.Peer,
			Network:    ipv4.ApplyMask(partner.Network, newMask),
			Netmask:    newMask,
			LocalPref:  partner.LocalPref,
			SelfOrigin: partner.SelfOrigin,
			ASPath:     partner.ASPath,
			Origin:     partner.Origin,
		}
	}

	t.rows = append(t.rows, entry)
}

// Withdraw removes exactly the coverage of (network, netmask) announced by
// peer, disaggregating any larger row that currently subsumes it.
func (t *Table) Withdraw(network, netmask uint32, peer uint32) {
	for t.disaggregate(network, netmask, peer) {
	}
}

// disaggregate performs one step: find a row from peer covering network,
// remove it, and if it is coarser than netmask, split it repeatedly,
// re-inserting the half not containing network and keeping the other half
// as the shrinking candidate. Returns false when nothing covers network.
func (t *Table) disaggregate(network, netmask, peer uint32) bool {
	idx := -1
	for i, r := range t.rows {
		if r.Peer == peer && ipv4.Matches(r.Network, r.Netmask, network) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	r := t.removeAt(idx)
	targetLen := ipv4.PrefixLength(netmask)
	for ipv4.PrefixLength(r.Netmask) < targetLen {
		newMask := ipv4.WidenMask(r.Netmask)
		lower, upper := ipv4.Split(r.Network, newMask)

		var keepNetwork, reinsertNetwork uint32
		if ipv4.Matches(lower, newMask, network) {
			keepNetwork, reinsertNetwork = lower, upper
		} else {
			keepNetwork, reinsertNetwork = upper, lower
		}

		t.Update(Route{
			Peer:       peer,
			Network:    reinsertNetwork,
			Netmask:    newMask,
			LocalPref:  r.LocalPref,
			SelfOrigin: r.SelfOrigin,
			ASPath:     cloneASPath(r.ASPath),
			Origin:     r.Origin,
		})

		r = Route{
			Peer:       peer,
			Network:    keepNetwork,
			Netmask:    newMask,
			LocalPref:  r.LocalPref,
			SelfOrigin: r.SelfOrigin,
			ASPath:     r.ASPath,
			Origin:     r.Origin,
		}
	}
	return true
}

// BestRoute applies the longest-prefix-match / tie-break cascade and
// returns the winning entry; its Peer is the next hop.
func (t *Table) BestRoute(dst uint32) (Route, error) {
	var best Route
	found := false

	for _, r := range t.rows {
		if !ipv4.Matches(r.Network, r.Netmask, dst) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		if better(r, best) {
			best = r
		}
	}

	if !found {
		return Route{}, ErrNoRoute
	}
	return best, nil
}

// better reports whether candidate beats current under the BGP tie-break
// cascade: longest prefix, highest localpref, selfOrigin, shortest ASPath,
// best origin, lowest peer IP.
func better(candidate, current Route) bool {
	cLen, kLen := ipv4.PrefixLength(candidate.Netmask), ipv4.PrefixLength(current.Netmask)
	if cLen != kLen {
		return cLen > kLen
	}
	if candidate.LocalPref != current.LocalPref {
		return candidate.LocalPref > current.LocalPref
	}
	if candidate.SelfOrigin != current.SelfOrigin {
		return candidate.SelfOrigin
	}
	if len(candidate.ASPath) != len(current.ASPath) {
		return len(candidate.ASPath) < len(current.ASPath)
	}
	if candidate.Origin != current.Origin {
		return candidate.Origin > current.Origin
	}
	return candidate.Peer < current.Peer
}

// findAggregable returns the index of a row aggregable with entry, or -1.
func (t *Table) findAggregable(entry Route) int {
	for i, r := range t.rows {
		if aggregable(r, entry) {
			return i
		}
	}
	return -1
}

// aggregable implements the spec's aggregability predicate.
func aggregable(a, b Route) bool {
	if a.Peer != b.Peer || a.Netmask != b.Netmask || a.LocalPref != b.LocalPref {
		return false
	}
	if a.SelfOrigin != b.SelfOrigin || a.Origin != b.Origin {
		return false
	}
	if !sameASPath(a.ASPath, b.ASPath) {
		return false
	}

	length := ipv4.PrefixLength(a.Netmask)
	if length == 0 {
		return false
	}
	pa := ipv4.ApplyMask(a.Network, a.Netmask) >> uint(32-length)
	pb := ipv4.ApplyMask(b.Network, b.Netmask) >> uint(32-length)
	var diff uint32
	if pa > pb {
		diff = pa - pb
	} else {
		diff = pb - pa
	}
	// Adjacent values must also share the covering prefix one bit shorter
	// (e.g. 10.0.1.0/24 and 10.0.2.0/24 are adjacent but not siblings).
	return diff == 1 && pa>>1 == pb>>1
}

// removeAt removes and returns the row at idx, without preserving order
// (table order is not observable per spec).
func (t *Table) removeAt(idx int) Route {
	r := t.rows[idx]
	last := len(t.rows) - 1
	t.rows[idx] = t.rows[last]
	t.rows = t.rows[:last]
	return r
}
