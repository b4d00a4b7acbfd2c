// Package rtable implements the BGP-style routing table: aggregation on
// insert, disaggregation on withdraw, and the best-route tie-break cascade.
package rtable

import "fmt"

// Origin is the BGP origin attribute, in preference order IGP > EGP > UNK.
type Origin int

const (
	OriginUNK Origin = iota
	OriginEGP
	OriginIGP
)

func (o Origin) String() string {
	switch o {
	case OriginIGP:
		return "IGP"
	case OriginEGP:
		return "EGP"
	default:
		return "UNK"
	}
}

// ParseOrigin maps the wire string to an Origin. Unknown strings fall back
// to OriginUNK, which is also the weakest origin in the preference order.
func ParseOrigin(s string) Origin {
	switch s {
	case "IGP":
		return OriginIGP
	case "EGP":
		return OriginEGP
	default:
		return OriginUNK
	}
}

// Route is one row of the routing table (spec's Route entry).
type Route struct {
	Peer       uint32
	Network    uint32
	Netmask    uint32
	LocalPref  uint32
	SelfOrigin bool
	ASPath     []int
	Origin     Origin
}

// sameASPath reports element-wise equality of two AS paths.
func sameASPath(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r Route) String() string {
	return fmt.Sprintf("Route{peer=%d network=%d/%d localpref=%d self=%v path=%v origin=%s}",
		r.Peer, r.Network, r.Netmask, r.LocalPref, r.SelfOrigin, r.ASPath, r.Origin)
}

// cloneASPath returns an independent copy of path, so stored entries never
// alias a caller's slice.
func cloneASPath(path []int) []int {
	out := make([]int, len(path))
	copy(out, path)
	return out
}
