// Package ipv4 implements the dotted-quad/uint32 arithmetic the routing
// table builds on: mask application, prefix-length counting, mask widening
// and prefix splitting. All internal work happens on uint32; strings only
// cross at the JSON boundary.
package ipv4

import (
	"fmt"
	"net/netip"
)

// ToUint32 parses a dotted-quad string into its big-endian 32-bit form.
func ToUint32(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("ipv4: %q is not a dotted-quad address", s)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ToString renders a 32-bit address back to dotted-quad form.
func ToString(v uint32) string {
	b := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return netip.AddrFrom4(b).String()
}

// ApplyMask returns network AND netmask.
func ApplyMask(network, netmask uint32) uint32 {
	return network & netmask
}

// PrefixLength returns the popcount of a contiguous netmask (0..=32).
// Callers are responsible for only passing contiguous masks.
func PrefixLength(netmask uint32) int {
	n := 0
	for v := netmask; v != 0; v >>= 1 {
		n += int(v & 1)
	}
	return n
}

// WidenMask returns a mask one bit longer than netmask by setting the next
// leading zero bit. The precondition is PrefixLength(netmask) < 32.
func WidenMask(netmask uint32) uint32 {
	length := PrefixLength(netmask)
	if length >= 32 {
		return netmask
	}
	return netmask | (uint32(1) << uint(32-length-1))
}

// NarrowMask is the inverse of WidenMask: given a mask of length n+1 it
// returns the mask of length n that covers it (widen_mask⁻¹ in the spec's
// terms). Two prefixes differing only in their lowest network bit under
// NarrowMask(netmask) are aggregation partners.
func NarrowMask(netmask uint32) uint32 {
	return netmask << 1
}

// Split divides prefix under newMask (one bit longer than prefix's own
// mask, as implied by caller) into its two half-prefixes, returned in
// numeric order (lower, upper).
func Split(prefix, newMask uint32) (lower, upper uint32) {
	base := ApplyMask(prefix, newMask)
	length := PrefixLength(newMask)
	bit := uint32(1) << uint(32-length)
	return base, base | bit
}

// Matches reports whether address falls under prefix/netmask.
func Matches(prefix, netmask, address uint32) bool {
	return ApplyMask(address, netmask) == prefix
}
