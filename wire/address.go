package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/crypto/sha3"
)

// Address identifies a node. It is comparable and totally ordered, and in
// the ad hoc network it is the node's IPv4 address packed into 32 bits.
type Address uint32

// NoAddress is the sentinel carried by a ModeChange when a node steps down.
const NoAddress Address = 0

// String renders the address as a dotted quad.
func (a Address) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(a))
	return netip.AddrFrom4(b).String()
}

// ParseAddress parses a dotted IPv4 address.
func ParseAddress(s string) (Address, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return NoAddress, fmt.Errorf("parse address %q: %w", s, err)
	}
	if !ip.Is4() {
		return NoAddress, fmt.Errorf("parse address %q: not an IPv4 address", s)
	}
	b := ip.As4()
	return Address(binary.BigEndian.Uint32(b[:])), nil
}

// AddressFromName derives a stable address for a node known only by name
// (a host:port endpoint, a label). Dotted IPv4 names map to themselves.
func AddressFromName(name string) Address {
	if a, err := ParseAddress(name); err == nil && a != NoAddress {
		return a
	}
	sum := sha3.Sum256([]byte(name))
	a := Address(binary.BigEndian.Uint32(sum[:4]))
	if a == NoAddress {
		a = 1
	}
	return a
}
