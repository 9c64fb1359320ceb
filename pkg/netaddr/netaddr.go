/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package netaddr implements the tagged-union socket address used to key
// and print peer endpoints, plus the formatting and subnet-mask helpers
// spec.md §6 describes. IPv6 is supported for printing only; resolution
// targets IPv4 exclusively per spec.md's Non-goals.
package netaddr

import (
	"fmt"
	"net"
)

// Family identifies the address family carried by a Sockaddr.
type Family uint8

const (
	// Invalid marks a zero-value Sockaddr with no address.
	Invalid Family = iota
	// INET is AF_INET (IPv4).
	INET
	// INET6 is AF_INET6 (IPv6).
	INET6
)

// Sockaddr is a tagged union over family, a 16-bit port, and an address
// payload of 4 (INET) or 16 (INET6) bytes. Equality is componentwise.
type Sockaddr struct {
	Family Family
	Port   uint16
	Addr   [16]byte
}

// NewV4 builds an INET Sockaddr from a 4-byte address and a port.
func NewV4(addr [4]byte, port uint16) Sockaddr {
	var s Sockaddr
	s.Family = INET
	s.Port = port
	copy(s.Addr[:4], addr[:])
	return s
}

// NewV6 builds an INET6 Sockaddr from a 16-byte address and a port.
func NewV6(addr [16]byte, port uint16) Sockaddr {
	return Sockaddr{Family: INET6, Port: port, Addr: addr}
}

// FromNetIP builds a Sockaddr from a net.IP and port, choosing INET or
// INET6 based on whether the address has a 4-byte form.
func FromNetIP(ip net.IP, port uint16) Sockaddr {
	if v4 := ip.To4(); v4 != nil {
		var a [4]byte
		copy(a[:], v4)
		return NewV4(a, port)
	}
	var a [16]byte
	copy(a[:], ip.To16())
	return NewV6(a, port)
}

// IP returns the net.IP carried by s.
func (s Sockaddr) IP() net.IP {
	switch s.Family {
	case INET:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:4])
		return ip
	case INET6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:16])
		return ip
	default:
		return nil
	}
}

// addrLen returns the number of significant address bytes for the family.
func (s Sockaddr) addrLen() int {
	switch s.Family {
	case INET:
		return 4
	case INET6:
		return 16
	default:
		return 0
	}
}

// Equal reports whether a and b carry the same family, port, and address
// bytes, comparing only the 4 (INET), 16 (INET6) or 0 (Invalid) address
// bytes significant for the family. It is reflexive, symmetric, and
// transitive by construction.
func Equal(a, b Sockaddr) bool {
	if a.Family != b.Family || a.Port != b.Port {
		return false
	}
	n := a.addrLen()
	for i := 0; i < n; i++ {
		if a.Addr[i] != b.Addr[i] {
			return false
		}
	}
	return true
}

// String renders s as "A.B.C.D:port" for IPv4 or "[x:x::x]:port" for IPv6,
// matching sock_to_cstr.
func (s Sockaddr) String() string {
	switch s.Family {
	case INET:
		return fmt.Sprintf("%s:%d", InAddrToA([4]byte{s.Addr[0], s.Addr[1], s.Addr[2], s.Addr[3]}), s.Port)
	case INET6:
		return fmt.Sprintf("[%s]:%d", s.IP().String(), s.Port)
	default:
		return "<invalid>"
	}
}

// IntoA renders a host-order 32-bit value as "A.B.C.D", with the
// least-significant byte of the input printed first: byte 0 (the
// high-order byte of host) is the rightmost octet, matching intoa's
// little-endian-ish host-order memory layout.
func IntoA(hostOrder uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		hostOrder&0xFF,
		(hostOrder>>8)&0xFF,
		(hostOrder>>16)&0xFF,
		(hostOrder>>24)&0xFF,
	)
}

// InAddrToA renders a 4-byte IPv4 address in network order as "A.B.C.D".
// The fixed-size input cannot fail to convert, so it never returns "";
// the zero address renders as "0.0.0.0".
func InAddrToA(addr [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])
}

// IPSubnetToString renders "A.B.C.D/bitlen".
func IPSubnetToString(network [4]byte, bitlen int) string {
	return fmt.Sprintf("%s/%d", InAddrToA(network), bitlen)
}

// Bitlen2Mask converts a prefix length in [0,32] to a network-order mask
// with the top bitlen bits set.
func Bitlen2Mask(bitlen int) uint32 {
	if bitlen <= 0 {
		return 0
	}
	if bitlen >= 32 {
		return 0xFFFFFFFF
	}
	return ^uint32(0) << (32 - bitlen)
}

// Mask2Bitlen converts a contiguous network-order mask back to its prefix
// length. Undefined for non-contiguous masks, as in the reference.
func Mask2Bitlen(mask uint32) int {
	n := 0
	for mask&0x80000000 != 0 {
		n++
		mask <<= 1
	}
	return n
}
