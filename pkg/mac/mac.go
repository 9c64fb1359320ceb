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

// Package mac implements the 6-byte Ethernet MAC address used as the peer
// registry key, its string encoding, and the sentinel classifiers edges and
// supernodes use to recognize broadcast and multicast traffic.
package mac

import (
	"fmt"
)

// Size is the length in bytes of an Ethernet MAC address.
const Size = 6

// Addr is a 6-byte Ethernet MAC address.
type Addr [Size]byte

// Zero is the all-zero "absent" MAC.
var Zero = Addr{}

// Broadcast is the all-ones broadcast MAC.
var Broadcast = Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsNull reports whether a is the all-zero sentinel (no MAC assigned yet).
func (a Addr) IsNull() bool {
	return a == Zero
}

// IsBroadcast reports whether a is the all-ones Ethernet broadcast address.
func (a Addr) IsBroadcast() bool {
	return a == Broadcast
}

// IsMultiBroadcast reports whether a falls in the IPv4 multicast MAC prefix
// (01:00:5E with the high bit of the 4th byte clear) or the IPv6 multicast
// prefix (33:33).
func (a Addr) IsMultiBroadcast() bool {
	if a[0] == 0x01 && a[1] == 0x00 && a[2] == 0x5E && a[3]&0x80 == 0 {
		return true
	}
	if a[0] == 0x33 && a[1] == 0x33 {
		return true
	}
	return false
}

// String renders the MAC as upper-case, colon-separated hex, e.g.
// "DE:AD:BE:EF:01:10".
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// hexVal decodes a single hex digit, or -1 if r isn't one.
func hexVal(r byte) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	default:
		return -1
	}
}

// Parse reads six hex pairs separated by a single delimiter byte, as
// written by str2mac in the reference implementation: the byte between
// each pair is accepted and skipped without checking that it's actually
// ':' (so "DE-AD.BE EF:01_10" parses the same as the canonical
// "DE:AD:BE:EF:01:10").
func Parse(s string) (Addr, error) {
	var a Addr
	i := 0
	pos := 0
	for i < Size {
		if pos+1 >= len(s) {
			return Addr{}, fmt.Errorf("mac: %q: too short", s)
		}
		hi, lo := hexVal(s[pos]), hexVal(s[pos+1])
		if hi < 0 || lo < 0 {
			return Addr{}, fmt.Errorf("mac: %q: invalid hex pair at offset %d", s, pos)
		}
		a[i] = byte(hi<<4 | lo)
		i++
		pos += 2
		if i < Size {
			if pos >= len(s) {
				return Addr{}, fmt.Errorf("mac: %q: too short", s)
			}
			pos++ // skip the separator byte, whatever it is
		}
	}
	return a, nil
}
