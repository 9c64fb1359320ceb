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

package netaddr

import (
	"fmt"
	"strings"
)

// Resolver is the external name-resolution primitive the core consumes:
// host -> IPv4 address. It is intentionally minimal so callers can back it
// with net.ResolveIPAddr, a test double, or anything else.
type Resolver interface {
	ResolveIPv4(host string) ([4]byte, error)
}

// atoiTruncating parses a decimal prefix of s, silently truncating at the
// first non-digit rather than erroring, matching supernode_parse's
// atoi-style port parsing.
func atoiTruncating(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// ParseSupernode splits spec on the last ':' into host and port. The port
// suffix is parsed atoi-style: a trailing non-numeric tail is silently
// dropped rather than rejected.
func ParseSupernode(spec string) (host string, port int, err error) {
	i := strings.LastIndexByte(spec, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("netaddr: %q: missing :port", spec)
	}
	host = spec[:i]
	if host == "" {
		return "", 0, fmt.Errorf("netaddr: %q: missing host", spec)
	}
	port = atoiTruncating(spec[i+1:])
	return host, port, nil
}

// ResolveSupernode parses spec and resolves its host to an IPv4 Sockaddr
// via r. Resolution always targets IPv4, per spec.md's Non-goals.
func ResolveSupernode(spec string, r Resolver) (Sockaddr, error) {
	host, port, err := ParseSupernode(spec)
	if err != nil {
		return Sockaddr{}, err
	}
	addr, err := r.ResolveIPv4(host)
	if err != nil {
		return Sockaddr{}, fmt.Errorf("netaddr: resolving %q: %w", host, err)
	}
	return NewV4(addr, uint16(port)), nil
}
