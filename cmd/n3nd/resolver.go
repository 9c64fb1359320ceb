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

package main

import (
	"context"
	"fmt"
	"net"
)

// systemResolver binds pkg/netaddr.Resolver to the host's DNS, the
// name-resolution external collaborator spec.md §1 names but leaves
// outside the core.
type systemResolver struct{}

func (systemResolver) ResolveIPv4(host string) ([4]byte, error) {
	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
	if err != nil {
		return [4]byte{}, fmt.Errorf("resolving %q: %w", host, err)
	}
	if len(ips) == 0 {
		return [4]byte{}, fmt.Errorf("resolving %q: no addresses returned", host)
	}
	var out [4]byte
	copy(out[:], ips[0].To4())
	return out, nil
}
