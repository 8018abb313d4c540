// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
	"net"
)

// PeerKey computes a hash of a peer's host (without port) and qport. Peers
// behind a NAT that rebinds their source port keep the same key, so the
// connection manager can find them again. The hash is used solely for
// identification and does not need to be reversible.
func PeerKey(addr net.Addr, qport uint16) uint32 {
	h := fnv.New32a()
	h.Write([]byte(HostOf(addr)))
	h.Write([]byte{byte(qport), byte(qport >> 8)})
	return h.Sum32()
}

// HostOf returns addr without its port. Addresses that carry no port are
// returned whole.
func HostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	s := addr.String()
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return s
	}
	return host
}
