package util

import (
	"net"
	"strings"
	"testing"
)

func TestPeerKeyIgnoresPort(t *testing.T) {
	a := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 27910}
	b := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 50123}
	c := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 27910}

	if PeerKey(a, 7) != PeerKey(b, 7) {
		t.Error("same host and qport should give the same key after a port change")
	}
	if PeerKey(a, 7) == PeerKey(a, 8) {
		t.Error("different qports should give different keys")
	}
	if PeerKey(a, 7) == PeerKey(c, 7) {
		t.Error("different hosts should give different keys")
	}
}

func TestFormatBytesWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024 * 1024, " 0.1 GiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatStatsLoss(t *testing.T) {
	s := formatStats(snapshot{pktIn: 90, lost: 10, conns: 1}, 1)
	if !strings.Contains(s, "Loss: 10.0%") {
		t.Errorf("formatStats = %q, want 10%% loss", s)
	}
}
