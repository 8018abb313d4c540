package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide datagram/peer counter.
var Stats = &stats{}

type stats struct {
	Connects    atomic.Int64 // cumulative count of peers that completed the handshake
	Disconnects atomic.Int64 // cumulative count of peers dropped or timed out
	PacketsSent atomic.Int64 // datagrams handed to the socket layer
	PacketsRecv atomic.Int64 // sequenced datagrams accepted by a channel
	PacketsLost atomic.Int64 // sequence gaps seen by receiving channels
	BytesSent   atomic.Int64
	BytesRecv   atomic.Int64
}

func (s *stats) AddConn()      { s.Connects.Add(1) }
func (s *stats) RemoveConn()   { s.Disconnects.Add(1) }
func (s *stats) AddLost(n int) { s.PacketsLost.Add(int64(n)) }

func (s *stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if cur.changed(prev) {
					pterm.DefaultLogger.Info(formatStats(cur.sub(prev), secs))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	conns, drops, pktOut, pktIn, lost, out, in int64
}

func takeSnapshot() snapshot {
	return snapshot{
		conns:  Stats.Connects.Load(),
		drops:  Stats.Disconnects.Load(),
		pktOut: Stats.PacketsSent.Load(),
		pktIn:  Stats.PacketsRecv.Load(),
		lost:   Stats.PacketsLost.Load(),
		out:    Stats.BytesSent.Load(),
		in:     Stats.BytesRecv.Load(),
	}
}

func (s snapshot) sub(o snapshot) snapshot {
	return snapshot{
		conns:  s.conns - o.conns,
		drops:  s.drops - o.drops,
		pktOut: s.pktOut - o.pktOut,
		pktIn:  s.pktIn - o.pktIn,
		lost:   s.lost - o.lost,
		out:    s.out - o.out,
		in:     s.in - o.in,
	}
}

func (s snapshot) changed(o snapshot) bool { return s != o }

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporting interval: rates per second, packet loss
// as a share of accepted packets, and peer churn.
func formatStats(d snapshot, secs float64) string {
	loss := 0.0
	if d.pktIn+d.lost > 0 {
		loss = 100 * float64(d.lost) / float64(d.pktIn+d.lost)
	}
	return fmt.Sprintf("In: %s/s %4.0f pps | Out: %s/s %4.0f pps | Loss: %4.1f%% | Peers: %2d↑ %2d↓",
		formatBytes(float64(d.in)/secs),
		float64(d.pktIn)/secs,
		formatBytes(float64(d.out)/secs),
		float64(d.pktOut)/secs,
		loss,
		d.conns,
		d.drops,
	)
}
