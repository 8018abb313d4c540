package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netchan/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // stop draining when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume draining when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing datagram queue capacity
)

// sender is the single writer of one DataChannel. It gates on the channel
// opening and respects the SCTP buffer watermarks. Datagrams that find the
// queue full are dropped.
type sender struct {
	queue       chan []byte
	drainSignal chan struct{}
}

// newSender wires the backpressure callbacks on dc and starts the writer
// loop, which exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		queue:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case data := <-s.queue:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(data); err != nil {
				util.LogError("datachannel send of %d bytes failed: %v", len(data), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// send queues a copy of data. It reports false when the datagram was
// dropped.
func (s *sender) send(data []byte) bool {
	select {
	case s.queue <- append([]byte(nil), data...):
		return true
	default:
		return false
	}
}
