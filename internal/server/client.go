package server

import (
	"fmt"
	"time"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/netchan"
	"github.com/1ureka/netchan/internal/status"
)

// frameHistory is how many sent frames are remembered per client. A client
// that acknowledges a frame older than this gets an uncompressed one.
const frameHistory = 16

// clientFrame is what one frame looked like to one client.
type clientFrame struct {
	num      int
	sentAt   time.Time
	player   delta.PlayerState
	entities []delta.EntityState
}

type client struct {
	slot int
	key  uint32
	ch   *netchan.Channel

	frames   [frameHistory]clientFrame
	ackFrame int // last frame the client reported, or -1

	// ambient ids: what the client holds, and when we last sent one
	ambientAck       int
	ambientSentFrame int
	moved            bool // a clc_move arrived, so ambientAck is real

	lastCmd     delta.UserCmd
	ping        time.Duration
	connectedAt time.Time
}

func (cl *client) name() string {
	return fmt.Sprintf("client %d (%s)", cl.slot, cl.ch.RemoteAddr)
}

// deltaFrame returns the frame to compress against, or nil.
func (cl *client) deltaFrame(current int) *clientFrame {
	if cl.ackFrame <= 0 || current-cl.ackFrame >= frameHistory {
		return nil
	}
	f := &cl.frames[cl.ackFrame%frameHistory]
	if f.num != cl.ackFrame {
		return nil
	}
	return f
}

// acknowledge records the frame the client last received and the round
// trip it took.
func (cl *client) acknowledge(frame int, now time.Time) {
	if frame <= cl.ackFrame {
		return
	}
	cl.ackFrame = frame
	if f := &cl.frames[frame%frameHistory]; f.num == frame && !f.sentAt.IsZero() {
		cl.ping = now.Sub(f.sentAt)
	}
}

func (cl *client) info(now time.Time) status.Client {
	return status.Client{
		Slot:      cl.slot,
		Addr:      cl.ch.RemoteAddr.String(),
		QPort:     cl.ch.QPort,
		PingMs:    int(cl.ping / time.Millisecond),
		Outgoing:  int(cl.ch.OutgoingSequence),
		Incoming:  int(cl.ch.IncomingSequence),
		Dropped:   cl.ch.TotalDropped,
		IdleMs:    now.Sub(cl.ch.LastReceived).Milliseconds(),
		Transport: transportName(cl.ch.RemoteAddr),
	}
}
