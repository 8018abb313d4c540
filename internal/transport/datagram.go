// Package transport provides the datagram sockets a netchan.Channel runs
// over: plain UDP, and lossy WebRTC DataChannels for peers that complete
// signaling. Every socket delivers inbound datagrams to an Inbox and sends
// through Send(addr, data), which never retains data.
package transport

import (
	"errors"
	"net"

	"github.com/1ureka/netchan/internal/util"
)

// InboxSize is the default inbound queue depth.
const InboxSize = 256

var (
	ErrClosed      = errors.New("transport: socket closed")
	ErrUnknownPeer = errors.New("transport: no route to peer")
)

// Datagram is one inbound packet and where it came from.
type Datagram struct {
	Addr net.Addr
	Data []byte
}

// Inbox is the queue every socket feeds. Datagrams arriving while it is
// full are dropped, as the network would.
type Inbox chan Datagram

// NewInbox returns an inbox with room for size datagrams.
func NewInbox(size int) Inbox {
	return make(Inbox, size)
}

// push enqueues d without blocking.
func (in Inbox) push(d Datagram) bool {
	select {
	case in <- d:
		return true
	default:
		util.LogDebug("inbox full, dropping %d bytes from %s", len(d.Data), d.Addr)
		return false
	}
}
