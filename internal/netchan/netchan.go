// Package netchan implements the sequenced channel that multiplexes one
// reliable byte stream and one unreliable byte stream over a lossy datagram
// socket.
//
// Each packet carries an outgoing sequence and the last sequence seen from
// the peer. At most one reliable payload is in flight; it is resent verbatim
// until the peer acknowledges its parity. Messages larger than the packet
// budget are split into fragments that share one sequence and are sent one
// per Transmit call.
//
// A Channel is owned by a single tick loop and is not safe for concurrent use.
package netchan

import (
	"net"
	"time"

	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/protocol"
)

// Socket is the datagram collaborator a channel sends through. Send must not
// retain data after it returns.
type Socket interface {
	Send(addr net.Addr, data []byte) error
}

// Side tells a channel which end of the connection it is. Clients write the
// qport, servers read and check it.
type Side int

const (
	Client Side = iota
	Server
)

func (s Side) String() string {
	if s == Server {
		return "server"
	}
	return "client"
}

// Observer receives channel events. Implementations must be cheap; they are
// called from the tick loop.
type Observer interface {
	PacketSent(bytes int)
	PacketReceived(bytes int)
	PacketsDropped(n int)
	PacketRejected(reason string)
	Retransmitted()
	FragmentSent()
	Fatal(reason string)
}

type nopObserver struct{}

func (nopObserver) PacketSent(int)        {}
func (nopObserver) PacketReceived(int)    {}
func (nopObserver) PacketsDropped(int)    {}
func (nopObserver) PacketRejected(string) {}
func (nopObserver) Retransmitted()        {}
func (nopObserver) FragmentSent()         {}
func (nopObserver) Fatal(string)          {}

// Option configures a Channel.
type Option func(*Channel)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(c *Channel) { c.obs = o }
}

// Channel is the per-peer channel state.
type Channel struct {
	Side         Side
	RemoteAddr   net.Addr
	QPort        uint16
	MaxPacketLen int

	OutgoingSequence     uint32
	IncomingSequence     uint32
	IncomingAcknowledged uint32

	// Message queues reliable data for the next payload. It allows
	// overflow; an overflowed Message makes the next Transmit fatal.
	Message *msg.Buffer

	// Diagnostics only.
	Dropped       int
	TotalDropped  int
	TotalReceived int

	FragmentPending bool

	LastReceived time.Time
	LastSent     time.Time

	sock Socket
	now  func() time.Time
	obs  Observer

	reliableBuf                  []byte
	reliableLen                  int
	reliableSequence             bool // parity of the in-flight payload
	lastReliableSequence         uint32
	incomingReliableAcknowledged bool
	incomingReliableSequence     bool // parity of the last accepted payload
	reliableAckPending           bool

	fragmentIn       []byte
	assembled        []byte
	fragmentSequence uint32
	fragmentOut      []byte
	fragmentOffset   int
	fragmentReliable bool

	sendBuf []byte
	payload []byte
	reader  *msg.Buffer

	fatal *FatalError
}

// New sets up a channel to addr. maxPacketLen is the payload budget per
// datagram; zero selects protocol.DefaultPacketLen and other values are
// clamped to the supported range.
func New(sock Socket, side Side, addr net.Addr, qport uint16, maxPacketLen int, opts ...Option) *Channel {
	if maxPacketLen == 0 {
		maxPacketLen = protocol.DefaultPacketLen
	}
	maxPacketLen = min(max(maxPacketLen, protocol.MinPacketLen), protocol.MaxPacketLen-protocol.HeaderSize)

	c := &Channel{
		Side:         side,
		RemoteAddr:   addr,
		QPort:        qport,
		MaxPacketLen: maxPacketLen,
		Message:      msg.New(protocol.MaxReliableLen),
		sock:         sock,
		now:          time.Now,
		obs:          nopObserver{},
		reliableBuf:  make([]byte, protocol.MaxReliableLen),
		fragmentIn:   make([]byte, 0, protocol.MaxMsgLen),
		assembled:    make([]byte, 0, protocol.MaxMsgLen),
		fragmentOut:  make([]byte, 0, protocol.MaxMsgLen),
		sendBuf:      make([]byte, 0, protocol.MaxPacketLen),
		payload:      make([]byte, 0, protocol.MaxMsgLen),
		reader:       msg.NewReader(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

// Reset returns the channel to its freshly set up state, keeping the peer
// address, qport and packet budget.
func (c *Channel) Reset() {
	c.OutgoingSequence = 1
	c.IncomingSequence = 0
	c.IncomingAcknowledged = 0
	c.Message.Clear()
	c.Dropped, c.TotalDropped, c.TotalReceived = 0, 0, 0
	c.FragmentPending = false

	now := c.now()
	c.LastReceived = now
	c.LastSent = now

	c.reliableLen = 0
	c.reliableSequence = false
	c.lastReliableSequence = 0
	c.incomingReliableAcknowledged = false
	c.incomingReliableSequence = false
	c.reliableAckPending = false

	c.fragmentIn = c.fragmentIn[:0]
	c.fragmentSequence = 0
	c.fragmentOut = c.fragmentOut[:0]
	c.fragmentOffset = 0
	c.fragmentReliable = false

	c.fatal = nil
}

// Fatal returns the error that stopped the channel, or nil.
func (c *Channel) Fatal() error {
	if c.fatal == nil {
		return nil
	}
	return c.fatal
}

// ReliablePending reports whether a reliable payload awaits acknowledgement.
func (c *Channel) ReliablePending() bool { return c.reliableLen > 0 }

// ShouldUpdate reports whether the channel has something worth sending:
// queued reliable data, an acknowledgement owed to the peer, an unfinished
// fragment sequence, or a second of silence.
func (c *Channel) ShouldUpdate(now time.Time) bool {
	return c.Message.Len() > 0 ||
		c.reliableAckPending ||
		c.FragmentPending ||
		now.Sub(c.LastSent) > time.Second
}

func (c *Channel) setFatal(reason string, err error) error {
	c.fatal = &FatalError{Reason: reason, Err: err}
	c.obs.Fatal(reason)
	return c.fatal
}
