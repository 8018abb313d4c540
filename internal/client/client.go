// Package client connects to a server, keeps the latest snapshot it was
// sent, and streams user commands back on every tick.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/netchan"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
)

var (
	ErrNoResponse   = errors.New("client: server did not answer")
	ErrDisconnected = errors.New("client: server disconnected")
	ErrTimedOut     = errors.New("client: server timed out")
)

// RefusedError carries the text a server sent instead of accepting a
// connect.
type RefusedError struct {
	Reason string
}

func (e *RefusedError) Error() string { return "client: refused: " + e.Reason }

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Challenging        // waiting for a challenge
	Connecting         // waiting for client_connect
	Connected          // channel up, waiting for server data
	Active             // gamestate received, frames flowing
)

func (s State) String() string {
	switch s {
	case Challenging:
		return "challenging"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Active:
		return "active"
	}
	return "disconnected"
}

const (
	requestInterval = 500 * time.Millisecond
	maxRequests     = 10
	frameHistory    = 16
	cmdBackup       = 3 // commands repeated in every move
)

// Input produces the user command for a client tick.
type Input func(tick int) delta.UserCmd

// Option configures a Client.
type Option func(*Client)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithObserver attaches channel metrics.
func WithObserver(o netchan.Observer) Option {
	return func(c *Client) { c.obs = o }
}

// WithInput replaces the default circling input.
func WithInput(in Input) Option {
	return func(c *Client) { c.input = in }
}

type frame struct {
	num      int
	player   delta.PlayerState
	entities []delta.EntityState
}

// Client is one connection to a server. Run owns it; the accessors may be
// called from other goroutines.
type Client struct {
	cfg    *config.Config
	sock   netchan.Socket
	inbox  transport.Inbox
	server net.Addr
	qport  uint16
	now    func() time.Time
	obs    netchan.Observer
	input  Input

	mu          sync.Mutex
	state       State
	ch          *netchan.Channel
	challenge   int
	requests    int
	lastRequest time.Time
	err         error

	slot      int
	frameRate int
	gs        *delta.Gamestate
	frames    [frameHistory]frame
	latest    int
	ambientID int
	ambients  []delta.EntityState
	shotCount int
	lastShots []delta.Shot

	ticks int
	cmds  [cmdBackup]delta.UserCmd
}

// New creates a client for the server at addr.
func New(cfg *config.Config, sock netchan.Socket, inbox transport.Inbox, addr net.Addr, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		sock:   sock,
		inbox:  inbox,
		server: addr,
		qport:  cfg.QPort,
		now:    time.Now,
		input:  Circle,
		latest: -1,
	}
	if c.qport == 0 {
		c.qport = uint16(rand.IntN(0xFFFF) + 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and keeps the session going until ctx is done, the server
// drops the client, or the handshake fails. Cancelling ctx sends a
// disconnect and returns nil.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.state = Challenging
	c.requests = 0
	c.lastRequest = time.Time{}
	c.mu.Unlock()

	interval := c.cfg.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.step(c.tick)

	for {
		select {
		case <-ctx.Done():
			c.Disconnect()
			return nil
		case d := <-c.inbox:
			c.step(func() { c.handlePacket(d) })
		case <-ticker.C:
			c.step(c.tick)
		}

		c.mu.Lock()
		err, rate := c.err, c.frameRate
		c.mu.Unlock()
		if err != nil {
			return err
		}
		if rate > 0 && time.Second/time.Duration(rate) != interval {
			interval = time.Second / time.Duration(rate)
			ticker.Reset(interval)
		}
	}
}

func (c *Client) step(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		fn()
	}
}

func (c *Client) fail(err error) {
	if c.err == nil {
		c.err = err
		c.state = Disconnected
	}
}

// tick sends whatever the current state calls for.
func (c *Client) tick() {
	now := c.now()

	switch c.state {
	case Challenging, Connecting:
		if !c.lastRequest.IsZero() && now.Sub(c.lastRequest) < requestInterval {
			return
		}
		if c.requests >= maxRequests {
			c.fail(ErrNoResponse)
			return
		}
		c.requests++
		c.lastRequest = now
		c.sendRequest()

	case Connected, Active:
		if now.Sub(c.ch.LastReceived) > c.cfg.Timeout {
			c.fail(ErrTimedOut)
			return
		}
		c.sendMove()
	}
}

func (c *Client) sendRequest() {
	var err error
	if c.state == Challenging {
		err = netchan.OutOfBand(c.sock, c.server, "getchallenge")
	} else {
		err = netchan.OutOfBand(c.sock, c.server, "connect %d %d %d %d",
			protocol.Version, c.qport, c.challenge, c.cfg.MaxPacketLen)
	}
	if err != nil {
		util.LogWarning("request to %s: %v", c.server, err)
	}
}

// sendMove sends the newest commands, each a delta from the one before,
// along with the last frame and ambient set received. Before the gamestate
// arrives only a nop goes out, which still acknowledges reliable data.
func (c *Client) sendMove() {
	b := msg.NewTagged(protocol.MaxPacketLen, "move")

	if c.state != Active {
		b.WriteUint8(int(protocol.ClcNop))
	} else {
		c.ticks++
		copy(c.cmds[:], c.cmds[1:])
		c.cmds[cmdBackup-1] = c.input(c.ticks)

		b.WriteUint8(int(protocol.ClcMove))
		b.WriteInt32(c.latest)
		b.WriteUint8(c.ambientID)
		b.WriteUint8(cmdBackup)
		var from *delta.UserCmd
		for i := range c.cmds {
			delta.WriteDeltaUserCmd(b, from, &c.cmds[i])
			from = &c.cmds[i]
		}
	}

	if _, err := c.ch.Transmit(b.Bytes(), 1); err != nil {
		c.fail(fmt.Errorf("client: transmit: %w", err))
	}
}

func (c *Client) handlePacket(d transport.Datagram) {
	if d.Addr.String() != c.server.String() {
		util.LogDebug("%s: packet from unexpected address", d.Addr)
		return
	}

	if netchan.IsOutOfBand(d.Data) {
		c.handleOutOfBand(d.Data)
		return
	}

	if c.ch == nil {
		return
	}
	r, ok := c.ch.Process(d.Data)
	if !ok {
		return
	}
	if err := c.parseServerMessage(r); err != nil {
		c.fail(err)
	}
}

func (c *Client) handleOutOfBand(data []byte) {
	cmd, args := netchan.ParseOutOfBand(data)

	switch cmd {
	case "challenge":
		if c.state != Challenging || len(args) < 1 {
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return
		}
		c.challenge = n
		c.state = Connecting
		c.requests = 0
		c.lastRequest = c.now()
		c.sendRequest()

	case "client_connect":
		if c.state != Connecting {
			return
		}
		c.ch = netchan.New(c.sock, netchan.Client, c.server, c.qport, c.cfg.MaxPacketLen,
			netchan.WithClock(c.now), netchan.WithObserver(c.observer()))
		c.state = Connected
		util.LogSuccess("Connected to %s, qport %d", c.server, c.qport)

	case "print":
		text := strings.TrimSpace(string(data[4+len("print"):]))
		util.LogInfo("%s: %s", c.server, text)
		if c.state == Challenging || c.state == Connecting {
			c.fail(&RefusedError{Reason: text})
		}

	default:
		util.LogDebug("%s: unknown connectionless packet %q", c.server, cmd)
	}
}

func (c *Client) observer() netchan.Observer {
	if c.obs == nil {
		return nopObserver{}
	}
	return c.obs
}

type nopObserver struct{}

func (nopObserver) PacketSent(int)        {}
func (nopObserver) PacketReceived(int)    {}
func (nopObserver) PacketsDropped(int)    {}
func (nopObserver) PacketRejected(string) {}
func (nopObserver) Retransmitted()        {}
func (nopObserver) FragmentSent()         {}
func (nopObserver) Fatal(string)          {}

// Disconnect tells the server the client is leaving. The final message is
// sent three times since nothing will retransmit it.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && (c.state == Connected || c.state == Active) {
		b := msg.NewTagged(msg.MaxNetString+2, "disconnect")
		b.WriteUint8(int(protocol.ClcStringCmd))
		b.WriteString("disconnect")
		if _, err := c.ch.Transmit(b.Bytes(), 3); err != nil {
			util.LogDebug("disconnect: %v", err)
		}
	}
	c.state = Disconnected
}

// Circle is the default input: walk forward while turning, firing now and
// then.
func Circle(tick int) delta.UserCmd {
	cmd := delta.UserCmd{
		Forward: 200,
		Msec:    100,
	}
	cmd.Angles[1] = int16(msg.AngleToShort(float32(tick * 5 % 360)))
	if tick%10 == 0 {
		cmd.Buttons = delta.ButtonAttack
	}
	return cmd
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Slot returns the slot the server assigned, valid once Active.
func (c *Client) Slot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// QPort returns the qport the client identifies itself with.
func (c *Client) QPort() uint16 { return c.qport }

// Frame returns the number of the newest frame received, or -1.
func (c *Client) Frame() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Entities returns the entities of the newest frame.
func (c *Client) Entities() []delta.EntityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest < 0 {
		return nil
	}
	return slices.Clone(c.frames[c.latest%frameHistory].entities)
}

// Player returns the player state of the newest frame.
func (c *Client) Player() delta.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest < 0 {
		return delta.PlayerState{}
	}
	return c.frames[c.latest%frameHistory].player
}

// Ambients returns the ambient set and its id.
func (c *Client) Ambients() (int, []delta.EntityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ambientID, slices.Clone(c.ambients)
}

// Shots returns how many shots the client has seen and the most recent
// batch.
func (c *Client) Shots() (int, []delta.Shot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shotCount, slices.Clone(c.lastShots)
}

// ConfigString returns configstring i of the gamestate.
func (c *Client) ConfigString(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gs == nil || i < 0 || i >= delta.MaxConfigStrings {
		return ""
	}
	return c.gs.ConfigStrings[i]
}

// Stats returns the channel's sequence and drop counters.
func (c *Client) Stats() (outgoing, incoming uint32, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return 0, 0, 0
	}
	return c.ch.OutgoingSequence, c.ch.IncomingSequence, c.ch.TotalDropped
}
