// Package server runs the authoritative side: it owns the world, accepts
// connections through out-of-band commands, and sends every client a delta
// compressed frame on each tick over its own netchan.Channel.
package server

import (
	"context"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/netchan"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/status"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
	"github.com/1ureka/netchan/internal/world"
)

// Observer receives channel and server events. *metrics.Metrics implements
// it.
type Observer interface {
	netchan.Observer
	ClientConnected()
	ClientRefused(reason string)
	ClientDropped()
	FrameSent(bytes int)
	OutOfBand(command string)
	AmbientResync()
}

type nopObserver struct{}

func (nopObserver) PacketSent(int)        {}
func (nopObserver) PacketReceived(int)    {}
func (nopObserver) PacketsDropped(int)    {}
func (nopObserver) PacketRejected(string) {}
func (nopObserver) Retransmitted()        {}
func (nopObserver) FragmentSent()         {}
func (nopObserver) Fatal(string)          {}
func (nopObserver) ClientConnected()      {}
func (nopObserver) ClientRefused(string)  {}
func (nopObserver) ClientDropped()        {}
func (nopObserver) FrameSent(int)         {}
func (nopObserver) OutOfBand(string)      {}
func (nopObserver) AmbientResync()        {}

// BanChecker decides whether a host may connect. *storage.BanList
// implements it.
type BanChecker interface {
	IsBanned(addr string, now time.Time) (bool, string, error)
}

// Option configures a Server.
type Option func(*Server)

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.obs = o }
}

// WithBans enables the connect-time ban check.
func WithBans(b BanChecker) Option {
	return func(s *Server) { s.bans = b }
}

// WithClock replaces time.Now for the server and its channels.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithWorld replaces the default world.
func WithWorld(w *world.World) Option {
	return func(s *Server) { s.world = w }
}

// ambientResendFrames is how often an unacknowledged ambient set is sent
// again.
const ambientResendFrames = 5

// Server is the connection manager. Run owns all state; Status may be
// called from other goroutines.
type Server struct {
	cfg   *config.Config
	sock  netchan.Socket
	inbox transport.Inbox
	world *world.World
	obs   Observer
	bans  BanChecker
	now   func() time.Time

	challenges *challenger
	started    time.Time

	// ambient sets for the current id and the one before it
	ambientID    int
	ambients     []delta.EntityState
	prevAmbients []delta.EntityState
	baselines    delta.Baselines

	shots []delta.Shot // fired during the current frame

	mu      sync.Mutex
	clients map[uint32]*client
	slots   []*client
	report  status.Report // refreshed every tick for Status

	frameMsg *msg.Buffer
}

// New creates a server that sends through sock and reads from inbox.
func New(cfg *config.Config, sock netchan.Socket, inbox transport.Inbox, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		sock:       sock,
		inbox:      inbox,
		obs:        nopObserver{},
		now:        time.Now,
		challenges: newChallenger(),
		clients:    make(map[uint32]*client),
		slots:      make([]*client, min(cfg.MaxClients, world.MaxPlayers)),
		frameMsg:   msg.NewTagged(protocol.MaxMsgLen-1, "frame"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.world == nil {
		s.world = world.New(1)
	}
	s.started = s.now()
	s.ambientID = s.world.AmbientID()
	s.ambients = s.world.Ambients()

	gs := s.world.Gamestate()
	s.baselines = gs.Baselines
	s.report = status.Report{
		Name:       gs.ConfigStrings[world.CSName],
		Map:        gs.ConfigStrings[world.CSMap],
		Protocol:   protocol.Version,
		FrameRate:  cfg.FrameRate,
		AmbientID:  s.ambientID,
		MaxClients: len(s.slots),
		Clients:    []status.Client{},
	}
	return s
}

// Run processes datagrams and ticks frames until ctx is done. On return
// every client has been sent a disconnect.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FrameInterval())
	defer ticker.Stop()

	util.LogSuccess("Server running at %d Hz, %d slots", s.cfg.FrameRate, len(s.slots))

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case d := <-s.inbox:
			s.handlePacket(d)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) handlePacket(d transport.Datagram) {
	if netchan.IsOutOfBand(d.Data) {
		s.handleOutOfBand(d)
		return
	}

	hdr, _, err := protocol.DecodeHeader(d.Data, true)
	if err != nil {
		util.LogDebug("%s: %v", d.Addr, err)
		return
	}

	s.mu.Lock()
	cl := s.clients[util.PeerKey(d.Addr, hdr.QPort)]
	s.mu.Unlock()
	if cl == nil {
		util.LogDebug("%s: sequenced packet from unknown peer", d.Addr)
		return
	}

	if cl.ch.RemoteAddr.String() != d.Addr.String() {
		util.LogPeer(cl.name(), "port rebinding %s -> %s", cl.ch.RemoteAddr, d.Addr)
		cl.ch.RemoteAddr = d.Addr
	}

	r, ok := cl.ch.Process(d.Data)
	if !ok {
		return
	}
	if err := s.parseClientMessage(cl, r); err != nil {
		s.dropClient(cl, err.Error())
	}
}

// tick advances the world one frame and sends it to everyone.
func (s *Server) tick() {
	now := s.now()
	s.world.Step(s.cfg.FrameInterval())

	if id := s.world.AmbientID(); id != s.ambientID {
		s.prevAmbients = s.ambients
		s.ambients = s.world.Ambients()
		s.ambientID = id
	}

	s.shots = s.world.Shots()
	entities := s.world.Entities()
	visible := packetEntities(entities)
	for _, cl := range s.slots {
		if cl == nil {
			continue
		}

		if err := cl.ch.Fatal(); err != nil {
			s.dropClient(cl, err.Error())
			continue
		}
		if now.Sub(cl.ch.LastReceived) > s.cfg.Timeout {
			s.dropClient(cl, "timed out")
			continue
		}

		if err := s.sendFrame(cl, entities, visible, now); err != nil {
			s.dropClient(cl, err.Error())
		}
	}

	s.refreshReport(now)
}

func (s *Server) shutdown() {
	for _, cl := range s.slots {
		if cl == nil {
			continue
		}
		s.disconnect(cl)
		s.removeClient(cl)
	}
	util.LogInfo("Server stopped")
}

// dropClient tells the client it is gone and frees its slot.
func (s *Server) dropClient(cl *client, reason string) {
	util.LogPeer(cl.name(), "dropped: %s", reason)
	s.disconnect(cl)
	s.removeClient(cl)
}

// disconnect sends the final unreliable message three times.
func (s *Server) disconnect(cl *client) {
	if cl.ch.Fatal() != nil {
		return
	}
	if _, err := cl.ch.Transmit([]byte{protocol.SvcDisconnect}, 3); err != nil {
		util.LogDebug("%s: disconnect: %v", cl.name(), err)
	}
}

func (s *Server) removeClient(cl *client) {
	s.mu.Lock()
	delete(s.clients, cl.key)
	s.slots[cl.slot] = nil
	s.mu.Unlock()

	s.world.RemovePlayer(cl.slot)
	s.obs.ClientDropped()
	util.Stats.RemoveConn()
}

func (s *Server) refreshReport(now time.Time) {
	clients := make([]status.Client, 0, len(s.slots))
	for _, cl := range s.slots {
		if cl != nil {
			clients = append(clients, cl.info(now))
		}
	}

	s.mu.Lock()
	s.report.Frame = s.world.Frame()
	s.report.AmbientID = s.ambientID
	s.report.Clients = clients
	s.mu.Unlock()
}

// Status reports the server state as of the last tick.
func (s *Server) Status() status.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.report
	r.Clients = slices.Clone(s.report.Clients)
	r.Uptime = s.now().Sub(s.started).Truncate(time.Second).String()
	return r
}

func transportName(addr net.Addr) string {
	if _, ok := addr.(transport.PeerAddr); ok {
		return "webrtc"
	}
	return addr.Network()
}
