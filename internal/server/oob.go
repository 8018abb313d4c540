package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/netchan"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
)

// Connectionless commands the server answers.
const (
	cmdGetChallenge = "getchallenge"
	cmdConnect      = "connect"
	cmdStatus       = "status"
	cmdPing         = "ping"
)

func (s *Server) handleOutOfBand(d transport.Datagram) {
	cmd, args := netchan.ParseOutOfBand(d.Data)
	util.LogDebug("%s: out-of-band %q %q", d.Addr, cmd, args)

	switch cmd {
	case cmdGetChallenge:
		s.obs.OutOfBand(cmd)
		s.reply(d, "challenge %d", s.challenges.issue(d.Addr, s.now()))
	case cmdConnect:
		s.obs.OutOfBand(cmd)
		s.directConnect(d, args)
	case cmdStatus:
		s.obs.OutOfBand(cmd)
		s.reply(d, "print\n%s", s.statusText())
	case cmdPing:
		s.obs.OutOfBand(cmd)
		s.reply(d, "ack")
	default:
		s.obs.OutOfBand("unknown")
		util.LogDebug("%s: bad connectionless packet %q", d.Addr, cmd)
	}
}

func (s *Server) reply(d transport.Datagram, format string, args ...any) {
	if err := netchan.OutOfBand(s.sock, d.Addr, format, args...); err != nil {
		util.LogDebug("%s: reply: %v", d.Addr, err)
	}
}

func (s *Server) refuse(d transport.Datagram, outcome, text string) {
	s.obs.ClientRefused(outcome)
	util.LogPeer(d.Addr.String(), "connect refused: %s", outcome)
	s.reply(d, "print\n%s\n", text)
}

// directConnect handles "connect <version> <qport> <challenge> [packetlen]".
func (s *Server) directConnect(d transport.Datagram, args []string) {
	if len(args) < 3 {
		s.refuse(d, "malformed", "Malformed connect request.")
		return
	}

	version, err := strconv.Atoi(args[0])
	if err != nil || version != protocol.Version {
		s.refuse(d, "version", fmt.Sprintf("Server uses protocol version %d.", protocol.Version))
		return
	}

	qport, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		s.refuse(d, "malformed", "Malformed connect request.")
		return
	}

	now := s.now()
	if !s.challenges.verify(d.Addr, now, args[2]) {
		s.refuse(d, "challenge", "Bad challenge.")
		return
	}

	packetLen := s.cfg.MaxPacketLen
	if len(args) > 3 {
		if n, err := strconv.Atoi(args[3]); err == nil && n > 0 {
			packetLen = min(n, packetLen)
		}
	}

	if s.bans != nil {
		banned, reason, err := s.bans.IsBanned(util.HostOf(d.Addr), now)
		if err != nil {
			util.LogWarning("ban lookup for %s: %v", d.Addr, err)
		}
		if banned {
			s.refuse(d, "banned", "You are banned: "+reason)
			return
		}
	}

	key := util.PeerKey(d.Addr, uint16(qport))

	s.mu.Lock()
	cl := s.clients[key]
	s.mu.Unlock()

	// a client reconnecting from the same host and qport reuses its slot
	if cl != nil {
		data, err := s.serverData(cl.slot)
		if err != nil {
			s.dropClient(cl, err.Error())
			s.refuse(d, "gamestate", "Server cannot send its gamestate.")
			return
		}

		util.LogPeer(cl.name(), "reconnect")
		cl.ch.RemoteAddr = d.Addr
		cl.ch.Reset()
		s.resetClient(cl, now)
		s.reply(d, "client_connect")
		cl.ch.Message.WriteData(data)
		return
	}

	slot := -1
	for i, c := range s.slots {
		if c == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		s.refuse(d, "full", "Server is full.")
		return
	}

	data, err := s.serverData(slot)
	if err != nil {
		util.LogWarning("%v", err)
		s.refuse(d, "gamestate", "Server cannot send its gamestate.")
		return
	}

	cl = &client{
		slot: slot,
		key:  key,
		ch: netchan.New(s.sock, netchan.Server, d.Addr, uint16(qport), packetLen,
			netchan.WithClock(s.now), netchan.WithObserver(s.obs)),
	}
	s.resetClient(cl, now)

	s.mu.Lock()
	s.clients[key] = cl
	s.slots[slot] = cl
	s.mu.Unlock()

	s.world.AddPlayer(slot)
	s.obs.ClientConnected()
	util.Stats.AddConn()
	util.LogPeer(cl.name(), "connected over %s, qport %d", transportName(d.Addr), qport)

	s.reply(d, "client_connect")
	cl.ch.Message.WriteData(data)
}

func (s *Server) resetClient(cl *client, now time.Time) {
	cl.frames = [frameHistory]clientFrame{}
	cl.ackFrame = -1
	cl.ambientAck = -1
	cl.ambientSentFrame = 0
	cl.moved = false
	cl.lastCmd = delta.UserCmd{}
	cl.ping = 0
	cl.connectedAt = now
}

// serverData builds the reliable message that starts a session for slot. It
// is built aside so a gamestate that fails to encode never reaches a
// channel half written.
func (s *Server) serverData(slot int) ([]byte, error) {
	b := msg.NewTagged(protocol.MaxReliableLen, "serverdata")
	b.WriteUint8(int(protocol.SvcServerData))
	b.WriteInt32(protocol.Version)
	b.WriteUint8(slot)
	b.WriteUint8(s.cfg.FrameRate)
	if err := delta.WriteGamestate(b, s.world.Gamestate()); err != nil {
		return nil, fmt.Errorf("gamestate: %w", err)
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("gamestate: %w", err)
	}
	return b.Bytes(), nil
}

func (s *Server) statusText() string {
	var sb strings.Builder
	st := s.Status()
	fmt.Fprintf(&sb, "%s %s %d/%d\n", st.Name, st.Map, len(st.Clients), st.MaxClients)
	for _, c := range st.Clients {
		fmt.Fprintf(&sb, "%d %d %s\n", c.Slot, c.PingMs, c.Addr)
	}
	return sb.String()
}
