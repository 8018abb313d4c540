package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// PeerAddr names a WebRTC peer. It is what the peer's datagrams carry as
// their source address.
type PeerAddr string

func (a PeerAddr) Network() string { return "webrtc" }
func (a PeerAddr) String() string  { return string(a) }

// Peer wraps a single PeerConnection + DataChannel pair and presents it as
// a datagram socket to one remote address.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Peer struct {
	addr PeerAddr
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer backed by a new PeerConnection and a pre-negotiated
// DataChannel. Inbound datagrams go to inbox tagged with addr. The caller
// performs signaling through the exposed methods, then waits on Ready.
func NewPeer(ctx context.Context, addr PeerAddr, inbox Inbox) (*Peer, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		addr:       addr,
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        pCtx,
		cancel:     pCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(p.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("%s: datachannel closed", addr)
		pCancel()
	})

	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		if len(m.Data) > protocol.MaxPacketLen {
			util.LogDebug("%s: oversize datagram", addr)
			return
		}
		inbox.push(Datagram{Addr: addr, Data: append([]byte(nil), m.Data...)})
	})

	// informational only
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("%s: peer connection %s", addr, state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()
	})

	p.sender = newSender(pCtx, dc, p.openSignal)

	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Addr is the address the peer's datagrams carry.
func (p *Peer) Addr() PeerAddr { return p.addr }

// Ready is closed once the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} {
	return p.openSignal
}

// Done is closed when the DataChannel closes or the parent context ends.
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.cancel()
	return errors.Join(p.dc.Close(), p.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send queues one datagram. addr must be the peer's own address.
func (p *Peer) Send(addr net.Addr, data []byte) error {
	if addr.String() != string(p.addr) {
		return ErrUnknownPeer
	}
	select {
	case <-p.ctx.Done():
		return ErrClosed
	default:
	}
	if !p.sender.send(data) {
		util.LogDebug("%s: send queue full, dropping %d bytes", p.addr, len(data))
	}
	return nil
}
