package signaling

type msgType string

const (
	msgHello     msgType = "hello"
	msgOffer     msgType = "offer"
	msgAnswer    msgType = "answer"
	msgCandidate msgType = "candidate"
)

// message is one JSON frame on the signaling WebSocket. The server opens
// with hello, then offer; candidates flow both ways until the DataChannel
// opens.
type message struct {
	Type      msgType `json:"type"`
	Version   int     `json:"version,omitempty"`   // hello: netchan protocol version
	Peer      string  `json:"peer,omitempty"`      // hello: address the server gave this peer
	SDP       string  `json:"sdp,omitempty"`
	Candidate string  `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}
