package server

import (
	"errors"
	"fmt"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

// maxCmdsPerMove bounds the commands one clc_move may carry.
const maxCmdsPerMove = 32

var (
	errBadCommand  = errors.New("illegible client message")
	errDisconnect  = errors.New("disconnected")
	errTooManyCmds = errors.New("too many commands in move")
)

// parseClientMessage executes every command in one accepted packet.
// A returned error drops the client.
func (s *Server) parseClientMessage(cl *client, r *msg.Buffer) error {
	for r.Remaining() > 0 {
		op := r.ReadUint8()
		switch uint8(op) {
		case protocol.ClcNop:
		case protocol.ClcMove:
			if err := s.parseMove(cl, r); err != nil {
				return err
			}
		case protocol.ClcStringCmd:
			text, _ := r.ReadString(msg.MaxNetString)
			if err := s.executeStringCmd(cl, text); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: opcode %d", errBadCommand, op)
		}

		if r.Underflowed() {
			return fmt.Errorf("%w: read past end", errBadCommand)
		}
	}
	return nil
}

// parseMove reads the acknowledged frame and ambient id followed by a chain
// of user commands, each a delta from the one before. Only the newest
// command is applied.
func (s *Server) parseMove(cl *client, r *msg.Buffer) error {
	ack := r.ReadInt32()
	ambient := r.ReadUint8()
	count := r.ReadUint8()
	if count < 0 {
		return fmt.Errorf("%w: truncated move", errBadCommand)
	}
	if count > maxCmdsPerMove {
		return fmt.Errorf("%w: %d", errTooManyCmds, count)
	}

	var from *delta.UserCmd
	for range count {
		cmd := delta.ReadDeltaUserCmd(r, from)
		from = &cmd
	}
	if r.Underflowed() {
		return fmt.Errorf("%w: truncated move", errBadCommand)
	}

	cl.moved = true
	cl.ambientAck = ambient
	if ack > 0 {
		cl.acknowledge(ack, s.now())
	}
	if from != nil {
		cl.lastCmd = *from
		s.world.ApplyCmd(cl.slot, *from)
	}
	return nil
}

func (s *Server) executeStringCmd(cl *client, text string) error {
	util.LogDebug("%s: stringcmd %q", cl.name(), text)
	switch text {
	case "disconnect":
		return errDisconnect
	default:
		util.LogPeer(cl.name(), "unknown command %q", text)
	}
	return nil
}
