package client

import (
	"errors"
	"fmt"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/protocol"
	"github.com/1ureka/netchan/internal/util"
)

var (
	errBadMessage = errors.New("client: illegible server message")
	errVersion    = errors.New("client: protocol version mismatch")
)

// parseServerMessage reads one delivered payload. Messages that cannot be
// applied yet, such as a frame whose delta base is gone, end parsing of the
// payload without an error.
func (c *Client) parseServerMessage(r *msg.Buffer) error {
	for r.Remaining() > 0 {
		op := r.ReadUint8()
		switch uint8(op) {
		case protocol.SvcNop:

		case protocol.SvcDisconnect:
			util.LogWarning("Server disconnected")
			return ErrDisconnected

		case protocol.SvcPrint:
			text, _ := r.ReadString(msg.MaxNetString)
			util.LogInfo("%s", text)

		case protocol.SvcStuffText:
			text, _ := r.ReadString(msg.MaxNetString)
			util.LogDebug("stufftext %q ignored", text)

		case protocol.SvcServerData:
			if err := c.parseServerData(r); err != nil {
				return err
			}

		case protocol.SvcConfigString:
			i := r.ReadUint16()
			text, _ := r.ReadString(delta.MaxConfigStringLen)
			if c.gs != nil && i >= 0 && i < delta.MaxConfigStrings {
				c.gs.ConfigStrings[i] = text
			}

		case protocol.SvcFrame:
			ok, err := c.parseFrame(r)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

		case protocol.SvcAmbient:
			if err := c.parseAmbient(r); err != nil {
				return err
			}

		case protocol.SvcShots:
			shots, err := delta.ParseShots(r)
			if err != nil {
				return fmt.Errorf("client: shots: %w", err)
			}
			if len(shots) > 0 {
				c.shotCount += len(shots)
				c.lastShots = shots
			}

		default:
			return fmt.Errorf("%w: opcode %d", errBadMessage, op)
		}

		if r.Underflowed() {
			return fmt.Errorf("%w: read past end", errBadMessage)
		}
	}
	return nil
}

func (c *Client) parseServerData(r *msg.Buffer) error {
	version := r.ReadInt32()
	if version != protocol.Version {
		return fmt.Errorf("%w: server %d, client %d", errVersion, version, protocol.Version)
	}
	slot := r.ReadUint8()
	rate := r.ReadUint8()

	gs, err := delta.ParseGamestate(r)
	if err != nil {
		return fmt.Errorf("client: gamestate: %w", err)
	}

	c.slot = slot
	c.frameRate = rate
	c.gs = gs
	c.ambientID = gs.AmbientStateID
	c.ambients = gs.Ambients
	c.frames = [frameHistory]frame{}
	c.latest = -1
	c.shotCount = 0
	c.lastShots = nil
	c.state = Active

	util.LogSuccess("Entered %q on %s as slot %d", gs.ConfigStrings[0], gs.ConfigStrings[1], slot)
	return nil
}

// parseFrame reads a frame. It returns false when the frame cannot be
// decoded, in which case the rest of the payload is unreadable too.
func (c *Client) parseFrame(r *msg.Buffer) (bool, error) {
	num := r.ReadInt32()
	deltaNum := r.ReadInt32()

	// frame numbers index the history ring; -1 means no delta base
	if num < 0 || deltaNum < -1 || deltaNum >= num {
		return false, fmt.Errorf("%w: frame %d from %d", errBadMessage, num, deltaNum)
	}

	if c.gs == nil {
		util.LogDebug("frame %d before gamestate", num)
		return false, nil
	}

	var from *frame
	if deltaNum >= 0 {
		f := &c.frames[deltaNum%frameHistory]
		if f.num != deltaNum {
			util.LogDebug("frame %d: delta base %d is gone", num, deltaNum)
			return false, nil
		}
		from = f
	}

	var (
		fromPlayer   *delta.PlayerState
		fromEntities []delta.EntityState
	)
	if from != nil {
		fromPlayer = &from.player
		fromEntities = from.entities
	}

	ps, _, err := delta.ParseDeltaPlayer(r, fromPlayer)
	if err != nil {
		return false, fmt.Errorf("client: frame %d: %w", num, err)
	}
	ents, err := delta.ParsePacketEntities(r, fromEntities, c.gs.Baselines, 0)
	if err != nil {
		return false, fmt.Errorf("client: frame %d: %w", num, err)
	}

	c.frames[num%frameHistory] = frame{num: num, player: ps, entities: ents}
	if num > c.latest {
		c.latest = num
	}
	return true, nil
}

// parseAmbient adopts a full set, or a partial one made against the set
// held now.
func (c *Client) parseAmbient(r *msg.Buffer) error {
	cur := c.ambients
	up, err := delta.ParseAmbients(r, cur)
	if err != nil {
		return fmt.Errorf("client: ambients: %w", err)
	}
	if c.gs == nil || up.ID == c.ambientID {
		return nil
	}
	if !up.Full && up.ID != (c.ambientID+1)&0xFF {
		util.LogDebug("ambient %d cannot apply to %d", up.ID, c.ambientID)
		return nil
	}
	c.ambientID = up.ID
	c.ambients = up.Ambients
	return nil
}
