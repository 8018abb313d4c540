// Package world is a small deterministic simulation that gives the server
// something to replicate: entities orbiting fixed points, ambient lights
// that toggle, and one body per connected player driven by user commands.
package world

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
)

// Configstring slots.
const (
	CSName   = 0
	CSMap    = 1
	CSModels = 32 // first model slot
)

const (
	firstMover    = 64 // packet entity numbers below this belong to players
	numMovers     = 24
	numAmbients   = 12
	toggleEvery   = 50 // frames between ambient changes
	playerSpeed   = 320
	maxCmdMsec    = 250
	gravity       = 800
	playerViewZ   = 22
	playerModel   = 1
	moverModel    = 2
	ambientModel  = 3
	triggerNumber = delta.PrivateEntityMin
)

type mover struct {
	number int
	center msg.Vec3
	radius float64
	speed  float64 // radians per second
	phase  float64
	state  delta.EntityState
}

type player struct {
	slot  int
	state delta.PlayerState
	cmd   delta.UserCmd
}

// World is not safe for concurrent use; the server's tick loop owns it.
type World struct {
	frame   int
	elapsed time.Duration

	gs       *delta.Gamestate
	movers   []mover
	ambients []delta.EntityState
	players  map[int]*player
	trigger  delta.EntityState
	shots    []delta.Shot // fired during the last step
}

// New builds a world whose layout is fully determined by seed.
func New(seed uint64) *World {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))

	w := &World{
		gs:      delta.NewGamestate(),
		players: make(map[int]*player),
	}
	w.gs.ConfigStrings[CSName] = "netchan demo"
	w.gs.ConfigStrings[CSMap] = "maps/orbit.bsp"
	w.gs.ConfigStrings[CSModels+playerModel] = "players/male/tris.md2"
	w.gs.ConfigStrings[CSModels+moverModel] = "models/objects/orb/tris.md2"
	w.gs.ConfigStrings[CSModels+ambientModel] = "models/objects/light/tris.md2"

	for i := range numMovers {
		m := mover{
			number: firstMover + i,
			center: msg.Vec3{float32(rng.IntN(2048) - 1024), float32(rng.IntN(2048) - 1024), float32(rng.IntN(256))},
			radius: float64(64 + rng.IntN(192)),
			speed:  0.5 + rng.Float64()*2,
			phase:  rng.Float64() * 2 * math.Pi,
		}
		m.state = delta.EntityState{
			Number:     m.number,
			ModelIndex: moverModel,
			Solid:      delta.PackBBox(msg.Vec3{-8, -8, -8}, msg.Vec3{8, 8, 8}),
			Skin:       uint32(i % 4),
		}
		m.place(0)
		w.movers = append(w.movers, m)
		w.gs.Baselines[m.number] = m.state
	}

	for i := range numAmbients {
		w.ambients = append(w.ambients, delta.EntityState{
			Number:     delta.AmbientEntityMin + i*4,
			ModelIndex: ambientModel,
			Origin:     msg.Vec3{float32(i*128 - 768), 1024, 96},
			Angles:     msg.Vec3{0, float32(i * 30 % 360), 0},
			Effects:    1,
		})
	}
	w.gs.AmbientStateID = 1
	w.gs.Ambients = slices.Clone(w.ambients)

	w.trigger = delta.EntityState{Number: triggerNumber, Solid: delta.PackedBSP}

	return w
}

// place puts m on its orbit at elapsed seconds t.
func (m *mover) place(t float64) {
	a := m.phase + m.speed*t
	m.state.Origin = msg.Vec3{
		m.center[0] + float32(m.radius*math.Cos(a)),
		m.center[1] + float32(m.radius*math.Sin(a)),
		m.center[2],
	}
	m.state.Angles[1] = float32(math.Mod(a*180/math.Pi+90, 360))
}

// Frame is the number of completed steps.
func (w *World) Frame() int { return w.frame }

// Gamestate is what a joining client must receive before its first frame.
// The returned value must not be modified.
func (w *World) Gamestate() *delta.Gamestate {
	w.gs.Ambients = slices.Clone(w.ambients)
	return w.gs
}

// Step advances the simulation by dt.
func (w *World) Step(dt time.Duration) {
	w.frame++
	w.elapsed += dt
	t := w.elapsed.Seconds()

	for i := range w.movers {
		m := &w.movers[i]
		m.place(t)
		m.state.Frame = w.frame % 8
		m.state.OldOrigin = m.state.Origin
		m.state.Event = 0
	}

	if w.frame%toggleEvery == 0 {
		w.toggleAmbient((w.frame / toggleEvery) % len(w.ambients))
	}

	w.shots = w.shots[:0]
	for _, p := range w.players {
		if p.move() {
			w.shots = append(w.shots, p.shot())
		}
	}
	slices.SortFunc(w.shots, func(a, b delta.Shot) int { return a.Entity - b.Entity })
}

// Shots returns the shots fired during the last step, ordered by entity.
func (w *World) Shots() []delta.Shot { return slices.Clone(w.shots) }

func (w *World) toggleAmbient(i int) {
	w.ambients[i].Effects ^= 1
	w.ambients[i].Frame = (w.ambients[i].Frame + 1) % 2
	w.gs.AmbientStateID = (w.gs.AmbientStateID + 1) & 0xFF
}

// AmbientID identifies the current ambient set. It changes, modulo 256,
// whenever any ambient does.
func (w *World) AmbientID() int { return w.gs.AmbientStateID }

// Ambients returns a copy of the current ambient set, sorted by number.
func (w *World) Ambients() []delta.EntityState { return slices.Clone(w.ambients) }

// Entities returns every entity, sorted by number. It includes entities
// outside the packet pool, which the frame writer leaves out.
func (w *World) Entities() []delta.EntityState {
	list := make([]delta.EntityState, 0, len(w.players)+len(w.movers)+1)
	for _, p := range w.players {
		list = append(list, p.body())
	}
	for i := range w.movers {
		list = append(list, w.movers[i].state)
	}
	list = append(list, w.trigger)
	slices.SortFunc(list, func(a, b delta.EntityState) int { return a.Number - b.Number })
	return list
}

// ---------------------------------------------------------------------------
// Players
// ---------------------------------------------------------------------------

// PlayerEntity is the entity number of the body of the player in slot.
func PlayerEntity(slot int) int { return slot + 1 }

// MaxPlayers bounds the slots that have a body in the packet pool.
const MaxPlayers = firstMover - 1

// AddPlayer spawns a body for slot.
func (w *World) AddPlayer(slot int) {
	p := &player{slot: slot}
	p.state.PMove.Origin = msg.Vec3{float32(slot * 64), 0, 24}
	p.state.PMove.Gravity = gravity
	p.state.ViewOffset = msg.Vec3{0, 0, playerViewZ}
	p.state.FOV = 90
	p.state.Gun[0].Index = 1
	p.state.Stats[0] = 100
	w.players[slot] = p
}

// RemovePlayer removes the body of slot.
func (w *World) RemovePlayer(slot int) { delete(w.players, slot) }

// HasPlayer reports whether slot has a body.
func (w *World) HasPlayer(slot int) bool {
	_, ok := w.players[slot]
	return ok
}

// ApplyCmd stores the latest command of slot; it takes effect on the next
// step.
func (w *World) ApplyCmd(slot int, cmd delta.UserCmd) {
	if p, ok := w.players[slot]; ok {
		p.cmd = cmd
	}
}

// PlayerState returns the state of the player in slot.
func (w *World) PlayerState(slot int) (delta.PlayerState, bool) {
	p, ok := w.players[slot]
	if !ok {
		return delta.PlayerState{}, false
	}
	return p.state, true
}

// move applies the stored command and reports whether the player fired.
func (p *player) move() bool {
	cmd := &p.cmd
	ps := &p.state

	for i := range ps.ViewAngles {
		ps.ViewAngles[i] = msg.ShortToAngle(int(cmd.Angles[i]))
	}

	yaw := float64(ps.ViewAngles[1]) * math.Pi / 180
	fwd := float64(cmd.Forward) / 512
	side := float64(cmd.Side) / 512
	vx := (fwd*math.Cos(yaw) + side*math.Sin(yaw)) * playerSpeed
	vy := (fwd*math.Sin(yaw) - side*math.Cos(yaw)) * playerSpeed

	dt := float64(min(int(cmd.Msec), maxCmdMsec)) / 1000
	ps.PMove.Velocity = msg.Vec3{float32(vx), float32(vy), 0}
	ps.PMove.Origin[0] += float32(vx * dt)
	ps.PMove.Origin[1] += float32(vy * dt)
	ps.PMove.Time = int(cmd.Msec)

	if cmd.Buttons&delta.ButtonAttack == 0 {
		return false
	}
	ps.Gun[0].Frame = (ps.Gun[0].Frame + 1) % 16
	ps.Stats[1]++
	return true
}

// shot fires from eye height along the view angles.
func (p *player) shot() delta.Shot {
	ps := &p.state
	pitch := float64(ps.ViewAngles[0]) * math.Pi / 180
	yaw := float64(ps.ViewAngles[1]) * math.Pi / 180

	origin := ps.PMove.Origin
	origin[2] += playerViewZ
	return delta.Shot{
		Entity: PlayerEntity(p.slot),
		Origin: origin,
		Dir: msg.Vec3{
			float32(math.Cos(pitch) * math.Cos(yaw)),
			float32(math.Cos(pitch) * math.Sin(yaw)),
			float32(-math.Sin(pitch)),
		},
	}
}

func (p *player) body() delta.EntityState {
	return delta.EntityState{
		Number:     PlayerEntity(p.slot),
		ModelIndex: playerModel,
		Origin:     p.state.PMove.Origin,
		Angles:     msg.Vec3{0, p.state.ViewAngles[1], 0},
		Frame:      p.state.Gun[0].Frame,
		Solid:      delta.PackBBox(msg.Vec3{-16, -16, -24}, msg.Vec3{16, 16, 32}),
	}
}
