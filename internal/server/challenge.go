package server

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/1ureka/netchan/internal/util"
)

// challengeWindow is how long an issued challenge stays valid, give or take
// one window.
const challengeWindow = 30 * time.Second

// challenger issues connect challenges without keeping per-address state.
// A challenge is a keyed hash of the peer's host and the current time
// window, so any host can be answered and verified statelessly.
type challenger struct {
	key []byte
}

func newChallenger() *challenger {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("server: read challenge key: " + err.Error())
	}
	return &challenger{key: key}
}

func (c *challenger) compute(host string, window int64) int {
	h, err := blake2b.New256(c.key)
	if err != nil {
		panic("server: challenge hash: " + err.Error())
	}
	h.Write([]byte(host))
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], uint64(window))
	h.Write(w[:])
	return int(binary.LittleEndian.Uint32(h.Sum(nil)) & 0x7FFFFFFF)
}

func window(now time.Time) int64 {
	return now.UnixNano() / int64(challengeWindow)
}

// issue returns the challenge for addr at now.
func (c *challenger) issue(addr net.Addr, now time.Time) int {
	return c.compute(util.HostOf(addr), window(now))
}

// verify accepts challenges issued in the current or the previous window.
func (c *challenger) verify(addr net.Addr, now time.Time, arg string) bool {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return false
	}
	host := util.HostOf(addr)
	w := window(now)
	return v == c.compute(host, w) || v == c.compute(host, w-1)
}
