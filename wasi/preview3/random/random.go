package random

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// MaxBytes caps a single byte request.
const MaxBytes = 1 << 20

// Host serves all three random interfaces. The zero value is ready to use.
type Host struct{}

func NewHost() *Host {
	return &Host{}
}

// GetRandomBytes returns up to n cryptographically secure bytes.
func (h *Host) GetRandomBytes(n uint64) []byte {
	buf := make([]byte, min(n, MaxBytes))
	// crypto/rand.Read does not fail on supported platforms.
	_, _ = rand.Read(buf)
	return buf
}

func (h *Host) GetRandomU64() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// GetInsecureRandomBytes returns up to n bytes from a fast generator.
func (h *Host) GetInsecureRandomBytes(n uint64) []byte {
	buf := make([]byte, min(n, MaxBytes))
	for i := 0; i < len(buf); i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], mrand.Uint64())
		copy(buf[i:], word[:])
	}
	return buf
}

func (h *Host) GetInsecureRandomU64() uint64 {
	return mrand.Uint64()
}

// InsecureSeed returns a 128-bit seed for hash tables. It is fixed for the
// life of the Host's process and not suitable for secrets.
func (h *Host) InsecureSeed() (uint64, uint64) {
	return seed[0], seed[1]
}

var seed = [2]uint64{mrand.Uint64(), mrand.Uint64()}
