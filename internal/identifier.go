package internal

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Unique identifier attached to a request and echoed in its
// response. Canonical form is the usual 8-4-4-4-12 hex layout
// of a 128-bit value.
type UID string

var ErrMalformedUID = errors.New("malformed correlation identifier")

// Generator produces the correlation identifiers used by the
// driver. It is a value: advancing it returns the identifier
// together with the next generator, so components holding a
// generator stay deterministic and can be tested in isolation.
type Generator struct {
	hi uint64
	lo uint64
}

// Creates a generator randomly seeded, panic if the random
// source is not available.
func NewGenerator() Generator {
	buf := make([]byte, 16)
	if _, err := crand.Read(buf); err != nil {
		panic(fmt.Errorf("failed seeding generator: %v", err))
	}
	return Generator{
		hi: binary.BigEndian.Uint64(buf[0:8]),
		lo: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// Creates a generator from a known seed, used when replaying
// a sequence of identifiers must be reproducible.
func NewSeededGenerator(hi, lo uint64) Generator {
	return Generator{hi: hi, lo: lo}
}

// Advances the generator, returning the fresh identifier and
// the generator for the next request.
func (g Generator) Next() (UID, Generator) {
	next := Generator{hi: g.hi, lo: g.lo + 1}
	if next.lo == 0 {
		next.hi = g.hi + 1
	}
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], g.hi)
	binary.BigEndian.PutUint64(buf[8:16], g.lo)
	return uidFromBytes(buf), next
}

// Formats a raw 128-bit value in the canonical form.
func uidFromBytes(buf []byte) UID {
	return UID(fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16]))
}

// Recovers the raw 128-bit value from the canonical form.
func uidToBytes(id UID) ([]byte, error) {
	raw := make([]byte, 0, 32)
	for i := 0; i < len(id); i++ {
		if id[i] != '-' {
			raw = append(raw, id[i])
		}
	}
	if len(raw) != 32 {
		return nil, ErrMalformedUID
	}
	buf := make([]byte, 16)
	if _, err := hex.Decode(buf, raw); err != nil {
		return nil, ErrMalformedUID
	}
	return buf, nil
}
