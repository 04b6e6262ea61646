package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies a protocol participant: an operator account or a
// collaborating contract (token module, trade engine, bridge, oracle
// governance). 20 bytes, hex-encoded with a 0x prefix on the wire.
type Address [20]byte

// Hash is an opaque 256-bit value. Market identifiers and side-chain
// merkle roots are both carried as hashes.
type Hash [32]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed 40-char hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(raw) != 2*len(a) {
		return a, fmt.Errorf("address %q: want %d hex chars, got %d", s, 2*len(a), len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is ParseAddress that panics on error. For tests and
// trusted constants only.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string { return a.Hex() }

// ParseHash decodes a 0x-prefixed 64-char hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(raw) != 2*len(h) {
		return h, fmt.Errorf("hash %q: want %d hex chars, got %d", s, 2*len(h), len(raw))
	}
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return h, fmt.Errorf("hash %q: %w", s, err)
	}
	return h, nil
}

// MustParseHash is ParseHash that panics on error.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string { return h.Hex() }
