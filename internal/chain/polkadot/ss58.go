package polkadot

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	PrefixPolkadot  uint16 = 0
	PrefixSubstrate uint16 = 42
)

var (
	ss58Pre = []byte("SS58PRE")

	ErrBadAddress  = errors.New("invalid ss58 address")
	ErrBadChecksum = errors.New("ss58 checksum mismatch")
)

// Encode renders a 32-byte public key as an SS58 address under prefix.
func Encode(pub []byte, prefix uint16) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrBadAddress, len(pub))
	}
	payload := append(prefixBytes(prefix), pub...)
	sum := checksum(payload)
	return base58.Encode(append(payload, sum[:2]...)), nil
}

// Decode returns the public key and network prefix of an SS58 address.
func Decode(addr string) ([]byte, uint16, error) {
	raw, err := base58.Decode(strings.TrimSpace(addr))
	if err != nil || len(raw) < 35 {
		return nil, 0, ErrBadAddress
	}

	var (
		prefix    uint16
		prefixLen int
	)
	switch {
	case raw[0] < 64:
		prefix, prefixLen = uint16(raw[0]), 1
	case raw[0] < 128:
		// two-byte form, see the ss58 registry
		lower := (raw[0]<<2 | raw[1]>>6) & 0xff
		upper := raw[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return nil, 0, ErrBadAddress
	}
	if len(raw) != prefixLen+32+2 {
		return nil, 0, ErrBadAddress
	}

	payload, sum := raw[:prefixLen+32], raw[prefixLen+32:]
	want := checksum(payload)
	if !bytes.Equal(sum, want[:2]) {
		return nil, 0, ErrBadChecksum
	}
	pub := make([]byte, 32)
	copy(pub, payload[prefixLen:])
	return pub, prefix, nil
}

// PublicKey accepts an SS58 address or a 0x-prefixed 32-byte hex key.
func PublicKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		if err != nil || len(b) != 32 {
			return nil, ErrBadAddress
		}
		return b, nil
	}
	pub, _, err := Decode(s)
	return pub, err
}

func prefixBytes(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0xfc)>>2) | 0x40
	second := byte(prefix>>8) | byte(prefix&0x03)<<6
	return []byte{first, second}
}

func checksum(payload []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Pre...), payload...))
}
