package hdwallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

var errNotHardened = errors.New("ed25519 derivation supports hardened indexes only")

// DeriveEd25519 implements SLIP-10 for ed25519 over the wallet seed. Every index in path must
// be hardened, which is the only mode the curve allows.
func (w *HDWallet) DeriveEd25519(path []uint32) (ed25519.PrivateKey, error) {
	return deriveEd25519(w.seed, path)
}

func deriveEd25519(seed []byte, path []uint32) (ed25519.PrivateKey, error) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]

	for _, idx := range path {
		if idx < Hardened(0) {
			return nil, errNotHardened
		}
		data := make([]byte, 1+32+4)
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], idx)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data)
		sum = mac.Sum(nil)
		key, chainCode = sum[:32], sum[32:]
	}
	return ed25519.NewKeyFromSeed(key), nil
}
