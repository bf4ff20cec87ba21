// Package hdwallet derives per-user keys from one custodial mnemonic.
package hdwallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// BIP44 coin types.
const (
	CoinBTC        uint32 = 0
	CoinBTCTestnet uint32 = 1
	CoinETH        uint32 = 60
	CoinDOT        uint32 = 354
	CoinXLM        uint32 = 148
	CoinSOL        uint32 = 501
	CoinSTRK       uint32 = 9004
)

var ErrEmptyMnemonic = errors.New("mnemonic cannot be empty")

type HDWallet struct {
	seed      []byte
	masterKey *hdkeychain.ExtendedKey
}

func New(mnemonic, passphrase string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, ErrEmptyMnemonic
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid bip39 mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	// params only matter for xprv serialization, which is never exported
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	return &HDWallet{seed: seed, masterKey: master}, nil
}

func Hardened(i uint32) uint32 { return i + hdkeychain.HardenedKeyStart }

// BIP44Path is m / purpose' / coin' / account' / change / index.
func BIP44Path(purpose, coin, account, change, index uint32) []uint32 {
	return []uint32{Hardened(purpose), Hardened(coin), Hardened(account), change, index}
}

// DeriveSecp256k1 walks path with BIP32 from the master key.
func (w *HDWallet) DeriveSecp256k1(path []uint32) (*btcec.PrivateKey, error) {
	key := w.masterKey
	var err error
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
	}
	return key.ECPrivKey()
}

// ETHAddress is the EIP-55 checksummed address of priv.
func ETHAddress(priv *btcec.PrivateKey) string {
	return crypto.PubkeyToAddress(priv.ToECDSA().PublicKey).Hex()
}

// BTCAddress is the native SegWit (P2WPKH) address of priv on params.
func BTCAddress(priv *btcec.PrivateKey, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()),
		params,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
