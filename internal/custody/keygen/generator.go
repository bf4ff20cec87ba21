// Package keygen derives the custodial key pairs of one user for every supported chain.
package keygen

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gagliardetto/solana-go"
	"github.com/stellar/go/keypair"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/chain/polkadot"
	"chainvend.com/internal/custody/domain"
	"chainvend.com/pkg/hdwallet"
)

// KeyPair is one derived account. PrivateKey is raw key material; callers encrypt and zero it.
type KeyPair struct {
	Chain               chain.Chain
	Network             domain.Network
	Address             string
	PublicKey           string
	PrivateKey          []byte
	ConstructorCalldata []string
	ClassHash           string
}

type Generator struct {
	wallet   *hdwallet.HDWallet
	starknet *starknetAccounts
}

// NewGenerator wraps wallet. starknetClassHash is the account class used to precompute
// counterfactual Starknet addresses; an empty value disables Starknet derivation.
func NewGenerator(wallet *hdwallet.HDWallet, starknetClassHash string) (*Generator, error) {
	g := &Generator{wallet: wallet}
	if starknetClassHash != "" {
		s, err := newStarknetAccounts(starknetClassHash)
		if err != nil {
			return nil, err
		}
		g.starknet = s
	}
	return g, nil
}

// Chains lists the chains Generate supports with this configuration.
func (g *Generator) Chains() []chain.Chain {
	out := make([]chain.Chain, 0, len(chain.All()))
	for _, c := range chain.All() {
		if c == chain.Starknet && g.starknet == nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Generate returns the mainnet and the testnet key pair of c at index.
func (g *Generator) Generate(c chain.Chain, index uint32) ([]KeyPair, error) {
	switch c {
	case chain.Ethereum, chain.USDT:
		return g.evm(c, index)
	case chain.Bitcoin:
		return g.bitcoin(index)
	case chain.Solana:
		return g.solana(index)
	case chain.Stellar:
		return g.stellar(index)
	case chain.Polkadot:
		return g.polkadot(index)
	case chain.Starknet:
		if g.starknet == nil {
			return nil, fmt.Errorf("starknet: %w: account class hash not configured", chain.ErrUnsupported)
		}
		return g.starknetPairs(index)
	default:
		return nil, fmt.Errorf("%w: %q", chain.ErrUnsupported, c)
	}
}

func (g *Generator) evm(c chain.Chain, index uint32) ([]KeyPair, error) {
	priv, err := g.wallet.DeriveSecp256k1(hdwallet.BIP44Path(44, hdwallet.CoinETH, 0, 0, index))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	defer priv.Zero()
	kp := KeyPair{
		Chain:      c,
		Address:    hdwallet.ETHAddress(priv),
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		PrivateKey: priv.Serialize(),
	}
	return bothNetworks(kp), nil
}

func (g *Generator) bitcoin(index uint32) ([]KeyPair, error) {
	out := make([]KeyPair, 0, 2)
	for _, n := range []struct {
		network domain.Network
		coin    uint32
		params  *chaincfg.Params
	}{
		{domain.Mainnet, hdwallet.CoinBTC, &chaincfg.MainNetParams},
		{domain.Testnet, hdwallet.CoinBTCTestnet, &chaincfg.TestNet3Params},
	} {
		priv, err := g.wallet.DeriveSecp256k1(hdwallet.BIP44Path(84, n.coin, 0, 0, index))
		if err != nil {
			return nil, fmt.Errorf("bitcoin: %w", err)
		}
		defer priv.Zero()
		addr, err := hdwallet.BTCAddress(priv, n.params)
		if err != nil {
			return nil, fmt.Errorf("bitcoin: %w", err)
		}
		out = append(out, KeyPair{
			Chain:      chain.Bitcoin,
			Network:    n.network,
			Address:    addr,
			PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
			PrivateKey: priv.Serialize(),
		})
	}
	return out, nil
}

func (g *Generator) ed25519(path ...uint32) (ed25519.PrivateKey, error) {
	hardened := make([]uint32, len(path))
	for i, p := range path {
		hardened[i] = hdwallet.Hardened(p)
	}
	return g.wallet.DeriveEd25519(hardened)
}

func (g *Generator) solana(index uint32) ([]KeyPair, error) {
	priv, err := g.ed25519(44, hdwallet.CoinSOL, index, 0)
	if err != nil {
		return nil, fmt.Errorf("solana: %w", err)
	}
	key := solana.PrivateKey(priv)
	pub := key.PublicKey().String()
	return bothNetworks(KeyPair{Chain: chain.Solana, Address: pub, PublicKey: pub, PrivateKey: []byte(priv)}), nil
}

func (g *Generator) stellar(index uint32) ([]KeyPair, error) {
	priv, err := g.ed25519(44, hdwallet.CoinXLM, index)
	if err != nil {
		return nil, fmt.Errorf("stellar: %w", err)
	}
	var seed [32]byte
	copy(seed[:], priv.Seed())
	full, err := keypair.FromRawSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("stellar: %w", err)
	}
	kp := KeyPair{Chain: chain.Stellar, Address: full.Address(), PublicKey: full.Address(), PrivateKey: seed[:]}
	return bothNetworks(kp), nil
}

func (g *Generator) polkadot(index uint32) ([]KeyPair, error) {
	priv, err := g.ed25519(44, hdwallet.CoinDOT, index, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("polkadot: %w", err)
	}
	pub := priv.Public().(ed25519.PublicKey)
	out := make([]KeyPair, 0, 2)
	for _, n := range []struct {
		network domain.Network
		prefix  uint16
	}{
		{domain.Mainnet, polkadot.PrefixPolkadot},
		{domain.Testnet, polkadot.PrefixSubstrate},
	} {
		addr, err := polkadot.Encode(pub, n.prefix)
		if err != nil {
			return nil, fmt.Errorf("polkadot: %w", err)
		}
		out = append(out, KeyPair{
			Chain:      chain.Polkadot,
			Network:    n.network,
			Address:    addr,
			PublicKey:  "0x" + hex.EncodeToString(pub),
			PrivateKey: append([]byte(nil), priv...),
		})
	}
	return out, nil
}

// bothNetworks copies kp for mainnet and testnet; the testnet copy owns its own key bytes.
func bothNetworks(kp KeyPair) []KeyPair {
	main, test := kp, kp
	main.Network, test.Network = domain.Mainnet, domain.Testnet
	test.PrivateKey = append([]byte(nil), kp.PrivateKey...)
	return []KeyPair{main, test}
}
