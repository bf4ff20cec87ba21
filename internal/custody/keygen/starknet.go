package keygen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/contracts"
	"github.com/NethermindEth/starknet.go/curve"
	"github.com/NethermindEth/starknet.go/utils"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/hdwallet"
)

type starknetAccounts struct {
	classHash *felt.Felt
}

func newStarknetAccounts(classHash string) (*starknetAccounts, error) {
	ch, err := utils.HexToFelt(classHash)
	if err != nil {
		return nil, fmt.Errorf("starknet account class hash: %w", err)
	}
	return &starknetAccounts{classHash: ch}, nil
}

func (g *Generator) starknetPairs(index uint32) ([]KeyPair, error) {
	secp, err := g.wallet.DeriveSecp256k1(hdwallet.BIP44Path(44, hdwallet.CoinSTRK, 0, 0, index))
	if err != nil {
		return nil, fmt.Errorf("starknet: %w", err)
	}
	seed := secp.Serialize()
	secp.Zero()
	priv := GrindKey(seed)
	zero(seed)

	pub, addr, err := g.starknet.account(priv)
	if err != nil {
		return nil, fmt.Errorf("starknet: %w", err)
	}
	pubHex := PadFelt(pub.String())
	kp := KeyPair{
		Chain:               chain.Starknet,
		Address:             PadFelt(addr.String()),
		PublicKey:           pubHex,
		PrivateKey:          priv.FillBytes(make([]byte, 32)),
		ConstructorCalldata: []string{pubHex},
		ClassHash:           PadFelt(g.starknet.classHash.String()),
	}
	zeroInt(priv)
	return bothNetworks(kp), nil
}

// account returns the stark public key of priv and the counterfactual address of an account
// deployed with salt = pubkey, calldata = [pubkey] and no deployer.
func (s *starknetAccounts) account(priv *big.Int) (*felt.Felt, *felt.Felt, error) {
	x, _, err := curve.Curve.PrivateToPoint(priv)
	if err != nil {
		return nil, nil, err
	}
	pub := utils.BigIntToFelt(x)
	addr := contracts.PrecomputeAddress(&felt.Zero, pub, s.classHash, []*felt.Felt{pub})
	return pub, addr, nil
}

// GrindKey maps arbitrary key material into [1, n) of the Stark curve without modulo bias:
// sha256(seed || i) is retried until it falls under the largest multiple of n.
func GrindKey(seed []byte) *big.Int {
	n := curve.Curve.N
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	limit.Sub(limit, new(big.Int).Mod(limit, n))

	buf := make([]byte, len(seed)+1)
	copy(buf, seed)
	defer zero(buf)
	for i := 0; ; i++ {
		buf[len(seed)] = byte(i)
		sum := sha256.Sum256(buf)
		k := new(big.Int).SetBytes(sum[:])
		zero(sum[:])
		if k.Cmp(limit) < 0 {
			k.Mod(k, n)
			if k.Sign() > 0 {
				return k
			}
		}
	}
}

// PadFelt renders a felt as 0x plus 64 hex digits.
func PadFelt(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) < 64 {
		s = strings.Repeat("0", 64-len(s)) + s
	}
	return "0x" + s
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func zeroInt(x *big.Int) {
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}
