// Package service provisions custodial wallets and drives Starknet account deployment.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/custody/domain"
	"chainvend.com/internal/custody/keygen"
	"chainvend.com/internal/custody/starknet"
	"chainvend.com/pkg/crypto"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xerr"
)

type Store interface {
	UserIndex(ctx context.Context, userID string) (uint32, error)
	CreateMissing(ctx context.Context, rows []*domain.WalletAddress) error
	ListByUser(ctx context.Context, userID string) ([]*domain.WalletAddress, error)
	Find(ctx context.Context, userID string, c chain.Chain, network domain.Network) (*domain.WalletAddress, error)
	Get(ctx context.Context, id uint64) (*domain.WalletAddress, error)
	UpdateBalance(ctx context.Context, id uint64, balance decimal.Decimal, at time.Time) error
	MarkDeployed(ctx context.Context, id uint64, txHash string) (bool, error)
}

// BalanceReader returns the native balance of address in whole units.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

type balanceKey struct {
	chain   chain.Chain
	network domain.Network
}

type starknetNetwork struct {
	checker  *starknet.Checker
	deployer starknet.Deployer
}

type Service struct {
	store    Store
	gen      *keygen.Generator
	keys     crypto.KeyManager
	starknet map[domain.Network]starknetNetwork
	balances map[balanceKey]BalanceReader
	deploys  singleflight.Group
}

type Option func(*Service)

// WithStarknet wires eligibility and deployment for one network. The checker also serves
// Starknet balance refreshes.
func WithStarknet(network domain.Network, checker *starknet.Checker, deployer starknet.Deployer) Option {
	return func(s *Service) {
		s.starknet[network] = starknetNetwork{checker: checker, deployer: deployer}
		s.balances[balanceKey{chain.Starknet, network}] = checker
	}
}

func WithBalance(c chain.Chain, network domain.Network, r BalanceReader) Option {
	return func(s *Service) { s.balances[balanceKey{c, network}] = r }
}

func New(store Store, gen *keygen.Generator, keys crypto.KeyManager, opts ...Option) *Service {
	s := &Service{
		store:    store,
		gen:      gen,
		keys:     keys,
		starknet: map[domain.Network]starknetNetwork{},
		balances: map[balanceKey]BalanceReader{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateWallet derives the mainnet and testnet key pairs of c at index. The caller owns
// the returned private keys and must zero them.
func (s *Service) GenerateWallet(c chain.Chain, index uint32) ([]keygen.KeyPair, error) {
	pairs, err := s.gen.Generate(c, index)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.InputValidation, err.Error())
	}
	return pairs, nil
}

// ProvisionUser creates the user's address on every chain and network. It is idempotent:
// existing rows are kept and the full set is returned.
func (s *Service) ProvisionUser(ctx context.Context, userID string) ([]*domain.WalletAddress, error) {
	if userID == "" {
		return nil, xerr.New(xerr.InputValidation, "user id is required")
	}
	index, err := s.store.UserIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows := make([]*domain.WalletAddress, 0, 2*len(s.gen.Chains()))
	for _, c := range s.gen.Chains() {
		pairs, err := s.gen.Generate(c, index)
		if err != nil {
			return nil, xerr.Wrap(err, xerr.Configuration, fmt.Sprintf("derive %s wallet failed", c))
		}
		for i := range pairs {
			row, err := s.seal(ctx, userID, index, &pairs[i])
			if err != nil {
				zeroPairs(pairs[i:])
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	if err := s.store.CreateMissing(ctx, rows); err != nil {
		return nil, err
	}
	logger.Info(ctx, "wallets provisioned", zap.String("user_id", userID), zap.Uint32("index", index))
	return s.store.ListByUser(ctx, userID)
}

// seal encrypts kp's private key into a row and zeroes the plaintext.
func (s *Service) seal(ctx context.Context, userID string, index uint32, kp *keygen.KeyPair) (*domain.WalletAddress, error) {
	defer crypto.Zero(kp.PrivateKey)
	enc, err := s.keys.Encrypt(ctx, kp.PrivateKey)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.Configuration, "encrypt wallet key failed")
	}
	return &domain.WalletAddress{
		UserID:              userID,
		Chain:               kp.Chain,
		Network:             kp.Network,
		Address:             kp.Address,
		EncryptedPrivateKey: enc,
		PublicKey:           kp.PublicKey,
		ConstructorCalldata: kp.ConstructorCalldata,
		ClassHash:           kp.ClassHash,
		DerivationIndex:     index,
	}, nil
}

func zeroPairs(pairs []keygen.KeyPair) {
	for i := range pairs {
		crypto.Zero(pairs[i].PrivateKey)
	}
}

func (s *Service) Wallets(ctx context.Context, userID string) ([]*domain.WalletAddress, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) network(network domain.Network) (starknetNetwork, error) {
	n, ok := s.starknet[network]
	if !ok || n.checker == nil {
		return n, xerr.New(xerr.Configuration, fmt.Sprintf("starknet %s is not configured", network))
	}
	return n, nil
}

// CheckDeploymentEligibility reports whether address on network holds enough fee token to
// deploy itself.
func (s *Service) CheckDeploymentEligibility(ctx context.Context, network domain.Network, address string) (*starknet.Eligibility, error) {
	n, err := s.network(network)
	if err != nil {
		return nil, err
	}
	e, err := n.checker.Check(ctx, address)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.ServerCommonError, "starknet node unavailable")
	}
	return e, nil
}

// Eligibility checks the user's own Starknet address on network.
func (s *Service) Eligibility(ctx context.Context, userID string, network domain.Network) (*starknet.Eligibility, error) {
	w, err := s.store.Find(ctx, userID, chain.Starknet, network)
	if err != nil {
		return nil, err
	}
	if w.IsDeployed {
		return &starknet.Eligibility{Deployed: true, Token: "STRK"}, nil
	}
	return s.CheckDeploymentEligibility(ctx, network, w.Address)
}

// DeployAccount submits the deploy-account transaction for an undeployed address and waits
// for acceptance.
func (s *Service) DeployAccount(ctx context.Context, network domain.Network, privateKey []byte, publicKey, address string) (*starknet.DeployResult, error) {
	n, err := s.network(network)
	if err != nil {
		return nil, err
	}
	if n.deployer == nil {
		return nil, xerr.New(xerr.Configuration, fmt.Sprintf("starknet %s deployer is not configured", network))
	}
	res, err := n.deployer.Deploy(ctx, starknet.DeployRequest{PrivateKey: privateKey, PublicKey: publicKey, Address: address})
	if err != nil {
		return res, xerr.Wrap(err, xerr.ServerCommonError, "starknet account deployment failed")
	}
	return res, nil
}

type DeployOutcome struct {
	Deployed    bool                  `json:"deployed"`
	TxHash      string                `json:"txHash,omitempty"`
	Address     string                `json:"address"`
	Eligibility *starknet.Eligibility `json:"eligibility,omitempty"`
}

// deployTimeout bounds one shared deployment attempt, receipt wait included.
const deployTimeout = 3 * time.Minute

// DeployIfEligible deploys the user's Starknet account on network once it is funded.
// Concurrent calls for the same wallet share one attempt, which keeps running when the
// caller that started it goes away.
func (s *Service) DeployIfEligible(ctx context.Context, userID string, network domain.Network) (*DeployOutcome, error) {
	ch := s.deploys.DoChan(userID+"|"+string(network), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deployTimeout)
		defer cancel()
		return s.deployIfEligible(fctx, userID, network)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*DeployOutcome), nil
	}
}

func (s *Service) deployIfEligible(ctx context.Context, userID string, network domain.Network) (*DeployOutcome, error) {
	w, err := s.store.Find(ctx, userID, chain.Starknet, network)
	if err != nil {
		return nil, err
	}
	if w.IsDeployed {
		return &DeployOutcome{Deployed: true, TxHash: w.DeployTxHash, Address: w.Address}, nil
	}

	e, err := s.CheckDeploymentEligibility(ctx, network, w.Address)
	if err != nil {
		return nil, err
	}
	if e.Deployed {
		// deployed out of band; record it so the node is not asked again
		if _, err := s.store.MarkDeployed(ctx, w.ID, ""); err != nil {
			return nil, err
		}
		return &DeployOutcome{Deployed: true, Address: w.Address, Eligibility: e}, nil
	}
	if !e.Eligible {
		return &DeployOutcome{Address: w.Address, Eligibility: e}, nil
	}

	key, err := s.keys.Decrypt(ctx, w.EncryptedPrivateKey)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.Configuration, "decrypt wallet key failed")
	}
	res, err := s.DeployAccount(ctx, network, key, w.PublicKey, w.Address)
	crypto.Zero(key)
	if err != nil {
		fields := []zap.Field{zap.String("user_id", userID), zap.String("address", w.Address), zap.Error(err)}
		if res != nil {
			fields = append(fields, zap.String("tx", res.TxHash))
		}
		logger.Error(ctx, "starknet deployment failed", fields...)
		return nil, err
	}

	if _, err := s.store.MarkDeployed(ctx, w.ID, res.TxHash); err != nil {
		logger.Error(ctx, "starknet deployed but not recorded",
			zap.String("user_id", userID), zap.String("tx", res.TxHash), zap.Error(err))
		return nil, err
	}
	logger.Info(ctx, "starknet account deployed",
		zap.String("user_id", userID), zap.String("network", string(network)), zap.String("tx", res.TxHash))
	return &DeployOutcome{Deployed: true, TxHash: res.TxHash, Address: w.Address, Eligibility: e}, nil
}

// RefreshBalance re-reads the on-chain balance of wallet id into the cache columns.
func (s *Service) RefreshBalance(ctx context.Context, id uint64) (*domain.WalletAddress, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, ok := s.balances[balanceKey{w.Chain, w.Network}]
	if !ok {
		return nil, xerr.New(xerr.InputValidation, fmt.Sprintf("balance refresh is not available for %s %s", w.Chain, w.Network))
	}
	bal, err := r.Balance(ctx, w.Address)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.ServerCommonError, "balance lookup failed")
	}
	now := time.Now()
	if err := s.store.UpdateBalance(ctx, w.ID, bal, now); err != nil {
		return nil, err
	}
	w.LastKnownBalance, w.BalanceCheckedAt = bal, &now
	return w, nil
}

// RefreshOwned is RefreshBalance restricted to userID's own wallets.
func (s *Service) RefreshOwned(ctx context.Context, userID string, id uint64) (*domain.WalletAddress, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, xerr.New(xerr.RecordNotFound, "wallet not found")
	}
	return s.RefreshBalance(ctx, id)
}
