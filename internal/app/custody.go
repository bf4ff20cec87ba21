package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainvend.com/internal/chain"
	chainstarknet "chainvend.com/internal/chain/starknet"
	"chainvend.com/internal/config"
	"chainvend.com/internal/custody/domain"
	"chainvend.com/internal/custody/keygen"
	custodyrepo "chainvend.com/internal/custody/repo"
	custodyservice "chainvend.com/internal/custody/service"
	"chainvend.com/internal/custody/starknet"
	"chainvend.com/pkg/crypto"
	"chainvend.com/pkg/hdwallet"
	"chainvend.com/pkg/logger"
)

func custodyModels() []interface{} { return custodyrepo.Models() }

// newCustody returns a nil service when no mnemonic or secret is configured.
func newCustody(ctx context.Context, cfg *config.Config, db *gorm.DB) (*custodyservice.Service, *custodyrepo.Repo, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	cc := cfg.Custody
	if cc.Mnemonic == "" || cc.EncryptionSecret == "" {
		return nil, nil, closeAll, nil
	}

	wallet, err := hdwallet.New(cc.Mnemonic, "")
	if err != nil {
		return nil, nil, closeAll, fmt.Errorf("custody wallet: %w", err)
	}
	gen, err := keygen.NewGenerator(wallet, cc.Starknet.AccountClassHash)
	if err != nil {
		return nil, nil, closeAll, fmt.Errorf("custody keygen: %w", err)
	}
	keys, err := crypto.NewEnvKeyManager(cc.EncryptionSecret, cc.EncryptionSalt)
	if err != nil {
		return nil, nil, closeAll, fmt.Errorf("custody keys: %w", err)
	}

	var opts []custodyservice.Option
	for _, n := range domain.Networks() {
		url := cc.Starknet.RPC[string(n)]
		if url == "" || cc.Starknet.AccountClassHash == "" {
			continue
		}
		client, err := chainstarknet.Dial(ctx, url)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		closers = append(closers, client.Close)
		deployer, err := starknet.NewAccountDeployer(url, cc.Starknet.AccountClassHash, client,
			cc.Starknet.PollInterval, cc.Starknet.FeeMultiplier)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("starknet %s deployer: %w", n, err)
		}
		opts = append(opts, custodyservice.WithStarknet(n, starknet.NewChecker(client, cc.Starknet.MinBalance), deployer))
	}

	if eth, ok := cfg.Chains.Networks[chain.Ethereum.String()]; ok && len(eth.Endpoints) > 0 {
		client, err := ethclient.DialContext(ctx, eth.Endpoints[0])
		if err != nil {
			logger.Warn(ctx, "ethereum balance reader disabled", zap.Error(err))
		} else {
			closers = append(closers, client.Close)
			opts = append(opts, custodyservice.WithBalance(chain.Ethereum, domain.Mainnet, custodyservice.NewEVMBalance(client)))
		}
	}

	store := custodyrepo.New(db)
	return custodyservice.New(store, gen, keys, opts...), store, closeAll, nil
}
