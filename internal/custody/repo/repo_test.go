package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/custody/domain"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/xerr"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, orm.Migrate(db, Models()...))
	return db
}

func wallet(user string, c chain.Chain, n domain.Network, addr string) *domain.WalletAddress {
	return &domain.WalletAddress{UserID: user, Chain: c, Network: n, Address: addr, EncryptedPrivateKey: "v1:00"}
}

func TestRepo_UserIndex(t *testing.T) {
	r := New(openTestDB(t))
	ctx := context.Background()

	a, err := r.UserIndex(ctx, "alice")
	require.NoError(t, err)
	b, err := r.UserIndex(ctx, "bob")
	require.NoError(t, err)
	again, err := r.UserIndex(ctx, "alice")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
}

func TestRepo_UserIndex_Concurrent(t *testing.T) {
	r := New(openTestDB(t))
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = map[uint32]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := r.UserIndex(context.Background(), "carol")
			if assert.NoError(t, err) {
				mu.Lock()
				got[idx]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, got, 1)
}

func TestRepo_CreateMissingIsIdempotent(t *testing.T) {
	r := New(openTestDB(t))
	ctx := context.Background()

	first := []*domain.WalletAddress{
		wallet("alice", chain.Ethereum, domain.Mainnet, "0xaaa"),
		wallet("alice", chain.Ethereum, domain.Testnet, "0xaaa"),
	}
	require.NoError(t, r.CreateMissing(ctx, first))

	// a re-run with a different address for the same slot keeps the original row
	second := []*domain.WalletAddress{
		wallet("alice", chain.Ethereum, domain.Mainnet, "0xbbb"),
		wallet("alice", chain.Starknet, domain.Mainnet, "0x0ccc"),
	}
	second[1].ConstructorCalldata = domain.StringList{"0x01"}
	require.NoError(t, r.CreateMissing(ctx, second))

	rows, err := r.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	eth, err := r.Find(ctx, "alice", chain.Ethereum, domain.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", eth.Address)

	strk, err := r.Find(ctx, "alice", chain.Starknet, domain.Mainnet)
	require.NoError(t, err)
	assert.Equal(t, domain.StringList{"0x01"}, strk.ConstructorCalldata)

	_, err = r.Find(ctx, "alice", chain.Bitcoin, domain.Mainnet)
	assert.True(t, xerr.IsCode(err, xerr.RecordNotFound))
}

func TestRepo_AddressIsUniquePerNetwork(t *testing.T) {
	r := New(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, r.CreateMissing(ctx, []*domain.WalletAddress{wallet("alice", chain.Solana, domain.Mainnet, "So1")}))
	require.NoError(t, r.CreateMissing(ctx, []*domain.WalletAddress{wallet("bob", chain.Solana, domain.Mainnet, "So1")}))

	rows, err := r.ListByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, rows, "an address already owned is never handed to a second user")
}

func TestRepo_BalanceAndDeploy(t *testing.T) {
	r := New(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, r.CreateMissing(ctx, []*domain.WalletAddress{wallet("alice", chain.Starknet, domain.Testnet, "0x0ddd")}))
	w, err := r.Find(ctx, "alice", chain.Starknet, domain.Testnet)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, r.UpdateBalance(ctx, w.ID, decimal.RequireFromString("0.75"), now))

	ok, err := r.MarkDeployed(ctx, w.ID, "0xfeed")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.MarkDeployed(ctx, w.ID, "0xother")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeployed)
	assert.Equal(t, "0xfeed", got.DeployTxHash)
	assert.True(t, decimal.RequireFromString("0.75").Equal(got.LastKnownBalance))
	require.NotNil(t, got.BalanceCheckedAt)
	assert.True(t, now.Equal(got.BalanceCheckedAt.UTC()))
}
