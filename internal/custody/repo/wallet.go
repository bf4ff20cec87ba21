package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/custody/domain"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Models() []interface{} {
	return []interface{}{&domain.WalletAddress{}, &domain.UserIndex{}}
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.Conn(ctx, r.db)
}

// UserIndex returns the user's derivation index, allocating it on first use.
func (r *Repo) UserIndex(ctx context.Context, userID string) (uint32, error) {
	row := domain.UserIndex{UserID: userID}
	res := r.getDb(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("allocate derivation index failed: %v", res.Error))
	}
	if res.RowsAffected == 1 && row.ID != 0 {
		return row.ID, nil
	}
	// lost the insert race or already provisioned
	row = domain.UserIndex{}
	if err := r.getDb(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("load derivation index failed: %v", err))
	}
	return row.ID, nil
}

// CreateMissing inserts rows, skipping any (user, chain, network) that already exists.
func (r *Repo) CreateMissing(ctx context.Context, rows []*domain.WalletAddress) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.getDb(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create wallets failed: %v", err))
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]*domain.WalletAddress, error) {
	rows := make([]*domain.WalletAddress, 0, 16)
	err := r.getDb(ctx).Where("user_id = ?", userID).Order("chain, network").Find(&rows).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list wallets failed: %v", err))
	}
	return rows, nil
}

func (r *Repo) Find(ctx context.Context, userID string, c chain.Chain, network domain.Network) (*domain.WalletAddress, error) {
	var w domain.WalletAddress
	err := r.getDb(ctx).Where("user_id = ? AND chain = ? AND network = ?", userID, c, network).Take(&w).Error
	return r.one(&w, err)
}

func (r *Repo) Get(ctx context.Context, id uint64) (*domain.WalletAddress, error) {
	var w domain.WalletAddress
	err := r.getDb(ctx).Where("id = ?", id).Take(&w).Error
	return r.one(&w, err)
}

func (r *Repo) one(w *domain.WalletAddress, err error) (*domain.WalletAddress, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.New(xerr.RecordNotFound, "wallet not found")
	}
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get wallet failed: %v", err))
	}
	return w, nil
}

func (r *Repo) UpdateBalance(ctx context.Context, id uint64, balance decimal.Decimal, at time.Time) error {
	err := r.getDb(ctx).Model(&domain.WalletAddress{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_known_balance": balance, "balance_checked_at": at}).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update balance failed: %v", err))
	}
	return nil
}

// MarkDeployed flips is_deployed once; a second call affects nothing and reports false.
func (r *Repo) MarkDeployed(ctx context.Context, id uint64, txHash string) (bool, error) {
	res := r.getDb(ctx).Model(&domain.WalletAddress{}).
		Where("id = ? AND is_deployed = ?", id, false).
		Updates(map[string]interface{}{"is_deployed": true, "deploy_tx_hash": txHash})
	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("mark deployed failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}
