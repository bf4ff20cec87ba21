package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chainvend.com/internal/monitor/domain"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/xerr"
)

// ErrHashInUse is returned when a submitted hash already backs another payment.
var ErrHashInUse = errors.New("transaction hash already submitted")

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func Models() []interface{} {
	return []interface{}{&domain.MerchantPayment{}}
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.Conn(ctx, r.db)
}

func (r *Repo) Create(ctx context.Context, p *domain.MerchantPayment) error {
	if err := r.getDb(ctx).Create(p).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create merchant payment failed: %v", err))
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*domain.MerchantPayment, error) {
	var p domain.MerchantPayment
	err := r.getDb(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.New(xerr.RecordNotFound, "payment not found")
	}
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get merchant payment failed: %v", err))
	}
	return &p, nil
}

// ListPending returns every pending payment, expired or not, oldest first.
func (r *Repo) ListPending(ctx context.Context) ([]*domain.MerchantPayment, error) {
	rows := make([]*domain.MerchantPayment, 0, 64)
	err := r.getDb(ctx).Where("status = ?", domain.StatusPending).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list pending payments failed: %v", err))
	}
	return rows, nil
}

// SetTxHash binds hash to a pending payment. It reports false when the payment is no longer
// pending.
func (r *Repo) SetTxHash(ctx context.Context, id, hash string) (bool, error) {
	res := r.getDb(ctx).Model(&domain.MerchantPayment{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("tx_hash", hash)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return false, ErrHashInUse
	}
	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("set payment hash failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// Complete, Expire and Fail move a pending payment to a terminal status. Each reports false
// when the row had already left pending, which callers treat as a no-op.
func (r *Repo) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.finish(ctx, id, map[string]interface{}{"status": domain.StatusCompleted, "completed_at": at})
}

func (r *Repo) Expire(ctx context.Context, id string) (bool, error) {
	return r.finish(ctx, id, map[string]interface{}{"status": domain.StatusExpired})
}

func (r *Repo) Fail(ctx context.Context, id string) (bool, error) {
	return r.finish(ctx, id, map[string]interface{}{"status": domain.StatusFailed})
}

func (r *Repo) finish(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	res := r.getDb(ctx).Model(&domain.MerchantPayment{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(fields)
	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("update payment %s failed: %v", id, res.Error))
	}
	return res.RowsAffected == 1, nil
}
