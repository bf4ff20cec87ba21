package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chainvend.com/internal/purchase/domain"
	"chainvend.com/pkg/xerr"
)

var (
	ErrAlreadyClaimed = errors.New("transaction hash already claimed")
	ErrNotClaimed     = errors.New("transaction hash not claimed by this purchase")
)

// Claim inserts the ledger row for a validated payment. The unique tx_hash turns a second
// claim into ErrAlreadyClaimed, whichever replica or product it comes from.
func (r *Repo) Claim(ctx context.Context, e *domain.SpentTransaction) error {
	e.Status = domain.LedgerClaimed
	err := r.getDb(ctx).Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyClaimed
	}
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("claim transaction failed: %v", err))
	}
	return nil
}

// Promote marks the claim completed. It must run in the transaction that completes the
// purchase.
func (r *Repo) Promote(ctx context.Context, txHash, purchaseID string) error {
	res := r.getDb(ctx).Model(&domain.SpentTransaction{}).
		Where("tx_hash = ? AND purchase_id = ? AND status = ?", txHash, purchaseID, domain.LedgerClaimed).
		Update("status", domain.LedgerCompleted)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("promote claim failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Release drops a claim that never completed so the hash can fund a retry.
func (r *Repo) Release(ctx context.Context, txHash, purchaseID string) error {
	err := r.getDb(ctx).
		Where("tx_hash = ? AND purchase_id = ? AND status = ?", txHash, purchaseID, domain.LedgerClaimed).
		Delete(&domain.SpentTransaction{}).Error
	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("release claim failed: %v", err))
	}
	return nil
}

// LedgerEntry returns nil when the hash was never claimed.
func (r *Repo) LedgerEntry(ctx context.Context, txHash string) (*domain.SpentTransaction, error) {
	var e domain.SpentTransaction
	err := r.getDb(ctx).Where("tx_hash = ?", txHash).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("ledger lookup failed: %v", err))
	}
	return &e, nil
}
