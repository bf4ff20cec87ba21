package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chainvend.com/internal/purchase/domain"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Models lists every table this repo owns, for orm.Migrate.
func Models() []interface{} {
	return []interface{}{
		&domain.AirtimePurchase{},
		&domain.DataPurchase{},
		&domain.ElectricityPurchase{},
		&domain.SpentTransaction{},
	}
}

func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return orm.Transaction(ctx, r.db, fn)
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.Conn(ctx, r.db)
}

func (r *Repo) Create(ctx context.Context, rec domain.Record) error {
	if err := r.getDb(ctx).Create(rec).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("create %s purchase failed: %v", rec.Product(), err))
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, product domain.Product, id string) (domain.Record, error) {
	rec, err := domain.NewRecord(product)
	if err != nil {
		return nil, xerr.New(xerr.RequestParamsError, err.Error())
	}
	err = r.getDb(ctx).Where("id = ?", id).First(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.New(xerr.RecordNotFound, "purchase not found")
	}
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get purchase failed: %v", err))
	}
	return rec, nil
}

// ListByUser pages a user's purchases of one product, newest first.
func (r *Repo) ListByUser(ctx context.Context, product domain.Product, userID string, page, limit int) ([]domain.Record, error) {
	db := r.getDb(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	db = orm.ApplyPagination(db, page, limit)
	switch product {
	case domain.Airtime:
		return list[domain.AirtimePurchase](db)
	case domain.Data:
		return list[domain.DataPurchase](db)
	case domain.Electricity:
		return list[domain.ElectricityPurchase](db)
	default:
		return nil, xerr.New(xerr.RequestParamsError, "unknown product "+string(product))
	}
}

func list[T any, PT interface {
	*T
	domain.Record
}](db *gorm.DB) ([]domain.Record, error) {
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("list purchases failed: %v", err))
	}
	out := make([]domain.Record, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, nil
}

// transition moves a PROCESSING row to a terminal status. Zero rows affected means the row
// already left PROCESSING, reported as domain.ErrNotProcessing.
func (r *Repo) transition(ctx context.Context, product domain.Product, id string, to domain.Status, fields map[string]interface{}) error {
	model, err := domain.NewRecord(product)
	if err != nil {
		return xerr.New(xerr.RequestParamsError, err.Error())
	}
	fields["status"] = to
	res := r.getDb(ctx).Model(model).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(fields)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update %s purchase to %s failed: %v", product, to, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s purchase %s: %w", product, id, domain.ErrNotProcessing)
	}
	return nil
}

func (r *Repo) MarkFailed(ctx context.Context, product domain.Product, id string, meta domain.Metadata) error {
	return r.transition(ctx, product, id, domain.StatusFailed, map[string]interface{}{"metadata": meta})
}

// MarkCompleted stores the provider reference and any product columns (extra) with the
// status change.
func (r *Repo) MarkCompleted(ctx context.Context, product domain.Product, id, providerRef string, meta domain.Metadata, extra map[string]interface{}) error {
	fields := map[string]interface{}{
		"provider_reference": providerRef,
		"metadata":           meta,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return r.transition(ctx, product, id, domain.StatusCompleted, fields)
}

// UpdateMetadata annotates a row in any status. Metadata is the only thing a terminal row
// may still change.
func (r *Repo) UpdateMetadata(ctx context.Context, product domain.Product, id string, meta domain.Metadata) error {
	model, err := domain.NewRecord(product)
	if err != nil {
		return xerr.New(xerr.RequestParamsError, err.Error())
	}
	res := r.getDb(ctx).Model(model).Where("id = ?", id).Update("metadata", meta)
	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update metadata failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "purchase not found")
	}
	return nil
}

// CompletedProduct reports which product, if any, a hash already paid for. Both the
// product tables and the ledger are consulted.
func (r *Repo) CompletedProduct(ctx context.Context, txHash string) (domain.Product, bool, error) {
	for _, p := range domain.Products() {
		model, _ := domain.NewRecord(p)
		var n int64
		err := r.getDb(ctx).Model(model).
			Where("transaction_hash = ? AND status = ?", txHash, domain.StatusCompleted).
			Count(&n).Error
		if err != nil {
			return "", false, xerr.New(xerr.DbError, fmt.Sprintf("duplicate check failed: %v", err))
		}
		if n > 0 {
			return p, true, nil
		}
	}

	entry, err := r.LedgerEntry(ctx, txHash)
	if err != nil {
		return "", false, err
	}
	if entry != nil && entry.Status == domain.LedgerCompleted {
		return entry.Product, true, nil
	}
	return "", false, nil
}
