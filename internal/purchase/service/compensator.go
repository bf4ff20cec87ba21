package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chainvend.com/internal/purchase/domain"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
)

type metadataWriter interface {
	UpdateMetadata(ctx context.Context, product domain.Product, id string, meta domain.Metadata) error
}

// Compensator records that a refund is owed. Settlement happens elsewhere; this only
// leaves the pending intent on the purchase row.
type Compensator struct {
	repo metadataWriter
	now  func() time.Time
}

func NewCompensator(repo metadataWriter) *Compensator {
	return &Compensator{repo: repo, now: time.Now}
}

// Record never fails the caller. A lost refund record is logged and counted.
func (c *Compensator) Record(ctx context.Context, product domain.Product, p *domain.Purchase, reason string) {
	p.Metadata.Refund = &domain.Refund{
		Initiated:  true,
		Reason:     reason,
		Amount:     p.CryptoAmount,
		Currency:   p.CryptoCurrency,
		Status:     domain.RefundPending,
		RecordedAt: c.now().UTC(),
	}
	if err := c.repo.UpdateMetadata(ctx, product, p.ID, p.Metadata); err != nil {
		metrics.RefundRecordedTotal.WithLabelValues(string(product), "error").Inc()
		logger.Error(ctx, "refund intent not recorded",
			zap.String("purchase_id", p.ID),
			zap.String("tx", p.TransactionHash),
			zap.String("amount", p.CryptoAmount.String()),
			zap.String("currency", p.CryptoCurrency),
			zap.Error(err),
		)
		return
	}
	metrics.RefundRecordedTotal.WithLabelValues(string(product), "recorded").Inc()
	logger.Info(ctx, "refund intent recorded",
		zap.String("purchase_id", p.ID),
		zap.String("reason", reason),
		zap.String("amount", p.CryptoAmount.String()),
		zap.String("currency", p.CryptoCurrency),
	)
}
