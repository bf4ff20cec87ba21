package service

import (
	"context"

	"go.uber.org/zap"

	"chainvend.com/internal/purchase/domain"
	"chainvend.com/pkg/logger"
)

type spentChecker interface {
	CompletedProduct(ctx context.Context, txHash string) (domain.Product, bool, error)
}

// Guard is the fast duplicate check run before any state is written. The ledger's unique
// constraint is what actually closes the race; Guard only gives the early, explicit answer.
type Guard struct {
	repo spentChecker
}

func NewGuard(repo spentChecker) *Guard {
	return &Guard{repo: repo}
}

func (g *Guard) Check(ctx context.Context, txHash string) error {
	product, found, err := g.repo.CompletedProduct(ctx, txHash)
	if err != nil {
		return err
	}
	if found {
		logger.Warn(ctx, "transaction hash replayed",
			zap.String("tx", txHash), zap.String("consumed_by", string(product)))
		return domain.DuplicateTransactionError(product)
	}
	return nil
}
