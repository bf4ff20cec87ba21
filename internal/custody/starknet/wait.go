package starknet

import (
	"context"
	"errors"
	"fmt"
	"time"

	chainstarknet "chainvend.com/internal/chain/starknet"
)

// ErrReverted is returned when the deploy transaction lands but fails execution.
var ErrReverted = errors.New("deploy transaction reverted")

// ReceiptReader is the subset of the JSON-RPC client the receipt wait needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash string) (*chainstarknet.Receipt, error)
}

// WaitForReceipt polls until hash is accepted on L2 or L1, it reverts, or ctx ends. An unknown
// hash is retried because a freshly submitted transaction may not be indexed yet.
func WaitForReceipt(ctx context.Context, r ReceiptReader, hash string, poll time.Duration) (*chainstarknet.Receipt, error) {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		rc, err := r.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && rc.ExecutionStatus == "REVERTED":
			return rc, fmt.Errorf("%w: %s", ErrReverted, rc.RevertReason)
		case err == nil && rc.ExecutionStatus == "SUCCEEDED" &&
			(rc.FinalityStatus == "ACCEPTED_ON_L2" || rc.FinalityStatus == "ACCEPTED_ON_L1"):
			return rc, nil
		case err != nil && !errors.Is(err, chainstarknet.ErrTxNotFound):
			return nil, fmt.Errorf("receipt %s: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
