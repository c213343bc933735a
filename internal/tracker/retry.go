package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptTimeout is returned when a receipt wait exhausts its attempts.
var ErrReceiptTimeout = errors.New("receipt wait timed out")

// awaitReceipt polls for a transaction receipt a bounded number of times
// and returns ErrReceiptTimeout rather than blocking indefinitely.
func awaitReceipt(
	ctx context.Context,
	provider Provider,
	txHash common.Hash,
	attempts int,
	interval time.Duration,
) (*types.Receipt, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	for i := 0; i < attempts; i++ {
		receipt, err := provider.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, ErrReceiptTimeout
}
