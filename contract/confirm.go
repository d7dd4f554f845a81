package contract

import (
	"context"
	"fmt"
	"time"
)

// BlockNumberReader reports the current chain head.
type BlockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

var confirmationPoll = time.Second

func waitConfirmations(ctx context.Context, r BlockNumberReader, minedAt, confirmations uint64) error {
	if confirmations == 0 {
		return nil
	}

	ticker := time.NewTicker(confirmationPoll)
	defer ticker.Stop()

	for {
		head, err := r.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to read block number: %w", err)
		}
		if head >= minedAt+confirmations {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
