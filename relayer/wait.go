package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cosmos/link-relayer/relayer/provider"
)

var errHeightNotReached = errors.New("height not reached")

// waitForHeight polls the chain at its estimated block interval until it reaches
// minHeight. Query errors are returned immediately.
func waitForHeight(ctx context.Context, p provider.QueryProvider, minHeight int64) error {
	return retry.Do(func() error {
		h, err := p.QueryLatestHeight(ctx)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to query latest height of %s: %w", p.ChainID(), err))
		}
		if h < minHeight {
			return errHeightNotReached
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(pollInterval(p)),
		retry.DelayType(retry.FixedDelay),
		provider.RtyErr,
	)
}

// waitOneBlock returns once the chain produced a block after the current one.
func waitOneBlock(ctx context.Context, p provider.QueryProvider) error {
	h, err := p.QueryLatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to query latest height of %s: %w", p.ChainID(), err)
	}
	return waitForHeight(ctx, p, h+1)
}

// waitForIndexer gives the chain's tx indexer time to catch up with recent blocks.
func waitForIndexer(ctx context.Context, p provider.QueryProvider) error {
	d := p.EstimatedIndexerTime()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pollInterval(p provider.QueryProvider) time.Duration {
	if d := p.EstimatedBlockTime(); d > 0 {
		return d
	}
	return time.Second
}
