package cosmos

import (
	"context"
	"fmt"

	"github.com/cosmos/link-relayer/relayer/provider"
	abci "github.com/tendermint/tendermint/abci/types"
)

const searchPerPage = 100

func relayerEvents(events []abci.Event) []provider.RelayerEvent {
	out := make([]provider.RelayerEvent, 0, len(events))
	for _, event := range events {
		attrs := make(map[string]string, len(event.Attributes))
		for _, attr := range event.Attributes {
			attrs[string(attr.Key)] = string(attr.Value)
		}
		out = append(out, provider.RelayerEvent{
			EventType:  event.Type,
			Attributes: attrs,
		})
	}
	return out
}

// SearchTxs pages through all transactions matching query in ascending height order.
func (cc *CosmosProvider) SearchTxs(ctx context.Context, query string) ([]*provider.TxResult, error) {
	var (
		txs     []*provider.TxResult
		page    = 1
		perPage = searchPerPage
	)
	for {
		res, err := cc.RPCClient.TxSearch(ctx, query, false, &page, &perPage, "asc")
		if err != nil {
			return nil, fmt.Errorf("tx search %q on %s: %w", query, cc.ChainID(), err)
		}
		for _, tx := range res.Txs {
			txs = append(txs, &provider.TxResult{
				Height: tx.Height,
				TxHash: tx.Hash.String(),
				Events: relayerEvents(tx.TxResult.Events),
			})
		}
		if len(txs) >= res.TotalCount || len(res.Txs) == 0 {
			return txs, nil
		}
		page++
	}
}

// SearchBlockEvents pages through all blocks matching query and returns their begin
// and end block events.
func (cc *CosmosProvider) SearchBlockEvents(ctx context.Context, query string) ([]*provider.BlockResult, error) {
	var (
		blocks  []*provider.BlockResult
		found   int
		page    = 1
		perPage = searchPerPage
	)
	for {
		res, err := cc.RPCClient.BlockSearch(ctx, query, &page, &perPage, "asc")
		if err != nil {
			return nil, fmt.Errorf("block search %q on %s: %w", query, cc.ChainID(), err)
		}
		for _, b := range res.Blocks {
			height := b.Block.Height
			results, err := cc.RPCClient.BlockResults(ctx, &height)
			if err != nil {
				return nil, fmt.Errorf("block results %d on %s: %w", height, cc.ChainID(), err)
			}
			events := relayerEvents(results.BeginBlockEvents)
			events = append(events, relayerEvents(results.EndBlockEvents)...)
			blocks = append(blocks, &provider.BlockResult{Height: height, Events: events})
		}
		found += len(res.Blocks)
		if found >= res.TotalCount || len(res.Blocks) == 0 {
			return blocks, nil
		}
		page++
	}
}
