package mock

import (
	"context"
	"sort"
	"strconv"

	"github.com/cosmos/link-relayer/relayer/provider"
	tmquery "github.com/tendermint/tendermint/libs/pubsub/query"
)

// SearchTxs matches query against the events of every committed transaction, like
// the tendermint tx indexer does. tx.height and tx.hash can be used in the query.
func (c *Chain) SearchTxs(ctx context.Context, query string) ([]*provider.TxResult, error) {
	q, err := tmquery.New(query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var results []*provider.TxResult
	for _, tx := range c.txs {
		events := indexEvents(tx.Events)
		events["tx.height"] = []string{strconv.FormatInt(tx.Height, 10)}
		events["tx.hash"] = []string{tx.TxHash}
		ok, err := q.Matches(events)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, tx)
		}
	}
	return results, nil
}

// SearchBlockEvents matches query against the begin and end block events of every
// block. block.height can be used in the query.
func (c *Chain) SearchBlockEvents(ctx context.Context, query string) ([]*provider.BlockResult, error) {
	q, err := tmquery.New(query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	heights := make([]int64, 0, len(c.blocks))
	for h, b := range c.blocks {
		if len(b.events) > 0 {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	var results []*provider.BlockResult
	for _, h := range heights {
		b := c.blocks[h]
		events := indexEvents(b.events)
		events["block.height"] = []string{strconv.FormatInt(h, 10)}
		ok, err := q.Matches(events)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, &provider.BlockResult{Height: h, Events: b.events})
		}
	}
	return results, nil
}

// indexEvents flattens events into the type.key form queries are written against.
func indexEvents(events []provider.RelayerEvent) map[string][]string {
	index := make(map[string][]string)
	for _, event := range events {
		for k, v := range event.Attributes {
			key := event.EventType + "." + k
			index[key] = append(index[key], v)
		}
	}
	return index
}
