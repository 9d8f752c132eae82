package cosmos

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
	"go.uber.org/zap/zaptest"
)

var errFakeTxNotFound = errors.New("tx not found")

// fakeRPC answers the provider's RPC calls from canned data.
type fakeRPC struct {
	height int64

	// abci query responses keyed by path and then by data
	abci    map[string]map[string]abci.ResponseQuery
	queries []rpcclient.ABCIQueryOptions

	validators []*tmtypes.Validator
	pageSize   int

	txs          []*coretypes.ResultTx
	blocks       []*coretypes.ResultBlock
	blockResults map[int64]*coretypes.ResultBlockResults

	broadcast      *coretypes.ResultBroadcastTx
	broadcastTxs   []tmtypes.Tx
	included       *coretypes.ResultTx
	missesBeforeTx int
	txCalls        int
}

func (f *fakeRPC) Status(context.Context) (*coretypes.ResultStatus, error) {
	return &coretypes.ResultStatus{SyncInfo: coretypes.SyncInfo{LatestBlockHeight: f.height}}, nil
}

func (f *fakeRPC) Commit(_ context.Context, height *int64) (*coretypes.ResultCommit, error) {
	h := f.height
	if height != nil {
		h = *height
	}
	return &coretypes.ResultCommit{
		SignedHeader: tmtypes.SignedHeader{Header: &tmtypes.Header{Height: h}},
	}, nil
}

func (f *fakeRPC) Validators(_ context.Context, _ *int64, page, _ *int) (*coretypes.ResultValidators, error) {
	start := (*page - 1) * f.pageSize
	if start >= len(f.validators) {
		return &coretypes.ResultValidators{Total: len(f.validators)}, nil
	}
	end := start + f.pageSize
	if end > len(f.validators) {
		end = len(f.validators)
	}
	return &coretypes.ResultValidators{
		Validators: f.validators[start:end],
		Count:      end - start,
		Total:      len(f.validators),
	}, nil
}

func (f *fakeRPC) ABCIQueryWithOptions(_ context.Context, path string, data tmbytes.HexBytes, opts rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error) {
	f.queries = append(f.queries, opts)
	return &coretypes.ResultABCIQuery{Response: f.abci[path][string(data)]}, nil
}

func (f *fakeRPC) TxSearch(_ context.Context, _ string, _ bool, page, _ *int, _ string) (*coretypes.ResultTxSearch, error) {
	start := (*page - 1) * f.pageSize
	if start >= len(f.txs) {
		return &coretypes.ResultTxSearch{TotalCount: len(f.txs)}, nil
	}
	end := start + f.pageSize
	if end > len(f.txs) {
		end = len(f.txs)
	}
	return &coretypes.ResultTxSearch{Txs: f.txs[start:end], TotalCount: len(f.txs)}, nil
}

func (f *fakeRPC) BlockSearch(_ context.Context, _ string, page, _ *int, _ string) (*coretypes.ResultBlockSearch, error) {
	start := (*page - 1) * f.pageSize
	if start >= len(f.blocks) {
		return &coretypes.ResultBlockSearch{TotalCount: len(f.blocks)}, nil
	}
	end := start + f.pageSize
	if end > len(f.blocks) {
		end = len(f.blocks)
	}
	return &coretypes.ResultBlockSearch{Blocks: f.blocks[start:end], TotalCount: len(f.blocks)}, nil
}

func (f *fakeRPC) BlockResults(_ context.Context, height *int64) (*coretypes.ResultBlockResults, error) {
	res, ok := f.blockResults[*height]
	if !ok {
		return nil, errors.New("no block results")
	}
	return res, nil
}

func (f *fakeRPC) BroadcastTxSync(_ context.Context, tx tmtypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	f.broadcastTxs = append(f.broadcastTxs, tx)
	return f.broadcast, nil
}

func (f *fakeRPC) Tx(context.Context, []byte, bool) (*coretypes.ResultTx, error) {
	f.txCalls++
	if f.included == nil || f.txCalls <= f.missesBeforeTx {
		return nil, errFakeTxNotFound
	}
	return f.included, nil
}

// setQuery registers the response for an abci query of data at path.
func (f *fakeRPC) setQuery(path string, data []byte, res abci.ResponseQuery) {
	if f.abci == nil {
		f.abci = make(map[string]map[string]abci.ResponseQuery)
	}
	if f.abci[path] == nil {
		f.abci[path] = make(map[string]abci.ResponseQuery)
	}
	f.abci[path][string(data)] = res
}

type fakeSigner struct {
	msgs []sdk.Msg
	err  error
}

var fakeSignerAddress = sdk.AccAddress([]byte("relayer-test-account")).String()

func (s *fakeSigner) Address() string { return fakeSignerAddress }

func (s *fakeSigner) SignTx(_ context.Context, msgs []sdk.Msg) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return []byte("signed-tx"), nil
}

func newTestProvider(t *testing.T, cfg CosmosProviderConfig, rpc *fakeRPC, signer TxSigner) *CosmosProvider {
	t.Helper()
	if cfg.ChainID == "" {
		cfg.ChainID = "test-1"
	}
	if cfg.RPCAddr == "" {
		cfg.RPCAddr = "http://localhost:26657"
	}
	require.NoError(t, cfg.Validate())
	return newProvider(cfg, zaptest.NewLogger(t), rpc, signer)
}

func TestCosmosProviderConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     CosmosProviderConfig
		wantErr bool
	}{
		{
			name: "minimal",
			cfg:  CosmosProviderConfig{ChainID: "test-1", RPCAddr: "http://localhost:26657"},
		},
		{
			name: "all durations",
			cfg: CosmosProviderConfig{
				ChainID:      "test-1",
				RPCAddr:      "http://localhost:26657",
				Timeout:      "5s",
				BlockTimeout: "30s",
				BlockTime:    "1s",
				IndexerTime:  "500ms",
			},
		},
		{
			name:    "missing chain id",
			cfg:     CosmosProviderConfig{RPCAddr: "http://localhost:26657"},
			wantErr: true,
		},
		{
			name:    "missing rpc addr",
			cfg:     CosmosProviderConfig{ChainID: "test-1"},
			wantErr: true,
		},
		{
			name:    "bad block time",
			cfg:     CosmosProviderConfig{ChainID: "test-1", RPCAddr: "http://localhost:26657", BlockTime: "six seconds"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p := newTestProvider(t, CosmosProviderConfig{}, &fakeRPC{}, nil)
	require.Equal(t, "test-1", p.ChainID())
	require.Equal(t, defaultBlockTime, p.EstimatedBlockTime())
	require.Zero(t, p.EstimatedIndexerTime())
	require.Equal(t, defaultBroadcastWaitTimeout, p.broadcastWait)

	p = newTestProvider(t, CosmosProviderConfig{BlockTime: "2s", IndexerTime: "300ms"}, &fakeRPC{}, nil)
	require.Equal(t, "2s", p.EstimatedBlockTime().String())
	require.Equal(t, "300ms", p.EstimatedIndexerTime().String())
}
