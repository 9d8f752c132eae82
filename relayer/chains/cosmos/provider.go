package cosmos

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
	"go.uber.org/zap"
)

var _ provider.ChainProvider = &CosmosProvider{}

const (
	defaultTimeout              = 10 * time.Second
	defaultBroadcastWaitTimeout = time.Minute
	defaultBlockTime            = 6 * time.Second
)

// ErrNoSigner is returned by every transaction method of a provider built without a TxSigner.
var ErrNoSigner = errors.New("no transaction signer configured")

// TxSigner builds, signs and encodes a transaction from msgs. Key management,
// fees and account sequences are the signer's business.
type TxSigner interface {
	// Address is the bech32 address messages are signed by.
	Address() string
	SignTx(ctx context.Context, msgs []sdk.Msg) ([]byte, error)
}

// rpcClient is the subset of the Tendermint RPC the provider uses.
type rpcClient interface {
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
	Commit(ctx context.Context, height *int64) (*coretypes.ResultCommit, error)
	Validators(ctx context.Context, height *int64, page, perPage *int) (*coretypes.ResultValidators, error)
	ABCIQueryWithOptions(ctx context.Context, path string, data tmbytes.HexBytes, opts rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error)
	TxSearch(ctx context.Context, query string, prove bool, page, perPage *int, orderBy string) (*coretypes.ResultTxSearch, error)
	BlockSearch(ctx context.Context, query string, page, perPage *int, orderBy string) (*coretypes.ResultBlockSearch, error)
	BlockResults(ctx context.Context, height *int64) (*coretypes.ResultBlockResults, error)
	BroadcastTxSync(ctx context.Context, tx tmtypes.Tx) (*coretypes.ResultBroadcastTx, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*coretypes.ResultTx, error)
}

type CosmosProviderConfig struct {
	ChainID      string `json:"chain-id" yaml:"chain-id"`
	RPCAddr      string `json:"rpc-addr" yaml:"rpc-addr"`
	Timeout      string `json:"timeout" yaml:"timeout"`
	BlockTimeout string `json:"block-timeout" yaml:"block-timeout"`
	BlockTime    string `json:"block-time" yaml:"block-time"`
	IndexerTime  string `json:"indexer-time" yaml:"indexer-time"`
}

func (pc CosmosProviderConfig) Validate() error {
	if pc.ChainID == "" {
		return errors.New("chain-id is required")
	}
	if pc.RPCAddr == "" {
		return errors.New("rpc-addr is required")
	}
	for name, d := range map[string]string{
		"timeout":       pc.Timeout,
		"block-timeout": pc.BlockTimeout,
		"block-time":    pc.BlockTime,
		"indexer-time":  pc.IndexerTime,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// NewProvider validates the config and connects a CosmosProvider to the chain's RPC endpoint.
// A nil signer gives a read only provider.
func (pc CosmosProviderConfig) NewProvider(log *zap.Logger, signer TxSigner) (*CosmosProvider, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	timeout := durationOr(pc.Timeout, defaultTimeout)
	client, err := rpchttp.NewWithTimeout(pc.RPCAddr, "/websocket", uint(timeout.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client for %s: %w", pc.RPCAddr, err)
	}
	return newProvider(pc, log, client, signer), nil
}

func newProvider(pc CosmosProviderConfig, log *zap.Logger, client rpcClient, signer TxSigner) *CosmosProvider {
	return &CosmosProvider{
		log:           log.With(zap.String("chain_id", pc.ChainID)),
		PCfg:          pc,
		RPCClient:     client,
		signer:        signer,
		blockTime:     durationOr(pc.BlockTime, defaultBlockTime),
		indexerTime:   durationOr(pc.IndexerTime, 0),
		broadcastWait: durationOr(pc.BlockTimeout, defaultBroadcastWaitTimeout),
	}
}

// durationOr parses a validated duration, returning def for the empty string.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// CosmosProvider talks to a Cosmos SDK chain with the ibc module through Tendermint RPC.
type CosmosProvider struct {
	log       *zap.Logger
	PCfg      CosmosProviderConfig
	RPCClient rpcClient
	signer    TxSigner

	blockTime     time.Duration
	indexerTime   time.Duration
	broadcastWait time.Duration
}

func (cc *CosmosProvider) ChainID() string {
	return cc.PCfg.ChainID
}

func (cc *CosmosProvider) EstimatedBlockTime() time.Duration {
	return cc.blockTime
}

func (cc *CosmosProvider) EstimatedIndexerTime() time.Duration {
	return cc.indexerTime
}
