package cosmos

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	stakingtypes "github.com/cosmos/cosmos-sdk/x/staking/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	abci "github.com/tendermint/tendermint/abci/types"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	tmtypes "github.com/tendermint/tendermint/types"
)

const (
	validatorsPerPage = 100

	stakingParamsPath    = "/cosmos.staking.v1beta1.Query/Params"
	unreceivedPacketPath = "/ibc.core.channel.v1.Query/UnreceivedPackets"
	unreceivedAcksPath   = "/ibc.core.channel.v1.Query/UnreceivedAcks"
)

var ibcStorePath = fmt.Sprintf("store/%s/key", host.StoreKey)

// QueryABCI runs an ABCI query and turns a non-zero response code into an error.
func (cc *CosmosProvider) QueryABCI(ctx context.Context, req abci.RequestQuery) (abci.ResponseQuery, error) {
	opts := rpcclient.ABCIQueryOptions{
		Height: req.Height,
		Prove:  req.Prove,
	}
	result, err := cc.RPCClient.ABCIQueryWithOptions(ctx, req.Path, req.Data, opts)
	if err != nil {
		return abci.ResponseQuery{}, err
	}
	if !result.Response.IsOK() {
		return abci.ResponseQuery{}, sdkerrors.ABCIError(result.Response.Codespace, result.Response.Code, result.Response.Log)
	}
	return result.Response, nil
}

// queryGRPC runs a gRPC query method over ABCI at the latest height.
func (cc *CosmosProvider) queryGRPC(ctx context.Context, path string, req, res codec.ProtoMarshaler) error {
	bz, err := req.Marshal()
	if err != nil {
		return err
	}
	resp, err := cc.QueryABCI(ctx, abci.RequestQuery{Path: path, Data: bz})
	if err != nil {
		return fmt.Errorf("query %s on %s: %w", path, cc.ChainID(), err)
	}
	return res.Unmarshal(resp.Value)
}

// queryState returns the latest value stored under key in the ibc store, nil if absent.
func (cc *CosmosProvider) queryState(ctx context.Context, key []byte) ([]byte, error) {
	resp, err := cc.QueryABCI(ctx, abci.RequestQuery{Path: ibcStorePath, Data: key})
	if err != nil {
		return nil, fmt.Errorf("query %s on %s: %w", key, cc.ChainID(), err)
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	return resp.Value, nil
}

func (cc *CosmosProvider) QueryLatestHeight(ctx context.Context) (int64, error) {
	status, err := cc.RPCClient.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

func (cc *CosmosProvider) QuerySignedHeader(ctx context.Context, height int64) (*tmtypes.SignedHeader, error) {
	var h *int64
	if height > 0 {
		h = &height
	}
	commit, err := cc.RPCClient.Commit(ctx, h)
	if err != nil {
		return nil, err
	}
	return &commit.SignedHeader, nil
}

// QueryValidatorSet pages through the validators at height.
func (cc *CosmosProvider) QueryValidatorSet(ctx context.Context, height int64) (*tmtypes.ValidatorSet, error) {
	var (
		vals    []*tmtypes.Validator
		page    = 1
		perPage = validatorsPerPage
	)
	for {
		res, err := cc.RPCClient.Validators(ctx, &height, &page, &perPage)
		if err != nil {
			return nil, err
		}
		vals = append(vals, res.Validators...)
		if len(vals) >= res.Total || len(res.Validators) == 0 {
			break
		}
		page++
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no validators at height %d: %w", height, provider.ErrNotFound)
	}
	return tmtypes.NewValidatorSet(vals), nil
}

func (cc *CosmosProvider) QueryUnbondingPeriod(ctx context.Context) (time.Duration, error) {
	var res stakingtypes.QueryParamsResponse
	if err := cc.queryGRPC(ctx, stakingParamsPath, &stakingtypes.QueryParamsRequest{}, &res); err != nil {
		return 0, err
	}
	return res.Params.UnbondingTime, nil
}

// QueryProof queries key in the ibc store at IAVL version height. The proof is the
// proto encoded merkle proof the ibc module verifies against the app hash of block height+1.
func (cc *CosmosProvider) QueryProof(ctx context.Context, height int64, key []byte) ([]byte, []byte, error) {
	if height <= 0 {
		return nil, nil, fmt.Errorf("proof queries at height %d are not supported", height)
	}
	resp, err := cc.QueryABCI(ctx, abci.RequestQuery{
		Path:   ibcStorePath,
		Height: height,
		Data:   key,
		Prove:  true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("proof query %s on %s at %d: %w", key, cc.ChainID(), height, err)
	}

	merkleProof, err := commitmenttypes.ConvertProofs(resp.ProofOps)
	if err != nil {
		return nil, nil, err
	}
	proofBz, err := provider.Cdc.Marshal(&merkleProof)
	if err != nil {
		return nil, nil, err
	}

	var value []byte
	if len(resp.Value) > 0 {
		value = resp.Value
	}
	return value, proofBz, nil
}

func (cc *CosmosProvider) QueryClientState(ctx context.Context, clientID string) (*ibctmtypes.ClientState, error) {
	bz, err := cc.queryState(ctx, host.FullClientStateKey(clientID))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("client %s on %s: %w", clientID, cc.ChainID(), provider.ErrNotFound)
	}
	return provider.UnmarshalClientState(bz)
}

func (cc *CosmosProvider) QueryConsensusState(ctx context.Context, clientID string, height clienttypes.Height) (*ibctmtypes.ConsensusState, error) {
	bz, err := cc.queryState(ctx, host.FullConsensusStateKey(clientID, height))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("consensus state %s of client %s on %s: %w", height, clientID, cc.ChainID(), provider.ErrNotFound)
	}
	return provider.UnmarshalConsensusState(bz)
}

func (cc *CosmosProvider) QueryConnection(ctx context.Context, connectionID string) (*conntypes.ConnectionEnd, error) {
	bz, err := cc.queryState(ctx, host.ConnectionKey(connectionID))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("connection %s on %s: %w", connectionID, cc.ChainID(), provider.ErrNotFound)
	}
	var conn conntypes.ConnectionEnd
	if err := provider.Cdc.Unmarshal(bz, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func (cc *CosmosProvider) QueryChannel(ctx context.Context, portID, channelID string) (*chantypes.Channel, error) {
	bz, err := cc.queryState(ctx, host.ChannelKey(portID, channelID))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("channel %s/%s on %s: %w", portID, channelID, cc.ChainID(), provider.ErrNotFound)
	}
	var channel chantypes.Channel
	if err := provider.Cdc.Unmarshal(bz, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (cc *CosmosProvider) QueryPacketCommitment(ctx context.Context, portID, channelID string, seq uint64) ([]byte, error) {
	return cc.queryState(ctx, host.PacketCommitmentKey(portID, channelID, seq))
}

func (cc *CosmosProvider) QueryUnreceivedPackets(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error) {
	var res chantypes.QueryUnreceivedPacketsResponse
	req := &chantypes.QueryUnreceivedPacketsRequest{
		PortId:                    portID,
		ChannelId:                 channelID,
		PacketCommitmentSequences: seqs,
	}
	if err := cc.queryGRPC(ctx, unreceivedPacketPath, req, &res); err != nil {
		return nil, err
	}
	return res.Sequences, nil
}

func (cc *CosmosProvider) QueryUnreceivedAcks(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error) {
	var res chantypes.QueryUnreceivedAcksResponse
	req := &chantypes.QueryUnreceivedAcksRequest{
		PortId:             portID,
		ChannelId:          channelID,
		PacketAckSequences: seqs,
	}
	if err := cc.queryGRPC(ctx, unreceivedAcksPath, req, &res); err != nil {
		return nil, err
	}
	return res.Sequences, nil
}

func (cc *CosmosProvider) QueryNextSequenceReceive(ctx context.Context, portID, channelID string) (uint64, error) {
	bz, err := cc.queryState(ctx, host.NextSequenceRecvKey(portID, channelID))
	if err != nil {
		return 0, err
	}
	if bz == nil {
		return 0, fmt.Errorf("next sequence receive of %s/%s on %s: %w", portID, channelID, cc.ChainID(), provider.ErrNotFound)
	}
	return sdk.BigEndianToUint64(bz), nil
}
