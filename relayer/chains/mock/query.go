package mock

import (
	"context"
	"fmt"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	tmtypes "github.com/tendermint/tendermint/types"
)

func (c *Chain) ChainID() string {
	return c.cfg.ChainID
}

func (c *Chain) EstimatedBlockTime() time.Duration {
	return c.cfg.BlockTime
}

func (c *Chain) EstimatedIndexerTime() time.Duration {
	return c.cfg.IndexerTime
}

func (c *Chain) QueryLatestHeight(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeProduceBlockLocked()
	return c.height, nil
}

func (c *Chain) QuerySignedHeader(ctx context.Context, height int64) (*tmtypes.SignedHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height == 0 {
		c.maybeProduceBlockLocked()
		height = c.height
	}
	b, ok := c.blocks[height]
	if !ok {
		return nil, fmt.Errorf("header %d on %s: %w", height, c.cfg.ChainID, provider.ErrNotFound)
	}
	return b.header, nil
}

// QueryValidatorSet returns the validator set of height. The set never changes;
// the set of the block after the latest one is already known.
func (c *Chain) QueryValidatorSet(ctx context.Context, height int64) (*tmtypes.ValidatorSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height < 1 || height > c.height+1 {
		return nil, fmt.Errorf("validator set %d on %s: %w", height, c.cfg.ChainID, provider.ErrNotFound)
	}
	return c.valSet.Copy(), nil
}

func (c *Chain) QueryUnbondingPeriod(ctx context.Context) (time.Duration, error) {
	return c.cfg.UnbondingPeriod, nil
}

// QueryProof reads key at version height. Only versions committed to by an
// existing header can be proven.
func (c *Chain) QueryProof(ctx context.Context, height int64, key []byte) ([]byte, []byte, error) {
	c.mu.Lock()
	latest := c.height
	c.mu.Unlock()
	if height < 0 || height >= latest {
		return nil, nil, fmt.Errorf("cannot prove %s at %d on %s, latest height is %d", key, height, c.cfg.ChainID, latest)
	}
	value, err := c.store.get(key, height)
	if err != nil {
		return nil, nil, err
	}
	return value, proof(c.cfg.ChainID, height, key, value), nil
}

// latest reads the state as of the last transaction.
func (c *Chain) latest(key []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(key, c.height)
}

func (c *Chain) QueryClientState(ctx context.Context, clientID string) (*ibctmtypes.ClientState, error) {
	cs, err := loadClientState(c.latest, clientID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("client %s on %s: %w", clientID, c.cfg.ChainID, provider.ErrNotFound)
	}
	return cs, nil
}

func (c *Chain) QueryConsensusState(ctx context.Context, clientID string, height clienttypes.Height) (*ibctmtypes.ConsensusState, error) {
	cons, err := loadConsensusState(c.latest, clientID, height)
	if err != nil {
		return nil, err
	}
	if cons == nil {
		return nil, fmt.Errorf("consensus state %s of client %s on %s: %w", height, clientID, c.cfg.ChainID, provider.ErrNotFound)
	}
	return cons, nil
}

func (c *Chain) QueryConnection(ctx context.Context, connectionID string) (*conntypes.ConnectionEnd, error) {
	conn, err := loadConnection(c.latest, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s on %s: %w", connectionID, c.cfg.ChainID, provider.ErrNotFound)
	}
	return conn, nil
}

func (c *Chain) QueryChannel(ctx context.Context, portID, channelID string) (*chantypes.Channel, error) {
	channel, err := loadChannel(c.latest, portID, channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("channel %s/%s on %s: %w", portID, channelID, c.cfg.ChainID, provider.ErrNotFound)
	}
	return channel, nil
}

func (c *Chain) QueryPacketCommitment(ctx context.Context, portID, channelID string, seq uint64) ([]byte, error) {
	return c.latest(host.PacketCommitmentKey(portID, channelID, seq))
}

// QueryUnreceivedPackets filters seqs down to the packets the channel end has not received.
func (c *Chain) QueryUnreceivedPackets(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error) {
	channel, err := c.QueryChannel(ctx, portID, channelID)
	if err != nil {
		return nil, err
	}

	var nextRecv uint64
	if channel.Ordering == chantypes.ORDERED {
		if nextRecv, err = loadSequence(c.latest, host.NextSequenceRecvKey(portID, channelID)); err != nil {
			return nil, err
		}
	}

	var unreceived []uint64
	for _, seq := range seqs {
		if channel.Ordering == chantypes.ORDERED {
			if seq >= nextRecv {
				unreceived = append(unreceived, seq)
			}
			continue
		}
		receipt, err := c.latest(host.PacketReceiptKey(portID, channelID, seq))
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			unreceived = append(unreceived, seq)
		}
	}
	return unreceived, nil
}

// QueryUnreceivedAcks filters seqs down to the packets sent on the channel end whose
// acknowledgement was not processed yet, i.e. whose commitment still exists.
func (c *Chain) QueryUnreceivedAcks(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error) {
	var unreceived []uint64
	for _, seq := range seqs {
		commitment, err := c.latest(host.PacketCommitmentKey(portID, channelID, seq))
		if err != nil {
			return nil, err
		}
		if commitment != nil {
			unreceived = append(unreceived, seq)
		}
	}
	return unreceived, nil
}

func (c *Chain) QueryNextSequenceReceive(ctx context.Context, portID, channelID string) (uint64, error) {
	if _, err := c.QueryChannel(ctx, portID, channelID); err != nil {
		return 0, err
	}
	return loadSequence(c.latest, host.NextSequenceRecvKey(portID, channelID))
}
