package relayer

import (
	"context"
	"errors"
	"fmt"

	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChannelInfo identifies one end of a channel.
type ChannelInfo struct {
	PortID    string `json:"port-id" yaml:"port-id"`
	ChannelID string `json:"channel-id" yaml:"channel-id"`
}

// ChannelPair identifies both ends of a channel, seen from the side that initialised it.
type ChannelPair struct {
	Src  ChannelInfo `json:"src" yaml:"src"`
	Dest ChannelInfo `json:"dest" yaml:"dest"`
}

// ValidateChannelParams validates a set of port-ids as well as the order.
func ValidateChannelParams(srcPortID, dstPortID string, order chantypes.Order) error {
	if err := host.PortIdentifierValidator(srcPortID); err != nil {
		return err
	}
	if err := host.PortIdentifierValidator(dstPortID); err != nil {
		return err
	}
	if order != chantypes.ORDERED && order != chantypes.UNORDERED {
		return fmt.Errorf("channel order must be either 'ordered' or 'unordered', got %s", order)
	}
	return nil
}

// CreateChannel opens a new channel over the link's connection. The channel is
// initialised on sender and the handshake is completed on both chains.
func (l *Link) CreateChannel(ctx context.Context, sender Side, srcPort, destPort string, ordering chantypes.Order, version string) (ChannelPair, error) {
	if err := ValidateChannelParams(srcPort, destPort, ordering); err != nil {
		return ChannelPair{}, err
	}
	if err := l.assertConnectionsOpen(ctx); err != nil {
		return ChannelPair{}, err
	}

	src, _ := l.ends(sender)
	res, err := src.Provider.ChanOpenInit(ctx, provider.ChannelOpenInitParams{
		PortID:             srcPort,
		ConnectionID:       src.ConnectionID,
		CounterpartyPortID: destPort,
		Ordering:           ordering,
		Version:            version,
	})
	if err := checkTxResponse(src.ChainID(), res, err); err != nil {
		logFailedTx(l.log, src.ChainID(), "channel_open_init", res, err)
		return ChannelPair{}, fmt.Errorf("channel open init on %s: %w", src.ChainID(), err)
	}
	channelID, err := ParseChannelIDFromEvents(res.Events)
	if err != nil {
		return ChannelPair{}, err
	}

	return l.openInitializedChannel(ctx, sender, srcPort, channelID, destPort, ordering, version)
}

// OpenInitializedChannel completes the handshake of a channel already in INIT state on sender.
func (l *Link) OpenInitializedChannel(ctx context.Context, sender Side, srcPort, srcChannel, destPort string, ordering chantypes.Order, version string) (ChannelPair, error) {
	if err := ValidateChannelParams(srcPort, destPort, ordering); err != nil {
		return ChannelPair{}, err
	}
	if err := l.assertConnectionsOpen(ctx); err != nil {
		return ChannelPair{}, err
	}

	src, _ := l.ends(sender)
	channel, err := src.Provider.QueryChannel(ctx, srcPort, srcChannel)
	if errors.Is(err, provider.ErrNotFound) {
		return ChannelPair{}, fmt.Errorf("%w: %s/%s on %s", ErrChannelNotFound, srcPort, srcChannel, src.ChainID())
	}
	if err != nil {
		return ChannelPair{}, fmt.Errorf("failed to query channel %s/%s on %s: %w", srcPort, srcChannel, src.ChainID(), err)
	}
	if channel.State != chantypes.INIT {
		return ChannelPair{}, fmt.Errorf("channel %s/%s on %s is %s, expected %s",
			srcPort, srcChannel, src.ChainID(), channel.State, chantypes.INIT)
	}

	return l.openInitializedChannel(ctx, sender, srcPort, srcChannel, destPort, ordering, version)
}

func (l *Link) openInitializedChannel(ctx context.Context, sender Side, srcPort, srcChannel, destPort string, ordering chantypes.Order, version string) (ChannelPair, error) {
	src, dst := l.ends(sender)

	proofInit, err := l.prepareChannelHandshake(ctx, sender, srcPort, srcChannel)
	if err != nil {
		return ChannelPair{}, err
	}
	res, err := dst.Provider.ChanOpenTry(ctx, provider.ChannelOpenTryParams{
		PortID:                destPort,
		ConnectionID:          dst.ConnectionID,
		CounterpartyPortID:    srcPort,
		CounterpartyChannelID: srcChannel,
		Ordering:              ordering,
		CounterpartyVersion:   version,
		Proof:                 proofInit,
	})
	if err := checkTxResponse(dst.ChainID(), res, err); err != nil {
		logFailedTx(l.log, dst.ChainID(), "channel_open_try", res, err)
		return ChannelPair{}, fmt.Errorf("channel open try on %s: %w", dst.ChainID(), err)
	}
	destChannel, err := ParseChannelIDFromEvents(res.Events)
	if err != nil {
		return ChannelPair{}, err
	}

	// the counterparty may have negotiated a different version
	tryChannel, err := dst.Provider.QueryChannel(ctx, destPort, destChannel)
	if err != nil {
		return ChannelPair{}, fmt.Errorf("failed to query channel %s/%s on %s: %w", destPort, destChannel, dst.ChainID(), err)
	}

	proofTry, err := l.prepareChannelHandshake(ctx, sender.Other(), destPort, destChannel)
	if err != nil {
		return ChannelPair{}, err
	}
	proofTry.Version = tryChannel.Version
	res, err = src.Provider.ChanOpenAck(ctx, srcPort, srcChannel, proofTry)
	if err := checkTxResponse(src.ChainID(), res, err); err != nil {
		logFailedTx(l.log, src.ChainID(), "channel_open_ack", res, err)
		return ChannelPair{}, fmt.Errorf("channel open ack on %s: %w", src.ChainID(), err)
	}

	proofAck, err := l.prepareChannelHandshake(ctx, sender, srcPort, srcChannel)
	if err != nil {
		return ChannelPair{}, err
	}
	res, err = dst.Provider.ChanOpenConfirm(ctx, destPort, destChannel, proofAck)
	if err := checkTxResponse(dst.ChainID(), res, err); err != nil {
		logFailedTx(l.log, dst.ChainID(), "channel_open_confirm", res, err)
		return ChannelPair{}, fmt.Errorf("channel open confirm on %s: %w", dst.ChainID(), err)
	}

	pair := ChannelPair{
		Src:  ChannelInfo{PortID: srcPort, ChannelID: srcChannel},
		Dest: ChannelInfo{PortID: destPort, ChannelID: destChannel},
	}
	l.log.Info(
		"Channel created",
		zap.String("src_chain_id", src.ChainID()),
		zap.String("src_channel_id", srcChannel),
		zap.String("src_port_id", srcPort),
		zap.String("dst_chain_id", dst.ChainID()),
		zap.String("dst_channel_id", destChannel),
		zap.String("dst_port_id", destPort),
		zap.String("version", tryChannel.Version),
	)
	return pair, nil
}

// prepareChannelHandshake waits for the sender's last transaction to be provable,
// updates the sender's client on the other side and proves the sender's channel end.
func (l *Link) prepareChannelHandshake(ctx context.Context, sender Side, portID, channelID string) (provider.ChannelHandshakeProof, error) {
	src, _ := l.ends(sender)
	if err := waitOneBlock(ctx, src.Provider); err != nil {
		return provider.ChannelHandshakeProof{}, err
	}
	headerHeight, err := l.UpdateClient(ctx, sender)
	if err != nil {
		return provider.ChannelHandshakeProof{}, err
	}
	return BuildChannelProof(ctx, src.Provider, portID, channelID, headerHeight)
}

// assertConnectionsOpen checks that both connection ends of the link are OPEN.
func (l *Link) assertConnectionsOpen(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, end := range l.endpoints {
		end := end
		eg.Go(func() error {
			conn, err := end.Provider.QueryConnection(egCtx, end.ConnectionID)
			if errors.Is(err, provider.ErrNotFound) {
				return fmt.Errorf("%w: %s on %s", ErrConnectionNotFound, end.ConnectionID, end.ChainID())
			}
			if err != nil {
				return fmt.Errorf("failed to query connection %s on %s: %w", end.ConnectionID, end.ChainID(), err)
			}
			if conn.State != conntypes.OPEN {
				return fmt.Errorf("%w: %s on %s is %s", ErrConnectionNotOpen, end.ConnectionID, end.ChainID(), conn.State)
			}
			return nil
		})
	}
	return eg.Wait()
}
