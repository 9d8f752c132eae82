package mock

import (
	"bytes"
	"context"
	"encoding/hex"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	transfertypes "github.com/cosmos/ibc-go/v3/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	"github.com/cosmos/link-relayer/relayer/provider"
)

func packetAttributes(packet chantypes.Packet, channel *chantypes.Channel) map[string]string {
	return map[string]string{
		chantypes.AttributeKeyData:             string(packet.Data),
		chantypes.AttributeKeyDataHex:          hex.EncodeToString(packet.Data),
		chantypes.AttributeKeyTimeoutHeight:    packet.TimeoutHeight.String(),
		chantypes.AttributeKeyTimeoutTimestamp: strconv.FormatUint(packet.TimeoutTimestamp, 10),
		chantypes.AttributeKeySequence:         strconv.FormatUint(packet.Sequence, 10),
		chantypes.AttributeKeySrcPort:          packet.SourcePort,
		chantypes.AttributeKeySrcChannel:       packet.SourceChannel,
		chantypes.AttributeKeyDstPort:          packet.DestinationPort,
		chantypes.AttributeKeyDstChannel:       packet.DestinationChannel,
		chantypes.AttributeKeyChannelOrdering:  channel.Ordering.String(),
		chantypes.AttributeKeyConnection:       channel.ConnectionHops[0],
	}
}

// openChannel loads a channel that must be OPEN over an OPEN connection.
func (tx *txContext) openChannel(portID, channelID string) (*chantypes.Channel, *conntypes.ConnectionEnd, error) {
	channel, err := loadChannel(tx.get, portID, channelID)
	if err != nil {
		return nil, nil, err
	}
	if channel == nil {
		return nil, nil, sdkerrors.Wrapf(chantypes.ErrChannelNotFound, "%s/%s", portID, channelID)
	}
	if channel.State != chantypes.OPEN {
		return nil, nil, sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "channel %s/%s is %s", portID, channelID, channel.State)
	}
	conn, err := tx.openConnection(channel.ConnectionHops[0])
	if err != nil {
		return nil, nil, err
	}
	return channel, conn, nil
}

func (tx *txContext) sendPacket(portID, channelID string, channel *chantypes.Channel, data []byte, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (chantypes.Packet, error) {
	seqKey := host.NextSequenceSendKey(portID, channelID)
	seq, err := loadSequence(tx.get, seqKey)
	if err != nil {
		return chantypes.Packet{}, err
	}
	packet := chantypes.NewPacket(data, seq, portID, channelID,
		channel.Counterparty.PortId, channel.Counterparty.ChannelId, timeoutHeight, timeoutTimestamp)
	if err := packet.ValidateBasic(); err != nil {
		return chantypes.Packet{}, err
	}

	tx.set(seqKey, sdk.Uint64ToBigEndian(seq+1))
	tx.set(host.PacketCommitmentKey(portID, channelID, seq), chantypes.CommitPacket(provider.Cdc, packet))
	tx.emit(chantypes.EventTypeSendPacket, packetAttributes(packet, channel))
	return packet, nil
}

// Transfer sends an ICS-20 packet from the chain's own account. Like the transfer
// module, it refuses timeouts the receiving chain already passed according to the
// channel's light client.
func (c *Chain) Transfer(ctx context.Context, sourcePort, sourceChannel string, amount sdk.Coin, receiver string, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if !amount.IsValid() || !amount.IsPositive() {
			return sdkerrors.Wrap(sdkerrors.ErrInvalidCoins, amount.String())
		}
		if timeoutHeight.IsZero() && timeoutTimestamp == 0 {
			return sdkerrors.Wrap(transfertypes.ErrInvalidPacketTimeout, "timeout height and timestamp cannot both be zero")
		}
		channel, conn, err := tx.openChannel(sourcePort, sourceChannel)
		if err != nil {
			return err
		}

		cs, err := loadClientState(tx.get, conn.ClientId)
		if err != nil {
			return err
		}
		if cs == nil {
			return sdkerrors.Wrap(clienttypes.ErrClientNotFound, conn.ClientId)
		}
		if !timeoutHeight.IsZero() && cs.LatestHeight.GTE(timeoutHeight) {
			return sdkerrors.Wrapf(chantypes.ErrPacketTimeout,
				"receiving chain is already at %s, timeout height is %s", cs.LatestHeight, timeoutHeight)
		}
		if timeoutTimestamp != 0 {
			cons, err := loadConsensusState(tx.get, conn.ClientId, cs.LatestHeight)
			if err != nil {
				return err
			}
			if cons != nil && uint64(cons.Timestamp.UnixNano()) >= timeoutTimestamp {
				return sdkerrors.Wrapf(chantypes.ErrPacketTimeout,
					"receiving chain is already at %s, timeout timestamp is %d", cons.Timestamp, timeoutTimestamp)
			}
		}

		data := transfertypes.NewFungibleTokenPacketData(amount.Denom, amount.Amount.String(), c.address, receiver).GetBytes()
		_, err = tx.sendPacket(sourcePort, sourceChannel, channel, data, timeoutHeight, timeoutTimestamp)
		return err
	})
}

// SendPacketInEndBlock sends a packet from the end block logic of the current block,
// the way modules do that do not send packets from transactions. The packet shows up
// in block events only.
func (c *Chain) SendPacketInEndBlock(portID, channelID string, data []byte, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (chantypes.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.newTx(c.height)
	channel, _, err := tx.openChannel(portID, channelID)
	if err != nil {
		return chantypes.Packet{}, err
	}
	packet, err := tx.sendPacket(portID, channelID, channel, data, timeoutHeight, timeoutTimestamp)
	if err != nil {
		return chantypes.Packet{}, err
	}
	if err := c.commitLocked(tx); err != nil {
		return chantypes.Packet{}, err
	}
	b := c.blocks[c.height]
	b.events = append(b.events, tx.events...)
	return packet, nil
}

// acknowledge is the acknowledgement the receiving application writes for data.
func acknowledge(data []byte) []byte {
	var ftpd transfertypes.FungibleTokenPacketData
	if err := transfertypes.ModuleCdc.UnmarshalJSON(data, &ftpd); err != nil {
		return chantypes.NewErrorAcknowledgement("cannot unmarshal ICS-20 transfer packet data").Acknowledgement()
	}
	if err := ftpd.ValidateBasic(); err != nil {
		return chantypes.NewErrorAcknowledgement(err.Error()).Acknowledgement()
	}
	return chantypes.NewResultAcknowledgement([]byte{byte(1)}).Acknowledgement()
}

// RecvPackets receives packets in one transaction. Packets that were already
// received are skipped.
func (c *Chain) RecvPackets(ctx context.Context, packets []chantypes.Packet, proofs []provider.PacketProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if len(packets) != len(proofs) {
			return sdkerrors.Wrapf(sdkerrors.ErrInvalidRequest, "%d packets with %d proofs", len(packets), len(proofs))
		}
		for i, packet := range packets {
			if err := tx.recvPacket(packet, proofs[i]); err != nil {
				return sdkerrors.Wrapf(err, "packet %d", packet.Sequence)
			}
		}
		return nil
	})
}

func (tx *txContext) recvPacket(packet chantypes.Packet, proof provider.PacketProof) error {
	channel, conn, err := tx.openChannel(packet.DestinationPort, packet.DestinationChannel)
	if err != nil {
		return err
	}
	if packet.SourcePort != channel.Counterparty.PortId || packet.SourceChannel != channel.Counterparty.ChannelId {
		return sdkerrors.Wrapf(chantypes.ErrInvalidPacket, "packet source %s/%s does not match channel counterparty %s/%s",
			packet.SourcePort, packet.SourceChannel, channel.Counterparty.PortId, channel.Counterparty.ChannelId)
	}
	if !packet.TimeoutHeight.IsZero() && tx.selfHeight().GTE(packet.TimeoutHeight) {
		return sdkerrors.Wrapf(chantypes.ErrPacketTimeout, "block height %s >= timeout height %s", tx.selfHeight(), packet.TimeoutHeight)
	}
	if packet.TimeoutTimestamp != 0 && uint64(tx.time.UnixNano()) >= packet.TimeoutTimestamp {
		return sdkerrors.Wrapf(chantypes.ErrPacketTimeout, "block time %d >= timeout timestamp %d", tx.time.UnixNano(), packet.TimeoutTimestamp)
	}

	recvKey := host.NextSequenceRecvKey(packet.DestinationPort, packet.DestinationChannel)
	receiptKey := host.PacketReceiptKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence)
	var nextRecv uint64
	if channel.Ordering == chantypes.ORDERED {
		if nextRecv, err = loadSequence(tx.get, recvKey); err != nil {
			return err
		}
		if packet.Sequence < nextRecv {
			return nil
		}
		if packet.Sequence > nextRecv {
			return sdkerrors.Wrapf(chantypes.ErrPacketSequenceOutOfOrder, "expected %d", nextRecv)
		}
	} else {
		receipt, err := tx.get(receiptKey)
		if err != nil {
			return err
		}
		if receipt != nil {
			return nil
		}
	}

	commitment, err := tx.verify(conn.ClientId, proof.ProofHeight,
		host.PacketCommitmentKey(packet.SourcePort, packet.SourceChannel, packet.Sequence), proof.Proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(commitment, chantypes.CommitPacket(provider.Cdc, packet)) {
		return sdkerrors.Wrap(clienttypes.ErrFailedPacketCommitmentVerification, "packet does not match proven commitment")
	}

	if channel.Ordering == chantypes.ORDERED {
		tx.set(recvKey, sdk.Uint64ToBigEndian(nextRecv+1))
	} else {
		tx.set(receiptKey, []byte{byte(1)})
	}
	ack := acknowledge(packet.Data)
	tx.set(host.PacketAcknowledgementKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence), chantypes.CommitAcknowledgement(ack))

	tx.emit(chantypes.EventTypeRecvPacket, packetAttributes(packet, channel))
	attrs := packetAttributes(packet, channel)
	attrs[chantypes.AttributeKeyAck] = string(ack)
	attrs[chantypes.AttributeKeyAckHex] = hex.EncodeToString(ack)
	tx.emit(chantypes.EventTypeWriteAck, attrs)
	return nil
}

// AcknowledgePackets processes acknowledgements in one transaction. Packets whose
// commitment is already gone are skipped.
func (c *Chain) AcknowledgePackets(ctx context.Context, acks []provider.Ack, proofs []provider.PacketProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if len(acks) != len(proofs) {
			return sdkerrors.Wrapf(sdkerrors.ErrInvalidRequest, "%d acks with %d proofs", len(acks), len(proofs))
		}
		for i, ack := range acks {
			if err := tx.acknowledgePacket(ack, proofs[i]); err != nil {
				return sdkerrors.Wrapf(err, "packet %d", ack.OriginalPacket.Sequence)
			}
		}
		return nil
	})
}

// sentPacket checks packet against the channel end that sent it and returns its
// stored commitment, nil if it was already acknowledged or timed out.
func (tx *txContext) sentPacket(packet chantypes.Packet) (*chantypes.Channel, *conntypes.ConnectionEnd, []byte, error) {
	channel, conn, err := tx.openChannel(packet.SourcePort, packet.SourceChannel)
	if err != nil {
		return nil, nil, nil, err
	}
	if packet.DestinationPort != channel.Counterparty.PortId || packet.DestinationChannel != channel.Counterparty.ChannelId {
		return nil, nil, nil, sdkerrors.Wrapf(chantypes.ErrInvalidPacket, "packet destination %s/%s does not match channel counterparty %s/%s",
			packet.DestinationPort, packet.DestinationChannel, channel.Counterparty.PortId, channel.Counterparty.ChannelId)
	}
	commitment, err := tx.get(host.PacketCommitmentKey(packet.SourcePort, packet.SourceChannel, packet.Sequence))
	if err != nil {
		return nil, nil, nil, err
	}
	if commitment != nil && !bytes.Equal(commitment, chantypes.CommitPacket(provider.Cdc, packet)) {
		return nil, nil, nil, sdkerrors.Wrap(chantypes.ErrInvalidPacket, "packet does not match stored commitment")
	}
	return channel, conn, commitment, nil
}

func (tx *txContext) acknowledgePacket(ack provider.Ack, proof provider.PacketProof) error {
	packet := ack.OriginalPacket
	channel, conn, commitment, err := tx.sentPacket(packet)
	if err != nil {
		return err
	}
	if commitment == nil {
		return nil
	}

	proven, err := tx.verify(conn.ClientId, proof.ProofHeight,
		host.PacketAcknowledgementKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence), proof.Proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(proven, chantypes.CommitAcknowledgement(ack.Acknowledgement)) {
		return sdkerrors.Wrap(clienttypes.ErrFailedPacketAckVerification, "acknowledgement does not match proven commitment")
	}

	if channel.Ordering == chantypes.ORDERED {
		ackKey := host.NextSequenceAckKey(packet.SourcePort, packet.SourceChannel)
		next, err := loadSequence(tx.get, ackKey)
		if err != nil {
			return err
		}
		if packet.Sequence != next {
			return sdkerrors.Wrapf(chantypes.ErrPacketSequenceOutOfOrder, "expected %d", next)
		}
		tx.set(ackKey, sdk.Uint64ToBigEndian(next+1))
	}

	tx.delete(host.PacketCommitmentKey(packet.SourcePort, packet.SourceChannel, packet.Sequence))
	tx.emit(chantypes.EventTypeAcknowledgePacket, packetAttributes(packet, channel))
	return nil
}

// TimeoutPackets times out packets in one transaction. Packets whose commitment is
// already gone are skipped. A timeout closes an ordered channel.
func (c *Chain) TimeoutPackets(ctx context.Context, packets []chantypes.Packet, proofs []provider.TimeoutProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if len(packets) != len(proofs) {
			return sdkerrors.Wrapf(sdkerrors.ErrInvalidRequest, "%d packets with %d proofs", len(packets), len(proofs))
		}
		for i, packet := range packets {
			if err := tx.timeoutPacket(packet, proofs[i]); err != nil {
				return sdkerrors.Wrapf(err, "packet %d", packet.Sequence)
			}
		}
		return nil
	})
}

func (tx *txContext) timeoutPacket(packet chantypes.Packet, proof provider.TimeoutProof) error {
	channel, conn, commitment, err := tx.sentPacket(packet)
	if err != nil {
		return err
	}
	if commitment == nil {
		return nil
	}

	cons, err := loadConsensusState(tx.get, conn.ClientId, proof.ProofHeight)
	if err != nil {
		return err
	}
	if cons == nil {
		return sdkerrors.Wrapf(clienttypes.ErrConsensusStateNotFound, "client %s at %s", conn.ClientId, proof.ProofHeight)
	}
	heightExpired := !packet.TimeoutHeight.IsZero() && proof.ProofHeight.GTE(packet.TimeoutHeight)
	timeExpired := packet.TimeoutTimestamp != 0 && uint64(cons.Timestamp.UnixNano()) >= packet.TimeoutTimestamp
	if !heightExpired && !timeExpired {
		return sdkerrors.Wrap(chantypes.ErrPacketTimeout, "packet timeout has not been reached")
	}

	if channel.Ordering == chantypes.ORDERED {
		if packet.Sequence < proof.NextSequenceRecv {
			return sdkerrors.Wrapf(chantypes.ErrPacketReceived, "next sequence receive is %d", proof.NextSequenceRecv)
		}
		bz, err := tx.verify(conn.ClientId, proof.ProofHeight,
			host.NextSequenceRecvKey(packet.DestinationPort, packet.DestinationChannel), proof.Proof)
		if err != nil {
			return err
		}
		if len(bz) != 8 || sdk.BigEndianToUint64(bz) != proof.NextSequenceRecv {
			return sdkerrors.Wrap(clienttypes.ErrFailedNextSeqRecvVerification, "next sequence receive does not match proven value")
		}
	} else {
		receipt, err := tx.verify(conn.ClientId, proof.ProofHeight,
			host.PacketReceiptKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence), proof.Proof)
		if err != nil {
			return err
		}
		if receipt != nil {
			return sdkerrors.Wrap(clienttypes.ErrFailedPacketReceiptVerification, "packet was received")
		}
	}

	tx.delete(host.PacketCommitmentKey(packet.SourcePort, packet.SourceChannel, packet.Sequence))
	tx.emit(chantypes.EventTypeTimeoutPacket, packetAttributes(packet, channel))
	if channel.Ordering == chantypes.ORDERED {
		channel.State = chantypes.CLOSED
		tx.setChannel(packet.SourcePort, packet.SourceChannel, *channel)
	}
	return nil
}
