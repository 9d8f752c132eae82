package relayer

import (
	"context"
	"fmt"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// All proofs are queried at headerHeight-1: the app hash committed in block H
// is the application state after executing block H-1.
func proofVersion(headerHeight clienttypes.Height) (int64, error) {
	if headerHeight.RevisionHeight == 0 {
		return 0, fmt.Errorf("cannot prove state below header height %s", headerHeight)
	}
	return int64(headerHeight.RevisionHeight) - 1, nil
}

// BuildConnectionProof proves the connection end, the client state and the
// client's latest consensus state against a header of headerHeight.
func BuildConnectionProof(ctx context.Context, p provider.QueryProvider, clientID, connectionID string, headerHeight clienttypes.Height) (provider.ConnectionHandshakeProof, error) {
	var proof provider.ConnectionHandshakeProof
	version, err := proofVersion(headerHeight)
	if err != nil {
		return proof, err
	}

	clientBz, proofClient, err := p.QueryProof(ctx, version, host.FullClientStateKey(clientID))
	if err != nil {
		return proof, fmt.Errorf("failed to prove client %s on %s: %w", clientID, p.ChainID(), err)
	}
	if len(clientBz) == 0 {
		return proof, fmt.Errorf("client %s on %s at %d: %w", clientID, p.ChainID(), version, provider.ErrNotFound)
	}
	clientState, err := provider.UnmarshalClientState(clientBz)
	if err != nil {
		return proof, err
	}

	consensusHeight := clientState.LatestHeight
	_, proofConsensus, err := p.QueryProof(ctx, version, host.FullConsensusStateKey(clientID, consensusHeight))
	if err != nil {
		return proof, fmt.Errorf("failed to prove consensus state %s of client %s on %s: %w", consensusHeight, clientID, p.ChainID(), err)
	}

	_, proofConnection, err := p.QueryProof(ctx, version, host.ConnectionKey(connectionID))
	if err != nil {
		return proof, fmt.Errorf("failed to prove connection %s on %s: %w", connectionID, p.ChainID(), err)
	}

	return provider.ConnectionHandshakeProof{
		ClientID:        clientID,
		ConnectionID:    connectionID,
		ClientState:     clientState,
		ProofHeight:     headerHeight,
		ProofConnection: proofConnection,
		ProofClient:     proofClient,
		ProofConsensus:  proofConsensus,
		ConsensusHeight: consensusHeight,
	}, nil
}

// BuildChannelProof proves a channel end against a header of headerHeight.
func BuildChannelProof(ctx context.Context, p provider.QueryProvider, portID, channelID string, headerHeight clienttypes.Height) (provider.ChannelHandshakeProof, error) {
	version, err := proofVersion(headerHeight)
	if err != nil {
		return provider.ChannelHandshakeProof{}, err
	}
	_, proof, err := p.QueryProof(ctx, version, host.ChannelKey(portID, channelID))
	if err != nil {
		return provider.ChannelHandshakeProof{}, fmt.Errorf("failed to prove channel %s/%s on %s: %w", portID, channelID, p.ChainID(), err)
	}
	return provider.ChannelHandshakeProof{
		PortID:      portID,
		ChannelID:   channelID,
		ProofHeight: headerHeight,
		Proof:       proof,
	}, nil
}

// BuildPacketProof proves the commitment of a packet on its source chain.
func BuildPacketProof(ctx context.Context, p provider.QueryProvider, packet chantypes.Packet, headerHeight clienttypes.Height) (provider.PacketProof, error) {
	key := host.PacketCommitmentKey(packet.SourcePort, packet.SourceChannel, packet.Sequence)
	return buildPacketStateProof(ctx, p, key, headerHeight)
}

// BuildAckProof proves an acknowledgement on the chain that received the packet.
func BuildAckProof(ctx context.Context, p provider.QueryProvider, packet chantypes.Packet, headerHeight clienttypes.Height) (provider.PacketProof, error) {
	key := host.PacketAcknowledgementKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence)
	return buildPacketStateProof(ctx, p, key, headerHeight)
}

func buildPacketStateProof(ctx context.Context, p provider.QueryProvider, key []byte, headerHeight clienttypes.Height) (provider.PacketProof, error) {
	version, err := proofVersion(headerHeight)
	if err != nil {
		return provider.PacketProof{}, err
	}
	value, proof, err := p.QueryProof(ctx, version, key)
	if err != nil {
		return provider.PacketProof{}, fmt.Errorf("failed to query %s on %s: %w", key, p.ChainID(), err)
	}
	if len(value) == 0 {
		return provider.PacketProof{}, fmt.Errorf("%s on %s at %d: %w", key, p.ChainID(), version, provider.ErrNotFound)
	}
	return provider.PacketProof{Proof: proof, ProofHeight: headerHeight}, nil
}

// BuildTimeoutProof proves on the destination chain that a packet was not received.
// Unordered channels prove the absence of the packet receipt, ordered channels
// prove the next expected sequence.
func BuildTimeoutProof(ctx context.Context, p provider.QueryProvider, packet chantypes.Packet, ordering chantypes.Order, headerHeight clienttypes.Height) (provider.TimeoutProof, error) {
	version, err := proofVersion(headerHeight)
	if err != nil {
		return provider.TimeoutProof{}, err
	}

	nextSeq, err := p.QueryNextSequenceReceive(ctx, packet.DestinationPort, packet.DestinationChannel)
	if err != nil {
		return provider.TimeoutProof{}, fmt.Errorf("failed to query next sequence receive on %s: %w", p.ChainID(), err)
	}

	key := host.PacketReceiptKey(packet.DestinationPort, packet.DestinationChannel, packet.Sequence)
	if ordering == chantypes.ORDERED {
		key = host.NextSequenceRecvKey(packet.DestinationPort, packet.DestinationChannel)
	}
	_, proof, err := p.QueryProof(ctx, version, key)
	if err != nil {
		return provider.TimeoutProof{}, fmt.Errorf("failed to query %s on %s: %w", key, p.ChainID(), err)
	}

	return provider.TimeoutProof{
		Proof:            proof,
		ProofHeight:      headerHeight,
		NextSequenceRecv: nextSeq,
	}, nil
}
