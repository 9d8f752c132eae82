package cosmos

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v3/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// counterpartyPrefix is the commitment prefix of the counterparty's ibc store.
var counterpartyPrefix = commitmenttypes.NewMerklePrefix([]byte(host.StoreKey))

func (cc *CosmosProvider) signerAddress() (string, error) {
	if cc.signer == nil {
		return "", ErrNoSigner
	}
	return cc.signer.Address(), nil
}

func (cc *CosmosProvider) CreateClient(ctx context.Context, clientState *ibctmtypes.ClientState, consensusState *ibctmtypes.ConsensusState) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg, err := clienttypes.NewMsgCreateClient(clientState, consensusState, signer)
	if err != nil {
		return nil, err
	}
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) UpdateClient(ctx context.Context, clientID string, header *ibctmtypes.Header) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg, err := clienttypes.NewMsgUpdateClient(clientID, header, signer)
	if err != nil {
		return nil, err
	}
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ConnOpenInit(ctx context.Context, clientID, counterpartyClientID string) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := conntypes.NewMsgConnectionOpenInit(clientID, counterpartyClientID, counterpartyPrefix, conntypes.DefaultIBCVersion, 0, signer)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ConnOpenTry(ctx context.Context, clientID string, proof provider.ConnectionHandshakeProof) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := conntypes.NewMsgConnectionOpenTry(
		"",
		clientID,
		proof.ConnectionID,
		proof.ClientID,
		proof.ClientState,
		counterpartyPrefix,
		conntypes.ExportedVersionsToProto(conntypes.GetCompatibleVersions()),
		0,
		proof.ProofConnection,
		proof.ProofClient,
		proof.ProofConsensus,
		proof.ProofHeight,
		proof.ConsensusHeight,
		signer,
	)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ConnOpenAck(ctx context.Context, connectionID string, proof provider.ConnectionHandshakeProof) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := conntypes.NewMsgConnectionOpenAck(
		connectionID,
		proof.ConnectionID,
		proof.ClientState,
		proof.ProofConnection,
		proof.ProofClient,
		proof.ProofConsensus,
		proof.ProofHeight,
		proof.ConsensusHeight,
		conntypes.DefaultIBCVersion,
		signer,
	)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ConnOpenConfirm(ctx context.Context, connectionID string, proofHeight clienttypes.Height, proofAck []byte) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := conntypes.NewMsgConnectionOpenConfirm(connectionID, proofAck, proofHeight, signer)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ChanOpenInit(ctx context.Context, params provider.ChannelOpenInitParams) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := chantypes.NewMsgChannelOpenInit(
		params.PortID,
		params.Version,
		params.Ordering,
		[]string{params.ConnectionID},
		params.CounterpartyPortID,
		signer,
	)
	return cc.sendMsgs(ctx, msg)
}

// ChanOpenTry proposes the counterparty's version; the application callback may negotiate another.
func (cc *CosmosProvider) ChanOpenTry(ctx context.Context, params provider.ChannelOpenTryParams) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := chantypes.NewMsgChannelOpenTry(
		params.PortID,
		"",
		params.CounterpartyVersion,
		params.Ordering,
		[]string{params.ConnectionID},
		params.CounterpartyPortID,
		params.CounterpartyChannelID,
		params.CounterpartyVersion,
		params.Proof.Proof,
		params.Proof.ProofHeight,
		signer,
	)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ChanOpenAck(ctx context.Context, portID, channelID string, proof provider.ChannelHandshakeProof) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := chantypes.NewMsgChannelOpenAck(portID, channelID, proof.ChannelID, proof.Version, proof.Proof, proof.ProofHeight, signer)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) ChanOpenConfirm(ctx context.Context, portID, channelID string, proof provider.ChannelHandshakeProof) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := chantypes.NewMsgChannelOpenConfirm(portID, channelID, proof.Proof, proof.ProofHeight, signer)
	return cc.sendMsgs(ctx, msg)
}

func (cc *CosmosProvider) RecvPackets(ctx context.Context, packets []chantypes.Packet, proofs []provider.PacketProof) (*provider.RelayerTxResponse, error) {
	if len(packets) != len(proofs) {
		return nil, fmt.Errorf("%d packets with %d proofs", len(packets), len(proofs))
	}
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msgs := make([]sdk.Msg, len(packets))
	for i, packet := range packets {
		msgs[i] = chantypes.NewMsgRecvPacket(packet, proofs[i].Proof, proofs[i].ProofHeight, signer)
	}
	return cc.sendMsgs(ctx, msgs...)
}

func (cc *CosmosProvider) AcknowledgePackets(ctx context.Context, acks []provider.Ack, proofs []provider.PacketProof) (*provider.RelayerTxResponse, error) {
	if len(acks) != len(proofs) {
		return nil, fmt.Errorf("%d acks with %d proofs", len(acks), len(proofs))
	}
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msgs := make([]sdk.Msg, len(acks))
	for i, ack := range acks {
		msgs[i] = chantypes.NewMsgAcknowledgement(ack.OriginalPacket, ack.Acknowledgement, proofs[i].Proof, proofs[i].ProofHeight, signer)
	}
	return cc.sendMsgs(ctx, msgs...)
}

func (cc *CosmosProvider) TimeoutPackets(ctx context.Context, packets []chantypes.Packet, proofs []provider.TimeoutProof) (*provider.RelayerTxResponse, error) {
	if len(packets) != len(proofs) {
		return nil, fmt.Errorf("%d packets with %d proofs", len(packets), len(proofs))
	}
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msgs := make([]sdk.Msg, len(packets))
	for i, packet := range packets {
		msgs[i] = chantypes.NewMsgTimeout(packet, proofs[i].NextSequenceRecv, proofs[i].Proof, proofs[i].ProofHeight, signer)
	}
	return cc.sendMsgs(ctx, msgs...)
}

func (cc *CosmosProvider) Transfer(
	ctx context.Context,
	sourcePort, sourceChannel string,
	amount sdk.Coin,
	receiver string,
	timeoutHeight clienttypes.Height,
	timeoutTimestamp uint64,
) (*provider.RelayerTxResponse, error) {
	signer, err := cc.signerAddress()
	if err != nil {
		return nil, err
	}
	msg := transfertypes.NewMsgTransfer(sourcePort, sourceChannel, amount, signer, receiver, timeoutHeight, timeoutTimestamp)
	return cc.sendMsgs(ctx, msg)
}
