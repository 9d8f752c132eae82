package mock

import (
	"context"

	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	"github.com/cosmos/link-relayer/relayer/provider"
)

var merklePrefix = commitmenttypes.NewMerklePrefix([]byte(host.StoreKey))

func connectionVersions() []*conntypes.Version {
	return []*conntypes.Version{conntypes.DefaultIBCVersion}
}

func (tx *txContext) setConnection(connectionID string, conn conntypes.ConnectionEnd) {
	tx.set(host.ConnectionKey(connectionID), provider.Cdc.MustMarshal(&conn))
}

func (tx *txContext) setChannel(portID, channelID string, channel chantypes.Channel) {
	tx.set(host.ChannelKey(portID, channelID), provider.Cdc.MustMarshal(&channel))
}

func (tx *txContext) emitConnection(eventType, connectionID string, conn conntypes.ConnectionEnd) {
	tx.emit(eventType, map[string]string{
		conntypes.AttributeKeyConnectionID:             connectionID,
		conntypes.AttributeKeyClientID:                 conn.ClientId,
		conntypes.AttributeKeyCounterpartyClientID:     conn.Counterparty.ClientId,
		conntypes.AttributeKeyCounterpartyConnectionID: conn.Counterparty.ConnectionId,
	})
}

func (tx *txContext) emitChannel(eventType, portID, channelID string, channel chantypes.Channel) {
	tx.emit(eventType, map[string]string{
		chantypes.AttributeKeyPortID:             portID,
		chantypes.AttributeKeyChannelID:          channelID,
		chantypes.AttributeCounterpartyPortID:    channel.Counterparty.PortId,
		chantypes.AttributeCounterpartyChannelID: channel.Counterparty.ChannelId,
		chantypes.AttributeKeyConnectionID:       channel.ConnectionHops[0],
	})
}

// provenConnection verifies and decodes the counterparty connection end proven by proofBz.
func (tx *txContext) provenConnection(clientID string, proofHeight clienttypes.Height, connectionID string, proofBz []byte) (*conntypes.ConnectionEnd, error) {
	bz, err := tx.verify(clientID, proofHeight, host.ConnectionKey(connectionID), proofBz)
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, sdkerrors.Wrapf(clienttypes.ErrFailedConnectionStateVerification, "counterparty connection %s does not exist", connectionID)
	}
	var conn conntypes.ConnectionEnd
	if err := provider.Cdc.Unmarshal(bz, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// verifyConnectionProof checks the counterparty connection end carried by proof along with
// the counterparty's light client of this chain.
func (tx *txContext) verifyConnectionProof(clientID string, proof provider.ConnectionHandshakeProof, state conntypes.State, connectionID string) error {
	if proof.ClientState == nil {
		return sdkerrors.Wrap(clienttypes.ErrInvalidClient, "missing counterparty client state")
	}
	if proof.ClientState.ChainId != tx.c.cfg.ChainID {
		return sdkerrors.Wrapf(clienttypes.ErrInvalidClient, "counterparty client tracks %s, expected %s", proof.ClientState.ChainId, tx.c.cfg.ChainID)
	}
	if proof.ConsensusHeight.GTE(tx.selfHeight()) {
		return sdkerrors.Wrapf(clienttypes.ErrInvalidHeight, "consensus height %s is not below current height %s", proof.ConsensusHeight, tx.selfHeight())
	}

	conn, err := tx.provenConnection(clientID, proof.ProofHeight, proof.ConnectionID, proof.ProofConnection)
	if err != nil {
		return err
	}
	if conn.State != state {
		return sdkerrors.Wrapf(conntypes.ErrInvalidConnectionState, "counterparty connection is %s, expected %s", conn.State, state)
	}
	if conn.ClientId != proof.ClientID || conn.Counterparty.ClientId != clientID || conn.Counterparty.ConnectionId != connectionID {
		return sdkerrors.Wrapf(conntypes.ErrInvalidCounterparty, "counterparty connection %s does not point at client %s", proof.ConnectionID, clientID)
	}

	clientBz, err := tx.verify(clientID, proof.ProofHeight, host.FullClientStateKey(proof.ClientID), proof.ProofClient)
	if err != nil {
		return err
	}
	if clientBz == nil {
		return sdkerrors.Wrapf(clienttypes.ErrFailedClientStateVerification, "counterparty client %s does not exist", proof.ClientID)
	}
	proven, err := provider.UnmarshalClientState(clientBz)
	if err != nil {
		return err
	}
	if proven.ChainId != proof.ClientState.ChainId || !proven.LatestHeight.EQ(proof.ClientState.LatestHeight) {
		return sdkerrors.Wrapf(clienttypes.ErrFailedClientStateVerification, "counterparty client %s differs from proven state", proof.ClientID)
	}

	consBz, err := tx.verify(clientID, proof.ProofHeight, host.FullConsensusStateKey(proof.ClientID, proof.ConsensusHeight), proof.ProofConsensus)
	if err != nil {
		return err
	}
	if consBz == nil {
		return sdkerrors.Wrapf(clienttypes.ErrFailedClientConsensusStateVerification,
			"counterparty client %s has no consensus state at %s", proof.ClientID, proof.ConsensusHeight)
	}
	return nil
}

func (c *Chain) ConnOpenInit(ctx context.Context, clientID, counterpartyClientID string) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		cs, err := loadClientState(tx.get, clientID)
		if err != nil {
			return err
		}
		if cs == nil {
			return sdkerrors.Wrap(clienttypes.ErrClientNotFound, clientID)
		}

		connectionID, err := tx.nextID(keyNextConnectionSequence, "connection")
		if err != nil {
			return err
		}
		conn := conntypes.NewConnectionEnd(conntypes.INIT, clientID,
			conntypes.NewCounterparty(counterpartyClientID, "", merklePrefix), connectionVersions(), 0)
		tx.setConnection(connectionID, conn)
		tx.emitConnection(conntypes.EventTypeConnectionOpenInit, connectionID, conn)
		return nil
	})
}

func (c *Chain) ConnOpenTry(ctx context.Context, clientID string, proof provider.ConnectionHandshakeProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if err := tx.verifyConnectionProof(clientID, proof, conntypes.INIT, ""); err != nil {
			return err
		}

		connectionID, err := tx.nextID(keyNextConnectionSequence, "connection")
		if err != nil {
			return err
		}
		conn := conntypes.NewConnectionEnd(conntypes.TRYOPEN, clientID,
			conntypes.NewCounterparty(proof.ClientID, proof.ConnectionID, merklePrefix), connectionVersions(), 0)
		tx.setConnection(connectionID, conn)
		tx.emitConnection(conntypes.EventTypeConnectionOpenTry, connectionID, conn)
		return nil
	})
}

func (c *Chain) ConnOpenAck(ctx context.Context, connectionID string, proof provider.ConnectionHandshakeProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		conn, err := loadConnection(tx.get, connectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return sdkerrors.Wrap(conntypes.ErrConnectionNotFound, connectionID)
		}
		if conn.State != conntypes.INIT {
			return sdkerrors.Wrapf(conntypes.ErrInvalidConnectionState, "connection %s is %s, expected %s", connectionID, conn.State, conntypes.INIT)
		}
		if proof.ClientID != conn.Counterparty.ClientId {
			return sdkerrors.Wrapf(conntypes.ErrInvalidCounterparty, "expected counterparty client %s, got %s", conn.Counterparty.ClientId, proof.ClientID)
		}
		if err := tx.verifyConnectionProof(conn.ClientId, proof, conntypes.TRYOPEN, connectionID); err != nil {
			return err
		}

		conn.State = conntypes.OPEN
		conn.Counterparty.ConnectionId = proof.ConnectionID
		tx.setConnection(connectionID, *conn)
		tx.emitConnection(conntypes.EventTypeConnectionOpenAck, connectionID, *conn)
		return nil
	})
}

func (c *Chain) ConnOpenConfirm(ctx context.Context, connectionID string, proofHeight clienttypes.Height, proofAck []byte) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		conn, err := loadConnection(tx.get, connectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return sdkerrors.Wrap(conntypes.ErrConnectionNotFound, connectionID)
		}
		if conn.State != conntypes.TRYOPEN {
			return sdkerrors.Wrapf(conntypes.ErrInvalidConnectionState, "connection %s is %s, expected %s", connectionID, conn.State, conntypes.TRYOPEN)
		}

		counterparty, err := tx.provenConnection(conn.ClientId, proofHeight, conn.Counterparty.ConnectionId, proofAck)
		if err != nil {
			return err
		}
		if counterparty.State != conntypes.OPEN || counterparty.Counterparty.ConnectionId != connectionID {
			return sdkerrors.Wrapf(conntypes.ErrInvalidConnectionState, "counterparty connection is %s", counterparty.State)
		}

		conn.State = conntypes.OPEN
		tx.setConnection(connectionID, *conn)
		tx.emitConnection(conntypes.EventTypeConnectionOpenConfirm, connectionID, *conn)
		return nil
	})
}

func (tx *txContext) initSequences(portID, channelID string) {
	one := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	tx.set(host.NextSequenceSendKey(portID, channelID), one)
	tx.set(host.NextSequenceRecvKey(portID, channelID), one)
	tx.set(host.NextSequenceAckKey(portID, channelID), one)
}

// provenChannel verifies and decodes the counterparty channel end proven by proofBz.
func (tx *txContext) provenChannel(clientID string, proofHeight clienttypes.Height, portID, channelID string, proofBz []byte) (*chantypes.Channel, error) {
	bz, err := tx.verify(clientID, proofHeight, host.ChannelKey(portID, channelID), proofBz)
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, sdkerrors.Wrapf(clienttypes.ErrFailedChannelStateVerification, "counterparty channel %s/%s does not exist", portID, channelID)
	}
	var channel chantypes.Channel
	if err := provider.Cdc.Unmarshal(bz, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// openConnection loads a connection that must be OPEN.
func (tx *txContext) openConnection(connectionID string) (*conntypes.ConnectionEnd, error) {
	conn, err := loadConnection(tx.get, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, sdkerrors.Wrap(conntypes.ErrConnectionNotFound, connectionID)
	}
	if conn.State != conntypes.OPEN {
		return nil, sdkerrors.Wrapf(conntypes.ErrInvalidConnectionState, "connection %s is %s", connectionID, conn.State)
	}
	return conn, nil
}

func (c *Chain) ChanOpenInit(ctx context.Context, params provider.ChannelOpenInitParams) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if err := host.PortIdentifierValidator(params.PortID); err != nil {
			return err
		}
		if params.Ordering != chantypes.ORDERED && params.Ordering != chantypes.UNORDERED {
			return sdkerrors.Wrap(chantypes.ErrInvalidChannelOrdering, params.Ordering.String())
		}
		conn, err := loadConnection(tx.get, params.ConnectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return sdkerrors.Wrap(conntypes.ErrConnectionNotFound, params.ConnectionID)
		}

		channelID, err := tx.nextID(keyNextChannelSequence, "channel")
		if err != nil {
			return err
		}
		channel := chantypes.NewChannel(chantypes.INIT, params.Ordering,
			chantypes.NewCounterparty(params.CounterpartyPortID, ""), []string{params.ConnectionID}, params.Version)
		tx.setChannel(params.PortID, channelID, channel)
		tx.initSequences(params.PortID, channelID)
		tx.emitChannel(chantypes.EventTypeChannelOpenInit, params.PortID, channelID, channel)
		return nil
	})
}

// ChanOpenTry opens the channel with the counterparty's version unless a version was
// configured for the port with SetPortVersion.
func (c *Chain) ChanOpenTry(ctx context.Context, params provider.ChannelOpenTryParams) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if err := host.PortIdentifierValidator(params.PortID); err != nil {
			return err
		}
		conn, err := tx.openConnection(params.ConnectionID)
		if err != nil {
			return err
		}

		counterparty, err := tx.provenChannel(conn.ClientId, params.Proof.ProofHeight,
			params.CounterpartyPortID, params.CounterpartyChannelID, params.Proof.Proof)
		if err != nil {
			return err
		}
		if counterparty.State != chantypes.INIT {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "counterparty channel is %s, expected %s", counterparty.State, chantypes.INIT)
		}
		if counterparty.Ordering != params.Ordering {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelOrdering, "counterparty channel is %s, expected %s", counterparty.Ordering, params.Ordering)
		}
		if counterparty.Counterparty.PortId != params.PortID || counterparty.ConnectionHops[0] != conn.Counterparty.ConnectionId {
			return sdkerrors.Wrapf(chantypes.ErrInvalidCounterparty, "counterparty channel %s/%s does not point at port %s over %s",
				params.CounterpartyPortID, params.CounterpartyChannelID, params.PortID, params.ConnectionID)
		}
		if counterparty.Version != params.CounterpartyVersion {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelVersion, "counterparty version is %q, got %q", counterparty.Version, params.CounterpartyVersion)
		}

		version := params.CounterpartyVersion
		if v, ok := tx.c.versions[params.PortID]; ok {
			version = v
		}

		channelID, err := tx.nextID(keyNextChannelSequence, "channel")
		if err != nil {
			return err
		}
		channel := chantypes.NewChannel(chantypes.TRYOPEN, params.Ordering,
			chantypes.NewCounterparty(params.CounterpartyPortID, params.CounterpartyChannelID), []string{params.ConnectionID}, version)
		tx.setChannel(params.PortID, channelID, channel)
		tx.initSequences(params.PortID, channelID)
		tx.emitChannel(chantypes.EventTypeChannelOpenTry, params.PortID, channelID, channel)
		return nil
	})
}

func (c *Chain) ChanOpenAck(ctx context.Context, portID, channelID string, proof provider.ChannelHandshakeProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		channel, err := loadChannel(tx.get, portID, channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return sdkerrors.Wrapf(chantypes.ErrChannelNotFound, "%s/%s", portID, channelID)
		}
		if channel.State != chantypes.INIT {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "channel %s/%s is %s, expected %s", portID, channelID, channel.State, chantypes.INIT)
		}
		conn, err := tx.openConnection(channel.ConnectionHops[0])
		if err != nil {
			return err
		}

		counterparty, err := tx.provenChannel(conn.ClientId, proof.ProofHeight, channel.Counterparty.PortId, proof.ChannelID, proof.Proof)
		if err != nil {
			return err
		}
		if counterparty.State != chantypes.TRYOPEN {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "counterparty channel is %s, expected %s", counterparty.State, chantypes.TRYOPEN)
		}
		if counterparty.Counterparty.PortId != portID || counterparty.Counterparty.ChannelId != channelID {
			return sdkerrors.Wrapf(chantypes.ErrInvalidCounterparty, "counterparty channel %s/%s does not point at %s/%s",
				channel.Counterparty.PortId, proof.ChannelID, portID, channelID)
		}
		if counterparty.Version != proof.Version {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelVersion, "counterparty version is %q, got %q", counterparty.Version, proof.Version)
		}

		channel.State = chantypes.OPEN
		channel.Version = proof.Version
		channel.Counterparty.ChannelId = proof.ChannelID
		tx.setChannel(portID, channelID, *channel)
		tx.emitChannel(chantypes.EventTypeChannelOpenAck, portID, channelID, *channel)
		return nil
	})
}

func (c *Chain) ChanOpenConfirm(ctx context.Context, portID, channelID string, proof provider.ChannelHandshakeProof) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		channel, err := loadChannel(tx.get, portID, channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return sdkerrors.Wrapf(chantypes.ErrChannelNotFound, "%s/%s", portID, channelID)
		}
		if channel.State != chantypes.TRYOPEN {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "channel %s/%s is %s, expected %s", portID, channelID, channel.State, chantypes.TRYOPEN)
		}
		conn, err := tx.openConnection(channel.ConnectionHops[0])
		if err != nil {
			return err
		}

		counterparty, err := tx.provenChannel(conn.ClientId, proof.ProofHeight, channel.Counterparty.PortId, channel.Counterparty.ChannelId, proof.Proof)
		if err != nil {
			return err
		}
		if counterparty.State != chantypes.OPEN || counterparty.Counterparty.ChannelId != channelID {
			return sdkerrors.Wrapf(chantypes.ErrInvalidChannelState, "counterparty channel is %s", counterparty.State)
		}

		channel.State = chantypes.OPEN
		tx.setChannel(portID, channelID, *channel)
		tx.emitChannel(chantypes.EventTypeChannelOpenConfirm, portID, channelID, *channel)
		return nil
	})
}
