package provider

import (
	"context"
	"errors"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

// ErrNotFound is returned (possibly wrapped) by query methods when the
// requested client, connection, channel or state entry does not exist.
var ErrNotFound = errors.New("not found")

// RelayerTxResponse is the chain agnostic result of a committed transaction.
// A non-zero Code means the transaction was included but failed.
type RelayerTxResponse struct {
	Height    int64
	TxHash    string
	Code      uint32
	Codespace string
	Data      string
	Events    []RelayerEvent
}

// RelayerEvent is a single event emitted by a transaction or block.
type RelayerEvent struct {
	EventType  string
	Attributes map[string]string
}

// TxResult is a transaction found by an event search.
type TxResult struct {
	Height int64
	TxHash string
	Events []RelayerEvent
}

// BlockResult holds the begin and end block events of a block found by an event search.
type BlockResult struct {
	Height int64
	Events []RelayerEvent
}

// Ack is an acknowledgement together with the packet it acknowledges.
type Ack struct {
	OriginalPacket  chantypes.Packet
	Acknowledgement []byte
}

// ConnectionHandshakeProof carries everything the counterparty needs to
// verify the state of a connection end during the connection handshake.
type ConnectionHandshakeProof struct {
	ClientID        string
	ConnectionID    string
	ClientState     *ibctmtypes.ClientState
	ProofHeight     clienttypes.Height
	ProofConnection []byte
	ProofClient     []byte
	ProofConsensus  []byte
	ConsensusHeight clienttypes.Height
}

// ChannelHandshakeProof carries the proof of a channel end during the channel handshake.
type ChannelHandshakeProof struct {
	PortID      string
	ChannelID   string
	Version     string
	ProofHeight clienttypes.Height
	Proof       []byte
}

// PacketProof proves a packet commitment or acknowledgement on the chain that wrote it.
type PacketProof struct {
	Proof       []byte
	ProofHeight clienttypes.Height
}

// TimeoutProof proves that a packet was never received by its destination.
type TimeoutProof struct {
	Proof            []byte
	ProofHeight      clienttypes.Height
	NextSequenceRecv uint64
}

// ChannelOpenInitParams describes a channel to be initialised on one end.
type ChannelOpenInitParams struct {
	PortID             string
	ConnectionID       string
	CounterpartyPortID string
	Ordering           chantypes.Order
	Version            string
}

// ChannelOpenTryParams describes the counterparty end of a channel in INIT state.
type ChannelOpenTryParams struct {
	PortID                string
	ConnectionID          string
	CounterpartyPortID    string
	CounterpartyChannelID string
	Ordering              chantypes.Order
	CounterpartyVersion   string
	Proof                 ChannelHandshakeProof
}

// QueryProvider is the read side of a chain endpoint.
type QueryProvider interface {
	ChainID() string
	EstimatedBlockTime() time.Duration
	EstimatedIndexerTime() time.Duration

	// chain
	QueryLatestHeight(ctx context.Context) (int64, error)
	// QuerySignedHeader returns the signed header at height, or the latest one if height is zero.
	QuerySignedHeader(ctx context.Context, height int64) (*tmtypes.SignedHeader, error)
	QueryValidatorSet(ctx context.Context, height int64) (*tmtypes.ValidatorSet, error)
	QueryUnbondingPeriod(ctx context.Context) (time.Duration, error)
	// QueryProof returns the value stored under key in the application
	// state committed at version height, along with its merkle proof.
	// A nil value with a non-empty proof is a proof of absence.
	QueryProof(ctx context.Context, height int64, key []byte) (value []byte, proof []byte, err error)

	// ics 02 - client
	QueryClientState(ctx context.Context, clientID string) (*ibctmtypes.ClientState, error)
	QueryConsensusState(ctx context.Context, clientID string, height clienttypes.Height) (*ibctmtypes.ConsensusState, error)

	// ics 03 - connection
	QueryConnection(ctx context.Context, connectionID string) (*conntypes.ConnectionEnd, error)

	// ics 04 - channel
	QueryChannel(ctx context.Context, portID, channelID string) (*chantypes.Channel, error)
	// QueryPacketCommitment returns nil when no commitment is stored.
	QueryPacketCommitment(ctx context.Context, portID, channelID string, seq uint64) ([]byte, error)
	QueryUnreceivedPackets(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error)
	QueryUnreceivedAcks(ctx context.Context, portID, channelID string, seqs []uint64) ([]uint64, error)
	QueryNextSequenceReceive(ctx context.Context, portID, channelID string) (uint64, error)

	// events
	SearchTxs(ctx context.Context, query string) ([]*TxResult, error)
	SearchBlockEvents(ctx context.Context, query string) ([]*BlockResult, error)
}

// TxProvider is the write side of a chain endpoint. Every method blocks until
// the transaction is committed and returns its result. Signing and fees are
// the responsibility of the implementation.
type TxProvider interface {
	CreateClient(ctx context.Context, clientState *ibctmtypes.ClientState, consensusState *ibctmtypes.ConsensusState) (*RelayerTxResponse, error)
	UpdateClient(ctx context.Context, clientID string, header *ibctmtypes.Header) (*RelayerTxResponse, error)

	ConnOpenInit(ctx context.Context, clientID, counterpartyClientID string) (*RelayerTxResponse, error)
	ConnOpenTry(ctx context.Context, clientID string, proof ConnectionHandshakeProof) (*RelayerTxResponse, error)
	ConnOpenAck(ctx context.Context, connectionID string, proof ConnectionHandshakeProof) (*RelayerTxResponse, error)
	ConnOpenConfirm(ctx context.Context, connectionID string, proofHeight clienttypes.Height, proofAck []byte) (*RelayerTxResponse, error)

	ChanOpenInit(ctx context.Context, params ChannelOpenInitParams) (*RelayerTxResponse, error)
	ChanOpenTry(ctx context.Context, params ChannelOpenTryParams) (*RelayerTxResponse, error)
	ChanOpenAck(ctx context.Context, portID, channelID string, proof ChannelHandshakeProof) (*RelayerTxResponse, error)
	ChanOpenConfirm(ctx context.Context, portID, channelID string, proof ChannelHandshakeProof) (*RelayerTxResponse, error)

	RecvPackets(ctx context.Context, packets []chantypes.Packet, proofs []PacketProof) (*RelayerTxResponse, error)
	AcknowledgePackets(ctx context.Context, acks []Ack, proofs []PacketProof) (*RelayerTxResponse, error)
	TimeoutPackets(ctx context.Context, packets []chantypes.Packet, proofs []TimeoutProof) (*RelayerTxResponse, error)

	Transfer(ctx context.Context, sourcePort, sourceChannel string, amount sdk.Coin, receiver string, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (*RelayerTxResponse, error)
}

// ChainProvider is everything the relayer needs from one chain.
type ChainProvider interface {
	QueryProvider
	TxProvider
}
