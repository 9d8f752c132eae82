package relayer

import (
	"context"
	"fmt"
	"strings"

	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// PacketWithMetadata is a sent packet and the height it was committed at.
type PacketWithMetadata struct {
	chantypes.Packet
	Height int64
}

// AckWithMetadata is a written acknowledgement and the transaction that wrote it.
type AckWithMetadata struct {
	provider.Ack
	Height   int64
	TxHash   string
	TxEvents []provider.RelayerEvent
}

// Endpoint binds a chain to the light client and connection used by one end of a Link.
type Endpoint struct {
	Provider     provider.ChainProvider
	ClientID     string
	ConnectionID string
}

// NewEndpoint returns an Endpoint for the given chain, client and connection.
func NewEndpoint(p provider.ChainProvider, clientID, connectionID string) *Endpoint {
	return &Endpoint{
		Provider:     p,
		ClientID:     clientID,
		ConnectionID: connectionID,
	}
}

// ChainID returns the chain id of the underlying chain.
func (e *Endpoint) ChainID() string {
	return e.Provider.ChainID()
}

// QuerySentPackets returns all packets sent over the endpoint's connection between
// minHeight and maxHeight (inclusive, zero means unbounded). Packets found in
// transactions come first, followed by packets emitted in begin or end block events.
// The two result sets are concatenated as is.
func (e *Endpoint) QuerySentPackets(ctx context.Context, minHeight, maxHeight int64) ([]PacketWithMetadata, error) {
	base := eventQuery(chantypes.EventTypeSendPacket, chantypes.AttributeKeyConnection, e.ConnectionID)

	txs, err := e.Provider.SearchTxs(ctx, heightRangeQuery(base, "tx.height", minHeight, maxHeight))
	if err != nil {
		return nil, fmt.Errorf("failed to search send_packet txs on %s: %w", e.ChainID(), err)
	}
	var packets []PacketWithMetadata
	for _, tx := range txs {
		parsed, err := ParsePacketsFromEvents(tx.Events, e.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("tx %s on %s: %w", tx.TxHash, e.ChainID(), err)
		}
		for _, p := range parsed {
			packets = append(packets, PacketWithMetadata{Packet: p, Height: tx.Height})
		}
	}

	blocks, err := e.Provider.SearchBlockEvents(ctx, heightRangeQuery(base, "block.height", minHeight, maxHeight))
	if err != nil {
		return nil, fmt.Errorf("failed to search send_packet block events on %s: %w", e.ChainID(), err)
	}
	for _, block := range blocks {
		parsed, err := ParsePacketsFromEvents(block.Events, e.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("block %d on %s: %w", block.Height, e.ChainID(), err)
		}
		for _, p := range parsed {
			packets = append(packets, PacketWithMetadata{Packet: p, Height: block.Height})
		}
	}

	return packets, nil
}

// QueryWrittenAcks returns all acknowledgements written for packets received over
// the endpoint's connection between minHeight and maxHeight (inclusive, zero means unbounded).
func (e *Endpoint) QueryWrittenAcks(ctx context.Context, minHeight, maxHeight int64) ([]AckWithMetadata, error) {
	base := eventQuery(chantypes.EventTypeWriteAck, chantypes.AttributeKeyConnection, e.ConnectionID)

	txs, err := e.Provider.SearchTxs(ctx, heightRangeQuery(base, "tx.height", minHeight, maxHeight))
	if err != nil {
		return nil, fmt.Errorf("failed to search write_acknowledgement txs on %s: %w", e.ChainID(), err)
	}
	var acks []AckWithMetadata
	for _, tx := range txs {
		parsed, err := ParseAcksFromEvents(tx.Events, e.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("tx %s on %s: %w", tx.TxHash, e.ChainID(), err)
		}
		for _, ack := range parsed {
			acks = append(acks, AckWithMetadata{
				Ack:      ack,
				Height:   tx.Height,
				TxHash:   tx.TxHash,
				TxEvents: tx.Events,
			})
		}
	}
	return acks, nil
}

func eventQuery(eventType, attribute, value string) string {
	return fmt.Sprintf("%s.%s='%s'", eventType, attribute, value)
}

func heightRangeQuery(base, heightKey string, minHeight, maxHeight int64) string {
	conds := []string{base}
	if minHeight > 0 {
		conds = append(conds, fmt.Sprintf("%s>=%d", heightKey, minHeight))
	}
	if maxHeight > 0 {
		conds = append(conds, fmt.Sprintf("%s<=%d", heightKey, maxHeight))
	}
	return strings.Join(conds, " AND ")
}
