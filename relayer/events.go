package relayer

import (
	"encoding/hex"
	"fmt"
	"strconv"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// ParseClientIDFromEvents parses events emitted from a MsgCreateClient and returns the
// client identifier.
func ParseClientIDFromEvents(events []provider.RelayerEvent) (string, error) {
	if id, ok := provider.Attribute(events, clienttypes.EventTypeCreateClient, clienttypes.AttributeKeyClientID); ok {
		return id, nil
	}
	return "", fmt.Errorf("client identifier event attribute not found")
}

// ParseConnectionIDFromEvents parses events emitted from a MsgConnectionOpenInit or
// MsgConnectionOpenTry and returns the connection identifier.
func ParseConnectionIDFromEvents(events []provider.RelayerEvent) (string, error) {
	for _, eventType := range []string{conntypes.EventTypeConnectionOpenInit, conntypes.EventTypeConnectionOpenTry} {
		if id, ok := provider.Attribute(events, eventType, conntypes.AttributeKeyConnectionID); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("connection identifier event attribute not found")
}

// ParseChannelIDFromEvents parses events emitted from a MsgChannelOpenInit or
// MsgChannelOpenTry and returns the channel identifier.
func ParseChannelIDFromEvents(events []provider.RelayerEvent) (string, error) {
	for _, eventType := range []string{chantypes.EventTypeChannelOpenInit, chantypes.EventTypeChannelOpenTry} {
		if id, ok := provider.Attribute(events, eventType, chantypes.AttributeKeyChannelID); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("channel identifier event attribute not found")
}

// ParsePacketsFromEvents returns the packets of all send_packet events.
// When connectionID is not empty, events tagged with another connection are skipped.
func ParsePacketsFromEvents(events []provider.RelayerEvent, connectionID string) ([]chantypes.Packet, error) {
	var packets []chantypes.Packet
	for _, event := range events {
		if event.EventType != chantypes.EventTypeSendPacket || !onConnection(event, connectionID) {
			continue
		}
		packet, err := parsePacket(event.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %w", event.EventType, err)
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

// ParseAcksFromEvents returns the acknowledgements of all write_acknowledgement events.
// When connectionID is not empty, events tagged with another connection are skipped.
func ParseAcksFromEvents(events []provider.RelayerEvent, connectionID string) ([]provider.Ack, error) {
	var acks []provider.Ack
	for _, event := range events {
		if event.EventType != chantypes.EventTypeWriteAck || !onConnection(event, connectionID) {
			continue
		}
		packet, err := parsePacket(event.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %w", event.EventType, err)
		}
		ack, err := attributeBytes(event.Attributes, chantypes.AttributeKeyAckHex, chantypes.AttributeKeyAck)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %w", event.EventType, err)
		}
		acks = append(acks, provider.Ack{OriginalPacket: packet, Acknowledgement: ack})
	}
	return acks, nil
}

func onConnection(event provider.RelayerEvent, connectionID string) bool {
	if connectionID == "" {
		return true
	}
	conn, ok := event.Attributes[chantypes.AttributeKeyConnection]
	return !ok || conn == connectionID
}

func parsePacket(attrs map[string]string) (chantypes.Packet, error) {
	var (
		packet chantypes.Packet
		err    error
	)

	seq, ok := attrs[chantypes.AttributeKeySequence]
	if !ok {
		return packet, fmt.Errorf("missing %s attribute", chantypes.AttributeKeySequence)
	}
	if packet.Sequence, err = strconv.ParseUint(seq, 10, 64); err != nil {
		return packet, fmt.Errorf("invalid packet sequence %q: %w", seq, err)
	}

	packet.SourcePort = attrs[chantypes.AttributeKeySrcPort]
	packet.SourceChannel = attrs[chantypes.AttributeKeySrcChannel]
	packet.DestinationPort = attrs[chantypes.AttributeKeyDstPort]
	packet.DestinationChannel = attrs[chantypes.AttributeKeyDstChannel]

	if packet.Data, err = attributeBytes(attrs, chantypes.AttributeKeyDataHex, chantypes.AttributeKeyData); err != nil {
		return packet, err
	}

	if h, ok := attrs[chantypes.AttributeKeyTimeoutHeight]; ok && h != "" {
		if packet.TimeoutHeight, err = clienttypes.ParseHeight(h); err != nil {
			return packet, fmt.Errorf("invalid packet timeout height %q: %w", h, err)
		}
	}

	if ts, ok := attrs[chantypes.AttributeKeyTimeoutTimestamp]; ok && ts != "" {
		if packet.TimeoutTimestamp, err = strconv.ParseUint(ts, 10, 64); err != nil {
			return packet, fmt.Errorf("invalid packet timeout timestamp %q: %w", ts, err)
		}
	}

	return packet, nil
}

// attributeBytes prefers the hex encoded attribute and falls back to the raw one.
func attributeBytes(attrs map[string]string, hexKey, rawKey string) ([]byte, error) {
	if v, ok := attrs[hexKey]; ok {
		bz, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s attribute: %w", hexKey, err)
		}
		return bz, nil
	}
	if v, ok := attrs[rawKey]; ok {
		return []byte(v), nil
	}
	return nil, nil
}
