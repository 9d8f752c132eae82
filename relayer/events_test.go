package relayer

import (
	"encoding/hex"
	"testing"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sendPacketEvent(seq, connectionID string, data []byte) provider.RelayerEvent {
	return provider.RelayerEvent{
		EventType: chantypes.EventTypeSendPacket,
		Attributes: map[string]string{
			chantypes.AttributeKeySequence:         seq,
			chantypes.AttributeKeySrcPort:          "transfer",
			chantypes.AttributeKeySrcChannel:       "channel-0",
			chantypes.AttributeKeyDstPort:          "transfer",
			chantypes.AttributeKeyDstChannel:       "channel-1",
			chantypes.AttributeKeyDataHex:          hex.EncodeToString(data),
			chantypes.AttributeKeyTimeoutHeight:    "0-100",
			chantypes.AttributeKeyTimeoutTimestamp: "0",
			chantypes.AttributeKeyConnection:       connectionID,
		},
	}
}

func TestParseClientIDFromEvents(t *testing.T) {
	events := []provider.RelayerEvent{
		{EventType: "message", Attributes: map[string]string{"module": "ibc_client"}},
		{EventType: clienttypes.EventTypeCreateClient, Attributes: map[string]string{
			clienttypes.AttributeKeyClientID: "07-tendermint-3",
		}},
	}

	clientID, err := ParseClientIDFromEvents(events)
	require.NoError(t, err)
	require.Equal(t, "07-tendermint-3", clientID)

	_, err = ParseClientIDFromEvents(events[:1])
	require.Error(t, err)
}

func TestParsePacketsFromEvents(t *testing.T) {
	events := []provider.RelayerEvent{
		sendPacketEvent("1", "connection-0", []byte(`{"amount":"1"}`)),
		{EventType: chantypes.EventTypeRecvPacket, Attributes: map[string]string{chantypes.AttributeKeySequence: "7"}},
		sendPacketEvent("2", "connection-5", []byte("other")),
		sendPacketEvent("3", "connection-0", nil),
	}

	want := []chantypes.Packet{
		{
			Sequence:           1,
			SourcePort:         "transfer",
			SourceChannel:      "channel-0",
			DestinationPort:    "transfer",
			DestinationChannel: "channel-1",
			Data:               []byte(`{"amount":"1"}`),
			TimeoutHeight:      clienttypes.NewHeight(0, 100),
		},
		{
			Sequence:           3,
			SourcePort:         "transfer",
			SourceChannel:      "channel-0",
			DestinationPort:    "transfer",
			DestinationChannel: "channel-1",
			Data:               []byte{},
			TimeoutHeight:      clienttypes.NewHeight(0, 100),
		},
	}

	packets, err := ParsePacketsFromEvents(events, "connection-0")
	require.NoError(t, err)
	if diff := cmp.Diff(want, packets); diff != "" {
		t.Errorf("unexpected packets (-want +got):\n%s", diff)
	}

	all, err := ParsePacketsFromEvents(events, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestParsePacketsFromEventsRawData(t *testing.T) {
	event := sendPacketEvent("4", "connection-0", nil)
	delete(event.Attributes, chantypes.AttributeKeyDataHex)
	event.Attributes[chantypes.AttributeKeyData] = "raw"

	packets, err := ParsePacketsFromEvents([]provider.RelayerEvent{event}, "connection-0")
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.Equal(t, []byte("raw"), packets[0].Data)
}

func TestParsePacketsFromEventsInvalid(t *testing.T) {
	for name, mutate := range map[string]func(map[string]string){
		"missing sequence": func(attrs map[string]string) { delete(attrs, chantypes.AttributeKeySequence) },
		"bad sequence":     func(attrs map[string]string) { attrs[chantypes.AttributeKeySequence] = "one" },
		"bad hex":          func(attrs map[string]string) { attrs[chantypes.AttributeKeyDataHex] = "zz" },
		"bad height":       func(attrs map[string]string) { attrs[chantypes.AttributeKeyTimeoutHeight] = "100" },
		"bad timestamp":    func(attrs map[string]string) { attrs[chantypes.AttributeKeyTimeoutTimestamp] = "-1" },
	} {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			event := sendPacketEvent("1", "connection-0", []byte("data"))
			mutate(event.Attributes)
			_, err := ParsePacketsFromEvents([]provider.RelayerEvent{event}, "connection-0")
			require.Error(t, err)
		})
	}
}

func TestParseAcksFromEvents(t *testing.T) {
	ack := chantypes.NewResultAcknowledgement([]byte{1}).Acknowledgement()
	event := sendPacketEvent("9", "connection-0", []byte("data"))
	event.EventType = chantypes.EventTypeWriteAck
	event.Attributes[chantypes.AttributeKeyAckHex] = hex.EncodeToString(ack)

	acks, err := ParseAcksFromEvents([]provider.RelayerEvent{
		sendPacketEvent("1", "connection-0", nil),
		event,
	}, "connection-0")
	require.NoError(t, err)
	require.Len(t, acks, 1)
	require.Equal(t, uint64(9), acks[0].OriginalPacket.Sequence)
	require.Equal(t, ack, acks[0].Acknowledgement)

	acks, err = ParseAcksFromEvents([]provider.RelayerEvent{event}, "connection-1")
	require.NoError(t, err)
	require.Empty(t, acks)
}

func TestParseConnectionAndChannelIDFromEvents(t *testing.T) {
	connID, err := ParseConnectionIDFromEvents([]provider.RelayerEvent{{
		EventType:  "connection_open_try",
		Attributes: map[string]string{"connection_id": "connection-4"},
	}})
	require.NoError(t, err)
	require.Equal(t, "connection-4", connID)

	chanID, err := ParseChannelIDFromEvents([]provider.RelayerEvent{{
		EventType:  chantypes.EventTypeChannelOpenInit,
		Attributes: map[string]string{chantypes.AttributeKeyChannelID: "channel-2"},
	}})
	require.NoError(t, err)
	require.Equal(t, "channel-2", chanID)

	_, err = ParseChannelIDFromEvents(nil)
	require.Error(t, err)
}
