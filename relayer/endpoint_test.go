package relayer_test

import (
	"context"
	"testing"

	"github.com/cosmos/link-relayer/relayer"
	"github.com/stretchr/testify/require"
)

func TestQuerySentPacketsIncludesBlockEvents(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 100)
	timeout := relayer.ChainHeight(lc.b.ChainID(), lc.b.Height()+1000)
	sent, err := lc.a.SendPacketInEndBlock("transfer", lc.channel.Src.ChannelID, []byte("end block data"), timeout, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), sent.Sequence)

	endA := lc.link.Endpoint(relayer.SideA)
	packets, err := endA.QuerySentPackets(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	// transactions first, then block events
	require.Equal(t, uint64(1), packets[0].Sequence)
	require.Equal(t, uint64(2), packets[1].Sequence)
	require.Equal(t, []byte("end block data"), packets[1].Data)

	info, err := lc.link.RelayAll(ctx, relayer.SideA)
	require.NoError(t, err)
	require.Equal(t, 2, info.PacketsFromA)
	require.Equal(t, 2, info.AcksFromB)
}

func TestQuerySentPacketsHeightRange(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 1)
	first := lc.a.Height()
	lc.transfer(t, 2)
	second := lc.a.Height()
	require.Greater(t, second, first)

	endA := lc.link.Endpoint(relayer.SideA)

	packets, err := endA.QuerySentPackets(ctx, second, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.Equal(t, uint64(2), packets[0].Sequence)
	require.Equal(t, second, packets[0].Height)

	packets, err = endA.QuerySentPackets(ctx, 0, first)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	require.Equal(t, uint64(1), packets[0].Sequence)

	// packets on another connection are not reported
	other := relayer.NewEndpoint(lc.a, endA.ClientID, "connection-7")
	packets, err = other.QuerySentPackets(ctx, 0, 0)
	require.NoError(t, err)
	require.Empty(t, packets)
}

func TestQueryWrittenAcks(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 1, 2)
	packets, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	relayed, err := lc.link.RelayPackets(ctx, relayer.SideA, packets)
	require.NoError(t, err)

	acks, err := lc.link.Endpoint(relayer.SideB).QueryWrittenAcks(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, acks, 2)
	for i, ack := range acks {
		require.Equal(t, relayed[i].TxHash, ack.TxHash)
		require.Equal(t, relayed[i].Height, ack.Height)
		require.Equal(t, relayed[i].Acknowledgement, ack.Acknowledgement)
	}
}
