package relayer_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/cosmos/link-relayer/relayer/chains/mock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// linkedChains is two mock chains joined by a connection and a transfer channel.
type linkedChains struct {
	a, b    *mock.Chain
	link    *relayer.Link
	channel relayer.ChannelPair
}

func newLinkedChains(t *testing.T, opts ...relayer.LinkOption) linkedChains {
	t.Helper()
	ctx := context.Background()

	net := mock.NewNetwork()
	a, err := net.AddChain(mock.Config{ChainID: "chain-a", BlockTime: 5 * time.Millisecond})
	require.NoError(t, err)
	b, err := net.AddChain(mock.Config{ChainID: "chain-b", BlockTime: 5 * time.Millisecond})
	require.NoError(t, err)

	opts = append([]relayer.LinkOption{relayer.WithLogger(zaptest.NewLogger(t))}, opts...)
	link, err := relayer.CreateWithNewConnections(ctx, a, b, 0, 0, opts...)
	require.NoError(t, err)

	channel, err := link.CreateChannel(ctx, relayer.SideA, "transfer", "transfer", chantypes.UNORDERED, "ics20-1")
	require.NoError(t, err)

	return linkedChains{a: a, b: b, link: link, channel: channel}
}

// transfer sends amounts from A to B over the transfer channel with a timeout far in the future.
func (lc linkedChains) transfer(t *testing.T, amounts ...int64) {
	t.Helper()
	timeout := relayer.ChainHeight(lc.b.ChainID(), lc.b.Height()+1000)
	for _, amount := range amounts {
		res, err := lc.a.Transfer(context.Background(), "transfer", lc.channel.Src.ChannelID,
			sdk.NewInt64Coin("ustake", amount), "receiver", timeout, 0)
		require.NoError(t, err)
		require.Zero(t, res.Code, res.Data)
	}
}

func TestCreateWithNewConnections(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	endA, endB := lc.link.Endpoint(relayer.SideA), lc.link.Endpoint(relayer.SideB)
	require.Equal(t, "07-tendermint-0", endA.ClientID)
	require.Equal(t, "07-tendermint-0", endB.ClientID)
	require.Equal(t, "connection-0", endA.ConnectionID)
	require.Equal(t, "connection-0", endB.ConnectionID)

	require.Equal(t, relayer.ChannelInfo{PortID: "transfer", ChannelID: "channel-0"}, lc.channel.Src)
	require.Equal(t, relayer.ChannelInfo{PortID: "transfer", ChannelID: "channel-0"}, lc.channel.Dest)

	chanA, err := lc.a.QueryChannel(ctx, "transfer", "channel-0")
	require.NoError(t, err)
	require.Equal(t, chantypes.OPEN, chanA.State)
	chanB, err := lc.b.QueryChannel(ctx, "transfer", "channel-0")
	require.NoError(t, err)
	require.Equal(t, chantypes.OPEN, chanB.State)
	require.Equal(t, "ics20-1", chanB.Version)
}

func TestRelayPacketsAndAcks(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 1000, 2222, 3456)

	packets, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	// nothing is submitted by looking
	again, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Equal(t, packets, again)

	none, err := lc.link.GetPendingPackets(ctx, relayer.SideB, 0, 0)
	require.NoError(t, err)
	require.Empty(t, none)

	acks, err := lc.link.RelayPackets(ctx, relayer.SideA, packets)
	require.NoError(t, err)
	require.Len(t, acks, 3)
	for i, ack := range acks {
		require.Equal(t, packets[i].Packet, ack.OriginalPacket)
		require.NotEmpty(t, ack.Acknowledgement)
	}

	packets, err = lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Empty(t, packets)

	pendingAcks, err := lc.link.GetPendingAcks(ctx, relayer.SideB, 0, 0)
	require.NoError(t, err)
	require.Len(t, pendingAcks, 3)

	height, err := lc.link.RelayAcks(ctx, relayer.SideB, pendingAcks)
	require.NoError(t, err)
	require.NotZero(t, height)

	pendingAcks, err = lc.link.GetPendingAcks(ctx, relayer.SideB, 0, 0)
	require.NoError(t, err)
	require.Empty(t, pendingAcks)

	for seq := uint64(1); seq <= 3; seq++ {
		commitment, err := lc.a.QueryPacketCommitment(ctx, "transfer", lc.channel.Src.ChannelID, seq)
		require.NoError(t, err)
		require.Empty(t, commitment)
	}
}

func TestRelayEmpty(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	acks, err := lc.link.RelayPackets(ctx, relayer.SideA, nil)
	require.NoError(t, err)
	require.Empty(t, acks)

	height, err := lc.link.RelayAcks(ctx, relayer.SideB, nil)
	require.NoError(t, err)
	require.Zero(t, height)

	n, err := lc.link.TimeoutPackets(ctx, relayer.SideA, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRelayAll(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 1, 2)

	info, err := lc.link.RelayAll(ctx, relayer.SideA)
	require.NoError(t, err)
	require.Equal(t, relayer.RelayInfo{PacketsFromA: 2, AcksFromB: 2}, info)

	info, err = lc.link.RelayAll(ctx, relayer.SideA)
	require.NoError(t, err)
	require.Equal(t, relayer.RelayInfo{}, info)
}

func TestWithFilter(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 10, 20, 30)

	filtered := lc.link.WithFilter(func(p chantypes.Packet) bool {
		return p.Sequence != 2
	})
	packets, err := filtered.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	require.Equal(t, uint64(1), packets[0].Sequence)
	require.Equal(t, uint64(3), packets[1].Sequence)

	// the original link is unchanged
	packets, err = lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 3)
}

func TestCheckAndRelayPacketsAndAcks(t *testing.T) {
	m := relayer.NewPrometheusMetrics()
	lc := newLinkedChains(t, relayer.WithMetrics(m), relayer.WithName("a-b"))
	ctx := context.Background()

	lc.transfer(t, 5, 6)

	next, info, err := lc.link.CheckAndRelayPacketsAndAcks(ctx, relayer.RelayCheckpoint{}, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Equal(t, 2, info.PacketsFromA)
	require.Zero(t, info.PacketsFromB)
	require.Zero(t, info.TimeoutsFromA)
	require.NotZero(t, next.PacketHeightA)
	require.NotZero(t, next.AckHeightB)

	require.Equal(t, float64(2), testutil.ToFloat64(m.PacketRelayedCounter.WithLabelValues("a-b", "chain-b", chantypes.EventTypeRecvPacket)))

	// acks written by the recv transaction go back in the same round
	require.Equal(t, 2, info.AcksFromB)
	require.Equal(t, float64(2), testutil.ToFloat64(m.PacketRelayedCounter.WithLabelValues("a-b", "chain-a", chantypes.EventTypeAcknowledgePacket)))

	pending, err := lc.link.GetPendingAcks(ctx, relayer.SideB, 0, 0)
	require.NoError(t, err)
	require.Empty(t, pending)

	_, info, err = lc.link.CheckAndRelayPacketsAndAcks(ctx, next, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Equal(t, relayer.RelayInfo{}, info)
}

func TestTimeoutPackets(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	clientA := lc.link.Endpoint(relayer.SideA).ClientID
	cs, err := lc.a.QueryClientState(ctx, clientA)
	require.NoError(t, err)
	timeout := clienttypes.NewHeight(cs.LatestHeight.RevisionNumber, cs.LatestHeight.RevisionHeight+2)

	res, err := lc.a.Transfer(ctx, "transfer", lc.channel.Src.ChannelID, sdk.NewInt64Coin("ustake", 1), "receiver", timeout, 0)
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)

	for lc.b.Height() <= int64(timeout.RevisionHeight) {
		lc.b.ProduceBlock()
	}

	_, info, err := lc.link.CheckAndRelayPacketsAndAcks(ctx, relayer.RelayCheckpoint{}, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Zero(t, info.PacketsFromA)
	require.Equal(t, 1, info.TimeoutsFromA)

	packets, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Empty(t, packets)

	// the packet can no longer be received either
	unreceived, err := lc.b.QueryUnreceivedPackets(ctx, "transfer", lc.channel.Dest.ChannelID, []uint64{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, unreceived)
}

func TestTimeoutPacketsSkipsUnexpired(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.transfer(t, 1)

	packets, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	n, err := lc.link.TimeoutPackets(ctx, relayer.SideA, packets)
	require.NoError(t, err)
	require.Zero(t, n)

	packets, err = lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
}

func TestCheckAndRelayRescansUnexpiredTimeouts(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	// inside the timeout margin, but not yet expired at B's next header
	header, err := lc.b.QuerySignedHeader(ctx, 0)
	require.NoError(t, err)
	timeout := header.Time.Add(2 * time.Second)
	res, err := lc.a.Transfer(ctx, "transfer", lc.channel.Src.ChannelID, sdk.NewInt64Coin("ustake", 1), "receiver",
		clienttypes.ZeroHeight(), uint64(timeout.UnixNano()))
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)
	lc.a.ProduceBlock()
	lc.a.ProduceBlock()

	next, info, err := lc.link.CheckAndRelayPacketsAndAcks(ctx, relayer.RelayCheckpoint{}, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Zero(t, info.PacketsFromA)
	require.Zero(t, info.TimeoutsFromA)
	require.LessOrEqual(t, next.PacketHeightA, res.Height)

	time.Sleep(time.Until(timeout) + 100*time.Millisecond)

	_, info, err = lc.link.CheckAndRelayPacketsAndAcks(ctx, next, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Equal(t, 1, info.TimeoutsFromA)

	packets, err := lc.link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Empty(t, packets)
}

func TestCreateWithExistingConnections(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()
	log := relayer.WithLogger(zaptest.NewLogger(t))

	link, err := relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-0", "connection-0", log)
	require.NoError(t, err)
	require.Equal(t, "07-tendermint-0", link.Endpoint(relayer.SideA).ClientID)
	require.Equal(t, "07-tendermint-0", link.Endpoint(relayer.SideB).ClientID)

	lc.transfer(t, 7)
	packets, err := link.GetPendingPackets(ctx, relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-0", "connection-9", log)
	require.ErrorIs(t, err, relayer.ErrConnectionNotFound)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "", "connection-0", log)
	require.ErrorIs(t, err, relayer.ErrConnectionNotFound)
}

func TestCreateWithExistingConnectionsNotOpen(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	res, err := lc.a.ConnOpenInit(ctx, "07-tendermint-0", "07-tendermint-0")
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-1", "connection-0")
	require.ErrorIs(t, err, relayer.ErrConnectionNotOpen)
}

func TestCreateWithExistingConnectionsMismatch(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	second, err := relayer.CreateWithNewConnections(ctx, lc.a, lc.b, 0, 0, relayer.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Equal(t, "connection-1", second.Endpoint(relayer.SideA).ConnectionID)
	require.Equal(t, "connection-1", second.Endpoint(relayer.SideB).ConnectionID)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-0", "connection-1")
	require.ErrorIs(t, err, relayer.ErrCounterpartyClientMismatch)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-1", "connection-1")
	require.NoError(t, err)
}

func TestCreateWithExistingConnectionsChainIDMismatch(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	// the connections still reference each other's clients, but A's client follows another chain
	res, err := lc.a.OverwriteClientState(ctx, "07-tendermint-0", func(cs *ibctmtypes.ClientState) {
		cs.ChainId = "chain-c"
	})
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-0", "connection-0")
	require.ErrorIs(t, err, relayer.ErrChainIDMismatch)
}

func TestCreateWithExistingConnectionsHeaderMismatch(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	clientB := lc.link.Endpoint(relayer.SideB).ClientID
	cs, err := lc.b.QueryClientState(ctx, clientB)
	require.NoError(t, err)

	res, err := lc.b.OverwriteConsensusState(ctx, clientB, cs.LatestHeight, func(cons *ibctmtypes.ConsensusState) {
		cons.Root = commitmenttypes.NewMerkleRoot([]byte("not the app hash of chain-a"))
	})
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)

	_, err = relayer.CreateWithExistingConnections(ctx, lc.a, lc.b, "connection-0", "connection-0")
	require.ErrorIs(t, err, relayer.ErrHeaderMismatch)
}

func TestUpdateClientIfStale(t *testing.T) {
	mockClock := clock.NewMock()
	mockClock.Set(time.Now())
	lc := newLinkedChains(t, relayer.WithClock(mockClock))
	ctx := context.Background()

	height, err := lc.link.UpdateClientIfStale(ctx, relayer.SideA, time.Hour)
	require.NoError(t, err)
	require.Nil(t, height)

	clientB := lc.link.Endpoint(relayer.SideB).ClientID
	before, err := lc.b.QueryClientState(ctx, clientB)
	require.NoError(t, err)

	mockClock.Add(2 * time.Hour)
	lc.a.ProduceBlock()

	height, err = lc.link.UpdateClientIfStale(ctx, relayer.SideA, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, height)
	require.True(t, height.GT(before.LatestHeight), "updated to %s, client was at %s", height, before.LatestHeight)

	cs, err := lc.b.QueryClientState(ctx, clientB)
	require.NoError(t, err)
	require.Equal(t, *height, cs.LatestHeight)

	require.NoError(t, lc.link.UpdateClientsIfStale(ctx, 24*time.Hour))
}

func TestUpdateClientToHeight(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	cs, err := lc.b.QueryClientState(ctx, lc.link.Endpoint(relayer.SideB).ClientID)
	require.NoError(t, err)

	// already known, nothing is submitted
	height, err := lc.link.UpdateClientToHeight(ctx, relayer.SideA, int64(cs.LatestHeight.RevisionHeight))
	require.NoError(t, err)
	require.Equal(t, cs.LatestHeight, height)

	target := lc.a.Height() + 3
	height, err = lc.link.UpdateClientToHeight(ctx, relayer.SideA, target)
	require.NoError(t, err)
	require.GreaterOrEqual(t, int64(height.RevisionHeight), target)
}

func TestUpdateClients(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.a.ProduceBlock()
	lc.b.ProduceBlock()

	heightA, heightB, err := lc.link.UpdateClients(ctx)
	require.NoError(t, err)

	csB, err := lc.b.QueryClientState(ctx, lc.link.Endpoint(relayer.SideB).ClientID)
	require.NoError(t, err)
	require.Equal(t, heightA, csB.LatestHeight)

	csA, err := lc.a.QueryClientState(ctx, lc.link.Endpoint(relayer.SideA).ClientID)
	require.NoError(t, err)
	require.Equal(t, heightB, csA.LatestHeight)
}

func TestOrderedChannelTimeoutClosesChannel(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	ordered, err := lc.link.CreateChannel(ctx, relayer.SideA, "transfer", "transfer", chantypes.ORDERED, "ics20-1")
	require.NoError(t, err)
	require.Equal(t, "channel-1", ordered.Src.ChannelID)

	cs, err := lc.a.QueryClientState(ctx, lc.link.Endpoint(relayer.SideA).ClientID)
	require.NoError(t, err)
	timeout := clienttypes.NewHeight(cs.LatestHeight.RevisionNumber, cs.LatestHeight.RevisionHeight+2)

	res, err := lc.a.Transfer(ctx, "transfer", ordered.Src.ChannelID, sdk.NewInt64Coin("ustake", 1), "receiver", timeout, 0)
	require.NoError(t, err)
	require.Zero(t, res.Code, res.Data)

	for lc.b.Height() <= int64(timeout.RevisionHeight) {
		lc.b.ProduceBlock()
	}

	_, info, err := lc.link.CheckAndRelayPacketsAndAcks(ctx, relayer.RelayCheckpoint{}, relayer.DefaultTimeoutThreshold())
	require.NoError(t, err)
	require.Equal(t, 1, info.TimeoutsFromA)

	channel, err := lc.a.QueryChannel(ctx, "transfer", ordered.Src.ChannelID)
	require.NoError(t, err)
	require.Equal(t, chantypes.CLOSED, channel.State)
}

func TestCreateChannelNegotiatesVersion(t *testing.T) {
	lc := newLinkedChains(t)
	ctx := context.Background()

	lc.b.SetPortVersion("transfer", "ics20-2")
	pair, err := lc.link.CreateChannel(ctx, relayer.SideA, "transfer", "transfer", chantypes.UNORDERED, "ics20-1")
	require.NoError(t, err)

	chanA, err := lc.a.QueryChannel(ctx, pair.Src.PortID, pair.Src.ChannelID)
	require.NoError(t, err)
	require.Equal(t, "ics20-2", chanA.Version)
	chanB, err := lc.b.QueryChannel(ctx, pair.Dest.PortID, pair.Dest.ChannelID)
	require.NoError(t, err)
	require.Equal(t, "ics20-2", chanB.Version)
}

func TestCreateChannelRejectsInvalidParams(t *testing.T) {
	lc := newLinkedChains(t)

	_, err := lc.link.CreateChannel(context.Background(), relayer.SideB, "", "transfer", chantypes.UNORDERED, "ics20-1")
	require.Error(t, err)
}
