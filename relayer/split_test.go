package relayer

import (
	"testing"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func packetWithTimeout(seq uint64, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) PacketWithMetadata {
	return PacketWithMetadata{
		Packet: chantypes.Packet{
			Sequence:         seq,
			TimeoutHeight:    timeoutHeight,
			TimeoutTimestamp: timeoutTimestamp,
		},
	}
}

func sequences(packets []PacketWithMetadata) []uint64 {
	var seqs []uint64
	for _, p := range packets {
		seqs = append(seqs, p.Sequence)
	}
	return seqs
}

func TestSplitPendingPackets(t *testing.T) {
	cutoffHeight := clienttypes.NewHeight(0, 100)
	cutoffTime := uint64(1_000_000)

	tests := []struct {
		name    string
		packet  PacketWithMetadata
		timeout bool
	}{
		{name: "no timeout", packet: packetWithTimeout(1, clienttypes.ZeroHeight(), 0), timeout: false},
		{name: "height after cutoff", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 101), 0), timeout: false},
		{name: "height at cutoff", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 100), 0), timeout: true},
		{name: "height before cutoff", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 50), 0), timeout: true},
		{name: "later revision", packet: packetWithTimeout(1, clienttypes.NewHeight(1, 1), 0), timeout: false},
		{name: "time after cutoff", packet: packetWithTimeout(1, clienttypes.ZeroHeight(), cutoffTime+1), timeout: false},
		{name: "time at cutoff", packet: packetWithTimeout(1, clienttypes.ZeroHeight(), cutoffTime), timeout: true},
		{name: "time before cutoff", packet: packetWithTimeout(1, clienttypes.ZeroHeight(), 5), timeout: true},
		{name: "height valid time expired", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 500), 5), timeout: true},
		{name: "height expired time valid", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 5), cutoffTime*2), timeout: true},
		{name: "both valid", packet: packetWithTimeout(1, clienttypes.NewHeight(0, 500), cutoffTime*2), timeout: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			toSubmit, toTimeout := SplitPendingPackets(cutoffHeight, cutoffTime, []PacketWithMetadata{tt.packet})
			if tt.timeout {
				require.Empty(t, toSubmit)
				require.Len(t, toTimeout, 1)
			} else {
				require.Len(t, toSubmit, 1)
				require.Empty(t, toTimeout)
			}
		})
	}
}

func TestSplitPendingPacketsKeepsOrder(t *testing.T) {
	packets := []PacketWithMetadata{
		packetWithTimeout(1, clienttypes.NewHeight(0, 10), 0),
		packetWithTimeout(2, clienttypes.NewHeight(0, 1000), 0),
		packetWithTimeout(3, clienttypes.NewHeight(0, 20), 0),
		packetWithTimeout(4, clienttypes.ZeroHeight(), 0),
	}

	toSubmit, toTimeout := SplitPendingPackets(clienttypes.NewHeight(0, 100), 0, packets)
	require.Equal(t, []uint64{2, 4}, sequences(toSubmit))
	require.Equal(t, []uint64{1, 3}, sequences(toTimeout))
}

func TestSplitPendingPacketsPartition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n").(int)
		cutoffHeight := clienttypes.NewHeight(0, rapid.Uint64Range(0, 100).Draw(t, "cutoffHeight").(uint64))
		cutoffTime := rapid.Uint64Range(0, 100).Draw(t, "cutoffTime").(uint64)

		packets := make([]PacketWithMetadata, n)
		for i := range packets {
			h := rapid.Uint64Range(0, 120).Draw(t, "timeoutHeight").(uint64)
			ts := rapid.Uint64Range(0, 120).Draw(t, "timeoutTimestamp").(uint64)
			packets[i] = packetWithTimeout(uint64(i+1), clienttypes.NewHeight(0, h), ts)
		}

		toSubmit, toTimeout := SplitPendingPackets(cutoffHeight, cutoffTime, packets)
		if len(toSubmit)+len(toTimeout) != n {
			t.Fatalf("split %d packets into %d and %d", n, len(toSubmit), len(toTimeout))
		}
		for _, p := range toSubmit {
			if !p.TimeoutHeight.IsZero() && p.TimeoutHeight.LTE(cutoffHeight) {
				t.Fatalf("packet %d submitted with timeout height %s at cutoff %s", p.Sequence, p.TimeoutHeight, cutoffHeight)
			}
			if p.TimeoutTimestamp != 0 && p.TimeoutTimestamp <= cutoffTime {
				t.Fatalf("packet %d submitted with timeout %d at cutoff %d", p.Sequence, p.TimeoutTimestamp, cutoffTime)
			}
		}
		for _, p := range toTimeout {
			heightExpired := !p.TimeoutHeight.IsZero() && p.TimeoutHeight.LTE(cutoffHeight)
			timeExpired := p.TimeoutTimestamp != 0 && p.TimeoutTimestamp <= cutoffTime
			if !heightExpired && !timeExpired {
				t.Fatalf("packet %d timed out without expiring", p.Sequence)
			}
		}
	})
}
