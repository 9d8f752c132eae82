package relayer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cosmos/link-relayer/relayer"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type roundRecorder struct {
	mu     sync.Mutex
	rounds int
	total  relayer.RelayInfo
	last   relayer.RelayCheckpoint
}

func (r *roundRecorder) record(c relayer.RelayCheckpoint, info relayer.RelayInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds++
	r.last = c
	r.total.PacketsFromA += info.PacketsFromA
	r.total.PacketsFromB += info.PacketsFromB
	r.total.AcksFromA += info.AcksFromA
	r.total.AcksFromB += info.AcksFromB
	r.total.TimeoutsFromA += info.TimeoutsFromA
	r.total.TimeoutsFromB += info.TimeoutsFromB
}

func (r *roundRecorder) snapshot() (int, relayer.RelayInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds, r.total
}

func TestStartRelayer(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lc := newLinkedChains(t)
	lc.transfer(t, 11, 12, 13)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &relayer.MemoryCheckpointStore{}
	rec := &roundRecorder{}
	errCh := relayer.StartRelayer(ctx, zaptest.NewLogger(t), lc.link, relayer.RelayLoopOptions{
		PollInterval: 10 * time.Millisecond,
		MaxClientAge: time.Hour,
		Threshold:    relayer.DefaultTimeoutThreshold(),
		Store:        store,
		OnRound:      rec.record,
	})

	require.Eventually(t, func() bool {
		_, total := rec.snapshot()
		return total.PacketsFromA == 3 && total.AcksFromB == 3
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay loop did not stop")
	}

	rounds, _ := rec.snapshot()
	require.NotZero(t, rounds)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, rec.last, saved)
	require.NotZero(t, saved.PacketHeightA)
}

func TestStartRelayerResumesFromStore(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lc := newLinkedChains(t)
	lc.transfer(t, 1)
	sentAt := lc.a.Height()

	// a checkpoint past the packet skips it
	store := &relayer.MemoryCheckpointStore{}
	require.NoError(t, store.Save(context.Background(), relayer.RelayCheckpoint{
		PacketHeightA: sentAt + 1,
		PacketHeightB: lc.b.Height(),
		AckHeightA:    lc.a.Height(),
		AckHeightB:    lc.b.Height(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &roundRecorder{}
	errCh := relayer.StartRelayer(ctx, zaptest.NewLogger(t), lc.link, relayer.RelayLoopOptions{
		PollInterval: 10 * time.Millisecond,
		Store:        store,
		OnRound:      rec.record,
	})

	require.Eventually(t, func() bool {
		rounds, _ := rec.snapshot()
		return rounds >= 2
	}, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	_, total := rec.snapshot()
	require.Zero(t, total.PacketsFromA)

	packets, err := lc.link.GetPendingPackets(context.Background(), relayer.SideA, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
}
