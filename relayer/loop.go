package relayer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxClientAge = 24 * time.Hour
)

// CheckpointStore persists the relay checkpoint between rounds.
type CheckpointStore interface {
	Load(ctx context.Context) (RelayCheckpoint, error)
	Save(ctx context.Context, c RelayCheckpoint) error
}

// MemoryCheckpointStore keeps the checkpoint in memory.
type MemoryCheckpointStore struct {
	mu sync.Mutex
	c  RelayCheckpoint
}

func (s *MemoryCheckpointStore) Load(context.Context) (RelayCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c, nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, c RelayCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
	return nil
}

// RelayLoopOptions configures StartRelayer.
type RelayLoopOptions struct {
	// PollInterval is the pause between two relay rounds.
	PollInterval time.Duration
	// MaxClientAge triggers a client update when a light client's latest
	// consensus state is older. Zero disables the check.
	MaxClientAge time.Duration
	Threshold    TimeoutThreshold
	// Store defaults to a MemoryCheckpointStore.
	Store CheckpointStore
	// OnRound is called after every successful round.
	OnRound func(RelayCheckpoint, RelayInfo)
}

// StartRelayer relays over link in a loop until ctx is done. Errors of a round are
// logged and the round is retried from the same checkpoint after the poll interval.
// The returned channel receives the reason the loop stopped.
func StartRelayer(ctx context.Context, log *zap.Logger, link *Link, opts RelayLoopOptions) chan error {
	errorChan := make(chan error, 1)

	go func() {
		errorChan <- relayerStartLoop(ctx, log, link, opts)
	}()

	return errorChan
}

func relayerStartLoop(ctx context.Context, log *zap.Logger, link *Link, opts RelayLoopOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Store == nil {
		opts.Store = &MemoryCheckpointStore{}
	}

	checkpoint, err := opts.Store.Load(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		next, info, err := relayRound(ctx, link, checkpoint, opts)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			link.metrics.IncRelayRounds(link.name, "error")
			log.Warn(
				"Relay round failed, retrying on next tick",
				zap.Any("checkpoint", checkpoint),
				zap.Error(err),
			)
		default:
			link.metrics.IncRelayRounds(link.name, "success")
			checkpoint = next
			if err := opts.Store.Save(ctx, checkpoint); err != nil {
				log.Warn("Failed to save relay checkpoint", zap.Error(err))
			}
			if opts.OnRound != nil {
				opts.OnRound(checkpoint, info)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func relayRound(ctx context.Context, link *Link, from RelayCheckpoint, opts RelayLoopOptions) (RelayCheckpoint, RelayInfo, error) {
	if opts.MaxClientAge > 0 {
		if err := link.UpdateClientsIfStale(ctx, opts.MaxClientAge); err != nil {
			return from, RelayInfo{}, err
		}
	}
	return link.CheckAndRelayPacketsAndAcks(ctx, from, opts.Threshold)
}
