package relayer

import (
	"context"
	"fmt"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CreateClients creates a light client of chain B on chain A and one of chain A on chain B.
// trustPeriodA is the trusting period of the client hosted on A, trustPeriodB of the one
// hosted on B; zero means two thirds of the tracked chain's unbonding period.
func CreateClients(ctx context.Context, log *zap.Logger, pA, pB provider.ChainProvider, trustPeriodA, trustPeriodB time.Duration) (clientIDA, clientIDB string, err error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		clientIDA, err = CreateClient(egCtx, log, pA, pB, trustPeriodA)
		return err
	})
	eg.Go(func() (err error) {
		clientIDB, err = CreateClient(egCtx, log, pB, pA, trustPeriodB)
		return err
	})
	if err := eg.Wait(); err != nil {
		return "", "", err
	}

	log.Info(
		"Clients created",
		zap.String("src_client_id", clientIDA),
		zap.String("src_chain_id", pA.ChainID()),
		zap.String("dst_client_id", clientIDB),
		zap.String("dst_chain_id", pB.ChainID()),
	)
	return clientIDA, clientIDB, nil
}

// CreateClient creates a light client of remote on host and returns its identifier.
func CreateClient(ctx context.Context, log *zap.Logger, host provider.ChainProvider, remote provider.QueryProvider, trustPeriod time.Duration) (string, error) {
	chainID := host.ChainID()
	clientState, consensusState, err := BuildClientState(ctx, remote, trustPeriod)
	if err != nil {
		return "", err
	}

	res, err := host.CreateClient(ctx, clientState, consensusState)
	if err := checkTxResponse(chainID, res, err); err != nil {
		logFailedTx(log, chainID, "create_client", res, err)
		return "", fmt.Errorf("failed to create client of %s on %s: %w", remote.ChainID(), chainID, err)
	}

	clientID, err := ParseClientIDFromEvents(res.Events)
	if err != nil {
		return "", err
	}

	log.Debug(
		"Client created",
		zap.String("chain_id", chainID),
		zap.String("client_id", clientID),
		zap.String("counterparty_chain_id", remote.ChainID()),
		zap.Stringer("height", clientState.LatestHeight),
		zap.Duration("trusting_period", clientState.TrustingPeriod),
	)
	return clientID, nil
}

// UpdateClient pushes the latest header of sender to the light client on the
// other side and returns the height now known by that client.
func (l *Link) UpdateClient(ctx context.Context, sender Side) (clienttypes.Height, error) {
	src, dst := l.ends(sender)

	clientState, err := dst.Provider.QueryClientState(ctx, dst.ClientID)
	if err != nil {
		return clienttypes.Height{}, fmt.Errorf("failed to query client %s on %s: %w", dst.ClientID, dst.ChainID(), err)
	}

	header, err := BuildHeader(ctx, src.Provider, int64(clientState.LatestHeight.RevisionHeight))
	if err != nil {
		return clienttypes.Height{}, err
	}

	res, err := dst.Provider.UpdateClient(ctx, dst.ClientID, header)
	if err := checkTxResponse(dst.ChainID(), res, err); err != nil {
		logFailedTx(l.log, dst.ChainID(), "update_client", res, err)
		l.metrics.IncTxFailure(l.name, dst.ChainID(), "update_client")
		return clienttypes.Height{}, fmt.Errorf("failed to update client %s on %s: %w", dst.ClientID, dst.ChainID(), err)
	}

	height := provider.MustGetHeight(header.GetHeight())
	l.metrics.IncClientUpdates(l.name, dst.ChainID(), dst.ClientID)
	l.log.Debug(
		"Client updated",
		zap.String("src_chain_id", src.ChainID()),
		zap.String("dst_chain_id", dst.ChainID()),
		zap.String("client_id", dst.ClientID),
		zap.Stringer("trusted_height", clientState.LatestHeight),
		zap.Stringer("height", height),
	)
	return height, nil
}

// UpdateClientIfStale updates the light client of sender on the other side when its
// latest consensus state is at least maxAge old. It returns nil if no update was needed.
func (l *Link) UpdateClientIfStale(ctx context.Context, sender Side, maxAge time.Duration) (*clienttypes.Height, error) {
	_, dst := l.ends(sender)

	known, err := l.lastKnownConsensusTime(ctx, sender)
	if err != nil {
		return nil, err
	}
	if !known.IsZero() && l.clock.Since(known) < maxAge {
		return nil, nil
	}

	l.log.Info(
		"Updating stale client",
		zap.String("chain_id", dst.ChainID()),
		zap.String("client_id", dst.ClientID),
		zap.Time("consensus_time", known),
		zap.Duration("max_age", maxAge),
	)
	height, err := l.UpdateClient(ctx, sender)
	if err != nil {
		return nil, err
	}
	return &height, nil
}

// UpdateClientToHeight makes sure the light client of sender on the other side knows
// a header of at least minHeight. If it already does, its latest height is returned
// without submitting anything. Otherwise the client is updated to sender's latest header,
// waiting for sender to produce minHeight first if needed.
func (l *Link) UpdateClientToHeight(ctx context.Context, sender Side, minHeight int64) (clienttypes.Height, error) {
	src, dst := l.ends(sender)

	clientState, err := dst.Provider.QueryClientState(ctx, dst.ClientID)
	if err != nil {
		return clienttypes.Height{}, fmt.Errorf("failed to query client %s on %s: %w", dst.ClientID, dst.ChainID(), err)
	}
	if int64(clientState.LatestHeight.RevisionHeight) >= minHeight {
		return clientState.LatestHeight, nil
	}

	if err := waitForHeight(ctx, src.Provider, minHeight); err != nil {
		return clienttypes.Height{}, err
	}
	return l.UpdateClient(ctx, sender)
}

// UpdateClients updates both light clients concurrently.
func (l *Link) UpdateClients(ctx context.Context) (heightA, heightB clienttypes.Height, err error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		heightA, err = l.UpdateClient(egCtx, SideA)
		return err
	})
	eg.Go(func() (err error) {
		heightB, err = l.UpdateClient(egCtx, SideB)
		return err
	})
	err = eg.Wait()
	return heightA, heightB, err
}

// UpdateClientsIfStale runs UpdateClientIfStale for both directions concurrently.
func (l *Link) UpdateClientsIfStale(ctx context.Context, maxAge time.Duration) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, side := range []Side{SideA, SideB} {
		side := side
		eg.Go(func() error {
			_, err := l.UpdateClientIfStale(egCtx, side, maxAge)
			return err
		})
	}
	return eg.Wait()
}

// lastKnownConsensusTime returns the timestamp of the latest consensus state the light
// client of sender on the other side holds.
func (l *Link) lastKnownConsensusTime(ctx context.Context, sender Side) (time.Time, error) {
	_, dst := l.ends(sender)

	clientState, err := dst.Provider.QueryClientState(ctx, dst.ClientID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query client %s on %s: %w", dst.ClientID, dst.ChainID(), err)
	}
	cons, err := dst.Provider.QueryConsensusState(ctx, dst.ClientID, clientState.LatestHeight)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query consensus state %s of client %s on %s: %w",
			clientState.LatestHeight, dst.ClientID, dst.ChainID(), err)
	}
	return cons.Timestamp, nil
}
