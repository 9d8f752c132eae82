package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CreateWithNewConnections creates a light client on each chain tracking the other one
// and opens a new connection between them with the four step handshake:
// init on A, try on B, ack on A and confirm on B.
// trustPeriodA and trustPeriodB are the trusting periods of the clients hosted on A and B;
// zero means two thirds of the tracked chain's unbonding period.
func CreateWithNewConnections(ctx context.Context, pA, pB provider.ChainProvider, trustPeriodA, trustPeriodB time.Duration, opts ...LinkOption) (*Link, error) {
	l := NewLink(NewEndpoint(pA, "", ""), NewEndpoint(pB, "", ""), opts...)

	clientIDA, clientIDB, err := CreateClients(ctx, l.log, pA, pB, trustPeriodA, trustPeriodB)
	if err != nil {
		return nil, err
	}
	l.endpoints[SideA].ClientID = clientIDA
	l.endpoints[SideB].ClientID = clientIDB

	// wait a block so the new clients can be proven
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return waitOneBlock(egCtx, pA) })
	eg.Go(func() error { return waitOneBlock(egCtx, pB) })
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res, err := pA.ConnOpenInit(ctx, clientIDA, clientIDB)
	if err := checkTxResponse(pA.ChainID(), res, err); err != nil {
		logFailedTx(l.log, pA.ChainID(), "connection_open_init", res, err)
		return nil, fmt.Errorf("connection open init on %s: %w", pA.ChainID(), err)
	}
	connIDA, err := ParseConnectionIDFromEvents(res.Events)
	if err != nil {
		return nil, err
	}
	l.endpoints[SideA].ConnectionID = connIDA

	proofInit, err := l.prepareConnectionHandshake(ctx, SideA)
	if err != nil {
		return nil, err
	}
	res, err = pB.ConnOpenTry(ctx, clientIDB, proofInit)
	if err := checkTxResponse(pB.ChainID(), res, err); err != nil {
		logFailedTx(l.log, pB.ChainID(), "connection_open_try", res, err)
		return nil, fmt.Errorf("connection open try on %s: %w", pB.ChainID(), err)
	}
	connIDB, err := ParseConnectionIDFromEvents(res.Events)
	if err != nil {
		return nil, err
	}
	l.endpoints[SideB].ConnectionID = connIDB

	proofTry, err := l.prepareConnectionHandshake(ctx, SideB)
	if err != nil {
		return nil, err
	}
	res, err = pA.ConnOpenAck(ctx, connIDA, proofTry)
	if err := checkTxResponse(pA.ChainID(), res, err); err != nil {
		logFailedTx(l.log, pA.ChainID(), "connection_open_ack", res, err)
		return nil, fmt.Errorf("connection open ack on %s: %w", pA.ChainID(), err)
	}

	proofAck, err := l.prepareConnectionHandshake(ctx, SideA)
	if err != nil {
		return nil, err
	}
	res, err = pB.ConnOpenConfirm(ctx, connIDB, proofAck.ProofHeight, proofAck.ProofConnection)
	if err := checkTxResponse(pB.ChainID(), res, err); err != nil {
		logFailedTx(l.log, pB.ChainID(), "connection_open_confirm", res, err)
		return nil, fmt.Errorf("connection open confirm on %s: %w", pB.ChainID(), err)
	}

	l.log.Info(
		"Connection created",
		zap.String("client_id_a", clientIDA),
		zap.String("connection_id_a", connIDA),
		zap.String("client_id_b", clientIDB),
		zap.String("connection_id_b", connIDB),
	)
	return l, nil
}

// prepareConnectionHandshake waits for the sender's last transaction to be provable,
// updates the sender's client on the other side and proves the sender's connection end.
func (l *Link) prepareConnectionHandshake(ctx context.Context, sender Side) (provider.ConnectionHandshakeProof, error) {
	src, _ := l.ends(sender)
	if err := waitOneBlock(ctx, src.Provider); err != nil {
		return provider.ConnectionHandshakeProof{}, err
	}
	headerHeight, err := l.UpdateClient(ctx, sender)
	if err != nil {
		return provider.ConnectionHandshakeProof{}, err
	}
	return BuildConnectionProof(ctx, src.Provider, src.ClientID, src.ConnectionID, headerHeight)
}
