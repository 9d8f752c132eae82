package relayer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PacketFilter reports whether a packet should be relayed.
type PacketFilter func(chantypes.Packet) bool

// Link relays between two chains over one connection. A Link holds no state
// between calls: everything that is pending is derived from chain state.
// A Link must be driven by a single relay loop at a time.
type Link struct {
	endpoints [2]*Endpoint

	name    string
	log     *zap.Logger
	filter  PacketFilter
	clock   clock.Clock
	metrics *PrometheusMetrics
}

// LinkOption configures a Link at construction time.
type LinkOption func(*Link)

// WithLogger sets the logger of the link.
func WithLogger(log *zap.Logger) LinkOption {
	return func(l *Link) {
		l.log = log
	}
}

// WithPacketFilter only relays packets, acks and timeouts of packets accepted by f.
func WithPacketFilter(f PacketFilter) LinkOption {
	return func(l *Link) {
		l.filter = f
	}
}

// WithClock replaces the wall clock used to judge client staleness.
func WithClock(c clock.Clock) LinkOption {
	return func(l *Link) {
		l.clock = c
	}
}

// WithMetrics records relay activity in m.
func WithMetrics(m *PrometheusMetrics) LinkOption {
	return func(l *Link) {
		l.metrics = m
	}
}

// WithName names the link in logs and metrics.
func WithName(name string) LinkOption {
	return func(l *Link) {
		l.name = name
	}
}

// NewLink returns a Link over two endpoints without any validation.
// Use CreateWithExistingConnections to reuse connections found on chain.
func NewLink(endA, endB *Endpoint, opts ...LinkOption) *Link {
	l := &Link{
		endpoints: [2]*Endpoint{endA, endB},
		log:       zap.NewNop(),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(
		zap.String("chain_id_a", endA.ChainID()),
		zap.String("chain_id_b", endB.ChainID()),
	)
	if l.name != "" {
		l.log = l.log.With(zap.String("link", l.name))
	}
	return l
}

// Endpoint returns the endpoint on side s.
func (l *Link) Endpoint(s Side) *Endpoint {
	return l.endpoints[s]
}

// WithFilter returns a copy of the link that relays only packets accepted by f.
// A nil f relays everything.
func (l *Link) WithFilter(f PacketFilter) *Link {
	cp := *l
	cp.filter = f
	return &cp
}

// ends returns the endpoint on the sending side and its counterparty.
func (l *Link) ends(sender Side) (src, dst *Endpoint) {
	return l.endpoints[sender], l.endpoints[sender.Other()]
}

func (l *Link) accept(p chantypes.Packet) bool {
	return l.filter == nil || l.filter(p)
}

// CreateWithExistingConnections returns a Link over two connections that are
// already open. It verifies that the connections point at each other, that each
// light client tracks the counterparty chain, and that the latest consensus state
// of each client matches the header the counterparty chain actually produced.
func CreateWithExistingConnections(ctx context.Context, pA, pB provider.ChainProvider, connA, connB string, opts ...LinkOption) (*Link, error) {
	var connectionA, connectionB *conntypes.ConnectionEnd
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		connectionA, err = queryOpenConnection(egCtx, pA, connA)
		return err
	})
	eg.Go(func() (err error) {
		connectionB, err = queryOpenConnection(egCtx, pB, connB)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	clientIDA, clientIDB := connectionA.ClientId, connectionB.ClientId
	if clientIDA != connectionB.Counterparty.ClientId {
		return nil, fmt.Errorf("%w: client %s on %s, %s expects %s",
			ErrCounterpartyClientMismatch, clientIDA, pA.ChainID(), connB, connectionB.Counterparty.ClientId)
	}
	if clientIDB != connectionA.Counterparty.ClientId {
		return nil, fmt.Errorf("%w: client %s on %s, %s expects %s",
			ErrCounterpartyClientMismatch, clientIDB, pB.ChainID(), connA, connectionA.Counterparty.ClientId)
	}

	var heightA, heightB clienttypes.Height
	eg, egCtx = errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		heightA, err = queryClientTracking(egCtx, pA, clientIDA, pB.ChainID())
		return err
	})
	eg.Go(func() (err error) {
		heightB, err = queryClientTracking(egCtx, pB, clientIDB, pA.ChainID())
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	l := NewLink(NewEndpoint(pA, clientIDA, connA), NewEndpoint(pB, clientIDB, connB), opts...)

	eg, egCtx = errgroup.WithContext(ctx)
	eg.Go(func() error {
		return l.assertHeadersMatchConsensusState(egCtx, SideA, heightA)
	})
	eg.Go(func() error {
		return l.assertHeadersMatchConsensusState(egCtx, SideB, heightB)
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	l.log.Info(
		"Link created from existing connections",
		zap.String("connection_id_a", connA),
		zap.String("connection_id_b", connB),
		zap.String("client_id_a", clientIDA),
		zap.String("client_id_b", clientIDB),
	)
	return l, nil
}

func queryOpenConnection(ctx context.Context, p provider.QueryProvider, connectionID string) (*conntypes.ConnectionEnd, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("%w: empty connection id for %s", ErrConnectionNotFound, p.ChainID())
	}
	conn, err := p.QueryConnection(ctx, connectionID)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s on %s", ErrConnectionNotFound, connectionID, p.ChainID())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query connection %s on %s: %w", connectionID, p.ChainID(), err)
	}
	if conn.State != conntypes.OPEN {
		return nil, fmt.Errorf("%w: %s on %s is %s", ErrConnectionNotOpen, connectionID, p.ChainID(), conn.State)
	}
	return conn, nil
}

// queryClientTracking checks that the client tracks counterpartyChainID and
// returns its latest height.
func queryClientTracking(ctx context.Context, p provider.QueryProvider, clientID, counterpartyChainID string) (clienttypes.Height, error) {
	cs, err := p.QueryClientState(ctx, clientID)
	if err != nil {
		return clienttypes.Height{}, fmt.Errorf("failed to query client %s on %s: %w", clientID, p.ChainID(), err)
	}
	if cs.ChainId != counterpartyChainID {
		return clienttypes.Height{}, fmt.Errorf("%w: client %s on %s tracks %s, counterparty is %s",
			ErrChainIDMismatch, clientID, p.ChainID(), cs.ChainId, counterpartyChainID)
	}
	return cs.LatestHeight, nil
}

// assertHeadersMatchConsensusState compares the consensus state stored by the client
// on side at height with the header the counterparty chain produced at that height.
func (l *Link) assertHeadersMatchConsensusState(ctx context.Context, side Side, height clienttypes.Height) error {
	host, remote := l.ends(side)

	cons, err := host.Provider.QueryConsensusState(ctx, host.ClientID, height)
	if err != nil {
		return fmt.Errorf("failed to query consensus state %s of client %s on %s: %w", height, host.ClientID, host.ChainID(), err)
	}
	header, err := remote.Provider.QuerySignedHeader(ctx, int64(height.RevisionHeight))
	if err != nil {
		return fmt.Errorf("failed to query header %d on %s: %w", height.RevisionHeight, remote.ChainID(), err)
	}

	if !bytes.Equal(cons.NextValidatorsHash, header.NextValidatorsHash) {
		return fmt.Errorf("%w: next validators hash of client %s on %s at %s is %X, header has %X",
			ErrHeaderMismatch, host.ClientID, host.ChainID(), height, cons.NextValidatorsHash, header.NextValidatorsHash)
	}
	if !bytes.Equal(cons.Root.GetHash(), header.AppHash) {
		return fmt.Errorf("%w: root of client %s on %s at %s is %X, header app hash is %X",
			ErrHeaderMismatch, host.ClientID, host.ChainID(), height, cons.Root.GetHash(), header.AppHash)
	}
	return nil
}
