package relayer

import (
	"context"
	"fmt"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RelayCheckpoint is where the next relay round resumes scanning. It is the only
// state carried from one round to the next.
type RelayCheckpoint struct {
	PacketHeightA int64 `json:"packet-height-a" yaml:"packet-height-a"`
	PacketHeightB int64 `json:"packet-height-b" yaml:"packet-height-b"`
	AckHeightA    int64 `json:"ack-height-a" yaml:"ack-height-a"`
	AckHeightB    int64 `json:"ack-height-b" yaml:"ack-height-b"`
}

// RelayInfo summarises a relay round.
type RelayInfo struct {
	PacketsFromA  int `json:"packets-from-a"`
	PacketsFromB  int `json:"packets-from-b"`
	AcksFromA     int `json:"acks-from-a"`
	AcksFromB     int `json:"acks-from-b"`
	TimeoutsFromA int `json:"timeouts-from-a"`
	TimeoutsFromB int `json:"timeouts-from-b"`
}

type sequenceKey struct {
	port    string
	channel string
	seq     uint64
}

type channelKey struct {
	port    string
	channel string
}

func (k channelKey) String() string {
	return k.port + ":" + k.channel
}

// GetPendingPackets returns the packets sent by source between minHeight and maxHeight
// (zero means unbounded) that the other side has not received yet and whose
// commitment still exists on source. Packets keep the order they were found in.
func (l *Link) GetPendingPackets(ctx context.Context, source Side, minHeight, maxHeight int64) ([]PacketWithMetadata, error) {
	src, dst := l.ends(source)

	all, err := src.QuerySentPackets(ctx, minHeight, maxHeight)
	if err != nil {
		return nil, err
	}

	var filtered []PacketWithMetadata
	groups := make(map[channelKey][]uint64)
	var order []channelKey
	for _, p := range all {
		if !l.accept(p.Packet) {
			continue
		}
		filtered = append(filtered, p)
		k := channelKey{port: p.DestinationPort, channel: p.DestinationChannel}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p.Sequence)
	}

	unreceived := make(map[sequenceKey]bool)
	for _, k := range order {
		seqs, err := dst.Provider.QueryUnreceivedPackets(ctx, k.port, k.channel, groups[k])
		if err != nil {
			return nil, fmt.Errorf("failed to query unreceived packets on %s %s: %w", dst.ChainID(), k, err)
		}
		for _, seq := range seqs {
			unreceived[sequenceKey{port: k.port, channel: k.channel, seq: seq}] = true
		}
	}

	var pending []PacketWithMetadata
	for _, p := range filtered {
		if !unreceived[sequenceKey{port: p.DestinationPort, channel: p.DestinationChannel, seq: p.Sequence}] {
			continue
		}
		// a packet timed out by someone else no longer has a commitment
		commitment, err := src.Provider.QueryPacketCommitment(ctx, p.SourcePort, p.SourceChannel, p.Sequence)
		if err != nil {
			return nil, fmt.Errorf("failed to query packet commitment on %s: %w", src.ChainID(), err)
		}
		if len(commitment) == 0 {
			l.log.Debug(
				"Skipping packet without commitment",
				zap.String("chain_id", src.ChainID()),
				zap.String("port_id", p.SourcePort),
				zap.String("channel_id", p.SourceChannel),
				zap.Uint64("sequence", p.Sequence),
			)
			continue
		}
		pending = append(pending, p)
	}
	return pending, nil
}

// GetPendingAcks returns the acknowledgements written on source between minHeight and
// maxHeight (zero means unbounded) that the packet's sender has not processed yet.
func (l *Link) GetPendingAcks(ctx context.Context, source Side, minHeight, maxHeight int64) ([]AckWithMetadata, error) {
	src, dst := l.ends(source)

	all, err := src.QueryWrittenAcks(ctx, minHeight, maxHeight)
	if err != nil {
		return nil, err
	}

	var filtered []AckWithMetadata
	groups := make(map[channelKey][]uint64)
	var order []channelKey
	for _, ack := range all {
		p := ack.OriginalPacket
		if !l.accept(p) {
			continue
		}
		filtered = append(filtered, ack)
		k := channelKey{port: p.SourcePort, channel: p.SourceChannel}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p.Sequence)
	}

	unreceived := make(map[sequenceKey]bool)
	for _, k := range order {
		seqs, err := dst.Provider.QueryUnreceivedAcks(ctx, k.port, k.channel, groups[k])
		if err != nil {
			return nil, fmt.Errorf("failed to query unreceived acks on %s %s: %w", dst.ChainID(), k, err)
		}
		for _, seq := range seqs {
			unreceived[sequenceKey{port: k.port, channel: k.channel, seq: seq}] = true
		}
	}

	var pending []AckWithMetadata
	for _, ack := range filtered {
		p := ack.OriginalPacket
		if unreceived[sequenceKey{port: p.SourcePort, channel: p.SourceChannel, seq: p.Sequence}] {
			pending = append(pending, ack)
		}
	}
	return pending, nil
}

// RelayPackets delivers packets sent by source to the other side in one transaction,
// after making sure the other side's light client can verify them. It returns the
// acknowledgements written by the receiving chain.
func (l *Link) RelayPackets(ctx context.Context, source Side, packets []PacketWithMetadata) ([]AckWithMetadata, error) {
	if len(packets) == 0 {
		return nil, nil
	}
	src, dst := l.ends(source)

	headerHeight, err := l.UpdateClientToHeight(ctx, source, maxPacketHeight(packets)+1)
	if err != nil {
		return nil, err
	}

	msgs := make([]chantypes.Packet, len(packets))
	proofs := make([]provider.PacketProof, len(packets))
	for i, p := range packets {
		msgs[i] = p.Packet
		if proofs[i], err = BuildPacketProof(ctx, src.Provider, p.Packet, headerHeight); err != nil {
			return nil, err
		}
	}

	res, err := dst.Provider.RecvPackets(ctx, msgs, proofs)
	if err := checkTxResponse(dst.ChainID(), res, err); err != nil {
		logFailedTx(l.log, dst.ChainID(), "recv_packet", res, err)
		l.metrics.IncTxFailure(l.name, dst.ChainID(), "recv_packet")
		return nil, fmt.Errorf("failed to relay %d packets to %s: %w", len(packets), dst.ChainID(), err)
	}
	logSuccessTx(l.log, dst.ChainID(), "recv_packet", res, len(packets))
	l.metrics.AddPacketsRelayed(l.name, dst.ChainID(), chantypes.EventTypeRecvPacket, len(packets))

	parsed, err := ParseAcksFromEvents(res.Events, dst.ConnectionID)
	if err != nil {
		return nil, err
	}
	acks := make([]AckWithMetadata, len(parsed))
	for i, ack := range parsed {
		acks[i] = AckWithMetadata{
			Ack:      ack,
			Height:   res.Height,
			TxHash:   res.TxHash,
			TxEvents: res.Events,
		}
	}
	return acks, nil
}

// RelayAcks delivers acknowledgements written on source back to the packets' sender in
// one transaction and returns the height of that transaction, or zero if acks is empty.
func (l *Link) RelayAcks(ctx context.Context, source Side, acks []AckWithMetadata) (int64, error) {
	if len(acks) == 0 {
		return 0, nil
	}
	src, dst := l.ends(source)

	var maxHeight int64
	for _, ack := range acks {
		if ack.Height > maxHeight {
			maxHeight = ack.Height
		}
	}
	headerHeight, err := l.UpdateClientToHeight(ctx, source, maxHeight+1)
	if err != nil {
		return 0, err
	}

	msgs := make([]provider.Ack, len(acks))
	proofs := make([]provider.PacketProof, len(acks))
	for i, ack := range acks {
		msgs[i] = ack.Ack
		if proofs[i], err = BuildAckProof(ctx, src.Provider, ack.OriginalPacket, headerHeight); err != nil {
			return 0, err
		}
	}

	res, err := dst.Provider.AcknowledgePackets(ctx, msgs, proofs)
	if err := checkTxResponse(dst.ChainID(), res, err); err != nil {
		logFailedTx(l.log, dst.ChainID(), "acknowledge_packet", res, err)
		l.metrics.IncTxFailure(l.name, dst.ChainID(), "acknowledge_packet")
		return 0, fmt.Errorf("failed to relay %d acks to %s: %w", len(acks), dst.ChainID(), err)
	}
	logSuccessTx(l.log, dst.ChainID(), "acknowledge_packet", res, len(acks))
	l.metrics.AddPacketsRelayed(l.name, dst.ChainID(), chantypes.EventTypeAcknowledgePacket, len(acks))
	return res.Height, nil
}

// TimeoutPackets times out packets sent by source that the other side can no longer
// receive. The source's light client of the other side is updated to the other side's
// latest header first; packets that have not expired at that header are left for a
// later round. It returns the number of packets timed out.
func (l *Link) TimeoutPackets(ctx context.Context, source Side, packets []PacketWithMetadata) (int, error) {
	n, _, err := l.timeoutPackets(ctx, source, packets)
	return n, err
}

// timeoutPackets is TimeoutPackets that also returns the packets left for a later round.
func (l *Link) timeoutPackets(ctx context.Context, source Side, packets []PacketWithMetadata) (int, []PacketWithMetadata, error) {
	if len(packets) == 0 {
		return 0, nil, nil
	}
	src, dst := l.ends(source)

	// the destination must commit a block past the timeout before absence can be proven
	if err := waitOneBlock(ctx, dst.Provider); err != nil {
		return 0, nil, err
	}
	headerHeight, err := l.UpdateClient(ctx, source.Other())
	if err != nil {
		return 0, nil, err
	}
	header, err := dst.Provider.QuerySignedHeader(ctx, int64(headerHeight.RevisionHeight))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query header %s of %s: %w", headerHeight, dst.ChainID(), err)
	}
	headerTime := uint64(header.Time.UnixNano())

	orderings := make(map[channelKey]chantypes.Order)
	var (
		msgs      []chantypes.Packet
		proofs    []provider.TimeoutProof
		unexpired []PacketWithMetadata
	)
	for _, p := range packets {
		heightExpired := !p.TimeoutHeight.IsZero() && headerHeight.GTE(p.TimeoutHeight)
		timeExpired := p.TimeoutTimestamp != 0 && headerTime >= p.TimeoutTimestamp
		if !heightExpired && !timeExpired {
			l.log.Debug(
				"Packet not expired yet on counterparty",
				zap.String("chain_id", dst.ChainID()),
				zap.Uint64("sequence", p.Sequence),
				zap.Stringer("timeout_height", p.TimeoutHeight),
				zap.Uint64("timeout_timestamp", p.TimeoutTimestamp),
				zap.Stringer("height", headerHeight),
			)
			unexpired = append(unexpired, p)
			continue
		}

		k := channelKey{port: p.DestinationPort, channel: p.DestinationChannel}
		ordering, ok := orderings[k]
		if !ok {
			channel, err := dst.Provider.QueryChannel(ctx, k.port, k.channel)
			if err != nil {
				return 0, nil, fmt.Errorf("failed to query channel %s on %s: %w", k, dst.ChainID(), err)
			}
			ordering = channel.Ordering
			orderings[k] = ordering
		}

		proof, err := BuildTimeoutProof(ctx, dst.Provider, p.Packet, ordering, headerHeight)
		if err != nil {
			return 0, nil, err
		}
		msgs = append(msgs, p.Packet)
		proofs = append(proofs, proof)
	}
	if len(msgs) == 0 {
		return 0, unexpired, nil
	}

	res, err := src.Provider.TimeoutPackets(ctx, msgs, proofs)
	if err := checkTxResponse(src.ChainID(), res, err); err != nil {
		logFailedTx(l.log, src.ChainID(), "timeout_packet", res, err)
		l.metrics.IncTxFailure(l.name, src.ChainID(), "timeout_packet")
		return 0, nil, fmt.Errorf("failed to time out %d packets on %s: %w", len(msgs), src.ChainID(), err)
	}
	logSuccessTx(l.log, src.ChainID(), "timeout_packet", res, len(msgs))
	l.metrics.AddPacketsRelayed(l.name, src.ChainID(), chantypes.EventTypeTimeoutPacket, len(msgs))
	return len(msgs), unexpired, nil
}

// CheckAndRelayPacketsAndAcks runs one relay round starting at from and returns the
// checkpoint the next round should start at. Both directions are handled concurrently.
// An error aborts the round; anything already submitted stays submitted.
func (l *Link) CheckAndRelayPacketsAndAcks(ctx context.Context, from RelayCheckpoint, th TimeoutThreshold) (RelayCheckpoint, RelayInfo, error) {
	var (
		next                 RelayCheckpoint
		info                 RelayInfo
		pendingA, pendingB   []PacketWithMetadata
		cutoffA, cutoffB     cutoff
		submitA, submitB     []PacketWithMetadata
		timeoutA, timeoutB   []PacketWithMetadata
		acksFromA, acksFromB []AckWithMetadata
		// acks written by this round's packet deliveries; A's packets are acked on B
		writtenOnA, writtenOnB []AckWithMetadata
	)

	// heights before scanning so nothing sent during this round is skipped next round
	if err := l.bothSides(ctx, func(ctx context.Context, s Side) (err error) {
		h, err := l.endpoints[s].Provider.QueryLatestHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to query latest height of %s: %w", l.endpoints[s].ChainID(), err)
		}
		l.metrics.SetLatestHeight(l.endpoints[s].ChainID(), h)
		if s == SideA {
			next.PacketHeightA = h
		} else {
			next.PacketHeightB = h
		}
		return nil
	}); err != nil {
		return from, info, err
	}

	if err := l.bothSides(ctx, func(ctx context.Context, s Side) error {
		if s == SideA {
			p, err := l.GetPendingPackets(ctx, SideA, from.PacketHeightA, 0)
			pendingA = p
			return err
		}
		p, err := l.GetPendingPackets(ctx, SideB, from.PacketHeightB, 0)
		pendingB = p
		return err
	}); err != nil {
		return from, info, err
	}

	// packets from A expire on B and vice versa
	if err := l.bothSides(ctx, func(ctx context.Context, s Side) error {
		h, t, err := l.timeoutCutoff(ctx, s.Other(), th)
		if s == SideA {
			cutoffA = cutoff{height: h, time: t}
		} else {
			cutoffB = cutoff{height: h, time: t}
		}
		return err
	}); err != nil {
		return from, info, err
	}
	submitA, timeoutA = SplitPendingPackets(cutoffA.height, cutoffA.time, pendingA)
	submitB, timeoutB = SplitPendingPackets(cutoffB.height, cutoffB.time, pendingB)
	l.metrics.AddPacketsObserved(l.name, l.endpoints[SideA].ChainID(), chantypes.EventTypeSendPacket, len(pendingA))
	l.metrics.AddPacketsObserved(l.name, l.endpoints[SideB].ChainID(), chantypes.EventTypeSendPacket, len(pendingB))

	l.log.Debug(
		"Pending packets",
		zap.Int("submit_from_a", len(submitA)),
		zap.Int("timeout_from_a", len(timeoutA)),
		zap.Int("submit_from_b", len(submitB)),
		zap.Int("timeout_from_b", len(timeoutB)),
	)

	if err := l.bothSides(ctx, func(ctx context.Context, s Side) (err error) {
		if s == SideA {
			writtenOnB, err = l.RelayPackets(ctx, SideA, submitA)
			return err
		}
		writtenOnA, err = l.RelayPackets(ctx, SideB, submitB)
		return err
	}); err != nil {
		return from, info, err
	}
	info.PacketsFromA, info.PacketsFromB = len(submitA), len(submitB)

	if err := l.bothSides(ctx, func(ctx context.Context, s Side) error {
		return waitForIndexer(ctx, l.endpoints[s].Provider)
	}); err != nil {
		return from, info, err
	}

	if err := l.bothSides(ctx, func(ctx context.Context, s Side) error {
		h, err := l.endpoints[s].Provider.QueryLatestHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to query latest height of %s: %w", l.endpoints[s].ChainID(), err)
		}
		if s == SideA {
			next.AckHeightA = h
			acksFromA, err = l.GetPendingAcks(ctx, SideA, from.AckHeightA, 0)
		} else {
			next.AckHeightB = h
			acksFromB, err = l.GetPendingAcks(ctx, SideB, from.AckHeightB, 0)
		}
		return err
	}); err != nil {
		return from, info, err
	}
	acksFromA = mergeAcks(acksFromA, writtenOnA)
	acksFromB = mergeAcks(acksFromB, writtenOnB)
	l.metrics.AddPacketsObserved(l.name, l.endpoints[SideA].ChainID(), chantypes.EventTypeWriteAck, len(acksFromA))
	l.metrics.AddPacketsObserved(l.name, l.endpoints[SideB].ChainID(), chantypes.EventTypeWriteAck, len(acksFromB))

	if err := l.bothSides(ctx, func(ctx context.Context, s Side) error {
		if s == SideA {
			_, err := l.RelayAcks(ctx, SideA, acksFromA)
			return err
		}
		_, err := l.RelayAcks(ctx, SideB, acksFromB)
		return err
	}); err != nil {
		return from, info, err
	}
	info.AcksFromA, info.AcksFromB = len(acksFromA), len(acksFromB)

	var unexpiredA, unexpiredB []PacketWithMetadata
	if err := l.bothSides(ctx, func(ctx context.Context, s Side) (err error) {
		if s == SideA {
			info.TimeoutsFromA, unexpiredA, err = l.timeoutPackets(ctx, SideA, timeoutA)
			return err
		}
		info.TimeoutsFromB, unexpiredB, err = l.timeoutPackets(ctx, SideB, timeoutB)
		return err
	}); err != nil {
		return from, info, err
	}
	// packets inside the timeout margin that have not expired yet are scanned again
	next.PacketHeightA = rescanFrom(next.PacketHeightA, unexpiredA)
	next.PacketHeightB = rescanFrom(next.PacketHeightB, unexpiredB)

	l.log.Info(
		"Relay round finished",
		zap.Int("packets_from_a", info.PacketsFromA),
		zap.Int("packets_from_b", info.PacketsFromB),
		zap.Int("acks_from_a", info.AcksFromA),
		zap.Int("acks_from_b", info.AcksFromB),
		zap.Int("timeouts_from_a", info.TimeoutsFromA),
		zap.Int("timeouts_from_b", info.TimeoutsFromB),
	)
	return next, info, nil
}

// RelayAll relays every pending packet sent by source, then every pending
// acknowledgement written by the other side.
func (l *Link) RelayAll(ctx context.Context, source Side) (RelayInfo, error) {
	var info RelayInfo
	_, dst := l.ends(source)

	packets, err := l.GetPendingPackets(ctx, source, 0, 0)
	if err != nil {
		return info, err
	}
	if _, err := l.RelayPackets(ctx, source, packets); err != nil {
		return info, err
	}
	if err := waitForIndexer(ctx, dst.Provider); err != nil {
		return info, err
	}

	acks, err := l.GetPendingAcks(ctx, source.Other(), 0, 0)
	if err != nil {
		return info, err
	}
	if _, err := l.RelayAcks(ctx, source.Other(), acks); err != nil {
		return info, err
	}

	if source == SideA {
		info.PacketsFromA, info.AcksFromB = len(packets), len(acks)
	} else {
		info.PacketsFromB, info.AcksFromA = len(packets), len(acks)
	}
	return info, nil
}

type cutoff struct {
	height clienttypes.Height
	time   uint64
}

// bothSides runs f for side A and side B concurrently.
func (l *Link) bothSides(ctx context.Context, f func(ctx context.Context, s Side) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return f(egCtx, SideA) })
	eg.Go(func() error { return f(egCtx, SideB) })
	return eg.Wait()
}

func maxPacketHeight(packets []PacketWithMetadata) int64 {
	var h int64
	for _, p := range packets {
		if p.Height > h {
			h = p.Height
		}
	}
	return h
}

// rescanFrom lowers a packet checkpoint so the next scan includes every packet in packets.
func rescanFrom(height int64, packets []PacketWithMetadata) int64 {
	for _, p := range packets {
		if p.Height < height {
			height = p.Height
		}
	}
	return height
}

// mergeAcks appends the acks in written that scanned does not already carry.
func mergeAcks(scanned, written []AckWithMetadata) []AckWithMetadata {
	if len(written) == 0 {
		return scanned
	}
	seen := make(map[sequenceKey]bool, len(scanned))
	for _, a := range scanned {
		p := a.OriginalPacket
		seen[sequenceKey{port: p.SourcePort, channel: p.SourceChannel, seq: p.Sequence}] = true
	}
	for _, a := range written {
		p := a.OriginalPacket
		k := sequenceKey{port: p.SourcePort, channel: p.SourceChannel, seq: p.Sequence}
		if seen[k] {
			continue
		}
		seen[k] = true
		scanned = append(scanned, a)
	}
	return scanned
}
