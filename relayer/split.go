package relayer

import (
	"context"
	"fmt"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
)

const (
	DefaultTimeoutBlocks  = 2
	DefaultTimeoutSeconds = 6 * time.Second
)

// TimeoutThreshold is the safety margin applied to the destination chain's current
// height and time when deciding whether a packet can still be delivered.
type TimeoutThreshold struct {
	Blocks   uint64
	Duration time.Duration
}

// DefaultTimeoutThreshold is two blocks and six seconds.
func DefaultTimeoutThreshold() TimeoutThreshold {
	return TimeoutThreshold{Blocks: DefaultTimeoutBlocks, Duration: DefaultTimeoutSeconds}
}

// SplitPendingPackets separates packets that can still be delivered from packets whose
// timeout lies at or before the cutoff. cutoffTime is in unix nanoseconds like packet
// timeout timestamps. A zero timeout height or timestamp never expires.
func SplitPendingPackets(cutoffHeight clienttypes.Height, cutoffTime uint64, packets []PacketWithMetadata) (toSubmit, toTimeout []PacketWithMetadata) {
	for _, p := range packets {
		validHeight := p.TimeoutHeight.IsZero() || p.TimeoutHeight.GT(cutoffHeight)
		validTime := p.TimeoutTimestamp == 0 || p.TimeoutTimestamp > cutoffTime
		if validHeight && validTime {
			toSubmit = append(toSubmit, p)
		} else {
			toTimeout = append(toTimeout, p)
		}
	}
	return toSubmit, toTimeout
}

// timeoutCutoff returns the height and time on side's chain, extended by th, before
// which packets sent to that chain are considered expired.
func (l *Link) timeoutCutoff(ctx context.Context, side Side, th TimeoutThreshold) (clienttypes.Height, uint64, error) {
	end := l.endpoints[side]
	header, err := end.Provider.QuerySignedHeader(ctx, 0)
	if err != nil {
		return clienttypes.Height{}, 0, fmt.Errorf("failed to query latest header of %s: %w", end.ChainID(), err)
	}
	height := ChainHeight(end.ChainID(), header.Height+int64(th.Blocks))
	cutoff := header.Time.Add(th.Duration).UnixNano()
	return height, uint64(cutoff), nil
}
