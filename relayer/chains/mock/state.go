package mock

import (
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// getter reads a key of the ibc store. Absent keys read as nil.
type getter func(key []byte) ([]byte, error)

// Identifier counters, stored like any other state so failed txs leave them untouched.
var (
	keyNextClientSequence     = []byte("nextClientSequence")
	keyNextConnectionSequence = []byte("nextConnectionSequence")
	keyNextChannelSequence    = []byte("nextChannelSequence")
)

const tendermintClientType = "07-tendermint"

func loadClientState(get getter, clientID string) (*ibctmtypes.ClientState, error) {
	bz, err := get(host.FullClientStateKey(clientID))
	if err != nil || bz == nil {
		return nil, err
	}
	return provider.UnmarshalClientState(bz)
}

func loadConsensusState(get getter, clientID string, height clienttypes.Height) (*ibctmtypes.ConsensusState, error) {
	bz, err := get(host.FullConsensusStateKey(clientID, height))
	if err != nil || bz == nil {
		return nil, err
	}
	return provider.UnmarshalConsensusState(bz)
}

func loadConnection(get getter, connectionID string) (*conntypes.ConnectionEnd, error) {
	bz, err := get(host.ConnectionKey(connectionID))
	if err != nil || bz == nil {
		return nil, err
	}
	var conn conntypes.ConnectionEnd
	if err := provider.Cdc.Unmarshal(bz, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func loadChannel(get getter, portID, channelID string) (*chantypes.Channel, error) {
	bz, err := get(host.ChannelKey(portID, channelID))
	if err != nil || bz == nil {
		return nil, err
	}
	var channel chantypes.Channel
	if err := provider.Cdc.Unmarshal(bz, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// loadSequence reads a big endian counter, zero if unset.
func loadSequence(get getter, key []byte) (uint64, error) {
	bz, err := get(key)
	if err != nil || bz == nil {
		return 0, err
	}
	if len(bz) != 8 {
		return 0, fmt.Errorf("invalid sequence under %s", key)
	}
	return sdk.BigEndianToUint64(bz), nil
}
