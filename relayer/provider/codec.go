package provider

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
)

// Cdc encodes IBC state the same way the ibc module stores it, so that values
// returned by QueryProof can be decoded by any provider implementation.
var Cdc = makeCodec()

func makeCodec() *codec.ProtoCodec {
	registry := codectypes.NewInterfaceRegistry()
	clienttypes.RegisterInterfaces(registry)
	ibctmtypes.RegisterInterfaces(registry)
	return codec.NewProtoCodec(registry)
}

// UnmarshalClientState decodes a stored tendermint client state.
func UnmarshalClientState(bz []byte) (*ibctmtypes.ClientState, error) {
	cs, err := clienttypes.UnmarshalClientState(Cdc, bz)
	if err != nil {
		return nil, err
	}
	tmcs, ok := cs.(*ibctmtypes.ClientState)
	if !ok {
		return nil, fmt.Errorf("expected tendermint client state, got %T", cs)
	}
	return tmcs, nil
}

// UnmarshalConsensusState decodes a stored tendermint consensus state.
func UnmarshalConsensusState(bz []byte) (*ibctmtypes.ConsensusState, error) {
	cons, err := clienttypes.UnmarshalConsensusState(Cdc, bz)
	if err != nil {
		return nil, err
	}
	tmcons, ok := cons.(*ibctmtypes.ConsensusState)
	if !ok {
		return nil, fmt.Errorf("expected tendermint consensus state, got %T", cons)
	}
	return tmcons, nil
}
