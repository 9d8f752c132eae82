package relayer

import (
	"context"
	"fmt"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	tmtypes "github.com/tendermint/tendermint/types"
)

const (
	// DefaultMaxClockDrift is the max clock drift accepted by new light clients.
	DefaultMaxClockDrift = 20 * time.Second
)

var defaultUpgradePath = []string{"upgrade", "upgradedIBCState"}

// DefaultTrustingPeriod is two thirds of the unbonding period.
func DefaultTrustingPeriod(unbonding time.Duration) time.Duration {
	return unbonding / 3 * 2
}

// ChainHeight converts a block height of the given chain into an IBC height.
func ChainHeight(chainID string, height int64) clienttypes.Height {
	return clienttypes.NewHeight(clienttypes.ParseChainID(chainID), uint64(height))
}

// BuildHeader returns the latest header of the chain packaged for a light client
// whose latest known height is lastHeight. The trusted validators are the ones
// at lastHeight+1, which is the next validator set committed to by that height.
func BuildHeader(ctx context.Context, p provider.QueryProvider, lastHeight int64) (*ibctmtypes.Header, error) {
	signed, err := p.QuerySignedHeader(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest header of %s: %w", p.ChainID(), err)
	}

	vals, err := p.QueryValidatorSet(ctx, signed.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to query validators of %s at %d: %w", p.ChainID(), signed.Height, err)
	}
	trustedVals, err := p.QueryValidatorSet(ctx, lastHeight+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query trusted validators of %s at %d: %w", p.ChainID(), lastHeight+1, err)
	}

	valsProto, err := vals.ToProto()
	if err != nil {
		return nil, err
	}
	trustedValsProto, err := trustedVals.ToProto()
	if err != nil {
		return nil, err
	}

	return &ibctmtypes.Header{
		SignedHeader:      signed.ToProto(),
		ValidatorSet:      valsProto,
		TrustedHeight:     ChainHeight(p.ChainID(), lastHeight),
		TrustedValidators: trustedValsProto,
	}, nil
}

// BuildConsensusState derives the consensus state a light client stores for header.
func BuildConsensusState(header *tmtypes.SignedHeader) *ibctmtypes.ConsensusState {
	return ibctmtypes.NewConsensusState(
		header.Time,
		commitmenttypes.NewMerkleRoot(header.AppHash),
		header.NextValidatorsHash,
	)
}

// BuildClientState returns the state of a new light client tracking the chain at
// its latest header. A zero trustingPeriod defaults to two thirds of the unbonding period.
func BuildClientState(ctx context.Context, p provider.QueryProvider, trustingPeriod time.Duration) (*ibctmtypes.ClientState, *ibctmtypes.ConsensusState, error) {
	signed, err := p.QuerySignedHeader(ctx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query latest header of %s: %w", p.ChainID(), err)
	}
	unbonding, err := p.QueryUnbondingPeriod(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query unbonding period of %s: %w", p.ChainID(), err)
	}
	if trustingPeriod == 0 {
		trustingPeriod = DefaultTrustingPeriod(unbonding)
	}

	clientState := ibctmtypes.NewClientState(
		p.ChainID(),
		ibctmtypes.DefaultTrustLevel,
		trustingPeriod,
		unbonding,
		DefaultMaxClockDrift,
		ChainHeight(p.ChainID(), signed.Height),
		commitmenttypes.GetSDKSpecs(),
		defaultUpgradePath,
		false,
		false,
	)
	return clientState, BuildConsensusState(signed), nil
}
