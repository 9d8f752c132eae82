package cosmos

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	"go.uber.org/zap"
)

const (
	ErrTimeoutAfterWaitingForTxBroadcast _err = "timed out after waiting for tx to get included in the block"
)

type _err string

func (e _err) Error() string { return string(e) }

const txPollInterval = 100 * time.Millisecond

// sendMsgs signs msgs into one transaction, broadcasts it and waits until it is
// committed. A transaction rejected by CheckTx is returned with its code and no height.
func (cc *CosmosProvider) sendMsgs(ctx context.Context, msgs ...sdk.Msg) (*provider.RelayerTxResponse, error) {
	if cc.signer == nil {
		return nil, ErrNoSigner
	}
	for _, msg := range msgs {
		if err := msg.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("invalid %T: %w", msg, err)
		}
	}

	tx, err := cc.signer.SignTx(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx for %s: %w", cc.ChainID(), err)
	}

	// broadcast tx sync waits for check tx to pass
	syncRes, err := cc.RPCClient.BroadcastTxSync(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast tx to %s: %w", cc.ChainID(), err)
	}
	if syncRes.Code != 0 {
		cc.log.Debug(
			"Transaction rejected by check tx",
			zap.String("tx_hash", syncRes.Hash.String()),
			zap.Uint32("code", syncRes.Code),
			zap.String("codespace", syncRes.Codespace),
		)
		return &provider.RelayerTxResponse{
			TxHash:    syncRes.Hash.String(),
			Code:      syncRes.Code,
			Codespace: syncRes.Codespace,
			Data:      syncRes.Log,
		}, nil
	}

	resTx, err := cc.waitForTx(ctx, syncRes.Hash)
	if err != nil {
		return nil, err
	}
	cc.log.Debug(
		"Transaction committed",
		zap.String("tx_hash", resTx.Hash.String()),
		zap.Int64("height", resTx.Height),
		zap.Int("msgs", len(msgs)),
		zap.Uint32("code", resTx.TxResult.Code),
	)
	return &provider.RelayerTxResponse{
		Height:    resTx.Height,
		TxHash:    resTx.Hash.String(),
		Code:      resTx.TxResult.Code,
		Codespace: resTx.TxResult.Codespace,
		Data:      resTx.TxResult.Log,
		Events:    relayerEvents(resTx.TxResult.Events),
	}, nil
}

// waitForTx polls the tx index until the transaction shows up or the broadcast wait runs out.
func (cc *CosmosProvider) waitForTx(ctx context.Context, hash []byte) (*coretypes.ResultTx, error) {
	attempts := uint(cc.broadcastWait/txPollInterval) + 1

	var res *coretypes.ResultTx
	err := retry.Do(func() (err error) {
		res, err = cc.RPCClient.Tx(ctx, hash, false)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(txPollInterval),
		retry.DelayType(retry.FixedDelay),
		provider.RtyErr,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tx %X on %s: %v: %w", hash, cc.ChainID(), err, ErrTimeoutAfterWaitingForTxBroadcast)
	}
	return res, nil
}
