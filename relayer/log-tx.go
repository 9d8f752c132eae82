package relayer

import (
	"github.com/cosmos/link-relayer/relayer/provider"
	"go.uber.org/zap"
)

// logFailedTx logs a transaction that could not be broadcast or that failed on chain.
func logFailedTx(log *zap.Logger, chainID, msgType string, res *provider.RelayerTxResponse, err error) {
	fields := []zap.Field{
		zap.String("chain_id", chainID),
		zap.String("msg_type", msgType),
		zap.Error(err),
	}
	if res != nil {
		fields = append(fields,
			zap.Int64("height", res.Height),
			zap.String("tx_hash", res.TxHash),
			zap.Uint32("code", res.Code),
			zap.String("codespace", res.Codespace),
		)
	}
	log.Warn("Failed transaction", fields...)
}

// logSuccessTx logs a committed transaction.
func logSuccessTx(log *zap.Logger, chainID, msgType string, res *provider.RelayerTxResponse, count int) {
	log.Info(
		"Successful transaction",
		zap.String("chain_id", chainID),
		zap.String("msg_type", msgType),
		zap.Int("count", count),
		zap.Int64("height", res.Height),
		zap.String("tx_hash", res.TxHash),
	)
}
