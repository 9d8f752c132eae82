package relayer

import (
	"errors"
	"fmt"

	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	"github.com/cosmos/link-relayer/relayer/provider"
)

// Errors returned when an existing connection cannot back a Link.
var (
	ErrConnectionNotFound         = errors.New("connection not found")
	ErrConnectionNotOpen          = errors.New("connection not open")
	ErrCounterpartyClientMismatch = errors.New("counterparty client id mismatch")
	ErrChainIDMismatch            = errors.New("client chain id does not match counterparty chain")
	ErrHeaderMismatch             = errors.New("consensus state does not match counterparty header")
	ErrChannelNotFound            = errors.New("channel not found")
)

// TxFailureError is returned when a transaction was committed with a non-zero code.
type TxFailureError struct {
	ChainID   string
	Height    int64
	TxHash    string
	Code      uint32
	Codespace string
	Err       error
}

func (e *TxFailureError) Error() string {
	return fmt.Sprintf("tx %s failed on %s at height %d: %v", e.TxHash, e.ChainID, e.Height, e.Err)
}

func (e *TxFailureError) Unwrap() error {
	return e.Err
}

// checkTxResponse turns a failed transaction result into a TxFailureError.
// The error of the broadcast itself is returned unchanged.
func checkTxResponse(chainID string, res *provider.RelayerTxResponse, err error) error {
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("no transaction response from %s", chainID)
	}
	if res.Code == 0 {
		return nil
	}
	return &TxFailureError{
		ChainID:   chainID,
		Height:    res.Height,
		TxHash:    res.TxHash,
		Code:      res.Code,
		Codespace: res.Codespace,
		Err:       sdkerrors.ABCIError(res.Codespace, res.Code, decodeFailure(res)),
	}
}
