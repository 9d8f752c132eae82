package mock

import (
	"bytes"
	"context"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	commitmenttypes "github.com/cosmos/ibc-go/v3/modules/core/23-commitment/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	ibctmtypes "github.com/cosmos/ibc-go/v3/modules/light-clients/07-tendermint/types"
	"github.com/cosmos/link-relayer/relayer/provider"
	tmtypes "github.com/tendermint/tendermint/types"
)

type write struct {
	value   []byte
	deleted bool
}

// txContext stages the writes and events of one transaction. Nothing reaches the
// store unless the whole transaction succeeds.
type txContext struct {
	c      *Chain
	height int64
	time   time.Time

	keys   []string
	writes map[string]write
	events []provider.RelayerEvent
}

func (c *Chain) newTx(height int64) *txContext {
	return &txContext{
		c:      c,
		height: height,
		time:   c.blocks[height].header.Time,
		writes: make(map[string]write),
	}
}

func (tx *txContext) get(key []byte) ([]byte, error) {
	if w, ok := tx.writes[string(key)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	return tx.c.store.get(key, tx.height)
}

func (tx *txContext) put(key []byte, w write) {
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.keys = append(tx.keys, k)
	}
	tx.writes[k] = w
}

func (tx *txContext) set(key, value []byte) {
	tx.put(key, write{value: value})
}

func (tx *txContext) delete(key []byte) {
	tx.put(key, write{deleted: true})
}

func (tx *txContext) emit(eventType string, attrs map[string]string) {
	tx.events = append(tx.events, provider.RelayerEvent{EventType: eventType, Attributes: attrs})
}

// nextID allocates prefix-N from the counter stored under counterKey.
func (tx *txContext) nextID(counterKey []byte, prefix string) (string, error) {
	n, err := loadSequence(tx.get, counterKey)
	if err != nil {
		return "", err
	}
	tx.set(counterKey, sdk.Uint64ToBigEndian(n+1))
	return fmt.Sprintf("%s-%d", prefix, n), nil
}

// selfHeight is the IBC height of the block the transaction is part of.
func (tx *txContext) selfHeight() clienttypes.Height {
	return clienttypes.NewHeight(clienttypes.ParseChainID(tx.c.cfg.ChainID), uint64(tx.height))
}

// deliver runs fn as a transaction in a new block. A failing fn is reported like a
// failed transaction on a real chain: the response carries the ABCI code of the
// error and the transaction has no effect.
func (c *Chain) deliver(ctx context.Context, fn func(tx *txContext) error) (*provider.RelayerTxResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	height := c.newBlockLocked()
	tx := c.newTx(height)
	res := &provider.RelayerTxResponse{Height: height, TxHash: c.txHash(height)}

	if err := fn(tx); err != nil {
		res.Codespace, res.Code, res.Data = sdkerrors.ABCIInfo(err, false)
		c.txs = append(c.txs, &provider.TxResult{Height: height, TxHash: res.TxHash})
		return res, nil
	}
	if err := c.commitLocked(tx); err != nil {
		return nil, err
	}

	res.Events = tx.events
	c.txs = append(c.txs, &provider.TxResult{Height: height, TxHash: res.TxHash, Events: tx.events})
	return res, nil
}

func (c *Chain) commitLocked(tx *txContext) error {
	for _, k := range tx.keys {
		w := tx.writes[k]
		var err error
		if w.deleted {
			err = c.store.delete([]byte(k), tx.height)
		} else {
			err = c.store.set([]byte(k), w.value, tx.height)
		}
		if err != nil {
			return err
		}
		c.updateAppHash([]byte(k), w.value, tx.height)
	}
	return nil
}

// verify checks proofBz for key against the history of the chain tracked by clientID
// and returns the proven value, nil for a proof of absence. The proven state is the one
// committed to by the header at proofHeight, which the client must know.
func (tx *txContext) verify(clientID string, proofHeight clienttypes.Height, key, proofBz []byte) ([]byte, error) {
	cs, err := loadClientState(tx.get, clientID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, sdkerrors.Wrap(clienttypes.ErrClientNotFound, clientID)
	}
	if cs.LatestHeight.LT(proofHeight) {
		return nil, sdkerrors.Wrapf(clienttypes.ErrInvalidHeight,
			"client %s latest height %s is below proof height %s", clientID, cs.LatestHeight, proofHeight)
	}
	cons, err := loadConsensusState(tx.get, clientID, proofHeight)
	if err != nil {
		return nil, err
	}
	if cons == nil {
		return nil, sdkerrors.Wrapf(clienttypes.ErrConsensusStateNotFound, "client %s at %s", clientID, proofHeight)
	}

	counterparty, ok := tx.c.net.chain(cs.ChainId)
	if !ok {
		return nil, sdkerrors.Wrapf(commitmenttypes.ErrInvalidProof, "unknown chain %s", cs.ChainId)
	}
	version := int64(proofHeight.RevisionHeight) - 1
	value, err := counterparty.store.get(key, version)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(proof(cs.ChainId, version, key, value), proofBz) {
		return nil, sdkerrors.Wrapf(commitmenttypes.ErrInvalidProof, "%s at height %s", key, proofHeight)
	}
	return value, nil
}

func (c *Chain) CreateClient(ctx context.Context, clientState *ibctmtypes.ClientState, consensusState *ibctmtypes.ConsensusState) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		if clientState == nil || consensusState == nil {
			return sdkerrors.Wrap(clienttypes.ErrInvalidClient, "missing client or consensus state")
		}
		if err := clientState.Validate(); err != nil {
			return err
		}
		if err := consensusState.ValidateBasic(); err != nil {
			return err
		}

		clientID, err := tx.nextID(keyNextClientSequence, tendermintClientType)
		if err != nil {
			return err
		}
		tx.set(host.FullClientStateKey(clientID), clienttypes.MustMarshalClientState(provider.Cdc, clientState))
		tx.set(host.FullConsensusStateKey(clientID, clientState.LatestHeight), clienttypes.MustMarshalConsensusState(provider.Cdc, consensusState))

		tx.emit(clienttypes.EventTypeCreateClient, map[string]string{
			clienttypes.AttributeKeyClientID:        clientID,
			clienttypes.AttributeKeyClientType:      tendermintClientType,
			clienttypes.AttributeKeyConsensusHeight: clientState.LatestHeight.String(),
		})
		return nil
	})
}

// UpdateClient accepts header if its trusted validators are the next validators
// committed to by the trusted consensus state. Mock blocks carry no signatures.
func (c *Chain) UpdateClient(ctx context.Context, clientID string, header *ibctmtypes.Header) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		cs, err := loadClientState(tx.get, clientID)
		if err != nil {
			return err
		}
		if cs == nil {
			return sdkerrors.Wrap(clienttypes.ErrClientNotFound, clientID)
		}
		if header == nil || header.SignedHeader == nil {
			return sdkerrors.Wrap(clienttypes.ErrInvalidHeader, "missing signed header")
		}

		signed, err := tmtypes.SignedHeaderFromProto(header.SignedHeader)
		if err != nil {
			return sdkerrors.Wrap(clienttypes.ErrInvalidHeader, err.Error())
		}
		if err := signed.ValidateBasic(cs.ChainId); err != nil {
			return sdkerrors.Wrap(clienttypes.ErrInvalidHeader, err.Error())
		}

		height := clienttypes.NewHeight(clienttypes.ParseChainID(cs.ChainId), uint64(signed.Height))
		if height.LTE(header.TrustedHeight) {
			return sdkerrors.Wrapf(ibctmtypes.ErrInvalidHeaderHeight,
				"header height %s must be greater than trusted height %s", height, header.TrustedHeight)
		}

		trusted, err := loadConsensusState(tx.get, clientID, header.TrustedHeight)
		if err != nil {
			return err
		}
		if trusted == nil {
			return sdkerrors.Wrapf(clienttypes.ErrConsensusStateNotFound, "client %s at trusted height %s", clientID, header.TrustedHeight)
		}
		if !trusted.Timestamp.Add(cs.TrustingPeriod).After(tx.time) {
			return sdkerrors.Wrapf(clienttypes.ErrClientNotActive, "client %s trusting period expired", clientID)
		}

		trustedVals, err := validatorSetFromProto(header.TrustedValidators)
		if err != nil {
			return sdkerrors.Wrap(ibctmtypes.ErrInvalidValidatorSet, err.Error())
		}
		if !bytes.Equal(trustedVals.Hash(), trusted.NextValidatorsHash) {
			return sdkerrors.Wrap(ibctmtypes.ErrInvalidValidatorSet, "trusted validators do not match trusted consensus state")
		}
		vals, err := validatorSetFromProto(header.ValidatorSet)
		if err != nil {
			return sdkerrors.Wrap(ibctmtypes.ErrInvalidValidatorSet, err.Error())
		}
		if !bytes.Equal(vals.Hash(), signed.ValidatorsHash) {
			return sdkerrors.Wrap(ibctmtypes.ErrInvalidValidatorSet, "validators do not match header")
		}

		cons := ibctmtypes.NewConsensusState(signed.Time, commitmenttypes.NewMerkleRoot(signed.AppHash), signed.NextValidatorsHash)
		tx.set(host.FullConsensusStateKey(clientID, height), clienttypes.MustMarshalConsensusState(provider.Cdc, cons))
		if height.GT(cs.LatestHeight) {
			cs.LatestHeight = height
			tx.set(host.FullClientStateKey(clientID), clienttypes.MustMarshalClientState(provider.Cdc, cs))
		}

		tx.emit(clienttypes.EventTypeUpdateClient, map[string]string{
			clienttypes.AttributeKeyClientID:        clientID,
			clienttypes.AttributeKeyClientType:      tendermintClientType,
			clienttypes.AttributeKeyConsensusHeight: height.String(),
		})
		return nil
	})
}

// OverwriteClientState rewrites the stored state of clientID with edit, skipping every
// check a real chain would make. It lets tests stage misconfigured clients.
func (c *Chain) OverwriteClientState(ctx context.Context, clientID string, edit func(cs *ibctmtypes.ClientState)) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		cs, err := loadClientState(tx.get, clientID)
		if err != nil {
			return err
		}
		if cs == nil {
			return sdkerrors.Wrap(clienttypes.ErrClientNotFound, clientID)
		}
		edit(cs)
		tx.set(host.FullClientStateKey(clientID), clienttypes.MustMarshalClientState(provider.Cdc, cs))
		return nil
	})
}

// OverwriteConsensusState is OverwriteClientState for the consensus state at height.
func (c *Chain) OverwriteConsensusState(ctx context.Context, clientID string, height clienttypes.Height, edit func(cons *ibctmtypes.ConsensusState)) (*provider.RelayerTxResponse, error) {
	return c.deliver(ctx, func(tx *txContext) error {
		cons, err := loadConsensusState(tx.get, clientID, height)
		if err != nil {
			return err
		}
		if cons == nil {
			return sdkerrors.Wrapf(clienttypes.ErrConsensusStateNotFound, "client %s at height %s", clientID, height)
		}
		edit(cons)
		tx.set(host.FullConsensusStateKey(clientID, height), clienttypes.MustMarshalConsensusState(provider.Cdc, cons))
		return nil
	})
}
