// Package mock implements an in-memory chain with an IBC module, good enough to
// run connection and channel handshakes and relay packets between two instances
// without any node. Proofs are opaque hashes that the receiving chain checks against
// the sending chain's versioned store, so proofs taken at the wrong height are rejected.
package mock

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cosmos/link-relayer/relayer/provider"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmproto "github.com/tendermint/tendermint/proto/tendermint/types"
	tmprotoversion "github.com/tendermint/tendermint/proto/tendermint/version"
	tmtypes "github.com/tendermint/tendermint/types"
	tmversion "github.com/tendermint/tendermint/version"
)

const (
	DefaultBlockTime       = 10 * time.Millisecond
	DefaultUnbondingPeriod = 21 * 24 * time.Hour
)

// Network lets mock chains find each other to verify proofs.
type Network struct {
	mu     sync.RWMutex
	chains map[string]*Chain
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{chains: make(map[string]*Chain)}
}

func (n *Network) chain(chainID string) (*Chain, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.chains[chainID]
	return c, ok
}

// Config configures a mock chain.
type Config struct {
	ChainID string
	// BlockTime is the minimum time between two empty blocks. A block is produced
	// lazily when the chain's height is queried after BlockTime has elapsed, and
	// for every transaction.
	BlockTime       time.Duration
	IndexerTime     time.Duration
	UnbondingPeriod time.Duration
}

type block struct {
	header *tmtypes.SignedHeader
	events []provider.RelayerEvent
}

// Chain is an in-memory chain implementing provider.ChainProvider.
type Chain struct {
	net *Network
	cfg Config

	store *versionedStore

	mu        sync.Mutex
	height    int64
	appHash   []byte
	blocks    map[int64]*block
	txs       []*provider.TxResult
	valSet    *tmtypes.ValidatorSet
	lastBlock time.Time
	versions  map[string]string
	address   string
}

var _ provider.ChainProvider = (*Chain)(nil)

// AddChain creates a chain on the network at height 1.
func (n *Network) AddChain(cfg Config) (*Chain, error) {
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("chain id required")
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	if cfg.UnbondingPeriod <= 0 {
		cfg.UnbondingPeriod = DefaultUnbondingPeriod
	}

	val := tmtypes.NewValidator(ed25519.GenPrivKey().PubKey(), 100)
	c := &Chain{
		net:      n,
		cfg:      cfg,
		store:    newVersionedStore(),
		blocks:   make(map[int64]*block),
		valSet:   tmtypes.NewValidatorSet([]*tmtypes.Validator{val}),
		versions: make(map[string]string),
		address:  "mock1" + strings.ToLower(hex.EncodeToString(val.Address)),
		appHash:  sha256.New().Sum(nil),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.chains[cfg.ChainID]; ok {
		return nil, fmt.Errorf("chain %s already exists", cfg.ChainID)
	}
	n.chains[cfg.ChainID] = c

	c.mu.Lock()
	c.newBlockLocked()
	c.mu.Unlock()
	return c, nil
}

// SetPortVersion makes the chain answer channel open tries on port with version
// instead of accepting the counterparty's version.
func (c *Chain) SetPortVersion(port, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[port] = version
}

// Address is the account used as sender of transfers.
func (c *Chain) Address() string {
	return c.address
}

// Height returns the current height without producing a block.
func (c *Chain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// ProduceBlock commits an empty block and returns its height.
func (c *Chain) ProduceBlock() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newBlockLocked()
}

// maybeProduceBlockLocked commits an empty block if the block time elapsed.
func (c *Chain) maybeProduceBlockLocked() {
	if time.Since(c.lastBlock) >= c.cfg.BlockTime {
		c.newBlockLocked()
	}
}

// newBlockLocked starts block height+1. Its header commits to the state after the
// previous block; transactions of the new block write at the new height.
func (c *Chain) newBlockLocked() int64 {
	now := time.Now().UTC()
	if !now.After(c.lastBlock) {
		now = c.lastBlock.Add(time.Nanosecond)
	}
	c.height++
	c.lastBlock = now

	valHash := c.valSet.Hash()
	header := &tmtypes.Header{
		Version:            tmprotoversion.Consensus{Block: tmversion.BlockProtocol},
		ChainID:            c.cfg.ChainID,
		Height:             c.height,
		Time:               now,
		AppHash:            append([]byte(nil), c.appHash...),
		ValidatorsHash:     valHash,
		NextValidatorsHash: valHash,
		ProposerAddress:    c.valSet.Proposer.Address,
	}
	// nobody signs mock blocks
	commit := &tmtypes.Commit{
		Height:     c.height,
		BlockID:    tmtypes.BlockID{Hash: header.Hash()},
		Signatures: []tmtypes.CommitSig{tmtypes.NewCommitSigAbsent()},
	}
	c.blocks[c.height] = &block{
		header: &tmtypes.SignedHeader{Header: header, Commit: commit},
	}
	return c.height
}

func (c *Chain) txHash(height int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s/%d/%d", c.cfg.ChainID, height, len(c.txs))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// updateAppHash folds a write into the running application hash.
func (c *Chain) updateAppHash(key, value []byte, version int64) {
	h := sha256.New()
	h.Write(c.appHash)
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(version))
	h.Write(v[:])
	h.Write(key)
	h.Write(value)
	c.appHash = h.Sum(nil)
}

func validatorSetFromProto(vs *tmproto.ValidatorSet) (*tmtypes.ValidatorSet, error) {
	if vs == nil {
		return nil, fmt.Errorf("missing validator set")
	}
	return tmtypes.ValidatorSetFromProto(vs)
}
