package mock

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

const (
	entryDeleted byte = 0
	entrySet     byte = 1
)

// versionedStore keeps every value ever written together with the block height
// (version) it was written at, so that state can be read and proven at any past height.
type versionedStore struct {
	db dbm.DB
}

func newVersionedStore() *versionedStore {
	return &versionedStore{db: dbm.NewMemDB()}
}

// storeKey is len(key) | key | big endian version, which keeps the versions of one
// key contiguous and ordered.
func storeKey(key []byte, version int64) []byte {
	bz := make([]byte, binary.MaxVarintLen64+len(key)+8)
	n := binary.PutUvarint(bz, uint64(len(key)))
	n += copy(bz[n:], key)
	binary.BigEndian.PutUint64(bz[n:], uint64(version))
	return bz[:n+8]
}

// get returns the value of key as of version. A missing or deleted key returns nil.
func (s *versionedStore) get(key []byte, version int64) ([]byte, error) {
	if version < 0 {
		return nil, nil
	}
	it, err := s.db.ReverseIterator(storeKey(key, 0), storeKey(key, version+1))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	if !it.Valid() {
		return nil, nil
	}
	entry := it.Value()
	if len(entry) == 0 || entry[0] == entryDeleted {
		return nil, nil
	}
	value := make([]byte, len(entry)-1)
	copy(value, entry[1:])
	return value, nil
}

func (s *versionedStore) set(key, value []byte, version int64) error {
	entry := make([]byte, len(value)+1)
	entry[0] = entrySet
	copy(entry[1:], value)
	return s.db.Set(storeKey(key, version), entry)
}

func (s *versionedStore) delete(key []byte, version int64) error {
	return s.db.Set(storeKey(key, version), []byte{entryDeleted})
}

// proof is the opaque proof this chain hands out for key at version. The receiving
// chain recomputes it from this chain's store to verify it.
func proof(chainID string, version int64, key, value []byte) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s/%d/", chainID, version)
	h.Write(key)
	h.Write([]byte{0})
	h.Write(value)
	return h.Sum(nil)
}
