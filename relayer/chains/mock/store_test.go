package mock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionedStore(t *testing.T) {
	s := newVersionedStore()
	key := []byte("key")

	require.NoError(t, s.set(key, []byte("v1"), 3))
	require.NoError(t, s.set(key, []byte("v2"), 7))
	require.NoError(t, s.delete(key, 9))
	// shares a prefix with key but must not be read through it
	require.NoError(t, s.set([]byte("key2"), []byte("other"), 1))

	for _, tc := range []struct {
		version int64
		want    []byte
	}{
		{version: 0, want: nil},
		{version: 2, want: nil},
		{version: 3, want: []byte("v1")},
		{version: 6, want: []byte("v1")},
		{version: 7, want: []byte("v2")},
		{version: 8, want: []byte("v2")},
		{version: 9, want: nil},
		{version: 100, want: nil},
	} {
		got, err := s.get(key, tc.version)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "version %d", tc.version)
	}
}

func TestVersionedStoreEmptyValue(t *testing.T) {
	s := newVersionedStore()
	key := []byte("empty")

	require.NoError(t, s.set(key, []byte{}, 1))

	got, err := s.get(key, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestProofBindsVersionAndValue(t *testing.T) {
	key := []byte("key")
	p := proof("chain-a", 5, key, []byte("v"))

	require.Equal(t, p, proof("chain-a", 5, key, []byte("v")))
	require.NotEqual(t, p, proof("chain-a", 6, key, []byte("v")))
	require.NotEqual(t, p, proof("chain-b", 5, key, []byte("v")))
	require.NotEqual(t, p, proof("chain-a", 5, key, nil))
}
