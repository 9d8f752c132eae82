package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosmos/link-relayer/relayer"
	"github.com/creachadair/atomicfile"
	"gopkg.in/yaml.v3"
)

// fileCheckpointStore keeps the relay checkpoint of a link in a yaml file, so that
// a restarted relayer resumes scanning where it stopped.
type fileCheckpointStore struct {
	path string
}

var _ relayer.CheckpointStore = fileCheckpointStore{}

// Load returns the zero checkpoint if the file does not exist yet.
func (s fileCheckpointStore) Load(context.Context) (relayer.RelayCheckpoint, error) {
	var c relayer.RelayCheckpoint
	bz, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(bz, &c); err != nil {
		return c, fmt.Errorf("failed to decode checkpoint %s: %w", s.path, err)
	}
	return c, nil
}

func (s fileCheckpointStore) Save(_ context.Context, c relayer.RelayCheckpoint) error {
	bz, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), os.ModePerm); err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(s.path, bytes.NewReader(bz), 0600)
	return err
}
