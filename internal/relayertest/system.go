// Package relayertest enables testing the relayer command-line interface
// from within Go unit tests.
package relayertest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cosmos/link-relayer/cmd"
	"github.com/cosmos/link-relayer/relayer/chains/mock"
	"github.com/cosmos/link-relayer/relayer/provider"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

// System is a system under test.
type System struct {
	// Temporary directory to be injected as --home argument.
	HomeDir string

	// Network hosts the mock chains configured with "chains add --type mock".
	// Chains outlive single command invocations, so a handshake started by
	// one command is visible to the next.
	Network *mock.Network

	mu     sync.Mutex
	chains map[string]*mock.Chain
}

// NewSystem creates a new system with a home dir associated with a temp dir belonging to t.
//
// The returned System does not store a reference to t;
// some of its methods expect a *testing.T as an argument.
// This allows creating one instance of System to be shared with subtests.
func NewSystem(t *testing.T) *System {
	t.Helper()

	return &System{
		HomeDir: t.TempDir(),
		Network: mock.NewNetwork(),
		chains:  make(map[string]*mock.Chain),
	}
}

// Chain returns the mock chain with the given chain id, creating it on first use.
func (s *System) Chain(chainID string, blockTime time.Duration) (*mock.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chains[chainID]; ok {
		return c, nil
	}
	c, err := s.Network.AddChain(mock.Config{ChainID: chainID, BlockTime: blockTime})
	if err != nil {
		return nil, err
	}
	s.chains[chainID] = c
	return c, nil
}

// MustChain calls Chain and fails the test on error.
func (s *System) MustChain(t *testing.T, chainID string) *mock.Chain {
	t.Helper()

	c, err := s.Chain(chainID, 0)
	require.NoError(t, err)
	return c
}

// ChainFactory resolves chains of type mock to the system's network.
func (s *System) ChainFactory() cmd.ChainFactory {
	return func(_ *zap.Logger, name string, cfg *cmd.ChainConfig) (provider.ChainProvider, error) {
		if cfg.Type != "mock" {
			return nil, fmt.Errorf("chain %s: relayertest only serves mock chains, got type %q", name, cfg.Type)
		}
		var blockTime time.Duration
		if cfg.BlockTime != "" {
			d, err := time.ParseDuration(cfg.BlockTime)
			if err != nil {
				return nil, fmt.Errorf("chain %s: block-time: %w", name, err)
			}
			blockTime = d
		}
		c, err := s.Chain(cfg.ChainID, blockTime)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// RunResult is the stdout and stderr resulting from a call to (*System).Run,
// and any error that was returned.
type RunResult struct {
	Stdout, Stderr bytes.Buffer

	Err error
}

// Run calls s.RunC with context.Background().
func (s *System) Run(log *zap.Logger, args ...string) RunResult {
	return s.RunC(context.Background(), log, args...)
}

// RunC calls s.RunWithInputC with an empty stdin.
func (s *System) RunC(ctx context.Context, log *zap.Logger, args ...string) RunResult {
	return s.RunWithInputC(ctx, log, bytes.NewReader(nil), args...)
}

// RunWithInput is shorthand for RunWithInputC(context.Background(), ...).
func (s *System) RunWithInput(log *zap.Logger, in io.Reader, args ...string) RunResult {
	return s.RunWithInputC(context.Background(), log, in, args...)
}

// RunWithInputC executes the root command with the given context and args,
// providing in as the command's standard input,
// and returns a RunResult that has its Stdout and Stderr populated.
func (s *System) RunWithInputC(ctx context.Context, log *zap.Logger, in io.Reader, args ...string) RunResult {
	rootCmd := cmd.NewRootCmd(log, cmd.WithChainFactory(s.ChainFactory()))
	rootCmd.SetIn(in)
	// cmd.Execute also sets SilenceUsage,
	// so match that here for more correct assertions.
	rootCmd.SilenceUsage = true

	var res RunResult
	rootCmd.SetOut(&res.Stdout)
	rootCmd.SetErr(&res.Stderr)

	// Prepend the system's home directory to any provided args.
	args = append([]string{"--home", s.HomeDir}, args...)
	rootCmd.SetArgs(args)

	res.Err = rootCmd.ExecuteContext(ctx)
	return res
}

// MustRun calls Run, but also calls t.Fatal if RunResult.Err is not nil.
func (s *System) MustRun(t *testing.T, args ...string) RunResult {
	t.Helper()

	return s.MustRunWithInput(t, bytes.NewReader(nil), args...)
}

// MustRunWithInput calls RunWithInput, but also calls t.Fatal if RunResult.Err is not nil.
func (s *System) MustRunWithInput(t *testing.T, in io.Reader, args ...string) RunResult {
	t.Helper()

	res := s.RunWithInput(zaptest.NewLogger(t), in, args...)
	if res.Err != nil {
		t.Logf("Error executing %v: %v", args, res.Err)
		t.Logf("Stdout: %q", res.Stdout.String())
		t.Logf("Stderr: %q", res.Stderr.String())
		t.FailNow()
	}

	return res
}

// MustAddMockChain calls "chains add --type mock" for a chain named after its chain id.
func (s *System) MustAddMockChain(t *testing.T, chainID string) {
	t.Helper()

	// Output is expected to be silent.
	res := s.MustRun(t, "chains", "add", chainID, "--type", "mock", "--chain-id", chainID)
	require.Empty(t, res.Stdout.String())
	require.Empty(t, res.Stderr.String())
}

// MustGetConfig reads the config file from the home directory.
func (s *System) MustGetConfig(t *testing.T) (config cmd.Config) {
	t.Helper()

	configBz, err := os.ReadFile(filepath.Join(s.HomeDir, "config", "config.yaml"))
	require.NoError(t, err, "failed to read config file")

	err = yaml.Unmarshal(configBz, &config)
	require.NoError(t, err, "failed to unmarshal config file")

	return config
}
