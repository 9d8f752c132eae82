package cmd_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/link-relayer/cmd"
	"github.com/cosmos/link-relayer/internal/relayertest"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newLinkSystem returns a system with two mock chains and a link "demo" between them.
func newLinkSystem(t *testing.T) *relayertest.System {
	t.Helper()

	sys := relayertest.NewSystem(t)
	_ = sys.MustRun(t, "config", "init")
	sys.MustAddMockChain(t, "chain-a")
	sys.MustAddMockChain(t, "chain-b")
	_ = sys.MustRun(t, "link", "add", "demo", "chain-a", "chain-b")
	return sys
}

func TestConfigInitAndShow(t *testing.T) {
	sys := relayertest.NewSystem(t)

	res := sys.Run(zaptest.NewLogger(t), "config", "show")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "config does not exist")

	_ = sys.MustRun(t, "config", "init")

	res = sys.Run(zaptest.NewLogger(t), "config", "init")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "config already exists")

	res = sys.MustRun(t, "config", "show", "--json")
	var cfg cmd.Config
	require.NoError(t, json.Unmarshal(res.Stdout.Bytes(), &cfg))
	require.Equal(t, relayer.DefaultPollInterval.String(), cfg.Global.PollInterval)
	require.Empty(t, cfg.Chains)
	require.Empty(t, cfg.Links)
}

func TestCommandsRequireConfig(t *testing.T) {
	sys := relayertest.NewSystem(t)

	for _, args := range [][]string{
		{"chains", "list"},
		{"link", "list"},
		{"query", "height", "chain-a"},
		{"start", "demo"},
	} {
		res := sys.Run(zaptest.NewLogger(t), args...)
		require.Error(t, res.Err, args)
		require.Contains(t, res.Err.Error(), "config init", args)
	}
}

func TestChainsAddListDelete(t *testing.T) {
	sys := relayertest.NewSystem(t)
	_ = sys.MustRun(t, "config", "init")

	sys.MustAddMockChain(t, "chain-a")
	_ = sys.MustRun(t, "chains", "add", "gaia", "--chain-id", "cosmoshub-4", "--rpc-addr", "http://localhost:26657", "--block-time", "6s")

	cfg := sys.MustGetConfig(t)
	require.Len(t, cfg.Chains, 2)
	require.Equal(t, "mock", cfg.Chains["chain-a"].Type)
	require.Equal(t, "cosmos", cfg.Chains["gaia"].Type)
	require.Equal(t, "6s", cfg.Chains["gaia"].BlockTime)

	res := sys.MustRun(t, "chains", "list")
	require.Contains(t, res.Stdout.String(), "chain-id(chain-a)")
	require.Contains(t, res.Stdout.String(), "chain-id(cosmoshub-4)")

	res = sys.Run(zaptest.NewLogger(t), "chains", "add", "chain-a", "--type", "mock", "--chain-id", "chain-a")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "already exists")

	res = sys.Run(zaptest.NewLogger(t), "chains", "add", "broken", "--type", "mock")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "chain-id is required")

	_ = sys.MustRun(t, "chains", "delete", "gaia")
	cfg = sys.MustGetConfig(t)
	require.Len(t, cfg.Chains, 1)

	res = sys.Run(zaptest.NewLogger(t), "chains", "delete", "gaia")
	require.Error(t, res.Err)
}

func TestChainsDeleteRejectsLinkedChain(t *testing.T) {
	sys := newLinkSystem(t)

	res := sys.Run(zaptest.NewLogger(t), "chains", "delete", "chain-a")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "link demo")

	// the config file is left alone
	require.Len(t, sys.MustGetConfig(t).Chains, 2)
}

func TestQueryHeight(t *testing.T) {
	sys := newLinkSystem(t)

	chain := sys.MustChain(t, "chain-a")
	chain.ProduceBlock()
	chain.ProduceBlock()

	res := sys.MustRun(t, "query", "height", "chain-a")
	var h int64
	require.NoError(t, json.Unmarshal(res.Stdout.Bytes(), &h))
	require.GreaterOrEqual(t, h, int64(3))
}

func TestLinkAddValidation(t *testing.T) {
	sys := newLinkSystem(t)

	res := sys.Run(zaptest.NewLogger(t), "link", "add", "demo", "chain-a", "chain-b")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "already exists")

	res = sys.Run(zaptest.NewLogger(t), "link", "add", "other", "chain-a", "chain-z")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), `chain "chain-z" not found`)

	res = sys.Run(zaptest.NewLogger(t), "link", "add", "half", "chain-a", "chain-b", "--src-connection", "connection-0")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "both ends or neither")

	res = sys.Run(zaptest.NewLogger(t), "start", "demo")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "link new demo")
}

// pendingReport mirrors the json printed by "query pending".
type pendingReport struct {
	Link string `json:"link"`
	Src  struct {
		ChainID string `json:"chain-id"`
		Packets []struct {
			Sequence      uint64 `json:"sequence"`
			SourceChannel string `json:"source-channel"`
		} `json:"packets"`
		Acks []json.RawMessage `json:"acks"`
	} `json:"src"`
	Dst struct {
		ChainID string            `json:"chain-id"`
		Packets []json.RawMessage `json:"packets"`
		Acks    []json.RawMessage `json:"acks"`
	} `json:"dst"`
}

func TestLinkLifecycle(t *testing.T) {
	sys := newLinkSystem(t)
	ctx := context.Background()

	_ = sys.MustRun(t, "link", "new", "demo")

	cfg := sys.MustGetConfig(t)
	demo := cfg.Links["demo"]
	require.Equal(t, "07-tendermint-0", demo.Src.ClientID)
	require.Equal(t, "connection-0", demo.Src.ConnectionID)
	require.Equal(t, "07-tendermint-0", demo.Dst.ClientID)
	require.Equal(t, "connection-0", demo.Dst.ConnectionID)

	// existing connections are verified, not recreated
	_ = sys.MustRun(t, "link", "new", "demo")
	require.Equal(t, demo, sys.MustGetConfig(t).Links["demo"])

	res := sys.Run(zaptest.NewLogger(t), "link", "channel", "demo", "--order", "sideways")
	require.Error(t, res.Err)

	_ = sys.MustRun(t, "link", "channel", "demo")
	demo = sys.MustGetConfig(t).Links["demo"]
	require.Equal(t, "transfer", demo.Src.PortID)
	require.Equal(t, "channel-0", demo.Src.ChannelID)
	require.Equal(t, "transfer", demo.Dst.PortID)
	require.Equal(t, "channel-0", demo.Dst.ChannelID)

	res = sys.MustRun(t, "link", "list")
	require.Contains(t, res.Stdout.String(), "connections(connection-0<>connection-0)")

	a, b := sys.MustChain(t, "chain-a"), sys.MustChain(t, "chain-b")
	timeout := relayer.ChainHeight(b.ChainID(), b.Height()+1000)
	for _, amount := range []int64{5, 6} {
		txRes, err := a.Transfer(ctx, "transfer", "channel-0", sdk.NewInt64Coin("ustake", amount), "receiver", timeout, 0)
		require.NoError(t, err)
		require.Zero(t, txRes.Code, txRes.Data)
	}

	res = sys.MustRun(t, "query", "pending", "demo", "--json")
	var report pendingReport
	require.NoError(t, json.Unmarshal(res.Stdout.Bytes(), &report))
	require.Equal(t, "demo", report.Link)
	require.Equal(t, "chain-a", report.Src.ChainID)
	require.Equal(t, "chain-b", report.Dst.ChainID)
	require.Len(t, report.Src.Packets, 2)
	require.Equal(t, uint64(1), report.Src.Packets[0].Sequence)
	require.Equal(t, "channel-0", report.Src.Packets[0].SourceChannel)
	require.Empty(t, report.Src.Acks)
	require.Empty(t, report.Dst.Packets)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan relayertest.RunResult, 1)
	go func() {
		done <- sys.RunC(runCtx, zaptest.NewLogger(t), "start", "demo",
			"--poll-interval", "10ms", "--metrics-listen-addr", "off")
	}()

	require.Eventually(t, func() bool {
		for seq := uint64(1); seq <= 2; seq++ {
			commitment, err := a.QueryPacketCommitment(ctx, "transfer", "channel-0", seq)
			if err != nil || len(commitment) > 0 {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case res := <-done:
		require.NoError(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not stop")
	}

	_, err := os.Stat(filepath.Join(sys.HomeDir, "state", "demo.yaml"))
	require.NoError(t, err)

	res = sys.MustRun(t, "query", "pending", "demo", "--json")
	report = pendingReport{}
	require.NoError(t, json.Unmarshal(res.Stdout.Bytes(), &report))
	require.Empty(t, report.Src.Packets)
	require.Empty(t, report.Dst.Acks)
}

func TestVersion(t *testing.T) {
	sys := relayertest.NewSystem(t)

	res := sys.MustRun(t, "version", "--json")
	var info struct {
		Go  string `json:"go"`
		IBC struct {
			ClientType        string `json:"client-type"`
			ConnectionVersion string `json:"connection-version"`
			TransferVersion   string `json:"transfer-version"`
		} `json:"ibc"`
		Deps map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(res.Stdout.Bytes(), &info))
	require.NotEmpty(t, info.Go)
	require.Equal(t, "07-tendermint", info.IBC.ClientType)
	require.Equal(t, "1 (ORDER_ORDERED, ORDER_UNORDERED)", info.IBC.ConnectionVersion)
	require.Equal(t, "ics20-1", info.IBC.TransferVersion)
	for _, dep := range []string{"ibc-go", "cosmos-sdk", "tendermint"} {
		require.Contains(t, info.Deps, dep)
	}

	res = sys.MustRun(t, "version")
	require.Contains(t, res.Stdout.String(), "tendermint:")
}
