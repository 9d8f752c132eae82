package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/cosmos/link-relayer/relayer/chains/cosmos"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig() *Config {
	cfg := defaultConfig()
	cfg.Chains["gaia"] = &ChainConfig{
		Type: chainTypeCosmos,
		CosmosProviderConfig: cosmos.CosmosProviderConfig{
			ChainID: "cosmoshub-4",
			RPCAddr: "http://localhost:26657",
		},
	}
	cfg.Chains["local"] = &ChainConfig{
		Type:                 chainTypeMock,
		CosmosProviderConfig: cosmos.CosmosProviderConfig{ChainID: "local-1"},
	}
	cfg.Links["demo"] = &LinkConfig{
		Src: &LinkEnd{Chain: "gaia", ConnectionID: "connection-0"},
		Dst: &LinkEnd{Chain: "local", ConnectionID: "connection-3"},
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, defaultConfig().Validate())
	require.NoError(t, testConfig().Validate())

	for _, tt := range []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "bad poll interval",
			modify: func(c *Config) { c.Global.PollInterval = "soon" },
			errMsg: "poll-interval",
		},
		{
			name:   "unknown chain type",
			modify: func(c *Config) { c.Chains["gaia"].Type = "evm" },
			errMsg: `unknown chain type "evm"`,
		},
		{
			name:   "cosmos chain without rpc",
			modify: func(c *Config) { c.Chains["gaia"].RPCAddr = "" },
			errMsg: "rpc-addr is required",
		},
		{
			name:   "link to missing chain",
			modify: func(c *Config) { c.Links["demo"].Dst.Chain = "osmosis" },
			errMsg: `chain "osmosis" not found`,
		},
		{
			name:   "link to itself",
			modify: func(c *Config) { c.Links["demo"].Dst.Chain = "gaia" },
			errMsg: "same chain",
		},
		{
			name:   "connection on one end only",
			modify: func(c *Config) { c.Links["demo"].Dst.ConnectionID = "" },
			errMsg: "both ends or neither",
		},
		{
			name:   "invalid channel id",
			modify: func(c *Config) { c.Links["demo"].Src.ChannelID = "x" },
			errMsg: "link demo",
		},
		{
			name: "unknown filter rule",
			modify: func(c *Config) {
				c.Links["demo"].Filter = &ChannelFilter{Rule: "maybe"}
			},
			errMsg: "filter rule",
		},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGlobalConfigRelayLoopOptions(t *testing.T) {
	g := newDefaultGlobalConfig()
	g.PollInterval = "2s"
	g.TimeoutBlocks = 7

	opts := g.RelayLoopOptions()
	require.Equal(t, 2*time.Second, opts.PollInterval)
	require.Equal(t, relayer.DefaultMaxClientAge, opts.MaxClientAge)
	require.Equal(t, uint64(7), opts.Threshold.Blocks)
	require.Equal(t, relayer.DefaultTimeoutThreshold().Duration, opts.Threshold.Duration)
}

func TestChannelFilterPacketFilter(t *testing.T) {
	packet := func(src, dst string) chantypes.Packet {
		return chantypes.Packet{SourceChannel: src, DestinationChannel: dst}
	}

	var none *ChannelFilter
	require.Nil(t, none.PacketFilter())

	allow := (&ChannelFilter{Rule: ruleAllowList, ChannelList: []string{"channel-1"}}).PacketFilter()
	require.True(t, allow(packet("channel-1", "channel-9")))
	require.True(t, allow(packet("channel-9", "channel-1")))
	require.False(t, allow(packet("channel-2", "channel-9")))

	deny := (&ChannelFilter{Rule: ruleDenyList, ChannelList: []string{"channel-1"}}).PacketFilter()
	require.False(t, deny(packet("channel-1", "channel-9")))
	require.True(t, deny(packet("channel-2", "channel-9")))
}

func TestParseOrder(t *testing.T) {
	order, err := parseOrder("ORDERED")
	require.NoError(t, err)
	require.Equal(t, chantypes.ORDERED, order)

	order, err = parseOrder("unordered")
	require.NoError(t, err)
	require.Equal(t, chantypes.UNORDERED, order)

	_, err = parseOrder("sideways")
	require.Error(t, err)
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Links["demo"].Filter = &ChannelFilter{Rule: ruleDenyList, ChannelList: []string{"channel-4"}}

	bz, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	// provider settings sit next to the chain type
	require.Contains(t, string(bz), "rpc-addr: http://localhost:26657")

	var got Config
	require.NoError(t, yaml.Unmarshal(bz, &got))
	require.Equal(t, *cfg, got)
}

func TestFileCheckpointStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "demo.yaml")
	store := fileCheckpointStore{path: path}

	c, err := store.Load(ctx)
	require.NoError(t, err)
	require.Zero(t, c)

	want := relayer.RelayCheckpoint{PacketHeightA: 10, PacketHeightB: 20, AckHeightA: 11, AckHeightB: 21}
	require.NoError(t, store.Save(ctx, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	c, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, c)

	require.NoError(t, os.WriteFile(path, []byte("{{"), 0600))
	_, err = store.Load(ctx)
	require.Error(t, err)
}
