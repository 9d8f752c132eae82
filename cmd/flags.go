package cmd

import (
	"github.com/cosmos/link-relayer/relayer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHome      = "home"
	flagDebug     = "debug"
	flagLogFormat = "log-format"
	flagJSON      = "json"

	flagChainType   = "type"
	flagChainID     = "chain-id"
	flagRPCAddr     = "rpc-addr"
	flagBlockTime   = "block-time"
	flagIndexerTime = "indexer-time"

	flagSrcConnection = "src-connection"
	flagDstConnection = "dst-connection"

	flagSrcPort = "src-port"
	flagDstPort = "dst-port"
	flagOrder   = "order"
	flagVersion = "version"

	flagPollInterval      = "poll-interval"
	flagMaxClientAge      = "max-client-age"
	flagTimeoutBlocks     = "timeout-blocks"
	flagTimeoutTime       = "timeout-time"
	flagMetricsListenAddr = "metrics-listen-addr"
	flagDebugListenAddr   = "debug-listen-addr"
)

const (
	defaultPort    = "transfer"
	defaultOrder   = "unordered"
	defaultVersion = "ics20-1"
)

func bindFlag(v *viper.Viper, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

func jsonFlag(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	bindFlag(v, cmd, flagJSON)
	return cmd
}

func chainAddFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringP(flagChainType, "t", chainTypeCosmos, "chain provider type (cosmos or mock)")
	cmd.Flags().String(flagChainID, "", "chain id of the chain")
	cmd.Flags().String(flagRPCAddr, "", "tendermint rpc address of a cosmos chain")
	cmd.Flags().String(flagBlockTime, "", "estimated block time, e.g. 6s")
	cmd.Flags().String(flagIndexerTime, "", "estimated delay before a committed tx is searchable, e.g. 500ms")
	for _, name := range []string{flagChainType, flagChainID, flagRPCAddr, flagBlockTime, flagIndexerTime} {
		bindFlag(v, cmd, name)
	}
	return cmd
}

func linkAddFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagSrcConnection, "", "existing connection on the src chain")
	cmd.Flags().String(flagDstConnection, "", "existing connection on the dst chain")
	bindFlag(v, cmd, flagSrcConnection)
	bindFlag(v, cmd, flagDstConnection)
	return cmd
}

func channelFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagSrcPort, defaultPort, "port on the src chain")
	cmd.Flags().String(flagDstPort, defaultPort, "port on the dst chain")
	cmd.Flags().StringP(flagOrder, "o", defaultOrder, "channel ordering (ordered or unordered)")
	cmd.Flags().StringP(flagVersion, "v", defaultVersion, "channel version proposed by the src chain")
	for _, name := range []string{flagSrcPort, flagDstPort, flagOrder, flagVersion} {
		bindFlag(v, cmd, name)
	}
	return cmd
}

func relayLoopFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	th := relayer.DefaultTimeoutThreshold()
	cmd.Flags().Duration(flagPollInterval, relayer.DefaultPollInterval, "pause between two relay rounds")
	cmd.Flags().Duration(flagMaxClientAge, relayer.DefaultMaxClientAge, "update a light client when its latest consensus state is older")
	cmd.Flags().Uint64(flagTimeoutBlocks, th.Blocks, "time out packets this many blocks before they expire")
	cmd.Flags().Duration(flagTimeoutTime, th.Duration, "time out packets this long before they expire")
	cmd.Flags().String(flagMetricsListenAddr, "", "address to serve metrics on, overriding the config; 'off' disables the server")
	cmd.Flags().String(flagDebugListenAddr, "", "address to serve pprof on; empty disables the server")
	for _, name := range []string{flagPollInterval, flagMaxClientAge, flagTimeoutBlocks, flagTimeoutTime, flagMetricsListenAddr, flagDebugListenAddr} {
		bindFlag(v, cmd, name)
	}
	return cmd
}

// overrideRelayLoopOptions replaces the options given explicitly on the command line.
func overrideRelayLoopOptions(v *viper.Viper, cmd *cobra.Command, opts *relayer.RelayLoopOptions) {
	if cmd.Flags().Changed(flagPollInterval) {
		opts.PollInterval = v.GetDuration(flagPollInterval)
	}
	if cmd.Flags().Changed(flagMaxClientAge) {
		opts.MaxClientAge = v.GetDuration(flagMaxClientAge)
	}
	if cmd.Flags().Changed(flagTimeoutBlocks) {
		opts.Threshold.Blocks = v.GetUint64(flagTimeoutBlocks)
	}
	if cmd.Flags().Changed(flagTimeoutTime) {
		opts.Threshold.Duration = v.GetDuration(flagTimeoutTime)
	}
}
