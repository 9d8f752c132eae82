package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cosmos/link-relayer/relayer/chains/cosmos"
	"github.com/cosmos/link-relayer/relayer/provider"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChainFactory turns a configured chain into a provider.
type ChainFactory func(log *zap.Logger, name string, cfg *ChainConfig) (provider.ChainProvider, error)

// defaultChainFactory connects to cosmos chains over RPC. The providers it builds
// have no transaction signer; embedders wanting to relay pass their own factory.
func defaultChainFactory(log *zap.Logger, name string, cfg *ChainConfig) (provider.ChainProvider, error) {
	switch cfg.Type {
	case chainTypeCosmos:
		return cfg.CosmosProviderConfig.NewProvider(log.With(zap.String("chain_name", name)), nil)
	default:
		return nil, fmt.Errorf("chain %s: %w %q", name, errUnsupportedChainType, cfg.Type)
	}
}

func chainsCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chains",
		Aliases: []string{"ch"},
		Short:   "Manage chain configurations",
	}

	cmd.AddCommand(
		chainsListCmd(a),
		chainsShowCmd(a),
		chainsAddCmd(a),
		chainsDeleteCmd(a),
	)

	return cmd
}

func chainsListCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "Returns the configured chains",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s chains list
$ %s ch l`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			for i, name := range sortedKeys(cfg.Chains) {
				c := cfg.Chains[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %-20s -> type(%s) chain-id(%s)\n", i, name, c.Type, c.ChainID)
			}
			return nil
		},
	}
	return cmd
}

func chainsShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show chain_name",
		Short: "Returns a chain's configuration data",
		Args:  withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s chains show gaia --json`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			c, ok := cfg.Chains[args[0]]
			if !ok {
				return errChainNotFound(args[0])
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			var out []byte
			if jsn {
				out, err = json.Marshal(c)
			} else {
				out, err = yaml.Marshal(c)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return jsonFlag(a.Viper, cmd)
}

func chainsAddCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add chain_name",
		Short: "Add a chain to the configuration file",
		Args:  withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s chains add gaia --chain-id cosmoshub-4 --rpc-addr http://localhost:26657
$ %s chains add local --type mock --chain-id local-1`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Chains[name]; ok {
				return errChainExists(name)
			}

			c := &ChainConfig{
				Type: a.Viper.GetString(flagChainType),
				CosmosProviderConfig: cosmos.CosmosProviderConfig{
					ChainID:     a.Viper.GetString(flagChainID),
					RPCAddr:     a.Viper.GetString(flagRPCAddr),
					BlockTime:   a.Viper.GetString(flagBlockTime),
					IndexerTime: a.Viper.GetString(flagIndexerTime),
				},
			}

			next := *cfg
			next.Chains = make(map[string]*ChainConfig, len(cfg.Chains)+1)
			for k, v := range cfg.Chains {
				next.Chains[k] = v
			}
			next.Chains[name] = c
			return a.OverwriteConfig(&next)
		},
	}
	return chainAddFlags(a.Viper, cmd)
}

func chainsDeleteCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete chain_name",
		Aliases: []string{"d"},
		Short:   "Removes a chain from the configuration file",
		Args:    withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s chains delete gaia`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Chains[name]; !ok {
				return errChainNotFound(name)
			}

			next := *cfg
			next.Chains = make(map[string]*ChainConfig, len(cfg.Chains))
			for k, v := range cfg.Chains {
				if k != name {
					next.Chains[k] = v
				}
			}
			// validation rejects links left pointing at the chain
			return a.OverwriteConfig(&next)
		},
	}
	return cmd
}
