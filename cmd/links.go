package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func linksCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "link",
		Aliases: []string{"links", "ln"},
		Short:   "Manage links between two chains",
	}

	cmd.AddCommand(
		linksListCmd(a),
		linksShowCmd(a),
		linksAddCmd(a),
		linkNewCmd(a),
		linkChannelCmd(a),
	)

	return cmd
}

func linksListCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "Print out configured links",
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			for i, name := range sortedKeys(cfg.Links) {
				l := cfg.Links[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %-20s -> chains(%s<>%s) connections(%s<>%s)\n",
					i, name, l.Src.Chain, l.Dst.Chain, orDash(l.Src.ConnectionID), orDash(l.Dst.ConnectionID))
			}
			return nil
		},
	}
	return cmd
}

func linksShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show link_name",
		Short: "Print the configuration of a link",
		Args:  withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			l, err := cfg.Link(args[0])
			if err != nil {
				return err
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			var out []byte
			if jsn {
				out, err = json.Marshal(l)
			} else {
				out, err = yaml.Marshal(l)
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

func linksAddCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add link_name src_chain_name dst_chain_name",
		Short: "Add a link between two configured chains",
		Args:  withUsage(cobra.ExactArgs(3)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s link add demo gaia osmosis
$ %s link add demo gaia osmosis --src-connection connection-0 --dst-connection connection-12`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := cfg.Links[name]; ok {
				return errLinkExists(name)
			}

			next := *cfg
			next.Links = make(map[string]*LinkConfig, len(cfg.Links)+1)
			for k, v := range cfg.Links {
				next.Links[k] = v
			}
			next.Links[name] = &LinkConfig{
				Src: &LinkEnd{Chain: args[1], ConnectionID: a.Viper.GetString(flagSrcConnection)},
				Dst: &LinkEnd{Chain: args[2], ConnectionID: a.Viper.GetString(flagDstConnection)},
			}
			return a.OverwriteConfig(&next)
		},
	}
	return linkAddFlags(a.Viper, cmd)
}

func linkNewCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new link_name",
		Short: "Create light clients and a connection for a link, or verify the existing ones",
		Long: `Create a light client of each chain on the other one and open a connection
between them. If the link already names a connection on both ends, the connections
and their clients are verified instead and nothing is written to the chains.`,
		Args: withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s link new demo`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}
			name := args[0]
			lc, err := cfg.Link(name)
			if err != nil {
				return err
			}

			var link *relayer.Link
			if lc.Src.ConnectionID != "" {
				link, _, err = a.openLink(cmd.Context(), name)
			} else {
				link, err = a.newConnections(cmd, name, lc)
			}
			if err != nil {
				return err
			}

			src, dst := link.Endpoint(relayer.SideA), link.Endpoint(relayer.SideB)
			a.Log.Info(
				"Link ready",
				zap.String("link", name),
				zap.String("src_chain_id", src.ChainID()),
				zap.String("src_client_id", src.ClientID),
				zap.String("src_connection_id", src.ConnectionID),
				zap.String("dst_chain_id", dst.ChainID()),
				zap.String("dst_client_id", dst.ClientID),
				zap.String("dst_connection_id", dst.ConnectionID),
			)

			return a.updateLink(name, func(l *LinkConfig) {
				l.Src.ClientID, l.Src.ConnectionID = src.ClientID, src.ConnectionID
				l.Dst.ClientID, l.Dst.ConnectionID = dst.ClientID, dst.ConnectionID
			})
		},
	}
	return cmd
}

func (a *appState) newConnections(cmd *cobra.Command, name string, lc *LinkConfig) (*relayer.Link, error) {
	src, dst, err := a.linkProviders(lc)
	if err != nil {
		return nil, err
	}
	link, err := relayer.CreateWithNewConnections(
		cmd.Context(), src, dst,
		lc.Src.trustingPeriod(), lc.Dst.trustingPeriod(),
		relayer.WithLogger(a.Log),
		relayer.WithName(name),
		relayer.WithPacketFilter(lc.Filter.PacketFilter()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections for link %s: %w", name, err)
	}
	return link, nil
}

func linkChannelCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "channel link_name",
		Aliases: []string{"chan"},
		Short:   "Open a channel over the connection of a link",
		Args:    withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s link channel demo
$ %s link channel demo --src-port transfer --dst-port transfer --order unordered --version ics20-1`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			order, err := parseOrder(a.Viper.GetString(flagOrder))
			if err != nil {
				return err
			}
			srcPort, dstPort := a.Viper.GetString(flagSrcPort), a.Viper.GetString(flagDstPort)
			if err := relayer.ValidateChannelParams(srcPort, dstPort, order); err != nil {
				return err
			}

			link, _, err := a.openLink(cmd.Context(), name)
			if err != nil {
				return err
			}

			pair, err := link.CreateChannel(cmd.Context(), relayer.SideA, srcPort, dstPort, order, a.Viper.GetString(flagVersion))
			if err != nil {
				return err
			}

			a.Log.Info(
				"Channel created",
				zap.String("link", name),
				zap.String("src_port_id", pair.Src.PortID),
				zap.String("src_channel_id", pair.Src.ChannelID),
				zap.String("dst_port_id", pair.Dest.PortID),
				zap.String("dst_channel_id", pair.Dest.ChannelID),
			)

			return a.updateLink(name, func(l *LinkConfig) {
				l.Src.PortID, l.Src.ChannelID = pair.Src.PortID, pair.Src.ChannelID
				l.Dst.PortID, l.Dst.ChannelID = pair.Dest.PortID, pair.Dest.ChannelID
			})
		},
	}
	return channelFlags(a.Viper, cmd)
}

func parseOrder(s string) (chantypes.Order, error) {
	switch strings.ToLower(s) {
	case "ordered":
		return chantypes.ORDERED, nil
	case "unordered":
		return chantypes.UNORDERED, nil
	default:
		return chantypes.NONE, fmt.Errorf("invalid channel order %q, expected ordered or unordered", s)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
