package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cosmos/link-relayer/relayer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func queryCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "IBC query commands",
		Long:    "Commands to query IBC primitives and other useful data on configured chains.",
	}

	cmd.AddCommand(
		queryHeightCmd(a),
		queryPendingCmd(a),
	)

	return cmd
}

func queryHeightCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "height chain_name",
		Aliases: []string{"h"},
		Short:   "Query the latest height of a configured chain",
		Args:    withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s query height gaia
$ %s q h gaia`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.chainProvider(args[0])
			if err != nil {
				return err
			}
			h, err := p.QueryLatestHeight(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	return cmd
}

// pendingPacket is a packet or acknowledgement waiting to be relayed.
type pendingPacket struct {
	Sequence      uint64 `json:"sequence" yaml:"sequence"`
	SourcePort    string `json:"source-port" yaml:"source-port"`
	SourceChannel string `json:"source-channel" yaml:"source-channel"`
	Height        int64  `json:"height" yaml:"height"`
}

type pendingSide struct {
	Chain   string          `json:"chain" yaml:"chain"`
	ChainID string          `json:"chain-id" yaml:"chain-id"`
	Height  int64           `json:"height" yaml:"height"`
	Packets []pendingPacket `json:"packets" yaml:"packets"`
	Acks    []pendingPacket `json:"acks" yaml:"acks"`
}

type pendingReport struct {
	Link string      `json:"link" yaml:"link"`
	Src  pendingSide `json:"src" yaml:"src"`
	Dst  pendingSide `json:"dst" yaml:"dst"`
}

func queryPendingCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pending link_name",
		Aliases: []string{"p", "unrelayed"},
		Short:   "Query the packets and acknowledgements waiting to be relayed over a link",
		Long: `Query the packets sent on either chain that the counterparty has not received,
and the acknowledgements written on either chain that the counterparty has not processed.
Packets and acknowledgements rejected by the link's channel filter are left out.`,
		Args: withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s query pending demo
$ %s q p demo --json`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]
			link, lc, err := a.openLink(ctx, name)
			if err != nil {
				return err
			}

			report := pendingReport{
				Link: name,
				Src:  pendingSide{Chain: lc.Src.Chain},
				Dst:  pendingSide{Chain: lc.Dst.Chain},
			}
			sides := map[relayer.Side]*pendingSide{
				relayer.SideA: &report.Src,
				relayer.SideB: &report.Dst,
			}

			report.Src.Height, report.Dst.Height, err = chainHeights(ctx,
				link.Endpoint(relayer.SideA).Provider, link.Endpoint(relayer.SideB).Provider)
			if err != nil {
				return err
			}

			eg, egCtx := errgroup.WithContext(ctx)
			for side, out := range sides {
				side, out := side, out
				out.ChainID = link.Endpoint(side).ChainID()
				eg.Go(func() error {
					packets, err := link.GetPendingPackets(egCtx, side, 0, 0)
					if err != nil {
						return err
					}
					out.Packets = make([]pendingPacket, 0, len(packets))
					for _, p := range packets {
						out.Packets = append(out.Packets, pendingPacket{
							Sequence:      p.Sequence,
							SourcePort:    p.SourcePort,
							SourceChannel: p.SourceChannel,
							Height:        p.Height,
						})
					}
					return nil
				})
				eg.Go(func() error {
					acks, err := link.GetPendingAcks(egCtx, side, 0, 0)
					if err != nil {
						return err
					}
					out.Acks = make([]pendingPacket, 0, len(acks))
					for _, ack := range acks {
						out.Acks = append(out.Acks, pendingPacket{
							Sequence:      ack.OriginalPacket.Sequence,
							SourcePort:    ack.OriginalPacket.SourcePort,
							SourceChannel: ack.OriginalPacket.SourceChannel,
							Height:        ack.Height,
						})
					}
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			var out []byte
			if jsn {
				out, err = json.Marshal(report)
			} else {
				out, err = yaml.Marshal(report)
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
