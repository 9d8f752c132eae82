/*
Package cmd includes relayer commands
Copyright © 2020 Jack Zampolin <jack.zampolin@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cosmos/link-relayer/internal/relaydebug"
	"github.com/cosmos/link-relayer/internal/relayermetrics"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const metricsDisabled = "off"

// startCmd represents the start command
func startCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start link_name [link_name...]",
		Aliases: []string{"st"},
		Short:   "Start relaying packets, acknowledgements and timeouts over the given links",
		Args:    withUsage(cobra.MinimumNArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s start demo
$ %s start demo demo2 --poll-interval 2s --metrics-listen-addr 127.0.0.1:7184`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.requireConfig()
			if err != nil {
				return err
			}

			opts := cfg.Global.RelayLoopOptions()
			overrideRelayLoopOptions(a.Viper, cmd, &opts)

			metricsAddr := cfg.Global.MetricsListenAddr
			if cmd.Flags().Changed(flagMetricsListenAddr) {
				metricsAddr = a.Viper.GetString(flagMetricsListenAddr)
			}

			var metrics *relayer.PrometheusMetrics
			if metricsAddr == "" || metricsAddr == metricsDisabled {
				a.Log.Info("Skipping metrics server due to empty metrics address")
			} else {
				ln, err := net.Listen("tcp", metricsAddr)
				if err != nil {
					a.Log.Error("Failed to listen on metrics address. If you have another relayer process open, use --" + flagMetricsListenAddr + " to pick a different address.")
					return fmt.Errorf("failed to listen on metrics address %q: %w", metricsAddr, err)
				}
				log := a.Log.With(zap.String("sys", "metricshttp"))
				log.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))
				metrics = relayer.NewPrometheusMetrics()
				relayermetrics.StartMetricsServer(cmd.Context(), log, ln, metrics.Registry)
			}

			if debugAddr := a.Viper.GetString(flagDebugListenAddr); debugAddr != "" {
				ln, err := net.Listen("tcp", debugAddr)
				if err != nil {
					return fmt.Errorf("failed to listen on debug address %q: %w", debugAddr, err)
				}
				log := a.Log.With(zap.String("sys", "debughttp"))
				log.Info("Debug server listening", zap.String("addr", ln.Addr().String()))
				relaydebug.StartDebugServer(cmd.Context(), log, ln)
			}

			links := make(map[string]*relayer.Link, len(args))
			for _, name := range args {
				link, _, err := a.openLink(cmd.Context(), name, relayer.WithMetrics(metrics))
				if err != nil {
					return err
				}
				links[name] = link
			}

			eg, egCtx := errgroup.WithContext(cmd.Context())
			for name, link := range links {
				name, link := name, link
				linkOpts := opts
				linkOpts.Store = fileCheckpointStore{path: a.statePath(name)}
				log := a.Log.With(zap.String("link", name))
				log.Info(
					"Relayer starting",
					zap.Duration("poll_interval", linkOpts.PollInterval),
					zap.Duration("max_client_age", linkOpts.MaxClientAge),
					zap.Uint64("timeout_blocks", linkOpts.Threshold.Blocks),
					zap.Duration("timeout_time", linkOpts.Threshold.Duration),
				)
				eg.Go(func() error {
					return <-relayer.StartRelayer(egCtx, log, link, linkOpts)
				})
			}

			// Block until the error channel sends a message.
			// The context being canceled will cause the relayer to stop,
			// so we don't want to separately monitor the ctx.Done channel,
			// because we would risk returning before the relayer cleans up.
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn(
					"Relayer start error",
					zap.Error(err),
				)
				return err
			}
			return nil
		},
	}
	return relayLoopFlags(a.Viper, cmd)
}
