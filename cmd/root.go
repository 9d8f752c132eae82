/*
Package cmd includes relayer commands
Copyright © 2020 Jack Zampolin jack.zampolin@gmail.com

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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "lrly"

var defaultHome = filepath.Join(os.Getenv("HOME"), ".link-relayer")

// RootOption customises the root command.
type RootOption func(*appState)

// WithChainFactory replaces the function turning configured chains into providers.
func WithChainFactory(f ChainFactory) RootOption {
	return func(a *appState) {
		a.chainFactory = f
	}
}

// NewRootCmd returns the root command for lrly.
// If log is nil, a logger is built from the --log-format and --debug flags.
func NewRootCmd(log *zap.Logger, opts ...RootOption) *cobra.Command {
	a := &appState{
		Viper:        viper.New(),
		Log:          log,
		chainFactory: defaultChainFactory,
	}
	for _, opt := range opts {
		opt(a)
	}

	var rootCmd = &cobra.Command{
		Use:   appName,
		Short: "This application relays packets and acknowledgements over an IBC connection between two chains",
		Long: `lrly keeps the light clients of two IBC enabled chains up to date and relays
packets, acknowledgements and timeouts over one connection between them.

NOTE: Most of the commands have aliases that make typing them much quicker
      (i.e. 'lrly query pending', 'lrly q p', etc...)`,
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// Inside persistent pre-run because this takes effect after flags are parsed.
		if a.Log == nil {
			log, err := newRootLogger(a.Viper.GetString(flagLogFormat), a.Viper.GetBool(flagDebug))
			if err != nil {
				return err
			}
			a.Log = log
		}

		// reads `homeDir/config/config.yaml` into `a.Config`
		return initConfig(rootCmd, a)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		// Force syncing the logs before exit, if anything is buffered.
		_ = a.Log.Sync()
	}

	// Register --home flag
	rootCmd.PersistentFlags().StringVar(&a.HomePath, flagHome, defaultHome, "set home directory")
	if err := a.Viper.BindPFlag(flagHome, rootCmd.PersistentFlags().Lookup(flagHome)); err != nil {
		panic(err)
	}

	// Register --debug flag
	rootCmd.PersistentFlags().BoolVarP(&a.Debug, flagDebug, "d", false, "debug output")
	if err := a.Viper.BindPFlag(flagDebug, rootCmd.PersistentFlags().Lookup(flagDebug)); err != nil {
		panic(err)
	}

	rootCmd.PersistentFlags().String(flagLogFormat, "auto", "log output format (auto, logfmt, json, or console)")
	if err := a.Viper.BindPFlag(flagLogFormat, rootCmd.PersistentFlags().Lookup(flagLogFormat)); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		configCmd(a),
		chainsCmd(a),
		linksCmd(a),
		queryCmd(a),
		startCmd(a),
		getVersionCmd(a),
	)

	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.EnableCommandSorting = false

	rootCmd := NewRootCmd(nil)
	rootCmd.SilenceUsage = true

	// Cancel the root context when the process is interrupted.
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		// A second signal exits immediately.
		<-sigCh
		os.Exit(130)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newRootLogger(format string, debug bool) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("2006-01-02T15:04:05.000000Z07:00"))
	}
	config.LevelKey = "lvl"

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(config)
	case "auto", "console":
		enc = zapcore.NewConsoleEncoder(config)
	case "logfmt":
		enc = zaplogfmt.NewEncoder(config)
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.New(zapcore.NewCore(
		enc,
		os.Stderr,
		level,
	)), nil
}

// withUsage wraps a PositionalArgs to display usage only when the PositionalArgs
// variant is violated.
func withUsage(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := inner(cmd, args); err != nil {
			cmd.Root().SilenceUsage = false
			cmd.SilenceUsage = false
			return err
		}

		return nil
	}
}
