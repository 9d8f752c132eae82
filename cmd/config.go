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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chantypes "github.com/cosmos/ibc-go/v3/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v3/modules/core/24-host"
	"github.com/cosmos/link-relayer/relayer"
	"github.com/cosmos/link-relayer/relayer/chains/cosmos"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	chainTypeCosmos = "cosmos"
	chainTypeMock   = "mock"

	ruleAllowList = "allowlist"
	ruleDenyList  = "denylist"
)

func configCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage configuration file",
	}

	cmd.AddCommand(
		configShowCmd(a),
		configInitCmd(a),
	)
	return cmd
}

// Command for printing current configuration
func configShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints current configuration",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config show --home %s
$ %s cfg list`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Config == nil {
				cfgPath := a.configPath()
				if _, err := os.Stat(a.HomePath); os.IsNotExist(err) {
					return fmt.Errorf("home path does not exist: %s", a.HomePath)
				}
				return fmt.Errorf("config does not exist: %s", cfgPath)
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			var out []byte
			if jsn {
				out, err = json.Marshal(a.Config)
			} else {
				out, err = yaml.Marshal(a.Config)
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

// Command for initializing an empty config at the --home location
func configInitCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default home directory at path defined by --home",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config init --home %s
$ %s cfg i`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := a.configPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			if err := os.MkdirAll(filepath.Dir(cfgPath), os.ModePerm); err != nil {
				return err
			}
			return a.writeConfig(defaultConfig())
		},
	}
	return cmd
}

// Config represents the config file for the relayer
type Config struct {
	Global GlobalConfig            `yaml:"global" json:"global"`
	Chains map[string]*ChainConfig `yaml:"chains" json:"chains"`
	Links  map[string]*LinkConfig  `yaml:"links" json:"links"`
}

func defaultConfig() *Config {
	return &Config{
		Global: newDefaultGlobalConfig(),
		Chains: make(map[string]*ChainConfig),
		Links:  make(map[string]*LinkConfig),
	}
}

// GlobalConfig describes any global relayer settings
type GlobalConfig struct {
	PollInterval      string `yaml:"poll-interval" json:"poll-interval"`
	MaxClientAge      string `yaml:"max-client-age" json:"max-client-age"`
	TimeoutBlocks     uint64 `yaml:"timeout-blocks" json:"timeout-blocks"`
	TimeoutTime       string `yaml:"timeout-time" json:"timeout-time"`
	MetricsListenAddr string `yaml:"metrics-listen-addr" json:"metrics-listen-addr"`
}

// newDefaultGlobalConfig returns a global config with defaults set
func newDefaultGlobalConfig() GlobalConfig {
	th := relayer.DefaultTimeoutThreshold()
	return GlobalConfig{
		PollInterval:      relayer.DefaultPollInterval.String(),
		MaxClientAge:      relayer.DefaultMaxClientAge.String(),
		TimeoutBlocks:     th.Blocks,
		TimeoutTime:       th.Duration.String(),
		MetricsListenAddr: "127.0.0.1:5184",
	}
}

func (g GlobalConfig) Validate() error {
	var err error
	for name, d := range map[string]string{
		"poll-interval":  g.PollInterval,
		"max-client-age": g.MaxClientAge,
		"timeout-time":   g.TimeoutTime,
	} {
		if _, perr := time.ParseDuration(d); perr != nil {
			err = multierr.Append(err, fmt.Errorf("global %s: %w", name, perr))
		}
	}
	return err
}

// RelayLoopOptions converts the global settings to relay loop options.
// The config must have been validated.
func (g GlobalConfig) RelayLoopOptions() relayer.RelayLoopOptions {
	poll, _ := time.ParseDuration(g.PollInterval)
	maxAge, _ := time.ParseDuration(g.MaxClientAge)
	timeout, _ := time.ParseDuration(g.TimeoutTime)
	return relayer.RelayLoopOptions{
		PollInterval: poll,
		MaxClientAge: maxAge,
		Threshold: relayer.TimeoutThreshold{
			Blocks:   g.TimeoutBlocks,
			Duration: timeout,
		},
	}
}

// ChainConfig describes how to reach one chain. Type selects the provider.
type ChainConfig struct {
	Type                        string `yaml:"type" json:"type"`
	cosmos.CosmosProviderConfig `yaml:",inline"`
}

func (c *ChainConfig) Validate() error {
	switch c.Type {
	case chainTypeCosmos:
		return c.CosmosProviderConfig.Validate()
	case chainTypeMock:
		if c.ChainID == "" {
			return errors.New("chain-id is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown chain type %q", c.Type)
	}
}

// LinkConfig describes a link between two configured chains. Empty identifiers
// are filled in by 'link new' and 'link channel'.
type LinkConfig struct {
	Src    *LinkEnd       `yaml:"src" json:"src"`
	Dst    *LinkEnd       `yaml:"dst" json:"dst"`
	Filter *ChannelFilter `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// LinkEnd is one end of a link.
type LinkEnd struct {
	Chain        string `yaml:"chain" json:"chain"`
	ClientID     string `yaml:"client-id,omitempty" json:"client-id,omitempty"`
	ConnectionID string `yaml:"connection-id,omitempty" json:"connection-id,omitempty"`
	PortID       string `yaml:"port-id,omitempty" json:"port-id,omitempty"`
	ChannelID    string `yaml:"channel-id,omitempty" json:"channel-id,omitempty"`
	// TrustingPeriod of the light client hosted on this end, created by 'link new'.
	TrustingPeriod string `yaml:"trusting-period,omitempty" json:"trusting-period,omitempty"`
}

func (e *LinkEnd) validate(chains map[string]*ChainConfig) error {
	var err error
	if _, ok := chains[e.Chain]; !ok {
		err = multierr.Append(err, errChainNotFound(e.Chain))
	}
	if e.ClientID != "" {
		err = multierr.Append(err, host.ClientIdentifierValidator(e.ClientID))
	}
	if e.ConnectionID != "" {
		err = multierr.Append(err, host.ConnectionIdentifierValidator(e.ConnectionID))
	}
	if e.PortID != "" {
		err = multierr.Append(err, host.PortIdentifierValidator(e.PortID))
	}
	if e.ChannelID != "" {
		err = multierr.Append(err, host.ChannelIdentifierValidator(e.ChannelID))
	}
	if e.TrustingPeriod != "" {
		if _, perr := time.ParseDuration(e.TrustingPeriod); perr != nil {
			err = multierr.Append(err, fmt.Errorf("trusting-period: %w", perr))
		}
	}
	return err
}

func (e *LinkEnd) trustingPeriod() time.Duration {
	d, _ := time.ParseDuration(e.TrustingPeriod)
	return d
}

// ChannelFilter restricts the packets relayed over a link to, or away from,
// the listed channels. A packet matches when its source or destination channel is listed.
type ChannelFilter struct {
	Rule        string   `yaml:"rule" json:"rule"`
	ChannelList []string `yaml:"channel-list" json:"channel-list"`
}

func (cf *ChannelFilter) Validate() error {
	switch cf.Rule {
	case ruleAllowList, ruleDenyList:
	default:
		return fmt.Errorf("filter rule must be %s or %s, got %q", ruleAllowList, ruleDenyList, cf.Rule)
	}
	var err error
	for _, ch := range cf.ChannelList {
		err = multierr.Append(err, host.ChannelIdentifierValidator(ch))
	}
	return err
}

// PacketFilter returns the relayer filter for cf, nil for a nil filter.
func (cf *ChannelFilter) PacketFilter() relayer.PacketFilter {
	if cf == nil {
		return nil
	}
	listed := make(map[string]bool, len(cf.ChannelList))
	for _, ch := range cf.ChannelList {
		listed[ch] = true
	}
	allow := cf.Rule == ruleAllowList
	return func(p chantypes.Packet) bool {
		match := listed[p.SourceChannel] || listed[p.DestinationChannel]
		return match == allow
	}
}

func (l *LinkConfig) validate(chains map[string]*ChainConfig) error {
	if l.Src == nil || l.Dst == nil {
		return errors.New("src and dst are required")
	}
	err := multierr.Combine(
		l.Src.validate(chains),
		l.Dst.validate(chains),
	)
	if l.Src.Chain == l.Dst.Chain {
		err = multierr.Append(err, fmt.Errorf("src and dst are the same chain %q", l.Src.Chain))
	}
	if (l.Src.ConnectionID == "") != (l.Dst.ConnectionID == "") {
		err = multierr.Append(err, errors.New("connection-id must be set on both ends or neither"))
	}
	if l.Filter != nil {
		err = multierr.Append(err, l.Filter.Validate())
	}
	return err
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	err := c.Global.Validate()
	for _, name := range sortedKeys(c.Chains) {
		if cerr := c.Chains[name].Validate(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("chain %s: %w", name, cerr))
		}
	}
	for _, name := range sortedKeys(c.Links) {
		if lerr := c.Links[name].validate(c.Chains); lerr != nil {
			err = multierr.Append(err, fmt.Errorf("link %s: %w", name, lerr))
		}
	}
	return err
}

// Link returns the named link config.
func (c *Config) Link(name string) (*LinkConfig, error) {
	l, ok := c.Links[name]
	if !ok {
		return nil, errLinkNotFound(name)
	}
	return l, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// initConfig reads the config file into a.Config. A missing config file leaves a.Config nil.
func initConfig(cmd *cobra.Command, a *appState) error {
	a.Config = nil

	cfgPath := a.configPath()
	if _, err := os.Stat(cfgPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	a.Viper.SetConfigFile(cfgPath)
	if err := a.Viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read in config: %w", err)
	}

	// read the config file bytes
	file, err := os.ReadFile(a.Viper.ConfigFileUsed())
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	// unmarshall them into the struct
	cfg := defaultConfig()
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}
	if cfg.Chains == nil {
		cfg.Chains = make(map[string]*ChainConfig)
	}
	if cfg.Links == nil {
		cfg.Links = make(map[string]*LinkConfig)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	a.Config = cfg
	return nil
}
