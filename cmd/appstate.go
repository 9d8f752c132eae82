package cmd

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/cosmos/link-relayer/relayer"
	"github.com/cosmos/link-relayer/relayer/provider"
	"github.com/creachadair/atomicfile"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// appState is the modifiable state of the application.
type appState struct {
	// Log is the root logger of the application.
	// Consumers are expected to store and use local copies of the logger
	// after modifying with the .With method.
	Log *zap.Logger

	Viper *viper.Viper

	HomePath string
	Debug    bool
	Config   *Config

	chainFactory ChainFactory
}

func (a *appState) configPath() string {
	return filepath.Join(a.HomePath, "config", "config.yaml")
}

func (a *appState) statePath(link string) string {
	return filepath.Join(a.HomePath, "state", link+".yaml")
}

// requireConfig returns the loaded config or an error telling the user to create one.
func (a *appState) requireConfig() (*Config, error) {
	if a.Config == nil {
		return nil, fmt.Errorf("config does not exist: %s; did you run '%s config init'?", a.configPath(), appName)
	}
	return a.Config, nil
}

// writeConfig atomically replaces the config file with cfg.
func (a *appState) writeConfig(cfg *Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cfgPath := a.configPath()
	if _, err := atomicfile.WriteAll(cfgPath, bytes.NewReader(out), 0600); err != nil {
		return fmt.Errorf("failed to write config file at %s: %w", cfgPath, err)
	}
	return nil
}

// OverwriteConfig validates cfg, writes it to disk and replaces a.Config with it.
// If a non-nil error is returned, neither the file nor a.Config is modified.
func (a *appState) OverwriteConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if err := a.writeConfig(cfg); err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// chainProvider builds the provider of the named chain.
func (a *appState) chainProvider(name string) (provider.ChainProvider, error) {
	cfg, err := a.requireConfig()
	if err != nil {
		return nil, err
	}
	chain, ok := cfg.Chains[name]
	if !ok {
		return nil, errChainNotFound(name)
	}
	return a.chainFactory(a.Log, name, chain)
}

// linkProviders builds the providers of both ends of a link.
func (a *appState) linkProviders(lc *LinkConfig) (src, dst provider.ChainProvider, err error) {
	if src, err = a.chainProvider(lc.Src.Chain); err != nil {
		return nil, nil, err
	}
	if dst, err = a.chainProvider(lc.Dst.Chain); err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// openLink validates the connections of the named link and returns the Link over them.
func (a *appState) openLink(ctx context.Context, name string, opts ...relayer.LinkOption) (*relayer.Link, *LinkConfig, error) {
	cfg, err := a.requireConfig()
	if err != nil {
		return nil, nil, err
	}
	lc, err := cfg.Link(name)
	if err != nil {
		return nil, nil, err
	}
	if lc.Src.ConnectionID == "" || lc.Dst.ConnectionID == "" {
		return nil, nil, fmt.Errorf("link %s has no connection; did you run '%s link new %s'?", name, appName, name)
	}

	src, dst, err := a.linkProviders(lc)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]relayer.LinkOption{
		relayer.WithLogger(a.Log),
		relayer.WithName(name),
		relayer.WithPacketFilter(lc.Filter.PacketFilter()),
	}, opts...)
	link, err := relayer.CreateWithExistingConnections(ctx, src, dst, lc.Src.ConnectionID, lc.Dst.ConnectionID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open link %s: %w", name, err)
	}
	return link, lc, nil
}

// updateLink applies update to a copy of the named link and persists the result.
func (a *appState) updateLink(name string, update func(*LinkConfig)) error {
	cfg, err := a.requireConfig()
	if err != nil {
		return err
	}
	lc, err := cfg.Link(name)
	if err != nil {
		return err
	}

	src, dst := *lc.Src, *lc.Dst
	updated := &LinkConfig{Src: &src, Dst: &dst, Filter: lc.Filter}
	update(updated)

	next := *cfg
	next.Links = make(map[string]*LinkConfig, len(cfg.Links))
	for k, v := range cfg.Links {
		next.Links[k] = v
	}
	next.Links[name] = updated
	return a.OverwriteConfig(&next)
}

// chainHeights queries the latest height of both link ends concurrently.
func chainHeights(ctx context.Context, src, dst provider.QueryProvider) (srcHeight, dstHeight int64, err error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		srcHeight, err = src.QueryLatestHeight(egCtx)
		return err
	})
	eg.Go(func() (err error) {
		dstHeight, err = dst.QueryLatestHeight(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return 0, 0, err
	}
	return srcHeight, dstHeight, nil
}
