package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	transfertypes "github.com/cosmos/ibc-go/v3/modules/apps/transfer/types"
	conntypes "github.com/cosmos/ibc-go/v3/modules/core/03-connection/types"
	"github.com/cosmos/ibc-go/v3/modules/core/exported"
	"github.com/cosmos/link-relayer/internal/relaydebug"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version defines the application version (defined at compile time)
	Version = ""
	Commit  = ""
	Dirty   = ""
)

type versionInfo struct {
	Version string       `json:"version" yaml:"version"`
	Commit  string       `json:"commit" yaml:"commit"`
	Go      string       `json:"go" yaml:"go"`
	IBC     ibcInfo      `json:"ibc" yaml:"ibc"`
	Deps    dependencies `json:"dependencies" yaml:"dependencies"`
}

// ibcInfo is what lrly negotiates when it opens links and channels.
type ibcInfo struct {
	ClientType        string `json:"client-type" yaml:"client-type"`
	ConnectionVersion string `json:"connection-version" yaml:"connection-version"`
	TransferVersion   string `json:"transfer-version" yaml:"transfer-version"`
}

// dependencies are the chain libraries whose wire formats lrly speaks.
type dependencies struct {
	IBCGo      string `json:"ibc-go" yaml:"ibc-go"`
	CosmosSDK  string `json:"cosmos-sdk" yaml:"cosmos-sdk"`
	Tendermint string `json:"tendermint" yaml:"tendermint"`
}

func newVersionInfo() versionInfo {
	commit := Commit
	switch {
	case commit == "":
		commit = relaydebug.BuildCommit()
	case Dirty != "0":
		commit += " (dirty)"
	}

	var features []string
	if v := conntypes.DefaultIBCVersion; v != nil {
		features = v.GetFeatures()
	}

	return versionInfo{
		Version: Version,
		Commit:  commit,
		Go:      fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		IBC: ibcInfo{
			ClientType:        exported.Tendermint,
			ConnectionVersion: fmt.Sprintf("%s (%s)", conntypes.DefaultIBCVersionIdentifier, strings.Join(features, ", ")),
			TransferVersion:   transfertypes.Version,
		},
		Deps: dependencies{
			IBCGo:      relaydebug.DepVersion("github.com/cosmos/ibc-go/v3"),
			CosmosSDK:  relaydebug.DepVersion("github.com/cosmos/cosmos-sdk"),
			Tendermint: relaydebug.DepVersion("github.com/tendermint/tendermint"),
		},
	}
}

func getVersionCmd(a *appState) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print the link relayer version with the IBC versions and chain libraries it was built against",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s version --json
$ %s v`,
			appName, appName,
		)),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			verInfo := newVersionInfo()

			var bz []byte
			if jsn {
				bz, err = json.Marshal(verInfo)
			} else {
				bz, err = yaml.Marshal(&verInfo)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(bz))
			return nil
		},
	}

	return jsonFlag(a.Viper, versionCmd)
}
