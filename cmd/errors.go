package cmd

import (
	"errors"
	"fmt"
)

func errChainNotFound(chainName string) error {
	return fmt.Errorf("chain %q not found in config", chainName)
}

func errLinkNotFound(linkName string) error {
	return fmt.Errorf("link %q not found in config", linkName)
}

func errChainExists(chainName string) error {
	return fmt.Errorf("chain %q already exists in config", chainName)
}

func errLinkExists(linkName string) error {
	return fmt.Errorf("link %q already exists in config", linkName)
}

var errUnsupportedChainType = errors.New("unsupported chain type")
