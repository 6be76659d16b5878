package commands

import (
	"github.com/mosaicnetworks/ledgersync/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for ledgersync
var RootCmd = &cobra.Command{
	Use:              "ledgersync",
	Short:            "BFT ledger catch-up node",
	TraverseChildren: true,
}
