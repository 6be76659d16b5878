package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/ledgersync/src/ledgersync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runLedgersync,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runLedgersync(cmd *cobra.Command, args []string) error {
	engine := ledgersync.NewLedgersync(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		_config.Logger().Info("Received an interrupt, shutting down")
		engine.Node.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write info and above to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for the node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Bool("compress", _config.Compress, "Compress large messages with zstd")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use a persistent store instead of in-mem DB")
	cmd.Flags().String("store-backend", _config.StoreBackend, "badger, leveldb, or pebble")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Catch-up
	cmd.Flags().Bool("request-ledger-statuses", _config.RequestLedgerStatuses, "Ask the pool for ledger statuses on start")
	cmd.Flags().Duration("ledger-status-timeout", _config.LedgerStatusTimeout, "Time to collect ledger statuses")
	cmd.Flags().Duration("consistency-proof-timeout", _config.ConsistencyProofTimeout, "Time to wait for consistency proofs")
	cmd.Flags().Duration("catchup-timeout", _config.CatchupTimeout, "Time to wait for a batch of txns")
	cmd.Flags().Uint64("catchup-batch-size", _config.CatchupBatchSize, "Max number of txns per catch-up request")
	cmd.Flags().Int("protocol-version", _config.ProtocolVersion, "Protocol version reported in ledger statuses")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":                 _config.DataDir,
		"BindAddr":                _config.BindAddr,
		"AdvertiseAddr":           _config.AdvertiseAddr,
		"ServiceAddr":             _config.ServiceAddr,
		"NoService":               _config.NoService,
		"MaxPool":                 _config.MaxPool,
		"TCPTimeout":              _config.TCPTimeout,
		"Compress":                _config.Compress,
		"Store":                   _config.Store,
		"LogLevel":                _config.LogLevel,
		"Moniker":                 _config.Moniker,
		"RequestLedgerStatuses":   _config.RequestLedgerStatuses,
		"LedgerStatusTimeout":     _config.LedgerStatusTimeout,
		"ConsistencyProofTimeout": _config.ConsistencyProofTimeout,
		"CatchupTimeout":          _config.CatchupTimeout,
		"CatchupBatchSize":        _config.CatchupBatchSize,
	}

	if _config.Store {
		logFields["StoreBackend"] = _config.StoreBackend
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/ledgersync.toml (.json, .yaml also work)
	viper.SetConfigName("ledgersync")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
