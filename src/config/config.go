package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/common"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultDatabaseFile is the default name of the folder containing the
	// ledger database
	DefaultDatabaseFile = "ledger_db"
)

// Default configuration values.
const (
	DefaultLogLevel                = "debug"
	DefaultBindAddr                = "127.0.0.1:1337"
	DefaultServiceAddr             = "127.0.0.1:8000"
	DefaultTCPTimeout              = 1000 * time.Millisecond
	DefaultMaxPool                 = 2
	DefaultCompress                = false
	DefaultStore                   = false
	DefaultStoreBackend            = ledger.BadgerBackend
	DefaultRequestLedgerStatuses   = true
	DefaultLedgerStatusTimeout     = 5 * time.Second
	DefaultConsistencyProofTimeout = 5 * time.Second
	DefaultCatchupTimeout          = 5 * time.Second
	DefaultCatchupBatchSize        = 100
	DefaultProtocolVersion         = 2
)

// Config contains all the configuration properties of a ledgersync node.
type Config struct {
	// DataDir is the top-level directory containing the node's configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every entry at info level and
	// above.
	LogFile string `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node talks to the other
	// nodes of the pool.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the I/O deadline of connections to other nodes.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Compress enables zstd compression of large messages.
	Compress bool `mapstructure:"compress"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// StoreBackend is the database used when Store is set: badger, leveldb,
	// or pebble.
	StoreBackend string `mapstructure:"store-backend"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// RequestLedgerStatuses makes the node ask every peer for its
	// LedgerStatus when catch-up starts. A restarted node leaves it off and
	// waits for the statuses of the others.
	RequestLedgerStatuses bool `mapstructure:"request-ledger-statuses"`

	// LedgerStatusTimeout is how long statuses are collected before
	// consistency proofs are requested.
	LedgerStatusTimeout time.Duration `mapstructure:"ledger-status-timeout"`

	// ConsistencyProofTimeout is how long to wait for consistency proofs
	// before asking again.
	ConsistencyProofTimeout time.Duration `mapstructure:"consistency-proof-timeout"`

	// CatchupTimeout is how long to wait for a batch of txns before asking
	// another peer.
	CatchupTimeout time.Duration `mapstructure:"catchup-timeout"`

	// CatchupBatchSize is the max number of txns requested at once.
	CatchupBatchSize uint64 `mapstructure:"catchup-batch-size"`

	// ProtocolVersion is reported in LedgerStatus messages.
	ProtocolVersion int `mapstructure:"protocol-version"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                 DefaultDataDir(),
		LogLevel:                DefaultLogLevel,
		BindAddr:                DefaultBindAddr,
		ServiceAddr:             DefaultServiceAddr,
		MaxPool:                 DefaultMaxPool,
		TCPTimeout:              DefaultTCPTimeout,
		Compress:                DefaultCompress,
		Store:                   DefaultStore,
		StoreBackend:            DefaultStoreBackend,
		DatabaseDir:             DefaultDatabaseDir(),
		RequestLedgerStatuses:   DefaultRequestLedgerStatuses,
		LedgerStatusTimeout:     DefaultLedgerStatusTimeout,
		ConsistencyProofTimeout: DefaultConsistencyProofTimeout,
		CatchupTimeout:          DefaultCatchupTimeout,
		CatchupBatchSize:        DefaultCatchupBatchSize,
		ProtocolVersion:         DefaultProtocolVersion,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultDatabaseFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Backend returns the store backend to open, inmem unless Store is set.
func (c *Config) Backend() string {
	if !c.Store {
		return ledger.InmemBackend
	}
	return c.StoreBackend
}

// CatchupConfig extracts the parameters of the catch-up protocol.
func (c *Config) CatchupConfig() catchup.Config {
	return catchup.Config{
		LedgerStatusTimeout:     c.LedgerStatusTimeout,
		ConsistencyProofTimeout: c.ConsistencyProofTimeout,
		CatchupTimeout:          c.CatchupTimeout,
		CatchupBatchSize:        c.CatchupBatchSize,
		ProtocolVersion:         c.ProtocolVersion,
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "ledgersync".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.AddHook(fileHook(c.LogFile))
		}
	}
	return c.logger.WithField("prefix", "ledgersync")
}

func fileHook(path string) logrus.Hook {
	return lfshook.NewHook(
		lfshook.PathMap{
			logrus.InfoLevel:  path,
			logrus.WarnLevel:  path,
			logrus.ErrorLevel: path,
			logrus.FatalLevel: path,
			logrus.PanicLevel: path,
		},
		&logrus.JSONFormatter{},
	)
}

// DefaultDatabaseDir returns the default path for the database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultDatabaseFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Ledgersync")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Ledgersync")
		} else {
			return filepath.Join(home, ".ledgersync")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
