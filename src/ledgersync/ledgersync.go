// Package ledgersync assembles a node from its configuration: key, pool,
// ledger store, transport, and HTTP service.
package ledgersync

import (
	"crypto/ecdsa"
	"fmt"
	"path/filepath"

	"github.com/mosaicnetworks/ledgersync/src/config"
	"github.com/mosaicnetworks/ledgersync/src/crypto/keys"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/mosaicnetworks/ledgersync/src/node"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/mosaicnetworks/ledgersync/src/service"
	"github.com/sirupsen/logrus"
)

// Ledgersync is a node together with everything it runs on.
type Ledgersync struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     ledger.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	logger *logrus.Entry
}

// NewLedgersync ...
func NewLedgersync(c *config.Config) *Ledgersync {
	return &Ledgersync{
		Config: c,
		logger: c.Logger(),
	}
}

func (l *Ledgersync) initKey() error {
	if l.Config.Key != nil {
		return nil
	}

	key, err := keys.NewSimpleKeyfile(l.Config.Keyfile()).ReadKey()
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}

	l.Config.Key = key

	return nil
}

func (l *Ledgersync) initPeers() error {
	if l.Peers != nil {
		return nil
	}

	peerSet, err := peers.NewJSONPeerSet(l.Config.DataDir).PeerSet()
	if err != nil {
		return err
	}

	if peerSet == nil || peerSet.Len() < 2 {
		return fmt.Errorf("peers.json should define at least two peers")
	}

	l.Peers = peerSet

	return nil
}

func (l *Ledgersync) initStore() error {
	backend := l.Config.Backend()

	l.logger.WithFields(logrus.Fields{
		"backend": backend,
		"path":    l.Config.DatabaseDir,
	}).Debug("Opening ledger store")

	store, err := ledger.NewStore(backend, l.Config.DatabaseDir, l.logger)
	if err != nil {
		return err
	}

	l.Store = store

	return nil
}

func (l *Ledgersync) initTransport() error {
	if l.Transport != nil {
		return nil
	}

	trans, err := net.NewTCPTransport(
		l.Config.BindAddr,
		l.Config.AdvertiseAddr,
		l.Config.MaxPool,
		l.Config.TCPTimeout,
		l.Config.Compress,
		l.logger,
	)
	if err != nil {
		return err
	}

	l.Transport = trans

	return nil
}

func (l *Ledgersync) initNode() error {
	validator := node.NewValidator(l.Config.Key, l.Config.Moniker)

	self, ok := l.Peers.ByID[validator.ID()]
	if !ok {
		return fmt.Errorf("cannot find self pubkey in peers.json")
	}

	if self.NetAddr != l.Transport.AdvertiseAddr() {
		return fmt.Errorf("peers.json lists this node at %s, not %s",
			self.NetAddr, l.Transport.AdvertiseAddr())
	}

	l.logger.WithFields(logrus.Fields{
		"peers": l.Peers.Len(),
		"id":    validator.ID(),
	}).Debug("PARTICIPANTS")

	n, err := node.NewNode(l.Config, validator, l.Peers, l.Store, l.Transport)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	l.Node = n

	return nil
}

func (l *Ledgersync) initService() {
	if !l.Config.NoService {
		l.Service = service.NewService(l.Config.ServiceAddr, l.Node, l.logger)
	}
}

// Init reads the configuration and builds the node. The key, the pool, and
// the transport may be set beforehand, tests use in-memory transports for
// example.
func (l *Ledgersync) Init() error {
	if err := l.initKey(); err != nil {
		return err
	}

	if err := l.initPeers(); err != nil {
		return err
	}

	if err := l.initStore(); err != nil {
		return err
	}

	if err := l.initTransport(); err != nil {
		l.Store.Close()
		return err
	}

	if err := l.initNode(); err != nil {
		l.Transport.Close()
		l.Store.Close()
		return err
	}

	l.initService()

	return nil
}

// Run starts the service and runs the node until it is shut down.
func (l *Ledgersync) Run() {
	if l.Service != nil {
		go l.Service.Serve()
	}

	l.Node.RunAsync()
	l.Node.WaitRoutines()
}

// Keygen creates a private key in datadir, unless there is one already.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	keyfile := keys.NewSimpleKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", datadir)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
