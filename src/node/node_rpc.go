package node

import (
	"errors"

	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/net"
	"github.com/sirupsen/logrus"
)

// processRPC hands an inbound message to the catch-up manager. Dropped
// messages are not answered; the sender relies on its own timeouts.
func (n *Node) processRPC(rpc net.RPC) {
	n.rpcs++

	err := n.catchup.ProcessRPC(rpc)
	if err == nil {
		return
	}

	n.rpcErrors++

	entry := n.logger.WithError(err).WithFields(logrus.Fields{
		"from": rpc.From,
		"op":   net.Op(rpc.Command),
	})

	var serr *catchup.StorageError
	switch {
	case errors.As(err, &serr):
		entry.Error("processRPC")
	case errors.Is(err, catchup.ErrProofMismatch),
		errors.Is(err, catchup.ErrUnknownPeer):
		entry.Warn("processRPC")
	default:
		entry.Debug("processRPC")
	}
}
