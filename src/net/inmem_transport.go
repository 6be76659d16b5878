package net

import (
	"crypto/rand"
	"fmt"
	"sync"
)

const inmemInboxSize = 1024

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Commands are delivered by
// reference and must not be modified by either side.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]Receiver
	closed     bool
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, inmemInboxSize),
		localAddr:  addr,
		peers:      make(map[string]Receiver),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, cmd interface{}) error {
	if Op(cmd) == "" {
		return ErrUnknownCommand
	}

	i.RLock()
	peer, ok := i.peers[target]
	closed := i.closed
	i.RUnlock()

	if closed {
		return ErrTransportShutdown
	}
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownPeer, target)
	}

	return peer.Receive(RPC{
		From:    i.localAddr,
		Command: cmd,
	})
}

// Receive implements the Receiver interface. The RPC is dropped if the inbox
// is full.
func (i *InmemTransport) Receive(rpc RPC) error {
	i.RLock()
	defer i.RUnlock()

	if i.closed {
		return ErrTransportShutdown
	}

	select {
	case i.consumerCh <- rpc:
		return nil
	default:
		return ErrQueueFull
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, r Receiver) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = r
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]Receiver)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]Receiver)
	i.closed = true
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}
