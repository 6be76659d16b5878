package net

import "errors"

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownPeer is returned when sending to a peer the transport cannot
	// route to.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrQueueFull is returned when a message is dropped because the
	// receiving or sending queue is full.
	ErrQueueFull = errors.New("queue full")

	// ErrUnknownCommand is returned when sending a value that is not one of
	// the catch-up commands.
	ErrUnknownCommand = errors.New("unknown command")
)

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to consume inbound
	// messages.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Send queues a command for target and returns without waiting for it to
	// be delivered. A nil error does not mean that the command will arrive.
	Send(target string, cmd interface{}) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}

// Receiver is the inbound side of an in-memory transport.
type Receiver interface {
	// Receive delivers an RPC without blocking.
	Receive(rpc RPC) error
}
