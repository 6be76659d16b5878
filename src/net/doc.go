// Package net implements the transports used by ledgersync nodes to exchange
// catch-up messages.
//
// All messages are fire-and-forget: Send never waits for an answer, and
// replies arrive later as independent RPCs on the Consumer channel. A message
// may be lost at any point; the catch-up protocol copes with it through
// quorums and timeouts.
//
// There are two implementations of the Transport interface:
//
// - Inmem: in-memory transport used for testing and simulations
//
// - TCP: communicating over plain TCP
//
// TCP
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is usefull to
// set AdvertiseAddr to the reachable public address.
//
// - Compress: zstd-compress message bodies larger than a few kilobytes, which
// mostly affects catch-up replies carrying transactions.
//
// Each message is framed by one byte indicating the message type, followed by
// the length of the body and the body itself: a msgpack envelope carrying the
// sender's advertised address and the msgpack encoded command.
//
// Fault injection
//
// FaultyTransport wraps the receiving end of an in-memory transport and drops
// or holds back selected deliveries, so that tests can simulate lost messages
// without touching the code under test.
package net
