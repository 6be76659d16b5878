package net

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

/*******************************************************************************
CONNECTION HANDLING ADAPTED FROM HASHICORP RAFT
*******************************************************************************/

const (
	bufSize = 64 << 10

	// number of commands waiting to be sent to a single target
	sendQueueSize = 256
)

/*
NetworkTransport provides a network based transport that can be
used to communicate with ledgersync nodes on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

Sends are asynchronous: every target has a queue drained by a dedicated
goroutine, so that the caller never blocks on the network. Commands are
dropped when the queue is full or when the target cannot be reached.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	queues     map[string]chan interface{}
	queuesLock sync.Mutex

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup

	stream StreamLayer
	codec  *frameCodec

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines. If compress is set,
// large message bodies are compressed with zstd.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	compress bool,
	logger *logrus.Entry,
) (*NetworkTransport, error) {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	codec, err := newFrameCodec(compress)
	if err != nil {
		return nil, err
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		queues:     make(map[string]chan interface{}),
		consumeCh:  make(chan RPC, sendQueueSize),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		codec:      codec,
		timeout:    timeout,
	}

	return trans, nil
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		// no sender can be started past this point
		n.queuesLock.Lock()
		close(n.shutdownCh)
		n.queuesLock.Unlock()

		n.stream.Close()
		n.shutdown = true

		n.wg.Wait()

		n.connPoolLock.Lock()
		for _, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
		}
		n.connPool = make(map[string][]*netConn)
		n.connPoolLock.Unlock()

		n.codec.close()
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Send implements the Transport interface.
func (n *NetworkTransport) Send(target string, cmd interface{}) error {
	if Op(cmd) == "" {
		return ErrUnknownCommand
	}

	q, err := n.queue(target)
	if err != nil {
		return err
	}

	select {
	case q <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, target)
	}
}

// queue returns the send queue of target, starting its sender if needed.
func (n *NetworkTransport) queue(target string) (chan interface{}, error) {
	n.queuesLock.Lock()
	defer n.queuesLock.Unlock()

	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	q, ok := n.queues[target]
	if !ok {
		q = make(chan interface{}, sendQueueSize)
		n.queues[target] = q
		n.wg.Add(1)
		go n.sender(target, q)
	}
	return q, nil
}

func (n *NetworkTransport) sender(target string, q chan interface{}) {
	defer n.wg.Done()
	for {
		select {
		case cmd := <-q:
			if err := n.deliver(target, cmd); err != nil {
				n.logger.WithFields(logrus.Fields{
					"target": target,
					"op":     Op(cmd),
					"error":  err,
				}).Debug("Failed to send command")
			}
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *NetworkTransport) deliver(target string, cmd interface{}) error {
	conn, err := n.getConn(target, n.timeout)
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}

	if err := n.codec.writeFrame(conn.w, n.AdvertiseAddr(), cmd); err != nil {
		conn.Release()
		return err
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}

	n.returnConn(conn)
	return nil
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)

	for {
		rpc, err := n.codec.readFrame(r)
		if err != nil {
			if err != io.EOF && !n.IsShutdown() {
				n.logger.WithField("error", err).Error("Failed to decode incoming command")
			}
			return
		}

		select {
		case n.consumeCh <- rpc:
		case <-n.shutdownCh:
			return
		}
	}
}
