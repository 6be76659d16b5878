package net

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ugorji/go/codec"
)

const (
	rpcLedgerStatusRequest uint8 = iota
	rpcLedgerStatus
	rpcConsistencyProofRequest
	rpcConsistencyProof
	rpcCatchupReq
	rpcCatchupRep
)

const (
	// bodies below this size are never compressed
	compressThreshold = 4 << 10

	maxFrameSize = 64 << 20
)

// envelope is the msgpack encoded body of a frame.
type envelope struct {
	From       string
	Compressed bool
	Payload    []byte
}

// frameCodec reads and writes frames: one type byte, a big-endian uint32
// length, and a msgpack envelope.
type frameCodec struct {
	mh       *codec.MsgpackHandle
	compress bool
	zenc     *zstd.Encoder
	zdec     *zstd.Decoder
}

func newFrameCodec(compress bool) (*frameCodec, error) {
	mh := new(codec.MsgpackHandle)
	// encode structs as arrays so that field order is part of the wire
	// format
	mh.StructToArray = true
	mh.WriteExt = true

	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}

	zdec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameSize))
	if err != nil {
		return nil, err
	}

	return &frameCodec{
		mh:       mh,
		compress: compress,
		zenc:     zenc,
		zdec:     zdec,
	}, nil
}

func (c *frameCodec) close() {
	c.zenc.Close()
	c.zdec.Close()
}

func rpcType(cmd interface{}) (uint8, error) {
	switch cmd.(type) {
	case *LedgerStatusRequest:
		return rpcLedgerStatusRequest, nil
	case *LedgerStatus:
		return rpcLedgerStatus, nil
	case *ConsistencyProofRequest:
		return rpcConsistencyProofRequest, nil
	case *ConsistencyProof:
		return rpcConsistencyProof, nil
	case *CatchupReq:
		return rpcCatchupReq, nil
	case *CatchupRep:
		return rpcCatchupRep, nil
	default:
		return 0, ErrUnknownCommand
	}
}

func newCommand(t uint8) (interface{}, error) {
	switch t {
	case rpcLedgerStatusRequest:
		return new(LedgerStatusRequest), nil
	case rpcLedgerStatus:
		return new(LedgerStatus), nil
	case rpcConsistencyProofRequest:
		return new(ConsistencyProofRequest), nil
	case rpcConsistencyProof:
		return new(ConsistencyProof), nil
	case rpcCatchupReq:
		return new(CatchupReq), nil
	case rpcCatchupRep:
		return new(CatchupRep), nil
	default:
		return nil, fmt.Errorf("unknown rpc type %d", t)
	}
}

func (c *frameCodec) marshal(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, c.mh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (c *frameCodec) unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, c.mh)
	return dec.Decode(v)
}

// writeFrame encodes cmd and writes it to w. It does not flush.
func (c *frameCodec) writeFrame(w *bufio.Writer, from string, cmd interface{}) error {
	t, err := rpcType(cmd)
	if err != nil {
		return err
	}

	payload, err := c.marshal(cmd)
	if err != nil {
		return err
	}

	env := envelope{From: from, Payload: payload}
	if c.compress && len(payload) > compressThreshold {
		env.Payload = c.zenc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		env.Compressed = true
	}

	body, err := c.marshal(&env)
	if err != nil {
		return err
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d", len(body), maxFrameSize)
	}

	var header [5]byte
	header[0] = t
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads and decodes one frame from r.
func (c *frameCodec) readFrame(r *bufio.Reader) (RPC, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return RPC{}, err
	}

	cmd, err := newCommand(header[0])
	if err != nil {
		return RPC{}, err
	}

	size := binary.BigEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return RPC{}, fmt.Errorf("frame of %d bytes exceeds %d", size, maxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return RPC{}, err
	}

	var env envelope
	if err := c.unmarshal(body, &env); err != nil {
		return RPC{}, err
	}

	payload := env.Payload
	if env.Compressed {
		payload, err = c.zdec.DecodeAll(env.Payload, nil)
		if err != nil {
			return RPC{}, err
		}
	}

	if err := c.unmarshal(payload, cmd); err != nil {
		return RPC{}, err
	}

	return RPC{From: env.From, Command: cmd}, nil
}
