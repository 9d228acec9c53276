package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"
)

// FrameTag is the leading ASCII tag that types a frame's body.
type FrameTag string

const (
	TagNewBlock       FrameTag = "NEW_BLOCK"
	TagNewTransaction FrameTag = "NEW_TRANSACTION"
	TagRequestChain   FrameTag = "REQUEST_CHAIN"
	TagBlockchain     FrameTag = "BLOCKCHAIN"
	TagNewMessage     FrameTag = "NEW_MESSAGE"
)

// Frame is a decoded tagged application message.
type Frame struct {
	Tag  FrameTag
	Body []byte
}

// FrameHandler is invoked by the transport for each decoded inbound frame.
// conn identifies the connection the frame arrived on, so handlers can
// exclude the sender from a re-broadcast.
type FrameHandler func(conn *Connection, frame Frame)

// Connection is an active framed TCP channel plus its remote address.
type Connection struct {
	ID      string
	Addr    string
	netConn net.Conn
	mu      sync.Mutex // serializes writes

	seenMu   sync.Mutex
	lastSeen time.Time
}

func newConnection(nc net.Conn) *Connection {
	return &Connection{ID: uuid.NewString(), Addr: nc.RemoteAddr().String(), netConn: nc, lastSeen: time.Now()}
}

func (c *Connection) touch() {
	c.seenMu.Lock()
	c.lastSeen = time.Now()
	c.seenMu.Unlock()
}

func (c *Connection) idleFor() time.Duration {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	return time.Since(c.lastSeen)
}

// Send compresses and writes one complete frame in a single call.
func (c *Connection) Send(tag FrameTag, body []byte) error {
	payload := make([]byte, 0, len(tag)+len(body))
	payload = append(payload, tag...)
	payload = append(payload, body...)
	compressed, err := deflateFrame(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.netConn.Write(compressed)
	return err
}

func (c *Connection) Close() error { return c.netConn.Close() }

// Transport is the listening TCP socket and reader-loop subsystem:
// admission-capped, per-connection reader tasks, tag-dispatched frames.
type Transport struct {
	host           string
	port           int
	maxConnections int
	logger         *logrus.Logger

	listener net.Listener

	mu    sync.Mutex
	conns map[string]*Connection

	handler FrameHandler
	dialer  *Dialer
}

// NewTransport constructs a Transport bound to (host, port) with the given
// admission cap. Listen must be called separately to start accepting.
func NewTransport(host string, port, maxConnections int, handler FrameHandler, lg *logrus.Logger) *Transport {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Transport{
		host:           host,
		port:           port,
		maxConnections: maxConnections,
		logger:         lg,
		conns:          make(map[string]*Connection),
		handler:        handler,
		dialer:         NewDialer(5*time.Second, 30*time.Second),
	}
}

// Listen binds the listening socket (the accept backlog is the operating
// system's default; maxConnections is enforced at admission) and
// blocks accepting connections until ctx is cancelled. Each accepted
// connection is admission-checked, tracked and handed to a reader
// goroutine.
func (t *Transport) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", t.host, t.port))
	if err != nil {
		return NewError(KindSocketError, err)
	}
	t.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			t.logger.WithField("kind", KindSocketError).Warnf("accept: %v", err)
			return NewError(KindSocketError, err)
		}
		t.admitAndServe(ctx, nc)
	}
}

// admitAndServe enforces the max-connections cap
// before tracking the connection and launching its reader loop.
func (t *Transport) admitAndServe(ctx context.Context, nc net.Conn) {
	t.mu.Lock()
	if len(t.conns) >= t.maxConnections {
		t.mu.Unlock()
		t.logger.WithField("kind", KindConnectionCap).Warnf("rejecting connection from %s: at capacity", nc.RemoteAddr())
		_ = nc.Close()
		return
	}
	conn := newConnection(nc)
	t.conns[conn.ID] = conn
	t.mu.Unlock()

	go t.readLoop(ctx, conn)
}

// ConnectToPeer establishes an outbound TCP connection, admission-checks
// and tracks it, then starts the same reader loop.
func (t *Transport) ConnectToPeer(ctx context.Context, host string, port int) (*Connection, error) {
	t.mu.Lock()
	if len(t.conns) >= t.maxConnections {
		t.mu.Unlock()
		return nil, NewError(KindConnectionCap, nil)
	}
	t.mu.Unlock()

	nc, err := t.dialer.Dial(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, NewError(KindSocketError, err)
	}
	return t.Adopt(ctx, nc)
}

// Adopt admission-checks and tracks a connection that was established
// outside of ConnectToPeer (e.g. by the bootstrap-peer reconnect loop),
// then starts its reader loop exactly as any other connection.
func (t *Transport) Adopt(ctx context.Context, nc net.Conn) (*Connection, error) {
	t.mu.Lock()
	if len(t.conns) >= t.maxConnections {
		t.mu.Unlock()
		_ = nc.Close()
		return nil, NewError(KindConnectionCap, nil)
	}
	conn := newConnection(nc)
	t.conns[conn.ID] = conn
	t.mu.Unlock()

	go t.readLoop(ctx, conn)
	return conn, nil
}

// readLoop repeatedly calls Read(4096) until a short read signals the end
// of one frame, decompresses, dispatches by tag, and loops until EOF or
// error.
func (t *Transport) readLoop(ctx context.Context, conn *Connection) {
	defer t.teardown(conn)
	for {
		chunk, err := readFrameBytes(conn.netConn)
		if err != nil {
			if err != io.EOF {
				t.logger.WithField("kind", KindSocketError).Warnf("read from %s: %v", conn.Addr, err)
			}
			return
		}
		frame, err := inflateFrame(chunk)
		if err != nil {
			t.logger.WithField("kind", KindDecodeError).Warnf("decode frame from %s: %v", conn.Addr, err)
			continue
		}
		conn.touch()
		if t.handler != nil {
			t.handler(conn, frame)
		}
	}
}

// readFrameBytes accumulates chunks of up to 4096 bytes from conn until a
// chunk shorter than 4096 is read.
func readFrameBytes(conn net.Conn) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if buf.Len() > 0 && err == io.EOF {
				return buf.Bytes(), nil
			}
			return nil, err
		}
		if n < 4096 {
			return buf.Bytes(), nil
		}
	}
}

func (t *Transport) teardown(conn *Connection) {
	t.mu.Lock()
	delete(t.conns, conn.ID)
	t.mu.Unlock()
	_ = conn.Close()
	t.logger.Infof("connection to %s closed", conn.Addr)
}

// Broadcast re-emits a frame to every connection except exclude. exclude may be nil to send to everyone.
func (t *Transport) Broadcast(tag FrameTag, body []byte, exclude *Connection) {
	t.mu.Lock()
	conns := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		if exclude != nil && c.ID == exclude.ID {
			continue
		}
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(tag, body); err != nil {
			t.logger.WithField("kind", KindSocketError).Warnf("broadcast to %s: %v", c.Addr, err)
		}
	}
}

// PruneStale closes and untracks every connection that has not delivered a
// frame within maxAge. For a connection that has not delivered a frame yet,
// idle time counts from when it was tracked, since newConnection stamps
// lastSeen at construction.
func (t *Transport) PruneStale(maxAge time.Duration) {
	t.mu.Lock()
	stale := make([]*Connection, 0)
	for id, c := range t.conns {
		if c.idleFor() > maxAge {
			stale = append(stale, c)
			delete(t.conns, id)
		}
	}
	t.mu.Unlock()

	for _, c := range stale {
		t.logger.WithField("kind", KindSocketError).Infof("pruning stale connection to %s", c.Addr)
		_ = c.Close()
	}
}

// Connections returns a snapshot of the active connection list.
func (t *Transport) Connections() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

// Close closes the listening socket and every tracked connection.
func (t *Transport) Close() error {
	if t.listener != nil {
		_ = t.listener.Close()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		_ = c.Close()
	}
	t.conns = make(map[string]*Connection)
	return nil
}

func deflateFrame(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// knownTags lists ASCII tags recognized at the transport layer. No tag is a
// prefix of another, so the order in which they are matched does not matter.
var knownTags = []FrameTag{
	TagNewTransaction,
	TagRequestChain,
	TagBlockchain,
	TagNewBlock,
	TagNewMessage,
}

func inflateFrame(compressed []byte) (Frame, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return Frame{}, err
	}
	for _, tag := range knownTags {
		if bytes.HasPrefix(raw, []byte(tag)) {
			return Frame{Tag: tag, Body: raw[len(tag):]}, nil
		}
	}
	// Any other prefix is opaque and rebroadcast verbatim: the tag is the
	// bytes before the first space and the body keeps that space, so Tag+Body
	// reproduces the payload; a payload without a space becomes the whole tag.
	if idx := bytes.IndexByte(raw, ' '); idx > 0 {
		return Frame{Tag: FrameTag(raw[:idx]), Body: raw[idx:]}, nil
	}
	return Frame{Tag: FrameTag(raw), Body: nil}, nil
}
