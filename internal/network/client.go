package network

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"

	"tablekv/internal/logger"
	"tablekv/internal/protocol"
	"tablekv/internal/types"
)

// Client is a pool of multiplexed TLS connections. Every command opens a
// fresh logical stream on one of the pooled sessions, so any number of
// commands and subscriptions run concurrently over a handful of sockets.
type Client struct {
	sessions []*yamux.Session
	next     atomic.Uint32

	mu     sync.Mutex
	closed bool
}

// Dial connects poolSize sessions to addr.
func Dial(addr string, tlsConf *tls.Config, poolSize int) (*Client, error) {
	if poolSize <= 0 {
		poolSize = 1
	}
	c := &Client{}
	for i := 0; i < poolSize; i++ {
		sess, err := dialSession(addr, tlsConf)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.sessions = append(c.sessions, sess)
	}
	return c, nil
}

func dialSession(addr string, tlsConf *tls.Config) (*yamux.Session, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	tlsConn := tls.Client(conn, tlsConf)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}
	sess, err := yamux.Client(tlsConn, yamuxConfig())
	if err != nil {
		tlsConn.Close()
		return nil, errors.Wrap(err, "yamux session")
	}
	return sess, nil
}

func (c *Client) session() *yamux.Session {
	n := c.next.Add(1)
	return c.sessions[int(n)%len(c.sessions)]
}

func (c *Client) openStream() (net.Conn, error) {
	stream, err := c.session().Open()
	if err != nil {
		return nil, errors.Wrap(err, "open stream")
	}
	return stream, nil
}

// Execute sends one unary command and waits for its single response.
func (c *Client) Execute(req *types.CommandRequest) (*types.CommandResponse, error) {
	stream, err := c.openStream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := protocol.EncodeFrame(stream, req); err != nil {
		return nil, err
	}
	var resp types.CommandResponse
	if err := protocol.DecodeFrame(stream, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamResult is a live subscription: ID for the matching Unsubscribe, C
// for delivered responses. C closes when the server ends the stream or
// Close is called.
type StreamResult struct {
	ID uint32
	C  <-chan *types.CommandResponse

	stream net.Conn
	once   sync.Once
}

// Close tears the subscription stream down locally. Prefer Unsubscribe for a
// clean server-side removal.
func (sr *StreamResult) Close() {
	sr.once.Do(func() { sr.stream.Close() })
}

// Subscribe opens a subscription stream on topic. The first response carries
// the subscription id; later responses flow through C.
func (c *Client) Subscribe(topic string) (*StreamResult, error) {
	stream, err := c.openStream()
	if err != nil {
		return nil, err
	}

	if err := protocol.EncodeFrame(stream, types.NewSubscribe(topic)); err != nil {
		stream.Close()
		return nil, err
	}

	var ack types.CommandResponse
	if err := protocol.DecodeFrame(stream, &ack); err != nil {
		stream.Close()
		return nil, err
	}
	if ack.Status != types.StatusOK || len(ack.Values) == 0 || ack.Values[0].Kind != types.KindInteger {
		stream.Close()
		return nil, errors.Errorf("invalid subscription ack: status %d", ack.Status)
	}

	ch := make(chan *types.CommandResponse)
	sr := &StreamResult{
		ID:     uint32(ack.Values[0].Int),
		C:      ch,
		stream: stream,
	}

	go func() {
		defer close(ch)
		for {
			var resp types.CommandResponse
			if err := protocol.DecodeFrame(stream, &resp); err != nil {
				if err != io.EOF {
					logger.Debug("subscription %d ended: %v", sr.ID, err)
				}
				return
			}
			ch <- &resp
		}
	}()
	return sr, nil
}

// Unsubscribe removes the subscription on the server side.
func (c *Client) Unsubscribe(topic string, id uint32) (*types.CommandResponse, error) {
	return c.Execute(types.NewUnsubscribe(topic, id))
}

// Publish sends data to every subscriber of topic.
func (c *Client) Publish(topic string, data []types.Value) (*types.CommandResponse, error) {
	return c.Execute(types.NewPublish(topic, data))
}

// Close tears down every pooled session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for _, sess := range c.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
