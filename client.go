package netaio

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TCPClientConfig configures a TCPClient.
type TCPClientConfig struct {
	Node NodeConfig

	// Addr is the server address to dial, e.g. "127.0.0.1:9000".
	Addr string

	// AutoReconnect makes ReceiveLoop redial with exponential backoff
	// after the connection is lost instead of returning.
	AutoReconnect bool

	// MinBackoff and MaxBackoff bound the reconnect delay. Defaults
	// are 500ms and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (c TCPClientConfig) withDefaults() TCPClientConfig {
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

type requestResult struct {
	msg Message
	err error
}

// TCPClient connects to a single TCPServer, sends framed messages,
// and correlates requests with their responses through an ephemeral
// handler per outstanding request.
type TCPClient struct {
	cfg    TCPClientConfig
	node   NodeConfig
	reg    *Registry
	logger zerolog.Logger

	connMu sync.Mutex
	conn   net.Conn

	writeMu sync.Mutex
}

// NewTCPClient builds a client from cfg.
func NewTCPClient(cfg TCPClientConfig) *TCPClient {
	cfg = cfg.withDefaults()
	node := cfg.Node.WithDefaults()
	return &TCPClient{
		cfg:    cfg,
		node:   node,
		reg:    NewRegistry(),
		logger: node.Logger,
	}
}

// Registry exposes the handler table for registering persistent
// handlers that process unsolicited server pushes.
func (c *TCPClient) Registry() *Registry { return c.reg }

// Connect dials the configured address.
func (c *TCPClient) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// Close closes the underlying connection.
func (c *TCPClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *TCPClient) currentConn() (net.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil, ErrConnectionLost
	}
	return c.conn, nil
}

// Send runs msg through the outbound security pipeline and writes it
// to the server.
func (c *TCPClient) Send(msg Message) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	prepared, err := PrepareOutbound(c.node.Security, msg)
	if err != nil {
		return err
	}
	if err := c.writeRaw(prepared); err != nil {
		return err
	}
	c.node.Metrics.sent(msg.Header.MessageType)
	return nil
}

// writeRaw writes msg to the current connection without running it
// through the outbound security pipeline. Used for responses that
// ProcessInbound has already prepared.
func (c *TCPClient) writeRaw(msg Message) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(conn, msg)
}

// ReceiveOnce reads and returns exactly one inbound message, running
// it through the outer security layer only (DecryptOuter: no inner
// auth or cipher, no handler dispatch) so a caller doing its own
// request/response bookkeeping still gets outer-decrypted,
// checksum-verified messages.
func (c *TCPClient) ReceiveOnce() (Message, error) {
	conn, err := c.currentConn()
	if err != nil {
		return Message{}, err
	}
	msg, err := ReadMessage(conn)
	if err != nil {
		return Message{}, err
	}
	return DecryptOuter(c.node.Security, msg)
}

// ReceiveLoop continuously reads messages and dispatches them through
// the client's registry (ephemeral handlers for outstanding Request
// calls, persistent handlers for unsolicited pushes). It returns when
// ctx is cancelled or when the connection is lost and AutoReconnect is
// false; with AutoReconnect it keeps redialing until a dial succeeds
// or ctx is cancelled.
func (c *TCPClient) ReceiveLoop(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := c.currentConn()
		if err != nil {
			if !c.cfg.AutoReconnect {
				return err
			}
			if err := c.reconnectWithBackoff(ctx, &backoff); err != nil {
				return err
			}
			continue
		}

		msg, err := ReadMessage(conn)
		if err != nil {
			if !c.cfg.AutoReconnect {
				return err
			}
			c.Close()
			if err := c.reconnectWithBackoff(ctx, &backoff); err != nil {
				return err
			}
			continue
		}
		backoff = c.cfg.MinBackoff
		c.node.Metrics.recvd(msg.Header.MessageType)

		resp, err := ProcessInbound(c.node.Security, c.reg, msg)
		if err != nil {
			c.node.Metrics.dispatchErr(dispatchErrorKind(err))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			c.logger.Debug().Err(err).Msg("client dispatch failed")
			continue
		}
		if resp != nil {
			// ProcessInbound already ran resp through PrepareOutbound,
			// so write it as-is rather than going through Send (which
			// would apply the outbound pipeline a second time).
			if err := c.writeRaw(*resp); err != nil {
				c.logger.Debug().Err(err).Msg("client response write failed")
			}
		}
	}
}

func (c *TCPClient) reconnectWithBackoff(ctx context.Context, backoff *time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*backoff):
		}
		*backoff *= 2
		if *backoff > c.cfg.MaxBackoff {
			*backoff = c.cfg.MaxBackoff
		}
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		c.logger.Debug().Err(err).Msg("client reconnect failed")
	}
}

// Request sends msg and blocks until a message of responseType for
// the same URI arrives, timeout elapses, or ctx is cancelled. A
// non-positive timeout uses the node's RequestTimeout. A
// ReceiveLoop must be running concurrently for the response to be
// delivered.
func (c *TCPClient) Request(ctx context.Context, msg Message, responseType MessageType, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = c.node.RequestTimeout
	}
	resultCh := make(chan requestResult, 1)
	uri := msg.Body.URI
	c.reg.AddEphemeralHandler(responseType, uri, func(resp Message) (*Message, error) {
		resultCh <- requestResult{msg: resp}
		return nil, nil
	})

	if err := c.Send(msg); err != nil {
		c.reg.RemoveEphemeralHandler(responseType, uri)
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-resultCh:
		return result.msg, result.err
	case <-timer.C:
		c.reg.RemoveEphemeralHandler(responseType, uri)
		return Message{}, ErrTimeout
	case <-ctx.Done():
		c.reg.RemoveEphemeralHandler(responseType, uri)
		return Message{}, ctx.Err()
	}
}
