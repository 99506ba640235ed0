package netaio

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// connHandle wraps one accepted TCP connection as a Subscriber, with
// its own mutex so a broadcast and a reply to that same connection's
// own request can never interleave their writes.
type connHandle struct {
	conn net.Conn
	id   string
	mu   sync.Mutex
}

func (c *connHandle) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteMessage(c.conn, msg)
}

func (c *connHandle) Key() string { return c.id }

// TCPServer accepts connections, reads a framed message at a time
// from each, and runs every message through the node's security
// pipeline and handler registry. Each connection is served by its own
// goroutine with a strictly sequential read loop, so handler
// invocations for a single connection are always ordered; there is no
// ordering guarantee across connections.
type TCPServer struct {
	cfg      NodeConfig
	registry *Registry
	subs     *SubscriptionTable
	peers    *PeerRegistry
	logger   zerolog.Logger

	selfID    string
	selfAddrs []string

	connsMu sync.Mutex
	conns   map[string]*connHandle
}

// NewTCPServer builds a server identified by selfID, advertising
// selfAddrs to peers. Handlers for ADVERTISE_PEER, SUBSCRIBE_URI and
// UNSUBSCRIBE_URI are registered automatically; DISCONNECT and the
// subscriber broadcast for PUBLISH_URI are handled by the connection
// loop itself, with no registry entry. Application handlers (including
// one that replies to PUBLISH_URI) should be added with Registry after
// construction.
func NewTCPServer(cfg NodeConfig, selfID string, selfAddrs []string) *TCPServer {
	cfg = cfg.WithDefaults()
	logger := cfg.Logger
	s := &TCPServer{
		cfg:       cfg,
		registry:  NewRegistry(),
		subs:      NewSubscriptionTable(),
		peers:     NewPeerRegistry(selfID, cfg.PeerTTL),
		logger:    logger,
		selfID:    selfID,
		selfAddrs: selfAddrs,
		conns:     make(map[string]*connHandle),
	}
	s.registerBuiltinHandlers()
	return s
}

// Registry exposes the handler table so callers can add application
// routes.
func (s *TCPServer) Registry() *Registry { return s.registry }

// Peers exposes the peer registry.
func (s *TCPServer) Peers() *PeerRegistry { return s.peers }

func (s *TCPServer) registerBuiltinHandlers() {
	s.registry.AddHandler(SubscribeURI, "", func(msg Message) (*Message, error) {
		// Subscription bookkeeping happens in handleConn, where the
		// connHandle is in scope; this handler only builds the reply.
		resp, err := NewMessage(ConfirmSubscribe, NewAuthFields(), Prepare(nil, msg.Body.URI))
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
	s.registry.AddHandler(UnsubscribeURI, "", func(msg Message) (*Message, error) {
		resp, err := NewMessage(ConfirmUnsubscribe, NewAuthFields(), Prepare(nil, msg.Body.URI))
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
	s.registry.AddHandler(AdvertisePeer, "", func(msg Message) (*Message, error) {
		peer, err := DecodePeerBody(s.cfg.Peer, msg.Body)
		if err != nil {
			return nil, err
		}
		if s.peers.Upsert(peer) {
			body, err := EncodePeerBody(s.cfg.Peer, peer, msg.Body.URI)
			if err != nil {
				return nil, err
			}
			resp, err := NewMessage(PeerDiscovered, NewAuthFields(), body)
			if err != nil {
				return nil, err
			}
			return &resp, nil
		}
		return nil, nil
	})
}

// Serve runs the accept loop on ln until ctx is cancelled or Accept
// fails for a reason other than the listener closing.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.peers.Start()
	go func() {
		<-ctx.Done()
		s.peers.Stop()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	handle := &connHandle{conn: conn, id: conn.RemoteAddr().String()}
	s.connsMu.Lock()
	s.conns[handle.id] = handle
	s.connsMu.Unlock()

	defer func() {
		conn.Close()
		s.subs.UnsubscribeAll(handle.id)
		s.connsMu.Lock()
		delete(s.conns, handle.id)
		s.connsMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrChecksumMismatch) {
				s.logger.Debug().Err(err).Str("peer", handle.id).Msg("bad frame, replying with error")
				s.cfg.Metrics.dispatchErr(dispatchErrorKind(err))
				errMsg, merr := MakeErrorMsg("invalid message", "")
				if merr == nil {
					if sendErr := handle.Send(errMsg); sendErr != nil {
						return
					}
				}
				continue
			}
			s.logger.Debug().Err(err).Str("peer", handle.id).Msg("connection read ended")
			return
		}
		s.cfg.Metrics.recvd(raw.Header.MessageType)

		msg, err := DecryptOuter(s.cfg.Security, raw)
		if err != nil {
			s.logger.Debug().Err(err).Str("peer", handle.id).Msg("outer security check failed")
			s.cfg.Metrics.dispatchErr(dispatchErrorKind(err))
			if sendErr := handle.Send(makeErrorResponse(raw, err)); sendErr != nil {
				return
			}
			continue
		}

		switch msg.Header.MessageType {
		case SubscribeURI:
			s.subs.Subscribe(msg.Body.URI, handle)
			s.cfg.Metrics.setSubscriptions(s.subs.Count())
		case UnsubscribeURI:
			s.subs.Unsubscribe(msg.Body.URI, handle.id)
			s.cfg.Metrics.setSubscriptions(s.subs.Count())
		case PublishURI:
			s.subs.Broadcast(msg.Body.URI, msg)
		case Disconnect:
			s.peers.Remove(msg.Body.URI)
			s.cfg.Metrics.setPeersKnown(len(s.peers.All()))
			return
		}

		resp, err := DispatchInner(s.cfg.Security, s.registry, msg)
		if err != nil {
			s.logger.Debug().Err(err).Str("peer", handle.id).Stringer("type", msg.Header.MessageType).Msg("dispatch failed")
			s.cfg.Metrics.dispatchErr(dispatchErrorKind(err))
			errResp := makeErrorResponse(msg, err)
			if sendErr := handle.Send(errResp); sendErr != nil {
				return
			}
			continue
		}
		if msg.Header.MessageType == AdvertisePeer {
			s.cfg.Metrics.setPeersKnown(len(s.peers.All()))
		}
		if resp == nil {
			continue
		}
		if err := handle.Send(*resp); err != nil {
			s.logger.Debug().Err(err).Str("peer", handle.id).Msg("response write failed")
			return
		}
		s.cfg.Metrics.sent(resp.Header.MessageType)
	}
}

// Broadcast fans msg out to every subscriber of uri.
func (s *TCPServer) Broadcast(uri string, msg Message) {
	s.subs.Broadcast(uri, msg)
}

// Notify sends msg to exactly the connections named by keys that are
// subscribed to uri.
func (s *TCPServer) Notify(uri string, keys []string, msg Message) error {
	return s.subs.Notify(uri, keys, msg)
}

// dispatchErrorKind classifies a ProcessInbound error for the
// dispatch_errors_total metric's "kind" label.
func dispatchErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotPermitted):
		return "not_permitted"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	default:
		return "other"
	}
}

// MakeErrorMsg builds an ERROR-family response for text, routing to a
// more specific message type when text names one: "not found" becomes
// NOT_FOUND, "not permitted" becomes NOT_PERMITTED, and "auth" becomes
// AUTH_ERROR. Anything else stays a plain ERROR.
func MakeErrorMsg(text string, uri string) (Message, error) {
	mt := Error
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "not found"):
		mt = NotFound
	case strings.Contains(lower, "not permitted"):
		mt = NotPermitted
	case strings.Contains(lower, "auth"):
		mt = AuthError
	}
	return NewMessage(mt, NewAuthFields(), Prepare([]byte(text), uri))
}

// MakeOKMsg builds an OK response carrying content for uri.
func MakeOKMsg(content []byte, uri string) (Message, error) {
	return NewMessage(OK, NewAuthFields(), Prepare(content, uri))
}

// MakeNotFoundMsg builds a NOT_FOUND response.
func MakeNotFoundMsg(text string, uri string) (Message, error) {
	return NewMessage(NotFound, NewAuthFields(), Prepare([]byte(text), uri))
}

// MakeNotPermittedMsg builds a NOT_PERMITTED response.
func MakeNotPermittedMsg(text string, uri string) (Message, error) {
	return NewMessage(NotPermitted, NewAuthFields(), Prepare([]byte(text), uri))
}

// MakeRespondURIMsg builds a RESPOND_URI message carrying content for
// uri, the general-purpose reply type for REQUEST_URI handlers.
func MakeRespondURIMsg(content []byte, uri string) (Message, error) {
	return NewMessage(RespondURI, NewAuthFields(), Prepare(content, uri))
}

func makeErrorResponse(req Message, cause error) Message {
	msg, err := MakeErrorMsg(cause.Error(), req.Body.URI)
	if err != nil {
		// Header/body construction for an error response cannot fail
		// under normal conditions; fall back to a bare envelope rather
		// than panicking in a hot read loop.
		body := Prepare([]byte(cause.Error()), req.Body.URI)
		msg = Message{Header: Header{MessageType: Error}, AuthFields: NewAuthFields(), Body: body}
	}
	return msg
}
