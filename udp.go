package netaio

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMulticastGroup is the IPv4 multicast group netaio nodes join
// by default for the ADVERTISE_PEER protocol, matching the group a
// freshly configured node expects its peers to also be listening on.
const DefaultMulticastGroup = "224.0.0.1"

// UDPNodeConfig configures a UDPNode.
type UDPNodeConfig struct {
	Node NodeConfig

	// ListenAddr is the local unicast address to bind, e.g.
	// "0.0.0.0:9001".
	ListenAddr string

	// MulticastGroup is joined in addition to the unicast socket when
	// EnableMulticast is set; it is ignored otherwise. Defaults to
	// DefaultMulticastGroup when left blank.
	MulticastGroup  string
	EnableMulticast bool

	SelfID    string
	SelfAddrs []string
}

// UDPNode runs a single UDP socket through the same framed-message,
// security-pipeline, and handler-dispatch machinery as TCPServer, but
// statelessly: every inbound datagram is handled independently and
// any response goes back to the sender's address, there is no
// per-peer connection object.
type UDPNode struct {
	cfg     UDPNodeConfig
	node    NodeConfig
	conn    *net.UDPConn
	mconn   *net.UDPConn
	group   *net.UDPAddr
	writeMu sync.Mutex

	registry *Registry
	peers    *PeerRegistry
	logger   zerolog.Logger
}

// NewUDPNode builds a node from cfg without opening any sockets.
func NewUDPNode(cfg UDPNodeConfig) *UDPNode {
	node := cfg.Node.WithDefaults()
	n := &UDPNode{
		cfg:      cfg,
		node:     node,
		registry: NewRegistry(),
		peers:    NewPeerRegistry(cfg.SelfID, node.PeerTTL),
		logger:   node.Logger,
	}
	n.registerBuiltinHandlers()
	return n
}

func (n *UDPNode) Registry() *Registry    { return n.registry }
func (n *UDPNode) Peers() *PeerRegistry   { return n.peers }

func (n *UDPNode) registerBuiltinHandlers() {
	n.registry.AddHandler(AdvertisePeer, "", func(msg Message) (*Message, error) {
		peer, err := DecodePeerBody(n.node.Peer, msg.Body)
		if err != nil {
			return nil, err
		}
		if !n.peers.Upsert(peer) {
			return nil, nil
		}
		body, err := EncodePeerBody(n.node.Peer, peer, msg.Body.URI)
		if err != nil {
			return nil, err
		}
		resp, err := NewMessage(PeerDiscovered, NewAuthFields(), body)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
	n.registry.AddHandler(Disconnect, "", func(msg Message) (*Message, error) {
		n.peers.Remove(msg.Body.URI)
		return nil, nil
	})
}

// Listen opens the unicast socket and, if configured, joins the
// multicast group.
func (n *UDPNode) Listen() error {
	addr, err := net.ResolveUDPAddr("udp4", n.cfg.ListenAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return err
	}
	n.conn = conn

	if n.cfg.EnableMulticast {
		group := n.cfg.MulticastGroup
		if group == "" {
			group = DefaultMulticastGroup
		}
		gaddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", group, addr.Port))
		if err != nil {
			return err
		}
		mconn, err := net.ListenMulticastUDP("udp4", nil, gaddr)
		if err != nil {
			return err
		}
		n.mconn = mconn
		n.group = gaddr
	}
	return nil
}

// Close shuts down the node's sockets.
func (n *UDPNode) Close() error {
	var err error
	if n.conn != nil {
		err = n.conn.Close()
	}
	if n.mconn != nil {
		if merr := n.mconn.Close(); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

// Serve runs both the unicast and (if joined) multicast read loops
// until ctx is cancelled.
func (n *UDPNode) Serve(ctx context.Context) error {
	n.peers.Start()
	defer n.peers.Stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- n.readLoop(ctx, n.conn)
	}()
	if n.mconn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- n.readLoop(ctx, n.mconn)
		}()
	}

	go func() {
		<-ctx.Done()
		n.Close()
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func (n *UDPNode) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, MaxFrameSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		nread, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		data := make([]byte, nread)
		copy(data, buf[:nread])
		go n.handleDatagram(conn, addr, data)
	}
}

func (n *UDPNode) handleDatagram(conn *net.UDPConn, addr *net.UDPAddr, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		n.logger.Debug().Err(err).Stringer("from", addr).Msg("dropping malformed datagram")
		return
	}
	n.node.Metrics.recvd(msg.Header.MessageType)

	resp, err := ProcessInbound(n.node.Security, n.registry, msg)
	if err != nil {
		n.logger.Debug().Err(err).Stringer("from", addr).Msg("udp dispatch failed")
		n.node.Metrics.dispatchErr(dispatchErrorKind(err))
		return
	}
	if msg.Header.MessageType == AdvertisePeer {
		n.node.Metrics.setPeersKnown(len(n.peers.All()))
	}
	if resp == nil {
		return
	}
	if err := n.writeTo(conn, addr, *resp); err != nil {
		n.logger.Debug().Err(err).Stringer("to", addr).Msg("udp response write failed")
		return
	}
	n.node.Metrics.sent(resp.Header.MessageType)
}

func (n *UDPNode) writeTo(conn *net.UDPConn, addr *net.UDPAddr, msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	_, err = conn.WriteToUDP(data, addr)
	return err
}

// Unicast sends msg to exactly one address after running it through
// the outbound security pipeline.
func (n *UDPNode) Unicast(addr *net.UDPAddr, msg Message) error {
	prepared, err := PrepareOutbound(n.node.Security, msg)
	if err != nil {
		return err
	}
	return n.writeTo(n.conn, addr, prepared)
}

// Broadcast sends msg to every address in addrs.
func (n *UDPNode) Broadcast(addrs []*net.UDPAddr, msg Message) error {
	prepared, err := PrepareOutbound(n.node.Security, msg)
	if err != nil {
		return err
	}
	var firstErr error
	for _, addr := range addrs {
		if err := n.writeTo(n.conn, addr, prepared); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Multicast sends msg to the joined multicast group.
func (n *UDPNode) Multicast(msg Message) error {
	if n.group == nil {
		return fmt.Errorf("netaio: multicast not enabled on this node")
	}
	prepared, err := PrepareOutbound(n.node.Security, msg)
	if err != nil {
		return err
	}
	return n.writeTo(n.conn, n.group, prepared)
}

// Notify is an alias for Broadcast kept for symmetry with TCPServer's
// notify operation, which targets a named subset of subscribers
// rather than everyone; UDP has no subscription state of its own, so
// "notify these addresses" and "broadcast to these addresses" coincide.
func (n *UDPNode) Notify(addrs []*net.UDPAddr, msg Message) error {
	return n.Broadcast(addrs, msg)
}

// AdvertiseLoop periodically multicasts this node's own Peer record
// until ctx is cancelled, implementing the peer discovery protocol's
// advertise tick.
func (n *UDPNode) AdvertiseLoop(ctx context.Context, data map[string]any) error {
	ticker := time.NewTicker(n.node.AdvertiseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			self := Peer{ID: n.cfg.SelfID, Addrs: n.cfg.SelfAddrs, Data: data}
			body, err := EncodePeerBody(n.node.Peer, self, n.cfg.SelfID)
			if err != nil {
				return err
			}
			msg, err := NewMessage(AdvertisePeer, NewAuthFields(), body)
			if err != nil {
				return err
			}
			if err := n.Multicast(msg); err != nil {
				n.logger.Debug().Err(err).Msg("advertise multicast failed")
			}
		}
	}
}
