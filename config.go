package netaio

import (
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// NodeConfig bundles the settings shared by TCPServer, TCPClient, and
// UDPNode: which security plugins wrap every message, how dispatch
// and peer bookkeeping behave, and where to log.
type NodeConfig struct {
	// Security is applied around every outbound message and checked
	// against every inbound one.
	Security SecurityConfig

	// Peer is used to encode/parse the opaque data field of Peer
	// records. Defaults to JSONPeerPlugin.
	Peer PeerPlugin

	// AdvertiseInterval controls how often a node re-broadcasts its
	// own Peer record on the peer management protocol. Defaults to 30s.
	AdvertiseInterval time.Duration

	// PeerTTL bounds how long a peer record is kept without a fresh
	// advertisement before PeerRegistry prunes it. Defaults to
	// 3x AdvertiseInterval.
	PeerTTL time.Duration

	// RequestTimeout bounds how long a correlated request (one using
	// an ephemeral handler) waits for its response before failing
	// with ErrTimeout, when TCPClient.Request is given a non-positive
	// timeout. Defaults to 10s.
	RequestTimeout time.Duration

	// Logger receives structured events from the node. The zero value
	// builds a reasonable default that writes JSON to stderr.
	Logger zerolog.Logger

	// Metrics, if set, receives counts of messages, dispatch errors,
	// and gauges for peers/subscriptions as the node runs. Nil
	// disables metrics collection entirely.
	Metrics *Metrics
}

// WithDefaults returns a copy of cfg with zero-valued fields filled
// in.
func (cfg NodeConfig) WithDefaults() NodeConfig {
	if cfg.Peer == nil {
		cfg.Peer = JSONPeerPlugin{}
	}
	if cfg.AdvertiseInterval <= 0 {
		cfg.AdvertiseInterval = 30 * time.Second
	}
	if cfg.PeerTTL <= 0 {
		cfg.PeerTTL = 3 * cfg.AdvertiseInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if reflect.DeepEqual(cfg.Logger, zerolog.Logger{}) {
		cfg.Logger = NewDefaultLogger()
	}
	return cfg
}

// NewDefaultLogger builds the zerolog.Logger netaio's own binaries use
// when the caller doesn't supply one.
func NewDefaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
