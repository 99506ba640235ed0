// Command netaio-node runs a standalone netaio TCP server with
// optional UDP peer discovery and an admin HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/k98kurz/netaio"
)

var (
	tcpAddr    string
	udpAddr    string
	enableUDP  bool
	multicast  bool
	adminAddr  string
	hmacSecret string
	nodeID     string
	logLevel   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netaio-node",
		Short: "Run a netaio server node",
		RunE:  runNode,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&tcpAddr, "tcp-addr", "127.0.0.1:9000", "TCP listen address")
	flags.StringVar(&udpAddr, "udp-addr", "0.0.0.0:9001", "UDP listen address")
	flags.BoolVar(&enableUDP, "udp", false, "also run a UDP peer-discovery node")
	flags.BoolVar(&multicast, "multicast", false, "join the default IPv4 multicast group on the UDP node")
	flags.StringVar(&adminAddr, "admin-addr", "", "admin HTTP address, e.g. 127.0.0.1:9090 (empty disables it)")
	flags.StringVar(&hmacSecret, "hmac-secret", "", "shared secret for the outer HMAC auth plugin (empty disables outer auth)")
	flags.StringVar(&nodeID, "id", "", "this node's peer ID (random if empty)")
	flags.StringVar(&logLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := netaio.NewDefaultLogger().Level(level)

	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	var security netaio.SecurityConfig
	if hmacSecret != "" {
		auth, err := netaio.NewHMACAuthPlugin(netaio.HMACAuthPluginConfig{
			Secret:  []byte(hmacSecret),
			MaxSkew: time.Minute,
		})
		if err != nil {
			return err
		}
		security.OuterAuth = auth
	}

	var promRegistry *prometheus.Registry
	var metrics *netaio.Metrics
	if adminAddr != "" {
		metrics = netaio.NewMetrics(prometheus.Labels{"node": nodeID})
		promRegistry = prometheus.NewRegistry()
		metrics.MustRegister(promRegistry)
	}

	nodeCfg := netaio.NodeConfig{
		Security: security,
		Logger:   logger,
		Metrics:  metrics,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	server := netaio.NewTCPServer(nodeCfg, nodeID, []string{tcpAddr})

	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", tcpAddr, err)
	}
	logger.Info().Str("addr", tcpAddr).Str("id", nodeID).Msg("tcp server listening")

	go func() {
		if err := server.Serve(ctx, ln); err != nil {
			logger.Error().Err(err).Msg("tcp server stopped")
		}
	}()

	var udpNode *netaio.UDPNode
	if enableUDP {
		udpNode = netaio.NewUDPNode(netaio.UDPNodeConfig{
			Node:            nodeCfg,
			ListenAddr:      udpAddr,
			EnableMulticast: multicast,
			SelfID:          nodeID,
			SelfAddrs:       []string{tcpAddr},
		})
		if err := udpNode.Listen(); err != nil {
			return fmt.Errorf("udp listen %s: %w", udpAddr, err)
		}
		logger.Info().Str("addr", udpAddr).Bool("multicast", multicast).Msg("udp node listening")
		go func() {
			if err := udpNode.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("udp node stopped")
			}
		}()
		if multicast {
			go func() {
				if err := udpNode.AdvertiseLoop(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("advertise loop stopped")
				}
			}()
		}
	}

	var httpServer *http.Server
	if adminAddr != "" {
		admin := netaio.NewAdminServer(server.Peers(), promRegistry)
		httpServer = &http.Server{Addr: adminAddr, Handler: admin.Router()}
		logger.Info().Str("addr", adminAddr).Msg("admin http listening")
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("admin http stopped")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()
	if udpNode != nil {
		udpNode.Close()
	}
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}
	time.Sleep(300 * time.Millisecond)
	return nil
}
