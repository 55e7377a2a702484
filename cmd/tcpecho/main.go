// Command tcpecho opens a TUN device and echoes back every byte it
// receives on a bound port, using the tcp/netio engine instead of the host
// kernel's TCP stack.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/netip"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"

	"github.com/quadstack/tcpstack/netio"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("tcpecho:", err)
	}
}

func run() error {
	var (
		flagIface    = flag.String("iface", "tun0", "TUN device name")
		flagAddr     = flag.String("addr", "10.0.0.1/24", "local address to assign the TUN device; it is assigned as a /24 and any other prefix length given here is not used")
		flagPort     = flag.Uint("port", 7000, "TCP port to listen on")
		flagMetrics  = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
		flagLogLevel = flag.String("log-level", "info", "slog level: debug, info, warn, error")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*flagLogLevel)}))

	prefix, err := netip.ParsePrefix(*flagAddr)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}
	localAddr := prefix.Addr().As4()

	var registry *prometheus.Registry
	if *flagMetrics != "" {
		registry = prometheus.NewRegistry()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			logger.Error("metrics server exited", "err", http.ListenAndServe(*flagMetrics, mux))
		}()
	}

	ifc, err := netio.Open(*flagIface, localAddr, logger, registry, "tcpecho")
	if err != nil {
		return fmt.Errorf("opening interface: %w", err)
	}
	defer ifc.Close()

	l, err := ifc.Bind(uint16(*flagPort))
	if err != nil {
		return fmt.Errorf("binding port %d: %w", *flagPort, err)
	}
	logger.Info("listening", "iface", *flagIface, "addr", *flagAddr, "port", *flagPort)

	for {
		stream, err := l.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go echo(logger, stream)
	}
}

func echo(logger *slog.Logger, stream *netio.Stream) {
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if err != nil {
			logger.Warn("read failed", "err", err)
			return
		}
		if n == 0 {
			stream.Shutdown()
			return
		}
		if _, err := stream.WriteBlocking(buf[:n]); err != nil {
			logger.Warn("write failed", "err", err)
			return
		}
	}
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
