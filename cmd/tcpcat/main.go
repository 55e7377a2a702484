// Command tcpcat binds a single port on a TUN device and bridges the first
// accepted connection to the process's stdin/stdout, the way netcat bridges
// a kernel socket.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/netip"
	"os"

	"github.com/quadstack/tcpstack/netio"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("tcpcat:", err)
	}
}

func run() error {
	var (
		flagIface = flag.String("iface", "tun0", "TUN device name")
		flagAddr  = flag.String("addr", "10.0.0.1/24", "local address to assign the TUN device; it is assigned as a /24 and any other prefix length given here is not used")
		flagPort  = flag.Uint("port", 7001, "TCP port to listen on")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	prefix, err := netip.ParsePrefix(*flagAddr)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}

	ifc, err := netio.Open(*flagIface, prefix.Addr().As4(), logger, nil, "tcpcat")
	if err != nil {
		return fmt.Errorf("opening interface: %w", err)
	}
	defer ifc.Close()

	l, err := ifc.Bind(uint16(*flagPort))
	if err != nil {
		return fmt.Errorf("binding port %d: %w", *flagPort, err)
	}
	logger.Info("waiting for connection", "iface", *flagIface, "port", *flagPort)

	stream, err := l.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	logger.Info("connected")

	errc := make(chan error, 2)
	go func() {
		_, err := copyToStream(stream, os.Stdin)
		errc <- err
	}()
	go func() {
		_, err := copyFromStream(os.Stdout, stream)
		errc <- err
	}()
	return <-errc
}

func copyToStream(dst *netio.Stream, src io.Reader) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.WriteBlocking(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			dst.Shutdown()
			return total, err
		}
	}
}

func copyFromStream(dst io.Writer, src *netio.Stream) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, err := src.Read(buf)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return total, werr
		}
		total += int64(n)
	}
}
