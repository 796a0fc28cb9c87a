package internal

import (
	"net"
	"time"

	"github.com/prometheus/common/log"
)

// The transport interface providing the byte stream the driver
// runs over. The runtime dials a fresh connection for every
// lifecycle and owns the returned conn until Closing tears it
// down.
type Transport interface {
	// Dial opens a connected byte stream to the server.
	Dial(timeout time.Duration) (net.Conn, error)
}

// Transport over plain TCP. TLS or any other stream can be
// provided by the user through the Transport interface.
type TCPTransport struct {
	// Server address in host:port form.
	Address string
}

func NewTCPTransport(address string) *TCPTransport {
	return &TCPTransport{Address: address}
}

// Implements the Transport interface.
func (t *TCPTransport) Dial(timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", t.Address, timeout)
	if err != nil {
		log.Errorf("failed dialing %s. %v", t.Address, err)
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			log.Warnf("failed disabling nagle on %s. %v", t.Address, err)
		}
	}
	return conn, nil
}
