package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/base"
)

// dialTimeout bounds connecting to a dLock server
const dialTimeout = 5 * time.Second

// clientConnector dials dLock servers over TCP. The socket options (no delay, keep alive,
// linger, buffers) are taken from the client transport config.
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	conn, err := c.dialer.Dial("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing dLock server %s: %w", endpoint, err)
	}
	return conn, nil
}

// UpgradeConnection applies the socket options. With TCPKeepAliveSec set, a server that
// vanished is detected even while the client only waits for locks.
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgrade(conn, config.Transport.TCPConf, config.Transport.SocketConf)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a client transport connecting to dLock servers over TCP
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{
		dialer: net.Dialer{Timeout: dialTimeout},
	})
}
