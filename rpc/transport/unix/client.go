package unix

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/base"
)

// clientConnector dials a dLock server listening on a local socket file
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(socketPath string) (net.Conn, error) {
	// a missing socket file means the server is not running on this machine
	if _, err := os.Stat(socketPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no dLock server socket at %s", socketPath)
	}
	return net.Dial("unix", socketPath)
}

func (c *clientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error {
	return nil // no socket options for local sockets
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a client transport for a dLock server on the same machine.
// The endpoints are socket paths.
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
