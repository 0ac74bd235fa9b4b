package unix

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func TestClientConnectorConnect(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dlock.sock")
	c := &clientConnector{}

	if _, err := c.Connect(socketPath); err == nil || !strings.Contains(err.Error(), "no dLock server socket") {
		t.Errorf("Connect() without server = %v, want a missing socket error", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer ln.Close()

	conn, err := c.Connect(socketPath)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	_ = conn.Close()
}
