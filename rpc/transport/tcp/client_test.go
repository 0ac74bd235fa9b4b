package tcp

import (
	"net"
	"strings"
	"testing"
)

func TestClientConnectorConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	addr := ln.Addr().String()

	c := &clientConnector{}
	conn, err := c.Connect(addr)
	if err != nil {
		t.Fatalf("Connect(%s) failed: %v", addr, err)
	}
	_ = conn.Close()
	_ = ln.Close()

	// nobody listens anymore, the error names the endpoint
	if _, err := c.Connect(addr); err == nil || !strings.Contains(err.Error(), addr) {
		t.Errorf("Connect(%s) after close = %v, want an error naming the endpoint", addr, err)
	}
}
