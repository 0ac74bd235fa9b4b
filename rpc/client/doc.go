// Package client implements the client side of the dLock RPC protocol.
//
// NewRPCCoordinator returns a coord.ICoordinator that forwards every call to a shard of a
// remote dLock server. Because it satisfies the same interface as the in-process
// coordinators, a tablelock.Manager can run unchanged against a remote server:
//
//	c, err := client.NewRPCCoordinator(
//	  100,
//	  common.ClientConfig{TimeoutSecond: 5, WaitSecond: 30, Transport: common.ClientTransportConfig{Endpoints: []string{"localhost:8080"}}},
//	  tcp.NewTCPClientTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	conf := tablelock.DefaultConfig()
//	conf.ServerName = serverName
//	mgr := tablelock.NewTableLockManager(conf, c)
//
// Every request is bounded by ClientConfig.TimeoutSecond. Watches are implemented as a
// long poll: the server holds a WaitChildren request until the children of the watched
// node changed or ClientConfig.WaitSecond passed, and the client repeats the request
// until a change was seen or the context is done.
//
// Errors returned by the server keep their coordinator return code, so
// errors.Is(err, coord.ErrNoNode) works the same way as for a local coordinator.
package client
