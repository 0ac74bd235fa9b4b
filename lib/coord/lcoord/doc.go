/*
Package lcoord provides a local, in-memory implementation of the coord.ICoordinator interface.

It keeps the namespace in a tree.Tree and delivers children watches through a watch.Hub.
There is no replication and no persistence, the namespace lives as long as the process does.

Use Cases:
  - Testing lock recipes without setting up a RAFT cluster or etcd
  - Single-node deployments of the dlock server (`--shards=1:lcoord`)

Usage:

	c := lcoord.NewLocalCoordinator()
	defer c.Close()

	mgr := tablelock.NewTableLockManager(tablelock.DefaultConfig(), c)

Closing the coordinator wakes up every pending watcher. Subsequent calls fail with an
internal error.
*/
package lcoord
