/*
Package etcdcoord implements coord.ICoordinator on top of an external etcd cluster.

Key Layout:

Every node is a key below "<namespace>/nodes", every parent that ever had sequential children
owns a counter key below "<namespace>/seq":

	/dlock/nodes/dlock/table-lock/orders/write-0000000000   -> lock metadata
	/dlock/seq/dlock/table-lock/orders                      -> "1"

Operations:

  - CreateSequential reads the counter and the ancestor keys, then commits a transaction that
    is guarded by the counter's mod revision and the ancestors' existence. Losing the race
    means reading again.
  - Delete compares the node's version and the (empty) range of its descendants in one
    transaction, so a concurrently added child makes it fail with ErrNotEmpty.
  - Children returns the etcd revision of the read as the children version. WatchChildren
    watches the node's key range starting at the next revision, the same way the etcd
    concurrency recipes wait for predecessors.

Sessions:

If Config.SessionTTL is set, a concurrency.Session is created and every node created by
CreateSequential is attached to its lease. The nodes disappear when the process dies, which
gives ephemeral lock nodes. Close revokes the lease.
*/
package etcdcoord
