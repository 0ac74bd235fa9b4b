/*
Package testing provides a conformance test suite for coord.ICoordinator implementations.

Every implementation (local, RAFT replicated, etcd backed, RPC client) must behave
identically from the point of view of a lock recipe. The suite checks sequential naming,
delete semantics, atomic multi-delete, data retrieval, path validation and the children
watch contract (no lost wake-ups, immediate firing on a stale version, firing on context
cancellation).

Usage:

	func TestLocalCoordinator(t *testing.T) {
		testing.RunCoordinatorTests(t, "lcoord", func() coord.ICoordinator {
			return lcoord.NewLocalCoordinator()
		})
	}
*/
package testing
