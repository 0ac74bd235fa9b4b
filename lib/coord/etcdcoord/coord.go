package etcdcoord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var log = logger.GetLogger("coord")

// maxTxnAttempts bounds the optimistic retry loops of CreateSequential and DeleteChildren
const maxTxnAttempts = 16

// Config configures the etcd coordinator.
type Config struct {
	// Endpoints of the etcd cluster (only used by Connect)
	Endpoints []string
	// DialTimeout for the initial connection (only used by Connect)
	DialTimeout time.Duration
	// Namespace is prepended to every key written by the coordinator
	Namespace string
	// SessionTTL binds nodes created by CreateSequential to a lease with this TTL.
	// The nodes vanish when the client stops refreshing the lease. Zero disables sessions.
	SessionTTL time.Duration
}

// DefaultConfig returns a configuration for a local etcd without sessions.
func DefaultConfig() Config {
	return Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		Namespace:   "/dlock",
	}
}

type coordImpl struct {
	cli        *clientv3.Client
	ownsClient bool
	session    *concurrency.Session
	ns         string
}

// Connect dials the etcd cluster described by conf and creates a coordinator that owns the client.
func Connect(conf Config) (coord.ICoordinator, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   conf.Endpoints,
		DialTimeout: conf.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	c, err := newCoord(cli, conf)
	if err != nil {
		cli.Close()
		return nil, err
	}
	c.ownsClient = true
	return c, nil
}

// NewEtcdCoordinator creates a coordinator on top of an existing client. The client is not
// closed by Close.
func NewEtcdCoordinator(cli *clientv3.Client, conf Config) (coord.ICoordinator, error) {
	return newCoord(cli, conf)
}

func newCoord(cli *clientv3.Client, conf Config) (*coordImpl, error) {
	c := &coordImpl{
		cli: cli,
		ns:  strings.TrimSuffix(conf.Namespace, "/"),
	}
	if conf.SessionTTL > 0 {
		ttl := int(conf.SessionTTL.Round(time.Second) / time.Second)
		if ttl < 1 {
			ttl = 1
		}
		session, err := concurrency.NewSession(cli, concurrency.WithTTL(ttl))
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd session: %w", err)
		}
		c.session = session
		log.Infof("etcd session created (lease=%x, ttl=%ds)", session.Lease(), ttl)
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

// nodeKey returns the etcd key of a node. The root has no key of its own.
func (c *coordImpl) nodeKey(path string) string {
	if path == coord.Root {
		return c.ns + "/nodes"
	}
	return c.ns + "/nodes" + path
}

// childPrefix returns the key prefix shared by all descendants of path
func (c *coordImpl) childPrefix(path string) string {
	return c.nodeKey(path) + "/"
}

// seqKey returns the key holding the next sequence number of path's children
func (c *coordImpl) seqKey(path string) string {
	if path == coord.Root {
		return c.ns + "/seq"
	}
	return c.ns + "/seq" + path
}

// directChildren picks the direct children out of a sorted list of descendants of the given prefix
func directChildren(prefix string, kvs []*mvccpb.KeyValue) []*mvccpb.KeyValue {
	var result []*mvccpb.KeyValue
	for _, kv := range kvs {
		name := strings.TrimPrefix(string(kv.Key), prefix)
		if !strings.Contains(name, "/") {
			result = append(result, kv)
		}
	}
	return result
}

// hasDescendants reports whether any key in kvs lies below key
func hasDescendants(key string, kvs []*mvccpb.KeyValue) bool {
	for _, kv := range kvs {
		if strings.HasPrefix(string(kv.Key), key+"/") {
			return true
		}
	}
	return false
}

// wrap converts client errors. Context errors are passed through so callers can test them.
func wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return coord.Errorf(coord.RetCInternalError, "%s: %v", op, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see coord/interface.go)
// --------------------------------------------------------------------------

func (c *coordImpl) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	if err := coord.Validate(parent); err != nil {
		return "", err
	}
	if prefix != "" {
		if err := coord.ValidateName(prefix); err != nil {
			return "", err
		}
	}

	ancestors := coord.Ancestors(parent)
	if parent != coord.Root {
		ancestors = append(ancestors, parent)
	}

	putOpts := []clientv3.OpOption{}
	if c.session != nil {
		putOpts = append(putOpts, clientv3.WithLease(c.session.Lease()))
	}

	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		// read the counter and the ancestors at one revision
		reads := []clientv3.Op{clientv3.OpGet(c.seqKey(parent))}
		for _, a := range ancestors {
			reads = append(reads, clientv3.OpGet(c.nodeKey(a), clientv3.WithKeysOnly()))
		}
		state, err := c.cli.Txn(ctx).Then(reads...).Commit()
		if err != nil {
			return "", wrap(ctx, "create", err)
		}

		var seq uint64
		cmps := []clientv3.Cmp{}
		counter := state.Responses[0].GetResponseRange().Kvs
		if len(counter) == 0 {
			cmps = append(cmps, clientv3.Compare(clientv3.Version(c.seqKey(parent)), "=", 0))
		} else {
			seq, err = strconv.ParseUint(string(counter[0].Value), 10, 64)
			if err != nil {
				return "", coord.Errorf(coord.RetCInternalError, "corrupt sequence counter for %s: %v", parent, err)
			}
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(c.seqKey(parent)), "=", counter[0].ModRevision))
		}

		ops := []clientv3.Op{clientv3.OpPut(c.seqKey(parent), strconv.FormatUint(seq+1, 10))}
		for i, a := range ancestors {
			if len(state.Responses[i+1].GetResponseRange().Kvs) == 0 {
				cmps = append(cmps, clientv3.Compare(clientv3.Version(c.nodeKey(a)), "=", 0))
				ops = append(ops, clientv3.OpPut(c.nodeKey(a), ""))
			} else {
				cmps = append(cmps, clientv3.Compare(clientv3.Version(c.nodeKey(a)), ">", 0))
			}
		}

		path := coord.Join(parent, coord.SequenceName(prefix, seq))
		cmps = append(cmps, clientv3.Compare(clientv3.Version(c.nodeKey(path)), "=", 0))
		ops = append(ops, clientv3.OpPut(c.nodeKey(path), string(data), putOpts...))

		resp, err := c.cli.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return "", wrap(ctx, "create", err)
		}
		if resp.Succeeded {
			return path, nil
		}
		// a concurrent writer won the race, read again
	}
	return "", coord.Errorf(coord.RetCInternalError, "create below %s: too much contention", parent)
}

func (c *coordImpl) Delete(ctx context.Context, path string) error {
	if err := coord.Validate(path); err != nil {
		return err
	}
	if path == coord.Root {
		return coord.NewError(coord.RetCInvalidOperation, "the root node can not be deleted")
	}

	key := c.nodeKey(path)
	resp, err := c.cli.Txn(ctx).
		If(
			clientv3.Compare(clientv3.Version(key), ">", 0),
			clientv3.Compare(clientv3.Version(c.childPrefix(path)), "=", 0).WithPrefix(),
		).
		Then(clientv3.OpDelete(key), clientv3.OpDelete(c.seqKey(path))).
		Else(clientv3.OpGet(key, clientv3.WithCountOnly())).
		Commit()
	if err != nil {
		return wrap(ctx, "delete", err)
	}
	if resp.Succeeded {
		return nil
	}
	if resp.Responses[0].GetResponseRange().Count == 0 {
		return coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}
	return coord.Errorf(coord.RetCNotEmpty, "node %s has children", path)
}

func (c *coordImpl) DeleteChildren(ctx context.Context, path, prefix string) (int, error) {
	if err := coord.Validate(path); err != nil {
		return 0, err
	}

	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		exists, kvs, _, err := c.list(ctx, path)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
		}

		cp := c.childPrefix(path)
		var cmps []clientv3.Cmp
		var ops []clientv3.Op
		for _, kv := range directChildren(cp, kvs) {
			key := string(kv.Key)
			if !strings.HasPrefix(strings.TrimPrefix(key, cp), prefix) {
				continue
			}
			if hasDescendants(key, kvs) {
				return 0, coord.Errorf(coord.RetCNotEmpty, "node %s has children", key)
			}
			child := coord.Join(path, strings.TrimPrefix(key, cp))
			cmps = append(cmps,
				clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision),
				clientv3.Compare(clientv3.Version(key+"/"), "=", 0).WithPrefix(),
			)
			ops = append(ops, clientv3.OpDelete(key), clientv3.OpDelete(c.seqKey(child)))
		}
		if len(ops) == 0 {
			return 0, nil
		}

		resp, err := c.cli.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return 0, wrap(ctx, "delete children", err)
		}
		if resp.Succeeded {
			return len(ops) / 2, nil
		}
	}
	return 0, coord.Errorf(coord.RetCInternalError, "delete children of %s: too much contention", path)
}

// list reads the existence of path and all its descendants (sorted by creation) at one revision.
func (c *coordImpl) list(ctx context.Context, path string) (exists bool, kvs []*mvccpb.KeyValue, rev int64, err error) {
	resp, err := c.cli.Txn(ctx).Then(
		clientv3.OpGet(c.nodeKey(path), clientv3.WithKeysOnly()),
		clientv3.OpGet(c.childPrefix(path), clientv3.WithPrefix(), clientv3.WithKeysOnly(),
			clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend)),
	).Commit()
	if err != nil {
		return false, nil, 0, wrap(ctx, "list", err)
	}
	exists = path == coord.Root || len(resp.Responses[0].GetResponseRange().Kvs) > 0
	return exists, resp.Responses[1].GetResponseRange().Kvs, resp.Header.Revision, nil
}

func (c *coordImpl) Children(ctx context.Context, path string) ([]string, uint64, error) {
	if err := coord.Validate(path); err != nil {
		return nil, 0, err
	}
	exists, kvs, rev, err := c.list(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}

	cp := c.childPrefix(path)
	children := make([]string, 0, len(kvs))
	for _, kv := range directChildren(cp, kvs) {
		children = append(children, strings.TrimPrefix(string(kv.Key), cp))
	}
	return children, uint64(rev), nil
}

func (c *coordImpl) GetData(ctx context.Context, path string) ([]byte, error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}
	if path == coord.Root {
		return []byte{}, nil
	}
	resp, err := c.cli.Get(ctx, c.nodeKey(path))
	if err != nil {
		return nil, wrap(ctx, "get", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, coord.Errorf(coord.RetCNoNode, "node %s does not exist", path)
	}
	return resp.Kvs[0].Value, nil
}

// WatchChildren treats cversion as the etcd revision returned by Children. The watch covers the
// node key and everything below it, starting right after that revision, so every change since
// the caller looked is delivered. Changes to grandchildren or to siblings sharing the key prefix
// cause spurious wake-ups, which callers tolerate by re-reading.
func (c *coordImpl) WatchChildren(ctx context.Context, path string, cversion uint64) (<-chan struct{}, error) {
	if err := coord.Validate(path); err != nil {
		return nil, err
	}

	ch := make(chan struct{})
	if path != coord.Root {
		resp, err := c.cli.Get(ctx, c.nodeKey(path), clientv3.WithCountOnly())
		if err != nil {
			return nil, wrap(ctx, "watch", err)
		}
		if resp.Count == 0 {
			close(ch)
			return ch, nil
		}
	}

	wctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	wch := c.cli.Watch(wctx, c.nodeKey(path), clientv3.WithPrefix(), clientv3.WithRev(int64(cversion)+1))
	go func() {
		defer close(ch)
		defer cancel()
		for resp := range wch {
			if err := resp.Err(); err != nil {
				// compaction or lost leader: let the caller re-read
				log.Debugf("watch on %s ended: %v", path, err)
				return
			}
			if len(resp.Events) > 0 {
				return
			}
		}
	}()
	return ch, nil
}

// Close revokes the session lease (removing all nodes bound to it) and closes the client if
// the coordinator created it.
func (c *coordImpl) Close() error {
	var errs []error
	if c.session != nil {
		errs = append(errs, c.session.Close())
	}
	if c.ownsClient {
		errs = append(errs, c.cli.Close())
	}
	return errors.Join(errs...)
}
