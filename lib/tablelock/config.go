package tablelock

import (
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("tablelock")

const (
	// NoTimeout makes Acquire wait until the lock is granted or the context is done
	NoTimeout time.Duration = -1
	// DefaultLockTimeout is the default write and read lock timeout (10 minutes)
	DefaultLockTimeout = 10 * time.Minute
	// DefaultRoot is the default coordinator path below which all table locks live
	DefaultRoot = "/dlock/table-lock"
)

// ServerName identifies the process that owns a lock.
type ServerName struct {
	Host      string
	Port      int
	StartCode int64 // distinguishes restarts of the same endpoint, usually the start time in ms
}

// String returns the server name in the "host,port,startcode" notation.
func (s ServerName) String() string {
	return fmt.Sprintf("%s,%d,%d", s.Host, s.Port, s.StartCode)
}

// LocalServerName returns a server name for this process using the host name and the
// current time as start code.
func LocalServerName(port int) ServerName {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return ServerName{Host: host, Port: port, StartCode: time.Now().UnixMilli()}
}

// Config configures the table lock manager.
type Config struct {
	// Enabled selects the coordinator backed manager. If false, all locks are no-ops.
	Enabled bool
	// WriteLockTimeout bounds the wait for write locks. NoTimeout waits indefinitely.
	WriteLockTimeout time.Duration
	// ReadLockTimeout bounds the wait for read locks. NoTimeout waits indefinitely.
	ReadLockTimeout time.Duration
	// Root is the coordinator path below which every table has its lock node
	Root string
	// ServerName is stored as lock owner in the lock metadata
	ServerName ServerName
}

// DefaultConfig returns an enabled configuration with 10 minute timeouts.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		WriteLockTimeout: DefaultLockTimeout,
		ReadLockTimeout:  DefaultLockTimeout,
		Root:             DefaultRoot,
		ServerName:       LocalServerName(0),
	}
}

// TimeoutFromMillis converts a timeout in milliseconds. Negative values mean no timeout.
func TimeoutFromMillis(ms int64) time.Duration {
	if ms < 0 {
		return NoTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// NewTableLockManager creates the table lock manager matching the configuration:
// a coordinator backed manager if locking is enabled, a no-op manager otherwise.
func NewTableLockManager(conf Config, c coord.ICoordinator) ITableLockManager {
	if !conf.Enabled {
		log.Infof("table locks are disabled")
		return NewNullTableLockManager()
	}
	if conf.Root == "" {
		conf.Root = DefaultRoot
	}
	return newManager(conf, c)
}
