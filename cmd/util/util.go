package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/coord/etcdcoord"
	"github.com/ValentinKolb/dLock/lib/tablelock"
	"github.com/ValentinKolb/dLock/rpc/client"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/http"
	"github.com/ValentinKolb/dLock/rpc/transport/tcp"
	"github.com/ValentinKolb/dLock/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
	// EnvPrefix is the prefix of all environment variables read by dlock
	EnvPrefix = "dlock"
)

// Logger is used by the client commands
var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// HashString maps a replica name like 'node-1' to a numeric Raft replica ID.
// It uses FNV-1a, the same name always yields the same ID on every node.
func HashString(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// --------------------------------------------------------------------------
// Client flags
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request"))

	key = "wait"
	cmd.PersistentFlags().Int(key, 30, WrapString("How long (in seconds) the server may hold a watch request before the client asks again"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the dLock server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for TCPConf)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for TCPConf)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds, only for TCPConf)"))

	key = "shard"
	cmd.PersistentFlags().Int(key, 100, WrapString("ID of the shard to connect to"))
}

// SetupCoordinatorFlags adds the flags selecting the coordination service
func SetupCoordinatorFlags(cmd *cobra.Command) {
	key := "coordinator"
	cmd.PersistentFlags().String(key, "rpc", WrapString("The coordination service to use (rpc, etcd). rpc connects to a dLock server, etcd to an etcd cluster"))

	key = "etcd-endpoints"
	cmd.PersistentFlags().String(key, "localhost:2379", WrapString("Comma-separated list of etcd endpoints (only for --coordinator=etcd)"))

	key = "etcd-namespace"
	cmd.PersistentFlags().String(key, "", WrapString("Key prefix for all nodes written to etcd (only for --coordinator=etcd)"))

	key = "etcd-lease-ttl"
	cmd.PersistentFlags().Int(key, 0, WrapString("If > 0, lock nodes are bound to an etcd lease with this TTL in seconds and vanish when the process dies (only for --coordinator=etcd)"))
}

// SetupTableLockFlags adds the table lock manager flags
func SetupTableLockFlags(cmd *cobra.Command) {
	key := "table-lock-enable"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether table locks are enabled. If false, all locks are granted immediately without coordination"))

	key = "table-write-lock-timeout-ms"
	cmd.PersistentFlags().Int64(key, tablelock.DefaultLockTimeout.Milliseconds(), WrapString("How long to wait for a table write lock in milliseconds (-1 waits forever)"))

	key = "table-read-lock-timeout-ms"
	cmd.PersistentFlags().Int64(key, tablelock.DefaultLockTimeout.Milliseconds(), WrapString("How long to wait for a table read lock in milliseconds (-1 waits forever)"))

	key = "lock-root"
	cmd.PersistentFlags().String(key, tablelock.DefaultRoot, WrapString("Coordinator path below which the table locks are stored"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		WaitSecond:    viper.GetInt("wait"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}

	return conf
}

// GetTableLockConfig reads the table lock manager configuration from viper
func GetTableLockConfig() tablelock.Config {
	conf := tablelock.DefaultConfig()
	conf.Enabled = viper.GetBool("table-lock-enable")
	conf.WriteLockTimeout = tablelock.TimeoutFromMillis(viper.GetInt64("table-write-lock-timeout-ms"))
	conf.ReadLockTimeout = tablelock.TimeoutFromMillis(viper.GetInt64("table-read-lock-timeout-ms"))
	conf.Root = viper.GetString("lock-root")
	return conf
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransport creates transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}

// GetCoordinator connects to the configured coordination service
func GetCoordinator() (coord.ICoordinator, error) {
	switch viper.GetString("coordinator") {
	case "rpc":
		s, err := GetSerializer()
		if err != nil {
			return nil, err
		}
		t, err := GetTransport()
		if err != nil {
			return nil, err
		}
		return client.NewRPCCoordinator(GetShardID(), *GetClientConfig(), t, s)
	case "etcd":
		return etcdcoord.Connect(etcdcoord.Config{
			Endpoints:   strings.Split(viper.GetString("etcd-endpoints"), ","),
			DialTimeout: time.Duration(viper.GetInt("timeout")) * time.Second,
			Namespace:   viper.GetString("etcd-namespace"),
			SessionTTL:  time.Duration(viper.GetInt("etcd-lease-ttl")) * time.Second,
		})
	default:
		return nil, fmt.Errorf("invalid coordinator %s", viper.GetString("coordinator"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
