package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dLock/cmd/lock"
	"github.com/ValentinKolb/dLock/cmd/node"
	"github.com/ValentinKolb/dLock/cmd/serve"
	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlock",
		Short: "distributed table lock manager",
		Long: fmt.Sprintf(`dLock (v%s)

Distributed read/write locks for tables, built on a hierarchical coordination
namespace. The namespace is served in-memory, replicated with RAFT or by an
external etcd cluster.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dLock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dLock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(node.NodeCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
