package lock

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/rwlock"
	"github.com/ValentinKolb/dLock/lib/tablelock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	coordinator coord.ICoordinator
	lockMgr     tablelock.ITableLockManager

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:                "lock",
		Short:              "Perform table lock operations",
		PersistentPreRunE:  setupLockClient,
		PersistentPostRunE: closeLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [table]",
		Short: "Acquire a table lock and hold it",
		Long:  "Acquire a table lock, hold it for --hold (or until interrupted) and release it again.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// listCmd represents the list command
	listCmd = &cobra.Command{
		Use:   "list [table]",
		Short: "List the holders and waiters of a table lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}

	// tablesCmd represents the tables command
	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "List all tables with lock state",
		Args:  cobra.NoArgs,
		RunE:  runTables,
	}

	// reapCmd represents the reap command
	reapCmd = &cobra.Command{
		Use:   "reap",
		Short: "Force delete all table write locks",
		Long:  "Force delete all table write locks and write lock attempts. Only use this if all write lock holders are known to be dead.",
		Args:  cobra.NoArgs,
		RunE:  runReap,
	}

	// deletedCmd represents the deleted command
	deletedCmd = &cobra.Command{
		Use:   "deleted [table]",
		Short: "Remove the lock state of a deleted table",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleted,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(listCmd)
	LockCommands.AddCommand(tablesCmd)
	LockCommands.AddCommand(reapCmd)
	LockCommands.AddCommand(deletedCmd)
	LockCommands.AddCommand(perfTestCmd)

	// Add common flags to the lock command
	util.SetupRPCClientFlags(LockCommands)
	util.SetupCoordinatorFlags(LockCommands)
	util.SetupTableLockFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().String("mode", "write", util.WrapString("Lock mode (write, read)"))
	acquireCmd.Flags().String("purpose", "cli", util.WrapString("Purpose stored with the lock"))
	acquireCmd.Flags().Duration("hold", 0, util.WrapString("How long to hold the lock (0 holds it until interrupted)"))
}

// setupLockClient connects to the coordination service and creates the table lock manager
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	coordinator, err = util.GetCoordinator()
	if err != nil {
		return err
	}

	lockMgr = tablelock.NewTableLockManager(util.GetTableLockConfig(), coordinator)
	return nil
}

func closeLockClient(*cobra.Command, []string) error {
	if coordinator == nil {
		return nil
	}
	return coordinator.Close()
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lock tablelock.ITableLock
	switch mode := viper.GetString("mode"); mode {
	case "write":
		lock = lockMgr.WriteLock(args[0], viper.GetString("purpose"))
	case "read":
		lock = lockMgr.ReadLock(args[0], viper.GetString("purpose"))
	default:
		return fmt.Errorf("invalid mode %s (expected write or read)", mode)
	}

	start := time.Now()
	return tablelock.WithLock(ctx, lock, func(ctx context.Context) error {
		fmt.Printf("acquired=true, table=%s, shared=%v, waited=%s\n", lock.Table(), lock.IsShared(), time.Since(start).Round(time.Millisecond))

		var hold <-chan time.Time
		if d := viper.GetDuration("hold"); d > 0 {
			hold = time.After(d)
		}
		select {
		case <-hold:
		case <-ctx.Done():
		}
		fmt.Println("released=true")
		return nil
	})
}

// runList handles the list command
func runList(_ *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	n := 0
	exclusiveSeen := false
	err := lockMgr.VisitLocks(ctx, args[0], func(info tablelock.LockInfo) error {
		// a write lock holds if it is first, a read lock if no write lock is queued before it
		state := "waiting"
		if info.Mode == rwlock.ModeExclusive {
			if n == 0 {
				state = "holding"
			}
			exclusiveSeen = true
		} else if !exclusiveSeen {
			state = "holding"
		}
		n++

		owner := "<no metadata>"
		if info.Metadata != nil {
			owner = info.Metadata.String()
		}
		fmt.Printf("%-22s %-7s %-5s %s\n", info.Node, state, info.Mode, owner)
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("no locks")
	}
	return nil
}

// runTables handles the tables command
func runTables(*cobra.Command, []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	tables, err := lockMgr.Tables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		fmt.Println(table)
	}
	return nil
}

// runReap handles the reap command
func runReap(*cobra.Command, []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	if err := lockMgr.ReapAllWriteLocks(ctx); err != nil {
		return fmt.Errorf("failed to reap write locks: %w", err)
	}
	fmt.Println("reaped successfully")
	return nil
}

// runDeleted handles the deleted command
func runDeleted(_ *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	if err := lockMgr.ResourceDeleted(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("removed successfully")
	return nil
}

// requestContext bounds a single command by the client timeout
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
}
