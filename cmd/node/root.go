package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/coord"
	"github.com/ValentinKolb/dLock/lib/tablelock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	coordinator coord.ICoordinator

	// NodeCommands represents the node command group
	NodeCommands = &cobra.Command{
		Use:                "node",
		Short:              "Inspect and modify the coordination namespace",
		PersistentPreRunE:  setupCoordinator,
		PersistentPostRunE: closeCoordinator,
	}

	lsCmd = &cobra.Command{
		Use:   "ls [path]",
		Short: "Lists the children of a node in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			children, cversion, err := coordinator.Children(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("cversion=%d, children=%d\n", cversion, len(children))
			for _, child := range children {
				fmt.Println(coord.Join(args[0], child))
			}
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Prints the data of a node",
		Long:  "Prints the data of a node. Table lock metadata is decoded, other data is printed as is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			data, err := coordinator.GetData(ctx, args[0])
			if err != nil {
				return err
			}
			if md, ok := tablelock.ParseMetadata(data); ok {
				fmt.Println(md.String())
			} else {
				fmt.Println(string(data))
			}
			return nil
		},
	}

	rmCmd = &cobra.Command{
		Use:   "rm [path]",
		Short: "Deletes a node, or with --children all its children matching --prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			if viper.GetBool("children") {
				n, err := coordinator.DeleteChildren(ctx, args[0], viper.GetString("prefix"))
				if err != nil {
					return err
				}
				fmt.Printf("deleted=%d\n", n)
				return nil
			}
			if err := coordinator.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common flags to the node command
	util.SetupRPCClientFlags(NodeCommands)
	util.SetupCoordinatorFlags(NodeCommands)

	// Add subcommands
	NodeCommands.AddCommand(lsCmd)
	NodeCommands.AddCommand(getCmd)
	NodeCommands.AddCommand(rmCmd)

	rmCmd.Flags().Bool("children", false, util.WrapString("Delete the children of the node instead of the node itself"))
	rmCmd.Flags().String("prefix", "", util.WrapString("Only delete children whose name starts with this prefix (with --children)"))
}

// setupCoordinator connects to the coordination service
func setupCoordinator(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	coordinator, err = util.GetCoordinator()
	return err
}

func closeCoordinator(*cobra.Command, []string) error {
	if coordinator == nil {
		return nil
	}
	return coordinator.Close()
}

// requestContext bounds a single command by the client timeout
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
}
