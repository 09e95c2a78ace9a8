package main

import (
	"github.com/spf13/cobra"

	"github.com/ovnlocal/lflow/internal/ovnconfig"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lflow-controller",
		Short: "Logical-flow translation core for an OVN-style local controller",
	}

	ovnconfig.BindFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd())
	root.AddCommand(newRecomputeCmd())
	root.AddCommand(newVersionCmd())
	return root
}
