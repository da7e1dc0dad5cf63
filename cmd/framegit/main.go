package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "framegit",
		Short: "Frame-as-branch git mirror and sync engine",
	}

	root.PersistentFlags().StringVarP(&flagDir, "dir", "C", ".", "working directory")
	root.PersistentFlags().StringVar(&flagStrategy, "strategy", "minimal", "repository strategy (minimal or dotdir)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newBranchesCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newFilesCmd())
	root.AddCommand(newCatCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("framegit 0.1.0-dev")
		},
	}
}
