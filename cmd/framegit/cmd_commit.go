package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if author == "" {
				author = os.Getenv("USER")
				if author == "" {
					author = "unknown"
				}
			}

			h, err := ws.eng.Commit(message, author)
			if err != nil {
				return err
			}
			branch, err := ws.eng.CurrentBranch()
			if err != nil {
				branch = "HEAD"
			}

			short := string(h)
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, short, message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: $USER)")

	return cmd
}
