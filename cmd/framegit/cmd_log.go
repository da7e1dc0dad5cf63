package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			commits, err := ws.eng.Log(limit)
			if err != nil {
				return err
			}
			if len(commits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}

			branch, _ := ws.eng.CurrentBranch()
			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow).SprintFunc()
			cyan := color.New(color.FgCyan).SprintFunc()

			for i, c := range commits {
				decoration := ""
				if i == 0 && branch != "" {
					decoration = " " + cyan("(HEAD -> "+branch+")")
				}
				if oneline {
					short := string(c.Hash)
					if len(short) > 8 {
						short = short[:8]
					}
					fmt.Fprintf(out, "%s%s %s\n", yellow(short), decoration, c.Message)
					continue
				}
				fmt.Fprintf(out, "commit %s%s\n", yellow(c.Hash), decoration)
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(c.Timestamp, 0).Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", c.Message)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show")

	return cmd
}
