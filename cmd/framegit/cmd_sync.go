package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easelhq/framegit/pkg/syncer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the working directory with the current branch",
		Long: `Recompute the diff between the last synced commit and the current
branch tip by content hash and apply it. Re-running against an already
synced tip performs no I/O, so an interrupted sync is safe to repeat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			branch, err := ws.eng.CurrentBranch()
			if err != nil {
				return err
			}
			commits, err := ws.eng.Log(1)
			if err != nil {
				return err
			}
			if len(commits) == 0 {
				return fmt.Errorf("nothing to sync: no commits on %q", branch)
			}
			target := commits[0].Hash

			eng := syncer.New(ws.fs)
			res, err := eng.SyncCommit(ws.src, lastSynced(ws), target)
			if err != nil {
				return err
			}
			if err := ws.db.SetKV(syncStateKey, []byte(target)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced to %s: %d written, %d removed, %d skipped\n",
				branch, res.Written, res.Removed, res.Skipped)
			return nil
		},
	}
}
