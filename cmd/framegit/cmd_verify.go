package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easelhq/framegit/pkg/remote"
)

func newVerifyCmd() *cobra.Command {
	var apiBase string

	cmd := &cobra.Command{
		Use:   "verify [repo-url]",
		Short: "Check that the hosted repository exists",
		Long: `Check that the hosted repository exists and the token can see it.
The repository URL defaults to the one recorded at initialization; the
token is read from ` + "FRAMEGIT_TOKEN" + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoURL := ""
			if len(args) > 0 {
				repoURL = args[0]
			} else {
				ws, err := openWorkspace()
				if err != nil {
					return err
				}
				info, err := ws.eng.Info()
				ws.Close()
				if err != nil {
					return err
				}
				repoURL = info.RepoURL
			}
			if repoURL == "" {
				return fmt.Errorf("no repository URL recorded; pass one as an argument")
			}

			client, err := remote.NewClient(repoURL, os.Getenv("FRAMEGIT_TOKEN"), remote.ClientOptions{
				APIBase: apiBase,
			})
			if err != nil {
				return err
			}
			exists, err := client.VerifyRepo(cmd.Context())
			if err != nil {
				return err
			}
			ep := client.Endpoint()
			if !exists {
				return fmt.Errorf("repository %s/%s not found", ep.Owner, ep.Repo)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repository %s/%s exists\n", ep.Owner, ep.Repo)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiBase, "api-base", "", "hosted API root (default "+remote.DefaultAPIBase+")")

	return cmd
}
