package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s %v: %v", cmd.Use, args, err)
	}
	return out.String()
}

func writeWorkFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorkflow_BranchIsolation(t *testing.T) {
	for _, strategy := range []string{"minimal", "dotdir"} {
		t.Run(strategy, func(t *testing.T) {
			dir := t.TempDir()
			flagDir = dir
			flagStrategy = strategy

			runCmd(t, newInitCmd())

			writeWorkFile(t, dir, "a.txt", "hello")
			runCmd(t, newAddCmd(), "a.txt")
			runCmd(t, newCommitCmd(), "-m", "init")

			runCmd(t, newBranchCmd(), "feature")
			runCmd(t, newCheckoutCmd(), "feature")

			writeWorkFile(t, dir, "a.txt", "world")
			runCmd(t, newAddCmd(), "a.txt")
			runCmd(t, newCommitCmd(), "-m", "update")

			runCmd(t, newCheckoutCmd(), "main")

			if got := runCmd(t, newCatCmd(), "a.txt"); got != "hello" {
				t.Fatalf("cat a.txt = %q, want %q", got, "hello")
			}
			// Checkout also syncs the working directory back.
			data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "hello" {
				t.Fatalf("on-disk a.txt = %q, want %q", data, "hello")
			}
		})
	}
}

func TestWorkflow_InitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	flagDir = dir
	flagStrategy = "minimal"

	runCmd(t, newInitCmd())
	writeWorkFile(t, dir, "a.txt", "hello")
	runCmd(t, newAddCmd(), "a.txt")
	runCmd(t, newCommitCmd(), "-m", "init")

	runCmd(t, newInitCmd())

	out := runCmd(t, newLogCmd(), "--oneline")
	if !strings.Contains(out, "init") {
		t.Fatalf("history lost after re-init: %q", out)
	}
}

func TestWorkflow_FilesAndBranches(t *testing.T) {
	dir := t.TempDir()
	flagDir = dir
	flagStrategy = "minimal"

	runCmd(t, newInitCmd())
	writeWorkFile(t, dir, "a.txt", "1")
	writeWorkFile(t, dir, "b.txt", "2")
	runCmd(t, newAddCmd(), "a.txt", "b.txt")
	runCmd(t, newCommitCmd(), "-m", "two files")

	files := runCmd(t, newFilesCmd())
	if !strings.Contains(files, "a.txt") || !strings.Contains(files, "b.txt") {
		t.Fatalf("files = %q", files)
	}

	runCmd(t, newBranchCmd(), "feature")
	branches := runCmd(t, newBranchesCmd())
	if !strings.Contains(branches, "main") || !strings.Contains(branches, "feature") {
		t.Fatalf("branches = %q", branches)
	}
}

func TestWorkflow_CheckoutMissingBranchCreatesIt(t *testing.T) {
	dir := t.TempDir()
	flagDir = dir
	flagStrategy = "minimal"

	runCmd(t, newInitCmd())
	writeWorkFile(t, dir, "a.txt", "hello")
	runCmd(t, newAddCmd(), "a.txt")
	runCmd(t, newCommitCmd(), "-m", "init")

	runCmd(t, newCheckoutCmd(), "frame-42")

	branches := runCmd(t, newBranchesCmd())
	if !strings.Contains(branches, "frame-42") {
		t.Fatalf("branches = %q", branches)
	}
	if got := runCmd(t, newCatCmd(), "a.txt"); got != "hello" {
		t.Fatalf("cat a.txt = %q on new branch", got)
	}
}
