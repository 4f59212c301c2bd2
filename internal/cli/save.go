package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/core"
	"github.com/spf13/cobra"
)

var (
	saveYes          bool
	saveName         string
	saveWaitInterval time.Duration
	saveWaitBudget   int
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Apply pending moves and save a new model version",
	Long: `Apply the pending moves to the selected model and attach the
transformed file as a new version.

The batch is validated, handed to the apply worker, and polled until the
job resolves. Ctrl-C abandons the wait; the job itself keeps running
remotely. Requires APS_CLIENT_SECRET for the worker credential.`,
	Run: runSave,
}

func init() {
	saveCmd.Flags().BoolVarP(&saveYes, "yes", "y", false, "Skip the confirmation prompt")
	saveCmd.Flags().StringVar(&saveName, "name", "", "File name for the new version (default: keep the current name)")
	saveCmd.Flags().DurationVar(&saveWaitInterval, "wait-interval", 10*time.Second, "Delay between job status polls")
	saveCmd.Flags().IntVar(&saveWaitBudget, "wait-budget", 60, "Number of polls before giving up")
}

func runSave(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()

	wc := c.workContext()
	if !wc.Complete() {
		exitError("no model selected: run 'accmove use --project <id> --item <id>'")
	}
	if c.Config.Activity == "" {
		exitError("no activity configured: run 'accmove provision' first")
	}

	changes, err := c.Store.PendingChanges()
	if err != nil {
		exitError("%v", err)
	}
	if len(changes) == 0 {
		exitError("no pending moves to save")
	}

	fmt.Printf("Saving %d move(s) to %s\n", len(changes), valueOr(wc.ItemName, wc.ItemID))
	if !saveYes && !confirm("Continue?") {
		fmt.Println("Aborted.")
		return
	}

	worker := aps.NewDesignAutomationClient(
		c.Config.BaseURL,
		newAppTokens(c.Config),
		c.Config.Activity,
		aps.WorkBucketName(c.Config.ClientID),
	)
	saver := core.NewSaver(c.Resources, worker, c.History)
	saver.PollInterval = saveWaitInterval
	saver.PollBudget = saveWaitBudget

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := core.SaveOptions{ProjectID: wc.ProjectID, ItemID: wc.ItemID, Name: saveName}
	result, err := saver.Save(ctx, changes, opts, func(phase string, current, total int) {
		if total > 0 {
			fmt.Printf("\r  %s %d/%d", phase, current, total)
		} else {
			fmt.Printf("\r  %-40s", phase+"...")
		}
	})
	fmt.Println()
	if err != nil {
		reportSaveFailure(err)
	}

	color.New(color.FgGreen).Printf("Saved version %s\n", result.VersionID)
	fmt.Printf("Save %s, job %s, resolved after %d poll(s)\n", shortID(result.SaveID), result.JobID, result.Attempts)

	if len(result.Skipped) > 0 {
		color.New(color.FgYellow).Printf("%d element(s) could not be moved:\n", len(result.Skipped))
		for _, key := range result.Skipped {
			fmt.Printf("  %s\n", key)
		}
	}

	if err := c.Store.ClearPendingChanges(); err != nil {
		exitError("version saved, but clearing pending moves failed: %v", err)
	}
}

// reportSaveFailure prints what the worker had to say and exits.
func reportSaveFailure(err error) {
	var jobErr *core.JobError
	if errors.As(err, &jobErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", jobErr)
		if jobErr.Report != "" {
			fmt.Fprintf(os.Stderr, "\nWorker report:\n")
			for _, line := range strings.Split(strings.TrimRight(jobErr.Report, "\n"), "\n") {
				fmt.Fprintf(os.Stderr, "  %s\n", line)
			}
		}
		for _, entry := range jobErr.Diagnostics {
			fmt.Fprintf(os.Stderr, "\nDiagnostics from %s:\n", entry.Name)
			lines := strings.Split(strings.TrimRight(entry.Content, "\n"), "\n")
			if len(lines) > 20 {
				lines = lines[:20]
			}
			for _, line := range lines {
				fmt.Fprintf(os.Stderr, "  %s\n", line)
			}
		}
		os.Exit(1)
	}
	if errors.Is(err, core.ErrJobTimedOut) {
		exitError("%v: the job may still finish remotely, check 'accmove history' later", err)
	}
	exitError("%v", err)
}

// confirm asks a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
