package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [<folder-id>]",
	Short: "List folder contents in the current project",
	Long: `List the contents of a folder in the currently selected project.
Without an argument the project's top-level folders are listed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLs,
}

func runLs(cmd *cobra.Command, args []string) {
	c := initDataContext()
	defer c.Close()

	wc := c.workContext()
	if wc.HubID == "" || wc.ProjectID == "" {
		exitError("no project selected: run 'accmove use --hub <id> --project <id>'")
	}

	ctx := context.Background()
	var entries []models.Entry
	var err error
	if len(args) > 0 {
		entries, err = c.Resources.ListFolderContents(ctx, wc.ProjectID, args[0])
	} else {
		entries, err = c.Resources.ListTopFolders(ctx, wc.HubID, wc.ProjectID)
	}
	if err != nil {
		exitError("%v", err)
	}

	if len(entries) == 0 {
		fmt.Println("Empty")
		return
	}

	blue := color.New(color.FgBlue)
	for _, entry := range entries {
		if entry.Type == models.EntryFolder {
			fmt.Print("d  ")
			blue.Printf("%-32s", entry.Name)
		} else {
			fmt.Printf("-  %-32s", entry.Name)
		}
		fmt.Printf("  %s\n", entry.ID)
	}
}
