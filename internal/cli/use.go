package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/models"
	"github.com/spf13/cobra"
)

var (
	useHub     string
	useProject string
	useFolder  string
	useItem    string
)

var useCmd = &cobra.Command{
	Use:   "use",
	Short: "Select the hub, project, and model to work on",
	Long: `Select which model subsequent commands operate on. Each flag updates
one part of the selection and the rest is kept. Without flags the
current selection is printed.

Examples:
  accmove use --hub b.1f7ac3 --project b.51a1b2
  accmove use --item urn:adsk.wipprod:dm.lineage:AbCdEf12`,
	Run: runUse,
}

func init() {
	useCmd.Flags().StringVar(&useHub, "hub", "", "Hub id")
	useCmd.Flags().StringVar(&useProject, "project", "", "Project id")
	useCmd.Flags().StringVar(&useFolder, "folder", "", "Folder id")
	useCmd.Flags().StringVar(&useItem, "item", "", "Item (model lineage) id")
}

func runUse(cmd *cobra.Command, args []string) {
	c := initDataContext()
	defer c.Close()

	wc := c.workContext()

	if useHub == "" && useProject == "" && useFolder == "" && useItem == "" {
		printContext(wc)
		return
	}

	if useHub != "" {
		wc.HubID = useHub
	}
	if useProject != "" {
		wc.ProjectID = aps.NormalizeProjectID(useProject)
	}
	if useFolder != "" {
		wc.FolderID = useFolder
	}
	if useItem != "" {
		wc.ItemID = useItem
		wc.ItemName = ""
		// Resolve the display name while we are here.
		if wc.ProjectID != "" {
			if tip, err := c.Resources.LatestVersion(context.Background(), wc.ProjectID, useItem); err == nil {
				wc.ItemName = tip.Name
			}
		}
	}

	if err := c.Store.SetWorkContext(wc); err != nil {
		exitError("failed to save selection: %v", err)
	}
	printContext(wc)
}

func printContext(wc *models.WorkContext) {
	if wc.HubID == "" && wc.ProjectID == "" && wc.ItemID == "" {
		fmt.Println("Nothing selected: run 'accmove use --hub <id> --project <id> --item <id>'")
		return
	}
	fmt.Printf("Hub:     %s\n", valueOr(wc.HubID, "(none)"))
	fmt.Printf("Project: %s\n", valueOr(aps.DisplayProjectID(wc.ProjectID), "(none)"))
	fmt.Printf("Folder:  %s\n", valueOr(wc.FolderID, "(none)"))
	if wc.ItemName != "" {
		fmt.Printf("Item:    %s (%s)\n", wc.ItemID, wc.ItemName)
	} else {
		fmt.Printf("Item:    %s\n", valueOr(wc.ItemID, "(none)"))
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
