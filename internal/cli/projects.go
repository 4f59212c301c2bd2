package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects [<hub-id>]",
	Short: "List projects in a hub",
	Long: `List the projects in a hub. Without an argument the currently
selected hub is used.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runProjects,
}

func runProjects(cmd *cobra.Command, args []string) {
	c := initDataContext()
	defer c.Close()

	hubID := ""
	if len(args) > 0 {
		hubID = args[0]
	} else {
		hubID = c.workContext().HubID
	}
	if hubID == "" {
		exitError("no hub selected: pass a hub id or run 'accmove use --hub <id>'")
	}

	projects, err := c.Resources.ListProjects(context.Background(), hubID)
	if err != nil {
		exitError("%v", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects in this hub")
		return
	}

	for _, project := range projects {
		fmt.Printf("%-46s  %s\n", aps.DisplayProjectID(project.ID), project.Name)
	}
}
