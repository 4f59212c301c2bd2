package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "List hubs visible to your account",
	Run:   runHubs,
}

func runHubs(cmd *cobra.Command, args []string) {
	c := initDataContext()
	defer c.Close()

	hubs, err := c.Resources.ListHubs(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	if len(hubs) == 0 {
		fmt.Println("No hubs visible to this account")
		return
	}

	for _, hub := range hubs {
		fmt.Printf("%-44s  %-8s  %s\n", hub.ID, hub.Region, hub.Name)
	}
}
