package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session, the selection, and pending moves",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	cred, err := c.Store.Credential()
	if err != nil {
		exitError("%v", err)
	}
	switch {
	case cred == nil:
		fmt.Println("Not signed in (run 'accmove login')")
	case !cred.Expired(time.Now()):
		fmt.Println("Signed in")
	case cred.RefreshToken != "":
		fmt.Println("Signed in (token will refresh on next use)")
	default:
		fmt.Println("Session expired (run 'accmove login')")
	}

	fmt.Println()
	printContext(c.workContext())

	changes, err := c.Store.PendingChanges()
	if err != nil {
		exitError("%v", err)
	}

	fmt.Println()
	if len(changes) == 0 {
		fmt.Println("No pending moves")
		return
	}

	color.New(color.FgYellow).Printf("%d pending move(s):\n", len(changes))
	for _, change := range changes {
		name := change.ElementName
		if name == "" {
			name = change.ElementKey
		}
		fmt.Printf("  %8d  %-28s %s -> %s\n", change.ElementID, name, change.OriginalPosition, change.NewPosition)
	}
	fmt.Printf("\nRun 'accmove save' to apply them to the model.\n")
}
